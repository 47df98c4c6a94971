package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
	"github.com/target/docauth/internal/ports"
	"github.com/target/docauth/internal/service/dbauth"
)

// AddUserDBInput describes a personal database to add to an account. Nil DesignDocs and
// Permissions fall back to the database's configured model.
type AddUserDBInput struct {
	DBName      string
	Type        model.DBType
	DesignDocs  []string
	Permissions []string
}

// AddUserDB provisions a personal database for the account and records it. Explicit
// permissions are stored on the record; otherwise the configured model is consulted on
// every session. It returns the physical database name.
func (s *UserService) AddUserDB(ctx context.Context, userID string, in AddUserDBInput) (string, error) {
	t := in.Type
	if t == "" {
		t = model.DBTypePrivate
	}
	if !t.Valid() {
		return "", apperrors.ValidationField("type", fmt.Sprintf("invalid database type %q", t))
	}
	cfg := s.databases.DatabaseConfig(in.DBName, t)
	designDocs := in.DesignDocs
	if designDocs == nil {
		designDocs = cfg.DesignDocs
	}
	perms := in.Permissions
	if perms == nil {
		perms = cfg.Permissions
	}

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	physical, err := s.databases.ProvisionUserDatabase(ctx, u, dbauth.ProvisionRequest{
		DBName:      in.DBName,
		Type:        cfg.Type,
		DesignDocs:  designDocs,
		Permissions: perms,
		AdminRoles:  cfg.AdminRoles,
		MemberRoles: cfg.MemberRoles,
	})
	if err != nil {
		return "", err
	}

	entry := model.PersonalDB{Name: in.DBName, Type: cfg.Type, DeleteWithUser: cfg.DeleteWithUser}
	if in.Permissions != nil {
		entry.Permissions = in.Permissions
	}
	old, exists := u.PersonalDBs[physical]
	modified := !exists || !old.Equal(entry)
	if u.PersonalDBs == nil {
		u.PersonalDBs = make(map[string]model.PersonalDB)
	}
	u.PersonalDBs[physical] = entry

	s.events.Publish(ctx, ports.Event{Name: ports.EventUserDBAdded, UserID: u.ID, DBName: in.DBName})
	if !modified {
		return physical, nil
	}
	if err := s.save(ctx, u, "add personal database"); err != nil {
		return "", err
	}
	return physical, nil
}

// addDefaultDBs provisions the configured default private and shared databases on a new
// account. u is not saved.
func (s *UserService) addDefaultDBs(ctx context.Context, u *model.User) error {
	if len(s.userDBs.DefaultPrivate) == 0 && len(s.userDBs.DefaultShared) == 0 {
		return nil
	}
	if u.PersonalDBs == nil {
		u.PersonalDBs = make(map[string]model.PersonalDB)
	}
	add := func(names []string, t model.DBType) error {
		for _, name := range names {
			cfg := s.databases.DatabaseConfig(name, t)
			physical, err := s.databases.ProvisionUserDatabase(ctx, u, dbauth.ProvisionRequest{
				DBName:      name,
				Type:        t,
				DesignDocs:  cfg.DesignDocs,
				Permissions: cfg.Permissions,
				AdminRoles:  cfg.AdminRoles,
				MemberRoles: cfg.MemberRoles,
			})
			if err != nil {
				return fmt.Errorf("provision default database %s: %w", name, err)
			}
			u.PersonalDBs[physical] = model.PersonalDB{Name: name, Type: t, DeleteWithUser: cfg.DeleteWithUser}
		}
		return nil
	}
	if err := add(s.userDBs.DefaultPrivate, model.DBTypePrivate); err != nil {
		return err
	}
	return add(s.userDBs.DefaultShared, model.DBTypeShared)
}

// RemoveUserDB drops the personal database with the given logical name from the account.
// The database itself is destroyed when its type's delete flag is set; otherwise the
// account's sessions lose access to it.
func (s *UserService) RemoveUserDB(ctx context.Context, userID, dbName string, deletePrivate, deleteShared bool) error {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	update := false
	for _, physical := range sortedPersonalDBs(u.PersonalDBs) {
		entry := u.PersonalDBs[physical]
		if entry.Name != dbName {
			continue
		}
		destroy := (entry.Type == model.DBTypePrivate && deletePrivate) ||
			(entry.Type == model.DBTypeShared && deleteShared)
		if destroy {
			if err := s.databases.RemoveDatabase(ctx, physical); err != nil && !apperrors.IsNotFound(err) {
				return err
			}
		} else {
			scoped := &model.User{ID: u.ID, Session: u.Session, PersonalDBs: map[string]model.PersonalDB{physical: entry}}
			if err := s.databases.DeauthorizeUser(ctx, scoped, nil); err != nil {
				return err
			}
		}
		delete(u.PersonalDBs, physical)
		update = true
	}
	if !update {
		return nil
	}
	if err := s.save(ctx, u, "remove personal database"); err != nil {
		return err
	}
	s.events.Publish(ctx, ports.Event{Name: ports.EventUserDBRemoved, UserID: u.ID, DBName: dbName})
	return nil
}

// Remove deletes an account after revoking all its sessions. With destroyDBs set its
// private databases are destroyed first.
func (s *UserService) Remove(ctx context.Context, userID string, destroyDBs bool) error {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.sessions.RevokeAll(ctx, u); err != nil {
		return err
	}
	if destroyDBs {
		for _, physical := range sortedPersonalDBs(u.PersonalDBs) {
			if u.PersonalDBs[physical].Type != model.DBTypePrivate {
				continue
			}
			if err := s.databases.RemoveDatabase(ctx, physical); err != nil && !apperrors.IsNotFound(err) {
				return err
			}
		}
	}
	if err := s.users.Delete(ctx, u); err != nil {
		return fmt.Errorf("delete user %s: %w", u.ID, err)
	}
	s.logger.InfoContext(ctx, "user removed", "user_id", u.ID, "destroy_dbs", destroyDBs)
	return nil
}

func sortedPersonalDBs(dbs map[string]model.PersonalDB) []string {
	names := make([]string, 0, len(dbs))
	for n := range dbs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
