package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
)

// UserRepo implements core.UserRepository over the users collection.
type UserRepo struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

var _ core.UserRepository = (*UserRepo)(nil)

var byID = bson.D{{Key: "_id", Value: 1}}

// exactFold matches s as a whole value, ignoring case.
func exactFold(s string) bson.Regex {
	return bson.Regex{Pattern: "^" + regexp.QuoteMeta(s) + "$", Options: "i"}
}

func (r *UserRepo) findOne(ctx context.Context, filter any, what string) (*model.User, error) {
	var u model.User
	err := r.coll.FindOne(ctx, filter, options.FindOne().SetSort(byID)).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFoundf("no user with %s", what)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", mapError(err))
	}
	return &u, nil
}

func (r *UserRepo) findMany(ctx context.Context, filter any) ([]*model.User, error) {
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(byID))
	if err != nil {
		return nil, fmt.Errorf("find users: %w", mapError(err))
	}
	var out []*model.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode users: %w", mapError(err))
	}
	return out, nil
}

// Get returns the record with the given id.
func (r *UserRepo) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := r.findOne(ctx, bson.D{{Key: "_id", Value: id}}, "that id")
	if apperrors.IsNotFound(err) {
		return nil, apperrors.NotFoundf("user %q not found", id)
	}
	return u, err
}

// Create inserts u at revision 1.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	doc := *u
	doc.Rev = 1
	if _, err := r.coll.InsertOne(ctx, &doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.ConflictField("_id", "document already exists")
		}
		return fmt.Errorf("create user: %w", mapError(err))
	}
	u.Rev = doc.Rev
	return nil
}

// Put replaces the record when u.Rev matches and advances u.Rev. A zero revision creates it.
func (r *UserRepo) Put(ctx context.Context, u *model.User) error {
	if u.Rev == 0 {
		if err := r.Create(ctx, u); err != nil {
			if apperrors.IsConflict(err) {
				return errRevisionConflict
			}
			return err
		}
		return nil
	}
	doc := *u
	doc.Rev = u.Rev + 1
	res, err := r.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: u.ID}, {Key: "_rev", Value: u.Rev}}, &doc)
	if err != nil {
		return fmt.Errorf("put user: %w", mapError(err))
	}
	if res.MatchedCount == 0 {
		return errRevisionConflict
	}
	u.Rev = doc.Rev
	return nil
}

// BulkPut writes each record independently. Only conflicts are reported per record; any
// other failure aborts the batch.
func (r *UserRepo) BulkPut(ctx context.Context, users []*model.User) ([]error, error) {
	results := make([]error, len(users))
	for i, u := range users {
		err := r.Put(ctx, u)
		if err != nil && !apperrors.IsConflict(err) {
			return nil, err
		}
		results[i] = err
	}
	return results, nil
}

// Delete removes the record when u.Rev matches.
func (r *UserRepo) Delete(ctx context.Context, u *model.User) error {
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: u.ID}, {Key: "_rev", Value: u.Rev}})
	if err != nil {
		return fmt.Errorf("delete user: %w", mapError(err))
	}
	if res.DeletedCount > 0 {
		return nil
	}
	n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: u.ID}})
	if err != nil {
		return fmt.Errorf("delete user: %w", mapError(err))
	}
	if n == 0 {
		return apperrors.NotFoundf("user %q not found", u.ID)
	}
	return errRevisionConflict
}

// FindByUsername matches the record id.
func (r *UserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: strings.ToLower(username)}}, "that username")
}

// FindByEmail matches the confirmed or the pending address, ignoring case.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if email == "" {
		return nil, apperrors.NotFound("no user with that email")
	}
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "email", Value: exactFold(email)}},
		bson.D{{Key: "unverifiedEmail.email", Value: exactFold(email)}},
	}}}
	return r.findOne(ctx, filter, "that email")
}

// FindByEmailUsername matches accounts keyed by email address.
func (r *UserRepo) FindByEmailUsername(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: strings.ToLower(email)}}, "that email")
}

// FindByProviderID matches a linked provider profile id, ignoring case.
func (r *UserRepo) FindByProviderID(ctx context.Context, provider, profileID string) (*model.User, error) {
	if provider == "" || profileID == "" || strings.ContainsAny(provider, ".$") {
		return nil, apperrors.NotFoundf("no user with that %s profile", provider)
	}
	field := "federated." + provider + ".profile.id"
	return r.findOne(ctx, bson.D{{Key: field, Value: exactFold(profileID)}}, "that "+provider+" profile")
}

// FindBySessionKey matches any session key on the record.
func (r *UserRepo) FindBySessionKey(ctx context.Context, key string) (*model.User, error) {
	if key == "" || strings.ContainsAny(key, ".$") {
		return nil, apperrors.NotFound("no user with that session")
	}
	filter := bson.D{{Key: "session." + key, Value: bson.D{{Key: "$exists", Value: true}}}}
	return r.findOne(ctx, filter, "that session")
}

// FindByPasswordResetToken matches the hashed reset token.
func (r *UserRepo) FindByPasswordResetToken(ctx context.Context, tokenHash string) (*model.User, error) {
	if tokenHash == "" {
		return nil, apperrors.NotFound("no user with that reset token")
	}
	return r.findOne(ctx, bson.D{{Key: "forgotPassword.token", Value: tokenHash}}, "that reset token")
}

// FindByVerifyEmailToken matches the pending email confirmation token.
func (r *UserRepo) FindByVerifyEmailToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperrors.NotFound("no user with that verification token")
	}
	return r.findOne(ctx, bson.D{{Key: "unverifiedEmail.token", Value: token}}, "that verification token")
}

// ListIDsWithPrefix returns matching ids in sorted order.
func (r *UserRepo) ListIDsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	filter := bson.D{{Key: "_id", Value: bson.Regex{Pattern: "^" + regexp.QuoteMeta(prefix)}}}
	opts := options.Find().SetSort(byID).SetProjection(bson.D{{Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", mapError(err))
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode user ids: %w", mapError(err))
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}

// ExpiredSessions snapshots sessions with expires before the cutoff. Every row for the
// same user shares one copy of the record.
func (r *UserRepo) ExpiredSessions(ctx context.Context, before int64) ([]core.ExpiredSession, error) {
	expired := bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: bson.D{{Key: "$objectToArray", Value: "$session"}}},
		{Key: "cond", Value: bson.D{{Key: "$lt", Value: bson.A{"$$this.v.expires", before}}}},
	}}}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "session", Value: bson.D{{Key: "$type", Value: "object"}}}}}},
		{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{
			{Key: "$gt", Value: bson.A{bson.D{{Key: "$size", Value: expired}}, 0}},
		}}}}},
		{{Key: "$sort", Value: byID}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("query expired sessions: %w", mapError(err))
	}
	var users []*model.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode expired sessions: %w", mapError(err))
	}

	var out []core.ExpiredSession
	for _, u := range users {
		for _, key := range u.SessionKeys() {
			if u.Session[key].Expires < before {
				out = append(out, core.ExpiredSession{UserID: u.ID, Key: key, User: u})
			}
		}
	}
	return out, nil
}

// ExpiredPasswordResets returns users whose reset token expired before the cutoff.
func (r *UserRepo) ExpiredPasswordResets(ctx context.Context, before int64) ([]*model.User, error) {
	return r.findMany(ctx, bson.D{{Key: "forgotPassword.expires", Value: bson.D{{Key: "$lt", Value: before}}}})
}

type deleteEvent struct {
	Before *model.User `bson:"fullDocumentBeforeChange"`
}

// WatchDeleted streams deleted records from a change stream until ctx is done. Opening
// the stream fails when the deployment does not support change streams.
func (r *UserRepo) WatchDeleted(ctx context.Context) (<-chan *model.User, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "operationType", Value: "delete"}}}},
	}
	opts := options.ChangeStream().SetFullDocumentBeforeChange(options.Required)
	cs, err := r.coll.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("watch deletions: %w", mapError(err))
	}

	out := make(chan *model.User)
	go func() {
		defer close(out)
		defer func() { _ = cs.Close(context.Background()) }()
		for cs.Next(ctx) {
			var ev deleteEvent
			if err := cs.Decode(&ev); err != nil {
				r.logger.Error("decode deletion event", "error", err)
				continue
			}
			if ev.Before == nil {
				continue
			}
			select {
			case out <- ev.Before:
			case <-ctx.Done():
				return
			}
		}
		if err := cs.Err(); err != nil && ctx.Err() == nil {
			r.logger.Error("deletion feed stopped", "error", err)
		}
	}()
	return out, nil
}
