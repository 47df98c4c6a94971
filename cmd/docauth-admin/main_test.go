package main

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/docauth/config"
	"github.com/target/docauth/internal/domain/model"
)

func testCommandContext(t *testing.T) *commandContext {
	t.Helper()
	cfg := config.AppConfig{
		Services: "sweeper",
		Session:  config.SessionConfig{Adapter: config.TokenBackendMemory},
		DocStore: config.DocStoreConfig{Backend: config.DocStoreMemory},
		DBServer: config.DBServerConfig{Kind: config.DBServerDocStore, Host: "localhost:5984"},
		Mail:     config.MailConfig{Backend: config.MailBackendLog},
		UserDBs:  config.UserDBsConfig{DesignDocDir: t.TempDir()},
	}
	cfg.Sanitize()
	return &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
		Config: cfg,
	}
}

func TestCommands(t *testing.T) {
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name, cmd := range cmds {
		assert.Equal(t, name, cmd.name)
		assert.NotEmpty(t, cmd.description)
		assert.NotNil(t, cmd.run)
		names = append(names, name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"add-db", "create-user", "logout-user", "migrate", "remove-expired", "remove-user"}, names)
}

func TestParseCreateUserFlags(t *testing.T) {
	opts, err := parseCreateUserFlags([]string{"-username", "alice", "-email", " alice@example.com ", "-password", "pw123456"})
	require.NoError(t, err)
	assert.Equal(t, "alice", opts.Username)
	assert.Equal(t, "alice@example.com", opts.Email)
	assert.Equal(t, "pw123456", opts.Password)

	t.Setenv("DOCAUTH_PASSWORD", "from-env")
	opts, err = parseCreateUserFlags([]string{"-email", "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "from-env", opts.Password)

	_, err = parseCreateUserFlags([]string{"-password", "x"})
	assert.ErrorContains(t, err, "--email is required")
}

func TestParseCreateUserFlags_PasswordRequired(t *testing.T) {
	t.Setenv("DOCAUTH_PASSWORD", "")
	_, err := parseCreateUserFlags([]string{"-email", "bob@example.com"})
	assert.ErrorContains(t, err, "--password or DOCAUTH_PASSWORD is required")
}

func TestParseLogoutUserFlags(t *testing.T) {
	opts, err := parseLogoutUserFlags([]string{"-session", "key-1"})
	require.NoError(t, err)
	assert.Equal(t, "key-1", opts.SessionKey)

	_, err = parseLogoutUserFlags(nil)
	assert.ErrorContains(t, err, "--user or --session is required")
}

func TestParseRemoveUserFlags(t *testing.T) {
	opts, err := parseRemoveUserFlags([]string{"-user", "alice", "-destroy-dbs", "-yes"})
	require.NoError(t, err)
	assert.Equal(t, removeUserOptions{UserID: "alice", DestroyDBs: true, Yes: true}, opts)

	_, err = parseRemoveUserFlags([]string{"-yes"})
	assert.ErrorContains(t, err, "--user is required")
}

func TestParseAddDBFlags(t *testing.T) {
	opts, err := parseAddDBFlags([]string{
		"-user", "alice", "-db", "notes", "-type", "shared",
		"-design-docs", "base, search", "-permissions", "_reader,,_replicator",
	})
	require.NoError(t, err)
	assert.Equal(t, model.DBTypeShared, opts.Type)
	assert.Equal(t, []string{"base", "search"}, opts.DesignDocs)
	assert.Equal(t, []string{"_reader", "_replicator"}, opts.Permissions)

	opts, err = parseAddDBFlags([]string{"-user", "alice", "-db", "notes"})
	require.NoError(t, err)
	assert.Empty(t, opts.Type)
	assert.Nil(t, opts.DesignDocs)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing user", []string{"-db", "notes"}, "--user is required"},
		{"missing db", []string{"-user", "alice"}, "--db is required"},
		{"bad type", []string{"-user", "alice", "-db", "notes", "-type", "public"}, "--type must be private or shared"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseAddDBFlags(tt.args)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParseMigrateFlags(t *testing.T) {
	opts, err := parseMigrateFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)

	opts, err = parseMigrateFlags([]string{"-timeout", "30s"})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, opts.Timeout)

	_, err = parseMigrateFlags([]string{"-timeout", "0s"})
	assert.ErrorContains(t, err, "--timeout must be greater than zero")
}

func TestConfirmAction(t *testing.T) {
	assert.NoError(t, confirmAction(strings.NewReader(""), true, "skip"))
	assert.NoError(t, confirmAction(strings.NewReader("y\n"), false, "delete?"))
	assert.NoError(t, confirmAction(strings.NewReader(" YES \n"), false, "delete?"))
	assert.ErrorContains(t, confirmAction(strings.NewReader("n\n"), false, "delete?"), "aborted by user")
	assert.ErrorContains(t, confirmAction(strings.NewReader(""), false, "delete?"), "aborted by user")
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList(" a ,, b "))
}

func TestRunCreateUser_MemoryBackends(t *testing.T) {
	cmdCtx := testCommandContext(t)
	err := runCreateUser(cmdCtx, []string{
		"-username", "alice", "-email", "alice@example.com", "-password", "correct-horse",
	})
	require.NoError(t, err)

	err = runCreateUser(cmdCtx, []string{"-username", "x", "-email", "x@example.com", "-password", "correct-horse"})
	assert.Error(t, err)
}

func TestRunRemoveExpired_MemoryBackends(t *testing.T) {
	require.NoError(t, runRemoveExpired(testCommandContext(t), nil))
}

func TestRunLogoutUser_UnknownUser(t *testing.T) {
	err := runLogoutUser(testCommandContext(t), []string{"-user", "nobody"})
	assert.Error(t, err)
}
