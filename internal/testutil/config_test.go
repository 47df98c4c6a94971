package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Run("defaults to local test database port 55432", func(t *testing.T) {
		for _, key := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME"} {
			t.Setenv(key, "")
		}
		assert.Equal(t, TestDBConfig{
			Host:     "localhost",
			Port:     "55432",
			User:     "docauth",
			Password: "docauth",
			DBName:   "docauth",
		}, DefaultTestDBConfig())
	})

	t.Run("respects TEST_DB_PORT environment variable", func(t *testing.T) {
		t.Setenv("TEST_DB_HOST", "postgres")
		t.Setenv("TEST_DB_PORT", "5432")
		cfg := DefaultTestDBConfig()
		assert.Equal(t, "postgres", cfg.Host)
		assert.Equal(t, "5432", cfg.Port)
	})
}

func TestGetTestMongoURI(t *testing.T) {
	t.Setenv("TEST_MONGO_URI", "")
	assert.Equal(t, "mongodb://localhost:57017/?directConnection=true", GetTestMongoURI())

	t.Setenv("TEST_MONGO_URI", "mongodb://mongo:27017")
	assert.Equal(t, "mongodb://mongo:27017", GetTestMongoURI())
}

func TestEnvBool(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", "y"} {
		t.Setenv("TEST_REQUIRE_INFRA", v)
		assert.True(t, envBool("TEST_REQUIRE_INFRA"), v)
		assert.True(t, requireMongo())
	}
	t.Setenv("TEST_REQUIRE_INFRA", "no")
	assert.False(t, envBool("TEST_REQUIRE_INFRA"))
}

func TestGenerateSchemaName(t *testing.T) {
	a, b := generateSchemaName(), generateSchemaName()
	assert.Regexp(t, `^t_[0-9a-f]{8}$`, a)
	assert.NotEqual(t, a, b)
}

func TestTestDBConfig_DSN(t *testing.T) {
	t.Setenv("DB_SSL_MODE", "")
	cfg := TestDBConfig{Host: "db", Port: "5432", User: "u", Password: "p@ss", DBName: "docauth"}
	assert.Equal(t, "postgres://u:p%40ss@db:5432/docauth?sslmode=disable", cfg.DSN(""))
	assert.Equal(t, "postgres://u:p%40ss@db:5432/docauth?search_path=t_1%2Cpublic&sslmode=disable", cfg.DSN("t_1"))
}
