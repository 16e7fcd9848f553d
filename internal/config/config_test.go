package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"HTTP_PORT", "DB_PATH", "STORE_BACKEND", "REDIS_ADDR", "CACHE_TTL", "KAFKA_BROKERS",
	"CATALOG_TOPIC", "ORDERS_TOPIC", "OUTBOX_INTERVAL", "REQUEST_TIMEOUT", "SHUTDOWN_TIMEOUT",
	"USER_ID", "USER_NAME", "USER_SURNAME", "USER_RUN", "USER_BIRTH_DATE", "USER_EMAIL",
}

// clearEnv blanks every key for the test; getEnv treats empty as unset.
func clearEnv(t *testing.T) {
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "./storefront.db", cfg.DBPath)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "catalog-updates", cfg.CatalogTopic)
	assert.Nil(t, cfg.User)
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CACHE_TTL", "2m")
	t.Setenv("USER_ID", "12")
	t.Setenv("USER_NAME", "Misty")
	t.Setenv("USER_RUN", "22.222.222-2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	require.NotNil(t, cfg.User)
	assert.Equal(t, int64(12), cfg.User.ID)
	assert.Equal(t, "Misty", cfg.User.Name)
	assert.Equal(t, []string{"surname", "birth_date"}, cfg.User.MissingProfileFields())
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_PATH", "/from/env.db")
	// godotenv never overrides a variable that exists, even when empty
	require.NoError(t, os.Unsetenv("HTTP_PORT"))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_PORT=9999\nDB_PATH=/from/file.db\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.HTTPPort)
	assert.Equal(t, "/from/env.db", cfg.DBPath)
}

func TestLoad_MissingEnvFileIsFine(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	for name, env := range map[string][2]string{
		"duration": {"REQUEST_TIMEOUT", "soon"},
		"backend":  {"STORE_BACKEND", "mongo"},
		"user id":  {"USER_ID", "abc"},
	} {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(env[0], env[1])
			_, err := Load("")
			assert.ErrorContains(t, err, env[0])
		})
	}
}
