package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvVars = []string{
	"JDF_APP_NAME",
	"JDF_APP_ENV",
	"JDF_APP_PORT",
	"JDF_DATABASE_HOST",
	"JDF_DATABASE_PORT",
	"JDF_DATABASE_USER",
	"JDF_DATABASE_PASSWORD",
	"JDF_DATABASE_DBNAME",
	"JDF_DATABASE_SSLMODE",
	"JDF_DATABASE_MAX_OPEN_CONNS",
	"JDF_DATABASE_MAX_IDLE_CONNS",
	"JDF_JWT_SECRET",
	"JDF_STRIPE_SECRET_KEY",
	"JDF_STRIPE_WEBHOOK_SECRET",
	"JDF_RAZORPAY_KEY_ID",
	"JDF_RAZORPAY_KEY_SECRET",
	"JDF_HTTP_CORS_ALLOW_ORIGINS",
}

// saveEnv snapshots the config env vars and restores them when the test ends
func saveEnv(t *testing.T) func() {
	t.Helper()
	original := map[string]string{}
	for _, k := range configEnvVars {
		original[k] = os.Getenv(k)
	}
	return func() {
		for k, v := range original {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}
}

func clearEnv() {
	for _, k := range configEnvVars {
		os.Unsetenv(k)
	}
}

func TestLoad(t *testing.T) {
	defer saveEnv(t)()

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "jdfresh-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "postgres", cfg.Database.User)
		assert.Equal(t, "", cfg.Database.Password)
		assert.Equal(t, "jdfresh", cfg.Database.DBName)
		assert.Equal(t, "disable", cfg.Database.SSLMode)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, "https://api.razorpay.com/v1", cfg.Razorpay.BaseURL)
		assert.Equal(t, 10000, cfg.Realtime.MaxClients)
	})

	t.Run("loads values from environment variables with JDF prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("JDF_APP_NAME", "test-app")
		os.Setenv("JDF_APP_ENV", "testing")
		os.Setenv("JDF_APP_PORT", "9000")
		os.Setenv("JDF_DATABASE_HOST", "testdb.local")
		os.Setenv("JDF_DATABASE_PORT", "5433")
		os.Setenv("JDF_DATABASE_USER", "testuser")
		os.Setenv("JDF_DATABASE_PASSWORD", "testpass")
		os.Setenv("JDF_DATABASE_DBNAME", "testdb")
		os.Setenv("JDF_DATABASE_SSLMODE", "require")
		os.Setenv("JDF_DATABASE_MAX_OPEN_CONNS", "50")
		os.Setenv("JDF_DATABASE_MAX_IDLE_CONNS", "10")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "testing", cfg.App.Env)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "testuser", cfg.Database.User)
		assert.Equal(t, "testpass", cfg.Database.Password)
		assert.Equal(t, "testdb", cfg.Database.DBName)
		assert.Equal(t, "require", cfg.Database.SSLMode)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv()
		os.Setenv("JDF_DATABASE_MAX_OPEN_CONNS", "10")
		os.Setenv("JDF_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("zero MaxOpenConns uses default", func(t *testing.T) {
		clearEnv()
		os.Setenv("JDF_DATABASE_MAX_OPEN_CONNS", "0")

		cfg, err := Load()
		require.NoError(t, err)
		// 0 is treated as "not set", so default (25) is used
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	})

	t.Run("validates MaxIdleConns cannot be negative", func(t *testing.T) {
		clearEnv()
		os.Setenv("JDF_DATABASE_MAX_IDLE_CONNS", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns cannot be negative")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	defer saveEnv(t)()

	// Helper to set valid production base config
	setValidProductionBase := func() {
		os.Setenv("JDF_APP_ENV", "production")
		os.Setenv("JDF_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		os.Setenv("JDF_DATABASE_PASSWORD", "secure-password")
		os.Setenv("JDF_DATABASE_SSLMODE", "require")
		os.Setenv("JDF_STRIPE_SECRET_KEY", "sk_test_123")
		os.Setenv("JDF_STRIPE_WEBHOOK_SECRET", "whsec_123")
		os.Setenv("JDF_RAZORPAY_KEY_ID", "rzp_test_123")
		os.Setenv("JDF_RAZORPAY_KEY_SECRET", "rzp_secret_123")
	}

	t.Run("requires jwt.secret in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Unsetenv("JDF_JWT_SECRET")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret is required in production")
	})

	t.Run("requires jwt.secret at least 32 characters in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("JDF_JWT_SECRET", "short-secret")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret must be at least 32 characters")
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Unsetenv("JDF_DATABASE_PASSWORD")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("JDF_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("requires stripe keys in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Unsetenv("JDF_STRIPE_SECRET_KEY")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stripe.secret_key")
	})

	t.Run("requires razorpay keys in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Unsetenv("JDF_RAZORPAY_KEY_SECRET")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "razorpay.key_id")
	})

	t.Run("rejects wildcard CORS origin in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("JDF_HTTP_CORS_ALLOW_ORIGINS", "*")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cors_allow_origins cannot be '*'")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost")
		assert.Contains(t, dsn, "5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		// URL-encoded password should be in the DSN
		assert.Contains(t, dsn, "pass%40word%23123")
	})

	t.Run("handles empty password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.NotEmpty(t, dsn)
	})
}
