package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("デフォルト値で読み込めること", func(t *testing.T) {
		t.Setenv("JWT_SECRET", testSecret)
		t.Setenv("JWT_TTL", "")
		t.Setenv("DATABASE_URL", "")
		t.Setenv("BOOTSTRAP_ADMIN_EMAIL", "")
		t.Setenv("BOOTSTRAP_ADMIN_PASSWORD", "")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
		assert.Equal(t, "sqlite://data/identity.db", cfg.DatabaseURL)
	})

	t.Run("短い秘密鍵はエラーになること", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "too-short")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_SECRET")
	})
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := Config{
		JWTSecret:   testSecret,
		JWTTTL:      time.Hour,
		DatabaseURL: "sqlite://:memory:",
		BcryptCost:  10,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "正常", mutate: func(*Config) {}},
		{name: "TTLが0", mutate: func(c *Config) { c.JWTTTL = 0 }, wantErr: "JWT_TTL"},
		{name: "DATABASE_URLが空", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: "DATABASE_URL"},
		{name: "bcryptコストが範囲外", mutate: func(c *Config) { c.BcryptCost = 99 }, wantErr: "BCRYPT_COST"},
		{name: "初期管理者のパスワードだけ未設定", mutate: func(c *Config) { c.BootstrapAdminEmail = "root@example.com" }, wantErr: "BOOTSTRAP_ADMIN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
