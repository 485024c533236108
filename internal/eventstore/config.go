package eventstore

import (
	"errors"

	"github.com/nao1215/restaurant/pkg/config"
)

// Config はイベントストアサービスの設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// DatabaseURL は sqlite:// または postgres:// 形式の接続先。
	DatabaseURL string
}

// LoadConfig は環境変数から設定を読み込み、検証する。
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:        config.String("PORT", "8084"),
		DatabaseURL: config.String("DATABASE_URL", "sqlite://data/eventstore.db"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値を検証する。
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URLは必須です")
	}
	return nil
}
