package order

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/nao1215/restaurant/pkg/config"
)

// Config は注文サービスの設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// DatabaseURL は sqlite:// または postgres:// 形式の接続先。
	DatabaseURL string
	// MenuURL はメニューサービスのベースURL。注文明細の価格の取得に使う。
	MenuURL string
	// MenuTimeout はメニューサービスへの問い合わせ1回あたりのタイムアウト。
	MenuTimeout time.Duration
	// EventStoreURL は監査イベントの送信先。空の場合は送信しない。
	EventStoreURL string
}

// LoadConfig は環境変数から設定を読み込み、検証する。
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:          config.String("PORT", "8083"),
		DatabaseURL:   config.String("DATABASE_URL", "sqlite://data/order.db"),
		MenuURL:       config.String("MENU_URL", "http://localhost:8082"),
		MenuTimeout:   config.Duration("MENU_TIMEOUT", 5*time.Second),
		EventStoreURL: config.String("EVENTSTORE_URL", ""),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値を検証する。
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URLは必須です"))
	}
	if u, err := url.Parse(c.MenuURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("MENU_URLはhttp(s)の絶対URLが必要です: %q", c.MenuURL))
	}
	if c.MenuTimeout <= 0 {
		errs = append(errs, errors.New("MENU_TIMEOUTは正の値が必要です"))
	}
	return errors.Join(errs...)
}
