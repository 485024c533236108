package identity

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/restaurant/pkg/config"
	"github.com/nao1215/restaurant/pkg/token"
)

// Config は認証基盤サービスの設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// JWTSecret はトークン署名用の共有秘密鍵。gatewayと同じ値を設定する。
	JWTSecret string
	// JWTTTL はトークンの有効期間。
	JWTTTL time.Duration
	// DatabaseURL は sqlite:// または postgres:// 形式の接続先。
	DatabaseURL string
	// BcryptCost はパスワードハッシュのコスト。
	BcryptCost int
	// EventStoreURL は監査イベントの送信先。空の場合は送信しない。
	EventStoreURL string
	// BootstrapAdminEmail と BootstrapAdminPassword が両方設定されている場合、
	// 起動時にそのメールアドレスのADMINアカウントを作成する。
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// LoadConfig は環境変数から設定を読み込み、検証する。
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:                   config.String("PORT", "8081"),
		JWTSecret:              config.String("JWT_SECRET", ""),
		JWTTTL:                 config.Duration("JWT_TTL", 24*time.Hour),
		DatabaseURL:            config.String("DATABASE_URL", "sqlite://data/identity.db"),
		BcryptCost:             config.Int("BCRYPT_COST", bcrypt.DefaultCost),
		EventStoreURL:          config.String("EVENTSTORE_URL", ""),
		BootstrapAdminEmail:    config.String("BOOTSTRAP_ADMIN_EMAIL", ""),
		BootstrapAdminPassword: config.String("BOOTSTRAP_ADMIN_PASSWORD", ""),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値を検証する。
func (c *Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < token.MinSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRETは%dバイト以上が必要です", token.MinSecretLength))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTLは正の値が必要です"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URLは必須です"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COSTは%dから%dの範囲で指定してください", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if (c.BootstrapAdminEmail == "") != (c.BootstrapAdminPassword == "") {
		errs = append(errs, errors.New("BOOTSTRAP_ADMIN_EMAILとBOOTSTRAP_ADMIN_PASSWORDは両方指定してください"))
	}
	return errors.Join(errs...)
}
