package gateway

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nao1215/restaurant/pkg/config"
	"github.com/nao1215/restaurant/pkg/token"
)

// DefaultWhitelist は認証を行わないパスのプレフィックス。
var DefaultWhitelist = []string{"/api/auth/register", "/api/auth/login", "/health"}

// Route はパスのプレフィックスと転送先サービスの対応。
type Route struct {
	Prefix   string `yaml:"prefix"`
	Upstream string `yaml:"upstream"`
}

// Config はgatewayサービスの設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// JWTSecret はトークン検証用の共有秘密鍵。
	JWTSecret string
	// IdentityURL は認証基盤のベースURL。失効チェックの問い合わせ先。
	IdentityURL string
	// Whitelist は認証を行わないパスのプレフィックス。
	Whitelist []string
	// Routes は転送ルール。最長一致で選ばれる。
	Routes []Route
	// RevocationTimeout は失効チェック1回あたりのタイムアウト。
	RevocationTimeout time.Duration
	// ProxyTimeout は内部サービスへの転送1回あたりのタイムアウト。
	ProxyTimeout time.Duration
	// CORSOrigins はCORSを許可するオリジン。空の場合はCORSヘッダーを付与しない。
	CORSOrigins []string
	// AuthRateLimitRPM は登録・ログインに対するクライアントIPごとの毎分リクエスト上限。
	AuthRateLimitRPM int
	// TrustedProxies はX-Forwarded-Forを信頼する前段プロキシのIPまたはCIDR。
	// 空の場合は接続元アドレスをクライアントIPとする。
	TrustedProxies []string
}

// routesFile はGATEWAY_ROUTES_FILEで指定するYAMLの構造。
type routesFile struct {
	Whitelist []string `yaml:"whitelist"`
	Routes    []Route  `yaml:"routes"`
}

// LoadConfig は環境変数から設定を読み込み、検証する。
// GATEWAY_ROUTES_FILEが指定されていれば、そのファイルの転送ルールとホワイトリストで上書きする。
func LoadConfig() (*Config, error) {
	identityURL := config.String("IDENTITY_URL", "http://localhost:8081")
	cfg := &Config{
		Port:              config.String("PORT", "8080"),
		JWTSecret:         config.String("JWT_SECRET", ""),
		IdentityURL:       identityURL,
		Whitelist:         config.CSV("WHITELIST_PATHS", DefaultWhitelist),
		RevocationTimeout: config.Duration("REVOCATION_TIMEOUT", 5*time.Second),
		ProxyTimeout:      config.Duration("PROXY_TIMEOUT", 30*time.Second),
		CORSOrigins:       config.CSV("CORS_ORIGINS", nil),
		AuthRateLimitRPM:  config.Int("AUTH_RATE_LIMIT_RPM", 30),
		TrustedProxies:    config.CSV("TRUSTED_PROXIES", nil),
		Routes: DefaultRoutes(
			identityURL,
			config.String("MENU_URL", "http://localhost:8082"),
			config.String("ORDER_URL", "http://localhost:8083"),
			config.String("EVENTSTORE_URL", "http://localhost:8084"),
		),
	}

	if path := config.String("GATEWAY_ROUTES_FILE", ""); path != "" {
		if err := cfg.applyRoutesFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultRoutes は各サービスのURLから標準の転送ルールを組み立てる。
func DefaultRoutes(identityURL, menuURL, orderURL, eventstoreURL string) []Route {
	return []Route{
		{Prefix: "/api/auth", Upstream: identityURL},
		{Prefix: "/api/users", Upstream: identityURL},
		{Prefix: "/api/categories", Upstream: menuURL},
		{Prefix: "/api/menu-items", Upstream: menuURL},
		{Prefix: "/api/tables", Upstream: orderURL},
		{Prefix: "/api/orders", Upstream: orderURL},
		{Prefix: "/api/events", Upstream: eventstoreURL},
	}
}

// applyRoutesFile はYAMLファイルの内容で転送ルールとホワイトリストを上書きする。
// ファイルで指定されなかった項目は元の値を維持する。
func (c *Config) applyRoutesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ルーティングファイルの読み込みに失敗: %w", err)
	}
	var f routesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("ルーティングファイルの解析に失敗: %w", err)
	}
	if len(f.Routes) > 0 {
		c.Routes = f.Routes
	}
	if f.Whitelist != nil {
		c.Whitelist = f.Whitelist
	}
	return nil
}

// Validate は設定値を検証する。
func (c *Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < token.MinSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRETは%dバイト以上が必要です", token.MinSecretLength))
	}
	if err := validateBaseURL(c.IdentityURL); err != nil {
		errs = append(errs, fmt.Errorf("IDENTITY_URL: %w", err))
	}
	if c.RevocationTimeout <= 0 {
		errs = append(errs, errors.New("REVOCATION_TIMEOUTは正の値が必要です"))
	}
	if c.ProxyTimeout <= 0 {
		errs = append(errs, errors.New("PROXY_TIMEOUTは正の値が必要です"))
	}
	for _, p := range c.Whitelist {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("ホワイトリストのパスは/で始まる必要があります: %q", p))
		}
	}
	for _, r := range c.Routes {
		if !strings.HasPrefix(r.Prefix, "/") {
			errs = append(errs, fmt.Errorf("転送ルールのプレフィックスは/で始まる必要があります: %q", r.Prefix))
		}
		if err := validateBaseURL(r.Upstream); err != nil {
			errs = append(errs, fmt.Errorf("転送先 %q: %w", r.Prefix, err))
		}
	}
	for _, p := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			errs = append(errs, fmt.Errorf("TRUSTED_PROXIESにはIPアドレスかCIDRを指定してください: %q", p))
		}
	}
	return errors.Join(errs...)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("http(s)の絶対URLが必要です: %q", raw)
	}
	return nil
}
