package gateway

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/restaurant/pkg/apierror"
	"github.com/nao1215/restaurant/pkg/httpclient"
	"github.com/nao1215/restaurant/pkg/middleware"
	"github.com/nao1215/restaurant/pkg/token"
)

// authRateLimitedPaths はレート制限の対象パス。総当たり攻撃を受けやすい。
var authRateLimitedPaths = []string{"/api/auth/login", "/api/auth/register"}

// hopByHopHeaders は転送しないヘッダー。
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// routes は転送ルール。プレフィックスの長い順に並ぶ。
	routes []Route
	// proxyClient は内部サービスへの転送に使うHTTPクライアント。
	proxyClient *http.Client
}

// NewServer は新しいGatewayサーバーを生成する。
func NewServer(cfg *Config) (*Server, error) {
	codec, err := token.NewCodec(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	identityClient := httpclient.New(cfg.IdentityURL, httpclient.WithTimeout(cfg.RevocationTimeout))
	auth := NewAuthenticator(codec, cfg.Whitelist, identityClient)
	return newServer(cfg, auth), nil
}

// newServer はルーティング済みのサーバーを生成する。
func newServer(cfg *Config, auth *Authenticator) *Server {
	routes := append([]Route(nil), cfg.Routes...)
	sort.SliceStable(routes, func(i, j int) bool {
		return len(routes[i].Prefix) > len(routes[j].Prefix)
	})

	router := gin.New()
	// gatewayはエッジに置かれるため、既定ではどのプロキシも信頼しない
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		slog.Warn("TRUSTED_PROXIESが不正なため、どのプロキシも信頼しません", "error", err)
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger("gateway"))
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(limitPaths(middleware.NewRateLimiter(cfg.AuthRateLimitRPM).Handler(), authRateLimitedPaths...))
	router.Use(auth.Handler())

	s := &Server{
		router:      router,
		port:        cfg.Port,
		routes:      routes,
		proxyClient: &http.Client{Timeout: cfg.ProxyTimeout},
	}
	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はルーティングを設定する。
// /health 以外はすべて転送ルールに従って内部サービスへプロキシする。
func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
	s.router.NoRoute(s.handleProxy())
}

// limitPaths は指定パスへのリクエストだけに handler を適用するミドルウェアを返す。
func limitPaths(handler gin.HandlerFunc, paths ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, p := range paths {
			if c.Request.URL.Path == p {
				handler(c)
				return
			}
		}
		c.Next()
	}
}

// upstreamFor はパスに対応する転送先を最長一致で返す。
func (s *Server) upstreamFor(path string) (string, bool) {
	for _, r := range s.routes {
		p := strings.TrimSuffix(r.Prefix, "/")
		if path == p || strings.HasPrefix(path, p+"/") {
			return r.Upstream, true
		}
	}
	return "", false
}

// handleProxy は転送ルールに従ってリクエストを内部サービスにプロキシするハンドラを返す。
func (s *Server) handleProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		upstream, ok := s.upstreamFor(c.Request.URL.Path)
		if !ok {
			apierror.Respond(c, apierror.New(apierror.KindNotFound, "指定されたパスは存在しません"))
			return
		}

		url := strings.TrimSuffix(upstream, "/") + c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			url += "?" + c.Request.URL.RawQuery
		}
		s.doProxy(c, url)
	}
}

// doProxy はリクエストを内部サービスにプロキシする共通処理。
// Authorizationヘッダーは転送せず、認証結果は信頼済みヘッダーだけで伝える。
func (s *Server) doProxy(c *gin.Context, url string) {
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, url, c.Request.Body)
	if err != nil {
		apierror.Respond(c, fmt.Errorf("プロキシリクエストの作成に失敗: %w", err))
		return
	}

	req.Header = c.Request.Header.Clone()
	for _, h := range hopByHopHeaders {
		req.Header.Del(h)
	}
	req.Header.Del("Authorization")
	req.Header.Set("X-Forwarded-For", c.ClientIP())
	req.ContentLength = c.Request.ContentLength

	resp, err := s.proxyClient.Do(req)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "プロキシエラー", "url", url, "error", err)
		apierror.Respond(c, apierror.New(apierror.KindUpstreamUnavailable, "内部サービスとの通信に失敗しました"))
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		c.Writer.Header()[key] = append([]string(nil), values...)
	}
	for _, h := range hopByHopHeaders {
		c.Writer.Header().Del(h)
	}
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		slog.WarnContext(c.Request.Context(), "レスポンスの転送に失敗", "url", url, "error", err)
	}
}
