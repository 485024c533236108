package identity

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/restaurant/internal/identity/migrations"
	"github.com/nao1215/restaurant/pkg/apierror"
	"github.com/nao1215/restaurant/pkg/authz"
	"github.com/nao1215/restaurant/pkg/database"
	"github.com/nao1215/restaurant/pkg/event"
	"github.com/nao1215/restaurant/pkg/middleware"
	"github.com/nao1215/restaurant/pkg/migration"
	"github.com/nao1215/restaurant/pkg/token"
)

// Server は認証基盤サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はデータベース接続。
	db *sql.DB
	// service はIDのライフサイクル操作。
	service *Service
	// checker は失効チェック。
	checker *RevocationChecker
}

// NewServer は設定に従ってデータベースを開き、マイグレーションを適用してサーバーを生成する。
func NewServer(ctx context.Context, cfg *Config) (*Server, error) {
	db, dialect, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := migration.Run(ctx, db, migrations.FS, string(dialect)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("マイグレーションに失敗: %w", err)
	}

	codec, err := token.NewCodec(cfg.JWTSecret)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	issuer, err := token.NewIssuer(codec, cfg.JWTTTL)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	store := NewSQLStore(db)
	svc, err := NewService(store, issuer, cfg.BcryptCost, WithEmitter(event.NewEmitter(cfg.EventStoreURL)))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if cfg.BootstrapAdminEmail != "" {
		if err := svc.EnsureAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	s := newServer(cfg.Port, svc, NewRevocationChecker(store))
	s.db = db
	return s, nil
}

// newServer はルーティング済みのサーバーを生成する。
func newServer(port string, svc *Service, checker *RevocationChecker) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger("identity"))

	s := &Server{
		router:  router,
		port:    port,
		service: svc,
		checker: checker,
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

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	auth := s.router.Group("/api/auth")
	{
		// 登録とログインはgatewayのホワイトリスト対象
		auth.POST("/register", s.handleRegister())
		auth.POST("/login", s.handleLogin())
		auth.POST("/change-password", middleware.RequireAuthenticated(), s.handleChangePassword())
	}

	users := s.router.Group("/api/users")
	{
		users.GET("/me", middleware.RequireAuthenticated(), s.handleMe())
		users.PUT("/:email/role", middleware.RequireRole(authz.RoleAdmin), s.handleChangeRole())
	}

	// gatewayからのみ呼ばれる失効チェック
	s.router.POST("/internal/tokens/check", s.handleCheck())

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "identity"})
	})
}

// credentialsRequest は登録・ログインリクエストのJSON構造。
type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// changePasswordRequest はパスワード変更リクエストのJSON構造。
type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

// changeRoleRequest はロール変更リクエストのJSON構造。
type changeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// checkRequest は失効チェックリクエストのJSON構造。
type checkRequest struct {
	Email    string    `json:"email" binding:"required"`
	IssuedAt time.Time `json:"issuedAt"`
}

// checkResponse は失効チェックのレスポンス。
type checkResponse struct {
	Status string `json:"status"`
	Role   string `json:"role,omitempty"`
}

// sessionResponse はトークンを含むレスポンス。
type sessionResponse struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// profileResponse はプロフィールのレスポンス。
type profileResponse struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	Role               string    `json:"role"`
	CreatedAt          time.Time `json:"createdAt"`
	PasswordModifiedAt time.Time `json:"passwordModifiedAt"`
}

func toSessionResponse(sess Session) sessionResponse {
	return sessionResponse{
		Token:     sess.Token.Value,
		Email:     sess.Identity.Email,
		Role:      string(sess.Identity.Role),
		ExpiresAt: sess.Token.ExpiresAt,
	}
}

func toProfileResponse(id Identity) profileResponse {
	return profileResponse{
		ID:                 id.ID,
		Email:              id.Email,
		Role:               string(id.Role),
		CreatedAt:          id.CreatedAt,
		PasswordModifiedAt: id.PasswordModifiedAt,
	}
}

// badRequest はバインドエラーを400として返す。
func badRequest(c *gin.Context, err error) {
	apierror.Respond(c, apierror.New(apierror.KindBadRequest, "リクエストが不正です").WithDetails(err.Error()))
}

// handleRegister は登録を処理するハンドラを返す。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		sess, err := s.service.Register(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, toSessionResponse(sess))
	}
}

// handleLogin はログインを処理するハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		sess, err := s.service.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, toSessionResponse(sess))
	}
}

// handleChangePassword はパスワード変更を処理するハンドラを返す。
// 対象は信頼済みヘッダーのメールアドレスで、リクエストボディでは指定できない。
func (s *Server) handleChangePassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req changePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		sess, err := s.service.ChangePassword(c.Request.Context(), middleware.UserEmail(c), req.CurrentPassword, req.NewPassword)
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, toSessionResponse(sess))
	}
}

// handleMe は呼び出し元のプロフィールを返すハンドラを返す。
func (s *Server) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := s.service.Profile(c.Request.Context(), middleware.UserEmail(c))
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, toProfileResponse(id))
	}
}

// handleChangeRole はロール変更を処理するハンドラを返す。
func (s *Server) handleChangeRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req changeRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		id, err := s.service.ChangeRole(c.Request.Context(), middleware.UserEmail(c), c.Param("email"), req.Role)
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, toProfileResponse(id))
	}
}

// handleCheck は失効チェックを処理するハンドラを返す。
// 有効なら200、失効なら403、IDが無ければ404を返す。状態は変更しない。
func (s *Server) handleCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req checkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		if req.IssuedAt.IsZero() {
			apierror.Respond(c, apierror.New(apierror.KindBadRequest, "issuedAtは必須です"))
			return
		}

		result, err := s.checker.Check(c.Request.Context(), req.Email, req.IssuedAt)
		if err != nil {
			apierror.Respond(c, err)
			return
		}

		switch result.Status {
		case StatusValid:
			c.JSON(http.StatusOK, checkResponse{Status: string(StatusValid), Role: string(result.Role)})
		case StatusOutdated:
			c.JSON(http.StatusForbidden, checkResponse{Status: string(StatusOutdated)})
		default:
			c.JSON(http.StatusNotFound, checkResponse{Status: string(StatusIdentityNotFound)})
		}
	}
}
