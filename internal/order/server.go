package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nao1215/restaurant/internal/order/migrations"
	"github.com/nao1215/restaurant/pkg/apierror"
	"github.com/nao1215/restaurant/pkg/authz"
	"github.com/nao1215/restaurant/pkg/database"
	"github.com/nao1215/restaurant/pkg/event"
	"github.com/nao1215/restaurant/pkg/httpclient"
	"github.com/nao1215/restaurant/pkg/middleware"
	"github.com/nao1215/restaurant/pkg/migration"
)

// Server は注文サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はデータベース接続。
	db *sql.DB
	// store はテーブルと注文の永続化。
	store Store
	// service は注文の操作。
	service *Service
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

	store := NewSQLStore(db)
	catalog := NewHTTPCatalog(httpclient.New(cfg.MenuURL, httpclient.WithTimeout(cfg.MenuTimeout)))
	s := newServer(cfg.Port, store, NewService(store, catalog, event.NewEmitter(cfg.EventStoreURL)))
	s.db = db
	return s, nil
}

// newServer はルーティング済みのサーバーを生成する。
func newServer(port string, store Store, svc *Service) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger("order"))

	s := &Server{
		router:  router,
		port:    port,
		store:   store,
		service: svc,
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
	anyRole := middleware.RequireAuthenticated()
	admin := middleware.RequireRole(authz.RoleAdmin)
	staff := middleware.RequireRole(authz.RoleSupervisor, authz.RoleAdmin)

	tables := s.router.Group("/api/tables")
	{
		tables.GET("", anyRole, s.handleListTables())
		tables.POST("", admin, s.handleCreateTable())
		tables.DELETE("/:id", admin, s.handleDeleteTable())
	}

	orders := s.router.Group("/api/orders")
	{
		orders.POST("", anyRole, s.handlePlaceOrder())
		orders.GET("", anyRole, s.handleListOrders())
		orders.GET("/:id", anyRole, s.handleGetOrder())
		orders.PUT("/:id/status", staff, s.handleChangeStatus())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "order"})
	})
}

// tableRequest はテーブル作成リクエストのJSON構造。
type tableRequest struct {
	Name  string `json:"name" binding:"required,max=50"`
	Seats int    `json:"seats" binding:"required,gt=0,lte=100"`
}

// placeOrderRequest は注文リクエストのJSON構造。
type placeOrderRequest struct {
	TableID int64              `json:"tableId" binding:"required,gt=0"`
	Items   []orderLineRequest `json:"items" binding:"required,min=1,dive"`
}

// orderLineRequest は注文明細リクエストのJSON構造。
type orderLineRequest struct {
	MenuItemID int64 `json:"menuItemId" binding:"required,gt=0"`
	Quantity   int   `json:"quantity" binding:"required,gt=0"`
}

// statusRequest はステータス変更リクエストのJSON構造。
type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// tableResponse はテーブルのレスポンス。
type tableResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Seats     int       `json:"seats"`
	CreatedAt time.Time `json:"createdAt"`
}

// lineResponse は注文明細のレスポンス。
type lineResponse struct {
	MenuItemID     int64  `json:"menuItemId"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	Quantity       int    `json:"quantity"`
}

// orderResponse は注文のレスポンス。一覧では items を省略する。
type orderResponse struct {
	ID         string         `json:"id"`
	TableID    int64          `json:"tableId"`
	PlacedBy   string         `json:"placedBy"`
	Status     string         `json:"status"`
	TotalCents int64          `json:"totalCents"`
	Items      []lineResponse `json:"items,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

func toTableResponse(t Table) tableResponse {
	return tableResponse{ID: t.ID, Name: t.Name, Seats: t.Seats, CreatedAt: t.CreatedAt}
}

func toOrderResponse(o Order) orderResponse {
	resp := orderResponse{
		ID:         o.ID,
		TableID:    o.TableID,
		PlacedBy:   o.PlacedBy,
		Status:     string(o.Status),
		TotalCents: o.TotalCents,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
	for _, l := range o.Lines {
		resp.Items = append(resp.Items, lineResponse(l))
	}
	return resp
}

// actor は信頼済みヘッダーから主体を組み立てる。ロールはミドルウェアで検証済み。
func actor(c *gin.Context) Actor {
	role, _ := authz.ParseRole(middleware.UserRole(c))
	return Actor{Email: middleware.UserEmail(c), Role: role}
}

// bindJSON はリクエストボディをバインドする。失敗時は400を返してfalseを返す。
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		apierror.Respond(c, apierror.New(apierror.KindBadRequest, "リクエストが不正です").WithDetails(err.Error()))
		return false
	}
	return true
}

// orderID はパスパラメータの注文IDを読み取る。UUIDでなければ404を返してfalseを返す。
func orderID(c *gin.Context) (string, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierror.Respond(c, apierror.New(apierror.KindNotFound, "注文が見つかりません"))
		return "", false
	}
	return id.String(), true
}

// handleListTables はテーブル一覧を返すハンドラを返す。
func (s *Server) handleListTables() gin.HandlerFunc {
	return func(c *gin.Context) {
		tables, err := s.store.ListTables(c.Request.Context())
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		resp := make([]tableResponse, 0, len(tables))
		for _, t := range tables {
			resp = append(resp, toTableResponse(t))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleCreateTable はテーブルを作成するハンドラを返す。
func (s *Server) handleCreateTable() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tableRequest
		if !bindJSON(c, &req) {
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			apierror.Respond(c, apierror.New(apierror.KindBadRequest, "テーブル名は必須です"))
			return
		}

		t, err := s.store.CreateTable(c.Request.Context(), name, req.Seats, s.service.now().UTC())
		if errors.Is(err, ErrTableNameTaken) {
			apierror.Respond(c, apierror.New(apierror.KindConflict, "同じ名前のテーブルが既に存在します"))
			return
		}
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, toTableResponse(t))
	}
}

// handleDeleteTable はテーブルを削除するハンドラを返す。
func (s *Server) handleDeleteTable() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			apierror.Respond(c, apierror.New(apierror.KindBadRequest, "IDは正の整数で指定してください"))
			return
		}

		err = s.store.DeleteTable(c.Request.Context(), id)
		switch {
		case errors.Is(err, ErrNotFound):
			apierror.Respond(c, apierror.New(apierror.KindNotFound, "テーブルが見つかりません"))
		case errors.Is(err, ErrTableInUse):
			apierror.Respond(c, apierror.New(apierror.KindConflict, "注文があるテーブルは削除できません"))
		case err != nil:
			apierror.Respond(c, err)
		default:
			c.Status(http.StatusNoContent)
		}
	}
}

// handlePlaceOrder は注文を作成するハンドラを返す。注文の所有者は呼び出し元になる。
func (s *Server) handlePlaceOrder() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req placeOrderRequest
		if !bindJSON(c, &req) {
			return
		}
		lines := make([]LineRequest, 0, len(req.Items))
		for _, item := range req.Items {
			lines = append(lines, LineRequest{MenuItemID: item.MenuItemID, Quantity: item.Quantity})
		}

		ctx := httpclient.WithRequestID(c.Request.Context(), c.GetHeader(middleware.HeaderRequestID))
		o, err := s.service.PlaceOrder(ctx, actor(c), req.TableID, lines)
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, toOrderResponse(o))
	}
}

// handleListOrders は注文一覧を返すハンドラを返す。statusクエリパラメータで絞り込める。
func (s *Server) handleListOrders() gin.HandlerFunc {
	return func(c *gin.Context) {
		var status Status
		if raw := c.Query("status"); raw != "" {
			st, ok := ParseStatus(raw)
			if !ok {
				apierror.Respond(c, apierror.Newf(apierror.KindBadRequest, "不明なステータスです: %s", raw))
				return
			}
			status = st
		}

		orders, err := s.service.Orders(c.Request.Context(), actor(c), status)
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		resp := make([]orderResponse, 0, len(orders))
		for _, o := range orders {
			resp = append(resp, toOrderResponse(o))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleGetOrder は明細を含む注文を返すハンドラを返す。
func (s *Server) handleGetOrder() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}
		o, err := s.service.Order(c.Request.Context(), actor(c), id)
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, toOrderResponse(o))
	}
}

// handleChangeStatus は注文ステータスを変更するハンドラを返す。
func (s *Server) handleChangeStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}
		var req statusRequest
		if !bindJSON(c, &req) {
			return
		}
		status, ok := ParseStatus(req.Status)
		if !ok {
			apierror.Respond(c, apierror.Newf(apierror.KindBadRequest, "不明なステータスです: %s", req.Status))
			return
		}

		o, err := s.service.ChangeStatus(c.Request.Context(), actor(c), id, status)
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, toOrderResponse(o))
	}
}
