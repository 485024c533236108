package menu

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

	"github.com/nao1215/restaurant/internal/menu/migrations"
	"github.com/nao1215/restaurant/pkg/apierror"
	"github.com/nao1215/restaurant/pkg/authz"
	"github.com/nao1215/restaurant/pkg/database"
	"github.com/nao1215/restaurant/pkg/event"
	"github.com/nao1215/restaurant/pkg/middleware"
	"github.com/nao1215/restaurant/pkg/migration"
)

// Server はメニューサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はデータベース接続。
	db *sql.DB
	// store はカテゴリとメニュー品目の永続化。
	store Store
	// events は監査イベントの送信先。
	events event.Emitter
	// now は現在時刻を返す。
	now func() time.Time
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

	s := newServer(cfg.Port, NewSQLStore(db), event.NewEmitter(cfg.EventStoreURL))
	s.db = db
	return s, nil
}

// newServer はルーティング済みのサーバーを生成する。
func newServer(port string, store Store, events event.Emitter) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger("menu"))

	s := &Server{
		router: router,
		port:   port,
		store:  store,
		events: events,
		now:    time.Now,
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
// 参照は認証済みの全ロール、変更はSUPERVISORとADMINに許可する。
func (s *Server) setupRoutes() {
	read := middleware.RequireAuthenticated()
	write := middleware.RequireRole(authz.RoleSupervisor, authz.RoleAdmin)

	categories := s.router.Group("/api/categories")
	{
		categories.GET("", read, s.handleListCategories())
		categories.POST("", write, s.handleCreateCategory())
		categories.PUT("/:id", write, s.handleRenameCategory())
		categories.DELETE("/:id", write, s.handleDeleteCategory())
	}

	items := s.router.Group("/api/menu-items")
	{
		items.GET("", read, s.handleListItems())
		items.GET("/:id", read, s.handleGetItem())
		items.POST("", write, s.handleCreateItem())
		items.PUT("/:id", write, s.handleUpdateItem())
		items.DELETE("/:id", write, s.handleDeleteItem())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "menu"})
	})
}

// categoryRequest はカテゴリの作成・変更リクエストのJSON構造。
type categoryRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

// itemRequest はメニュー品目の作成・更新リクエストのJSON構造。
// availableを省略した場合は提供中として扱う。
type itemRequest struct {
	CategoryID  int64  `json:"categoryId" binding:"required,gt=0"`
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description" binding:"max=1000"`
	PriceCents  *int64 `json:"priceCents" binding:"required,gte=0"`
	Available   *bool  `json:"available"`
}

// categoryResponse はカテゴリのレスポンス。
type categoryResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// itemResponse はメニュー品目のレスポンス。
type itemResponse struct {
	ID          int64     `json:"id"`
	CategoryID  int64     `json:"categoryId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"priceCents"`
	Available   bool      `json:"available"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toCategoryResponse(c Category) categoryResponse {
	return categoryResponse{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt}
}

func toItemResponse(item Item) itemResponse {
	return itemResponse{
		ID:          item.ID,
		CategoryID:  item.CategoryID,
		Name:        item.Name,
		Description: item.Description,
		PriceCents:  item.PriceCents,
		Available:   item.Available,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

// respondError はストアのエラーをAPIエラーに変換して返す。
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		apierror.Respond(c, apierror.New(apierror.KindNotFound, "指定されたリソースが見つかりません"))
	case errors.Is(err, ErrCategoryNotFound):
		apierror.Respond(c, apierror.New(apierror.KindBadRequest, "指定されたカテゴリが存在しません"))
	case errors.Is(err, ErrCategoryNameTaken):
		apierror.Respond(c, apierror.New(apierror.KindConflict, "同じ名前のカテゴリが既に存在します"))
	case errors.Is(err, ErrCategoryInUse):
		apierror.Respond(c, apierror.New(apierror.KindConflict, "メニュー品目が登録されているカテゴリは削除できません"))
	default:
		apierror.Respond(c, err)
	}
}

// bindJSON はリクエストボディをバインドする。失敗時は400を返してfalseを返す。
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		apierror.Respond(c, apierror.New(apierror.KindBadRequest, "リクエストが不正です").WithDetails(err.Error()))
		return false
	}
	return true
}

// paramID はパスパラメータのIDを読み取る。不正な場合は400を返してfalseを返す。
func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		apierror.Respond(c, apierror.New(apierror.KindBadRequest, "IDは正の整数で指定してください"))
		return 0, false
	}
	return id, true
}

// handleListCategories はカテゴリ一覧を返すハンドラを返す。
func (s *Server) handleListCategories() gin.HandlerFunc {
	return func(c *gin.Context) {
		categories, err := s.store.ListCategories(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		resp := make([]categoryResponse, 0, len(categories))
		for _, cat := range categories {
			resp = append(resp, toCategoryResponse(cat))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleCreateCategory はカテゴリを作成するハンドラを返す。
func (s *Server) handleCreateCategory() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req categoryRequest
		if !bindJSON(c, &req) {
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			apierror.Respond(c, apierror.New(apierror.KindBadRequest, "カテゴリ名は必須です"))
			return
		}

		cat, err := s.store.CreateCategory(c.Request.Context(), name, s.now().UTC())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, toCategoryResponse(cat))
	}
}

// handleRenameCategory はカテゴリ名を変更するハンドラを返す。
func (s *Server) handleRenameCategory() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		var req categoryRequest
		if !bindJSON(c, &req) {
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			apierror.Respond(c, apierror.New(apierror.KindBadRequest, "カテゴリ名は必須です"))
			return
		}

		cat, err := s.store.RenameCategory(c.Request.Context(), id, name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, toCategoryResponse(cat))
	}
}

// handleDeleteCategory はカテゴリを削除するハンドラを返す。
func (s *Server) handleDeleteCategory() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		if err := s.store.DeleteCategory(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handleListItems はメニュー品目一覧を返すハンドラを返す。
// categoryIdクエリパラメータでカテゴリを絞り込める。
func (s *Server) handleListItems() gin.HandlerFunc {
	return func(c *gin.Context) {
		var categoryID int64
		if raw := c.Query("categoryId"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				apierror.Respond(c, apierror.New(apierror.KindBadRequest, "categoryIdは正の整数で指定してください"))
				return
			}
			categoryID = id
		}

		items, err := s.store.ListItems(c.Request.Context(), categoryID)
		if err != nil {
			respondError(c, err)
			return
		}
		resp := make([]itemResponse, 0, len(items))
		for _, item := range items {
			resp = append(resp, toItemResponse(item))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleGetItem はメニュー品目を返すハンドラを返す。
func (s *Server) handleGetItem() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		item, err := s.store.GetItem(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, toItemResponse(item))
	}
}

// handleCreateItem はメニュー品目を作成するハンドラを返す。
// 作成後に MenuItemCreated イベントを記録する。
func (s *Server) handleCreateItem() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req itemRequest
		if !bindJSON(c, &req) {
			return
		}
		item, ok := req.toItem(c)
		if !ok {
			return
		}
		now := s.now().UTC()
		item.CreatedAt, item.UpdatedAt = now, now

		created, err := s.store.CreateItem(c.Request.Context(), item)
		if err != nil {
			respondError(c, err)
			return
		}

		event.Record(c.Request.Context(), s.events,
			strconv.FormatInt(created.ID, 10), event.AggregateTypeMenuItem, event.TypeMenuItemCreated,
			event.MenuItemCreatedData{
				Name:       created.Name,
				CategoryID: created.CategoryID,
				PriceCents: created.PriceCents,
				CreatedBy:  middleware.UserEmail(c),
			})
		c.JSON(http.StatusCreated, toItemResponse(created))
	}
}

// handleUpdateItem はメニュー品目を更新するハンドラを返す。
func (s *Server) handleUpdateItem() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		var req itemRequest
		if !bindJSON(c, &req) {
			return
		}
		item, ok := req.toItem(c)
		if !ok {
			return
		}
		item.ID = id
		item.UpdatedAt = s.now().UTC()

		updated, err := s.store.UpdateItem(c.Request.Context(), item)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, toItemResponse(updated))
	}
}

// handleDeleteItem はメニュー品目を削除するハンドラを返す。
func (s *Server) handleDeleteItem() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		if err := s.store.DeleteItem(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// toItem はリクエストを Item に変換する。名前が空白だけの場合は400を返してfalseを返す。
func (r itemRequest) toItem(c *gin.Context) (Item, bool) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		apierror.Respond(c, apierror.New(apierror.KindBadRequest, "品目名は必須です"))
		return Item{}, false
	}
	available := true
	if r.Available != nil {
		available = *r.Available
	}
	return Item{
		CategoryID:  r.CategoryID,
		Name:        name,
		Description: strings.TrimSpace(r.Description),
		PriceCents:  *r.PriceCents,
		Available:   available,
	}, true
}
