package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nao1215/restaurant/internal/eventstore/migrations"
	"github.com/nao1215/restaurant/pkg/apierror"
	"github.com/nao1215/restaurant/pkg/authz"
	"github.com/nao1215/restaurant/pkg/database"
	"github.com/nao1215/restaurant/pkg/event"
	"github.com/nao1215/restaurant/pkg/middleware"
	"github.com/nao1215/restaurant/pkg/migration"
)

const (
	// defaultLimit は一覧取得の既定件数。
	defaultLimit = 100
	// maxLimit は一覧取得の最大件数。
	maxLimit = 1000
)

// Server はイベントストアサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はデータベース接続。
	db *sql.DB
	// store はイベントの永続化。
	store Store
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

	s := newServer(cfg.Port, NewSQLStore(db))
	s.db = db
	return s, nil
}

// newServer はルーティング済みのサーバーを生成する。
func newServer(port string, store Store) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger("eventstore"))

	s := &Server{
		router: router,
		port:   port,
		store:  store,
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
// /api/v1 はサービス間通信用で、gatewayからは転送されない。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		events := api.Group("/events")
		{
			// イベントの追記
			events.POST("", s.handleAppendEvent())
			// 全イベント取得（クエリパラメータ: limit）
			events.GET("", s.handleGetAllEvents())
			// AggregateIDによるイベント取得
			events.GET("/aggregate/:aggregate_id", s.handleGetEventsByAggregateID())
			// AggregateIDの最新バージョン取得
			events.GET("/aggregate/:aggregate_id/version", s.handleGetLatestVersion())
			// イベントタイプによるイベント取得
			events.GET("/type/:event_type", s.handleGetEventsByType())
			// 日時指定によるイベント取得（クエリパラメータ: since）
			events.GET("/since", s.handleGetEventsSince())
		}
	}

	// gateway経由の監査ログ検索。ADMINのみ。
	s.router.GET("/api/events", middleware.RequireRole(authz.RoleAdmin), s.handleSearchEvents())

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "eventstore"})
	})
}

// appendEventRequest はイベント追記リクエストのJSON構造。
// idを省略した場合はサーバーで採番する。
type appendEventRequest struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id" binding:"required"`
	AggregateType string          `json:"aggregate_type" binding:"required"`
	EventType     string          `json:"event_type" binding:"required"`
	Data          json.RawMessage `json:"data" binding:"required"`
}

// eventResponse はイベントのレスポンス。
type eventResponse struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Version       int64           `json:"version"`
	CreatedAt     string          `json:"created_at"`
}

func toEventResponse(ev event.Event) eventResponse {
	return eventResponse{
		ID:            ev.ID,
		AggregateID:   ev.AggregateID,
		AggregateType: string(ev.AggregateType),
		EventType:     string(ev.EventType),
		Data:          ev.Data,
		Version:       ev.Version,
		CreatedAt:     ev.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toEventResponses(events []event.Event) []eventResponse {
	resp := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, toEventResponse(ev))
	}
	return resp
}

// handleAppendEvent はイベントの追記を処理するハンドラを返す。
func (s *Server) handleAppendEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req appendEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierror.Respond(c, apierror.New(apierror.KindBadRequest, "リクエストが不正です").WithDetails(err.Error()))
			return
		}
		if req.ID != "" {
			if _, err := uuid.Parse(req.ID); err != nil {
				apierror.Respond(c, apierror.New(apierror.KindBadRequest, "idはUUID形式で指定してください"))
				return
			}
		}

		ev := event.Event{
			ID:            req.ID,
			AggregateID:   req.AggregateID,
			AggregateType: event.AggregateType(req.AggregateType),
			EventType:     event.Type(req.EventType),
			Data:          req.Data,
		}
		if err := ev.Validate(); err != nil {
			apierror.Respond(c, apierror.New(apierror.KindBadRequest, "イベントが不正です").WithDetails(err.Error()))
			return
		}

		stored, err := s.store.Append(c.Request.Context(), ev)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				apierror.Respond(c, apierror.New(apierror.KindConflict, "イベントの追記が競合しました"))
				return
			}
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, toEventResponse(stored))
	}
}

// handleGetAllEvents は全イベント取得を処理するハンドラを返す。
func (s *Server) handleGetAllEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := parseLimit(c)
		if !ok {
			return
		}
		events, err := s.store.All(c.Request.Context(), limit)
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, toEventResponses(events))
	}
}

// handleGetEventsByAggregateID はAggregateIDによるイベント取得を処理するハンドラを返す。
func (s *Server) handleGetEventsByAggregateID() gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := s.store.ByAggregate(c.Request.Context(), c.Param("aggregate_id"))
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, toEventResponses(events))
	}
}

// handleGetEventsByType はイベントタイプによるイベント取得を処理するハンドラを返す。
func (s *Server) handleGetEventsByType() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := parseLimit(c)
		if !ok {
			return
		}
		events, err := s.store.ByType(c.Request.Context(), event.Type(c.Param("event_type")), limit)
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, toEventResponses(events))
	}
}

// handleGetEventsSince は日時指定によるイベント取得を処理するハンドラを返す。
// sinceはRFC3339形式で指定する。
func (s *Server) handleGetEventsSince() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("since")
		if raw == "" {
			apierror.Respond(c, apierror.New(apierror.KindBadRequest, "sinceクエリパラメータは必須です"))
			return
		}
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			apierror.Respond(c, apierror.New(apierror.KindBadRequest, "sinceはRFC3339形式で指定してください"))
			return
		}
		limit, ok := parseLimit(c)
		if !ok {
			return
		}

		events, err := s.store.Since(c.Request.Context(), since, limit)
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, toEventResponses(events))
	}
}

// handleGetLatestVersion はAggregateIDの最新バージョン取得を処理するハンドラを返す。
func (s *Server) handleGetLatestVersion() gin.HandlerFunc {
	return func(c *gin.Context) {
		aggregateID := c.Param("aggregate_id")
		latest, err := s.store.LatestVersion(c.Request.Context(), aggregateID)
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"aggregate_id": aggregateID, "latest_version": latest})
	}
}

// handleSearchEvents はADMIN向けの監査ログ検索を処理するハンドラを返す。
// aggregate_id、event_type の順に指定された条件で絞り込み、無ければ全件を返す。
func (s *Server) handleSearchEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := parseLimit(c)
		if !ok {
			return
		}

		var (
			events []event.Event
			err    error
		)
		switch {
		case c.Query("aggregate_id") != "":
			events, err = s.store.ByAggregate(c.Request.Context(), c.Query("aggregate_id"))
		case c.Query("event_type") != "":
			events, err = s.store.ByType(c.Request.Context(), event.Type(c.Query("event_type")), limit)
		default:
			events, err = s.store.All(c.Request.Context(), limit)
		}
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, toEventResponses(events))
	}
}

// parseLimit はlimitクエリパラメータを読み取る。不正な場合は400を返してfalseを返す。
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > maxLimit {
		apierror.Respond(c, apierror.Newf(apierror.KindBadRequest, "limitは1から%dの整数で指定してください", maxLimit))
		return 0, false
	}
	return limit, true
}
