package eventstore

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/restaurant/internal/eventstore/migrations"
	"github.com/nao1215/restaurant/pkg/database"
	"github.com/nao1215/restaurant/pkg/migration"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestStore はマイグレーション済みのインメモリSQLiteで SQLStore を生成する。
// 各テストケースで独立したデータベースを使用するため、テスト間の干渉が発生しない。
func newTestStore(t *testing.T) *SQLStore {
	t.Helper()

	db, dialect, err := database.Open(context.Background(), "sqlite://:memory:")
	if err != nil {
		t.Fatalf("インメモリSQLiteの接続に失敗: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := migration.Run(context.Background(), db, migrations.FS, string(dialect)); err != nil {
		t.Fatalf("マイグレーションに失敗: %v", err)
	}
	return NewSQLStore(db)
}

// setupTestServer はテスト用のサーバーをインメモリSQLiteで構築するヘルパー関数。
func setupTestServer(t *testing.T) *Server {
	t.Helper()
	return newServer("0", newTestStore(t))
}

// setupTestServerWithClock は追記日時を固定できるテスト用サーバーを構築する。
func setupTestServerWithClock(t *testing.T, now func() time.Time) *Server {
	t.Helper()
	store := newTestStore(t)
	store.now = now
	return newServer("0", store)
}

// appendTestEvent はテスト用にイベントをPOSTするヘルパー関数。
// レスポンスレコーダーを返すため、必要に応じてレスポンス内容を検証できる。
func appendTestEvent(t *testing.T, s *Server, aggregateID, aggregateType, eventType string, data map[string]any) *httptest.ResponseRecorder {
	t.Helper()

	dataJSON, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("テストデータのJSON変換に失敗: %v", err)
	}

	body, err := json.Marshal(appendEventRequest{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          dataJSON,
	})
	if err != nil {
		t.Fatalf("リクエストボディのJSON変換に失敗: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// get はGETリクエストを送信する。headersは信頼済みヘッダーなどの追加ヘッダー。
func get(s *Server, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// decodeEvents はイベント一覧のレスポンスをデコードする。
func decodeEvents(t *testing.T, w *httptest.ResponseRecorder) []eventResponse {
	t.Helper()
	var resp []eventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのJSONデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return resp
}
