package order

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/restaurant/pkg/httpclient"
	"github.com/nao1215/restaurant/pkg/middleware"
)

func TestHTTPCatalog_MenuItem(t *testing.T) {
	t.Parallel()

	t.Run("呼び出し元の信頼済みヘッダーを伝播する", func(t *testing.T) {
		t.Parallel()

		var gotEmail, gotRole, gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotEmail = r.Header.Get(middleware.HeaderUserEmail)
			gotRole = r.Header.Get(middleware.HeaderUserRole)
			gotPath = r.URL.Path
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":7,"categoryId":1,"name":"炒飯","priceCents":780,"available":true}`))
		}))
		t.Cleanup(srv.Close)

		catalog := NewHTTPCatalog(httpclient.New(srv.URL))
		ctx := httpclient.WithIdentity(context.Background(), "alice@example.com", "USER")
		item, err := catalog.MenuItem(ctx, 7)
		require.NoError(t, err)

		assert.Equal(t, MenuItem{ID: 7, Name: "炒飯", PriceCents: 780, Available: true}, item)
		assert.Equal(t, "/api/menu-items/7", gotPath)
		assert.Equal(t, "alice@example.com", gotEmail)
		assert.Equal(t, "USER", gotRole)
	})

	t.Run("404は品目なし、それ以外は問い合わせ失敗", func(t *testing.T) {
		t.Parallel()

		var status atomic.Int32
		status.Store(http.StatusNotFound)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(int(status.Load()))
		}))
		t.Cleanup(srv.Close)
		catalog := NewHTTPCatalog(httpclient.New(srv.URL))

		_, err := catalog.MenuItem(context.Background(), 1)
		assert.ErrorIs(t, err, ErrMenuItemNotFound)

		status.Store(http.StatusInternalServerError)
		_, err = catalog.MenuItem(context.Background(), 1)
		assert.ErrorIs(t, err, ErrMenuUnavailable)
	})
}
