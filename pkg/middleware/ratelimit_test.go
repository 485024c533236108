package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRateLimitedRouter(t *testing.T, rpm int, trustedProxies []string) *gin.Engine {
	t.Helper()

	router := gin.New()
	if err := router.SetTrustedProxies(trustedProxies); err != nil {
		t.Fatal(err)
	}
	router.POST("/login", NewRateLimiter(rpm).Handler(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func postFrom(router *gin.Engine, ip string) int {
	return postVia(router, ip+":40000", "")
}

// postVia はRemoteAddrとX-Forwarded-Forを指定してリクエストを送る。
func postVia(router *gin.Engine, remoteAddr, forwarded string) int {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = remoteAddr
	if forwarded != "" {
		req.Header.Set("X-Forwarded-For", forwarded)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiter_Limited(t *testing.T) {
	t.Parallel()

	router := newRateLimitedRouter(t, 1, nil)

	// バースト1なので2回目は即座に429になる
	assert.Equal(t, http.StatusOK, postFrom(router, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, postFrom(router, "10.0.0.1"))
}

func TestRateLimiter_PerClient(t *testing.T) {
	t.Parallel()

	router := newRateLimitedRouter(t, 1, nil)

	assert.Equal(t, http.StatusOK, postFrom(router, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, postFrom(router, "10.0.0.2"))
}

func TestRateLimiter_Unlimited(t *testing.T) {
	t.Parallel()

	router := newRateLimitedRouter(t, 0, nil)

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, postFrom(router, "10.0.0.1"), "request %d", i)
	}
}

func TestRateLimiter_IgnoresSpoofedForwardedFor(t *testing.T) {
	t.Parallel()

	router := newRateLimitedRouter(t, 2, nil)

	allowed := 0
	for i := range 20 {
		if postVia(router, "203.0.113.7:40000", fmt.Sprintf("198.51.100.%d", i)) == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed, "クライアントが付けたX-Forwarded-Forで別クライアント扱いされないこと")
}

func TestRateLimiter_TrustedProxy(t *testing.T) {
	t.Parallel()

	router := newRateLimitedRouter(t, 1, []string{"10.0.0.0/8"})

	// 信頼したプロキシ経由ならX-Forwarded-Forのクライアントごとに制限する
	assert.Equal(t, http.StatusOK, postVia(router, "10.0.0.5:40000", "198.51.100.1"))
	assert.Equal(t, http.StatusOK, postVia(router, "10.0.0.5:40000", "198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, postVia(router, "10.0.0.5:40000", "198.51.100.1"))
}
