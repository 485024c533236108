package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/nao1215/restaurant/pkg/apierror"
)

// clientLimiter はクライアントIPごとのトークンバケット。
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter はクライアントIP単位で1分あたりのリクエスト数を制限する。
// ログインや登録など、総当たり攻撃の対象になるエンドポイントに適用する。
type RateLimiter struct {
	rpm     int
	mu      sync.Mutex
	clients map[string]*clientLimiter
}

// NewRateLimiter は新しいRateLimiterを生成する。rpmが0以下の場合は制限しない。
func NewRateLimiter(rpm int) *RateLimiter {
	return &RateLimiter{
		rpm:     rpm,
		clients: map[string]*clientLimiter{},
	}
}

// Handler は制限を超えたリクエストに429を返すGinミドルウェアを返す。
func (m *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.rpm <= 0 {
			c.Next()
			return
		}
		if !m.allow(clientIP(c)) {
			c.Header("Retry-After", "60")
			apierror.Respond(c, apierror.New(apierror.KindRateLimited, "リクエストが多すぎます"))
			return
		}
		c.Next()
	}
}

// allow はクライアントのリクエストを許可するかを判定する。
func (m *RateLimiter) allow(ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	cl, ok := m.clients[ip]
	if !ok {
		cl = &clientLimiter{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.rpm)), m.rpm),
		}
		m.clients[ip] = cl
	}
	cl.lastSeen = now
	m.gcLocked(now)

	return cl.limiter.Allow()
}

// gcLocked は一定数を超えたら10分以上アクセスの無いクライアントを破棄する。
func (m *RateLimiter) gcLocked(now time.Time) {
	if len(m.clients) < 1000 {
		return
	}
	cutoff := now.Add(-10 * time.Minute)
	for ip, cl := range m.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(m.clients, ip)
		}
	}
}

// clientIP はGinが判定したクライアントIPを返す。
// X-Forwarded-For / X-Real-IP は、エンジンの SetTrustedProxies で信頼したプロキシから
// 届いた場合にだけ使われる。クライアントが付けたヘッダーで制限を回避されないよう、
// エッジに置くエンジンでは信頼するプロキシを明示的に設定すること。
func clientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}
