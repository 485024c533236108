package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/restaurant/pkg/apierror"
	"github.com/nao1215/restaurant/pkg/authz"
)

const (
	// HeaderUserEmail はgatewayが認証済みリクエストに付与するメールアドレスのヘッダーキー。
	HeaderUserEmail = "X-User-Email"
	// HeaderUserRole はgatewayが認証済みリクエストに付与するロールのヘッダーキー。
	HeaderUserRole = "X-User-Role"
)

// UserEmail は信頼済みヘッダーからメールアドレスを取得する。
// 下流サービスはトークンを受け取らないため、このヘッダーだけを本人情報として扱う。
func UserEmail(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(HeaderUserEmail))
}

// UserRole は信頼済みヘッダーからロールを取得する。
func UserRole(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(HeaderUserRole))
}

// RequireRole は信頼済みヘッダーのロールが許可ロールのいずれかに一致することを要求する
// Ginミドルウェアを返す。判定は authz.RequireIdentity に委譲するため、ハンドラ内で
// authz.RequireIdentity を直接呼び出した場合と同じ結果になる。
func RequireRole(allowed ...authz.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := authz.RequireIdentity(UserEmail(c), UserRole(c), allowed...); err != nil {
			apierror.Respond(c, err)
			return
		}
		c.Next()
	}
}

// RequireAuthenticated は定義済みのいずれかのロールを持つ認証済みリクエストだけを通す。
func RequireAuthenticated() gin.HandlerFunc {
	return RequireRole(authz.Roles...)
}
