package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/restaurant/pkg/apierror"
)

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニックはslogのデフォルトロガーに記録する。
func Recovery() gin.HandlerFunc {
	return RecoveryWithLogger(nil)
}

// RecoveryWithLogger はパニックを指定したロガーに記録する Recovery を返す。
// loggerがnilの場合は呼び出し時点のデフォルトロガーを使う。
// スタックトレースを添えてErrorレベルで出力し、500エラーを返す。
func RecoveryWithLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			l := logger
			if l == nil {
				l = slog.Default()
			}
			l.ErrorContext(c.Request.Context(), "パニックから回復しました",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"request_id", c.GetHeader(HeaderRequestID),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			apierror.Respond(c, apierror.New(apierror.KindInternal, "内部サーバーエラーが発生しました"))
		}()
		c.Next()
	}
}
