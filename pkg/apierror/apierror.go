package apierror

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind はエラーの分類を表す。レスポンスの "code" フィールドにそのまま出力される。
type Kind string

const (
	// KindUnauthenticated はAuthorizationヘッダーや信頼済みヘッダーが無い状態を表す。
	KindUnauthenticated Kind = "UNAUTHENTICATED"
	// KindExpired はトークンの有効期限切れを表す。
	KindExpired Kind = "TOKEN_EXPIRED"
	// KindInvalidToken は構造不正・非対応形式・署名不一致のいずれかを表す。
	// どの検査に失敗したかは外部に明かさない。
	KindInvalidToken Kind = "INVALID_TOKEN"
	// KindOutdated はパスワード変更より前に発行されたトークンを表す。
	KindOutdated Kind = "TOKEN_OUTDATED"
	// KindIdentityNotFound は失効チェック対象のIDが存在しないことを表す。
	KindIdentityNotFound Kind = "IDENTITY_NOT_FOUND"
	// KindForbidden はロール不足を表す。
	KindForbidden Kind = "FORBIDDEN"
	// KindUpstreamUnavailable は認証基盤との通信に失敗したことを表す。
	KindUpstreamUnavailable Kind = "UPSTREAM_UNAVAILABLE"
	// KindUnauthorized は認証情報（メールアドレス・パスワード）の不一致を表す。
	KindUnauthorized Kind = "UNAUTHORIZED"
	// KindConflict は一意制約の衝突を表す。
	KindConflict Kind = "CONFLICT"
	// KindBadRequest はリクエストの不正を表す。
	KindBadRequest Kind = "BAD_REQUEST"
	// KindNotFound はリソースが存在しないことを表す。
	KindNotFound Kind = "NOT_FOUND"
	// KindRateLimited はレート制限超過を表す。
	KindRateLimited Kind = "RATE_LIMITED"
	// KindInternal は分類できない内部エラーを表す。
	KindInternal Kind = "INTERNAL_ERROR"
)

// Status はKindに対応するHTTPステータスコードを返す。
func (k Kind) Status() int {
	switch k {
	case KindUnauthenticated, KindExpired, KindUnauthorized:
		return http.StatusUnauthorized
	case KindInvalidToken, KindOutdated, KindForbidden:
		return http.StatusForbidden
	case KindIdentityNotFound, KindNotFound:
		return http.StatusNotFound
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	case KindConflict:
		return http.StatusConflict
	case KindBadRequest:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error はAPIエラーを表す。
type Error struct {
	// Kind はエラーの分類。
	Kind Kind
	// Message はクライアントに返すメッセージ。
	Message string
	// Details は補足情報。空の場合はレスポンスに含めない。
	Details string
}

// New は新しいErrorを生成する。
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf はフォーマット指定でErrorを生成する。
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetails は補足情報を付与したコピーを返す。
func (e *Error) WithDetails(details string) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is はKindが一致する場合にtrueを返す。
// errors.Is(err, apierror.New(apierror.KindForbidden, "")) のように分類だけで比較できる。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Status はHTTPステータスコードを返す。
func (e *Error) Status() int {
	return e.Kind.Status()
}

// KindOf はエラーの分類を返す。*Error以外はKindInternalとして扱う。
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindInternal
}

// Respond はエラーをJSONレスポンスとして書き込み、後続のハンドラを中断する。
// *Error以外のエラーは内容を隠して500を返し、ログに記録する。
func Respond(c *gin.Context, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		slog.ErrorContext(c.Request.Context(), "未分類のエラー",
			"method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		apiErr = New(KindInternal, "内部サーバーエラーが発生しました")
	}

	body := gin.H{
		"code":  apiErr.Kind,
		"error": apiErr.Message,
	}
	if apiErr.Details != "" {
		body["details"] = apiErr.Details
	}
	c.AbortWithStatusJSON(apiErr.Status(), body)
}
