package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/restaurant/pkg/apierror"
	"github.com/nao1215/restaurant/pkg/authz"
	"github.com/nao1215/restaurant/pkg/httpclient"
	"github.com/nao1215/restaurant/pkg/middleware"
	"github.com/nao1215/restaurant/pkg/token"
)

// checkPath は認証基盤の失効チェックエンドポイント。
const checkPath = "/internal/tokens/check"

// Authenticator はリクエストごとにトークンを検証し、信頼済みヘッダーを付与する。
//
// 処理は次の順に進み、いずれかで失敗した時点でリクエストを拒否する。
//  1. ホワイトリストのパスはそのまま通す
//  2. Authorization: Bearer <token> を取り出す
//  3. 署名と有効期限を検証する
//  4. 認証基盤に失効チェックを問い合わせる
//  5. X-User-Email / X-User-Role を付与する
//
// 失効チェックの結果はキャッシュせず、リトライもしない。
type Authenticator struct {
	codec     *token.Codec
	whitelist []string
	identity  *httpclient.Client
}

// NewAuthenticator は Authenticator を生成する。
// identityClient には失効チェックのタイムアウトを設定したクライアントを渡す。
func NewAuthenticator(codec *token.Codec, whitelist []string, identityClient *httpclient.Client) *Authenticator {
	return &Authenticator{
		codec:     codec,
		whitelist: whitelist,
		identity:  identityClient,
	}
}

// Handler はGinミドルウェアを返す。
func (a *Authenticator) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// クライアントが信頼済みヘッダーを偽装できないよう、判定の前に必ず取り除く
		c.Request.Header.Del(middleware.HeaderUserEmail)
		c.Request.Header.Del(middleware.HeaderUserRole)

		if a.whitelisted(c.Request.URL.Path) {
			c.Next()
			return
		}

		ctx := httpclient.WithRequestID(c.Request.Context(), c.GetHeader(middleware.HeaderRequestID))
		email, role, err := a.authenticate(ctx, c.GetHeader("Authorization"))
		if err != nil {
			apierror.Respond(c, err)
			return
		}

		c.Request.Header.Set(middleware.HeaderUserEmail, email)
		c.Request.Header.Set(middleware.HeaderUserRole, string(role))
		c.Next()
	}
}

// whitelisted はパスがホワイトリストのいずれかのプレフィックスに一致するかを判定する。
// プレフィックスはパスのセグメント単位で照合する（/health は /healthz に一致しない）。
func (a *Authenticator) whitelisted(path string) bool {
	for _, prefix := range a.whitelist {
		p := strings.TrimSuffix(prefix, "/")
		if p == "" {
			return true
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// authenticate はBearerトークンを検証し、認証済みのメールアドレスと現在のロールを返す。
func (a *Authenticator) authenticate(ctx context.Context, authorization string) (string, authz.Role, error) {
	raw, err := bearerToken(authorization)
	if err != nil {
		return "", "", err
	}

	claims, err := a.codec.Decode(raw)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return "", "", apierror.New(apierror.KindExpired, "トークンの有効期限が切れています")
		}
		// 構造不正・非対応形式・署名不一致は区別せずに返す
		return "", "", apierror.New(apierror.KindInvalidToken, "トークンが不正です")
	}

	role, err := a.checkRevocation(ctx, claims)
	if err != nil {
		return "", "", err
	}
	return claims.Subject, role, nil
}

// bearerToken は Authorization ヘッダーからトークンを取り出す。
func bearerToken(authorization string) (string, error) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(authorization), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		return "", apierror.New(apierror.KindUnauthenticated, "Authorizationヘッダーに有効なBearerトークンがありません")
	}
	return strings.TrimSpace(raw), nil
}

// revocationCheckRequest は認証基盤への失効チェックリクエスト。
type revocationCheckRequest struct {
	Email    string    `json:"email"`
	IssuedAt time.Time `json:"issuedAt"`
}

// revocationCheckResponse は認証基盤からの失効チェックレスポンス。
type revocationCheckResponse struct {
	Status string `json:"status"`
	Role   string `json:"role"`
}

// checkRevocation は認証基盤に失効チェックを問い合わせる。
// 200以外、通信失敗、想定外のレスポンスはすべて拒否として扱う。
func (a *Authenticator) checkRevocation(ctx context.Context, claims token.Claims) (authz.Role, error) {
	var resp revocationCheckResponse
	err := a.identity.PostJSON(ctx, checkPath, revocationCheckRequest{
		Email:    claims.Subject,
		IssuedAt: claims.IssuedAt,
	}, &resp)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			switch statusErr.StatusCode {
			case http.StatusForbidden:
				return "", apierror.New(apierror.KindOutdated, "パスワード変更前に発行されたトークンです")
			case http.StatusNotFound:
				return "", apierror.New(apierror.KindIdentityNotFound, "トークンに対応するアカウントが存在しません")
			}
		}
		slog.WarnContext(ctx, "失効チェックに失敗", "error", err)
		return "", apierror.New(apierror.KindUpstreamUnavailable, "認証基盤に問い合わせできません")
	}

	role, ok := authz.ParseRole(resp.Role)
	if resp.Status != "valid" || !ok {
		slog.WarnContext(ctx, "失効チェックのレスポンスが不正", "status", resp.Status, "role", resp.Role)
		return "", apierror.New(apierror.KindUpstreamUnavailable, "認証基盤に問い合わせできません")
	}
	return role, nil
}
