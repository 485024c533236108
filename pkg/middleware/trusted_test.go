package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/restaurant/pkg/apierror"
	"github.com/nao1215/restaurant/pkg/authz"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// serveWithHeaders は指定した信頼済みヘッダーでリクエストを送り、レスポンスを返す。
func serveWithHeaders(router *gin.Engine, email, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if email != "" {
		req.Header.Set(HeaderUserEmail, email)
	}
	if role != "" {
		req.Header.Set(HeaderUserRole, role)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestRequireRole はRequireRoleミドルウェアを検証する。
func TestRequireRole(t *testing.T) {
	t.Parallel()

	newRouter := func() *gin.Engine {
		router := gin.New()
		router.GET("/test", RequireRole(authz.RoleAdmin), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"email": UserEmail(c), "role": UserRole(c)})
		})
		return router
	}

	t.Run("許可ロールのリクエストはハンドラに到達すること", func(t *testing.T) {
		t.Parallel()

		w := serveWithHeaders(newRouter(), "alice@example.com", "ADMIN")

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body["email"] != "alice@example.com" {
			t.Errorf("email = %q, want %q", body["email"], "alice@example.com")
		}
	})

	t.Run("ロールの比較は大文字小文字を区別しないこと", func(t *testing.T) {
		t.Parallel()

		w := serveWithHeaders(newRouter(), "alice@example.com", "admin")
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("ロールヘッダーが無い場合は401が返ること", func(t *testing.T) {
		t.Parallel()

		w := serveWithHeaders(newRouter(), "alice@example.com", "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("メールアドレスヘッダーが無い場合は401が返ること", func(t *testing.T) {
		t.Parallel()

		w := serveWithHeaders(newRouter(), "", "ADMIN")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("ロールが不足している場合は403が返ること", func(t *testing.T) {
		t.Parallel()

		w := serveWithHeaders(newRouter(), "bob@example.com", "USER")
		if w.Code != http.StatusForbidden {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body["code"] != string(apierror.KindForbidden) {
			t.Errorf("code = %q, want %q", body["code"], apierror.KindForbidden)
		}
	})
}

// TestRequireRoleEquivalentToDirectCall はミドルウェアとハンドラ内の直接呼び出しが
// 同じステータスを返すことを検証する。
func TestRequireRoleEquivalentToDirectCall(t *testing.T) {
	t.Parallel()

	viaMiddleware := gin.New()
	viaMiddleware.GET("/test", RequireRole(authz.RoleSupervisor, authz.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	direct := gin.New()
	direct.GET("/test", func(c *gin.Context) {
		if err := authz.RequireIdentity(UserEmail(c), UserRole(c), authz.RoleSupervisor, authz.RoleAdmin); err != nil {
			apierror.Respond(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	for _, email := range []string{"", "carol@example.com"} {
		for _, role := range []string{"", "USER", "supervisor", "ADMIN", "OWNER"} {
			gotW := serveWithHeaders(viaMiddleware, email, role)
			wantW := serveWithHeaders(direct, email, role)
			if gotW.Code != wantW.Code || gotW.Body.String() != wantW.Body.String() {
				t.Errorf("email=%q role=%q: middleware=%d %s, direct=%d %s",
					email, role, gotW.Code, gotW.Body.String(), wantW.Code, wantW.Body.String())
			}
		}
	}
}

// TestRequireAuthenticated は定義済みロールなら通過することを検証する。
func TestRequireAuthenticated(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.GET("/test", RequireAuthenticated(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for _, role := range []string{"USER", "SUPERVISOR", "ADMIN"} {
		if w := serveWithHeaders(router, "dave@example.com", role); w.Code != http.StatusNoContent {
			t.Errorf("role=%q: ステータスコード = %d, want %d", role, w.Code, http.StatusNoContent)
		}
	}
	if w := serveWithHeaders(router, "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("ヘッダー無し: ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
