package authz

import (
	"strings"

	"github.com/nao1215/restaurant/pkg/apierror"
)

// Role はIDに割り当てられるロール。
type Role string

const (
	// RoleUser は一般ユーザー（来店客・ホールスタッフ）。
	RoleUser Role = "USER"
	// RoleSupervisor は店舗責任者。メニューと注文状態を管理できる。
	RoleSupervisor Role = "SUPERVISOR"
	// RoleAdmin は管理者。ロール変更やテーブル管理を行える。
	RoleAdmin Role = "ADMIN"
)

// Roles は定義済みのロール一覧。
var Roles = []Role{RoleUser, RoleSupervisor, RoleAdmin}

// ParseRole は大文字小文字を区別せずにロール名を解釈する。
func ParseRole(s string) (Role, bool) {
	for _, r := range Roles {
		if strings.EqualFold(strings.TrimSpace(s), string(r)) {
			return r, true
		}
	}
	return "", false
}

// Require は信頼済みロールヘッダーの値が許可ロールのいずれかに一致するかを検証する。
//
// ヘッダーが空の場合は KindUnauthenticated、一致しない場合は KindForbidden を返す。
// 比較は大文字小文字を区別しない。状態を持たないため、ミドルウェアからも
// ハンドラ先頭での直接呼び出しからも同じ結果になる。
func Require(roleHeader string, allowed ...Role) error {
	value := strings.TrimSpace(roleHeader)
	if value == "" {
		return apierror.New(apierror.KindUnauthenticated, "認証されていません")
	}

	for _, r := range allowed {
		if strings.EqualFold(value, string(r)) {
			return nil
		}
	}

	names := make([]string, 0, len(allowed))
	for _, r := range allowed {
		names = append(names, string(r))
	}
	return apierror.Newf(apierror.KindForbidden, "この操作には次のいずれかのロールが必要です: %s", strings.Join(names, ", "))
}

// RequireIdentity は信頼済みヘッダーのメールアドレスとロールの組を検証する。
// ロールの判定は Require と同じで、ロールが許可されてもメールアドレスが空なら
// KindUnauthenticated を返す。gatewayは常に両方を付与するため、片方だけのリクエストは
// gatewayを経由していない。
func RequireIdentity(emailHeader, roleHeader string, allowed ...Role) error {
	if err := Require(roleHeader, allowed...); err != nil {
		return err
	}
	if strings.TrimSpace(emailHeader) == "" {
		return apierror.New(apierror.KindUnauthenticated, "認証されていません")
	}
	return nil
}
