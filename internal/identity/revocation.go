package identity

import (
	"context"
	"errors"
	"time"

	"github.com/nao1215/restaurant/pkg/authz"
)

// RevocationStatus は失効チェックの結果。
type RevocationStatus string

const (
	// StatusValid はトークンが有効であることを表す。
	StatusValid RevocationStatus = "valid"
	// StatusOutdated はトークンが最後のパスワード変更より前に発行されたことを表す。
	StatusOutdated RevocationStatus = "outdated"
	// StatusIdentityNotFound はトークンのsubjectに該当するIDが無いことを表す。
	StatusIdentityNotFound RevocationStatus = "identity_not_found"
)

// RevocationResult は失効チェックの結果と、有効な場合の現在のロール。
type RevocationResult struct {
	Status RevocationStatus
	// Role はIDの現在のロール。Status が StatusValid の場合のみ設定される。
	Role authz.Role
}

// RevocationChecker はトークンの発行日時とパスワード変更時刻を比較する。
// 状態を変更しないため、同じ入力に対しては常に同じ結果を返す。
type RevocationChecker struct {
	store Store
}

// NewRevocationChecker は RevocationChecker を生成する。
func NewRevocationChecker(store Store) *RevocationChecker {
	return &RevocationChecker{store: store}
}

// Check は email のIDに対して issuedAt に発行されたトークンが有効かを判定する。
// トークンの発行日時は秒精度のため、秒単位で比較する。同じ秒なら有効。
func (r *RevocationChecker) Check(ctx context.Context, email string, issuedAt time.Time) (RevocationResult, error) {
	id, err := r.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return RevocationResult{Status: StatusIdentityNotFound}, nil
	}
	if err != nil {
		return RevocationResult{}, err
	}
	if issuedAt.Unix() < id.PasswordModifiedAt.Unix() {
		return RevocationResult{Status: StatusOutdated}, nil
	}
	return RevocationResult{Status: StatusValid, Role: id.Role}, nil
}
