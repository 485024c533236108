package identity

import (
	"errors"
	"time"

	"github.com/nao1215/restaurant/pkg/authz"
)

var (
	// ErrNotFound は指定したメールアドレスのIDが存在しないことを表す。
	ErrNotFound = errors.New("identity not found")
	// ErrEmailTaken はメールアドレスが既に登録済みであることを表す。
	ErrEmailTaken = errors.New("email already registered")
)

// Identity は認証可能な主体。メールアドレスが照合キーで、大文字小文字を区別する。
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	Role         authz.Role
	CreatedAt    time.Time
	// PasswordModifiedAt はパスワードハッシュが変更された時刻。単調非減少。
	// これより前に発行されたトークンは失効扱いになる。
	PasswordModifiedAt time.Time
}
