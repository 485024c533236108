package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/restaurant/pkg/authz"
	"github.com/nao1215/restaurant/pkg/database"
)

// Store はIDの永続化を担う。
type Store interface {
	// Create は新しいIDを保存する。メールアドレスが重複する場合は ErrEmailTaken を返す。
	Create(ctx context.Context, id Identity) error
	// FindByEmail はメールアドレスでIDを取得する。存在しない場合は ErrNotFound を返す。
	FindByEmail(ctx context.Context, email string) (Identity, error)
	// UpdatePassword は現在のハッシュが currentHash と一致する場合に限り、
	// ハッシュとパスワード変更時刻を1回の更新で書き換える。
	// 変更時刻は既存値より小さくならない。適用された変更時刻を返す。
	// 一致する行が無い場合は ErrNotFound を返す。
	UpdatePassword(ctx context.Context, email, currentHash, newHash string, at time.Time) (time.Time, error)
	// UpdateRole はロールを変更し、変更後のIDを返す。
	UpdateRole(ctx context.Context, email string, role authz.Role) (Identity, error)
}

// SQLStore は database/sql による Store の実装。SQLiteとPostgreSQLの両方で動く。
type SQLStore struct {
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore は SQLStore を生成する。
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const identityColumns = `id, email, password_hash, role, created_at, password_modified_at`

// Create は新しいIDを保存する。
func (s *SQLStore) Create(ctx context.Context, id Identity) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identities (`+identityColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		id.ID, id.Email, id.PasswordHash, string(id.Role),
		id.CreatedAt.Unix(), id.PasswordModifiedAt.Unix(),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("IDの保存に失敗: %w", err)
	}
	return nil
}

// FindByEmail はメールアドレスでIDを取得する。
func (s *SQLStore) FindByEmail(ctx context.Context, email string) (Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE email = $1`, email)
	return scanIdentity(row)
}

// UpdatePassword はハッシュと変更時刻を原子的に更新する。
// 比較交換にするため、同時に2つのパスワード変更が走っても片方だけが成功する。
func (s *SQLStore) UpdatePassword(ctx context.Context, email, currentHash, newHash string, at time.Time) (time.Time, error) {
	var modified int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE identities
		SET password_hash = $1,
		    password_modified_at = CASE WHEN password_modified_at > $2 THEN password_modified_at ELSE $2 END
		WHERE email = $3 AND password_hash = $4
		RETURNING password_modified_at`,
		newHash, at.Unix(), email, currentHash,
	).Scan(&modified)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("パスワードの更新に失敗: %w", err)
	}
	return time.Unix(modified, 0).UTC(), nil
}

// UpdateRole はロールを変更する。
func (s *SQLStore) UpdateRole(ctx context.Context, email string, role authz.Role) (Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE identities SET role = $1 WHERE email = $2 RETURNING `+identityColumns,
		string(role), email)
	return scanIdentity(row)
}

func scanIdentity(row *sql.Row) (Identity, error) {
	var (
		id                  Identity
		role                string
		created, pwModified int64
	)
	err := row.Scan(&id.ID, &id.Email, &id.PasswordHash, &role, &created, &pwModified)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("IDの読み込みに失敗: %w", err)
	}
	id.Role = authz.Role(role)
	id.CreatedAt = time.Unix(created, 0).UTC()
	id.PasswordModifiedAt = time.Unix(pwModified, 0).UTC()
	return id, nil
}
