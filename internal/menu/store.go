package menu

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/restaurant/pkg/database"
)

// Store はカテゴリとメニュー品目の永続化を担う。
type Store interface {
	ListCategories(ctx context.Context) ([]Category, error)
	// CreateCategory は名前が重複する場合に ErrCategoryNameTaken を返す。
	CreateCategory(ctx context.Context, name string, at time.Time) (Category, error)
	RenameCategory(ctx context.Context, id int64, name string) (Category, error)
	// DeleteCategory はメニュー品目が残っている場合に ErrCategoryInUse を返す。
	DeleteCategory(ctx context.Context, id int64) error

	// ListItems はcategoryIDが0なら全件、そうでなければそのカテゴリの品目を返す。
	ListItems(ctx context.Context, categoryID int64) ([]Item, error)
	GetItem(ctx context.Context, id int64) (Item, error)
	// CreateItem は所属先カテゴリが無い場合に ErrCategoryNotFound を返す。
	CreateItem(ctx context.Context, item Item) (Item, error)
	UpdateItem(ctx context.Context, item Item) (Item, error)
	DeleteItem(ctx context.Context, id int64) error
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

const (
	categoryColumns = `id, name, created_at`
	itemColumns     = `id, category_id, name, description, price_cents, available, created_at, updated_at`
)

// ListCategories はカテゴリをID順に返す。
func (s *SQLStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("カテゴリの取得に失敗: %w", err)
	}
	defer rows.Close()

	categories := []Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CreateCategory はカテゴリを作成する。
func (s *SQLStore) CreateCategory(ctx context.Context, name string, at time.Time) (Category, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO categories (name, created_at) VALUES ($1, $2) RETURNING `+categoryColumns,
		name, at.Unix())
	c, err := scanCategory(row)
	if database.IsUniqueViolation(err) {
		return Category{}, ErrCategoryNameTaken
	}
	return c, err
}

// RenameCategory はカテゴリ名を変更する。
func (s *SQLStore) RenameCategory(ctx context.Context, id int64, name string) (Category, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE categories SET name = $1 WHERE id = $2 RETURNING `+categoryColumns,
		name, id)
	c, err := scanCategory(row)
	if database.IsUniqueViolation(err) {
		return Category{}, ErrCategoryNameTaken
	}
	return c, err
}

// DeleteCategory はメニュー品目が無いことを確認してからカテゴリを削除する。
func (s *SQLStore) DeleteCategory(ctx context.Context, id int64) error {
	return database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		var count int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM menu_items WHERE category_id = $1`, id,
		).Scan(&count); err != nil {
			return fmt.Errorf("メニュー品目数の取得に失敗: %w", err)
		}
		if count > 0 {
			return ErrCategoryInUse
		}
		return execAffectingOne(ctx, tx, `DELETE FROM categories WHERE id = $1`, id)
	})
}

// ListItems はメニュー品目をID順に返す。
func (s *SQLStore) ListItems(ctx context.Context, categoryID int64) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM menu_items`
	var args []any
	if categoryID != 0 {
		query += ` WHERE category_id = $1`
		args = append(args, categoryID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("メニュー品目の取得に失敗: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetItem はメニュー品目を取得する。
func (s *SQLStore) GetItem(ctx context.Context, id int64) (Item, error) {
	return scanItem(s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM menu_items WHERE id = $1`, id))
}

// CreateItem はメニュー品目を作成する。
func (s *SQLStore) CreateItem(ctx context.Context, item Item) (Item, error) {
	var created Item
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		if err := requireCategory(ctx, tx, item.CategoryID); err != nil {
			return err
		}
		var err error
		created, err = scanItem(tx.QueryRowContext(ctx, `
			INSERT INTO menu_items (category_id, name, description, price_cents, available, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+itemColumns,
			item.CategoryID, item.Name, item.Description, item.PriceCents, item.Available,
			item.CreatedAt.Unix(), item.UpdatedAt.Unix(),
		))
		return err
	})
	return created, err
}

// UpdateItem はメニュー品目の内容を置き換える。作成日時は変更しない。
func (s *SQLStore) UpdateItem(ctx context.Context, item Item) (Item, error) {
	var updated Item
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		if err := requireCategory(ctx, tx, item.CategoryID); err != nil {
			return err
		}
		var err error
		updated, err = scanItem(tx.QueryRowContext(ctx, `
			UPDATE menu_items
			SET category_id = $1, name = $2, description = $3, price_cents = $4, available = $5, updated_at = $6
			WHERE id = $7
			RETURNING `+itemColumns,
			item.CategoryID, item.Name, item.Description, item.PriceCents, item.Available,
			item.UpdatedAt.Unix(), item.ID,
		))
		return err
	})
	return updated, err
}

// DeleteItem はメニュー品目を削除する。
func (s *SQLStore) DeleteItem(ctx context.Context, id int64) error {
	return execAffectingOne(ctx, s.db, `DELETE FROM menu_items WHERE id = $1`, id)
}

func requireCategory(ctx context.Context, tx database.DBTX, id int64) error {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM categories WHERE id = $1`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrCategoryNotFound
	}
	if err != nil {
		return fmt.Errorf("カテゴリの確認に失敗: %w", err)
	}
	return nil
}

// execAffectingOne は1行だけを更新する文を実行する。対象が無ければ ErrNotFound を返す。
func execAffectingOne(ctx context.Context, db database.DBTX, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("更新に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCategory(row scanner) (Category, error) {
	var (
		c       Category
		created int64
	)
	err := row.Scan(&c.ID, &c.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Category{}, ErrNotFound
	}
	if err != nil {
		return Category{}, fmt.Errorf("カテゴリの読み込みに失敗: %w", err)
	}
	c.CreatedAt = time.Unix(created, 0).UTC()
	return c, nil
}

func scanItem(row scanner) (Item, error) {
	var (
		item             Item
		created, updated int64
	)
	err := row.Scan(&item.ID, &item.CategoryID, &item.Name, &item.Description,
		&item.PriceCents, &item.Available, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("メニュー品目の読み込みに失敗: %w", err)
	}
	item.CreatedAt = time.Unix(created, 0).UTC()
	item.UpdatedAt = time.Unix(updated, 0).UTC()
	return item, nil
}
