package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/restaurant/pkg/database"
)

// Store はテーブルと注文の永続化を担う。
type Store interface {
	ListTables(ctx context.Context) ([]Table, error)
	// CreateTable は名前が重複する場合に ErrTableNameTaken を返す。
	CreateTable(ctx context.Context, name string, seats int, at time.Time) (Table, error)
	// DeleteTable は注文が残っている場合に ErrTableInUse を返す。
	DeleteTable(ctx context.Context, id int64) error

	// CreateOrder は注文と明細を保存する。テーブルが無い場合は ErrTableNotFound を返す。
	CreateOrder(ctx context.Context, o Order) error
	// GetOrder は明細を含む注文を返す。
	GetOrder(ctx context.Context, id string) (Order, error)
	// ListOrders は注文を新しい順に返す。placedBy、statusが空でなければ絞り込む。
	ListOrders(ctx context.Context, placedBy string, status Status) ([]Order, error)
	// UpdateStatus は現在のステータスが from の場合に限り to に変更する。
	// ステータスが変わっていた場合は ErrStatusConflict を返す。
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) (Order, error)
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
	tableColumns = `id, name, seats, created_at`
	orderColumns = `id, table_id, placed_by, status, total_cents, created_at, updated_at`
)

// ListTables はテーブルをID順に返す。
func (s *SQLStore) ListTables(ctx context.Context) ([]Table, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tableColumns+` FROM dining_tables ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("テーブルの取得に失敗: %w", err)
	}
	defer rows.Close()

	tables := []Table{}
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// CreateTable はテーブルを作成する。
func (s *SQLStore) CreateTable(ctx context.Context, name string, seats int, at time.Time) (Table, error) {
	t, err := scanTable(s.db.QueryRowContext(ctx,
		`INSERT INTO dining_tables (name, seats, created_at) VALUES ($1, $2, $3) RETURNING `+tableColumns,
		name, seats, at.Unix()))
	if database.IsUniqueViolation(err) {
		return Table{}, ErrTableNameTaken
	}
	return t, err
}

// DeleteTable は注文が無いことを確認してからテーブルを削除する。
func (s *SQLStore) DeleteTable(ctx context.Context, id int64) error {
	return database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		var count int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM orders WHERE table_id = $1`, id,
		).Scan(&count); err != nil {
			return fmt.Errorf("注文数の取得に失敗: %w", err)
		}
		if count > 0 {
			return ErrTableInUse
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM dining_tables WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("テーブルの削除に失敗: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("削除件数の取得に失敗: %w", err)
		} else if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CreateOrder は注文と明細を1つのトランザクションで保存する。
func (s *SQLStore) CreateOrder(ctx context.Context, o Order) error {
	return database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM dining_tables WHERE id = $1`, o.TableID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTableNotFound
		}
		if err != nil {
			return fmt.Errorf("テーブルの確認に失敗: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO orders (`+orderColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			o.ID, o.TableID, o.PlacedBy, string(o.Status), o.TotalCents, o.CreatedAt.Unix(), o.UpdatedAt.Unix(),
		); err != nil {
			return fmt.Errorf("注文の保存に失敗: %w", err)
		}
		for i, l := range o.Lines {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (order_id, line, menu_item_id, name, unit_price_cents, quantity)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				o.ID, i+1, l.MenuItemID, l.Name, l.UnitPriceCents, l.Quantity,
			); err != nil {
				return fmt.Errorf("注文明細の保存に失敗: %w", err)
			}
		}
		return nil
	})
}

// GetOrder は明細を含む注文を返す。
func (s *SQLStore) GetOrder(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return Order{}, err
	}
	if o.Lines, err = s.lines(ctx, id); err != nil {
		return Order{}, err
	}
	return o, nil
}

// ListOrders は注文を新しい順に返す。明細は含まない。
func (s *SQLStore) ListOrders(ctx context.Context, placedBy string, status Status) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1 = 1`
	var args []any
	if placedBy != "" {
		args = append(args, placedBy)
		query += fmt.Sprintf(` AND placed_by = $%d`, len(args))
	}
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("注文の取得に失敗: %w", err)
	}
	defer rows.Close()

	orders := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UpdateStatus はステータスを比較交換で更新する。
func (s *SQLStore) UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) (Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `
		UPDATE orders SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
		RETURNING `+orderColumns,
		string(to), at.Unix(), id, string(from)))
	if errors.Is(err, ErrNotFound) {
		// 注文自体が無いのか、ステータスが先に変わったのかを区別する
		if _, getErr := s.GetOrder(ctx, id); getErr != nil {
			return Order{}, getErr
		}
		return Order{}, ErrStatusConflict
	}
	if err != nil {
		return Order{}, err
	}
	if o.Lines, err = s.lines(ctx, id); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (s *SQLStore) lines(ctx context.Context, orderID string) ([]Line, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT menu_item_id, name, unit_price_cents, quantity
		FROM order_items WHERE order_id = $1 ORDER BY line`, orderID)
	if err != nil {
		return nil, fmt.Errorf("注文明細の取得に失敗: %w", err)
	}
	defer rows.Close()

	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.MenuItemID, &l.Name, &l.UnitPriceCents, &l.Quantity); err != nil {
			return nil, fmt.Errorf("注文明細の読み込みに失敗: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTable(row scanner) (Table, error) {
	var (
		t       Table
		created int64
	)
	err := row.Scan(&t.ID, &t.Name, &t.Seats, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Table{}, ErrNotFound
	}
	if err != nil {
		return Table{}, fmt.Errorf("テーブルの読み込みに失敗: %w", err)
	}
	t.CreatedAt = time.Unix(created, 0).UTC()
	return t, nil
}

func scanOrder(row scanner) (Order, error) {
	var (
		o                Order
		status           string
		created, updated int64
	)
	err := row.Scan(&o.ID, &o.TableID, &o.PlacedBy, &status, &o.TotalCents, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("注文の読み込みに失敗: %w", err)
	}
	o.Status = Status(status)
	o.CreatedAt = time.Unix(created, 0).UTC()
	o.UpdatedAt = time.Unix(updated, 0).UTC()
	return o, nil
}
