package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/restaurant/pkg/database"
	"github.com/nao1215/restaurant/pkg/event"
)

// ErrConflict はバージョンの採番が競合し続けたか、イベントIDが重複したことを表す。
var ErrConflict = errors.New("イベントの追記が競合しました")

// appendAttempts は採番が競合した場合に追記を試みる回数。
const appendAttempts = 3

// Store はイベントの永続化を担う。
type Store interface {
	// Append はイベントを追記し、採番されたバージョンと追記日時を設定したイベントを返す。
	Append(ctx context.Context, ev event.Event) (event.Event, error)
	// ByAggregate はAggregateIDのイベントをバージョン順に返す。
	ByAggregate(ctx context.Context, aggregateID string) ([]event.Event, error)
	// ByType はイベントタイプのイベントを古い順に最大limit件返す。
	ByType(ctx context.Context, eventType event.Type, limit int) ([]event.Event, error)
	// Since は指定日時以降に追記されたイベントを古い順に最大limit件返す。
	Since(ctx context.Context, since time.Time, limit int) ([]event.Event, error)
	// All は全イベントを古い順に最大limit件返す。
	All(ctx context.Context, limit int) ([]event.Event, error)
	// LatestVersion はAggregateIDの最新バージョンを返す。イベントが無ければ0。
	LatestVersion(ctx context.Context, aggregateID string) (int64, error)
}

// SQLStore は database/sql による Store の実装。
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore は SQLStore を生成する。
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

const eventColumns = `id, aggregate_id, aggregate_type, event_type, data, version, created_at`

// Append はAggregate内の最新バージョン+1でイベントを追記する。
// 同じAggregateへの同時追記で一意制約に衝突した場合は採番からやり直す。
func (s *SQLStore) Append(ctx context.Context, ev event.Event) (event.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.CreatedAt = s.now().UTC()

	var lastErr error
	for range appendAttempts {
		err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
			var latest int64
			if err := tx.QueryRowContext(ctx,
				`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1`,
				ev.AggregateID,
			).Scan(&latest); err != nil {
				return fmt.Errorf("最新バージョンの取得に失敗: %w", err)
			}
			ev.Version = latest + 1

			_, err := tx.ExecContext(ctx,
				`INSERT INTO events (`+eventColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				ev.ID, ev.AggregateID, string(ev.AggregateType), string(ev.EventType),
				string(ev.Data), ev.Version, ev.CreatedAt.UnixMilli(),
			)
			return err
		})
		if err == nil {
			return ev, nil
		}
		if !database.IsUniqueViolation(err) {
			return event.Event{}, fmt.Errorf("イベントの追記に失敗: %w", err)
		}
		lastErr = err
	}
	return event.Event{}, fmt.Errorf("%w: %w", ErrConflict, lastErr)
}

// ByAggregate はAggregateIDのイベントをバージョン順に返す。
func (s *SQLStore) ByAggregate(ctx context.Context, aggregateID string) ([]event.Event, error) {
	return s.query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE aggregate_id = $1 ORDER BY version`,
		aggregateID)
}

// ByType はイベントタイプのイベントを古い順に返す。
func (s *SQLStore) ByType(ctx context.Context, eventType event.Type, limit int) ([]event.Event, error) {
	return s.query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE event_type = $1 ORDER BY created_at, id LIMIT $2`,
		string(eventType), limit)
}

// Since は指定日時以降のイベントを古い順に返す。
func (s *SQLStore) Since(ctx context.Context, since time.Time, limit int) ([]event.Event, error) {
	return s.query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE created_at >= $1 ORDER BY created_at, id LIMIT $2`,
		since.UnixMilli(), limit)
}

// All は全イベントを古い順に返す。
func (s *SQLStore) All(ctx context.Context, limit int) ([]event.Event, error) {
	return s.query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at, id LIMIT $1`,
		limit)
}

// LatestVersion はAggregateIDの最新バージョンを返す。
func (s *SQLStore) LatestVersion(ctx context.Context, aggregateID string) (int64, error) {
	var latest int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1`,
		aggregateID,
	).Scan(&latest); err != nil {
		return 0, fmt.Errorf("最新バージョンの取得に失敗: %w", err)
	}
	return latest, nil
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗: %w", err)
	}
	defer rows.Close()

	events := []event.Event{}
	for rows.Next() {
		var (
			ev                       event.Event
			aggregateType, eventType string
			data                     string
			createdAt                int64
		)
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &aggregateType, &eventType, &data, &ev.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("イベントの読み取りに失敗: %w", err)
		}
		ev.AggregateType = event.AggregateType(aggregateType)
		ev.EventType = event.Type(eventType)
		ev.Data = []byte(data)
		ev.CreatedAt = time.UnixMilli(createdAt).UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗: %w", err)
	}
	return events, nil
}
