package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/restaurant/pkg/event"
)

func TestSQLStore_Append(t *testing.T) {
	t.Parallel()

	t.Run("同じAggregateへの同時追記でもバージョンが重複しない", func(t *testing.T) {
		t.Parallel()

		store := newTestStore(t)
		ctx := context.Background()

		const n = 20
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			versions []int64
		)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ev, err := store.Append(ctx, event.Event{
					AggregateID:   "order-1",
					AggregateType: event.AggregateTypeOrder,
					EventType:     event.TypeOrderStatusChanged,
					Data:          json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
				})
				assert.NoError(t, err)
				mu.Lock()
				versions = append(versions, ev.Version)
				mu.Unlock()
			}()
		}
		wg.Wait()

		sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
		for i, v := range versions {
			assert.Equal(t, int64(i+1), v)
		}

		latest, err := store.LatestVersion(ctx, "order-1")
		require.NoError(t, err)
		assert.Equal(t, int64(n), latest)
	})

	t.Run("採番されたイベントを読み戻せる", func(t *testing.T) {
		t.Parallel()

		store := newTestStore(t)
		ctx := context.Background()

		ev, err := event.New("alice@example.com", event.AggregateTypeIdentity, event.TypePasswordChanged,
			event.PasswordChangedData{})
		require.NoError(t, err)

		stored, err := store.Append(ctx, *ev)
		require.NoError(t, err)
		assert.Equal(t, ev.ID, stored.ID)
		assert.Equal(t, int64(1), stored.Version)

		got, err := store.ByAggregate(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, stored.ID, got[0].ID)
		assert.Equal(t, event.TypePasswordChanged, got[0].EventType)
		assert.JSONEq(t, string(ev.Data), string(got[0].Data))
		assert.Equal(t, stored.CreatedAt.UnixMilli(), got[0].CreatedAt.UnixMilli())
	})
}
