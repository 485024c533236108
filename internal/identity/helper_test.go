package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/restaurant/internal/identity/migrations"
	"github.com/nao1215/restaurant/pkg/database"
	"github.com/nao1215/restaurant/pkg/event"
	"github.com/nao1215/restaurant/pkg/migration"
	"github.com/nao1215/restaurant/pkg/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "0123456789abcdef0123456789abcdef"

// fakeClock はテストから進められる時計。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(unix int64) *fakeClock {
	return &fakeClock{now: time.Unix(unix, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(unix int64) {
	c.SetTime(time.Unix(unix, 0).UTC())
}

func (c *fakeClock) SetTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// recordingEmitter は送信されたイベントを記録する。
type recordingEmitter struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *recordingEmitter) Emit(_ context.Context, ev *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Type, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

// newTestStore はマイグレーション済みのインメモリSQLiteで SQLStore を生成する。
func newTestStore(t *testing.T) *SQLStore {
	t.Helper()

	db, dialect, err := database.Open(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migration.Run(context.Background(), db, migrations.FS, string(dialect)))
	return NewSQLStore(db)
}

// testEnv はサービス一式とテスト用の時計・イベント記録をまとめたもの。
type testEnv struct {
	store   *SQLStore
	clock   *fakeClock
	codec   *token.Codec
	service *Service
	checker *RevocationChecker
	events  *recordingEmitter
}

func newTestEnv(t *testing.T, startUnix int64) *testEnv {
	t.Helper()

	clock := newFakeClock(startUnix)
	codec, err := token.NewCodec(testSecret, token.WithCodecClock(clock.Now))
	require.NoError(t, err)
	issuer, err := token.NewIssuer(codec, 24*time.Hour, token.WithIssuerClock(clock.Now))
	require.NoError(t, err)

	store := newTestStore(t)
	events := &recordingEmitter{}
	svc, err := NewService(store, issuer, bcrypt.MinCost, WithClock(clock.Now), WithEmitter(events))
	require.NoError(t, err)

	return &testEnv{
		store:   store,
		clock:   clock,
		codec:   codec,
		service: svc,
		checker: NewRevocationChecker(store),
		events:  events,
	}
}
