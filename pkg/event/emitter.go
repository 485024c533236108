package event

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/restaurant/pkg/httpclient"
)

// Emitter は監査イベントをEvent Storeへ送る。
// 送信失敗は呼び出し元の処理を失敗させない。
type Emitter interface {
	Emit(ctx context.Context, ev *Event)
}

// HTTPEmitter はEvent StoreのHTTP APIにイベントを追記する Emitter。
type HTTPEmitter struct {
	client   *httpclient.Client
	inflight sync.WaitGroup
}

// emitTimeout はイベント送信1回あたりのタイムアウト。
const emitTimeout = 3 * time.Second

// NewHTTPEmitter はEvent StoreのベースURLを指定して HTTPEmitter を生成する。
func NewHTTPEmitter(baseURL string) *HTTPEmitter {
	return &HTTPEmitter{client: httpclient.New(baseURL, httpclient.WithTimeout(emitTimeout))}
}

// Emit はイベントを別のゴルーチンから POST /api/v1/events に送信し、完了を待たずに戻る。
// 送信はリクエストのキャンセルに影響されず、emitTimeout で打ち切られる。
// 失敗した場合はログに記録するだけで、エラーは返さない。
func (e *HTTPEmitter) Emit(ctx context.Context, ev *Event) {
	if ev == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		if err := e.client.PostJSON(ctx, "/api/v1/events", ev, nil); err != nil {
			slog.WarnContext(ctx, "Event Storeへのイベント送信に失敗",
				"event_type", ev.EventType,
				"aggregate_id", ev.AggregateID,
				"error", err,
			)
		}
	}()
}

// Wait は送信中のイベントがすべて完了するまで待つ。
func (e *HTTPEmitter) Wait() {
	e.inflight.Wait()
}

// NopEmitter はイベントを破棄する Emitter。EVENTSTORE_URL 未設定時に使う。
type NopEmitter struct{}

// Emit は何もしない。
func (NopEmitter) Emit(context.Context, *Event) {}

// NewEmitter はbaseURLが空なら NopEmitter を、そうでなければ HTTPEmitter を返す。
func NewEmitter(baseURL string) Emitter {
	if baseURL == "" {
		return NopEmitter{}
	}
	return NewHTTPEmitter(baseURL)
}

// Record はイベントを生成して送信する。生成に失敗した場合はログに記録する。
func Record(ctx context.Context, e Emitter, aggregateID string, aggregateType AggregateType, eventType Type, data any) {
	ev, err := New(aggregateID, aggregateType, eventType, data)
	if err != nil {
		slog.ErrorContext(ctx, "イベントの生成に失敗", "event_type", eventType, "error", err)
		return
	}
	e.Emit(ctx, ev)
}
