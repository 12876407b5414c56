package realtime

import (
	"log/slog"
	"sync"
)

// subscriberBufferSize は購読者ごとの配信バッファサイズ。
// バッファが満杯の購読者はイベントを取りこぼすため、切断して
// 再接続時のスナップショット再取得に委ねる。
const subscriberBufferSize = 64

// Subscription はHubへの購読を表す。
type Subscription struct {
	Topic string
	C     <-chan Event

	ch     chan Event
	closed <-chan struct{}
}

// Closed は購読がHub側から閉じられたときにcloseされるチャネルを返す。
func (s *Subscription) Closed() <-chan struct{} {
	return s.closed
}

// subscriber はHub内部の購読者エントリ。
type subscriber struct {
	ch     chan Event
	closed chan struct{}
}

// EventRecorder は配信イベントと接続数のメトリクス記録先。
type EventRecorder interface {
	RecordRealtimeEvent(topic string)
	RecordRealtimeConnection(delta int)
}

// Hub はトピックごとの購読者を管理し、イベントをファンアウトする。
// 全メソッドはスレッドセーフ。
type Hub struct {
	mu       sync.RWMutex
	topics   map[string]map[*subscriber]struct{}
	recorder EventRecorder
}

// NewHub はHubを生成する。
func NewHub() *Hub {
	return &Hub{
		topics: make(map[string]map[*subscriber]struct{}),
	}
}

// SetRecorder はメトリクスの記録先を設定する。Subscribe開始前に呼ぶこと。
func (h *Hub) SetRecorder(r EventRecorder) {
	h.recorder = r
}

// Subscribe はトピックの購読を開始する。
// 返されたSubscriptionはUnsubscribeで解放すること。
func (h *Hub) Subscribe(topic string) *Subscription {
	sub := &subscriber{
		ch:     make(chan Event, subscriberBufferSize),
		closed: make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*subscriber]struct{})
	}
	h.topics[topic][sub] = struct{}{}

	if h.recorder != nil {
		h.recorder.RecordRealtimeConnection(1)
	}

	return &Subscription{
		Topic:  topic,
		C:      sub.ch,
		ch:     sub.ch,
		closed: sub.closed,
	}
}

// Unsubscribe は購読を解除する。多重呼び出しは無害。
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.topics[sub.Topic]
	for s := range subs {
		if s.ch == sub.ch {
			delete(subs, s)
			close(s.closed)
			if h.recorder != nil {
				h.recorder.RecordRealtimeConnection(-1)
			}
			break
		}
	}
	if len(subs) == 0 {
		delete(h.topics, sub.Topic)
	}
}

// Publish はトピックの全購読者にイベントを配信する。
// バッファが満杯の購読者は切断扱いにして購読を解除する。
// 配信が遅い購読者は再接続後のスナップショット再取得で追いつく前提。
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.topics[event.Topic]
	if len(subs) == 0 {
		return
	}

	if h.recorder != nil {
		h.recorder.RecordRealtimeEvent(event.Topic)
	}

	for s := range subs {
		select {
		case s.ch <- event:
		default:
			delete(subs, s)
			close(s.closed)
			if h.recorder != nil {
				h.recorder.RecordRealtimeConnection(-1)
			}
			slog.Warn("slow realtime subscriber dropped",
				slog.String("topic", event.Topic),
			)
		}
	}
	if len(subs) == 0 {
		delete(h.topics, event.Topic)
	}
}

// SubscriberCount はトピックの現在の購読者数を返す。メトリクスとテスト用。
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
