package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// channelBufferSize は消費側へのイベントバッファ。
	channelBufferSize = 16

	// reconnectBaseDelay / reconnectMaxDelay は再接続バックオフの範囲。
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second

	// dialTimeout は1回の接続試行のタイムアウト。
	dialTimeout = 10 * time.Second
)

// TicketSource はWebSocket接続チケットの取得元。
// 通常はHTTPProviderがこれを実装する。
type TicketSource interface {
	Ticket(ctx context.Context, topic string) (string, error)
}

// WSProvider はサービスの /realtime/ws エンドポイントに対する
// PushProviderの実装。接続ごとに短命チケットを取得して認証する。
type WSProvider struct {
	baseURL string
	tickets TicketSource
	dialer  *websocket.Dialer
}

var _ PushProvider = (*WSProvider)(nil)

// NewWSProvider はWSProviderを生成する。baseURLはhttp(s)スキームでよく、
// 接続時にws(s)へ変換される。
func NewWSProvider(baseURL string, tickets TicketSource) *WSProvider {
	return &WSProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		tickets: tickets,
		dialer:  websocket.DefaultDialer,
	}
}

// Subscribe はトピックのプッシュ購読を開始する。
// 切断時はバックオフ付きで自動再接続し、再接続完了を
// RECONNECTイベントで消費側に通知する（欠落修復はLoadのやり直し）。
func (p *WSProvider) Subscribe(ctx context.Context, topic string) (PushChannel, error) {
	conn, err := p.dial(ctx, topic)
	if err != nil {
		return nil, &FetchError{Op: "subscribe " + topic, Err: err}
	}

	ch := &wsChannel{
		provider: p,
		topic:    topic,
		events:   make(chan ChannelEvent, channelBufferSize),
		done:     make(chan struct{}),
	}
	go ch.run(conn)
	return ch, nil
}

// dial はチケットを取得してWebSocket接続を確立する。
func (p *WSProvider) dial(ctx context.Context, topic string) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	ticket, err := p.tickets.Ticket(dialCtx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain ticket: %w", err)
	}

	wsURL, err := toWebSocketURL(p.baseURL)
	if err != nil {
		return nil, err
	}

	conn, resp, err := p.dialer.DialContext(dialCtx,
		wsURL+"/realtime/ws?ticket="+url.QueryEscape(ticket), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// wsChannel はWebSocket接続1本に対するPushChannelの実装。
type wsChannel struct {
	provider *WSProvider
	topic    string
	events   chan ChannelEvent

	closeOnce sync.Once
	done      chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
}

var _ PushChannel = (*wsChannel)(nil)

func (c *wsChannel) Events() <-chan ChannelEvent {
	return c.events
}

// Close はチャネルを解放する。多重呼び出しは無害。
func (c *wsChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	})
	return nil
}

// run は接続の読み取りと再接続を繰り返す。Closeで終了する。
func (c *wsChannel) run(conn *websocket.Conn) {
	defer close(c.events)

	for {
		c.setConn(conn)
		c.readAll(conn)
		conn.Close()

		if c.isClosed() {
			return
		}

		conn = c.redial()
		if conn == nil {
			return
		}
		c.emit(ChannelEvent{Kind: EventReconnect})
	}
}

// readAll は接続からイベントを読み続け、エラーで戻る。
func (c *wsChannel) readAll(conn *websocket.Conn) {
	for {
		var ev wireEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if !c.isClosed() {
				slog.Warn("realtime channel read failed",
					slog.String("topic", c.topic),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		mapped, ok := ev.toChannelEvent()
		if !ok {
			continue
		}
		if !c.emit(mapped) {
			return
		}
	}
}

// redial はバックオフ付きで再接続を試みる。Close済みならnilを返す。
// チケットは短命のため試行ごとに取り直す。
func (c *wsChannel) redial() *websocket.Conn {
	delay := reconnectBaseDelay
	for {
		select {
		case <-c.done:
			return nil
		case <-time.After(delay):
		}

		conn, err := c.provider.dial(context.Background(), c.topic)
		if err == nil {
			return conn
		}

		slog.Warn("realtime channel reconnect failed",
			slog.String("topic", c.topic),
			slog.String("error", err.Error()),
		)

		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

func (c *wsChannel) emit(ev ChannelEvent) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *wsChannel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *wsChannel) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// wireEvent は /realtime/ws が配信するイベントのJSON形式。
type wireEvent struct {
	Topic        string            `json:"topic"`
	Kind         string            `json:"kind"`
	Comment      *wireComment      `json:"comment"`
	Announcement *wireAnnouncement `json:"announcement"`
	DeletedID    string            `json:"deleted_id"`
}

// wireAnnouncement はお知らせINSERTイベントの行データ。
type wireAnnouncement struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// toChannelEvent はワイヤイベントをChannelEventに変換する。
// 未知の種別は読み飛ばす（ok=false）。
func (ev *wireEvent) toChannelEvent() (ChannelEvent, bool) {
	switch ev.Kind {
	case "INSERT":
		switch {
		case ev.Comment != nil:
			return ChannelEvent{Kind: EventInsert, Item: ev.Comment.toFeedItem()}, true
		case ev.Announcement != nil:
			return ChannelEvent{Kind: EventInsert, Item: FeedItem{
				ID:        ev.Announcement.ID,
				ParentKey: ev.Topic,
				Body:      ev.Announcement.Content,
				CreatedAt: ev.Announcement.CreatedAt,
			}}, true
		}
		return ChannelEvent{}, false
	case "DELETE":
		return ChannelEvent{Kind: EventDelete, DeletedID: ev.DeletedID}, true
	default:
		return ChannelEvent{}, false
	}
}

// toWebSocketURL はhttp(s)のベースURLをws(s)に変換する。
func toWebSocketURL(baseURL string) (string, error) {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://"), nil
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://"), nil
	case strings.HasPrefix(baseURL, "ws://"), strings.HasPrefix(baseURL, "wss://"):
		return baseURL, nil
	default:
		return "", fmt.Errorf("unsupported base URL scheme: %s", baseURL)
	}
}
