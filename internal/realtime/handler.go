package realtime

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeTimeout は1メッセージの書き込みタイムアウト。
	writeTimeout = 10 * time.Second

	// wsPingInterval はWebSocketのpingフレーム送信間隔。
	wsPingInterval = 30 * time.Second

	// pongTimeout はpong応答の待機時間。超過した接続は切断する。
	pongTimeout = 60 * time.Second
)

// Handler はWebSocket接続のアップグレードとイベント配信を行う。
// GET /realtime/ws?ticket={jwt}
type Handler struct {
	hub      *Hub
	tickets  *TicketIssuer
	upgrader websocket.Upgrader
}

// NewHandler はHandlerを生成する。
// allowedOriginが空の場合は同一オリジンのみ許可する（gorillaのデフォルト）。
func NewHandler(hub *Hub, tickets *TicketIssuer, allowedOrigin string) *Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
	if allowedOrigin != "" {
		upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		}
	}

	return &Handler{
		hub:      hub,
		tickets:  tickets,
		upgrader: upgrader,
	}
}

// ServeHTTP はチケットを検証し、WebSocket接続を確立してイベントを配信する。
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		http.Error(w, "ticket is required", http.StatusUnauthorized)
		return
	}

	userID, topic, err := h.tickets.Verify(ticket)
	if err != nil {
		slog.Warn("websocket ticket rejected",
			slog.String("error", err.Error()),
		)
		http.Error(w, "invalid ticket", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeが失敗した場合はupgrader側でエラーレスポンス済み
		slog.Warn("websocket upgrade failed",
			slog.String("error", err.Error()),
		)
		return
	}

	sub := h.hub.Subscribe(topic)

	slog.Info("websocket subscribed",
		slog.String("user_id", userID),
		slog.String("topic", topic),
	)

	go h.readLoop(conn, sub)
	h.writeLoop(conn, sub)

	slog.Info("websocket closed",
		slog.String("user_id", userID),
		slog.String("topic", topic),
	)
}

// writeLoop は購読イベントをWebSocketに書き込む。
// 購読解除・書き込み失敗・ping失敗で終了する。
func (h *Handler) writeLoop(conn *websocket.Conn, sub *Subscription) {
	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()
	defer conn.Close()
	defer h.hub.Unsubscribe(sub)

	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(event); err != nil {
				return
			}

		case <-sub.Closed():
			// Hub側から切断された（配信遅延など）
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "subscriber too slow"))
			return

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop はクライアントからの制御フレームを処理する。
// クライアントはデータフレームを送らない想定で、受信はpong処理と
// 切断検知のためにのみ行う。
func (h *Handler) readLoop(conn *websocket.Conn, sub *Subscription) {
	defer conn.Close()
	defer h.hub.Unsubscribe(sub)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
