package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/straycat158/craftboard/internal/repository"
)

// notifyChannelName はDBトリガーがpg_notifyする通知チャネル名。
const notifyChannelName = "craftboard_events"

// pingInterval はリスナー接続の生存確認間隔。
const pingInterval = 90 * time.Second

// Notifier はpq.Listenerの抽象化。テストではフェイク実装に差し替える。
type Notifier interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// pqNotifier は*pq.ListenerによるNotifierの実装。
type pqNotifier struct {
	listener *pq.Listener
}

// NewPQNotifier はlib/pqのLISTEN接続を確立してNotifierを生成する。
func NewPQNotifier(databaseURL string) Notifier {
	listener := pq.NewListener(databaseURL, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				slog.Error("pq listener event",
					slog.Int("event", int(ev)),
					slog.String("error", err.Error()),
				)
			}
		})
	return &pqNotifier{listener: listener}
}

func (n *pqNotifier) Listen(channel string) error {
	return n.listener.Listen(channel)
}

func (n *pqNotifier) NotificationChannel() <-chan *pq.Notification {
	return n.listener.Notify
}

func (n *pqNotifier) Ping() error {
	return n.listener.Ping()
}

func (n *pqNotifier) Close() error {
	return n.listener.Close()
}

// notifyPayload はDBトリガーが送る通知ペイロード。
// NOTIFYの8000バイト制限を避けるため識別子のみを含む。
type notifyPayload struct {
	Table    string `json:"table"`
	Kind     string `json:"kind"`
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
}

// Listener はpg_notifyの通知を受け取り、行本体を再取得してHubに配信する。
type Listener struct {
	notifier         Notifier
	hub              *Hub
	commentRepo      repository.CommentRepository
	announcementRepo repository.AnnouncementRepository
	logger           *slog.Logger
}

// NewListener はListenerを生成する。
func NewListener(
	notifier Notifier,
	hub *Hub,
	commentRepo repository.CommentRepository,
	announcementRepo repository.AnnouncementRepository,
	logger *slog.Logger,
) *Listener {
	return &Listener{
		notifier:         notifier,
		hub:              hub,
		commentRepo:      commentRepo,
		announcementRepo: announcementRepo,
		logger:           logger,
	}
}

// Run は通知チャネルのLISTENを開始し、コンテキストがキャンセルされるまで
// 通知を処理し続ける。
func (l *Listener) Run(ctx context.Context) error {
	if err := l.notifier.Listen(notifyChannelName); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", notifyChannelName, err)
	}
	defer l.notifier.Close()

	l.logger.Info("リアルタイムリスナーを開始しました",
		slog.String("channel", notifyChannelName),
	)

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	notifications := l.notifier.NotificationChannel()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("リアルタイムリスナーを停止しました")
			return nil

		case n, ok := <-notifications:
			if !ok {
				return fmt.Errorf("notification channel closed")
			}
			// 再接続時はnil通知が届く。取りこぼしの可能性があるため警告を残す。
			// 接続中だったクライアントは再接続時のスナップショット再取得で追いつく。
			if n == nil {
				l.logger.Warn("listener reconnected, events may have been missed")
				continue
			}
			l.handleNotification(ctx, n.Extra)

		case <-pingTicker.C:
			if err := l.notifier.Ping(); err != nil {
				l.logger.Error("listener ping failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// handleNotification は1件の通知を解析し、対応するイベントをHubに配信する。
func (l *Listener) handleNotification(ctx context.Context, raw string) {
	var payload notifyPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		l.logger.Error("invalid notify payload",
			slog.String("payload", raw),
			slog.String("error", err.Error()),
		)
		return
	}

	switch payload.Table {
	case "comments":
		l.handleCommentEvent(ctx, payload)
	case "announcements":
		l.handleAnnouncementEvent(ctx, payload)
	default:
		l.logger.Warn("notify for unknown table",
			slog.String("table", payload.Table),
		)
	}
}

// handleCommentEvent はコメントのINSERT/DELETE通知を処理する。
// INSERTは行本体を投稿者情報付きで再取得して配信する。
// 配信前に行が削除されていた場合は配信をスキップする
// （後続のDELETE通知が購読者に届く）。
func (l *Listener) handleCommentEvent(ctx context.Context, payload notifyPayload) {
	topic := CommentTopic(payload.ParentID)

	switch EventKind(payload.Kind) {
	case EventKindInsert:
		comment, err := l.commentRepo.FindByIDWithAuthor(ctx, payload.ID)
		if err != nil {
			l.logger.Error("failed to refetch comment for event",
				slog.String("comment_id", payload.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		if comment == nil {
			return
		}

		l.hub.Publish(Event{
			Topic: topic,
			Kind:  EventKindInsert,
			Comment: &CommentRecord{
				ID:           comment.ID,
				PostID:       comment.PostID,
				AuthorID:     comment.AuthorID,
				AuthorName:   comment.AuthorName,
				AuthorAvatar: comment.AuthorAvatar,
				Content:      comment.Content,
				ClientRef:    comment.ClientRef,
				CreatedAt:    comment.CreatedAt,
			},
		})

	case EventKindDelete:
		l.hub.Publish(Event{
			Topic:     topic,
			Kind:      EventKindDelete,
			DeletedID: payload.ID,
		})
	}
}

// handleAnnouncementEvent はお知らせのINSERT/DELETE通知を処理する。
func (l *Listener) handleAnnouncementEvent(ctx context.Context, payload notifyPayload) {
	switch EventKind(payload.Kind) {
	case EventKindInsert:
		a, err := l.announcementRepo.FindByID(ctx, payload.ID)
		if err != nil {
			l.logger.Error("failed to refetch announcement for event",
				slog.String("announcement_id", payload.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		if a == nil {
			return
		}

		l.hub.Publish(Event{
			Topic: TopicAnnouncements,
			Kind:  EventKindInsert,
			Announcement: &AnnouncementRecord{
				ID:        a.ID,
				Title:     a.Title,
				Content:   a.Content,
				SourceURL: a.SourceURL,
				CreatedAt: a.CreatedAt,
			},
		})

	case EventKindDelete:
		l.hub.Publish(Event{
			Topic:     TopicAnnouncements,
			Kind:      EventKindDelete,
			DeletedID: payload.ID,
		})
	}
}
