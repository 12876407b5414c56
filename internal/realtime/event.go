// Package realtime はPostgreSQLのNOTIFYを起点とした
// WebSocketリアルタイム配信機能を提供する。
//
// 配信経路: DBトリガー → pg_notify → Listener → Hub → WebSocket購読者
package realtime

import (
	"fmt"
	"strings"
	"time"
)

// トピック名の定義。
// comments:{post_id} は特定投稿のコメントストリーム、
// announcements は全体のお知らせストリーム。
const (
	TopicAnnouncements   = "announcements"
	topicCommentsPrefix  = "comments:"
	maxTopicPostIDLength = 64
)

// EventKind はイベント種別を表す。
type EventKind string

const (
	// EventKindInsert はレコード挿入イベント。
	EventKindInsert EventKind = "INSERT"
	// EventKindDelete はレコード削除イベント。
	EventKindDelete EventKind = "DELETE"
)

// CommentRecord はコメントINSERTイベントで配信される行データ。
type CommentRecord struct {
	ID           string    `json:"id"`
	PostID       string    `json:"post_id"`
	AuthorID     string    `json:"author_id"`
	AuthorName   string    `json:"author_name"`
	AuthorAvatar string    `json:"author_avatar,omitempty"`
	Content      string    `json:"content"`
	ClientRef    string    `json:"client_ref,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AnnouncementRecord はお知らせINSERTイベントで配信される行データ。
type AnnouncementRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	SourceURL string    `json:"source_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Event はWebSocketで配信されるイベント。
// INSERTの場合は行データが、DELETEの場合は削除されたIDのみが含まれる。
type Event struct {
	Topic        string              `json:"topic"`
	Kind         EventKind           `json:"kind"`
	Comment      *CommentRecord      `json:"comment,omitempty"`
	Announcement *AnnouncementRecord `json:"announcement,omitempty"`
	DeletedID    string              `json:"deleted_id,omitempty"`
}

// CommentTopic は投稿IDからコメントトピック名を生成する。
func CommentTopic(postID string) string {
	return topicCommentsPrefix + postID
}

// ValidateTopic はトピック名の形式を検証する。
// 有効な形式は announcements と comments:{post_id} のみ。
func ValidateTopic(topic string) error {
	if topic == TopicAnnouncements {
		return nil
	}

	if postID, ok := strings.CutPrefix(topic, topicCommentsPrefix); ok {
		if postID == "" || len(postID) > maxTopicPostIDLength {
			return fmt.Errorf("invalid post ID in topic: %s", topic)
		}
		if strings.ContainsAny(postID, " \t\n:") {
			return fmt.Errorf("invalid post ID in topic: %s", topic)
		}
		return nil
	}

	return fmt.Errorf("unknown topic: %s", topic)
}
