package client

import (
	"context"
	"time"
)

// Session は現在の認証済みアイデンティティを表す。
// 値は不変として扱い、変更は常に新しいSession値への置き換えで表現する。
type Session struct {
	SubjectID string
	Username  string
	IsAdmin   bool
	ExpiresAt time.Time
}

// SessionEventKind はセッション遷移イベントの種別。
type SessionEventKind string

const (
	// SessionSignedIn はサインイン（Anonymous/Unknown→Authenticated）。
	SessionSignedIn SessionEventKind = "SIGNED_IN"
	// SessionSignedOut はサインアウト（→Anonymous）。
	SessionSignedOut SessionEventKind = "SIGNED_OUT"
	// SessionRefreshed はセッションの更新。subjectが変わる場合もあるため
	// 購読者は常に全置換として扱うこと。
	SessionRefreshed SessionEventKind = "REFRESHED"
)

// SessionEvent はSessionStoreの購読者に通知される遷移イベント。
// サインアウト系の遷移ではSessionはnil。
type SessionEvent struct {
	Kind    SessionEventKind
	Session *Session
}

// AuthProvider は認証バックエンドの抽象化。
// コールバックは遷移ごとに少なくとも1回発火し、重複発火もありうるため
// 消費側は冪等に処理すること。
type AuthProvider interface {
	// GetSession は権威的なセッションを取得する。未認証の場合は(nil, nil)。
	GetSession(ctx context.Context) (*Session, error)
	// SignIn は認証情報でサインインし、開始されたセッションを返す。
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// SignOut はリモートのセッションを無効化する。
	SignOut(ctx context.Context) error
	// OnAuthStateChange は状態遷移コールバックを登録し、解除関数を返す。
	OnAuthStateChange(fn func(SessionEvent)) (unsubscribe func())
}

// EventKind はプッシュチャネルで配信されるイベント種別。
type EventKind string

const (
	// EventInsert はレコード挿入イベント。
	EventInsert EventKind = "INSERT"
	// EventDelete はレコード削除イベント。
	EventDelete EventKind = "DELETE"
	// EventReconnect はチャネルの再接続完了を示す。再接続の間の
	// イベント欠落を修復するため、消費側はLoadのやり直しを推奨する。
	EventReconnect EventKind = "RECONNECT"
)

// ChannelEvent はプッシュチャネルから届く1イベント。
// INSERTではItemが、DELETEではDeletedIDが設定される。
type ChannelEvent struct {
	Kind      EventKind
	Item      FeedItem
	DeletedID string
}

// PushChannel は購読済みのプッシュチャネル。
// 配信はat-least-onceで、順序はトピック内でのみ保証される。
type PushChannel interface {
	// Events はイベントストリームを返す。チャネルはClose後にcloseされる。
	Events() <-chan ChannelEvent
	// Close はチャネルを解放する。多重呼び出しは無害。
	Close() error
}

// PushProvider はトピック単位のプッシュ購読を開始する。
type PushProvider interface {
	Subscribe(ctx context.Context, topic string) (PushChannel, error)
}

// QueryProvider はフィードデータの問い合わせと変更の抽象化。
// InsertItemは採番済みid/created_atを含む権威的なレコードを返す。
type QueryProvider interface {
	// ListItems はparentKeyのフィード全件を(created_at, id)昇順で返す。
	ListItems(ctx context.Context, parentKey string) ([]FeedItem, error)
	// InsertItem はレコードを作成する。clientRefはサーバーにそのまま
	// 保存され、レスポンスとプッシュイベントの両方で同じ値が返る。
	InsertItem(ctx context.Context, parentKey string, draft Draft, clientRef string) (FeedItem, error)
	// DeleteItem はレコードを削除する。
	DeleteItem(ctx context.Context, id string) error
	// LatestCreatedAt は最新レコードのcreated_atのみを返す。
	// フィードが空の場合は(nil, nil)。
	LatestCreatedAt(ctx context.Context) (*time.Time, error)
}

// LocalStore はプロセスをまたいで生存する耐久ローカルストレージ。
// ベストエフォートであり、利用不能でも決してパニックしない。
type LocalStore interface {
	// GetItem は保存済みの値を返す。未設定の場合はok=false。
	GetItem(key string) (value string, ok bool)
	// SetItem は値を保存する。失敗は握りつぶされる。
	SetItem(key, value string)
}
