// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/straycat158/craftboard/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile はユーザーのプロフィール（username, avatar_url, bio）を更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するsessions、posts、comments、resourcesはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// PostRepository は投稿データの永続化インターフェース。
type PostRepository interface {
	// FindByID は指定IDの投稿を投稿者情報・タグ付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.PostWithAuthor, error)

	// CreateWithTags は投稿とタグの紐付けを同一トランザクションで作成する。
	// タグは名前で既存行を再利用し、無ければ作成する。
	CreateWithTags(ctx context.Context, post *model.Post, tagNames []string) error

	// List は投稿一覧を作成日時の降順でカーソルベースページネーションを使って取得する。
	// cursorがゼロ値の場合は先頭から取得する。tagNameが空でない場合はタグで絞り込む。
	List(ctx context.Context, tagName string, cursor time.Time, limit int) ([]model.PostWithAuthor, error)

	// DeleteByID は指定IDの投稿を削除する。関連コメント・タグ紐付けはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// TagRepository はタグデータの永続化インターフェース。
type TagRepository interface {
	// ListAll は全タグを名前昇順で返す。
	ListAll(ctx context.Context) ([]model.Tag, error)

	// ListByPostID は指定投稿に付与されたタグを返す。
	ListByPostID(ctx context.Context, postID string) ([]model.Tag, error)
}

// CommentRepository はコメントデータの永続化インターフェース。
// コメントはリアルタイムフィードの配信対象であり、
// 一覧は常に (created_at, id) の昇順で返す。
type CommentRepository interface {
	// Create はコメントを作成する。
	Create(ctx context.Context, comment *model.Comment) error

	// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Comment, error)

	// FindByIDWithAuthor は指定IDのコメントを投稿者情報付きで取得する。
	// リアルタイム配信のINSERTイベントで行本体を再取得する用途。
	FindByIDWithAuthor(ctx context.Context, id string) (*model.CommentWithAuthor, error)

	// ListByPost は投稿のコメント一覧を(created_at, id)昇順で取得する。
	ListByPost(ctx context.Context, postID string) ([]model.CommentWithAuthor, error)

	// DeleteByID は指定IDのコメントを削除する。対象が存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
}

// AnnouncementRepository はお知らせデータの永続化インターフェース。
type AnnouncementRepository interface {
	// Create はお知らせを作成する。
	Create(ctx context.Context, a *model.Announcement) error

	// FindByID は指定IDのお知らせを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Announcement, error)

	// FindBySourceGUID は取込元GUIDでお知らせを検索する。見つからない場合はnilを返す。
	// ニュース取込の重複判定に使用する。
	FindBySourceGUID(ctx context.Context, guid string) (*model.Announcement, error)

	// List はお知らせ一覧を作成日時の降順で取得する。
	List(ctx context.Context, limit int) ([]model.Announcement, error)

	// LatestCreatedAt は最新のお知らせの作成日時のみを取得する。
	// お知らせが1件もない場合はnilを返す。未読判定の最小クエリ。
	LatestCreatedAt(ctx context.Context) (*time.Time, error)

	// DeleteByID は指定IDのお知らせを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// ResourceRepository はリソース一覧データの永続化インターフェース。
type ResourceRepository interface {
	// FindByID は指定IDのリソースを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Resource, error)

	// Create はリソースを作成する。
	Create(ctx context.Context, resource *model.Resource) error

	// List はリソース一覧を作成日時の降順で取得する。
	// categoryが空でない場合はカテゴリで絞り込む。
	List(ctx context.Context, category model.ResourceCategory, limit int) ([]model.Resource, error)

	// UpdateFavicon はリソースのfaviconデータを更新する。
	UpdateFavicon(ctx context.Context, resourceID string, faviconData []byte, faviconMime string) error

	// DeleteByID は指定IDのリソースを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
