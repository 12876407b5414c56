// Package model はドメインモデルを定義する。
package model

import "time"

// Comment は投稿へのコメントを表す。
// リアルタイムフィードの1レコードとして配信されるため、
// (CreatedAt, ID) の昇順が表示順序の不変条件となる。
type Comment struct {
	ID        string
	PostID    string
	AuthorID  string
	Content   string // サニタイズ済み
	ClientRef string // クライアント生成の相関ID。楽観的更新の確認照合に使う。
	CreatedAt time.Time
}

// CommentWithAuthor はコメントと投稿者の表示情報を結合したモデル。
type CommentWithAuthor struct {
	Comment
	AuthorName   string
	AuthorAvatar string
}
