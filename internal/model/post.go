// Package model はドメインモデルを定義する。
package model

import "time"

// Post はフォーラムの投稿を表す。
type Post struct {
	ID           string
	AuthorID     string
	Title        string
	Content      string // サニタイズ済みHTML
	Excerpt      string // 一覧表示用のプレーンテキスト抜粋
	ImageURL     string // 添付画像の公開URL（任意）
	CommentCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PostWithAuthor は投稿と投稿者の表示情報を結合したモデル。
// usersテーブルとJOINして取得される。
type PostWithAuthor struct {
	Post
	AuthorName   string
	AuthorAvatar string
	Tags         []Tag
}

// Tag は投稿に付与される分類タグを表す。
type Tag struct {
	ID        string
	Name      string
	CreatedAt time.Time
}
