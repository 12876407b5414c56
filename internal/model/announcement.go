// Package model はドメインモデルを定義する。
package model

import "time"

// Announcement は運営からのお知らせを表す。
// 管理者の手動作成と、公式ニュースフィードからの自動取込の2経路で生成される。
type Announcement struct {
	ID        string
	AuthorID  string // 自動取込の場合は空
	Title     string
	Content   string // サニタイズ済みHTML
	SourceURL string // 自動取込元の記事URL（手動作成の場合は空）
	SourceGUID string // 取込元フィードのGUID。重複取込の判定キー。
	CreatedAt time.Time
}
