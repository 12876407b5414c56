// Package model はドメインモデルを定義する。
package model

import "time"

// User はフォーラム利用ユーザーを表す。
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	AvatarURL    string
	Bio          string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
// 値はイミュータブルとして扱い、更新時は新しい値で丸ごと置き換える。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Profile はAPIで公開するユーザープロフィールを表す。
// PasswordHash等の内部フィールドを含まない。
type Profile struct {
	ID        string
	Username  string
	AvatarURL string
	Bio       string
	IsAdmin   bool
	CreatedAt time.Time
}

// ToProfile はUserから公開プロフィールを生成する。
func (u *User) ToProfile() Profile {
	return Profile{
		ID:        u.ID,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
		Bio:       u.Bio,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}
