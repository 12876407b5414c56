// Package client はcraftboardサービスに対するクライアント側の
// セッション・データ同期ライブラリを提供する。
//
// 中心となるのは4つのコンポーネント:
//   - SessionStore: 認証状態の単一の情報源（§認証状態遷移）
//   - Reconciler: 一括取得とプッシュイベントをマージしたフィードの維持
//   - ReadStateTracker: 未読コンテンツ判定の算出と永続化
//   - Submitter: 楽観的更新付きの作成・削除フロー
//
// 各コンポーネントはプロバイダインターフェース（AuthProvider,
// QueryProvider, PushProvider, LocalStore）にのみ依存し、
// HTTP/WebSocket実装（HTTPProvider, WSProvider）とは分離されている。
// テストではfunction fieldのフェイク実装に差し替えられる。
package client

import "time"

// timeNow は仮レコードの作成時刻の取得関数。テストで固定できる。
var timeNow = time.Now

// FeedItem はフィードを構成する1レコード。コメント・お知らせを一般化する。
// IDはサーバー採番で一意。ClientRefは楽観的表示した仮レコードと
// サーバー確定レコードを対応づけるためのクライアント採番の相関ID。
type FeedItem struct {
	ID         string
	ParentKey  string
	AuthorID   string
	AuthorName string
	Body       string
	ClientRef  string
	CreatedAt  time.Time

	// Pending は楽観的に挿入された未確定レコードであることを示す。
	// サーバーの確定レコード（レスポンスまたはプッシュイベント）で
	// 置き換えられるとfalseになる。
	Pending bool
}

// Draft はフィードへの投稿内容。
type Draft struct {
	Body       string
	AuthorID   string
	AuthorName string
}
