package client

import (
	"context"
	"log/slog"
	"time"
)

// LatestQuerier は最新レコードのcreated_atのみを取得する最小クエリ。
type LatestQuerier interface {
	LatestCreatedAt(ctx context.Context) (*time.Time, error)
}

// ReadStateTracker は「未読コンテンツあり」のブール値を算出する。
// 既読マーカー（last_seen_at）は耐久ローカルストレージに永続化され、
// プロセスをまたいで生存する。
//
// 通知用の補助機能であり、ストレージが利用不能な環境では
// 「常に既読」に退行する。決してパニックしない。
type ReadStateTracker struct {
	query LatestQuerier
	store LocalStore // nilの場合は常に既読扱い
	key   string

	now func() time.Time
}

// NewReadStateTracker はReadStateTrackerを生成する。
// keyはストレージ上のマーカーのキー。storeはnilでもよい。
func NewReadStateTracker(query LatestQuerier, store LocalStore, key string) *ReadStateTracker {
	return &ReadStateTracker{
		query: query,
		store: store,
		key:   key,
		now:   time.Now,
	}
}

// CheckUnseen は最新レコードのcreated_atとマーカーを比較する。
// マーカーが未設定、またはマーカーより新しいレコードがあればtrue。
// フィードが空の場合は無条件にfalse。
func (t *ReadStateTracker) CheckUnseen(ctx context.Context) (bool, error) {
	latest, err := t.query.LatestCreatedAt(ctx)
	if err != nil {
		return false, &FetchError{Op: "check unseen", Err: err}
	}
	if latest == nil {
		return false, nil
	}
	if t.store == nil {
		return false, nil
	}

	raw, ok := t.store.GetItem(t.key)
	if !ok || raw == "" {
		return true, nil
	}

	marker, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		// 壊れたマーカーは未設定として扱う
		slog.Warn("discarding unparsable read-state marker",
			slog.String("value", raw),
		)
		return true, nil
	}

	return marker.Before(*latest), nil
}

// MarkSeen はマーカーを現在時刻（クライアント時計）に進める。
// 純粋なローカル操作でラウンドトリップは発生しない。
// マーカーは単調非減少で、巻き戻ることはない。
func (t *ReadStateTracker) MarkSeen() {
	if t.store == nil {
		return
	}

	now := t.now()
	if raw, ok := t.store.GetItem(t.key); ok && raw != "" {
		if prev, err := time.Parse(time.RFC3339Nano, raw); err == nil && !prev.Before(now) {
			return
		}
	}
	t.store.SetItem(t.key, now.UTC().Format(time.RFC3339Nano))
}

// Poll はCheckUnseenを即時に1回、以後は固定間隔で実行し、
// 結果をonResultに通知する。コンテキストのキャンセルで終了する。
// チェックの失敗は重要度の低い通知機能のため通知せず読み飛ばす。
func (t *ReadStateTracker) Poll(ctx context.Context, interval time.Duration, onResult func(bool)) {
	check := func() {
		unseen, err := t.CheckUnseen(ctx)
		if err != nil {
			return
		}
		onResult(unseen)
	}

	check()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
