package client

import (
	"context"
	"sort"
	"sync"
	"time"
)

// confirmWindow はclient_refを持たない確定レコードを内容一致で
// 仮レコードと照合する際に許容する作成時刻差。
const confirmWindow = 5 * time.Second

// Reconciler は1つのparentKeyに対するフィードの重複なし・順序付きの
// ローカル列を維持する。初回の一括取得とプッシュイベントの両方を
// マージ関数として適用し、イベントの順序乱れや重複到着にも安全。
//
// Reconciler自体はリトライを持たない。プッシュ接続の切断復旧は
// トランスポート側の責務で、再接続時はOnReconnect経由でLoadの
// やり直しを促す。
type Reconciler struct {
	parentKey string
	query     QueryProvider

	// OnReconnect はAttach中のチャネルが再接続されたときに呼ばれる。
	// 欠落イベントの修復にはLoadのやり直しが唯一の手段のため、
	// 消費側はここで再取得すること。Attachより前に設定する。
	OnReconnect func()

	mu     sync.Mutex
	items  []FeedItem
	closed bool

	channel   PushChannel
	closeOnce sync.Once
}

// NewReconciler はparentKeyに対するReconcilerを生成する。
func NewReconciler(parentKey string, query QueryProvider) *Reconciler {
	return &Reconciler{
		parentKey: parentKey,
		query:     query,
	}
}

// ParentKey はこのReconcilerが対象とするフィードのキーを返す。
func (r *Reconciler) ParentKey() string {
	return r.parentKey
}

// Load は一括取得を行い、ローカル列を丸ごと置き換える。
// 取得結果は(created_at, id)昇順に整列される。
func (r *Reconciler) Load(ctx context.Context) ([]FeedItem, error) {
	items, err := r.query.ListItems(ctx, r.parentKey)
	if err != nil {
		return nil, &FetchError{Op: "load " + r.parentKey, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// 取得完了前にCloseされた場合は結果を捨てる（unmount後の変更防止）
	if r.closed {
		return nil, nil
	}

	r.items = append([]FeedItem(nil), items...)
	sortItems(r.items)
	return r.snapshotLocked(), nil
}

// Items は現在のローカル列のコピーを返す。常に(created_at, id)昇順。
func (r *Reconciler) Items() []FeedItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// ApplyInsert はプッシュまたはレスポンスで届いた確定レコードをマージする。
// 冪等: 同じidの適用を繰り返しても列にコピーは1つしか残らない。
// client_refが一致する仮レコードがあれば、確定レコードで置き換える。
func (r *Reconciler) ApplyInsert(item FeedItem) {
	// 対象外のフィードのイベントは無視する
	if item.ParentKey != "" && r.parentKey != "" && item.ParentKey != r.parentKey {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	for i := range r.items {
		if r.items[i].ID == item.ID {
			return
		}
	}

	// 相関IDによる仮レコードの確定
	if item.ClientRef != "" {
		for i := range r.items {
			if r.items[i].Pending && r.items[i].ClientRef == item.ClientRef {
				item.Pending = false
				r.items[i] = item
				sortItems(r.items)
				return
			}
		}
	}

	// client_refが落とされた場合の内容一致によるベストエフォート照合
	for i := range r.items {
		p := &r.items[i]
		if p.Pending && p.AuthorID == item.AuthorID && p.Body == item.Body &&
			absDuration(p.CreatedAt.Sub(item.CreatedAt)) <= confirmWindow {
			item.Pending = false
			r.items[i] = item
			sortItems(r.items)
			return
		}
	}

	item.Pending = false
	r.items = append(r.items, item)
	sortItems(r.items)
}

// ApplyDelete は該当idのレコードを取り除く。存在しない場合は何もしない
// （ローカルの楽観的削除と競合したイベントでありエラーではない）。
func (r *Reconciler) ApplyDelete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.removeLocked(id)
}

// Attach はプッシュチャネルのイベントをバックグラウンドで適用する。
// チャネルはClose時に解放される。
func (r *Reconciler) Attach(ch PushChannel) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		ch.Close()
		return
	}
	r.channel = ch
	r.mu.Unlock()

	go func() {
		for ev := range ch.Events() {
			switch ev.Kind {
			case EventInsert:
				r.ApplyInsert(ev.Item)
			case EventDelete:
				r.ApplyDelete(ev.DeletedID)
			case EventReconnect:
				if r.OnReconnect != nil {
					r.OnReconnect()
				}
			}
		}
	}()
}

// Close はプッシュチャネルを解放し、以後の適用をすべて無効化する。
// 多重呼び出しは無害。消費側のビューの破棄時またはparentKeyの
// 切り替え時に必ず呼ぶこと。
func (r *Reconciler) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		ch := r.channel
		r.mu.Unlock()

		if ch != nil {
			ch.Close()
		}
	})
}

// insertOptimistic は仮レコードをローカル列に挿入する。Submitter用。
func (r *Reconciler) insertOptimistic(item FeedItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	item.Pending = true
	r.items = append(r.items, item)
	sortItems(r.items)
}

// remove は該当idのレコードを取り除き、取り除いた値を返す。Submitter用。
func (r *Reconciler) remove(id string) (FeedItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return FeedItem{}, false
	}
	return r.removeLocked(id)
}

// restore は削除ロールバック時にレコードを復元する。Submitter用。
func (r *Reconciler) restore(item FeedItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for i := range r.items {
		if r.items[i].ID == item.ID {
			return
		}
	}
	r.items = append(r.items, item)
	sortItems(r.items)
}

func (r *Reconciler) removeLocked(id string) (FeedItem, bool) {
	for i := range r.items {
		if r.items[i].ID == id {
			removed := r.items[i]
			r.items = append(r.items[:i], r.items[i+1:]...)
			return removed, true
		}
	}
	return FeedItem{}, false
}

func (r *Reconciler) snapshotLocked() []FeedItem {
	return append([]FeedItem(nil), r.items...)
}

// sortItems は(created_at昇順, id昇順)で整列する。同一created_atの
// レコードはidで決定的に並ぶ。
func sortItems(items []FeedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
