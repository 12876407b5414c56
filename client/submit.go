package client

import (
	"context"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
)

// ErrEmptyDraft は本文が空の投稿を表す。リモート呼び出し前の
// ローカル検証で返され、楽観的挿入は行われない。
var ErrEmptyDraft = errors.New("draft body is empty")

// pendingIDPrefix は仮レコードの暫定IDの接頭辞。サーバー採番のIDと
// 衝突しないことだけが要件。
const pendingIDPrefix = "pending:"

// Submitter はユーザー操作の作成・削除をラップし、リモート完了前に
// ローカル列へ結果を反映する楽観的更新フローを提供する。
//
// 各ステップはReconcilerのロック下で原子的に適用されるため、
// 呼び出し側から部分適用された変更が見えることはない。
type Submitter struct {
	rec   *Reconciler
	query QueryProvider

	// newRef は相関IDの生成関数。テストで固定値に差し替えられる。
	newRef func() string
}

// NewSubmitter はSubmitterを生成する。
func NewSubmitter(rec *Reconciler, query QueryProvider) *Submitter {
	return &Submitter{
		rec:   rec,
		query: query,
		newRef: func() string {
			return ulid.Make().String()
		},
	}
}

// SubmitCreate は投稿をローカルに楽観的挿入してからリモート作成を行う。
// 成功時は仮レコードがサーバー確定レコード（client_refで照合）に
// 置き換わり、失敗時は仮レコードを取り除いてエラーを返す。
// リアルタイムエコーが先に届いた場合もclient_refの冪等な適用により
// 重複は生じない。
func (s *Submitter) SubmitCreate(ctx context.Context, draft Draft) (FeedItem, error) {
	if strings.TrimSpace(draft.Body) == "" {
		return FeedItem{}, &SubmissionError{Op: "create", Err: ErrEmptyDraft}
	}

	ref := s.newRef()
	provisional := FeedItem{
		ID:         pendingIDPrefix + ref,
		ParentKey:  s.rec.ParentKey(),
		AuthorID:   draft.AuthorID,
		AuthorName: draft.AuthorName,
		Body:       draft.Body,
		ClientRef:  ref,
		CreatedAt:  timeNow(),
	}
	s.rec.insertOptimistic(provisional)

	item, err := s.query.InsertItem(ctx, s.rec.ParentKey(), draft, ref)
	if err != nil {
		s.rec.remove(provisional.ID)
		return FeedItem{}, &SubmissionError{Op: "create", ClientRef: ref, Err: err}
	}

	s.rec.ApplyInsert(item)
	return item, nil
}

// SubmitDelete はレコードをローカルから即時に取り除いてから
// リモート削除を行う。失敗時は取り除いたレコードを復元して
// エラーを返す（ロールバックは必須の契約）。
func (s *Submitter) SubmitDelete(ctx context.Context, id string) error {
	removed, ok := s.rec.remove(id)

	if err := s.query.DeleteItem(ctx, id); err != nil {
		if ok {
			s.rec.restore(removed)
		}
		return &SubmissionError{Op: "delete", Err: err}
	}

	return nil
}
