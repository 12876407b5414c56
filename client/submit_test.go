package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestSubmitter(query *fakeQueryProvider) (*Submitter, *Reconciler) {
	rec := NewReconciler("post-1", query)
	sub := NewSubmitter(rec, query)
	sub.newRef = func() string { return "ref-test" }
	return sub, rec
}

func TestSubmitter_SubmitCreate_ConfirmedByClientRef(t *testing.T) {
	authoritative := FeedItem{
		ID:        "c1",
		ParentKey: "post-1",
		AuthorID:  "user-1",
		Body:      "整地が終わりました",
		ClientRef: "ref-test",
		CreatedAt: at(1000),
	}
	query := &fakeQueryProvider{
		insertFunc: func(ctx context.Context, parentKey string, draft Draft, clientRef string) (FeedItem, error) {
			if parentKey != "post-1" {
				t.Errorf("parentKey = %q, want post-1", parentKey)
			}
			if clientRef != "ref-test" {
				t.Errorf("clientRef = %q, want ref-test", clientRef)
			}
			return authoritative, nil
		},
	}
	sub, rec := newTestSubmitter(query)
	defer rec.Close()

	item, err := sub.SubmitCreate(context.Background(), Draft{Body: "整地が終わりました", AuthorID: "user-1"})
	if err != nil {
		t.Fatalf("SubmitCreate failed: %v", err)
	}
	if item.ID != "c1" {
		t.Errorf("item.ID = %q, want c1", item.ID)
	}

	// 仮レコードは確定レコードに置き換わり、重複しない
	assertIDs(t, rec.Items(), "c1")

	// リアルタイムエコーが後から届いても冪等
	rec.ApplyInsert(authoritative)
	assertIDs(t, rec.Items(), "c1")
}

// TestSubmitter_SubmitCreate_FailureRollsBack は楽観的挿入の後に
// リモートが失敗した場合、最終的なid集合が呼び出し前と同一になる
// ことを検証する。
func TestSubmitter_SubmitCreate_FailureRollsBack(t *testing.T) {
	query := &fakeQueryProvider{
		insertFunc: func(ctx context.Context, parentKey string, draft Draft, clientRef string) (FeedItem, error) {
			return FeedItem{}, errors.New("server rejected")
		},
	}
	sub, rec := newTestSubmitter(query)
	defer rec.Close()

	rec.ApplyInsert(FeedItem{ID: "c0", ParentKey: "post-1", CreatedAt: at(10)})
	before := ids(rec.Items())

	_, err := sub.SubmitCreate(context.Background(), Draft{Body: "x", AuthorID: "user-1"})
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("error = %v, want *SubmissionError", err)
	}

	after := ids(rec.Items())
	if len(after) != len(before) || after[0] != before[0] {
		t.Errorf("items = %v, want %v (rolled back)", after, before)
	}
}

func TestSubmitter_SubmitCreate_OptimisticItemVisibleDuringCall(t *testing.T) {
	var observed []string
	query := &fakeQueryProvider{}
	sub, rec := newTestSubmitter(query)
	defer rec.Close()

	query.insertFunc = func(ctx context.Context, parentKey string, draft Draft, clientRef string) (FeedItem, error) {
		// リモート呼び出し中は仮レコードが見えている
		observed = ids(rec.Items())
		return FeedItem{ID: "c1", ParentKey: "post-1", ClientRef: clientRef, CreatedAt: at(100)}, nil
	}

	if _, err := sub.SubmitCreate(context.Background(), Draft{Body: "x"}); err != nil {
		t.Fatalf("SubmitCreate failed: %v", err)
	}

	if len(observed) != 1 || observed[0] != "pending:ref-test" {
		t.Errorf("observed during call = %v, want the provisional item", observed)
	}
}

func TestSubmitter_SubmitCreate_EmptyBody_NoRemoteCall(t *testing.T) {
	called := false
	query := &fakeQueryProvider{
		insertFunc: func(ctx context.Context, parentKey string, draft Draft, clientRef string) (FeedItem, error) {
			called = true
			return FeedItem{}, nil
		},
	}
	sub, rec := newTestSubmitter(query)
	defer rec.Close()

	_, err := sub.SubmitCreate(context.Background(), Draft{Body: "   "})
	if !errors.Is(err, ErrEmptyDraft) {
		t.Fatalf("error = %v, want ErrEmptyDraft", err)
	}
	if called {
		t.Error("remote insert should not be called for an empty draft")
	}
	if len(rec.Items()) != 0 {
		t.Error("no optimistic item should be inserted for an empty draft")
	}
}

func TestSubmitter_SubmitDelete_RemovesImmediately(t *testing.T) {
	deleteStarted := make(chan struct{})
	release := make(chan struct{})
	query := &fakeQueryProvider{
		deleteFunc: func(ctx context.Context, id string) error {
			close(deleteStarted)
			<-release
			return nil
		},
	}
	sub, rec := newTestSubmitter(query)
	defer rec.Close()

	rec.ApplyInsert(FeedItem{ID: "c1", ParentKey: "post-1", CreatedAt: at(100)})

	done := make(chan error, 1)
	go func() {
		done <- sub.SubmitDelete(context.Background(), "c1")
	}()

	<-deleteStarted
	// リモート完了前からレコードは消えている
	if len(rec.Items()) != 0 {
		t.Error("item should be removed before the remote call completes")
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("SubmitDelete failed: %v", err)
	}
}

// TestSubmitter_SubmitDelete_FailureRestoresItem は削除のリモート失敗時に
// 取り除いたレコードが復元されることを検証する。
func TestSubmitter_SubmitDelete_FailureRestoresItem(t *testing.T) {
	query := &fakeQueryProvider{
		deleteFunc: func(ctx context.Context, id string) error {
			return errors.New("forbidden")
		},
	}
	sub, rec := newTestSubmitter(query)
	defer rec.Close()

	rec.ApplyInsert(FeedItem{ID: "c1", ParentKey: "post-1", CreatedAt: at(100)})
	rec.ApplyInsert(FeedItem{ID: "c2", ParentKey: "post-1", CreatedAt: at(200)})

	err := sub.SubmitDelete(context.Background(), "c1")
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("error = %v, want *SubmissionError", err)
	}

	// 復元後も順序は(created_at, id)昇順
	assertIDs(t, rec.Items(), "c1", "c2")
}

func TestSubmitter_DefaultRefGenerator_ProducesUniqueRefs(t *testing.T) {
	rec := NewReconciler("post-1", &fakeQueryProvider{})
	defer rec.Close()
	sub := NewSubmitter(rec, &fakeQueryProvider{})

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		ref := sub.newRef()
		if ref == "" {
			t.Fatal("generated ref should not be empty")
		}
		if _, dup := seen[ref]; dup {
			t.Fatalf("duplicate ref generated: %s", ref)
		}
		seen[ref] = struct{}{}
	}
}

func TestSubmitter_CreateDeleteInterleaved_ListStaysConsistent(t *testing.T) {
	query := &fakeQueryProvider{
		insertFunc: func(ctx context.Context, parentKey string, draft Draft, clientRef string) (FeedItem, error) {
			return FeedItem{
				ID:        "c-" + clientRef,
				ParentKey: parentKey,
				Body:      draft.Body,
				ClientRef: clientRef,
				CreatedAt: at(time.Now().UnixMilli()),
			}, nil
		},
	}
	rec := NewReconciler("post-1", query)
	defer rec.Close()
	sub := NewSubmitter(rec, query)

	if _, err := sub.SubmitCreate(context.Background(), Draft{Body: "one"}); err != nil {
		t.Fatalf("SubmitCreate failed: %v", err)
	}
	if _, err := sub.SubmitCreate(context.Background(), Draft{Body: "two"}); err != nil {
		t.Fatalf("SubmitCreate failed: %v", err)
	}

	items := rec.Items()
	if len(items) != 2 {
		t.Fatalf("items = %v, want 2", ids(items))
	}
	for _, it := range items {
		if it.Pending {
			t.Errorf("item %s should be confirmed", it.ID)
		}
	}

	if err := sub.SubmitDelete(context.Background(), items[0].ID); err != nil {
		t.Fatalf("SubmitDelete failed: %v", err)
	}
	if len(rec.Items()) != 1 {
		t.Errorf("items = %v, want 1 after delete", ids(rec.Items()))
	}
}
