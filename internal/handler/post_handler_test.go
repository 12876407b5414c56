package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/straycat158/craftboard/internal/middleware"
	"github.com/straycat158/craftboard/internal/model"
	"github.com/straycat158/craftboard/internal/post"
)

// mockPostService はPostServiceInterfaceのテスト用実装。
type mockPostService struct {
	createFunc   func(ctx context.Context, authorID string, input post.CreateInput) (*model.Post, error)
	listFunc     func(ctx context.Context, tagName, cursor string, limit int) (*post.ListResult, error)
	getFunc      func(ctx context.Context, postID string) (*model.PostWithAuthor, error)
	deleteFunc   func(ctx context.Context, postID, userID string, isAdmin bool) error
	listTagsFunc func(ctx context.Context) ([]model.Tag, error)
}

func (m *mockPostService) Create(ctx context.Context, authorID string, input post.CreateInput) (*model.Post, error) {
	return m.createFunc(ctx, authorID, input)
}

func (m *mockPostService) List(ctx context.Context, tagName, cursor string, limit int) (*post.ListResult, error) {
	return m.listFunc(ctx, tagName, cursor, limit)
}

func (m *mockPostService) Get(ctx context.Context, postID string) (*model.PostWithAuthor, error) {
	return m.getFunc(ctx, postID)
}

func (m *mockPostService) Delete(ctx context.Context, postID, userID string, isAdmin bool) error {
	return m.deleteFunc(ctx, postID, userID, isAdmin)
}

func (m *mockPostService) ListTags(ctx context.Context) ([]model.Tag, error) {
	return m.listTagsFunc(ctx)
}

func testPostWithAuthor() model.PostWithAuthor {
	return model.PostWithAuthor{
		Post: model.Post{
			ID:        "post-1",
			AuthorID:  "user-1",
			Title:     "整地のコツ",
			Content:   "<p>ビーコンを使う</p>",
			Excerpt:   "ビーコンを使う",
			CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		AuthorName: "taro",
		Tags:       []model.Tag{{ID: "tag-1", Name: "建築"}},
	}
}

func TestPostHandler_ListPosts_PassesQueryParams(t *testing.T) {
	service := &mockPostService{
		listFunc: func(ctx context.Context, tagName, cursor string, limit int) (*post.ListResult, error) {
			if tagName != "建築" {
				t.Errorf("tag = %q, want 建築", tagName)
			}
			if cursor != "2026-03-01T00:00:00Z" {
				t.Errorf("cursor = %q", cursor)
			}
			if limit != 10 {
				t.Errorf("limit = %d, want 10", limit)
			}
			return &post.ListResult{
				Posts:      []model.PostWithAuthor{testPostWithAuthor()},
				NextCursor: "2026-02-28T00:00:00Z",
				HasMore:    true,
			}, nil
		},
	}
	h := NewPostHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/api/posts?tag=建築&cursor=2026-03-01T00:00:00Z&limit=10", nil)
	w := httptest.NewRecorder()

	h.ListPosts(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got postListResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got.Posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(got.Posts))
	}
	if got.Posts[0].AuthorName != "taro" {
		t.Errorf("author_name = %q, want taro", got.Posts[0].AuthorName)
	}
	if !got.HasMore {
		t.Error("has_more should be true")
	}
}

func TestPostHandler_ListPosts_InvalidLimit_Returns400(t *testing.T) {
	h := NewPostHandler(&mockPostService{})

	req := httptest.NewRequest(http.MethodGet, "/api/posts?limit=abc", nil)
	w := httptest.NewRecorder()

	h.ListPosts(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestPostHandler_GetPost_NotFound_Returns404(t *testing.T) {
	service := &mockPostService{
		getFunc: func(ctx context.Context, postID string) (*model.PostWithAuthor, error) {
			return nil, model.NewPostNotFoundError(postID)
		},
	}
	h := NewPostHandler(service)

	r := chi.NewRouter()
	r.Get("/api/posts/{id}", h.GetPost)

	req := httptest.NewRequest(http.MethodGet, "/api/posts/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

func TestPostHandler_GetPost_IncludesContent(t *testing.T) {
	service := &mockPostService{
		getFunc: func(ctx context.Context, postID string) (*model.PostWithAuthor, error) {
			p := testPostWithAuthor()
			return &p, nil
		},
	}
	h := NewPostHandler(service)

	r := chi.NewRouter()
	r.Get("/api/posts/{id}", h.GetPost)

	req := httptest.NewRequest(http.MethodGet, "/api/posts/post-1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var got postDetailResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Content != "<p>ビーコンを使う</p>" {
		t.Errorf("content = %q", got.Content)
	}
	if len(got.Tags) != 1 || got.Tags[0].Name != "建築" {
		t.Errorf("tags = %+v", got.Tags)
	}
}

func TestPostHandler_CreatePost_RequiresAuth(t *testing.T) {
	h := NewPostHandler(&mockPostService{})

	req := httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(`{"title":"t","content":"c"}`))
	w := httptest.NewRecorder()

	h.CreatePost(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestPostHandler_CreatePost_Success(t *testing.T) {
	service := &mockPostService{
		createFunc: func(ctx context.Context, authorID string, input post.CreateInput) (*model.Post, error) {
			if authorID != "user-1" {
				t.Errorf("author ID = %q, want user-1", authorID)
			}
			if len(input.TagNames) != 2 {
				t.Errorf("tag names = %v", input.TagNames)
			}
			return &model.Post{
				ID:      "post-new",
				Title:   input.Title,
				Content: input.Content,
			}, nil
		},
	}
	h := NewPostHandler(service)

	body := `{"title":"拠点の回路","content":"<p>オブザーバー式</p>","tags":["レッドストーン","建築"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(body))
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	w := httptest.NewRecorder()

	h.CreatePost(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var got createPostResponse
	json.NewDecoder(resp.Body).Decode(&got)
	if got.ID != "post-new" {
		t.Errorf("id = %q, want post-new", got.ID)
	}
}

func TestPostHandler_DeletePost_PassesAdminFlag(t *testing.T) {
	var gotAdmin bool
	service := &mockPostService{
		deleteFunc: func(ctx context.Context, postID, userID string, isAdmin bool) error {
			gotAdmin = isAdmin
			return nil
		},
	}
	h := NewPostHandler(service)

	r := chi.NewRouter()
	r.Delete("/api/posts/{id}", h.DeletePost)

	req := httptest.NewRequest(http.MethodDelete, "/api/posts/post-1", nil)
	ctx := middleware.ContextWithUserID(req.Context(), "admin-1")
	ctx = middleware.ContextWithAdmin(ctx, true)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	if !gotAdmin {
		t.Error("admin flag should be passed to service")
	}
}

func TestPostHandler_DeletePost_NotOwner_Returns403(t *testing.T) {
	service := &mockPostService{
		deleteFunc: func(ctx context.Context, postID, userID string, isAdmin bool) error {
			return model.NewNotOwnerError()
		},
	}
	h := NewPostHandler(service)

	r := chi.NewRouter()
	r.Delete("/api/posts/{id}", h.DeletePost)

	req := httptest.NewRequest(http.MethodDelete, "/api/posts/post-1", nil)
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "other-user"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}

func TestPostHandler_ListTags(t *testing.T) {
	service := &mockPostService{
		listTagsFunc: func(ctx context.Context) ([]model.Tag, error) {
			return []model.Tag{
				{ID: "tag-1", Name: "建築"},
				{ID: "tag-2", Name: "サバイバル"},
			}, nil
		},
	}
	h := NewPostHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/api/tags", nil)
	w := httptest.NewRecorder()

	h.ListTags(w, req)

	var got struct {
		Tags []tagResponse `json:"tags"`
	}
	if err := json.NewDecoder(w.Result().Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got.Tags) != 2 {
		t.Errorf("tags = %d, want 2", len(got.Tags))
	}
}
