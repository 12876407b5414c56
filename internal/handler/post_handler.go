package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/straycat158/craftboard/internal/middleware"
	"github.com/straycat158/craftboard/internal/model"
	"github.com/straycat158/craftboard/internal/post"
)

// PostServiceInterface は投稿ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	// Create は投稿を作成する。コンテンツはサニタイズされる。
	Create(ctx context.Context, authorID string, input post.CreateInput) (*model.Post, error)
	// List は投稿一覧をカーソルベースページネーションで返す。
	List(ctx context.Context, tagName, cursor string, limit int) (*post.ListResult, error)
	// Get は投稿詳細を投稿者情報付きで返す。
	Get(ctx context.Context, postID string) (*model.PostWithAuthor, error)
	// Delete は投稿を削除する。作成者本人または管理者のみ。
	Delete(ctx context.Context, postID, userID string, isAdmin bool) error
	// ListTags は登録済みタグの一覧を返す。
	ListTags(ctx context.Context) ([]model.Tag, error)
}

// PostHandler は投稿管理のHTTPハンドラー。
type PostHandler struct {
	service PostServiceInterface
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface) *PostHandler {
	return &PostHandler{service: service}
}

// --- リクエスト・レスポンス型 ---

// createPostRequest は投稿作成リクエストのボディ。
type createPostRequest struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	ImageURL string   `json:"image_url,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// tagResponse はタグのAPIレスポンス。
type tagResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// postSummaryResponse は投稿一覧のサマリーレスポンス。
type postSummaryResponse struct {
	ID           string        `json:"id"`
	AuthorID     string        `json:"author_id"`
	AuthorName   string        `json:"author_name"`
	AuthorAvatar string        `json:"author_avatar,omitempty"`
	Title        string        `json:"title"`
	Excerpt      string        `json:"excerpt"`
	ImageURL     string        `json:"image_url,omitempty"`
	Tags         []tagResponse `json:"tags"`
	CommentCount int           `json:"comment_count"`
	CreatedAt    time.Time     `json:"created_at"`
}

// postListResponse は投稿一覧のレスポンス。
type postListResponse struct {
	Posts      []postSummaryResponse `json:"posts"`
	NextCursor string                `json:"next_cursor,omitempty"`
	HasMore    bool                  `json:"has_more"`
}

// postDetailResponse は投稿詳細のレスポンス。
type postDetailResponse struct {
	postSummaryResponse
	Content string `json:"content"` // サニタイズ済みHTML
}

// createPostResponse は投稿作成のレスポンス。
type createPostResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Excerpt   string    `json:"excerpt"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListPosts は投稿一覧を取得する。
// GET /api/posts?tag=xxx&cursor=yyy&limit=20
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	tagName := r.URL.Query().Get("tag")
	cursor := r.URL.Query().Get("cursor")

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_REQUEST",
				Message:  "limitには数値を指定してください。",
				Category: "validation",
				Action:   "クエリパラメータを確認してください。",
			})
			return
		}
		limit = parsed
	}

	result, err := h.service.List(r.Context(), tagName, cursor, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := postListResponse{
		Posts:      make([]postSummaryResponse, 0, len(result.Posts)),
		NextCursor: result.NextCursor,
		HasMore:    result.HasMore,
	}
	for i := range result.Posts {
		resp.Posts = append(resp.Posts, toPostSummaryResponse(&result.Posts[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetPost は投稿詳細を取得する。
// GET /api/posts/:id
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "id")

	detail, err := h.service.Get(r.Context(), postID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, postDetailResponse{
		postSummaryResponse: toPostSummaryResponse(detail),
		Content:             detail.Content,
	})
}

// CreatePost は投稿を作成する。
// POST /api/posts
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	created, err := h.service.Create(r.Context(), userID, post.CreateInput{
		Title:    req.Title,
		Content:  req.Content,
		ImageURL: req.ImageURL,
		TagNames: req.Tags,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createPostResponse{
		ID:        created.ID,
		Title:     created.Title,
		Content:   created.Content,
		Excerpt:   created.Excerpt,
		ImageURL:  created.ImageURL,
		CreatedAt: created.CreatedAt,
	})
}

// DeletePost は投稿を削除する。作成者本人または管理者のみ。
// DELETE /api/posts/:id
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	postID := chi.URLParam(r, "id")
	isAdmin := middleware.IsAdminFromContext(r.Context())

	if err := h.service.Delete(r.Context(), postID, userID, isAdmin); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListTags は登録済みタグの一覧を取得する。
// GET /api/tags
func (h *PostHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.service.ListTags(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]tagResponse, 0, len(tags))
	for _, tag := range tags {
		resp = append(resp, tagResponse{ID: tag.ID, Name: tag.Name})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"tags": resp})
}

// toPostSummaryResponse はmodel.PostWithAuthorからサマリーレスポンスに変換する。
func toPostSummaryResponse(p *model.PostWithAuthor) postSummaryResponse {
	tags := make([]tagResponse, 0, len(p.Tags))
	for _, tag := range p.Tags {
		tags = append(tags, tagResponse{ID: tag.ID, Name: tag.Name})
	}
	return postSummaryResponse{
		ID:           p.ID,
		AuthorID:     p.AuthorID,
		AuthorName:   p.AuthorName,
		AuthorAvatar: p.AuthorAvatar,
		Title:        p.Title,
		Excerpt:      p.Excerpt,
		ImageURL:     p.ImageURL,
		Tags:         tags,
		CommentCount: p.CommentCount,
		CreatedAt:    p.CreatedAt,
	}
}
