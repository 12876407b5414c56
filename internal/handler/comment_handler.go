package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/straycat158/craftboard/internal/comment"
	"github.com/straycat158/craftboard/internal/middleware"
	"github.com/straycat158/craftboard/internal/model"
)

// CommentServiceInterface はコメントハンドラーが必要とするサービスインターフェース。
type CommentServiceInterface interface {
	// Create はコメントを作成する。ClientRefはレスポンスとリアルタイム配信で返される。
	Create(ctx context.Context, authorID string, input comment.CreateInput) (*model.Comment, error)
	// ListByPost は投稿のコメント一覧を(作成日時, ID)昇順で返す。
	ListByPost(ctx context.Context, postID string) ([]model.CommentWithAuthor, error)
	// Delete はコメントを削除する。作成者本人または管理者のみ。
	Delete(ctx context.Context, commentID, userID string, isAdmin bool) error
}

// CommentCreatedRecorder はコメント作成数のメトリクス記録インターフェース。
type CommentCreatedRecorder interface {
	RecordCommentCreated()
}

// CommentHandler はコメント管理のHTTPハンドラー。
type CommentHandler struct {
	service  CommentServiceInterface
	recorder CommentCreatedRecorder
}

// NewCommentHandler はCommentHandlerを生成する。recorderはnilでもよい。
func NewCommentHandler(service CommentServiceInterface, recorder CommentCreatedRecorder) *CommentHandler {
	return &CommentHandler{
		service:  service,
		recorder: recorder,
	}
}

// createCommentRequest はコメント作成リクエストのボディ。
type createCommentRequest struct {
	Content   string `json:"content"`
	ClientRef string `json:"client_ref,omitempty"`
}

// commentResponse はコメントのAPIレスポンス。
type commentResponse struct {
	ID           string    `json:"id"`
	PostID       string    `json:"post_id"`
	AuthorID     string    `json:"author_id"`
	AuthorName   string    `json:"author_name,omitempty"`
	AuthorAvatar string    `json:"author_avatar,omitempty"`
	Content      string    `json:"content"`
	ClientRef    string    `json:"client_ref,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// commentListResponse はコメント一覧のレスポンス。
type commentListResponse struct {
	Comments []commentResponse `json:"comments"`
}

// ListComments は投稿のコメント一覧を取得する。
// GET /api/posts/:id/comments
func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "id")

	comments, err := h.service.ListByPost(r.Context(), postID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := commentListResponse{
		Comments: make([]commentResponse, 0, len(comments)),
	}
	for i := range comments {
		c := &comments[i]
		resp.Comments = append(resp.Comments, commentResponse{
			ID:           c.ID,
			PostID:       c.PostID,
			AuthorID:     c.AuthorID,
			AuthorName:   c.AuthorName,
			AuthorAvatar: c.AuthorAvatar,
			Content:      c.Content,
			ClientRef:    c.ClientRef,
			CreatedAt:    c.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateComment はコメントを作成する。
// POST /api/posts/:id/comments
// client_refを指定すると、レスポンスとリアルタイム配信のレコード両方に
// 同じ値が含まれ、クライアントは楽観的表示した仮レコードと照合できる。
func (h *CommentHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	postID := chi.URLParam(r, "id")

	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	created, err := h.service.Create(r.Context(), userID, comment.CreateInput{
		PostID:    postID,
		Content:   req.Content,
		ClientRef: req.ClientRef,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordCommentCreated()
	}

	writeJSON(w, http.StatusCreated, commentResponse{
		ID:        created.ID,
		PostID:    created.PostID,
		AuthorID:  created.AuthorID,
		Content:   created.Content,
		ClientRef: created.ClientRef,
		CreatedAt: created.CreatedAt,
	})
}

// DeleteComment はコメントを削除する。作成者本人または管理者のみ。
// DELETE /api/comments/:id
func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	commentID := chi.URLParam(r, "id")
	isAdmin := middleware.IsAdminFromContext(r.Context())

	if err := h.service.Delete(r.Context(), commentID, userID, isAdmin); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
