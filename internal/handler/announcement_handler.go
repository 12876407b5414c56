package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/straycat158/craftboard/internal/middleware"
	"github.com/straycat158/craftboard/internal/model"
)

// AnnouncementServiceInterface はお知らせハンドラーが必要とするサービスインターフェース。
type AnnouncementServiceInterface interface {
	// Create はお知らせを作成する。管理者のみ。
	Create(ctx context.Context, authorID string, isAdmin bool, title, content string) (*model.Announcement, error)
	// List はお知らせ一覧を作成日時降順で返す。
	List(ctx context.Context, limit int) ([]model.Announcement, error)
	// LatestCreatedAt は最新のお知らせの作成日時のみを返す。未読判定用。
	LatestCreatedAt(ctx context.Context) (*time.Time, error)
	// Delete はお知らせを削除する。管理者のみ。
	Delete(ctx context.Context, announcementID, userID string, isAdmin bool) error
}

// AnnouncementHandler はお知らせ管理のHTTPハンドラー。
type AnnouncementHandler struct {
	service AnnouncementServiceInterface
}

// NewAnnouncementHandler はAnnouncementHandlerを生成する。
func NewAnnouncementHandler(service AnnouncementServiceInterface) *AnnouncementHandler {
	return &AnnouncementHandler{service: service}
}

// createAnnouncementRequest はお知らせ作成リクエストのボディ。
type createAnnouncementRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// announcementResponse はお知らせのAPIレスポンス。
type announcementResponse struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id,omitempty"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	SourceURL string    `json:"source_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// announcementListResponse はお知らせ一覧のレスポンス。
type announcementListResponse struct {
	Announcements []announcementResponse `json:"announcements"`
}

// latestAnnouncementResponse は最新お知らせ日時のレスポンス。
// お知らせが1件もない場合、latest_created_atはnullになる。
type latestAnnouncementResponse struct {
	LatestCreatedAt *time.Time `json:"latest_created_at"`
}

// ListAnnouncements はお知らせ一覧を取得する。
// GET /api/announcements?limit=50
func (h *AnnouncementHandler) ListAnnouncements(w http.ResponseWriter, r *http.Request) {
	announcements, err := h.service.List(r.Context(), 0)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := announcementListResponse{
		Announcements: make([]announcementResponse, 0, len(announcements)),
	}
	for i := range announcements {
		resp.Announcements = append(resp.Announcements, toAnnouncementResponse(&announcements[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// LatestAnnouncement は最新お知らせの作成日時のみを返す。
// GET /api/announcements/latest
// クライアントはこの値と既読マーカーを比較して未読バッジを表示する。
func (h *AnnouncementHandler) LatestAnnouncement(w http.ResponseWriter, r *http.Request) {
	latest, err := h.service.LatestCreatedAt(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, latestAnnouncementResponse{LatestCreatedAt: latest})
}

// CreateAnnouncement はお知らせを作成する。管理者のみ。
// POST /api/announcements
func (h *AnnouncementHandler) CreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createAnnouncementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	isAdmin := middleware.IsAdminFromContext(r.Context())

	created, err := h.service.Create(r.Context(), userID, isAdmin, req.Title, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAnnouncementResponse(created))
}

// DeleteAnnouncement はお知らせを削除する。管理者のみ。
// DELETE /api/announcements/:id
func (h *AnnouncementHandler) DeleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	announcementID := chi.URLParam(r, "id")
	isAdmin := middleware.IsAdminFromContext(r.Context())

	if err := h.service.Delete(r.Context(), announcementID, userID, isAdmin); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toAnnouncementResponse はmodel.AnnouncementからAPIレスポンスに変換する。
func toAnnouncementResponse(a *model.Announcement) announcementResponse {
	return announcementResponse{
		ID:        a.ID,
		AuthorID:  a.AuthorID,
		Title:     a.Title,
		Content:   a.Content,
		SourceURL: a.SourceURL,
		CreatedAt: a.CreatedAt,
	}
}
