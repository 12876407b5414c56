package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/straycat158/craftboard/internal/middleware"
	"github.com/straycat158/craftboard/internal/model"
	"github.com/straycat158/craftboard/internal/resource"
)

// ResourceServiceInterface はリソースハンドラーが必要とするサービスインターフェース。
type ResourceServiceInterface interface {
	// Create はリソースを作成する。リンクURLはSSRF検証を通過する必要がある。
	Create(ctx context.Context, ownerID string, input resource.CreateInput) (*model.Resource, error)
	// List はリソース一覧をカテゴリフィルタ付きで返す。
	List(ctx context.Context, category model.ResourceCategory, limit int) ([]model.Resource, error)
	// Get はリソース詳細を返す。
	Get(ctx context.Context, resourceID string) (*model.Resource, error)
	// Delete はリソースを削除する。作成者本人または管理者のみ。
	Delete(ctx context.Context, resourceID, userID string, isAdmin bool) error
}

// ResourceHandler はリソース掲載のHTTPハンドラー。
type ResourceHandler struct {
	service ResourceServiceInterface
}

// NewResourceHandler はResourceHandlerを生成する。
func NewResourceHandler(service ResourceServiceInterface) *ResourceHandler {
	return &ResourceHandler{service: service}
}

// createResourceRequest はリソース作成リクエストのボディ。
type createResourceRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	LinkURL     string `json:"link_url"`
	Category    string `json:"category"`
}

// resourceResponse はリソースのAPIレスポンス。
// faviconはバイナリのため含めず、has_faviconと専用エンドポイントで提供する。
type resourceResponse struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	LinkURL     string    `json:"link_url"`
	Category    string    `json:"category"`
	HasFavicon  bool      `json:"has_favicon"`
	CreatedAt   time.Time `json:"created_at"`
}

// resourceListResponse はリソース一覧のレスポンス。
type resourceListResponse struct {
	Resources []resourceResponse `json:"resources"`
}

// ListResources はリソース一覧を取得する。
// GET /api/resources?category=mod
func (h *ResourceHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	category := model.ResourceCategory(r.URL.Query().Get("category"))

	resources, err := h.service.List(r.Context(), category, 0)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := resourceListResponse{
		Resources: make([]resourceResponse, 0, len(resources)),
	}
	for i := range resources {
		resp.Resources = append(resp.Resources, toResourceResponse(&resources[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetResource はリソース詳細を取得する。
// GET /api/resources/:id
func (h *ResourceHandler) GetResource(w http.ResponseWriter, r *http.Request) {
	resourceID := chi.URLParam(r, "id")

	res, err := h.service.Get(r.Context(), resourceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResourceResponse(res))
}

// GetResourceFavicon はリソースのfavicon画像を返す。
// GET /api/resources/:id/favicon
// favicon未取得のリソースには404を返す。
func (h *ResourceHandler) GetResourceFavicon(w http.ResponseWriter, r *http.Request) {
	resourceID := chi.URLParam(r, "id")

	res, err := h.service.Get(r.Context(), resourceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if len(res.FaviconData) == 0 {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewResourceNotFoundError(resourceID))
		return
	}

	w.Header().Set("Content-Type", res.FaviconMime)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(res.FaviconData)
}

// CreateResource はリソースを作成する。
// POST /api/resources
// favicon取得は非同期で行われるため、作成直後のレスポンスには含まれない。
func (h *ResourceHandler) CreateResource(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	created, err := h.service.Create(r.Context(), userID, resource.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		LinkURL:     req.LinkURL,
		Category:    model.ResourceCategory(req.Category),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toResourceResponse(created))
}

// DeleteResource はリソースを削除する。作成者本人または管理者のみ。
// DELETE /api/resources/:id
func (h *ResourceHandler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	resourceID := chi.URLParam(r, "id")
	isAdmin := middleware.IsAdminFromContext(r.Context())

	if err := h.service.Delete(r.Context(), resourceID, userID, isAdmin); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toResourceResponse はmodel.ResourceからAPIレスポンスに変換する。
func toResourceResponse(res *model.Resource) resourceResponse {
	return resourceResponse{
		ID:          res.ID,
		OwnerID:     res.OwnerID,
		Title:       res.Title,
		Description: res.Description,
		LinkURL:     res.LinkURL,
		Category:    string(res.Category),
		HasFavicon:  len(res.FaviconData) > 0,
		CreatedAt:   res.CreatedAt,
	}
}
