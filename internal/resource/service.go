// Package resource はコミュニティリソース一覧の管理機能を提供する。
package resource

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/straycat158/craftboard/internal/model"
	"github.com/straycat158/craftboard/internal/repository"
	"github.com/straycat158/craftboard/internal/security"
)

const (
	maxDescriptionLength = 500
	defaultListLimit     = 100
)

// Service はリソースに関するビジネスロジックを提供する。
type Service struct {
	resourceRepo   repository.ResourceRepository
	ssrfGuard      security.SSRFGuardService
	faviconFetcher FaviconFetcherService
}

// NewService はServiceを生成する。
func NewService(
	resourceRepo repository.ResourceRepository,
	ssrfGuard security.SSRFGuardService,
	faviconFetcher FaviconFetcherService,
) *Service {
	return &Service{
		resourceRepo:   resourceRepo,
		ssrfGuard:      ssrfGuard,
		faviconFetcher: faviconFetcher,
	}
}

// CreateInput はリソース作成の入力。
type CreateInput struct {
	Title       string
	Description string
	LinkURL     string
	Category    model.ResourceCategory
}

// Create はリソースを作成する。
// リンクURLはSSRF検証を通過する必要がある。
// favicon取得は非同期で行い、作成レスポンスをブロックしない。
func (s *Service) Create(ctx context.Context, ownerID string, input CreateInput) (*model.Resource, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, model.NewEmptyContentError("title")
	}

	description := strings.TrimSpace(input.Description)
	if len([]rune(description)) > maxDescriptionLength {
		description = string([]rune(description)[:maxDescriptionLength])
	}

	if !model.ValidCategory(input.Category) {
		return nil, model.NewInvalidCategoryError(string(input.Category))
	}

	linkURL := strings.TrimSpace(input.LinkURL)
	if linkURL == "" {
		return nil, model.NewEmptyContentError("link_url")
	}
	if err := s.ssrfGuard.ValidateURL(linkURL); err != nil {
		slog.Warn("resource link blocked",
			slog.String("url", linkURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewSSRFBlockedError()
	}

	now := time.Now()
	resource := &model.Resource{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		LinkURL:     linkURL,
		Category:    input.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.resourceRepo.Create(ctx, resource); err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	slog.Info("resource created",
		slog.String("resource_id", resource.ID),
		slog.String("owner_id", ownerID),
		slog.String("category", string(input.Category)),
	)

	// favicon取得はバックグラウンドで行う。失敗してもリソース作成は成功扱い。
	go s.fetchAndStoreFavicon(resource.ID, linkURL)

	return resource, nil
}

// fetchAndStoreFavicon はリソース掲載先のfaviconを取得して保存する。
func (s *Service) fetchAndStoreFavicon(resourceID, linkURL string) {
	if s.faviconFetcher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, mimeType, err := s.faviconFetcher.FetchFaviconForSite(ctx, linkURL)
	if err != nil || data == nil {
		return
	}

	if err := s.resourceRepo.UpdateFavicon(ctx, resourceID, data, mimeType); err != nil {
		slog.Warn("failed to store favicon",
			slog.String("resource_id", resourceID),
			slog.String("error", err.Error()),
		)
	}
}

// List はリソース一覧を作成日時降順で返す。
// categoryが空でない場合はカテゴリで絞り込む。無効なカテゴリはエラー。
func (s *Service) List(ctx context.Context, category model.ResourceCategory, limit int) ([]model.Resource, error) {
	if category != "" && !model.ValidCategory(category) {
		return nil, model.NewInvalidCategoryError(string(category))
	}

	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	resources, err := s.resourceRepo.List(ctx, category, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return resources, nil
}

// Get はリソース詳細を返す。
func (s *Service) Get(ctx context.Context, resourceID string) (*model.Resource, error) {
	resource, err := s.resourceRepo.FindByID(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to find resource: %w", err)
	}
	if resource == nil {
		return nil, model.NewResourceNotFoundError(resourceID)
	}
	return resource, nil
}

// Delete はリソースを削除する。登録者本人または管理者のみ実行できる。
func (s *Service) Delete(ctx context.Context, resourceID, userID string, isAdmin bool) error {
	resource, err := s.resourceRepo.FindByID(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("failed to find resource: %w", err)
	}
	if resource == nil {
		return model.NewResourceNotFoundError(resourceID)
	}

	if resource.OwnerID != userID && !isAdmin {
		return model.NewNotOwnerError()
	}

	if err := s.resourceRepo.DeleteByID(ctx, resourceID); err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}

	slog.Info("resource deleted",
		slog.String("resource_id", resourceID),
		slog.String("deleted_by", userID),
	)

	return nil
}
