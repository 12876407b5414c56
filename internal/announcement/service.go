// Package announcement は運営からのお知らせ機能を提供する。
package announcement

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

const defaultListLimit = 50

// Service はお知らせに関するビジネスロジックを提供する。
type Service struct {
	announcementRepo repository.AnnouncementRepository
	sanitizer        security.ContentSanitizerService
}

// NewService はServiceを生成する。
func NewService(
	announcementRepo repository.AnnouncementRepository,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		announcementRepo: announcementRepo,
		sanitizer:        sanitizer,
	}
}

// Create はお知らせを手動作成する。管理者のみ実行できる。
// 作成されたお知らせはリアルタイム配信でannouncementsトピックの購読者に届く。
func (s *Service) Create(ctx context.Context, authorID string, isAdmin bool, title, content string) (*model.Announcement, error) {
	if !isAdmin {
		return nil, model.NewAdminOnlyError()
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, model.NewEmptyContentError("title")
	}

	sanitized := s.sanitizer.Sanitize(content)
	if strings.TrimSpace(sanitized) == "" {
		return nil, model.NewEmptyContentError("content")
	}

	a := &model.Announcement{
		ID:        uuid.New().String(),
		AuthorID:  authorID,
		Title:     title,
		Content:   sanitized,
		CreatedAt: time.Now(),
	}

	if err := s.announcementRepo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create announcement: %w", err)
	}

	slog.Info("announcement created",
		slog.String("announcement_id", a.ID),
		slog.String("author_id", authorID),
	)

	return a, nil
}

// List はお知らせ一覧を作成日時降順で返す。
func (s *Service) List(ctx context.Context, limit int) ([]model.Announcement, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	announcements, err := s.announcementRepo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list announcements: %w", err)
	}
	return announcements, nil
}

// LatestCreatedAt は最新のお知らせの作成日時を返す。
// お知らせが1件もない場合はnilを返す。
// クライアントの未読判定はこの値とローカルの既読マーカーの比較で行う。
func (s *Service) LatestCreatedAt(ctx context.Context) (*time.Time, error) {
	latest, err := s.announcementRepo.LatestCreatedAt(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest announcement time: %w", err)
	}
	return latest, nil
}

// Delete はお知らせを削除する。管理者のみ実行できる。
func (s *Service) Delete(ctx context.Context, announcementID, userID string, isAdmin bool) error {
	if !isAdmin {
		return model.NewAdminOnlyError()
	}

	a, err := s.announcementRepo.FindByID(ctx, announcementID)
	if err != nil {
		return fmt.Errorf("failed to find announcement: %w", err)
	}
	if a == nil {
		return model.NewResourceNotFoundError(announcementID)
	}

	if err := s.announcementRepo.DeleteByID(ctx, announcementID); err != nil {
		return fmt.Errorf("failed to delete announcement: %w", err)
	}

	slog.Info("announcement deleted",
		slog.String("announcement_id", announcementID),
		slog.String("deleted_by", userID),
	)

	return nil
}
