// Package post はフォーラム投稿の作成・一覧・削除機能を提供する。
package post

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
	maxTitleLength  = 200
	maxTagsPerPost  = 5
	defaultPageSize = 20
	maxPageSize     = 50
)

// Service は投稿に関するビジネスロジックを提供する。
type Service struct {
	postRepo  repository.PostRepository
	tagRepo   repository.TagRepository
	sanitizer security.ContentSanitizerService
}

// NewService はServiceを生成する。
func NewService(
	postRepo repository.PostRepository,
	tagRepo repository.TagRepository,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		postRepo:  postRepo,
		tagRepo:   tagRepo,
		sanitizer: sanitizer,
	}
}

// CreateInput は投稿作成の入力。
type CreateInput struct {
	Title    string
	Content  string // 生HTML。保存前にサニタイズされる。
	ImageURL string // アップロード済み画像の公開URL（任意）
	TagNames []string
}

// Create は投稿を作成する。
// コンテンツはサニタイズされ、一覧表示用の抜粋が自動生成される。
// タグは最大5個まで。重複タグ名は1つにまとめられる。
func (s *Service) Create(ctx context.Context, authorID string, input CreateInput) (*model.Post, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, model.NewEmptyContentError("title")
	}
	if len([]rune(title)) > maxTitleLength {
		return nil, model.NewEmptyContentError("title")
	}

	sanitized := s.sanitizer.Sanitize(input.Content)
	if strings.TrimSpace(sanitized) == "" {
		return nil, model.NewEmptyContentError("content")
	}

	tagNames := normalizeTagNames(input.TagNames)
	if len(tagNames) > maxTagsPerPost {
		tagNames = tagNames[:maxTagsPerPost]
	}

	now := time.Now()
	post := &model.Post{
		ID:        uuid.New().String(),
		AuthorID:  authorID,
		Title:     title,
		Content:   sanitized,
		Excerpt:   buildExcerpt(sanitized),
		ImageURL:  input.ImageURL,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.postRepo.CreateWithTags(ctx, post, tagNames); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	slog.Info("post created",
		slog.String("post_id", post.ID),
		slog.String("author_id", authorID),
		slog.Int("tag_count", len(tagNames)),
	)

	return post, nil
}

// ListResult はListの戻り値。
type ListResult struct {
	Posts      []model.PostWithAuthor
	NextCursor string
	HasMore    bool
}

// List は投稿一覧を作成日時降順のカーソルベースページネーションで返す。
// tagNameが空でない場合はタグで絞り込む。
// limit+1件を取得してHasMoreを判定する。
func (s *Service) List(ctx context.Context, tagName, cursorStr string, limit int) (*ListResult, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var cursor time.Time
	if cursorStr != "" {
		var err error
		cursor, err = time.Parse(time.RFC3339Nano, cursorStr)
		if err != nil {
			cursor, err = time.Parse(time.RFC3339, cursorStr)
			if err != nil {
				return nil, model.NewEmptyContentError("cursor")
			}
		}
	}

	fetchLimit := limit + 1
	posts, err := s.postRepo.List(ctx, strings.TrimSpace(tagName), cursor, fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	hasMore := len(posts) > limit
	if hasMore {
		posts = posts[:limit]
	}

	var nextCursor string
	if hasMore && len(posts) > 0 {
		nextCursor = posts[len(posts)-1].CreatedAt.Format(time.RFC3339Nano)
	}

	return &ListResult{
		Posts:      posts,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// Get は投稿詳細を投稿者情報・タグ付きで返す。
func (s *Service) Get(ctx context.Context, postID string) (*model.PostWithAuthor, error) {
	post, err := s.postRepo.FindByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(postID)
	}
	return post, nil
}

// Delete は投稿を削除する。作成者本人または管理者のみ実行できる。
// 関連するコメント・タグ紐付けはCASCADE削除される。
func (s *Service) Delete(ctx context.Context, postID, userID string, isAdmin bool) error {
	post, err := s.postRepo.FindByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("failed to find post: %w", err)
	}
	if post == nil {
		return model.NewPostNotFoundError(postID)
	}

	if post.AuthorID != userID && !isAdmin {
		return model.NewNotOwnerError()
	}

	if err := s.postRepo.DeleteByID(ctx, postID); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}

	slog.Info("post deleted",
		slog.String("post_id", postID),
		slog.String("deleted_by", userID),
	)

	return nil
}

// ListTags は全タグを名前昇順で返す。
func (s *Service) ListTags(ctx context.Context) ([]model.Tag, error) {
	tags, err := s.tagRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

// normalizeTagNames はタグ名をトリム・小文字化し、空文字と重複を除外する。
func normalizeTagNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	result := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		result = append(result, name)
	}
	return result
}
