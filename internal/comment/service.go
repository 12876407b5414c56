// Package comment は投稿へのコメント機能を提供する。
package comment

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

// maxClientRefLength はクライアント相関IDの最大長。
// クライアントはULID（26文字）を送るが、形式自体は強制しない。
const maxClientRefLength = 64

// Service はコメントに関するビジネスロジックを提供する。
type Service struct {
	commentRepo repository.CommentRepository
	postRepo    repository.PostRepository
	sanitizer   security.ContentSanitizerService
}

// NewService はServiceを生成する。
func NewService(
	commentRepo repository.CommentRepository,
	postRepo repository.PostRepository,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		commentRepo: commentRepo,
		postRepo:    postRepo,
		sanitizer:   sanitizer,
	}
}

// CreateInput はコメント作成の入力。
type CreateInput struct {
	PostID    string
	Content   string
	ClientRef string // クライアント生成の相関ID。レスポンスとリアルタイム配信でそのまま返す。
}

// Create はコメントを作成する。
// 存在しない投稿へのコメントは拒否する。
// ClientRefは保存され、リアルタイム配信のレコードにも含まれる。
// これによりクライアントは楽観的に表示した仮レコードと確定レコードを照合できる。
func (s *Service) Create(ctx context.Context, authorID string, input CreateInput) (*model.Comment, error) {
	sanitized := s.sanitizer.Sanitize(input.Content)
	if strings.TrimSpace(sanitized) == "" {
		return nil, model.NewEmptyContentError("content")
	}

	clientRef := strings.TrimSpace(input.ClientRef)
	if len(clientRef) > maxClientRefLength {
		clientRef = clientRef[:maxClientRefLength]
	}

	post, err := s.postRepo.FindByID(ctx, input.PostID)
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(input.PostID)
	}

	comment := &model.Comment{
		ID:        uuid.New().String(),
		PostID:    input.PostID,
		AuthorID:  authorID,
		Content:   sanitized,
		ClientRef: clientRef,
		CreatedAt: time.Now(),
	}

	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	slog.Info("comment created",
		slog.String("comment_id", comment.ID),
		slog.String("post_id", input.PostID),
		slog.String("author_id", authorID),
	)

	return comment, nil
}

// ListByPost は投稿のコメント一覧を(created_at, id)昇順で返す。
// この順序はリアルタイム配信で挿入されるレコードの表示位置と一致する。
func (s *Service) ListByPost(ctx context.Context, postID string) ([]model.CommentWithAuthor, error) {
	post, err := s.postRepo.FindByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(postID)
	}

	comments, err := s.commentRepo.ListByPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

// Delete はコメントを削除する。作成者本人または管理者のみ実行できる。
func (s *Service) Delete(ctx context.Context, commentID, userID string, isAdmin bool) error {
	comment, err := s.commentRepo.FindByID(ctx, commentID)
	if err != nil {
		return fmt.Errorf("failed to find comment: %w", err)
	}
	if comment == nil {
		return model.NewCommentNotFoundError(commentID)
	}

	if comment.AuthorID != userID && !isAdmin {
		return model.NewNotOwnerError()
	}

	if err := s.commentRepo.DeleteByID(ctx, commentID); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}

	slog.Info("comment deleted",
		slog.String("comment_id", commentID),
		slog.String("deleted_by", userID),
	)

	return nil
}
