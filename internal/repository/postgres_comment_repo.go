package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/straycat158/craftboard/internal/model"
)

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// Create はコメントを作成する。
// INSERTトリガーによりリアルタイムチャネルへNOTIFYが発行される。
func (r *PostgresCommentRepo) Create(ctx context.Context, comment *model.Comment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, post_id, author_id, content, client_ref, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		comment.ID, comment.PostID, comment.AuthorID, comment.Content,
		comment.ClientRef, comment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	comment := &model.Comment{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, post_id, author_id, content, client_ref, created_at
		 FROM comments WHERE id = $1`,
		id,
	).Scan(
		&comment.ID, &comment.PostID, &comment.AuthorID,
		&comment.Content, &comment.ClientRef, &comment.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find comment: %w", err)
	}

	return comment, nil
}

// FindByIDWithAuthor は指定IDのコメントを投稿者情報付きで取得する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindByIDWithAuthor(ctx context.Context, id string) (*model.CommentWithAuthor, error) {
	comment := &model.CommentWithAuthor{}
	err := r.db.QueryRowContext(ctx,
		`SELECT c.id, c.post_id, c.author_id, c.content, c.client_ref, c.created_at,
		        u.username, u.avatar_url
		 FROM comments c
		 JOIN users u ON c.author_id = u.id
		 WHERE c.id = $1`,
		id,
	).Scan(
		&comment.ID, &comment.PostID, &comment.AuthorID,
		&comment.Content, &comment.ClientRef, &comment.CreatedAt,
		&comment.AuthorName, &comment.AuthorAvatar,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find comment with author: %w", err)
	}

	return comment, nil
}

// ListByPost は投稿のコメント一覧を(created_at, id)昇順で取得する。
// この順序はリアルタイムフィードの不変条件であり、タイムスタンプが
// 衝突した場合のタイブレークとしてidを使う。
func (r *PostgresCommentRepo) ListByPost(ctx context.Context, postID string) ([]model.CommentWithAuthor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.post_id, c.author_id, c.content, c.client_ref, c.created_at,
		        u.username, u.avatar_url
		 FROM comments c
		 JOIN users u ON c.author_id = u.id
		 WHERE c.post_id = $1
		 ORDER BY c.created_at ASC, c.id ASC`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []model.CommentWithAuthor
	for rows.Next() {
		var c model.CommentWithAuthor
		if err := rows.Scan(
			&c.ID, &c.PostID, &c.AuthorID,
			&c.Content, &c.ClientRef, &c.CreatedAt,
			&c.AuthorName, &c.AuthorAvatar,
		); err != nil {
			return nil, fmt.Errorf("failed to scan comment row: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comment rows: %w", err)
	}

	return comments, nil
}

// DeleteByID は指定IDのコメントを削除する。対象が存在しない場合もエラーにしない。
// DELETEトリガーによりリアルタイムチャネルへNOTIFYが発行される。
func (r *PostgresCommentRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM comments WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
