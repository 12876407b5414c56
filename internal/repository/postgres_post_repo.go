package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/straycat158/craftboard/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// FindByID は指定IDの投稿を投稿者情報・タグ付きで取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*model.PostWithAuthor, error) {
	post := &model.PostWithAuthor{}
	err := r.db.QueryRowContext(ctx,
		`SELECT p.id, p.author_id, p.title, p.content, p.excerpt, p.image_url,
		        p.created_at, p.updated_at,
		        u.username, u.avatar_url,
		        (SELECT count(*) FROM comments c WHERE c.post_id = p.id) AS comment_count
		 FROM posts p
		 JOIN users u ON p.author_id = u.id
		 WHERE p.id = $1`,
		id,
	).Scan(
		&post.ID, &post.AuthorID, &post.Title, &post.Content, &post.Excerpt, &post.ImageURL,
		&post.CreatedAt, &post.UpdatedAt,
		&post.AuthorName, &post.AuthorAvatar,
		&post.CommentCount,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post by ID: %w", err)
	}

	tags, err := r.listTags(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	post.Tags = tags

	return post, nil
}

// CreateWithTags は投稿とタグの紐付けを同一トランザクションで作成する。
// タグは名前で既存行を再利用し、無ければ作成する。
func (r *PostgresPostRepo) CreateWithTags(ctx context.Context, post *model.Post, tagNames []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 投稿を作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO posts (id, author_id, title, content, excerpt, image_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		post.ID, post.AuthorID, post.Title, post.Content, post.Excerpt, post.ImageURL,
		post.CreatedAt, post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}

	// タグを作成または再利用し、紐付けを作成
	for _, name := range tagNames {
		var tagID string
		err = tx.QueryRowContext(ctx,
			`INSERT INTO tags (id, name, created_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`,
			uuid.New().String(), name, post.CreatedAt,
		).Scan(&tagID)
		if err != nil {
			return fmt.Errorf("failed to upsert tag: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO post_tags (post_id, tag_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			post.ID, tagID,
		)
		if err != nil {
			return fmt.Errorf("failed to link tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// List は投稿一覧を作成日時の降順でカーソルベースページネーションを使って取得する。
// cursorがゼロ値の場合は先頭から取得する。tagNameが空でない場合はタグで絞り込む。
func (r *PostgresPostRepo) List(ctx context.Context, tagName string, cursor time.Time, limit int) ([]model.PostWithAuthor, error) {
	baseQuery := `
		SELECT p.id, p.author_id, p.title, p.content, p.excerpt, p.image_url,
		       p.created_at, p.updated_at,
		       u.username, u.avatar_url,
		       (SELECT count(*) FROM comments c WHERE c.post_id = p.id) AS comment_count
		FROM posts p
		JOIN users u ON p.author_id = u.id`

	args := []interface{}{}
	argIndex := 1
	where := ""

	if tagName != "" {
		baseQuery += `
		JOIN post_tags pt ON pt.post_id = p.id
		JOIN tags t ON t.id = pt.tag_id`
		where = fmt.Sprintf(" WHERE t.name = $%d", argIndex)
		args = append(args, tagName)
		argIndex++
	}

	if !cursor.IsZero() {
		if where == "" {
			where = fmt.Sprintf(" WHERE p.created_at < $%d", argIndex)
		} else {
			where += fmt.Sprintf(" AND p.created_at < $%d", argIndex)
		}
		args = append(args, cursor)
		argIndex++
	}

	baseQuery += where + fmt.Sprintf(" ORDER BY p.created_at DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var posts []model.PostWithAuthor
	for rows.Next() {
		var post model.PostWithAuthor
		if err := rows.Scan(
			&post.ID, &post.AuthorID, &post.Title, &post.Content, &post.Excerpt, &post.ImageURL,
			&post.CreatedAt, &post.UpdatedAt,
			&post.AuthorName, &post.AuthorAvatar,
			&post.CommentCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate post rows: %w", err)
	}

	for i := range posts {
		tags, err := r.listTags(ctx, posts[i].ID)
		if err != nil {
			return nil, err
		}
		posts[i].Tags = tags
	}

	return posts, nil
}

// DeleteByID は指定IDの投稿を削除する。関連コメント・タグ紐付けはCASCADE削除される。
func (r *PostgresPostRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM posts WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

// listTags は投稿に付与されたタグを名前昇順で取得する。
func (r *PostgresPostRepo) listTags(ctx context.Context, postID string) ([]model.Tag, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.created_at
		 FROM tags t
		 JOIN post_tags pt ON pt.tag_id = t.id
		 WHERE pt.post_id = $1
		 ORDER BY t.name`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list post tags: %w", err)
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		var tag model.Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag row: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
