package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/straycat158/craftboard/internal/model"
)

// PostgresAnnouncementRepo はPostgreSQLを使用したお知らせリポジトリ。
type PostgresAnnouncementRepo struct {
	db *sql.DB
}

// NewPostgresAnnouncementRepo はPostgresAnnouncementRepoを生成する。
func NewPostgresAnnouncementRepo(db *sql.DB) *PostgresAnnouncementRepo {
	return &PostgresAnnouncementRepo{db: db}
}

// Create はお知らせを作成する。
// INSERTトリガーによりリアルタイムチャネルへNOTIFYが発行される。
func (r *PostgresAnnouncementRepo) Create(ctx context.Context, a *model.Announcement) error {
	authorID := sql.NullString{String: a.AuthorID, Valid: a.AuthorID != ""}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO announcements (id, author_id, title, content, source_url, source_guid, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, authorID, a.Title, a.Content, a.SourceURL, a.SourceGUID, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert announcement: %w", err)
	}
	return nil
}

func scanAnnouncement(scan func(dest ...interface{}) error) (*model.Announcement, error) {
	a := &model.Announcement{}
	var authorID sql.NullString
	err := scan(&a.ID, &authorID, &a.Title, &a.Content, &a.SourceURL, &a.SourceGUID, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.AuthorID = authorID.String
	return a, nil
}

// FindByID は指定IDのお知らせを取得する。見つからない場合はnilを返す。
func (r *PostgresAnnouncementRepo) FindByID(ctx context.Context, id string) (*model.Announcement, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, author_id, title, content, source_url, source_guid, created_at
		 FROM announcements WHERE id = $1`,
		id,
	)
	a, err := scanAnnouncement(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find announcement: %w", err)
	}
	return a, nil
}

// FindBySourceGUID は取込元GUIDでお知らせを検索する。見つからない場合はnilを返す。
func (r *PostgresAnnouncementRepo) FindBySourceGUID(ctx context.Context, guid string) (*model.Announcement, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, author_id, title, content, source_url, source_guid, created_at
		 FROM announcements WHERE source_guid = $1`,
		guid,
	)
	a, err := scanAnnouncement(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find announcement by source guid: %w", err)
	}
	return a, nil
}

// List はお知らせ一覧を作成日時の降順で取得する。
func (r *PostgresAnnouncementRepo) List(ctx context.Context, limit int) ([]model.Announcement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, author_id, title, content, source_url, source_guid, created_at
		 FROM announcements
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list announcements: %w", err)
	}
	defer rows.Close()

	var announcements []model.Announcement
	for rows.Next() {
		a, err := scanAnnouncement(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan announcement row: %w", err)
		}
		announcements = append(announcements, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate announcement rows: %w", err)
	}

	return announcements, nil
}

// LatestCreatedAt は最新のお知らせの作成日時のみを取得する。
// お知らせが1件もない場合はnilを返す。未読判定の最小クエリ。
func (r *PostgresAnnouncementRepo) LatestCreatedAt(ctx context.Context) (*time.Time, error) {
	var createdAt time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT created_at FROM announcements ORDER BY created_at DESC LIMIT 1`,
	).Scan(&createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest announcement time: %w", err)
	}

	return &createdAt, nil
}

// DeleteByID は指定IDのお知らせを削除する。
// DELETEトリガーによりリアルタイムチャネルへNOTIFYが発行される。
func (r *PostgresAnnouncementRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM announcements WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete announcement: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AnnouncementRepository = (*PostgresAnnouncementRepo)(nil)
