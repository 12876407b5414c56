package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/straycat158/craftboard/internal/model"
)

// PostgresResourceRepo はPostgreSQLを使用したリソースリポジトリ。
type PostgresResourceRepo struct {
	db *sql.DB
}

// NewPostgresResourceRepo はPostgresResourceRepoを生成する。
func NewPostgresResourceRepo(db *sql.DB) *PostgresResourceRepo {
	return &PostgresResourceRepo{db: db}
}

const resourceColumns = `id, owner_id, title, description, link_url, category, favicon_data, favicon_mime, created_at, updated_at`

// FindByID は指定IDのリソースを取得する。見つからない場合はnilを返す。
func (r *PostgresResourceRepo) FindByID(ctx context.Context, id string) (*model.Resource, error) {
	res := &model.Resource{}
	var faviconData []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = $1`,
		id,
	).Scan(
		&res.ID, &res.OwnerID, &res.Title, &res.Description, &res.LinkURL,
		&res.Category, &faviconData, &res.FaviconMime,
		&res.CreatedAt, &res.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find resource: %w", err)
	}
	res.FaviconData = faviconData

	return res, nil
}

// Create はリソースを作成する。
func (r *PostgresResourceRepo) Create(ctx context.Context, resource *model.Resource) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO resources (id, owner_id, title, description, link_url, category, favicon_data, favicon_mime, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		resource.ID, resource.OwnerID, resource.Title, resource.Description,
		resource.LinkURL, resource.Category, resource.FaviconData, resource.FaviconMime,
		resource.CreatedAt, resource.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert resource: %w", err)
	}
	return nil
}

// List はリソース一覧を作成日時の降順で取得する。
// categoryが空でない場合はカテゴリで絞り込む。
func (r *PostgresResourceRepo) List(ctx context.Context, category model.ResourceCategory, limit int) ([]model.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources`
	args := []interface{}{}

	if category != "" {
		query += ` WHERE category = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, category, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var resources []model.Resource
	for rows.Next() {
		var res model.Resource
		var faviconData []byte
		if err := rows.Scan(
			&res.ID, &res.OwnerID, &res.Title, &res.Description, &res.LinkURL,
			&res.Category, &faviconData, &res.FaviconMime,
			&res.CreatedAt, &res.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan resource row: %w", err)
		}
		res.FaviconData = faviconData
		resources = append(resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resource rows: %w", err)
	}

	return resources, nil
}

// UpdateFavicon はリソースのfaviconデータを更新する。
func (r *PostgresResourceRepo) UpdateFavicon(ctx context.Context, resourceID string, faviconData []byte, faviconMime string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE resources SET favicon_data = $2, favicon_mime = $3, updated_at = now()
		 WHERE id = $1`,
		resourceID, faviconData, faviconMime,
	)
	if err != nil {
		return fmt.Errorf("failed to update resource favicon: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのリソースを削除する。
func (r *PostgresResourceRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM resources WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ResourceRepository = (*PostgresResourceRepo)(nil)
