package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/domain"
)

// appColumns must match the Scan order in scanApp.
const appColumns = `id, slug, function_id, function_version_id, title, description, version, image, icon, category, product_area, published_at, authentication_type`

// AppRepo implements domain.AppRepository backed by PostgreSQL.
type AppRepo struct {
	pool *pgxpool.Pool
}

func NewAppRepo(pool *pgxpool.Pool) *AppRepo {
	return &AppRepo{pool: pool}
}

func scanApp(row rowScanner) (*domain.PublishedApp, error) {
	var app domain.PublishedApp
	err := row.Scan(
		&app.ID, &app.Slug, &app.Function.FunctionID, &app.Function.FunctionVersionID,
		&app.Title, &app.Description, &app.Version, &app.Image, &app.Icon,
		&app.Category, &app.ProductArea, &app.PublishedAt, &app.AuthenticationType,
	)
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *AppRepo) List(ctx context.Context, ref *domain.FunctionRef) ([]*domain.PublishedApp, error) {
	query := `SELECT ` + appColumns + ` FROM published_app`
	args := []any{}
	if ref != nil {
		query += ` WHERE function_id = $1 AND function_version_id = $2`
		args = append(args, ref.FunctionID, ref.FunctionVersionID)
	}
	query += ` ORDER BY title`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	defer rows.Close()

	var apps []*domain.PublishedApp
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan app: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read apps: %w", err)
	}
	return apps, nil
}

func (r *AppRepo) Get(ctx context.Context, id string) (*domain.PublishedApp, error) {
	app, err := scanApp(r.pool.QueryRow(ctx,
		`SELECT `+appColumns+` FROM published_app WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAppNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get app: %w", err)
	}
	return app, nil
}

func (r *AppRepo) GetByFunction(ctx context.Context, ref domain.FunctionRef) (*domain.PublishedApp, error) {
	app, err := scanApp(r.pool.QueryRow(ctx, `
		SELECT `+appColumns+` FROM published_app
		WHERE function_id = $1 AND function_version_id = $2
	`, ref.FunctionID, ref.FunctionVersionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAppNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get app by function: %w", err)
	}
	return app, nil
}

func (r *AppRepo) Upsert(ctx context.Context, app *domain.PublishedApp) (*domain.PublishedApp, error) {
	stored, err := scanApp(r.pool.QueryRow(ctx, `
		INSERT INTO published_app (`+appColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), $12)
		ON CONFLICT (id) DO UPDATE SET
			slug = EXCLUDED.slug,
			function_id = EXCLUDED.function_id,
			function_version_id = EXCLUDED.function_version_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			version = EXCLUDED.version,
			image = EXCLUDED.image,
			icon = EXCLUDED.icon,
			category = EXCLUDED.category,
			product_area = EXCLUDED.product_area,
			authentication_type = EXCLUDED.authentication_type
		RETURNING `+appColumns+`
	`, app.ID, app.Slug, app.Function.FunctionID, app.Function.FunctionVersionID,
		app.Title, app.Description, app.Version, app.Image, app.Icon,
		app.Category, app.ProductArea, app.AuthenticationType))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert app: %w", err)
	}
	return stored, nil
}

func (r *AppRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM published_app WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete app: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAppNotFound
	}
	return nil
}
