package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/domain"
)

// PageRepo implements domain.PageRepository backed by PostgreSQL.
type PageRepo struct {
	pool *pgxpool.Pool
}

func NewPageRepo(pool *pgxpool.Pool) *PageRepo {
	return &PageRepo{pool: pool}
}

func (r *PageRepo) List(ctx context.Context) ([]*domain.PortalPage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name, url, sort_order FROM published_page ORDER BY sort_order, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []*domain.PortalPage
	for rows.Next() {
		var page domain.PortalPage
		if err := rows.Scan(&page.Name, &page.URL, &page.Order); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, &page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pages: %w", err)
	}
	return pages, nil
}

// Replace swaps the full page set in one transaction, preserving the
// original replace-all semantics of the portal sidebar.
func (r *PageRepo) Replace(ctx context.Context, pages []*domain.PortalPage) ([]*domain.PortalPage, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `DELETE FROM published_page`); err != nil {
		return nil, fmt.Errorf("failed to clear pages: %w", err)
	}

	for _, page := range pages {
		_, err := tx.Exec(ctx, `
			INSERT INTO published_page (name, url, sort_order)
			VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET url = EXCLUDED.url, sort_order = EXCLUDED.sort_order
		`, page.Name, page.URL, page.Order)
		if err != nil {
			return nil, fmt.Errorf("failed to insert page: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return r.List(ctx)
}
