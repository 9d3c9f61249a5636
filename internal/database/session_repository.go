package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/domain"
)

// sessionColumns must match the Scan order in scanSession.
const sessionColumns = `id, function_id, function_version_id, app_id, user_id, user_name, status, start_date, end_date`

// SessionRepo implements domain.SessionRepository backed by PostgreSQL.
type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID, &s.Function.FunctionID, &s.Function.FunctionVersionID, &s.AppID,
		&s.UserID, &s.UserName, &s.Status, &s.StartDate, &s.EndDate,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateUnderQuota counts the user's non-stopped sessions for the function
// pair and inserts the new record in one transaction. An advisory
// transaction lock on the (user, function) pair serializes concurrent
// admissions, so two racing starts cannot both observe free quota. The
// create callback (which provisions the remote instance) runs while the
// lock is held; when it fails nothing is persisted.
func (r *SessionRepo) CreateUnderQuota(ctx context.Context, ref domain.FunctionRef, userID string, limit int, create func(ctx context.Context) (*domain.Session, error)) (*domain.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	admissionKey := fmt.Sprintf("%s/%s/%s", userID, ref.FunctionID, ref.FunctionVersionID)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, admissionKey); err != nil {
		return nil, fmt.Errorf("failed to take admission lock: %w", err)
	}

	var running int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM session
		WHERE function_id = $1 AND function_version_id = $2
		  AND user_id = $3 AND status != $4
	`, ref.FunctionID, ref.FunctionVersionID, userID, domain.StatusStopped).Scan(&running)
	if err != nil {
		return nil, fmt.Errorf("failed to count running sessions: %w", err)
	}

	if running+1 > limit {
		return nil, fmt.Errorf("%w (%d)", domain.ErrQuotaExceeded, running)
	}

	session, err := create(ctx)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO session (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, session.ID, session.Function.FunctionID, session.Function.FunctionVersionID,
		session.AppID, session.UserID, session.UserName, session.Status,
		session.StartDate, session.EndDate)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return session, nil
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*domain.Session, error) {
	session, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM session WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (r *SessionRepo) GetOwned(ctx context.Context, id string, ref domain.FunctionRef, userID string) (*domain.Session, error) {
	session, err := scanSession(r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM session
		WHERE id = $1 AND function_id = $2 AND function_version_id = $3 AND user_id = $4
	`, id, ref.FunctionID, ref.FunctionVersionID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// Advance performs the guarded status write. The from filter makes the
// write conditional on the current status, so a session that was stopped
// concurrently is never resurrected.
func (r *SessionRepo) Advance(ctx context.Context, id string, to domain.Status, endDate *time.Time, from ...domain.Status) (bool, error) {
	if !to.Storable() {
		return false, fmt.Errorf("status %q is not storable", to)
	}

	fromValues := make([]string, len(from))
	for i, s := range from {
		fromValues[i] = string(s)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE session
		SET status = $2, end_date = COALESCE($3, end_date)
		WHERE id = $1 AND status = ANY($4)
	`, id, to, endDate, fromValues)
	if err != nil {
		return false, fmt.Errorf("failed to advance session status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SessionRepo) List(ctx context.Context, filter domain.SessionFilter, page, pageSize int) (*domain.Page[*domain.Session], error) {
	where := ` WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		if filter.Status == domain.StatusAlive {
			statuses := make([]string, 0, 3)
			for _, s := range domain.AliveStatuses() {
				statuses = append(statuses, string(s))
			}
			args = append(args, statuses)
			where += fmt.Sprintf(` AND status = ANY($%d)`, len(args))
		} else {
			args = append(args, filter.Status)
			where += fmt.Sprintf(` AND status = $%d`, len(args))
		}
	}
	if filter.Function != nil {
		args = append(args, filter.Function.FunctionID)
		where += fmt.Sprintf(` AND function_id = $%d`, len(args))
		args = append(args, filter.Function.FunctionVersionID)
		where += fmt.Sprintf(` AND function_version_id = $%d`, len(args))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where += fmt.Sprintf(` AND user_id = $%d`, len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM session`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM session`+where+`
		ORDER BY start_date DESC
		LIMIT $`+fmt.Sprint(len(args)-1)+` OFFSET $`+fmt.Sprint(len(args)),
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.Session, 0, pageSize)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		items = append(items, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}

	totalPages := (total + pageSize - 1) / pageSize
	return &domain.Page[*domain.Session]{
		Items:      items,
		Page:       page,
		PageSize:   len(items),
		TotalSize:  total,
		TotalPages: totalPages,
	}, nil
}

func (r *SessionRepo) ListExpired(ctx context.Context, startedBefore time.Time) ([]*domain.Session, error) {
	return r.listWhere(ctx, `status != $1 AND start_date <= $2`, string(domain.StatusStopped), startedBefore)
}

func (r *SessionRepo) ListIdleSince(ctx context.Context, idleBefore time.Time) ([]*domain.Session, error) {
	return r.listWhere(ctx, `status = $1 AND end_date <= $2`, string(domain.StatusIdle), idleBefore)
}

func (r *SessionRepo) listWhere(ctx context.Context, cond string, args ...any) ([]*domain.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM session WHERE `+cond, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	return sessions, nil
}
