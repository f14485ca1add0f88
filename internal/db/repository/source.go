package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// SourceRepo implements domain.SourceRepository.
type SourceRepo struct {
	db *sql.DB
}

func NewSourceRepo(db *sql.DB) *SourceRepo {
	return &SourceRepo{db: db}
}

var _ domain.SourceRepository = (*SourceRepo)(nil)

const sourceColumns = `id, owner_id, display_name, status, view_name, created_at, updated_at`

func scanSource(row interface{ Scan(...interface{}) error }) (*domain.Source, error) {
	var s domain.Source
	err := row.Scan(&s.ID, &s.OwnerID, &s.DisplayName, &s.Status, &s.ViewName, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &s, nil
}

func (r *SourceRepo) GetByID(ctx context.Context, ownerID, sourceID string) (*domain.Source, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = ? AND owner_id = ?`,
		sourceID, ownerID)
	return scanSource(row)
}

// ListActive returns the owner's sources that discovery should consider.
// Sources stuck in error are included so discovery can attempt a
// reactivation.
func (r *SourceRepo) ListActive(ctx context.Context, ownerID string) ([]domain.Source, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM sources
		 WHERE owner_id = ? AND status IN (?, ?)
		 ORDER BY created_at`,
		ownerID, domain.SourceStatusActive, domain.SourceStatusError)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *SourceRepo) SetViewName(ctx context.Context, sourceID, viewName string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sources SET view_name = ?, updated_at = ? WHERE id = ?`,
		viewName, time.Now().UTC(), sourceID)
	if err != nil {
		return mapDBError(err)
	}
	return requireRowAffected(res, "source", sourceID)
}

func (r *SourceRepo) SetStatus(ctx context.Context, sourceID, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sources SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), sourceID)
	if err != nil {
		return mapDBError(err)
	}
	return requireRowAffected(res, "source", sourceID)
}

func requireRowAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("%s %q not found", kind, id)
	}
	return nil
}
