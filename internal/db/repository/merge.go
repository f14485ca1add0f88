package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// MergedColumnRepo implements domain.MergedColumnRepository.
type MergedColumnRepo struct {
	db *sql.DB
}

func NewMergedColumnRepo(db *sql.DB) *MergedColumnRepo {
	return &MergedColumnRepo{db: db}
}

var _ domain.MergedColumnRepository = (*MergedColumnRepo)(nil)

func (r *MergedColumnRepo) Create(ctx context.Context, def *domain.MergedColumnDefinition) (*domain.MergedColumnDefinition, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	fields, err := marshalJSON(def.Fields)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := *def
	out.ID = uuid.NewString()
	out.CreatedAt = now
	out.UpdatedAt = now

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO merged_columns (id, owner_id, source_id, merge_name, field_list, delimiter, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.OwnerID, out.SourceID, out.MergeName, fields, out.Delimiter, now, now)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &out, nil
}

func (r *MergedColumnRepo) Update(ctx context.Context, def *domain.MergedColumnDefinition) (*domain.MergedColumnDefinition, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	fields, err := marshalJSON(def.Fields)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE merged_columns SET field_list = ?, delimiter = ?, updated_at = ?
		 WHERE owner_id = ? AND source_id = ? AND merge_name = ?`,
		fields, def.Delimiter, now, def.OwnerID, def.SourceID, def.MergeName)
	if err != nil {
		return nil, mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, domain.ErrNotFound("merged column %q not found for source %q", def.MergeName, def.SourceID)
	}
	return r.Get(ctx, def.OwnerID, def.SourceID, def.MergeName)
}

// Delete is idempotent: deleting an absent definition is not an error.
func (r *MergedColumnRepo) Delete(ctx context.Context, ownerID, sourceID, mergeName string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM merged_columns WHERE owner_id = ? AND source_id = ? AND merge_name = ?`,
		ownerID, sourceID, mergeName)
	return mapDBError(err)
}

func (r *MergedColumnRepo) Get(ctx context.Context, ownerID, sourceID, mergeName string) (*domain.MergedColumnDefinition, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, source_id, merge_name, field_list, delimiter, created_at, updated_at
		 FROM merged_columns WHERE owner_id = ? AND source_id = ? AND merge_name = ?`,
		ownerID, sourceID, mergeName)
	return scanMergedColumn(row)
}

func (r *MergedColumnRepo) ListForSource(ctx context.Context, ownerID, sourceID string) ([]domain.MergedColumnDefinition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, source_id, merge_name, field_list, delimiter, created_at, updated_at
		 FROM merged_columns WHERE owner_id = ? AND source_id = ? ORDER BY merge_name`,
		ownerID, sourceID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.MergedColumnDefinition
	for rows.Next() {
		d, err := scanMergedColumn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanMergedColumn(row interface{ Scan(...interface{}) error }) (*domain.MergedColumnDefinition, error) {
	var d domain.MergedColumnDefinition
	var fields string
	err := row.Scan(&d.ID, &d.OwnerID, &d.SourceID, &d.MergeName, &fields, &d.Delimiter, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	if err := unmarshalJSON(fields, &d.Fields); err != nil {
		return nil, err
	}
	return &d, nil
}
