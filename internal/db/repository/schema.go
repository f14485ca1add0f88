package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// SchemaRepo implements domain.SchemaRepository.
type SchemaRepo struct {
	db *sql.DB
}

func NewSchemaRepo(db *sql.DB) *SchemaRepo {
	return &SchemaRepo{db: db}
}

var _ domain.SchemaRepository = (*SchemaRepo)(nil)

const schemaColumns = `id, owner_id, project_id, name, description, columns, version, is_active, previous_version_id, created_at, updated_at`

func (r *SchemaRepo) GetByID(ctx context.Context, schemaID string) (*domain.Schema, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+schemaColumns+` FROM schemas WHERE id = ?`, schemaID)
	return scanSchema(row)
}

func (r *SchemaRepo) GetActive(ctx context.Context, ownerID, projectID, name string) (*domain.Schema, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+schemaColumns+` FROM schemas
		 WHERE owner_id = ? AND project_id = ? AND name = ? AND is_active = 1`,
		ownerID, projectID, name)
	return scanSchema(row)
}

func (r *SchemaRepo) Create(ctx context.Context, s *domain.Schema) (*domain.Schema, error) {
	cols, err := marshalJSON(s.Columns)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := s.Clone()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.Version == 0 {
		out.Version = 1
	}
	out.IsActive = true
	out.CreatedAt = now
	out.UpdatedAt = now

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO schemas (`+schemaColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		out.ID, out.OwnerID, out.ProjectID, out.Name, out.Description, cols,
		out.Version, out.PreviousVersionID, now, now)
	if err != nil {
		return nil, mapDBError(err)
	}
	return out, nil
}

// PersistVersion writes a committed mutation as a single SQLite
// transaction: the current row is archived under a fresh id
// (is_active=0), then updated in place with the mutated fields and the
// caller-incremented version, pointing previous_version_id at the
// archive. The schema's public id stays stable across versions so locks
// and transactions keep a fixed target; rollback is a re-point to the
// archived row.
func (r *SchemaRepo) PersistVersion(ctx context.Context, s *domain.Schema) (*domain.Schema, error) {
	cols, err := marshalJSON(s.Columns)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin schema version tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := scanSchema(tx.QueryRowContext(ctx,
		`SELECT `+schemaColumns+` FROM schemas WHERE id = ?`, s.ID))
	if err != nil {
		return nil, err
	}
	if s.Version != current.Version+1 {
		return nil, domain.ErrConflict(
			"schema %q version moved: expected to write version %d on top of %d",
			s.ID, s.Version, current.Version)
	}

	archiveID := uuid.NewString()
	currentCols, err := marshalJSON(current.Columns)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO schemas (`+schemaColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		archiveID, current.OwnerID, current.ProjectID, current.Name, current.Description,
		currentCols, current.Version, current.PreviousVersionID, current.CreatedAt, current.UpdatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE schemas SET name = ?, description = ?, columns = ?, version = ?,
		 previous_version_id = ?, updated_at = ? WHERE id = ?`,
		s.Name, s.Description, cols, s.Version, archiveID, now, s.ID)
	if err != nil {
		return nil, mapDBError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit schema version tx: %w", err)
	}

	out := s.Clone()
	out.PreviousVersionID = archiveID
	out.UpdatedAt = now
	return out, nil
}

func scanSchema(row interface{ Scan(...interface{}) error }) (*domain.Schema, error) {
	var s domain.Schema
	var cols string
	var active int
	err := row.Scan(&s.ID, &s.OwnerID, &s.ProjectID, &s.Name, &s.Description, &cols,
		&s.Version, &active, &s.PreviousVersionID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	s.IsActive = active != 0
	if err := unmarshalJSON(cols, &s.Columns); err != nil {
		return nil, err
	}
	return &s, nil
}
