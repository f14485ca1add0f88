package domain

import "time"

// SchemaColumn is one column of a user-defined logical schema.
// Name is unique within a schema.
type SchemaColumn struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Description  string `json:"description,omitempty"`
	IsRequired   bool   `json:"isRequired"`
	IsPrimaryKey bool   `json:"isPrimaryKey,omitempty"`
}

// Schema is a named, versioned logical column set owned by a user,
// independent of any single source. Version increments by exactly one per
// committed transaction; the prior version row is retained and linked via
// PreviousVersionID so rollback is a re-point, not a re-derivation.
type Schema struct {
	ID                string
	OwnerID           string
	ProjectID         string
	Name              string
	Description       string
	Columns           []SchemaColumn
	Version           int64
	IsActive          bool
	PreviousVersionID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Column returns the column with the given name, or nil.
func (s *Schema) Column(name string) *SchemaColumn {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the schema. Commit applies operations to a
// clone so a failed transaction never leaks partial mutations.
func (s *Schema) Clone() *Schema {
	cp := *s
	cp.Columns = make([]SchemaColumn, len(s.Columns))
	copy(cp.Columns, s.Columns)
	return &cp
}
