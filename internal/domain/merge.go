package domain

import "time"

// MergedColumnDefinition describes a virtual column computed by joining
// several payload fields with a delimiter. (ownerId, sourceId, mergeName)
// is unique; the definition drives one merged view.
type MergedColumnDefinition struct {
	ID        string
	OwnerID   string
	SourceID  string
	MergeName string
	Fields    []string // ordered; must be non-empty
	Delimiter string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the structural invariants of the definition.
func (d *MergedColumnDefinition) Validate() error {
	if d.OwnerID == "" || d.SourceID == "" {
		return ErrValidation("merged column requires ownerId and sourceId")
	}
	if d.MergeName == "" {
		return ErrValidation("merged column requires a merge name")
	}
	if SanitizeIdentifier(d.MergeName) == "" {
		return ErrValidation("merge name %q contains no usable identifier characters", d.MergeName)
	}
	if len(d.Fields) == 0 {
		return ErrValidation("merged column %q requires at least one source field", d.MergeName)
	}
	for _, f := range d.Fields {
		if f == "" {
			return ErrValidation("merged column %q has an empty source field", d.MergeName)
		}
	}
	return nil
}

// ViewName returns the deterministic view name realizing this definition.
func (d *MergedColumnDefinition) ViewName() string {
	return MergedViewName(d.OwnerID, d.SourceID, d.MergeName)
}
