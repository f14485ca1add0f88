// Package merge manages merged-column definitions and the views that
// realize them. All mutations for one (owner, source) pair serialize
// through a lease-based lock so concurrent edits cannot interleave the
// metadata write and the view DDL.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/mr-cto/rapiddatachat/internal/domain"
	"github.com/mr-cto/rapiddatachat/internal/service/schematx"
)

// Service mutates through repo (the single-writer pool) and serves the
// read endpoints through reads, so lookups never queue behind writes.
type Service struct {
	repo   domain.MergedColumnRepository
	reads  domain.MergedColumnRepository
	views  domain.ViewManager
	locks  *schematx.LockManager
	logger *slog.Logger
}

func NewService(repo, reads domain.MergedColumnRepository, views domain.ViewManager, locks *schematx.LockManager, logger *slog.Logger) *Service {
	return &Service{repo: repo, reads: reads, views: views, locks: locks, logger: logger}
}

// Result is the outcome of a merged-view mutation.
type Result struct {
	Success  bool   `json:"success"`
	ViewName string `json:"viewName,omitempty"`
	Message  string `json:"message"`
}

func scopeKey(ownerID, sourceID string) string {
	return fmt.Sprintf("merge:%s:%s", ownerID, sourceID)
}

// Create stores a merged-column definition and builds its view. Creating
// a definition identical to an existing one is idempotent: the view is
// rebuilt and the call succeeds. A same-named definition with different
// fields or delimiter is a conflict; use Update for that.
func (s *Service) Create(ctx context.Context, def *domain.MergedColumnDefinition) (*Result, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	lockID, err := s.locks.Acquire(ctx, scopeKey(def.OwnerID, def.SourceID))
	if err != nil {
		return nil, err
	}
	defer s.locks.Release(ctx, scopeKey(def.OwnerID, def.SourceID), lockID)

	existing, err := s.repo.Get(ctx, def.OwnerID, def.SourceID, def.MergeName)
	if err != nil && !domain.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		if !sameDefinition(existing, def) {
			return nil, domain.ErrConflict(
				"merged column %q already exists with a different definition", def.MergeName)
		}
		viewName, err := s.views.CreateMergedView(ctx, existing)
		if err != nil {
			return nil, err
		}
		return &Result{Success: true, ViewName: viewName, Message: "merged column already exists"}, nil
	}

	created, err := s.repo.Create(ctx, def)
	if err != nil {
		return nil, err
	}

	viewName, err := s.views.CreateMergedView(ctx, created)
	if err != nil {
		// Definition without a view is useless; undo the metadata write.
		if delErr := s.repo.Delete(ctx, def.OwnerID, def.SourceID, def.MergeName); delErr != nil {
			s.logger.Error("orphaned merged-column definition",
				"merge", def.MergeName, "source", def.SourceID, "error", delErr)
		}
		return nil, err
	}

	s.logger.Info("merged column created", "merge", def.MergeName, "view", viewName)
	return &Result{Success: true, ViewName: viewName, Message: "merged column created"}, nil
}

// Update replaces the definition and rebuilds the view. Updating an
// absent definition creates it.
func (s *Service) Update(ctx context.Context, def *domain.MergedColumnDefinition) (*Result, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	lockID, err := s.locks.Acquire(ctx, scopeKey(def.OwnerID, def.SourceID))
	if err != nil {
		return nil, err
	}
	defer s.locks.Release(ctx, scopeKey(def.OwnerID, def.SourceID), lockID)

	existing, err := s.repo.Get(ctx, def.OwnerID, def.SourceID, def.MergeName)
	if err != nil && !domain.IsNotFound(err) {
		return nil, err
	}

	var (
		stored *domain.MergedColumnDefinition
		msg    string
	)
	if existing == nil {
		stored, err = s.repo.Create(ctx, def)
		msg = "merged column created"
	} else {
		def.ID = existing.ID
		stored, err = s.repo.Update(ctx, def)
		msg = "merged column updated"
	}
	if err != nil {
		return nil, err
	}

	viewName, err := s.views.CreateMergedView(ctx, stored)
	if err != nil {
		return nil, err
	}

	s.logger.Info("merged column updated", "merge", def.MergeName, "view", viewName)
	return &Result{Success: true, ViewName: viewName, Message: msg}, nil
}

// Drop removes the view and the definition. Dropping an absent merge
// succeeds: the desired end state already holds.
func (s *Service) Drop(ctx context.Context, ownerID, sourceID, mergeName string) (*Result, error) {
	lockID, err := s.locks.Acquire(ctx, scopeKey(ownerID, sourceID))
	if err != nil {
		return nil, err
	}
	defer s.locks.Release(ctx, scopeKey(ownerID, sourceID), lockID)

	viewName := domain.MergedViewName(ownerID, sourceID, mergeName)
	if err := s.views.DropView(ctx, viewName); err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, ownerID, sourceID, mergeName); err != nil && !domain.IsNotFound(err) {
		return nil, err
	}

	s.logger.Info("merged column dropped", "merge", mergeName, "source", sourceID)
	return &Result{Success: true, Message: "merged column dropped"}, nil
}

// List returns the merged columns for a source. Lookup failures degrade
// to an empty list so read paths stay available.
func (s *Service) List(ctx context.Context, ownerID, sourceID string) []domain.MergedColumnDefinition {
	defs, err := s.reads.ListForSource(ctx, ownerID, sourceID)
	if err != nil {
		s.logger.Warn("merged column list failed", "source", sourceID, "error", err)
		return []domain.MergedColumnDefinition{}
	}
	if defs == nil {
		defs = []domain.MergedColumnDefinition{}
	}
	return defs
}

// Get returns one definition, or nil when it does not exist.
func (s *Service) Get(ctx context.Context, ownerID, sourceID, mergeName string) *domain.MergedColumnDefinition {
	def, err := s.reads.Get(ctx, ownerID, sourceID, mergeName)
	if err != nil {
		if !domain.IsNotFound(err) {
			s.logger.Warn("merged column lookup failed", "merge", mergeName, "error", err)
		}
		return nil
	}
	return def
}

func sameDefinition(a, b *domain.MergedColumnDefinition) bool {
	return a.Delimiter == b.Delimiter && slices.Equal(a.Fields, b.Fields)
}
