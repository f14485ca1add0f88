package app

import (
	"context"
	"log/slog"

	"github.com/mr-cto/rapiddatachat/internal/domain"
	"github.com/mr-cto/rapiddatachat/internal/failure"
)

// containedViewManager wraps the view manager with failure containment:
// transient failures retry with backoff, and exhausted creations land in
// the dead-letter queue for the sweep to re-dispatch.
type containedViewManager struct {
	inner  domain.ViewManager
	dl     *failure.DeadLetterService
	policy failure.RetryPolicy
	logger *slog.Logger
}

var _ domain.ViewManager = (*containedViewManager)(nil)

func newContainedViewManager(inner domain.ViewManager, dl *failure.DeadLetterService, logger *slog.Logger) *containedViewManager {
	return &containedViewManager{
		inner:  inner,
		dl:     dl,
		policy: failure.RetryPolicy{},
		logger: logger,
	}
}

func (m *containedViewManager) CreateSourceView(ctx context.Context, ownerID, sourceID string) (string, error) {
	var viewName string
	err := m.dl.Contain(ctx, OpCreateSourceView,
		map[string]interface{}{"ownerId": ownerID, "sourceId": sourceID},
		m.policy,
		func(ctx context.Context) error {
			var err error
			viewName, err = m.inner.CreateSourceView(ctx, ownerID, sourceID)
			return err
		})
	return viewName, err
}

func (m *containedViewManager) CreateMergedView(ctx context.Context, def *domain.MergedColumnDefinition) (string, error) {
	payload := map[string]interface{}{
		"ownerId":   def.OwnerID,
		"sourceId":  def.SourceID,
		"mergeName": def.MergeName,
		"fields":    toInterfaceSlice(def.Fields),
		"delimiter": def.Delimiter,
	}
	var viewName string
	err := m.dl.Contain(ctx, OpCreateMergedView, payload, m.policy,
		func(ctx context.Context) error {
			var err error
			viewName, err = m.inner.CreateMergedView(ctx, def)
			return err
		})
	return viewName, err
}

// DropView is already idempotent; a failed drop is retried but never
// dead-lettered, since re-running the caller achieves the same end.
func (m *containedViewManager) DropView(ctx context.Context, viewName string) error {
	return failure.ExecuteWithRetry(ctx, m.logger, "drop_view", m.policy,
		func(ctx context.Context) error {
			return m.inner.DropView(ctx, viewName)
		})
}

func (m *containedViewManager) Reactivate(ctx context.Context, ownerID, sourceID string) (string, error) {
	var viewName string
	err := m.dl.Contain(ctx, OpCreateSourceView,
		map[string]interface{}{"ownerId": ownerID, "sourceId": sourceID},
		m.policy,
		func(ctx context.Context) error {
			var err error
			viewName, err = m.inner.Reactivate(ctx, ownerID, sourceID)
			return err
		})
	return viewName, err
}

func toInterfaceSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
