package failure

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// Handler re-executes one dead-lettered operation from its recorded
// payload. Handlers are registered per operation type; the sweep
// dispatches through the table rather than switching on type names.
type Handler func(ctx context.Context, payload map[string]interface{}) error

// DeadLetterService records exhausted operations and periodically
// re-dispatches the due ones. Items that keep failing back off
// exponentially until the retry cap, after which they wait for manual
// action. Only a successful re-dispatch removes an item; failed and
// unhandled items stay queued until an operator deletes them.
type DeadLetterService struct {
	repo       domain.DeadLetterRepository
	maxRetries int
	batchSize  int
	logger     *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDeadLetterService(repo domain.DeadLetterRepository, maxRetries, batchSize int, logger *slog.Logger) *DeadLetterService {
	if maxRetries < 1 {
		maxRetries = 5
	}
	if batchSize < 1 {
		batchSize = 50
	}
	return &DeadLetterService{
		repo:       repo,
		maxRetries: maxRetries,
		batchSize:  batchSize,
		logger:     logger,
		handlers:   make(map[string]Handler),
	}
}

// RegisterHandler binds an operation type to its re-dispatch handler.
func (s *DeadLetterService) RegisterHandler(operationType string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[operationType] = h
}

func (s *DeadLetterService) handler(operationType string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[operationType]
	return h, ok
}

// Record stores a failed operation for later re-dispatch. Recording must
// not fail the caller's path twice: persistence errors are logged, not
// returned.
func (s *DeadLetterService) Record(ctx context.Context, operationType string, payload map[string]interface{}, cause error) string {
	item := &domain.DeadLetterItem{
		ID:            uuid.NewString(),
		OperationType: operationType,
		Payload:       payload,
		Error:         cause.Error(),
		Timestamp:     time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, item); err != nil {
		s.logger.Error("dead letter insert failed",
			"operation", operationType, "cause", cause, "error", err)
		return ""
	}
	s.logger.Warn("operation dead-lettered",
		"id", item.ID, "operation", operationType, "cause", cause)
	return item.ID
}

// Contain runs fn under the retry policy and dead-letters it when the
// retries are exhausted on a retryable class. Non-retryable failures
// return to the caller directly; they are bugs or bad input, not
// transient conditions worth queueing.
func (s *DeadLetterService) Contain(ctx context.Context, operationType string, payload map[string]interface{}, policy RetryPolicy, fn func(ctx context.Context) error) error {
	err := ExecuteWithRetry(ctx, s.logger, operationType, policy, fn)
	if err == nil {
		return nil
	}
	if policy.normalized().retries(Classify(err)) {
		s.Record(ctx, operationType, payload, err)
	}
	return err
}

// SweepStats summarizes one queue pass.
type SweepStats struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ProcessDeadLetterQueue re-dispatches every due item through its
// registered handler. Items without a handler are skipped untouched so a
// later deployment that registers one can still pick them up.
func (s *DeadLetterService) ProcessDeadLetterQueue(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	due, err := s.repo.ListDue(ctx, time.Now().UTC(), s.maxRetries, s.batchSize)
	if err != nil {
		return stats, fmt.Errorf("list due dead letters: %w", err)
	}

	for i := range due {
		item := due[i]
		stats.Processed++

		h, ok := s.handler(item.OperationType)
		if !ok {
			stats.Skipped++
			s.logger.Debug("no handler for dead letter", "id", item.ID, "operation", item.OperationType)
			continue
		}

		if err := h(ctx, item.Payload); err != nil {
			stats.Failed++
			now := time.Now().UTC()
			item.RetryCount++
			item.LastRetryAt = &now
			item.Error = err.Error()
			if upErr := s.repo.Update(ctx, &item); upErr != nil {
				s.logger.Error("dead letter update failed", "id", item.ID, "error", upErr)
			}
			s.logger.Warn("dead letter retry failed",
				"id", item.ID, "operation", item.OperationType, "retries", item.RetryCount, "error", err)
			continue
		}

		stats.Succeeded++
		if err := s.repo.Delete(ctx, item.ID); err != nil {
			s.logger.Error("dead letter delete after success failed", "id", item.ID, "error", err)
		}
		s.logger.Info("dead letter re-dispatched", "id", item.ID, "operation", item.OperationType)
	}

	if stats.Processed > 0 {
		s.logger.Info("dead letter sweep finished",
			"processed", stats.Processed, "succeeded", stats.Succeeded,
			"failed", stats.Failed, "skipped", stats.Skipped)
	}
	return stats, nil
}

// List exposes the queue for the admin surface.
func (s *DeadLetterService) List(ctx context.Context, limit int) ([]domain.DeadLetterItem, error) {
	return s.repo.List(ctx, limit)
}

// Retry forces one item through its handler immediately, ignoring the
// backoff schedule.
func (s *DeadLetterService) Retry(ctx context.Context, id string) error {
	items, err := s.repo.List(ctx, 1000)
	if err != nil {
		return err
	}
	for i := range items {
		if items[i].ID != id {
			continue
		}
		h, ok := s.handler(items[i].OperationType)
		if !ok {
			return domain.ErrValidation("no handler registered for operation type %q", items[i].OperationType)
		}
		if err := h(ctx, items[i].Payload); err != nil {
			now := time.Now().UTC()
			items[i].RetryCount++
			items[i].LastRetryAt = &now
			items[i].Error = err.Error()
			if upErr := s.repo.Update(ctx, &items[i]); upErr != nil {
				s.logger.Error("dead letter update failed", "id", id, "error", upErr)
			}
			return err
		}
		return s.repo.Delete(ctx, id)
	}
	return domain.ErrNotFound("dead letter %q does not exist", id)
}

// Delete removes an item without re-dispatching it.
func (s *DeadLetterService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
