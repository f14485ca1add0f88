package failure

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// memDeadLetterRepo is an in-memory DeadLetterRepository with the same
// backoff-due semantics as the SQLite implementation.
type memDeadLetterRepo struct {
	mu    sync.Mutex
	items map[string]*domain.DeadLetterItem
}

func newMemDeadLetterRepo() *memDeadLetterRepo {
	return &memDeadLetterRepo{items: make(map[string]*domain.DeadLetterItem)}
}

func (m *memDeadLetterRepo) Insert(_ context.Context, item *domain.DeadLetterItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *memDeadLetterRepo) ListDue(_ context.Context, now time.Time, maxRetries, limit int) ([]domain.DeadLetterItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DeadLetterItem
	for _, item := range m.items {
		if item.RetryCount >= maxRetries || len(out) >= limit {
			continue
		}
		base := item.Timestamp
		if item.LastRetryAt != nil {
			base = *item.LastRetryAt
		}
		if base.Add(time.Minute << uint(item.RetryCount)).After(now) {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

func (m *memDeadLetterRepo) Update(_ context.Context, item *domain.DeadLetterItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; !ok {
		return domain.ErrNotFound("dead letter %q not found", item.ID)
	}
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *memDeadLetterRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return domain.ErrNotFound("dead letter %q not found", id)
	}
	delete(m.items, id)
	return nil
}

func (m *memDeadLetterRepo) List(_ context.Context, limit int) ([]domain.DeadLetterItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DeadLetterItem
	for _, item := range m.items {
		if len(out) >= limit {
			break
		}
		out = append(out, *item)
	}
	return out, nil
}

func newTestDeadLetters() (*DeadLetterService, *memDeadLetterRepo) {
	repo := newMemDeadLetterRepo()
	return NewDeadLetterService(repo, 5, 50, testLogger), repo
}

func TestRecord_PersistsItem(t *testing.T) {
	svc, repo := newTestDeadLetters()

	id := svc.Record(context.Background(), "create_merged_view",
		map[string]interface{}{"mergeName": "full_name"}, errors.New("i/o timeout"))
	require.NotEmpty(t, id)

	items, err := repo.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "create_merged_view", items[0].OperationType)
	assert.Equal(t, "i/o timeout", items[0].Error)
	assert.Equal(t, 0, items[0].RetryCount)
}

func TestContain_DeadLettersExhaustedTransientFailures(t *testing.T) {
	svc, repo := newTestDeadLetters()

	err := svc.Contain(context.Background(), "op", map[string]interface{}{"k": "v"},
		RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		func(context.Context) error { return errors.New("connection refused") })
	require.Error(t, err)

	items, err := repo.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestContain_DeterministicFailureNotQueued(t *testing.T) {
	svc, repo := newTestDeadLetters()

	err := svc.Contain(context.Background(), "op", nil,
		RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
		func(context.Context) error { return domain.ErrValidation("bad") })
	require.Error(t, err)

	items, err := repo.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, items, "bad input is not a transient condition")
}

func TestProcessDeadLetterQueue_SuccessDeletesItem(t *testing.T) {
	svc, repo := newTestDeadLetters()

	var handled []string
	svc.RegisterHandler("op", func(_ context.Context, payload map[string]interface{}) error {
		handled = append(handled, payload["name"].(string))
		return nil
	})

	old := time.Now().Add(-2 * time.Minute).UTC()
	require.NoError(t, repo.Insert(context.Background(), &domain.DeadLetterItem{
		ID: "dl1", OperationType: "op",
		Payload: map[string]interface{}{"name": "a"}, Timestamp: old,
	}))

	stats, err := svc.ProcessDeadLetterQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, []string{"a"}, handled)

	items, _ := repo.List(context.Background(), 10)
	assert.Empty(t, items)
}

func TestProcessDeadLetterQueue_FailureBacksOff(t *testing.T) {
	svc, repo := newTestDeadLetters()
	svc.RegisterHandler("op", func(context.Context, map[string]interface{}) error {
		return errors.New("still broken")
	})

	old := time.Now().Add(-2 * time.Minute).UTC()
	require.NoError(t, repo.Insert(context.Background(), &domain.DeadLetterItem{
		ID: "dl1", OperationType: "op", Payload: map[string]interface{}{}, Timestamp: old,
	}))

	stats, err := svc.ProcessDeadLetterQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	items, _ := repo.List(context.Background(), 10)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].RetryCount)
	assert.Equal(t, "still broken", items[0].Error)
	require.NotNil(t, items[0].LastRetryAt)

	// Immediately re-sweeping finds nothing: the item backs off.
	stats, err = svc.ProcessDeadLetterQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Processed)
}

func TestProcessDeadLetterQueue_NoHandlerSkips(t *testing.T) {
	svc, repo := newTestDeadLetters()

	old := time.Now().Add(-2 * time.Minute).UTC()
	require.NoError(t, repo.Insert(context.Background(), &domain.DeadLetterItem{
		ID: "dl1", OperationType: "unregistered", Payload: map[string]interface{}{}, Timestamp: old,
	}))

	stats, err := svc.ProcessDeadLetterQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)

	items, _ := repo.List(context.Background(), 10)
	require.Len(t, items, 1)
	assert.Equal(t, 0, items[0].RetryCount, "skipped items are untouched")
}

func TestRetry_ForcesDispatch(t *testing.T) {
	svc, repo := newTestDeadLetters()
	svc.RegisterHandler("op", func(context.Context, map[string]interface{}) error { return nil })

	// Not yet due: Retry ignores the schedule.
	require.NoError(t, repo.Insert(context.Background(), &domain.DeadLetterItem{
		ID: "dl1", OperationType: "op", Payload: map[string]interface{}{}, Timestamp: time.Now().UTC(),
	}))

	require.NoError(t, svc.Retry(context.Background(), "dl1"))
	items, _ := repo.List(context.Background(), 10)
	assert.Empty(t, items)
}

func TestRetry_UnknownItem(t *testing.T) {
	svc, _ := newTestDeadLetters()

	err := svc.Retry(context.Background(), "ghost")
	require.Error(t, err)
	assert.IsType(t, &domain.NotFoundError{}, err)
}
