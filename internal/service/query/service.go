package query

import (
	"log/slog"
	"time"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// DefaultTimeout bounds a single query execution.
const DefaultTimeout = 30 * time.Second

// Service validates, repairs, and executes candidate SELECT statements
// against the row engine.
type Service struct {
	eng     domain.RowEngine
	cache   *Cache
	timeout time.Duration
	logger  *slog.Logger
}

func NewService(eng domain.RowEngine, timeout time.Duration, logger *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		eng:     eng,
		cache:   NewCache(0),
		timeout: timeout,
		logger:  logger,
	}
}
