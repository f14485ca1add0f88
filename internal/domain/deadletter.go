package domain

import "time"

// DeadLetterItem records an operation that exhausted failure containment.
// Items never self-delete; removal is an explicit call.
type DeadLetterItem struct {
	ID            string
	OperationType string
	Payload       map[string]interface{}
	Error         string
	RetryCount    int
	Timestamp     time.Time
	LastRetryAt   *time.Time
}
