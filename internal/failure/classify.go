// Package failure implements failure containment: error classification,
// retry with exponential backoff for transient classes, and a dead-letter
// queue with periodic re-dispatch for operations that exhaust their
// retries.
package failure

import (
	"context"
	"errors"
	"strings"

	"github.com/mr-cto/rapiddatachat/internal/domain"
)

// Class is a coarse error category driving the containment decision. The
// taxonomy is closed: every error maps to exactly one of these.
type Class string

const (
	ClassValidation     Class = "validation"
	ClassTransformation Class = "transformation"
	ClassStorage        Class = "storage"
	ClassNetwork        Class = "network"
	ClassAuthentication Class = "authentication"
	ClassAuthorization  Class = "authorization"
	ClassNotFound       Class = "not_found"
	ClassTimeout        Class = "timeout"
	ClassConcurrency    Class = "concurrency"
	ClassResource       Class = "resource"
	ClassConfiguration  Class = "configuration"
	ClassIntegration    Class = "integration"
	ClassBusinessRule   Class = "business_rule"
	ClassDataQuality    Class = "data_quality"
	ClassUnknown        Class = "unknown"
)

// DefaultRetryableClasses is the transient set: retrying can change the
// outcome. Everything else is deterministic and fails fast.
var DefaultRetryableClasses = []Class{
	ClassNetwork, ClassTimeout, ClassStorage, ClassConcurrency, ClassResource,
}

// Retryable reports whether the class is in the default transient set.
// Policies can narrow or widen the set per operation via
// RetryPolicy.RetryableClasses.
func (c Class) Retryable() bool {
	for _, r := range DefaultRetryableClasses {
		if c == r {
			return true
		}
	}
	return false
}

// Classify maps an error to its containment class. Typed domain errors
// classify exactly; everything else falls back to message inspection,
// which is deliberately conservative: an unrecognized error is unknown
// and not retried. Context cancellation has no class of its own and
// rides with timeout.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	}

	var (
		notFound     *domain.NotFoundError
		accessDenied *domain.AccessDeniedError
		validation   *domain.ValidationError
		conflict     *domain.ConflictError
		timeout      *domain.TimeoutError
		concurrency  *domain.ConcurrencyError
	)
	switch {
	case errors.As(err, &notFound):
		return ClassNotFound
	case errors.As(err, &accessDenied):
		return ClassAuthorization
	case errors.As(err, &validation):
		return ClassValidation
	case errors.As(err, &conflict):
		// Duplicate resources and stale versions: retrying without new
		// input cannot change the outcome.
		return ClassBusinessRule
	case errors.As(err, &timeout):
		return ClassTimeout
	case errors.As(err, &concurrency):
		return ClassConcurrency
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "connection refused", "connection reset", "broken pipe", "no such host", "i/o timeout", "network"):
		return ClassNetwork
	case containsAny(msg, "timeout", "timed out", "deadline"):
		return ClassTimeout
	case containsAny(msg, "database is locked", "too many connections", "connection pool", "driver: bad connection"):
		return ClassStorage
	case containsAny(msg, "syntax error", "no such column", "no such table", "does not exist", "binder error", "parser error", "catalog error"):
		// The statement is wrong, not the store.
		return ClassValidation
	case containsAny(msg, "unauthorized", "invalid token", "authentication"):
		return ClassAuthentication
	case containsAny(msg, "permission denied", "forbidden", "access denied"):
		return ClassAuthorization
	case containsAny(msg, "rate limit", "too many requests", "429", "out of memory", "disk full", "no space", "resource"):
		return ClassResource
	case containsAny(msg, "unmarshal", "marshal", "invalid json", "unexpected end of json", "cannot convert", "conversion"):
		return ClassTransformation
	case containsAny(msg, "missing configuration", "misconfigured", "environment variable"):
		return ClassConfiguration
	case containsAny(msg, "translation", "translator", "upstream", "bad gateway", "502"):
		return ClassIntegration
	case containsAny(msg, "constraint failed", "invalid utf-8", "malformed"):
		return ClassDataQuality
	default:
		return ClassUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
