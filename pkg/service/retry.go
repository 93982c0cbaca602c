package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/shankarkarande/farmvibes-ai/pkg/models"
)

// FailureClass is the retry policy's verdict on a task failure.
type FailureClass int

const (
	// ClassTransient failures (worker crash, timeout, resource
	// exhaustion) are retried up to the budget.
	ClassTransient FailureClass = iota
	// ClassPermanent failures (invalid input, unknown reference,
	// missing secret) are never retried.
	ClassPermanent
	// ClassCancelled is an externally requested stop, not an error.
	ClassCancelled
)

// Classify decides how a task failure is handled. Typed engine errors
// carry their class; context cancellation means the run was cancelled;
// a deadline hit is a timeout and therefore transient. Untyped errors
// from operations are treated as transient so a crashed worker gets
// its bounded retries.
func Classify(err error) FailureClass {
	switch models.KindOf(err) {
	case models.ErrPermanentTaskFailure,
		models.ErrSecretNotFound,
		models.ErrUnboundParameter,
		models.ErrUnknownPortReference,
		models.ErrMalformedSpec,
		models.ErrRetryBudgetExhausted:
		return ClassPermanent
	case models.ErrRunCancelled:
		return ClassCancelled
	case models.ErrTransientTaskFailure:
		return ClassTransient
	}
	if errors.Is(err, context.Canceled) {
		return ClassCancelled
	}
	return ClassTransient
}

// RetryPolicy bounds automatic retries of transient task failures.
// Interval is the fixed wait between attempts.
type RetryPolicy struct {
	MaxRetries int
	Interval   time.Duration
}

// DefaultRetryPolicy matches the engine default: a small fixed budget
// with a constant backoff interval.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Interval: 2 * time.Second}
}

// backOff builds the ceiling for one task execution: the initial
// attempt plus MaxRetries retries, stopping early when ctx ends.
func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Interval), uint64(p.MaxRetries))
	return backoff.WithContext(b, ctx)
}
