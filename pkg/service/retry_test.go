package service

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shankarkarande/farmvibes-ai/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"permanent kind", models.NewError(models.ErrPermanentTaskFailure, "bad"), ClassPermanent},
		{"missing secret", models.NewError(models.ErrSecretNotFound, "gone"), ClassPermanent},
		{"exhausted budget", models.NewError(models.ErrRetryBudgetExhausted, "done trying"), ClassPermanent},
		{"malformed spec", models.NewError(models.ErrMalformedSpec, "bad yaml"), ClassPermanent},
		{"transient kind", models.NewError(models.ErrTransientTaskFailure, "hiccup"), ClassTransient},
		{"run cancelled kind", models.NewError(models.ErrRunCancelled, "stop"), ClassCancelled},
		{"context canceled", context.Canceled, ClassCancelled},
		{"wrapped context canceled", errors.Wrap(context.Canceled, "op failed"), ClassCancelled},
		{"deadline is a timeout", context.DeadlineExceeded, ClassTransient},
		{"untyped error", errors.New("worker crashed"), ClassTransient},
		{"wrapped typed error", errors.Wrap(models.NewError(models.ErrPermanentTaskFailure, "bad"), "ctx"), ClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestRetryPolicyBackOffHonorsBudget(t *testing.T) {
	p := RetryPolicy{MaxRetries: 2, Interval: 1}
	b := p.backOff(context.Background())

	// initial attempt consumed by the caller; the backoff permits
	// exactly MaxRetries waits before giving up
	waits := 0
	for {
		d := b.NextBackOff()
		if d < 0 {
			break
		}
		waits++
		if waits > 10 {
			t.Fatal("backoff never stopped")
		}
	}
	assert.Equal(t, 2, waits)
}

func TestRetryPolicyBackOffStopsOnDeadContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := RetryPolicy{MaxRetries: 5, Interval: 1}
	b := p.backOff(ctx)
	assert.Less(t, int64(b.NextBackOff()), int64(0))
}
