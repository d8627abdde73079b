package remote

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/JayabrataBasu/veridicalql/pkg/catalog"
	"github.com/JayabrataBasu/veridicalql/pkg/errs"
)

// Retrying retries failed fetches of a source with exponential backoff.
// Cancellation and catalog errors are not retried.
type Retrying struct {
	src        Source
	maxRetries uint64
	backoff    time.Duration
}

// WithRetry wraps src. maxRetries of zero disables retrying.
func WithRetry(src Source, maxRetries uint64, backoff time.Duration) *Retrying {
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &Retrying{src: src, maxRetries: maxRetries, backoff: backoff}
}

func (r *Retrying) Columns() []catalog.Column { return r.src.Columns() }

func (r *Retrying) Fetch(ctx context.Context) ([]catalog.Row, error) {
	var rows []catalog.Row
	b := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var err error
		rows, err = r.src.Fetch(ctx)
		if err != nil && retryable(ctx, err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !errors.Is(err, errs.ErrNotFound) && !errors.Is(err, errs.ErrTypeMismatch)
}
