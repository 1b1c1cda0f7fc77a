// Package health probes the unauthenticated API root and tracks the result over time.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeout    = 5 * time.Second
	DefaultRetries    = 3
	DefaultRetryDelay = time.Second
	DefaultInterval   = 30 * time.Second
)

var ErrTimeout = errors.New("health check timed out")

// Pinger is implemented by api.Client
type Pinger interface {
	Health(ctx context.Context) (string, error)
	BaseURL() string
}

// Result is the outcome of one Check including its retries
type Result struct {
	Healthy      bool
	ResponseTime time.Duration
	Error        string
	Timestamp    time.Time
	APIURL       string
}

type checkOptions struct {
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	now        func() time.Time
}

type CheckOption func(*checkOptions)

// WithTimeout bounds each attempt
func WithTimeout(d time.Duration) CheckOption {
	return func(o *checkOptions) {
		o.timeout = d
	}
}

func WithRetries(n int) CheckOption {
	return func(o *checkOptions) {
		o.retries = max(n, 1)
	}
}

// WithRetryDelay sets the base delay. The wait after attempt n is n times the base delay.
func WithRetryDelay(d time.Duration) CheckOption {
	return func(o *checkOptions) {
		o.retryDelay = d
	}
}

func WithNowFunc(now func() time.Time) CheckOption {
	return func(o *checkOptions) {
		o.now = now
	}
}

func newCheckOptions(opts []CheckOption) checkOptions {
	o := checkOptions{
		timeout:    DefaultTimeout,
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Check calls the API root until it answers or the retries run out. It never returns an error;
// failures are reported in the Result. Cancelling ctx stops the retries early.
func Check(ctx context.Context, p Pinger, opts ...CheckOption) Result {
	o := newCheckOptions(opts)
	start := o.now()

	var lastErr error
	for attempt := 1; attempt <= o.retries; attempt++ {
		lastErr = ping(ctx, p, o.timeout)
		if lastErr == nil {
			return Result{
				Healthy:      true,
				ResponseTime: o.now().Sub(start),
				Timestamp:    o.now(),
				APIURL:       p.BaseURL(),
			}
		}
		log.Debug().Err(lastErr).Int("attempt", attempt).Msg("health check attempt failed")

		if attempt == o.retries {
			break
		}
		wait := time.NewTimer(o.retryDelay * time.Duration(attempt))
		select {
		case <-ctx.Done():
			wait.Stop()
			lastErr = ctx.Err()
			attempt = o.retries
		case <-wait.C:
		}
	}

	return Result{
		Healthy:      false,
		ResponseTime: o.now().Sub(start),
		Error:        lastErr.Error(),
		Timestamp:    o.now(),
		APIURL:       p.BaseURL(),
	}
}

func ping(ctx context.Context, p Pinger, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := p.Health(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	return err
}
