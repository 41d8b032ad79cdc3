package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable reports a remote backend that did not answer.
	ErrUnavailable = errors.New("cache backend unavailable")

	// ErrUnknownBackend is returned by [New] for a backend name it does not know.
	ErrUnknownBackend = errors.New("unknown cache backend")
)

// transient marks a failure worth another attempt.
type transient struct{ error }

func (t transient) Unwrap() error { return t.error }

// Retryable marks err as transient so [Backoff.Do] tries again. A nil err
// stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return transient{err}
}

// IsRetryable reports whether err, or anything it wraps, was marked by
// [Retryable].
func IsRetryable(err error) bool {
	var t transient
	return errors.As(err, &t)
}

// Backoff retries transient backend failures, doubling Delay after every
// failed attempt.
type Backoff struct {
	Attempts int
	Delay    time.Duration
}

// connectBackoff governs the PING a remote backend answers before use.
var connectBackoff = Backoff{Attempts: 3, Delay: time.Second}

// Do calls fn until it succeeds, returns an unmarked error, or the attempts
// run out. The last error is returned unchanged.
func (b Backoff) Do(ctx context.Context, fn func() error) error {
	attempts := max(b.Attempts, 1)
	wait := b.Delay
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !IsRetryable(err) || attempt == attempts {
			return err
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait *= 2
	}
}

// RetryWithBackoff runs fn under the backoff used for backend connections.
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	return connectBackoff.Do(ctx, fn)
}
