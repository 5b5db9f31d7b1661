// Package retry provides the bounded retry policy used when the engines hand
// control messages to a peer channel.
//
// Only errors explicitly marked as transient are retried. A busy channel is
// transient; a protocol violation or an offline peer is not, and is returned
// to the caller on the first attempt.
//
//	err := retry.Do(ctx, policy, func() error {
//	    return ch.Send(peer, msg)
//	})
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Sleeper provides an abstraction over time.Sleep for deterministic testing.
type Sleeper interface {
	Sleep(d time.Duration)
}

// DefaultSleeper implements Sleeper using the standard library time.Sleep.
type DefaultSleeper struct{}

// Sleep pauses the current goroutine for at least the duration d.
func (DefaultSleeper) Sleep(d time.Duration) {
	time.Sleep(d)
}

// Policy describes how many times an operation is attempted and how long to
// wait between attempts. The wait grows linearly with the attempt number.
type Policy struct {
	Attempts int
	Delay    time.Duration
	Sleeper  Sleeper
}

// DefaultPolicy returns the policy used for control messages: three attempts,
// 5ms apart. Short enough to stay inside one tick.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: 3,
		Delay:    5 * time.Millisecond,
		Sleeper:  DefaultSleeper{},
	}
}

// transientError marks an error as safe to retry.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so that IsTransient reports true for it and for any
// error wrapping it. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err, or any error it wraps, was marked with
// Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Do runs op until it succeeds, returns a non-transient error, the context is
// done, or the policy runs out of attempts. The last error is returned wrapped
// with the attempt count.
func Do(ctx context.Context, p Policy, op func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleeper := p.Sleeper
	if sleeper == nil {
		sleeper = DefaultSleeper{}
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}

		logrus.WithFields(logrus.Fields{
			"function": "retry.Do",
			"attempt":  attempt + 1,
			"attempts": attempts,
			"error":    lastErr.Error(),
		}).Debug("Transient failure, retrying")

		if attempt < attempts-1 && p.Delay > 0 {
			sleeper.Sleep(time.Duration(attempt+1) * p.Delay)
		}
	}

	return fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}
