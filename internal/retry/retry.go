// Package retry wraps flaky external tool invocations with a bounded
// retry count and a non-decreasing delay between attempts.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Op describes one retryable operation.
type Op struct {
	// Name identifies the operation in logs and errors.
	Name string

	// MaxAttempts bounds the total number of attempts. Values below 1 are
	// treated as 1.
	MaxAttempts int

	// Delay is the pause after the first failed attempt. Subsequent pauses
	// grow linearly with the attempt number, so a transient external
	// resource is never hammered at a fixed rate.
	Delay time.Duration

	Logger *logrus.Logger
}

// ExhaustedError reports that every attempt of an operation failed.
type ExhaustedError struct {
	Name     string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts: %v", e.Name, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

func (op Op) logger() *logrus.Logger {
	if op.Logger != nil {
		return op.Logger
	}
	return logrus.StandardLogger()
}

// Do runs fn until it succeeds, all attempts are used up, or ctx is
// cancelled between attempts. An in-flight fn is never interrupted; ctx is
// only consulted at attempt boundaries.
func (op Op) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	maxAttempts := op.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		last = fn(ctx)
		if last == nil {
			return nil
		}

		op.logger().WithFields(logrus.Fields{
			"operation":    op.Name,
			"attempt":      attempt,
			"max_attempts": maxAttempts,
		}).Warnf("Attempt failed: %v", last)

		if attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(op.Delay * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return &ExhaustedError{
		Name:     op.Name,
		Attempts: maxAttempts,
		Last:     last,
	}
}
