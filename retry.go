package singleton

import (
	"fmt"
	"time"
)

// ------------------------------------------------------------
// RETRY-POLICY

// RetryPolicy runs an operation until it succeeds, fails with an
// error the classifier won't retry, or runs out of attempts. The
// zero value is the default policy: 100 attempts, linear backoff
// in steps of 500ms, retrying unavailability and conflicts.
type RetryPolicy struct {
	MaxAttempts int                    // Total attempts, including the first. 0 means DefaultMaxAttempts.
	BaseDelay   time.Duration          // Step for the default linear backoff. 0 means DefaultBaseDelay.
	Backoff     BackoffFunc            // Wait before an attempt. nil means LinearBackoff(BaseDelay).
	Retryable   func(error) bool       // Classifier. nil means RetryTransient.
	Sleep       func(time.Duration)    // nil means time.Sleep.
	Notify      func(n int, err error) // Optional, called after each failed attempt n that will be retried.
}

// BackoffFunc answers the delay before the 1-indexed attempt.
type BackoffFunc func(attempt int) time.Duration

// Do runs op under the policy. A non-retryable error is answered
// as-is. Running out of attempts answers an error that matches
// both ErrRetryExhausted and the last failure.
func (p RetryPolicy) Do(op func() error) error {
	max := p.maxAttempts()
	backoff := p.backoff()
	retryable := p.retryable()
	sleep := p.sleep()

	var err error
	for attempt := 1; attempt <= max; attempt++ {
		if d := backoff(attempt); d > 0 {
			sleep(d)
		}
		err = op()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt < max && p.Notify != nil {
			p.Notify(attempt, err)
		}
	}
	return &retryExhaustedErr{attempts: max, last: err}
}

// WithRetryable answers a copy of the policy using the supplied classifier.
func (p RetryPolicy) WithRetryable(fn func(error) bool) RetryPolicy {
	p.Retryable = fn
	return p
}

// WithMaxAttempts answers a copy of the policy limited to n attempts.
func (p RetryPolicy) WithMaxAttempts(n int) RetryPolicy {
	p.MaxAttempts = n
	return p
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (p RetryPolicy) backoff() BackoffFunc {
	if p.Backoff != nil {
		return p.Backoff
	}
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	return LinearBackoff(base)
}

func (p RetryPolicy) retryable() func(error) bool {
	if p.Retryable != nil {
		return p.Retryable
	}
	return RetryTransient
}

func (p RetryPolicy) sleep() func(time.Duration) {
	if p.Sleep != nil {
		return p.Sleep
	}
	return time.Sleep
}

// ------------------------------------------------------------
// BACKOFF

// LinearBackoff waits (attempt-1)*base before each attempt, so
// the first attempt runs immediately.
func LinearBackoff(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt <= 1 {
			return 0
		}
		return time.Duration(attempt-1) * base
	}
}

// ConstantBackoff waits d before every attempt after the first.
func ConstantBackoff(d time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt <= 1 {
			return 0
		}
		return d
	}
}

// ------------------------------------------------------------
// CLASSIFIERS

// RetryTransient retries unavailability and failed preconditions.
func RetryTransient(err error) bool {
	return IsUnavailable(err) || IsConflict(err)
}

// RetryUnavailable retries only unavailability.
func RetryUnavailable(err error) bool {
	return IsUnavailable(err)
}

// RetryAny retries every error.
func RetryAny(err error) bool {
	return err != nil
}

// ------------------------------------------------------------
// RETRY-EXHAUSTED

type retryExhaustedErr struct {
	attempts int
	last     error
}

func (e *retryExhaustedErr) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrRetryExhausted, e.attempts, e.last)
}

func (e *retryExhaustedErr) Is(target error) bool {
	return target == ErrRetryExhausted
}

func (e *retryExhaustedErr) Unwrap() error {
	return e.last
}

// ------------------------------------------------------------
// CONST and VAR

const (
	DefaultMaxAttempts = 100
	DefaultBaseDelay   = 500 * time.Millisecond
)
