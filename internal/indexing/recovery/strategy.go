// Package recovery decides how long a subscription waits after a failed tick.
package recovery

import (
	"context"
	"errors"
	"math"
	"time"
)

// FailureCategory groups errors by how they should be retried.
type FailureCategory int

const (
	CategoryTransient FailureCategory = iota
	CategoryPermanent
)

// Classifier maps an error to a FailureCategory.
type Classifier func(err error) FailureCategory

// RetryStrategy defines how retries should be handled.
type RetryStrategy interface {
	// GetDelay returns the delay for the given attempt (0-indexed).
	GetDelay(attempt int) time.Duration

	// ShouldRetry checks if we should retry based on the error and attempt count.
	ShouldRetry(err error, attempt int) bool
}

// ExponentialBackoff implements a standard backoff strategy.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int // 0 = unlimited
	Classifier   Classifier
}

// DefaultBackoff returns defaults for polling a chain data source.
// 200ms, 400ms, 800ms ... capped at 10s, retried forever.
func DefaultBackoff(classifier Classifier) *ExponentialBackoff {
	if classifier == nil {
		classifier = DefaultClassifier
	}
	return &ExponentialBackoff{
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Classifier:   classifier,
	}
}

// DefaultClassifier treats everything as transient except context cancellation.
func DefaultClassifier(err error) FailureCategory {
	if errors.Is(err, context.Canceled) {
		return CategoryPermanent
	}
	return CategoryTransient
}

// GetDelay calculates delay: InitialDelay * 2^attempt
func (s *ExponentialBackoff) GetDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(s.InitialDelay) * math.Pow(2, float64(attempt))
	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry checks if error is transient and max attempts not exceeded.
func (s *ExponentialBackoff) ShouldRetry(err error, attempt int) bool {
	if s.MaxAttempts > 0 && attempt >= s.MaxAttempts {
		return false
	}
	return s.Classifier(err) == CategoryTransient
}
