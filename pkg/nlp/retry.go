package nlp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oculairmedia/graphiti-sub006/pkg/types"
)

// RetryConfig holds retry behavior for judgment calls.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int
	// InitialDelay is the delay before the first retry (default: 1s)
	InitialDelay time.Duration
	// MaxDelay caps the delay between retries (default: 30s)
	MaxDelay time.Duration
	// BackoffMultiplier is the exponential backoff factor (default: 2.0)
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryJudge wraps a Judge with bounded exponential-backoff retries for
// transient failures. Non-retryable failures surface immediately.
type RetryJudge struct {
	judge  Judge
	config *RetryConfig
}

// NewRetryJudge wraps judge with retry behavior.
func NewRetryJudge(judge Judge, config *RetryConfig) *RetryJudge {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 1 * time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}
	return &RetryJudge{judge: judge, config: config}
}

func (r *RetryJudge) retry(ctx context.Context, call func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.calculateDelay(attempt)):
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			}
		}

		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return err
		}
	}
	return fmt.Errorf("failed after %d retries: %w", r.config.MaxRetries, lastErr)
}

// JudgeNode implements Judge with retry logic.
func (r *RetryJudge) JudgeNode(ctx context.Context, candidate *types.EntityNode, contenders []*types.EntityNode) (Verdict, error) {
	verdict := Verdict{CanonicalIdx: DistinctVerdict}
	err := r.retry(ctx, func() error {
		var callErr error
		verdict, callErr = r.judge.JudgeNode(ctx, candidate, contenders)
		return callErr
	})
	return verdict, err
}

// JudgeCluster implements Judge with retry logic.
func (r *RetryJudge) JudgeCluster(ctx context.Context, cluster []*types.EntityNode) ([][]int, error) {
	var groups [][]int
	err := r.retry(ctx, func() error {
		var callErr error
		groups, callErr = r.judge.JudgeCluster(ctx, cluster)
		return callErr
	})
	return groups, err
}

// Close closes the wrapped judge.
func (r *RetryJudge) Close() error {
	return r.judge.Close()
}

func (r *RetryJudge) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffMultiplier, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	return time.Duration(delay)
}

// isRetryableError reports whether a judgment failure is worth retrying.
// Malformed responses are not: the backend answered, it just answered
// badly, and the caller's conservative fallback handles that.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, &MalformedResponseError{}) || errors.Is(err, ErrEmptyResponse) {
		return false
	}
	if errors.Is(err, &RateLimitError{}) || errors.Is(err, ErrRateLimit) {
		return true
	}
	if errors.Is(err, types.ErrTransientBackend) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"500", "internal server error",
		"502", "bad gateway",
		"503", "service unavailable",
		"504", "gateway timeout",
		"timeout",
		"connection reset",
		"connection refused",
		"temporary failure",
		"rate limit",
		"too many requests",
		"429",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
