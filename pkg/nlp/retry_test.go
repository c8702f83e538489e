package nlp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oculairmedia/graphiti-sub006/pkg/types"
)

// scriptedJudge returns canned errors in order, then succeeds.
type scriptedJudge struct {
	errs    []error
	calls   int
	verdict Verdict
}

func (s *scriptedJudge) JudgeNode(ctx context.Context, candidate *types.EntityNode, contenders []*types.EntityNode) (Verdict, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return Verdict{CanonicalIdx: DistinctVerdict}, err
		}
	}
	return s.verdict, nil
}

func (s *scriptedJudge) JudgeCluster(ctx context.Context, cluster []*types.EntityNode) ([][]int, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return [][]int{{0}}, nil
}

func (s *scriptedJudge) Close() error { return nil }

func fastRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetryJudgeRecoversFromTransientFailure(t *testing.T) {
	inner := &scriptedJudge{
		errs:    []error{&RateLimitError{}, ErrRateLimit},
		verdict: Verdict{CanonicalIdx: 1},
	}
	judge := NewRetryJudge(inner, fastRetryConfig())

	verdict, err := judge.JudgeNode(context.Background(), &types.EntityNode{Name: "Claude"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, verdict.CanonicalIdx)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryJudgeDoesNotRetryMalformedResponses(t *testing.T) {
	inner := &scriptedJudge{errs: []error{&MalformedResponseError{Raw: "garbage"}}}
	judge := NewRetryJudge(inner, fastRetryConfig())

	_, err := judge.JudgeNode(context.Background(), &types.EntityNode{Name: "Claude"}, nil)
	assert.ErrorIs(t, err, &MalformedResponseError{})
	assert.Equal(t, 1, inner.calls)
}

func TestRetryJudgeExhaustsRetries(t *testing.T) {
	inner := &scriptedJudge{
		errs: []error{&RateLimitError{}, &RateLimitError{}, &RateLimitError{}, &RateLimitError{}},
	}
	judge := NewRetryJudge(inner, fastRetryConfig())

	_, err := judge.JudgeNode(context.Background(), &types.EntityNode{Name: "Claude"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, &RateLimitError{})
	assert.Equal(t, 4, inner.calls)
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, isRetryableError(&RateLimitError{}))
	assert.True(t, isRetryableError(errors.New("503 service unavailable")))
	assert.True(t, isRetryableError(types.ErrTransientBackend))
	assert.False(t, isRetryableError(nil))
	assert.False(t, isRetryableError(&MalformedResponseError{}))
	assert.False(t, isRetryableError(errors.New("invalid api key")))
}

func TestNopJudge(t *testing.T) {
	verdict, err := NopJudge{}.JudgeNode(context.Background(), &types.EntityNode{Name: "Claude"}, []*types.EntityNode{{Name: "claude"}})
	require.NoError(t, err)
	assert.True(t, verdict.Distinct())

	groups, err := NopJudge{}.JudgeCluster(context.Background(), []*types.EntityNode{{Name: "a"}, {Name: "b"}})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0}, {1}}, groups)
}

func TestBreakerJudgeOpensAfterRepeatedFailures(t *testing.T) {
	boom := errors.New("connection refused")
	inner := &scriptedJudge{errs: []error{boom, boom, boom, boom, boom, boom, boom, boom}}
	judge := NewBreakerJudge(inner, nil)

	ctx := context.Background()
	node := &types.EntityNode{Name: "Claude"}

	sawUnavailable := false
	for i := 0; i < 8; i++ {
		_, err := judge.JudgeNode(ctx, node, nil)
		require.Error(t, err)
		if errors.Is(err, ErrJudgeUnavailable) {
			sawUnavailable = true
		}
	}
	assert.True(t, sawUnavailable, "breaker should open and fail fast")
	assert.Less(t, inner.calls, 8, "open breaker must stop calling the backend")
}
