package nlp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/oculairmedia/graphiti-sub006/pkg/types"
)

// BreakerJudge wraps a Judge with a circuit breaker. When the backend
// fails repeatedly the breaker opens and calls return ErrJudgeUnavailable
// immediately instead of queueing behind a dead service; resolution then
// takes its conservative "distinct" fallback without stalling ingestion.
type BreakerJudge struct {
	judge   Judge
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewBreakerJudge wraps judge with a circuit breaker. A nil logger falls
// back to slog.Default.
func NewBreakerJudge(judge Judge, logger *slog.Logger) *BreakerJudge {
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:    "judgment-backend",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("judgment circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
		// Malformed responses are verdict-level noise, not backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, &MalformedResponseError{})
		},
	}

	return &BreakerJudge{
		judge:   judge,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

func (b *BreakerJudge) execute(fn func() (any, error)) (any, error) {
	result, err := b.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrJudgeUnavailable
	}
	return result, err
}

// JudgeNode implements Judge through the breaker.
func (b *BreakerJudge) JudgeNode(ctx context.Context, candidate *types.EntityNode, contenders []*types.EntityNode) (Verdict, error) {
	result, err := b.execute(func() (any, error) {
		return b.judge.JudgeNode(ctx, candidate, contenders)
	})
	if err != nil {
		return Verdict{CanonicalIdx: DistinctVerdict}, err
	}
	return result.(Verdict), nil
}

// JudgeCluster implements Judge through the breaker.
func (b *BreakerJudge) JudgeCluster(ctx context.Context, cluster []*types.EntityNode) ([][]int, error) {
	result, err := b.execute(func() (any, error) {
		return b.judge.JudgeCluster(ctx, cluster)
	})
	if err != nil {
		return nil, err
	}
	return result.([][]int), nil
}

// Close closes the wrapped judge.
func (b *BreakerJudge) Close() error {
	return b.judge.Close()
}
