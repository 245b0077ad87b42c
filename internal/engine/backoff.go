package engine

import (
	"context"
	"math"
	"time"

	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

type backoffCalculator func(baseDelay int64, retryCount int) int64

var backoffCalculators = map[string]backoffCalculator{
	api.BackoffTypeFixed: func(base int64, _ int) int64 {
		return base
	},
	api.BackoffTypeLinear: func(base int64, count int) int64 {
		return base * int64(count+1)
	},
	api.BackoffTypeExponential: func(base int64, count int) int64 {
		multiplier := math.Pow(2, float64(count))
		return int64(float64(base) * multiplier)
	},
}

// RetryDelay returns how long to wait before the retry following the given
// number of previous retries (zero for the first retry)
func RetryDelay(cfg *api.RetryConfig, retryCount int) time.Duration {
	calculator, ok := backoffCalculators[cfg.BackoffType]
	if !ok {
		calculator = backoffCalculators[api.BackoffTypeFixed]
	}

	delay := calculator(cfg.InitBackoff, retryCount)
	if cfg.MaxBackoff > 0 {
		delay = min(delay, cfg.MaxBackoff)
	}
	return api.Duration(max(delay, 0))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
