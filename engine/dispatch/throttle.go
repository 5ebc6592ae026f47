package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// Throttle limits how many commands a single caller may issue per period.
type Throttle struct {
	limiter *limiter.Limiter
}

// NewThrottle returns nil when limit is not positive, which disables
// throttling.
func NewThrottle(store limiter.Store, limit int64, period time.Duration) *Throttle {
	if limit <= 0 || period <= 0 {
		return nil
	}
	if store == nil {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          "keybot:commands:",
			CleanUpInterval: time.Minute,
		})
	}
	return &Throttle{limiter: limiter.New(store, limiter.Rate{Period: period, Limit: limit})}
}

// Allow consumes one unit for callerID and returns the wait until the next
// unit when the limit is reached.
func (t *Throttle) Allow(ctx context.Context, callerID string) (bool, time.Duration, error) {
	if t == nil {
		return true, 0, nil
	}
	res, err := t.limiter.Get(ctx, callerID)
	if err != nil {
		return false, 0, fmt.Errorf("rate limiter: %w", err)
	}
	if !res.Reached {
		return true, 0, nil
	}
	wait := time.Until(time.Unix(res.Reset, 0))
	if wait < time.Second {
		wait = time.Second
	}
	return false, wait, nil
}
