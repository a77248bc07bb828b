package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/klima-weather-proxy/internal/observability"
)

// requestCoalescer lets concurrent misses of the same key share one
// upstream fetch. The shared fetch runs detached from any single caller's
// cancellation and is bounded by timeout instead.
type requestCoalescer struct {
	group   singleflight.Group
	timeout time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{timeout: timeout}
}

// Do runs fn once per key among concurrent callers and hands every caller
// the same result. A caller whose ctx ends first stops waiting; the fetch
// continues for the others.
func (rc *requestCoalescer) Do(ctx context.Context, tag, key string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	start := time.Now()
	ch := rc.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
		defer cancel()
		return fn(fetchCtx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			observability.RequestCoalescingHitsTotal.WithLabelValues(tag).Inc()
			observability.RequestCoalescingWaitSeconds.WithLabelValues(tag).Observe(time.Since(start).Seconds())
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
