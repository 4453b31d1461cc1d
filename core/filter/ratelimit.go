package filter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/bautismal/atmosphere/core/broadcaster"
	"github.com/bautismal/atmosphere/core/cache"
)

// RateLimit drops broadcasts beyond limit per second with the given burst.
// The budget is shared by every message passing through the filter.
func RateLimit(limit rate.Limit, burst int) broadcaster.Filter {
	l := rate.NewLimiter(limit, burst)
	return Veto(func(broadcaster.Message) bool {
		return !l.Allow()
	})
}

// RecipientRateLimit skips recipients that already received more than limit
// messages per second. Limiters of the tracked most recently seen resources
// are kept; older ones are forgotten and start afresh.
func RecipientRateLimit(limit rate.Limit, burst, tracked int) broadcaster.ResourceFilter {
	limiters := cache.NewLRUCache[string, *rate.Limiter](tracked)
	return broadcaster.ResourceFilterFunc(func(_ context.Context, r broadcaster.Resource, m broadcaster.Message) broadcaster.Result {
		l, _ := limiters.GetOrPut(r.ID(), func() *rate.Limiter {
			return rate.NewLimiter(limit, burst)
		})
		if !l.Allow() {
			return broadcaster.Vetoed()
		}
		return broadcaster.Transformed(m)
	})
}
