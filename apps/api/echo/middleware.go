package echoapi

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// idle visitor entries are pruned once the map grows past the threshold,
// keeping it bounded
var (
	visitorTTL            = 10 * time.Minute
	visitorPruneThreshold = 1000
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimitMiddleware throttles requests per client IP. Used on the
// unauthenticated auth endpoints.
func rateLimitMiddleware(limit rate.Limit, burst int) echo.MiddlewareFunc {
	var (
		mu       sync.Mutex
		visitors = make(map[string]*visitor)
	)
	getLimiter := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if len(visitors) >= visitorPruneThreshold {
			for k, v := range visitors {
				if now.Sub(v.lastSeen) > visitorTTL {
					delete(visitors, k)
				}
			}
		}

		v, ok := visitors[ip]
		if !ok {
			v = &visitor{limiter: rate.NewLimiter(limit, burst)}
			visitors[ip] = v
		}
		v.lastSeen = now
		return v.limiter
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !getLimiter(ctx.RealIP()).Allow() {
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}
