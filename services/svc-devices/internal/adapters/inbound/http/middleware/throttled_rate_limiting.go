package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"github.com/throttled/throttled/v2"
)

const (
	RateLimitLimitHeader     = "RateLimit-Limit"
	RateLimitRemainingHeader = "RateLimit-Remaining"
	RateLimitResetHeader     = "RateLimit-Reset"
	RetryAfterHeader         = "Retry-After"
)

// ThrottledRateLimiting applies a per client IP GCRA quota backed by store.
func ThrottledRateLimiting(
	cfg config.ThrottledRateLimiting,
	store throttled.GCRAStoreCtx,
	log logger.Logger,
) (func(http.Handler) http.Handler, error) {
	rateLimiter, err := throttled.NewGCRARateLimiterCtx(store, throttled.RateQuota{
		MaxRate:  throttled.PerSec(int(cfg.RequestsPerSecond)),
		MaxBurst: int(cfg.BurstSize),
	})
	if err != nil {
		return nil, fmt.Errorf("creating rate limiter: %w", err)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkipPath(r.URL.Path, cfg.SkipPaths) {
				next.ServeHTTP(w, r)

				return
			}

			limited, result, err := rateLimiter.RateLimitCtx(r.Context(), "ip:"+clientIP(r), 1)
			if err != nil {
				reqLogger := log.WithContext(r.Context())
				reqLogger.Warn().Err(err).Msg("rate limiter store error")

				if cfg.GracefulDegraded {
					next.ServeHTTP(w, r)

					return
				}

				WriteError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, "rate limiting temporarily unavailable")

				return
			}

			setRateLimitHeaders(w, result)

			if limited {
				w.Header().Set(RetryAfterHeader, strconv.Itoa(int(result.RetryAfter.Round(time.Second).Seconds())))
				WriteError(w, http.StatusTooManyRequests, CodeRateLimitExceeded, "too many requests, please try again later")

				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}

	return host
}

func setRateLimitHeaders(w http.ResponseWriter, result throttled.RateLimitResult) {
	w.Header().Set(RateLimitLimitHeader, strconv.Itoa(result.Limit))
	w.Header().Set(RateLimitRemainingHeader, strconv.Itoa(result.Remaining))
	w.Header().Set(RateLimitResetHeader, strconv.Itoa(int(result.ResetAfter.Round(time.Second).Seconds())))
}
