package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/cartsplit-backend/api/responses"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
)

const (
	RateLimitLimitHeader     = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
)

// RateLimitStore is a windowed counter; the redis client implements it.
type RateLimitStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// RateLimitPolicy admits Limit requests per client IP in each Window. The
// window opens on the first request seen from that IP.
type RateLimitPolicy struct {
	Name   string
	Window time.Duration
	Limit  int
}

// RateLimit counts requests per policy and client IP. A failing counter lets
// the request through so a Redis blip never drops a gateway callback.
func RateLimit(policy RateLimitPolicy, store RateLimitStore, logg *logger.Logger) func(http.Handler) http.Handler {
	if policy.Window <= 0 || policy.Limit <= 0 || store == nil {
		return passthrough
	}
	name := strings.ToLower(strings.TrimSpace(policy.Name))
	if name == "" {
		name = "default"
	}
	limit := int64(policy.Limit)
	retryAfter := strconv.Itoa(int(policy.Window.Round(time.Second) / time.Second))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if ip == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			count, err := store.IncrWithTTL(ctx, store.RateLimitKey(name+":"+ip), policy.Window)
			if err != nil {
				if logg != nil {
					logg.Error(logg.WithField(ctx, "policy", name), "rate limit counter unavailable", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set(RateLimitLimitHeader, strconv.FormatInt(limit, 10))
			w.Header().Set(RateLimitRemainingHeader, strconv.FormatInt(max(limit-count, 0), 10))
			if count <= limit {
				next.ServeHTTP(w, r)
				return
			}

			if logg != nil {
				logg.Warn(logg.WithFields(ctx, map[string]any{"policy": name, "ip": ip, "count": count}), "rate limit exceeded")
			}
			w.Header().Set("Retry-After", retryAfter)
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests").With("limit", policy.Limit))
		})
	}
}

func passthrough(next http.Handler) http.Handler { return next }

// clientIP prefers the left-most X-Forwarded-For entry set by the load
// balancer, then X-Real-IP, then the socket peer.
func clientIP(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
