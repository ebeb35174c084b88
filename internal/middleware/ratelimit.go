package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimit limits each client IP to the configured number of requests per
// window. Counter errors let the request through.
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	if !m.limits.Enabled || m.rdb == nil || m.limits.Limit <= 0 {
		return next
	}
	window := m.limits.Window
	if window <= 0 {
		window = time.Minute
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := m.prefix + "ratelimit:" + ClientIP(r)

		count, err := m.rdb.Incr(ctx, key).Result()
		if err != nil {
			m.log.Error().Err(err).Msg("failed to increment rate limit counter")
			next.ServeHTTP(w, r)
			return
		}

		// Set expiry on first request
		if count == 1 {
			m.rdb.Expire(ctx, key, window)
		}

		ttl, _ := m.rdb.TTL(ctx, key).Result()
		if ttl < 0 {
			ttl = window
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limits.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, m.limits.Limit-int(count))))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

		if int(count) > m.limits.Limit {
			w.Header().Set("Retry-After", strconv.FormatInt(int64(ttl.Seconds()), 10))
			http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the first X-Forwarded-For address, or the remote host.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
