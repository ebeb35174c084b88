package middleware

import (
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/mailrun/mailrun/internal/config"
	"github.com/mailrun/mailrun/internal/logger"
)

// Middleware holds all HTTP middleware
type Middleware struct {
	rdb    redis.UniversalClient
	log    *logger.Logger
	limits config.RateLimitConfig
	prefix string
}

// New creates a new Middleware instance. rdb may be nil, which turns rate
// limiting off.
func New(rdb redis.UniversalClient, log *logger.Logger, limits config.RateLimitConfig, keyPrefix string) *Middleware {
	return &Middleware{
		rdb:    rdb,
		log:    log,
		limits: limits,
		prefix: keyPrefix,
	}
}

// Chain wraps h so the first middleware listed runs first.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
