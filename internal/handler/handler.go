package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mailrun/mailrun/internal/email"
	"github.com/mailrun/mailrun/internal/logger"
	"github.com/mailrun/mailrun/internal/suppression"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Handler holds all HTTP handlers
type Handler struct {
	links      *email.LinkBuilder
	suppressed suppression.List
	checks     map[string]HealthCheck
	log        *logger.Logger
}

// New creates a new Handler instance
func New(links *email.LinkBuilder, suppressed suppression.List, checks map[string]HealthCheck, log *logger.Logger) *Handler {
	return &Handler{
		links:      links,
		suppressed: suppressed,
		checks:     checks,
		log:        log,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
