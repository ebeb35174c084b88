package router

import (
	"net/http"

	"github.com/mailrun/mailrun/internal/handler"
	"github.com/mailrun/mailrun/internal/middleware"
)

// New creates and configures the HTTP router for tracking and unsubscribe links
func New(h *handler.Handler, mw *middleware.Middleware) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	// Paths match the links built by email.LinkBuilder
	mux.Handle("GET /track/open", mw.RateLimit(http.HandlerFunc(h.Open)))
	mux.Handle("GET /track/click", mw.RateLimit(http.HandlerFunc(h.Click)))
	mux.Handle("GET /unsubscribe", mw.RateLimit(http.HandlerFunc(h.Unsubscribe)))
	mux.Handle("POST /unsubscribe", mw.RateLimit(http.HandlerFunc(h.Unsubscribe)))

	return middleware.Chain(mux, mw.Recover, mw.RequestID, mw.Logger)
}
