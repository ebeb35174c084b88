package router

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailrun/mailrun/internal/config"
	"github.com/mailrun/mailrun/internal/email"
	"github.com/mailrun/mailrun/internal/handler"
	"github.com/mailrun/mailrun/internal/logger"
	"github.com/mailrun/mailrun/internal/middleware"
	"github.com/mailrun/mailrun/internal/suppression"
)

func TestRouter(t *testing.T) {
	t.Parallel()

	tracking := config.TrackingConfig{BaseURL: "https://track.example.com", SigningKey: "secret"}
	links := email.NewLinkBuilder(tracking)
	list := suppression.NewFileList(filepath.Join(t.TempDir(), "unsubscribed.json"))
	h := handler.New(links, list, nil, logger.Nop())
	mw := middleware.New(nil, logger.Nop(), config.RateLimitConfig{}, "")
	srv := httptest.NewServer(New(h, mw))
	t.Cleanup(srv.Close)

	rcpt, err := links.For("a@x.com")
	require.NoError(t, err)
	click, err := url.Parse(rcpt.Click("https://example.com"))
	require.NoError(t, err)
	token, err := url.Parse(rcpt.OpenPixel())
	require.NoError(t, err)

	client := &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	tests := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/track/open?" + token.RawQuery, http.StatusOK},
		{http.MethodGet, "/track/click?" + click.RawQuery, http.StatusFound},
		{http.MethodGet, "/track/click?email=a%40x.com&url=https%3A%2F%2Fexample.com", http.StatusBadRequest},
		{http.MethodPost, "/unsubscribe?" + token.RawQuery, http.StatusOK},
		{http.MethodDelete, "/unsubscribe", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(tt.method, srv.URL+tt.path, nil)
		assert.NoError(t, err)
		resp, err := client.Do(req)
		if !assert.NoError(t, err) {
			continue
		}
		_ = resp.Body.Close()
		assert.Equal(t, tt.code, resp.StatusCode, "%s %s", tt.method, tt.path)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	}
}
