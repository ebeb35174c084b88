package email

import (
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/mailrun/mailrun/internal/config"
	"github.com/mailrun/mailrun/internal/model"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"base.html": &fstest.MapFile{
			Data: []byte(`<html><body><h1>{{.Metadata.Title}}</h1>{{.Content}}<a href="{{.UnsubscribeURL}}">unsubscribe</a><img src="{{.OpenPixelURL}}"></body></html>`),
		},
		"invite.md": &fstest.MapFile{
			Data: []byte("---\nTitle: Expo 2025\n---\n{{.Greeting}}\n\n[!button|Get tickets]({{.Track \"https://example.com/t\"}})\n"),
		},
	}
}

func TestRenderer_Render(t *testing.T) {
	t.Parallel()

	links := NewLinkBuilder(config.TrackingConfig{
		BaseURL:        "https://track.example.com",
		UnsubscribeURL: "https://unsub.example.com/u",
		SigningKey:     "secret",
	})
	r, err := NewRenderer(testFS(), RendererConfig{Body: "invite.md", Layout: "base.html", FromName: "Mike"}, links)
	require.NoError(t, err)
	r.newID = func() string { return "fixed" }

	msg, err := r.Render(model.Recipient{Email: "sarah@example.com", FullName: " Sarah Johnson "}, "Expo", "mike@expo.com")
	require.NoError(t, err)

	require.Equal(t, "fixed@expo.com", msg.ID)
	require.Equal(t, "mike@expo.com", msg.From)
	require.Equal(t, "Mike", msg.FromName)
	require.Equal(t, "sarah@example.com", msg.To)
	require.Equal(t, "Sarah Johnson", msg.ToName)
	require.Contains(t, msg.TextBody, "Dear Sarah Johnson,")
	require.Contains(t, msg.HTMLBody, "<h1>Expo 2025</h1>")
	require.Contains(t, msg.HTMLBody, `class="btn"`)
	require.Contains(t, msg.HTMLBody, "track.example.com/track/click")
	require.Contains(t, msg.HTMLBody, "track.example.com/track/open")
	require.True(t, strings.HasPrefix(msg.Headers["List-Unsubscribe"], "<https://unsub.example.com/u?t="))
}

func TestRenderer_NanNameFallsBackToNeutralGreeting(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer(testFS(), RendererConfig{Body: "invite.md", Layout: "base.html"}, nil)
	require.NoError(t, err)

	msg, err := r.Render(model.Recipient{Email: "a@x.com", FullName: "nan"}, "Expo", "mike@expo.com")
	require.NoError(t, err)
	require.Contains(t, msg.TextBody, "Hello,")
	require.Empty(t, msg.ToName)
	require.Nil(t, msg.Headers)
	require.Contains(t, msg.HTMLBody, `href="https://example.com/t"`)
}

func TestRenderer_EscapesRawHTMLInNames(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer(testFS(), RendererConfig{Body: "invite.md", Layout: "base.html"}, nil)
	require.NoError(t, err)

	msg, err := r.Render(model.Recipient{Email: "a@x.com", FullName: "<script>alert(1)</script>"}, "Expo", "mike@expo.com")
	require.NoError(t, err)
	require.NotContains(t, msg.HTMLBody, "<script>")
}

func TestRenderer_MissingTemplate(t *testing.T) {
	t.Parallel()

	_, err := NewRenderer(testFS(), RendererConfig{Body: "missing.md", Layout: "base.html"}, nil)
	require.ErrorIs(t, err, ErrTemplateNotFound)

	_, err = NewRenderer(testFS(), RendererConfig{Body: "invite.md", Layout: "missing.html"}, nil)
	require.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestRenderer_DefaultTemplates(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer(DefaultTemplates(), RendererConfig{}, nil)
	require.NoError(t, err)

	msg, err := r.Render(model.Recipient{Email: "a@x.com", FullName: "Sarah Johnson"}, "You're invited", "mike@expo.com")
	require.NoError(t, err)
	require.Contains(t, msg.HTMLBody, "Dear Sarah Johnson,")
	require.Contains(t, msg.HTMLBody, "Secure my place")
}

func TestRenderer_ConcurrentUse(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer(testFS(), RendererConfig{Body: "invite.md", Layout: "base.html"}, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Render(model.Recipient{Email: "a@x.com", FullName: "A"}, "Expo", "mike@expo.com")
			require.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestParseBodyTemplate_InvalidFrontmatter(t *testing.T) {
	t.Parallel()

	_, err := parseBodyTemplate([]byte("---\nTitle: x\nno closing"))
	require.ErrorIs(t, err, ErrInvalidFrontmatter)

	parsed, err := parseBodyTemplate([]byte("plain body"))
	require.NoError(t, err)
	require.Equal(t, "plain body", parsed.Body)
	require.Empty(t, parsed.Metadata)
}
