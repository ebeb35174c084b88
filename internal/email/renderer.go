package email

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"
	texttemplate "text/template"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/mailrun/mailrun/internal/model"
)

// Renderer errors
var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrRenderFailed     = errors.New("failed to render template")
)

//go:embed templates
var builtinTemplates embed.FS

// DefaultTemplates returns the built-in body template and layout.
func DefaultTemplates() fs.FS {
	sub, err := fs.Sub(builtinTemplates, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// RendererConfig names the templates inside the renderer's filesystem.
type RendererConfig struct {
	Body     string // markdown body template, e.g. "campaign.md"
	Layout   string // HTML layout, e.g. "base.html"
	FromName string // sender display name
}

// Renderer turns a recipient into a personalized message.
// The body is a text/template over markdown with optional YAML
// frontmatter; the converted HTML is wrapped in an html/template layout.
// Render has no side effects and is safe for concurrent use.
type Renderer struct {
	md       goldmark.Markdown
	body     *texttemplate.Template
	layout   *template.Template
	metadata map[string]any
	links    *LinkBuilder
	fromName string
	newID    func() string
}

// NewRenderer parses the configured templates from fsys.
func NewRenderer(fsys fs.FS, cfg RendererConfig, links *LinkBuilder) (*Renderer, error) {
	if cfg.Body == "" {
		cfg.Body = "campaign.md"
	}
	if cfg.Layout == "" {
		cfg.Layout = "base.html"
	}

	content, err := fs.ReadFile(fsys, cfg.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplateNotFound, cfg.Body, err)
	}
	parsed, err := parseBodyTemplate(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRenderFailed, cfg.Body, err)
	}
	body, err := texttemplate.New(path.Base(cfg.Body)).Parse(parsed.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse body: %v", ErrRenderFailed, err)
	}

	layoutContent, err := fs.ReadFile(fsys, cfg.Layout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplateNotFound, cfg.Layout, err)
	}
	layout, err := template.New(path.Base(cfg.Layout)).Parse(string(layoutContent))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse layout: %v", ErrRenderFailed, err)
	}

	return &Renderer{
		md:       goldmark.New(goldmark.WithExtensions(&buttonExtension{})),
		body:     body,
		layout:   layout,
		metadata: parsed.Metadata,
		links:    links,
		fromName: cfg.FromName,
		newID:    uuid.NewString,
	}, nil
}

// bodyData is the data passed to body templates.
type bodyData struct {
	Name     string
	Greeting string
	Email    string
	Subject  string
	links    Links
}

// Track wraps target in a click-tracking link for this recipient.
func (d bodyData) Track(target string) string {
	return d.links.Click(target)
}

// Render builds the message for one recipient.
func (r *Renderer) Render(rcpt model.Recipient, subject, sender string) (Message, error) {
	var links Links
	if r.links != nil {
		var err error
		links, err = r.links.For(rcpt.Email)
		if err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrRenderFailed, err)
		}
	}

	name := DisplayName(rcpt.FullName)
	data := bodyData{
		Name:     name,
		Greeting: Greeting(name),
		Email:    rcpt.Email,
		Subject:  subject,
		links:    links,
	}

	var markdown bytes.Buffer
	if err := r.body.Execute(&markdown, data); err != nil {
		return Message{}, fmt.Errorf("%w: failed to execute body: %v", ErrRenderFailed, err)
	}

	var content bytes.Buffer
	if err := r.md.Convert(markdown.Bytes(), &content); err != nil {
		return Message{}, fmt.Errorf("%w: failed to convert markdown: %v", ErrRenderFailed, err)
	}

	unsubscribe := links.Unsubscribe()
	var page bytes.Buffer
	err := r.layout.Execute(&page, map[string]any{
		"Content":        template.HTML(content.String()),
		"Subject":        subject,
		"Metadata":       r.metadata,
		"OpenPixelURL":   links.OpenPixel(),
		"UnsubscribeURL": unsubscribe,
	})
	if err != nil {
		return Message{}, fmt.Errorf("%w: failed to execute layout: %v", ErrRenderFailed, err)
	}

	msg := Message{
		ID:       r.newID() + "@" + domainOf(sender),
		From:     sender,
		FromName: r.fromName,
		To:       rcpt.Email,
		ToName:   name,
		Subject:  subject,
		HTMLBody: page.String(),
		TextBody: markdown.String(),
	}
	if unsubscribe != "" {
		msg.Headers = map[string]string{"List-Unsubscribe": "<" + unsubscribe + ">"}
	}
	return msg, nil
}

// DisplayName normalizes a recipient name; spreadsheet "nan" cells count as empty.
func DisplayName(fullName string) string {
	name := strings.TrimSpace(fullName)
	if strings.EqualFold(name, "nan") {
		return ""
	}
	return name
}

// Greeting returns the salutation line for a display name.
func Greeting(name string) string {
	if name == "" {
		return "Hello,"
	}
	return "Dear " + name + ","
}
