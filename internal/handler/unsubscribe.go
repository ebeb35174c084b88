package handler

import (
	"html/template"
	"net/http"
)

var unsubscribePage = template.Must(template.New("unsubscribe").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family:sans-serif;max-width:32rem;margin:4rem auto;text-align:center">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</body></html>
`))

type pageData struct {
	Title   string
	Message string
}

// Unsubscribe adds the link's recipient to the suppression list. GET comes
// from the link in the message body, POST from one-click mail clients.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	rcpt, err := h.links.Recipient(r.URL.Query())
	if err != nil {
		h.log.Warn().Err(err).Msg("rejected unsubscribe request")
		renderPage(w, http.StatusBadRequest, pageData{
			Title:   "Link not valid",
			Message: "This unsubscribe link is invalid or has expired.",
		})
		return
	}

	source := "link"
	if r.Method == http.MethodPost {
		source = "one-click"
	}
	if err := h.suppressed.Add(r.Context(), rcpt, source); err != nil {
		h.log.Error().Err(err).Str("email", rcpt).Msg("failed to record unsubscribe")
		renderPage(w, http.StatusInternalServerError, pageData{
			Title:   "Something went wrong",
			Message: "We could not process your request. Please try again later.",
		})
		return
	}
	h.log.Info().Str("event", "unsubscribe").Str("email", rcpt).Str("source", source).Msg("recipient unsubscribed")

	renderPage(w, http.StatusOK, pageData{
		Title:   "You have been unsubscribed",
		Message: rcpt + " will not receive further campaign emails.",
	})
}

func renderPage(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = unsubscribePage.Execute(w, data)
}
