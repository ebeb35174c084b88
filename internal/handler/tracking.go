package handler

import (
	"net/http"
	"net/url"
)

// 1x1 transparent GIF
var pixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Open records an open and always serves the pixel.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	if rcpt, err := h.links.Recipient(r.URL.Query()); err != nil {
		h.log.Debug().Err(err).Msg("open event without a valid recipient")
	} else {
		h.log.Info().Str("event", "open").Str("email", rcpt).Msg("email opened")
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	_, _ = w.Write(pixel)
}

// Click records a click and redirects to the wrapped URL. The target must
// be the one signed into the link token and an absolute http or https URL.
func (h *Handler) Click(w http.ResponseWriter, r *http.Request) {
	rcpt, signed, err := h.links.ClickTarget(r.URL.Query())
	if err != nil {
		h.log.Debug().Err(err).Msg("click link rejected")
		http.Error(w, "invalid link", http.StatusBadRequest)
		return
	}

	target, err := url.Parse(signed)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		http.Error(w, "invalid link", http.StatusBadRequest)
		return
	}

	h.log.Info().Str("event", "click").Str("email", rcpt).Str("url", target.String()).Msg("link clicked")
	http.Redirect(w, r, target.String(), http.StatusFound)
}
