package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BuildMIME renders msg as an RFC 5322 message suitable for SMTP DATA,
// IMAP APPEND and the Gmail raw upload.
func BuildMIME(msg Message, now time.Time) ([]byte, error) {
	if msg.To == "" {
		return nil, ErrNoRecipient
	}

	date := msg.Date
	if date.IsZero() {
		date = now
	}

	var buf bytes.Buffer
	writeHeader(&buf, "From", formatAddress(msg.FromName, msg.From))
	writeHeader(&buf, "To", formatAddress(msg.ToName, msg.To))
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader(&buf, "Date", date.Format(time.RFC1123Z))
	if msg.ID != "" {
		writeHeader(&buf, "Message-ID", "<"+msg.ID+">")
	}

	keys := make([]string, 0, len(msg.Headers))
	for k := range msg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeHeader(&buf, textproto.CanonicalMIMEHeaderKey(k), msg.Headers[k])
	}
	writeHeader(&buf, "MIME-Version", "1.0")

	if len(msg.Attachments) == 0 {
		if err := writeBody(&buf, msg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mixed := multipart.NewWriter(&buf)
	writeHeader(&buf, "Content-Type", "multipart/mixed; boundary="+mixed.Boundary())
	buf.WriteString("\r\n")

	var body bytes.Buffer
	if err := writeBody(&body, msg); err != nil {
		return nil, err
	}
	header, content, _ := bytes.Cut(body.Bytes(), []byte("\r\n\r\n"))
	part, err := mixed.CreatePart(parseHeaderBlock(header))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}

	for _, a := range msg.Attachments {
		if err := writeAttachment(mixed, a); err != nil {
			return nil, err
		}
	}
	if err := mixed.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// writeBody writes the Content-Type header, a blank line and the body.
func writeBody(buf *bytes.Buffer, msg Message) error {
	switch {
	case msg.HTMLBody != "" && msg.TextBody != "":
		alt := multipart.NewWriter(buf)
		writeHeader(buf, "Content-Type", "multipart/alternative; boundary="+alt.Boundary())
		buf.WriteString("\r\n")
		if err := writeTextPart(alt, "text/plain", msg.TextBody); err != nil {
			return err
		}
		if err := writeTextPart(alt, "text/html", msg.HTMLBody); err != nil {
			return err
		}
		return alt.Close()
	case msg.HTMLBody != "":
		return writeSinglePart(buf, "text/html", msg.HTMLBody)
	default:
		return writeSinglePart(buf, "text/plain", msg.TextBody)
	}
}

func writeSinglePart(buf *bytes.Buffer, contentType, body string) error {
	writeHeader(buf, "Content-Type", contentType+"; charset=UTF-8")
	writeHeader(buf, "Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")
	qp := quotedprintable.NewWriter(buf)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}

func writeTextPart(w *multipart.Writer, contentType, body string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType+"; charset=UTF-8")
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}

func writeAttachment(w *multipart.Writer, a Attachment) error {
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	h.Set("Content-Transfer-Encoding", "base64")
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(a.Content)
	for len(encoded) > 76 {
		if _, err := fmt.Fprintf(part, "%s\r\n", encoded[:76]); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err = fmt.Fprintf(part, "%s\r\n", encoded)
	return err
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func parseHeaderBlock(block []byte) textproto.MIMEHeader {
	h := textproto.MIMEHeader{}
	for _, line := range strings.Split(string(block), "\r\n") {
		k, v, ok := strings.Cut(line, ": ")
		if ok {
			h.Set(k, v)
		}
	}
	return h
}

func formatAddress(name, address string) string {
	if name == "" {
		return address
	}
	return (&mail.Address{Name: name, Address: address}).String()
}

// NewMessageID returns a unique Message-ID, without angle brackets, for
// mail sent from sender.
func NewMessageID(sender string) string {
	return uuid.NewString() + "@" + domainOf(sender)
}

// domainOf returns the domain part of an email address.
func domainOf(address string) string {
	if i := strings.LastIndexByte(address, '@'); i >= 0 && i < len(address)-1 {
		return address[i+1:]
	}
	return "localhost"
}
