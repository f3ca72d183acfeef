// Package compose turns one draft entry's content into wire-format email
// payloads: the raw multipart message handed to a transport, and a portable
// .eml draft file for offline delivery.
package compose

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
	"time"

	"RosterMail/internal/models"
)

// Input is everything needed to synthesize one message. Shared attachments
// always precede personal ones, each set in its own fixed order.
type Input struct {
	To       string
	Cc       []string
	Subject  string
	BodyHTML string
	Shared   []models.Attachment
	Personal []models.Attachment
	// Beacon is an optional tracking snippet appended inside the HTML body.
	Beacon string
}

// Payload is a transport-ready message. Raw is the full RFC 2822 text;
// the structured fields are kept alongside it for transports that rebuild
// the message themselves (SMTP) instead of submitting raw bytes.
type Payload struct {
	To          string
	Cc          []string
	Subject     string
	HTMLBody    string
	Attachments []models.Attachment
	Raw         []byte
}

// attachments returns the combined attachment list in send order.
func (in *Input) attachments() []models.Attachment {
	all := make([]models.Attachment, 0, len(in.Shared)+len(in.Personal))
	all = append(all, in.Shared...)
	all = append(all, in.Personal...)
	return all
}

// BuildPayload synthesizes the transport payload.
func BuildPayload(in Input) (*Payload, error) {
	if strings.TrimSpace(in.To) == "" {
		return nil, fmt.Errorf("compose: empty destination address")
	}

	boundary := newBoundary()
	html := envelope(in.BodyHTML, in.Beacon)
	atts := in.attachments()

	var msg strings.Builder
	msg.WriteString("To: " + in.To + "\r\n")
	if cc := joinCc(in.Cc); cc != "" {
		msg.WriteString("Cc: " + cc + "\r\n")
	}
	msg.WriteString("Subject: " + encodeWord(in.Subject) + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: multipart/mixed; boundary=\"" + boundary + "\"\r\n\r\n")

	msg.WriteString("--" + boundary + "\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n\r\n")
	msg.WriteString(html)
	msg.WriteString("\r\n\r\n")

	for _, att := range atts {
		writeAttachmentPart(&msg, att, boundary)
	}
	msg.WriteString("--" + boundary + "--")

	return &Payload{
		To:          in.To,
		Cc:          in.Cc,
		Subject:     in.Subject,
		HTMLBody:    html,
		Attachments: atts,
		Raw:         []byte(msg.String()),
	}, nil
}

// BuildEML synthesizes the portable draft file. The X-Unsent marker makes a
// local mail client open it as composable rather than already delivered.
// Header order is fixed: To, Cc, Subject, X-Unsent, MIME-Version,
// Content-Type.
func BuildEML(in Input) ([]byte, error) {
	if strings.TrimSpace(in.To) == "" {
		return nil, fmt.Errorf("compose: empty destination address")
	}

	boundary := newBoundary()
	var msg strings.Builder
	msg.WriteString("To: " + in.To + "\r\n")
	if cc := joinCc(in.Cc); cc != "" {
		msg.WriteString("Cc: " + cc + "\r\n")
	}
	msg.WriteString("Subject: " + encodeWord(in.Subject) + "\r\n")
	msg.WriteString("X-Unsent: 1\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: multipart/mixed; boundary=\"" + boundary + "\"\r\n\r\n")

	msg.WriteString("--" + boundary + "\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	msg.WriteString("Content-Transfer-Encoding: 7bit\r\n\r\n")
	msg.WriteString(envelope(in.BodyHTML, in.Beacon))
	msg.WriteString("\r\n\r\n")

	for _, att := range in.attachments() {
		writeAttachmentPart(&msg, att, boundary)
	}
	msg.WriteString("--" + boundary + "--")

	return []byte(msg.String()), nil
}

// EMLFilename derives a download filename from the subject.
func EMLFilename(subject string) string {
	var b strings.Builder
	for _, r := range subject {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name == "" {
		name = "mensaje"
	}
	return name + ".eml"
}

func envelope(bodyHTML, beacon string) string {
	return `<html><body style="font-family: sans-serif;">` + bodyHTML + beacon + `</body></html>`
}

func joinCc(cc []string) string {
	var kept []string
	for _, addr := range cc {
		if addr = strings.TrimSpace(addr); addr != "" {
			kept = append(kept, addr)
		}
	}
	return strings.Join(kept, ", ")
}

func writeAttachmentPart(msg *strings.Builder, att models.Attachment, boundary string) {
	mimeType := att.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	name := encodeWord(att.Name)
	msg.WriteString("--" + boundary + "\r\n")
	msg.WriteString("Content-Type: " + mimeType + "; name=\"" + name + "\"\r\n")
	msg.WriteString("Content-Disposition: attachment; filename=\"" + name + "\"\r\n")
	msg.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	msg.WriteString(wrapBase64(att.Content))
	msg.WriteString("\r\n\r\n")
}

// wrapBase64 encodes data and folds it at 76 columns per RFC 2045.
func wrapBase64(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var b strings.Builder
	for i := 0; i < len(encoded); i += 76 {
		end := i + 76
		if end > len(encoded) {
			end = len(encoded)
		}
		b.WriteString(encoded[i:end])
		if end < len(encoded) {
			b.WriteString("\r\n")
		}
	}
	return b.String()
}

// encodeWord applies RFC 2047 encoding so accented header values survive
// transit; plain ASCII passes through untouched.
func encodeWord(s string) string {
	return mime.BEncoding.Encode("UTF-8", s)
}

func newBoundary() string {
	return fmt.Sprintf("----=_NextPart_%d", time.Now().UnixMilli())
}
