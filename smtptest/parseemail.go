package smtptest

import (
	"io"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// ParsedEmail is a received message split into headers and a decoded body.
type ParsedEmail struct {
	Header mail.Header
	// Body with quoted-printable encoding undone and CRLF line endings
	// turned into LF.
	Body string
}

// ParseEmail parses the raw DATA payload of a single-part message.
func ParseEmail(raw string) (ParsedEmail, error) {
	m, err := mail.ReadMessage(strings.NewReader(raw))
	if err != nil {
		return ParsedEmail{}, err
	}

	var r io.Reader = m.Body
	if strings.EqualFold(m.Header.Get("Content-Transfer-Encoding"), "quoted-printable") {
		r = quotedprintable.NewReader(r)
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return ParsedEmail{}, err
	}

	return ParsedEmail{
		Header: m.Header,
		Body:   strings.TrimSpace(strings.ReplaceAll(string(b), "\r\n", "\n")),
	}, nil
}
