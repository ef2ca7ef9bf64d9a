package mailtm

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/dragonmail/internal/model"
)

// ParsedSource holds the bodies and attachment metadata extracted from a
// raw message.
type ParsedSource struct {
	Text        string
	HTML        string
	Attachments []model.Attachment
}

// ParseSource parses a raw RFC 822 message using go-message and extracts
// the text/plain body, text/html body and attachment metadata. Sources
// that fail to parse are returned as plain text.
func ParseSource(raw []byte) ParsedSource {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return ParsedSource{Text: string(raw)}
	}
	defer mr.Close()

	var parsed ParsedSource
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/html"):
				parsed.HTML += string(body)
			case strings.HasPrefix(contentType, "text/plain"), contentType == "":
				parsed.Text += string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			// Read to get size without keeping the content.
			n, readErr := io.Copy(io.Discard, part.Body)
			if readErr != nil {
				continue
			}

			parsed.Attachments = append(parsed.Attachments, model.Attachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        n,
			})
		}
	}

	return parsed
}
