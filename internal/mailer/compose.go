package mailer

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
)

// Compose writes msg as an RFC 5322 message. Without an attachment the
// body is a single text/plain part; with one it is multipart/mixed.
func Compose(w io.Writer, msg Message, date time.Time) error {
	var h mail.Header
	h.SetDate(date)
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", []*mail.Address{{Address: msg.From}})

	to := make([]*mail.Address, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", to)

	if err := h.GenerateMessageID(); err != nil {
		return fmt.Errorf("generating message id: %w", err)
	}

	if msg.Attachment == nil {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		body, err := mail.CreateSingleInlineWriter(w, h)
		if err != nil {
			return fmt.Errorf("creating message writer: %w", err)
		}
		if _, err := io.WriteString(body, msg.Body); err != nil {
			return fmt.Errorf("writing body: %w", err)
		}
		return body.Close()
	}

	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return fmt.Errorf("creating message writer: %w", err)
	}

	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	body, err := mw.CreateSingleInline(th)
	if err != nil {
		return fmt.Errorf("creating body part: %w", err)
	}
	if _, err := io.WriteString(body, msg.Body); err != nil {
		return fmt.Errorf("writing body: %w", err)
	}
	if err := body.Close(); err != nil {
		return fmt.Errorf("closing body part: %w", err)
	}

	var ah mail.AttachmentHeader
	ah.SetContentType(msg.Attachment.MIMEType, nil)
	ah.SetFilename(msg.Attachment.Filename)
	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return fmt.Errorf("creating attachment part: %w", err)
	}
	if _, err := aw.Write(msg.Attachment.Data); err != nil {
		return fmt.Errorf("writing attachment: %w", err)
	}
	if err := aw.Close(); err != nil {
		return fmt.Errorf("closing attachment part: %w", err)
	}

	return mw.Close()
}
