package core

import (
	"context"
	"net/http"
	"net/mail"
)

type (
	Attachment struct {
		Filename    string
		ContentType string
		Content     []byte
	}

	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Subject     string
		Body        string // text/plain
		Attachments []Attachment
	}

	// EmailService is any service that can send emails
	EmailService interface {
		Send(ctx context.Context, messages ...*EmailMessage) error
	}
)

// Attach adds `content` as an attachment, sniffing the content type when none is given.
func (m *EmailMessage) Attach(filename string, content []byte, contentType ...string) {
	at := Attachment{Filename: filename, Content: content}
	if len(contentType) > 0 && contentType[0] != "" {
		at.ContentType = contentType[0]
	} else {
		at.ContentType = http.DetectContentType(content)
	}
	m.Attachments = append(m.Attachments, at)
}

func (m *EmailMessage) HasRecipients() bool  { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool     { return m.Body != "" }
func (m *EmailMessage) HasAttachments() bool { return len(m.Attachments) > 0 }
