package domain // export_service/domain

import "context"

// Attachment is a file carried by an outgoing mail.
type Attachment struct {
	Filename    string
	Content     []byte
	ContentType string
}

// DeliveryInfo describes a mail accepted by the SMTP server.
type DeliveryInfo struct {
	MessageID string
	Accepted  []string
}

// Mailer delivers HTML mail with optional attachments.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string, attachments []Attachment) (*DeliveryInfo, error)
}
