package sender

import (
	"context"
	"time"
)

type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// EmailSender delivers one rendered HTML email. An empty MessageID with a
// nil error is treated as a failed send by callers.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) (SendResult, error)
}
