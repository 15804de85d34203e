// Package notifier delivers engine-built messages to patients and alerts to
// supervisors. Transmission failures are logged here and never retried.
package notifier

import (
	"context"

	"hanna-engine/internal/models"
)

// Sender is the patient messaging channel.
type Sender interface {
	Send(ctx context.Context, userID string, msg *models.Message) error
	Reply(ctx context.Context, replyToken string, msg *models.Message) error
}

// Alerter is the supervisor alert channel.
type Alerter interface {
	SendAlert(ctx context.Context, text string) error
}
