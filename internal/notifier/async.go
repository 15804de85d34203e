package notifier

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hanna-engine/internal/models"
	"hanna-engine/internal/store"
)

// Spawn runs f detached from the caller. Tests swap it for a synchronous call.
type Spawn func(f func())

// Go is the production Spawn.
func Go(f func()) { go f() }

// Supervisor fans an alert out to every configured alerter in the background.
// Each delivery gets its own timeout; failures are logged only.
type Supervisor struct {
	alerters []Alerter
	timeout  time.Duration
	spawn    Spawn
	logger   *zap.Logger
}

func NewSupervisor(alerters []Alerter, timeout time.Duration, spawn Spawn, logger *zap.Logger) *Supervisor {
	if spawn == nil {
		spawn = Go
	}
	return &Supervisor{alerters: alerters, timeout: timeout, spawn: spawn, logger: logger}
}

// Alert never blocks and never fails.
func (s *Supervisor) Alert(text string) {
	for _, a := range s.alerters {
		a := a
		s.spawn(func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("supervisor alert panicked", zap.Any("panic", r))
				}
			}()
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			if err := a.SendAlert(ctx, text); err != nil {
				s.logger.Warn("supervisor alert failed", zap.String("alerter", fmt.Sprintf("%T", a)), zap.Error(err))
			}
		})
	}
}

// Outbox sends patient messages with a timeout and records them in the
// message log. Delivery errors are logged and returned for the caller to ignore or count.
type Outbox struct {
	sender  Sender
	log     store.MessageLog
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func NewOutbox(sender Sender, log store.MessageLog, timeout time.Duration, logger *zap.Logger) *Outbox {
	return &Outbox{sender: sender, log: log, timeout: timeout, logger: logger, now: time.Now}
}

// Send pushes msg to the patient's channel user.
func (o *Outbox) Send(ctx context.Context, patientID, userID string, msg *models.Message) error {
	o.record(ctx, patientID, models.DirectionOutbound, msg)
	sendCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	if err := o.sender.Send(sendCtx, userID, msg); err != nil {
		o.logger.Warn("failed to send message", zap.String("patient_id", patientID), zap.Error(err))
		return err
	}
	return nil
}

// Reply answers through a reply token.
func (o *Outbox) Reply(ctx context.Context, patientID, replyToken string, msg *models.Message) error {
	o.record(ctx, patientID, models.DirectionOutbound, msg)
	sendCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	if err := o.sender.Reply(sendCtx, replyToken, msg); err != nil {
		o.logger.Warn("failed to reply", zap.String("patient_id", patientID), zap.Error(err))
		return err
	}
	return nil
}

// RecordInbound logs a patient message or button tap.
func (o *Outbox) RecordInbound(ctx context.Context, patientID, text string) {
	o.record(ctx, patientID, models.DirectionInbound, models.TextMessage(text))
}

// History newest-first log entries.
func (o *Outbox) History(ctx context.Context, patientID string, n int) ([]models.LoggedMessage, error) {
	if o.log == nil {
		return nil, nil
	}
	return o.log.Recent(ctx, patientID, n)
}

func (o *Outbox) record(ctx context.Context, patientID, direction string, msg *models.Message) {
	if o.log == nil || msg == nil {
		return
	}
	err := o.log.Append(ctx, patientID, models.LoggedMessage{
		Direction: direction,
		Text:      msg.Text,
		Type:      msg.Type,
		At:        o.now(),
	})
	if err != nil {
		o.logger.Warn("failed to append message log", zap.String("patient_id", patientID), zap.Error(err))
	}
}
