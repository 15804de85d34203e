// Package consumer reads chat events from the inbound Redis stream and routes
// them into the check-in flow, the outreach handler and the risk engine.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	rediscommon "hanna-engine/common/redis"
	"hanna-engine/internal/checkin"
	"hanna-engine/internal/models"
	"hanna-engine/internal/monitor"
	"hanna-engine/internal/notifier"
	"hanna-engine/internal/repository"
)

// DefaultBackgroundTimeout bounds the risk analysis started from a chat message.
const DefaultBackgroundTimeout = 30 * time.Second

// EmergencyAck reply to free text that carries an emergency keyword.
var EmergencyAck = models.TextMessage("We have alerted your care team right away. If you are in danger, please call 1669 now.")

// GlucoseRejected reply to a reading outside the meter range.
var GlucoseRejected = models.TextMessage("That reading looks unusual, so I didn't save it. Please check your meter and send the number again.")

// PatientLookup resolves the sender of an event and records that they replied.
type PatientLookup interface {
	GetPatientByChannelUser(ctx context.Context, channelUserID string) (*models.Patient, error)
	MarkResponded(ctx context.Context, patientID string, at time.Time) error
}

type CheckInFlow interface {
	Start(ctx context.Context, patientID, displayName string) (*models.Message, error)
	HandleInput(ctx context.Context, patientID string, currentState models.CheckInState, action, value string) checkin.Reply
	RecordGlucose(ctx context.Context, patientID string, value float64) error
}

type HelpHandler interface {
	RequestHelp(ctx context.Context, patientID, action string) (*models.Message, error)
}

type RiskAnalyzer interface {
	Analyze(ctx context.Context, patientID string, trigger models.Trigger) (*models.RiskResult, error)
}

type Replier interface {
	Reply(ctx context.Context, patientID, replyToken string, msg *models.Message) error
	RecordInbound(ctx context.Context, patientID, text string)
}

type Config struct {
	Stream       string
	Group        string
	ConsumerName string
	BatchSize    int64
	Block        time.Duration
}

// StreamConsumer consumes INBOUND_STREAM as one member of a consumer group.
type StreamConsumer struct {
	cfg         Config
	redisClient *redis.Client
	patients    PatientLookup
	flow        CheckInFlow
	help        HelpHandler
	risk        RiskAnalyzer
	replier     Replier
	logger      *zap.Logger
	metrics     *Metrics

	now             func() time.Time
	spawn           notifier.Spawn
	bgTimeout       time.Duration
	metricsInterval time.Duration
}

func NewStreamConsumer(
	cfg Config,
	redisClient *redis.Client,
	patients PatientLookup,
	flow CheckInFlow,
	help HelpHandler,
	risk RiskAnalyzer,
	replier Replier,
	logger *zap.Logger,
) *StreamConsumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	return &StreamConsumer{
		cfg:             cfg,
		redisClient:     redisClient,
		patients:        patients,
		flow:            flow,
		help:            help,
		risk:            risk,
		replier:         replier,
		logger:          logger,
		metrics:         &Metrics{StartTime: time.Now()},
		now:             time.Now,
		spawn:           notifier.Go,
		bgTimeout:       DefaultBackgroundTimeout,
		metricsInterval: 60 * time.Second,
	}
}

func (c *StreamConsumer) Metrics() Metrics { return c.metrics.GetSnapshot() }

// SetSpawn replaces how background analysis is started.
func (c *StreamConsumer) SetSpawn(spawn notifier.Spawn) { c.spawn = spawn }

// Start blocks until ctx is cancelled.
func (c *StreamConsumer) Start(ctx context.Context) error {
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, c.cfg.Stream, c.cfg.Group); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", c.cfg.Stream, err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("consumer_group", c.cfg.Group),
		zap.String("consumer_name", c.cfg.ConsumerName),
		zap.String("stream", c.cfg.Stream),
	)

	metricsCtx, metricsCancel := context.WithCancel(ctx)
	defer metricsCancel()
	go c.reportMetrics(metricsCtx)

	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := c.consumeStream(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Error("Failed to consume stream",
					zap.Error(err),
					zap.Duration("backoff", backoff),
				)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(backoff):
					backoff *= 2
					if backoff > maxBackoff {
						backoff = maxBackoff
					}
				}
			} else {
				backoff = time.Second
			}
		}
	}
}

func (c *StreamConsumer) consumeStream(ctx context.Context) error {
	messages, err := rediscommon.ReadFromStream(ctx, c.redisClient,
		c.cfg.Stream, c.cfg.Group, c.cfg.ConsumerName, c.cfg.BatchSize, c.cfg.Block)
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, msg := range messages {
		c.metrics.IncrementProcessed()
		if err := c.processMessage(ctx, msg); err != nil {
			c.logger.Error("Failed to process message",
				zap.String("stream_id", msg.ID),
				zap.Error(err),
			)
		}
		// acked even when processing failed; no redelivery
		if err := rediscommon.AckStream(ctx, c.redisClient, c.cfg.Stream, c.cfg.Group, msg.ID); err != nil {
			c.metrics.IncrementFailed("ack")
			c.logger.Error("Failed to ack message", zap.String("stream_id", msg.ID), zap.Error(err))
		}
	}
	return nil
}

func (c *StreamConsumer) processMessage(ctx context.Context, msg rediscommon.StreamMessage) error {
	start := time.Now()

	ev, err := parseEvent(msg.Values)
	if err != nil {
		c.metrics.IncrementFailed("parse")
		return err
	}

	patient, err := c.patients.GetPatientByChannelUser(ctx, ev.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.metrics.IncrementSkipped()
			c.logger.Warn("Event from unknown channel user", zap.String("user_id", ev.UserID), zap.String("type", ev.Type))
			return nil
		}
		c.metrics.IncrementFailed("route")
		return fmt.Errorf("lookup patient: %w", err)
	}

	log := c.logger.With(
		zap.String("stream_id", msg.ID),
		zap.String("patient_id", patient.PatientID),
		zap.String("type", ev.Type),
	)

	reply, handled, err := c.route(ctx, patient, ev, log)
	if err != nil {
		c.metrics.IncrementFailed("route")
		return err
	}
	if !handled {
		c.metrics.IncrementSkipped()
		return nil
	}

	if reply != nil && ev.ReplyToken != "" {
		if err := c.replier.Reply(ctx, patient.PatientID, ev.ReplyToken, reply); err != nil {
			c.metrics.IncrementFailed("reply")
			return fmt.Errorf("reply: %w", err)
		}
	}

	d := time.Since(start)
	c.metrics.IncrementSucceeded(d)
	log.Info("Handled inbound event", zap.Duration("processing_time", d))
	return nil
}

// route returns the reply to send back, which may be nil for handled events.
// handled is false when the event was ignored.
func (c *StreamConsumer) route(ctx context.Context, patient *models.Patient, ev *InboundEvent, log *zap.Logger) (reply *models.Message, handled bool, err error) {
	switch ev.Type {
	case EventFollow, EventStart:
		// Start pushes the mood card itself
		if _, err := c.flow.Start(ctx, patient.PatientID, patient.DisplayName); err != nil {
			return nil, false, err
		}
		return nil, true, nil

	case EventPostback:
		state, action, value, err := checkin.ParsePostback(ev.Data)
		if err != nil {
			log.Debug("unparseable postback", zap.String("data", ev.Data), zap.Error(err))
			return nil, false, nil
		}
		switch action {
		case monitor.ActionImOkay, monitor.ActionRequestHelp, monitor.ActionEscalateNurse:
			c.replier.RecordInbound(ctx, patient.PatientID, action)
			msg, err := c.help.RequestHelp(ctx, patient.PatientID, action)
			if err != nil {
				return nil, false, err
			}
			return msg, true, nil
		}
		r := c.flow.HandleInput(ctx, patient.PatientID, state, action, value)
		if !r.Handled {
			log.Debug("postback not handled", zap.String("action", action), zap.String("state", string(state)))
			return nil, false, nil
		}
		return r.Message, true, nil

	case EventMessage:
		c.replier.RecordInbound(ctx, patient.PatientID, ev.Text)
		// any message counts as contact for the non-responder protocol
		if err := c.patients.MarkResponded(ctx, patient.PatientID, c.now()); err != nil {
			log.Warn("failed to mark patient responded", zap.Error(err))
		}

		trigger := models.Keyword{Text: ev.Text}
		if _, ok := models.EmergencyKeyword(trigger); ok {
			c.analyze("analyze_sos", patient.PatientID, trigger)
			return EmergencyAck, true, nil
		}
		if value, ok := checkin.ParseGlucose(ev.Text); ok {
			if err := c.flow.RecordGlucose(ctx, patient.PatientID, value); err != nil {
				if errors.Is(err, checkin.ErrGlucoseOutOfRange) {
					log.Info("glucose reading rejected", zap.Float64("glucose", value))
					return GlucoseRejected, true, nil
				}
				return nil, false, err
			}
			c.analyze("analyze_glucose", patient.PatientID, nil)
			return checkin.GlucoseAck(value), true, nil
		}
		return nil, false, nil
	}

	log.Debug("ignoring event type")
	return nil, false, nil
}

// analyze runs the risk engine detached from the reply with its own deadline.
func (c *StreamConsumer) analyze(name, patientID string, trigger models.Trigger) {
	c.spawn(func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("background task panicked",
					zap.String("task", name),
					zap.String("patient_id", patientID),
					zap.Any("panic", r),
				)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), c.bgTimeout)
		defer cancel()
		if _, err := c.risk.Analyze(ctx, patientID, trigger); err != nil {
			c.logger.Error("background task failed",
				zap.String("task", name),
				zap.String("patient_id", patientID),
				zap.Error(err),
			)
		}
	})
}

func (c *StreamConsumer) reportMetrics(ctx context.Context) {
	ticker := time.NewTicker(c.metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := c.metrics.GetSnapshot()

			var avg time.Duration
			if s.MessagesSucceeded > 0 {
				avg = s.TotalProcessingTime / time.Duration(s.MessagesSucceeded)
			}
			successRate := float64(0)
			if s.MessagesProcessed > 0 {
				successRate = float64(s.MessagesSucceeded) / float64(s.MessagesProcessed) * 100
			}

			c.logger.Info("Metrics report",
				zap.Int64("messages_processed", s.MessagesProcessed),
				zap.Int64("messages_succeeded", s.MessagesSucceeded),
				zap.Int64("messages_failed", s.MessagesFailed),
				zap.Int64("messages_skipped", s.MessagesSkipped),
				zap.Float64("success_rate", successRate),
				zap.Int64("errors_parse", s.ErrorsParse),
				zap.Int64("errors_route", s.ErrorsRoute),
				zap.Int64("errors_reply", s.ErrorsReply),
				zap.Int64("errors_ack", s.ErrorsAck),
				zap.Duration("avg_processing_time", avg),
				zap.Duration("uptime", time.Since(s.StartTime)),
			)
		}
	}
}
