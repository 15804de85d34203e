// Package service wires the engine components from configuration.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"hanna-engine/common/database"
	mqttcommon "hanna-engine/common/mqtt"
	rediscommon "hanna-engine/common/redis"
	"hanna-engine/internal/checkin"
	"hanna-engine/internal/config"
	"hanna-engine/internal/consumer"
	"hanna-engine/internal/dispatcher"
	"hanna-engine/internal/engagement"
	"hanna-engine/internal/evaluator"
	"hanna-engine/internal/httpapi"
	"hanna-engine/internal/models"
	"hanna-engine/internal/monitor"
	"hanna-engine/internal/notifier"
	"hanna-engine/internal/repository"
	"hanna-engine/internal/scheduler"
	"hanna-engine/internal/store"
)

type repos struct {
	patients  repository.PatientsRepository
	checkIns  repository.CheckInsRepository
	snapshots repository.RiskSnapshotsRepository
	audit     repository.AuditRepository
	tasks     repository.TasksRepository
}

// EngineService owns every long-running component.
type EngineService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client

	Dispatcher *dispatcher.Dispatcher
	Evaluator  *evaluator.Evaluator
	Tracker    *engagement.Tracker
	Flow       *checkin.Flow
	Monitor    *monitor.Monitor
	Outbox     *notifier.Outbox

	consumer  *consumer.StreamConsumer
	scheduler *scheduler.Scheduler
	server    *Server

	wg sync.WaitGroup
}

func NewEngineService(cfg *config.Config, logger *zap.Logger) (*EngineService, error) {
	s := &EngineService{config: cfg, logger: logger}

	s.redisClient = rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), s.redisClient); err != nil {
		_ = rediscommon.Close(s.redisClient)
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	r, err := s.openRepos(context.Background())
	if err != nil {
		s.closeClients()
		return nil, err
	}

	var (
		sender   notifier.Sender
		alerters []notifier.Alerter
	)
	switch cfg.OutboundMode {
	case config.OutboundLine:
		line := notifier.NewLineClient(cfg.Line.APIBase, cfg.Line.ChannelToken, cfg.Engine.NotifyTimeout, logger)
		sender = line
		if cfg.Line.SupervisorGroupID != "" {
			alerters = append(alerters, notifier.NewLineGroupAlerter(line, cfg.Line.SupervisorGroupID))
		}
	default:
		sender = notifier.NewStreamSender(s.redisClient, cfg.Streams.Outbound)
	}

	if cfg.MQTTEnabled {
		client, err := mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			logger.Warn("MQTT enabled but connection failed, supervisor alerts go without it", zap.Error(err))
		} else {
			s.mqttClient = client
			alerters = append(alerters, notifier.NewMQTTAlerter(client, cfg.MQTTSupervisorTopic, cfg.Engine.NotifyTimeout))
		}
	}
	if len(alerters) == 0 {
		logger.Warn("no supervisor alert channel configured; cap suppressions are only logged")
	}

	loc := cfg.Location
	messageLog := store.NewRedisMessageLog(s.redisClient, cfg.Engine.MessageLogSize, cfg.Engine.MessageLogTTL)
	supervisor := notifier.NewSupervisor(alerters, cfg.Engine.NotifyTimeout, notifier.Go, logger.Named("supervisor"))

	s.Outbox = notifier.NewOutbox(sender, messageLog, cfg.Engine.NotifyTimeout, logger.Named("outbox"))
	s.Dispatcher = dispatcher.NewDispatcher(r.tasks, supervisor, cfg.Engine.CriticalTaskCap, cfg.Engine.DedupWindow, logger.Named("dispatcher"))
	s.Evaluator = evaluator.NewEvaluator(r.patients, r.checkIns, r.snapshots, r.audit, s.Dispatcher, loc, logger.Named("risk"))
	s.Tracker = engagement.NewTracker(r.patients, r.checkIns, r.audit, s.Outbox, s.Dispatcher, loc, logger.Named("engagement"))
	s.Flow = checkin.NewFlow(r.patients, r.checkIns, r.audit, s.Evaluator, s.Tracker, s.Outbox, loc, logger.Named("checkin"))
	s.Monitor = monitor.NewMonitor(r.patients, r.audit, r.tasks, s.Dispatcher, s.Outbox, loc, logger.Named("monitor"))

	s.consumer = consumer.NewStreamConsumer(consumer.Config{
		Stream:       cfg.Streams.Inbound,
		Group:        cfg.Streams.ConsumerGroup,
		ConsumerName: cfg.Streams.ConsumerName,
		BatchSize:    cfg.Streams.BatchSize,
	}, s.redisClient, r.patients, s.Flow, s.Monitor, s.Evaluator, s.Outbox, logger.Named("consumer"))

	jobs, err := s.jobs(r.patients, loc)
	if err != nil {
		s.closeClients()
		return nil, err
	}
	s.scheduler = scheduler.NewScheduler(store.NewRedisKV(s.redisClient), loc, cfg.Streams.ConsumerName, logger.Named("scheduler"), jobs...)

	handler := httpapi.NewEngineHandler(s.Evaluator, s.Flow, s.Tracker, s.Monitor, s.Outbox, r.snapshots, r.tasks, r.audit, logger.Named("http"))
	router := httpapi.NewRouter(logger)
	router.RegisterEngineRoutes(handler)
	s.server = NewServer(cfg.HTTP.Addr, router, logger)

	return s, nil
}

func (s *EngineService) openRepos(ctx context.Context) (*repos, error) {
	if !s.config.DBEnabled {
		s.logger.Warn("DB disabled, using in-memory repositories")
		checkIns := repository.NewMemoryCheckInsRepo()
		patients := repository.NewMemoryPatientsRepo(checkIns)
		if id := s.config.DemoChannelUserID; id != "" {
			patients.Put(models.Patient{
				PatientID:        "demo-patient",
				ChannelUserID:    id,
				DisplayName:      "Demo",
				EnrollmentStatus: models.EnrollmentActive,
				Age:              65,
				Condition:        "type 2 diabetes",
				EnrolledAt:       time.Now(),
			})
		}
		audit := repository.NewMemoryAuditRepo()
		return &repos{
			patients:  patients,
			checkIns:  checkIns,
			snapshots: repository.NewMemoryRiskSnapshotsRepo(),
			audit:     audit,
			tasks:     repository.NewMemoryTasksRepo(audit),
		}, nil
	}

	db, err := database.NewPostgresDB(&s.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = db
	if s.config.DBMigrate {
		if err := repository.Migrate(ctx, db); err != nil {
			return nil, err
		}
		s.logger.Info("schema migration applied")
	}
	return &repos{
		patients:  repository.NewPostgresPatientsRepository(db),
		checkIns:  repository.NewPostgresCheckInsRepository(db),
		snapshots: repository.NewPostgresRiskSnapshotsRepository(db),
		audit:     repository.NewPostgresAuditRepository(db),
		tasks:     repository.NewPostgresTasksRepository(db),
	}, nil
}

func (s *EngineService) jobs(patients repository.PatientsRepository, loc *time.Location) ([]scheduler.Job, error) {
	sched := s.config.Schedule
	sweepAt, err := scheduler.ParseClock(sched.SweepAt)
	if err != nil {
		return nil, fmt.Errorf("SWEEP_AT: %w", err)
	}
	morningAt, err := scheduler.ParseClock(sched.MorningCheckInAt)
	if err != nil {
		return nil, fmt.Errorf("MORNING_CHECKIN_AT: %w", err)
	}
	eveningAt, err := scheduler.ParseClock(sched.EveningReminderAt)
	if err != nil {
		return nil, fmt.Errorf("EVENING_REMINDER_AT: %w", err)
	}
	log := s.logger.Named("jobs")
	return []scheduler.Job{
		scheduler.MorningCheckInJob(morningAt, patients, s.Flow, loc, log),
		scheduler.SweepJob(sweepAt, s.Monitor),
		scheduler.EveningReminderJob(eveningAt, patients, s.Outbox, loc, log),
	}, nil
}

// Start runs the consumer and scheduler in the background and serves HTTP
// until the server stops.
func (s *EngineService) Start(ctx context.Context) error {
	s.logger.Info("Starting engine components")

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.consumer.Start(ctx); err != nil {
			s.logger.Error("stream consumer stopped", zap.Error(err))
		}
	}()
	go func() {
		defer s.wg.Done()
		if err := s.scheduler.Start(ctx); err != nil {
			s.logger.Error("scheduler stopped", zap.Error(err))
		}
	}()

	if err := s.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop shuts the HTTP server down, waits for the background loops (which
// exit when the Start context is cancelled) and closes clients.
func (s *EngineService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping engine")

	if err := s.server.Stop(ctx); err != nil {
		s.logger.Error("Error stopping HTTP server", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("background loops did not stop before shutdown deadline")
	}

	s.closeClients()
	s.logger.Info("Engine stopped")
	return nil
}

func (s *EngineService) closeClients() {
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if err := rediscommon.Close(s.redisClient); err != nil {
		s.logger.Error("Error closing Redis client", zap.Error(err))
	}
	if err := database.Close(s.db); err != nil {
		s.logger.Error("Error closing database connection", zap.Error(err))
	}
}
