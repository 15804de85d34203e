// Package scheduler runs the daily jobs. Each (job, date) runs once across
// all instances, guarded by a KV lease.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"hanna-engine/internal/models"
	"hanna-engine/internal/store"
)

const (
	defaultPollInterval = 30 * time.Second
	leaseTTL            = 26 * time.Hour
	// a failed run keeps its lease only this long, then any instance retries
	retryAfter = 5 * time.Minute
)

// Clock a local wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// reached reports whether t's local time of day is at or after c.
func (c Clock) reached(t time.Time) bool {
	return t.Hour() > c.Hour || (t.Hour() == c.Hour && t.Minute() >= c.Minute)
}

type Job struct {
	Name string
	At   Clock
	Run  func(ctx context.Context) error
}

type Scheduler struct {
	kv       store.KV
	jobs     []Job
	loc      *time.Location
	now      func() time.Time
	interval time.Duration
	owner    string
	logger   *zap.Logger
}

func NewScheduler(kv store.KV, loc *time.Location, owner string, logger *zap.Logger, jobs ...Job) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		kv:       kv,
		jobs:     jobs,
		loc:      loc,
		now:      time.Now,
		interval: defaultPollInterval,
		owner:    owner,
		logger:   logger,
	}
}

func leaseKey(job string, day time.Time) string {
	return "hanna:job:" + job + ":" + models.DateKey(day)
}

// RunDue runs every job whose time has come today and whose lease this
// instance wins. It returns the names of the jobs it ran.
func (s *Scheduler) RunDue(ctx context.Context) []string {
	now := s.now().In(s.loc)
	today := models.CivilDate(now, s.loc)
	var ran []string

	for _, job := range s.jobs {
		if !job.At.reached(now) {
			continue
		}
		key := leaseKey(job.Name, today)
		won, err := s.kv.SetNX(ctx, key, s.owner, leaseTTL)
		if err != nil {
			s.logger.Error("failed to take job lease", zap.String("job", job.Name), zap.Error(err))
			continue
		}
		if !won {
			continue
		}

		start := time.Now()
		s.logger.Info("running scheduled job", zap.String("job", job.Name), zap.String("date", models.DateKey(today)))
		if err := s.run(ctx, job); err != nil {
			s.logger.Error("scheduled job failed", zap.String("job", job.Name), zap.Duration("retry_after", retryAfter), zap.Error(err))
			s.shortenLease(ctx, job.Name, key)
		} else {
			s.logger.Info("scheduled job finished", zap.String("job", job.Name), zap.Duration("duration", time.Since(start)))
		}
		ran = append(ran, job.Name)
	}
	return ran
}

func (s *Scheduler) shortenLease(ctx context.Context, job, key string) {
	if err := s.kv.Set(ctx, key, s.owner, retryAfter); err == nil {
		return
	}
	if err := s.kv.Del(ctx, key); err != nil {
		s.logger.Warn("failed to release job lease", zap.String("job", job), zap.Error(err))
	}
}

func (s *Scheduler) run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	return job.Run(ctx)
}

// Start polls until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	jobs := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j.Name+"@"+j.At.String())
	}
	s.logger.Info("Scheduler started", zap.Strings("jobs", jobs), zap.String("timezone", s.loc.String()))

	s.RunDue(ctx)
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}
