// Package scheduler periodically resumes paused executions whose delay has
// elapsed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/otelhelper"
	"github.com/dripline/dripline/pkg/persistence"
	"github.com/robfig/cron/v3"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultInterval  = 60 * time.Second
	DefaultBatchSize = 100
	DefaultLockTTL   = 5 * time.Minute

	failRetries  = 3
	failInterval = 100 * time.Millisecond
)

var ErrAlreadyStarted = errors.New("scheduler already started")

// Resumer continues a claimed execution.
type Resumer interface {
	ResumeAutomation(ctx context.Context, execution *models.AutomationExecution) error
}

type Config struct {
	Executions persistence.ExecutionRepository
	Resumer    Resumer
	// Locker is optional; without it every replica polls.
	Locker    Locker
	Interval  time.Duration
	BatchSize int
	LockTTL   time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
	Tracer    trace.Tracer
}

// TickReport summarises one poll.
type TickReport struct {
	Due     int
	Resumed int
	Failed  int
	Lost    int
	Errors  int
	Skipped bool
}

type Scheduler struct {
	executions persistence.ExecutionRepository
	resumer    Resumer
	locker     Locker
	interval   time.Duration
	batchSize  int
	lockTTL    time.Duration
	logger     *slog.Logger
	now        func() time.Time
	tracer     trace.Tracer

	mu   sync.Mutex
	cron *cron.Cron
}

func New(cfg Config) *Scheduler {
	s := &Scheduler{
		executions: cfg.Executions,
		resumer:    cfg.Resumer,
		locker:     cfg.Locker,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		lockTTL:    cfg.LockTTL,
		logger:     cfg.Logger.With("module", "scheduler"),
		now:        cfg.Now,
		tracer:     cfg.Tracer,
	}

	if s.interval <= 0 {
		s.interval = DefaultInterval
	}

	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}

	if s.lockTTL <= 0 {
		s.lockTTL = DefaultLockTTL
	}

	if s.locker == nil {
		s.locker = NoopLocker{}
	}

	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}

	if s.tracer == nil {
		s.tracer = otelhelper.Tracer("dripline/scheduler")
	}

	return s
}

// Start runs Tick every interval until Stop. A tick still running when the
// next one is due is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return ErrAlreadyStarted
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn))

	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	_, err := c.AddFunc("@every "+s.interval.String(), func() {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Scheduler tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule poller: %w", err)
	}

	c.Start()
	s.cron = c

	s.logger.InfoContext(ctx, "Scheduler started", "interval", s.interval, "batch_size", s.batchSize)

	return nil
}

// Stop halts the poller and waits for a running tick to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}

	s.logger.InfoContext(ctx, "Scheduler stopped")
}

// Tick resumes one batch of due executions. Each execution is claimed
// first, so concurrent pollers never resume the same row twice. A failed
// resume marks its row FAILED and the batch continues.
func (s *Scheduler) Tick(ctx context.Context) (TickReport, error) {
	var report TickReport

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "scheduler.tick")
	defer span.End()

	release, acquired, err := s.locker.Acquire(ctx, s.lockTTL)
	if err != nil {
		otelhelper.SetError(span, err)

		return report, fmt.Errorf("failed to acquire scheduler lock: %w", err)
	}

	if !acquired {
		report.Skipped = true
		s.logger.DebugContext(ctx, "Another replica holds the scheduler lock")

		return report, nil
	}

	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.ErrorContext(ctx, "Failed to release scheduler lock", "error", err)
		}
	}()

	now := s.now()

	due, err := s.executions.FindDue(ctx, now, s.batchSize)
	if err != nil {
		otelhelper.SetError(span, err)

		return report, fmt.Errorf("failed to find due executions: %w", err)
	}

	report.Due = len(due)
	span.SetAttributes(attribute.Int(otelhelper.BatchSizeKey, len(due)))

	for _, execution := range due {
		s.process(ctx, now, execution, &report)
	}

	if report.Due > 0 {
		s.logger.InfoContext(ctx, "Processed due executions",
			"due", report.Due,
			"resumed", report.Resumed,
			"failed", report.Failed,
			"lost", report.Lost,
			"errors", report.Errors)
	}

	return report, nil
}

func (s *Scheduler) process(ctx context.Context, now time.Time, execution *models.AutomationExecution, report *TickReport) {
	logger := s.logger.With("automation_id", execution.AutomationID, "subscriber_id", execution.SubscriberID)

	claimed, err := s.executions.Claim(ctx, execution.AutomationID, execution.SubscriberID, now)
	if err != nil {
		report.Errors++
		logger.ErrorContext(ctx, "Failed to claim execution", "error", err)

		return
	}

	if claimed == nil {
		report.Lost++
		logger.DebugContext(ctx, "Execution claimed elsewhere")

		return
	}

	resumeErr := s.resumer.ResumeAutomation(ctx, claimed)
	if resumeErr == nil {
		report.Resumed++

		return
	}

	report.Failed++
	logger.WarnContext(ctx, "Resume failed, marking execution failed", "node_id", claimed.CurrentNodeID, "error", resumeErr)

	err = retry.Do(ctx, retry.WithMaxRetries(failRetries, retry.NewConstant(failInterval)), func(ctx context.Context) error {
		if _, err := s.executions.Fail(ctx, claimed.AutomationID, claimed.SubscriberID, resumeErr.Error()); err != nil {
			return retry.RetryableError(err)
		}

		return nil
	})
	if err != nil {
		report.Errors++
		logger.ErrorContext(ctx, "Failed to mark execution failed", "error", err)
	}
}
