package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule is the sweep interval while the order list is open
const DefaultSchedule = "@every 5m"

// ErrSchedulerRunning is returned by Start on a running scheduler
var ErrSchedulerRunning = errors.New("sweep scheduler already running")

// ReportSink receives the report of every sweep that did something
type ReportSink interface {
	PublishSweep(ctx context.Context, report SweepReport) error
}

// cronLogger adapts zap to the cron.Logger interface
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

// SchedulerOption configures a Scheduler
type SchedulerOption func(*Scheduler)

// WithSink publishes non-empty sweep reports to sink
func WithSink(sink ReportSink) SchedulerOption {
	return func(s *Scheduler) { s.sink = sink }
}

// WithRefresh makes every tick refetch the order list before sweeping
func WithRefresh() SchedulerOption {
	return func(s *Scheduler) { s.refresh = true }
}

// WithSchedulerLogger sets the scheduler logger
func WithSchedulerLogger(logger *zap.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// Scheduler runs the engine sweep on a cron schedule between Start and Stop
type Scheduler struct {
	engine   *Engine
	schedule string
	sink     ReportSink
	refresh  bool
	logger   *zap.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewScheduler validates schedule and returns a stopped scheduler
func NewScheduler(engine *Engine, schedule string, opts ...SchedulerOption) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	s := &Scheduler{engine: engine, schedule: schedule, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins ticking. Ticks run with a context derived from ctx that is
// cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return ErrSchedulerRunning
	}

	logger := cronLogger{sugar: s.logger.Sugar()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	runCtx, cancel := context.WithCancel(ctx)
	if _, err := c.AddFunc(s.schedule, func() { s.RunNow(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule sweep: %w", err)
	}

	c.Start()
	s.cron = c
	s.cancel = cancel
	s.logger.Info("sweep scheduler started", zap.String("schedule", s.schedule))
	return nil
}

// Stop cancels the running tick, if any, and waits for it to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	s.logger.Info("sweep scheduler stopped")
}

// Running reports whether Start has been called without Stop
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// RunNow performs one tick on the caller's goroutine
func (s *Scheduler) RunNow(ctx context.Context) SweepReport {
	var report SweepReport
	if s.refresh {
		r, err := s.engine.Refresh(ctx)
		if err != nil {
			return SweepReport{}
		}
		report = r
	} else {
		report = s.engine.Sweep(ctx)
	}

	if s.sink != nil && !report.Empty() {
		publishCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s.sink.PublishSweep(publishCtx, report); err != nil {
			s.logger.Warn("sweep report not archived", zap.Error(err))
		}
	}
	return report
}
