package syncjob

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/somedsale/quotelist/pkg/detect"
	"github.com/somedsale/quotelist/pkg/logger"
	"github.com/somedsale/quotelist/pkg/metrics"
	"github.com/somedsale/quotelist/pkg/notify"
	"github.com/somedsale/quotelist/pkg/sheets"
	"github.com/somedsale/quotelist/pkg/source"
)

// ErrCycleInProgress is returned by RunCycle when another cycle holds the run-lock.
var ErrCycleInProgress = errors.New("sync cycle already in progress")

// State is the lifecycle state of the cycle runner.
type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Mirror rewrites the spreadsheet from a full table scan.
type Mirror interface {
	Sync(ctx context.Context, rows []source.Row) (sheets.Result, error)
}

// Detector finds rows above the watermark.
type Detector interface {
	Init(ctx context.Context) error
	Check(ctx context.Context, notify detect.NotifyFunc) ([]source.Row, error)
	Watermark() (int64, bool)
}

// Trigger schedules fn on a cron expression.
type Trigger interface {
	Register(expr string, fn func()) error
	Start()
	Stop()
	Next() time.Time
}

// Config holds the cycle settings
type Config struct {
	Cron string
	// CycleTimeout bounds a single cycle. Zero means no bound.
	CycleTimeout time.Duration
}

// Service runs the mirror then the change detector on every trigger.
type Service struct {
	logger   *logger.Logger
	reader   source.Reader
	mirror   Mirror
	detector Detector
	notifier notify.Notifier
	trigger  Trigger
	cfg      Config

	runLock sync.Mutex
	state   atomic.Int32
	ready   atomic.Bool
}

// NewService creates a new cycle service instance
func NewService(
	logger *logger.Logger,
	reader source.Reader,
	mirror Mirror,
	detector Detector,
	notifier notify.Notifier,
	trigger Trigger,
	cfg Config,
) *Service {
	return &Service{
		logger:   logger,
		reader:   reader,
		mirror:   mirror,
		detector: detector,
		notifier: notifier,
		trigger:  trigger,
		cfg:      cfg,
	}
}

// State reports whether a cycle is running.
func (s *Service) State() State {
	return State(s.state.Load())
}

// Ready reports whether the startup pass has completed.
func (s *Service) Ready() bool {
	return s.ready.Load()
}

// Start runs the startup pass, then triggers cycles on the schedule until
// ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting sync service", zap.String("cron", s.cfg.Cron))

	if err := s.trigger.Register(s.cfg.Cron, func() { s.Trigger(ctx) }); err != nil {
		return err
	}

	s.Startup(ctx)

	s.trigger.Start()
	defer s.trigger.Stop()
	s.logger.Info("scheduler started", zap.Time("next_run", s.trigger.Next()))

	<-ctx.Done()
	s.logger.Info("stopping sync service")
	return ctx.Err()
}

// Startup mirrors the table once and initializes the watermark. Failures
// are logged and do not stop the service.
func (s *Service) Startup(ctx context.Context) {
	defer s.ready.Store(true)

	ctx, cancel := s.withCycleTimeout(ctx)
	defer cancel()

	if !s.runLock.TryLock() {
		return
	}
	defer s.runLock.Unlock()
	s.state.Store(int32(Running))
	defer s.state.Store(int32(Idle))

	if err := s.syncSheet(ctx); err != nil {
		metrics.CycleErrorsTotal.WithLabelValues("mirror").Inc()
		s.logger.Error("startup mirror failed", err)
	}
	if err := s.detector.Init(ctx); err != nil {
		metrics.CycleErrorsTotal.WithLabelValues("init").Inc()
		s.logger.Error("watermark initialization failed", err)
		return
	}
	wm, _ := s.detector.Watermark()
	metrics.Watermark.Set(float64(wm))
	s.logger.Info("initial sync complete, monitoring for new rows", zap.Int64("watermark", wm))
}

// Trigger runs one cycle and logs its outcome. It is the scheduled job.
func (s *Service) Trigger(ctx context.Context) {
	ctx, cancel := s.withCycleTimeout(ctx)
	defer cancel()

	err := s.RunCycle(ctx)
	switch {
	case errors.Is(err, ErrCycleInProgress):
		metrics.SkippedTriggersTotal.Inc()
		s.logger.WarnErr("trigger skipped", err)
	case err != nil:
		s.logger.Error("sync cycle failed", err)
	}
}

// RunCycle mirrors the table and then checks for new rows. A failed mirror
// skips the check for this cycle.
func (s *Service) RunCycle(ctx context.Context) error {
	if !s.runLock.TryLock() {
		return ErrCycleInProgress
	}
	defer s.runLock.Unlock()
	s.state.Store(int32(Running))
	defer s.state.Store(int32(Idle))

	metrics.CyclesTotal.Inc()
	start := time.Now()
	defer func() { metrics.CycleDuration.Observe(time.Since(start).Seconds()) }()

	if err := s.syncSheet(ctx); err != nil {
		metrics.CycleErrorsTotal.WithLabelValues("mirror").Inc()
		return err
	}

	rows, err := s.detector.Check(ctx, s.notify)
	if wm, ok := s.detector.Watermark(); ok {
		metrics.Watermark.Set(float64(wm))
	}
	if err != nil {
		metrics.CycleErrorsTotal.WithLabelValues("detect").Inc()
		return fmt.Errorf("change detection failed: %w", err)
	}
	if len(rows) > 0 {
		s.logger.Info("new rows notified", zap.Int("count", len(rows)), zap.Int64("max_id", source.MaxRowID(rows)))
	}
	return nil
}

func (s *Service) withCycleTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.CycleTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.CycleTimeout)
}

func (s *Service) syncSheet(ctx context.Context) error {
	rows, err := s.reader.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to read table: %w", err)
	}
	res, err := s.mirror.Sync(ctx, rows)
	if err != nil {
		return fmt.Errorf("failed to mirror %d rows: %w", len(rows), err)
	}
	metrics.RowsMirrored.Set(float64(res.Rows))
	s.logger.Info("sheet updated", zap.Int("rows", res.Rows))
	return nil
}

func (s *Service) notify(ctx context.Context, rows []source.Row) error {
	metrics.NewRowsTotal.Add(float64(len(rows)))
	if err := s.notifier.Notify(ctx, rows); err != nil {
		metrics.NotificationsFailedTotal.Inc()
		return err
	}
	metrics.NotificationsSentTotal.Inc()
	return nil
}
