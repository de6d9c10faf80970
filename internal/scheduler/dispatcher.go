package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/metrics"
)

// ScheduleSource lists due schedules and records their runs.
type ScheduleSource interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledReport, error)
	RecordExecution(ctx context.Context, id domain.ID, success bool) (*domain.ScheduledReport, error)
}

// ExportRequester starts the export for one scheduled run.
type ExportRequester interface {
	RequestScheduled(ctx context.Context, schedule *domain.ScheduledReport) (*domain.ExportJob, error)
}

type Config struct {
	Interval  time.Duration
	BatchSize int
	// RedispatchAfter bounds how long a dispatched run may stay unrecorded
	// before the schedule is dispatched again.
	RedispatchAfter time.Duration
	Logger          *zap.Logger
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Dispatcher polls for due schedules and turns each into an export job. The
// worker records the execution once the export finishes; a run that cannot
// be started is recorded as failed immediately so the schedule rearms.
// A schedule is dispatched once per next-execution time, and again only if
// that run stays unrecorded for longer than RedispatchAfter.
type Dispatcher struct {
	schedules       ScheduleSource
	exports         ExportRequester
	interval        time.Duration
	batchSize       int
	redispatchAfter time.Duration
	logger          *zap.Logger
	metrics         *metrics.Metrics
	now             func() time.Time

	mu         sync.Mutex
	dispatched map[string]dispatchedRun
}

type dispatchedRun struct {
	nextExecutionAt time.Time
	dispatchedAt    time.Time
}

func NewDispatcher(schedules ScheduleSource, exports ExportRequester, cfg Config) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.RedispatchAfter <= 0 {
		cfg.RedispatchAfter = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Dispatcher{
		schedules:       schedules,
		exports:         exports,
		interval:        cfg.Interval,
		batchSize:       cfg.BatchSize,
		redispatchAfter: cfg.RedispatchAfter,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		now:             func() time.Time { return time.Now().UTC() },
		dispatched:      make(map[string]dispatchedRun),
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick dispatches every schedule due now and returns how many exports were
// started.
func (d *Dispatcher) Tick(ctx context.Context) int {
	now := d.now()
	due, err := d.schedules.ListDue(ctx, now, d.batchSize)
	if err != nil {
		d.logger.Error("list due schedules failed", zap.Error(err))
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.forgetRearmed(due)

	started := 0
	for _, schedule := range due {
		if ctx.Err() != nil {
			return started
		}
		key := schedule.ID().String()
		logger := d.logger.With(
			zap.String("scheduled_report_id", schedule.ID().String()),
			zap.Time("next_execution_at", schedule.NextExecutionAt()),
		)
		if run, ok := d.dispatched[key]; ok && run.nextExecutionAt.Equal(schedule.NextExecutionAt()) {
			if now.Sub(run.dispatchedAt) < d.redispatchAfter {
				continue
			}
			logger.Warn("scheduled run was never recorded, dispatching again",
				zap.Time("dispatched_at", run.dispatchedAt),
			)
		}

		job, err := d.exports.RequestScheduled(ctx, schedule)
		if d.metrics != nil {
			d.metrics.ObserveScheduleFired(err)
		}
		if err != nil {
			logger.Warn("scheduled export could not be started", zap.Error(err))
			if _, recordErr := d.schedules.RecordExecution(ctx, schedule.ID(), false); recordErr != nil {
				logger.Error("record failed execution", zap.Error(recordErr))
			}
			continue
		}
		d.dispatched[key] = dispatchedRun{nextExecutionAt: schedule.NextExecutionAt(), dispatchedAt: now}
		started++
		logger.Info("scheduled export started", zap.String("export_job_id", job.ID().String()))
	}
	return started
}

// forgetRearmed drops runs whose schedule is no longer due at the same time.
func (d *Dispatcher) forgetRearmed(due []*domain.ScheduledReport) {
	current := make(map[string]time.Time, len(due))
	for _, schedule := range due {
		current[schedule.ID().String()] = schedule.NextExecutionAt()
	}
	for key, run := range d.dispatched {
		if next, ok := current[key]; !ok || !next.Equal(run.nextExecutionAt) {
			delete(d.dispatched, key)
		}
	}
}
