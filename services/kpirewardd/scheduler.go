package kpirewardd

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"auxrewards/observability"
)

const cronParseOptions = cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor

// Pruner drops replay reservations that expired at or before cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

type sizer interface {
	Len() int
}

// Scheduler runs replay cache maintenance on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	pruner  Pruner
	now     func() time.Time
	logger  *slog.Logger
	metrics *observability.KPIRewardMetrics
}

// NewScheduler registers the prune job for spec. It does not start the cron.
func NewScheduler(spec string, pruner Pruner, logger *slog.Logger, metrics *observability.KPIRewardMetrics) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cronLog := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(cron.NewParser(cronParseOptions)),
			cron.WithChain(cron.Recover(cronLog)),
			cron.WithLogger(cronLog),
		),
		pruner:  pruner,
		now:     time.Now,
		logger:  logger,
		metrics: metrics,
	}
	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		s.RunOnce(ctx)
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// RunOnce prunes expired digests and refreshes the cache size gauge.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	removed, err := s.pruner.Prune(ctx, s.now())
	if err != nil {
		s.logger.Warn("kpirewardd: prune replay cache", slog.Any("error", err))
		return 0
	}
	if sz, ok := s.pruner.(sizer); ok {
		s.metrics.SetReplayEntries(sz.Len())
	}
	if removed > 0 {
		s.logger.Debug("kpirewardd: pruned replay cache", slog.Int("removed", removed))
	}
	return removed
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
