// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"backoffice/logging"
	"backoffice/metrics"
	"backoffice/model"
	"backoffice/realtime"
)

const OverdueJob = "mark_overdue"

// OverdueMarker flips unpaid invoices past their due date to overdue.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, asOf time.Time) ([]int64, error)
}

type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
	ctx  context.Context
	stop context.CancelFunc
}

func New(log *zap.Logger) *Scheduler {
	ctx, stop := context.WithCancel(logging.WithContext(context.Background(), log))
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cronLogger{log}))),
		log:  log,
		ctx:  ctx,
		stop: stop,
	}
}

// AddOverdueJob schedules RunOverdue with a standard five-field cron spec or
// a descriptor such as "@daily".
func (s *Scheduler) AddOverdueJob(spec string, m OverdueMarker, pub realtime.Publisher) error {
	_, err := s.cron.AddFunc(spec, func() {
		RunOverdue(s.ctx, m, pub, time.Now())
	})
	if err != nil {
		return fmt.Errorf("invalid overdue schedule %q: %w", spec, err)
	}
	s.log.Info("scheduled job", zap.String("job", OverdueJob), zap.String("schedule", spec))
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop prevents new runs and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}

// RunOverdue marks invoices overdue as of now and publishes an update per
// invoice. It returns the number of invoices changed.
func RunOverdue(ctx context.Context, m OverdueMarker, pub realtime.Publisher, now time.Time) int {
	log := logging.FromContext(ctx)
	ids, err := m.MarkOverdue(ctx, now)
	metrics.RecordJobRun(OverdueJob, err == nil)
	if err != nil {
		log.Error("overdue job failed", zap.Error(err))
		return 0
	}
	for _, id := range ids {
		realtime.Changed(pub, "invoices", model.ActionUpdate, id, map[string]any{"status": model.InvoiceOverdue})
	}
	if len(ids) > 0 {
		log.Info("marked invoices overdue", zap.Int("count", len(ids)))
	}
	return len(ids)
}

type cronLogger struct{ log *zap.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
