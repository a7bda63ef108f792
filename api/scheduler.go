/*
scheduler.go - Periodic leave reminders

PURPOSE:
  Periodically reminds every employee who still has days left in the
  current year. Each run publishes one leave.reminder event per employee
  through the service's notifier.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Runs once immediately on start
  - Stop waits for an in-flight run to finish

USAGE:
  scheduler := NewReminderScheduler(svc, logger)
  scheduler.Interval = 24 * time.Hour
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: SendReminders endpoint (manual trigger)
  - leave/reports.go: Service.SendReminders
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// ReminderScheduler sends remaining-balance reminders on an interval.
type ReminderScheduler struct {
	Service  *leave.Service
	Interval time.Duration
	Enabled  bool

	logger *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReminderScheduler creates a scheduler running once a day.
func NewReminderScheduler(svc *leave.Service, logger *zap.Logger) *ReminderScheduler {
	return &ReminderScheduler{
		Service:  svc,
		Interval: 24 * time.Hour,
		Enabled:  true,
		logger:   logger.Named("api.scheduler"),
	}
}

// Start begins the scheduler. Calling Start on a running scheduler is a no-op.
func (rs *ReminderScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.logger.Info("reminder scheduler disabled")
		return
	}
	if rs.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	rs.stop = make(chan struct{})
	rs.ticker = time.NewTicker(rs.Interval)
	rs.wg.Add(1)

	go rs.run(ctx)

	rs.logger.Info("reminder scheduler started", zap.Duration("interval", rs.Interval))
}

// Stop stops the scheduler and waits for the current run.
func (rs *ReminderScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.cancel()
	rs.wg.Wait()
	rs.ticker = nil
	rs.logger.Info("reminder scheduler stopped")
}

func (rs *ReminderScheduler) run(ctx context.Context) {
	defer rs.wg.Done()

	rs.RunOnce(ctx)

	for {
		select {
		case <-rs.ticker.C:
			rs.RunOnce(ctx)
		case <-rs.stop:
			return
		}
	}
}

// RunOnce sends reminders for the current year and returns how many went out.
func (rs *ReminderScheduler) RunOnce(ctx context.Context) int {
	year := generic.Today(rs.Service.Now()).Year()
	sent, err := rs.Service.SendReminders(ctx, year)
	if err != nil {
		rs.logger.Error("reminder run failed", zap.Int("year", year), zap.Error(err))
		return 0
	}
	rs.logger.Info("reminders sent", zap.Int("year", year), zap.Int("sent", sent))
	return sent
}
