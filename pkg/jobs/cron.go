// Package jobs runs scheduled maintenance.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jordanlanch/leadscope/pkg/logger"
)

// Schedules
const (
	SweepSchedule = "@every 5m"
	StatsSchedule = "0 * * * *"
)

// CronManager manages scheduled jobs
type CronManager struct {
	cron    *cron.Cron
	monitor *ScrapeMonitor
	logger  logger.Logger
}

// NewCronManager creates a new cron manager
func NewCronManager(monitor *ScrapeMonitor, log logger.Logger) *CronManager {
	return &CronManager{
		cron:    cron.New(),
		monitor: monitor,
		logger:  logger.OrDefault(log).With("component", "cron"),
	}
}

// SetupJobs configures all scheduled jobs
func (cm *CronManager) SetupJobs() error {
	if _, err := cm.cron.AddFunc(SweepSchedule, cm.sweep); err != nil {
		return err
	}

	// Hourly: log crawl status totals
	if _, err := cm.cron.AddFunc(StatsSchedule, cm.stats); err != nil {
		return err
	}

	cm.logger.Info("cron jobs configured", "sweep", SweepSchedule, "stats", StatsSchedule)
	return nil
}

func (cm *CronManager) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := cm.monitor.SweepStale(ctx); err != nil {
		cm.logger.Error("stale crawl sweep failed", "error", err)
	}
}

func (cm *CronManager) stats() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	counts, err := cm.monitor.StatusCounts(ctx)
	if err != nil {
		cm.logger.Error("failed to count crawl statuses", "error", err)
		return
	}

	args := make([]any, 0, len(counts)*2)
	for status, n := range counts {
		args = append(args, string(status), n)
	}
	cm.logger.Info("crawl statuses", args...)
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.logger.Info("starting cron scheduler")
	cm.cron.Start()
}

// Stop stops the scheduler and waits for running jobs
func (cm *CronManager) Stop() {
	cm.logger.Info("stopping cron scheduler")
	<-cm.cron.Stop().Done()
}

// Monitor returns the scrape monitor for manual runs
func (cm *CronManager) Monitor() *ScrapeMonitor {
	return cm.monitor
}
