package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"danceBack/internal/config"
)

const jobTimeout = 2 * time.Minute

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) (int64, error)
}

// maintenanceJobs are the background sweeps run by the scheduler.
func (app *application) maintenanceJobs(cfg config.Config) []job {
	return []job{
		{
			name:     "reconcile_lapsed_subscriptions",
			schedule: cfg.Jobs.LapsedSubscriptions,
			run: func(ctx context.Context) (int64, error) {
				n, err := app.subscriptionService.ReconcileLapsed(ctx)
				return int64(n), err
			},
		},
		{
			name:     "purge_abandoned_orders",
			schedule: cfg.Jobs.AbandonedOrders,
			run: func(ctx context.Context) (int64, error) {
				return app.orderService.PurgeAbandoned(ctx, cfg.Jobs.AbandonedAfter)
			},
		},
		{
			name:     "prune_webhook_ledger",
			schedule: cfg.Jobs.LedgerPrune,
			run: func(ctx context.Context) (int64, error) {
				return app.webhookService.PruneLedger(ctx, cfg.Jobs.LedgerRetention)
			},
		},
	}
}

// startScheduler registers jobs on a cron runner and starts it. The caller
// stops the returned runner on shutdown.
func (app *application) startScheduler(ctx context.Context, jobs []job) (*cron.Cron, error) {
	c := cron.New()
	for _, j := range jobs {
		j := j
		if _, err := c.AddFunc(j.schedule, func() { app.runJob(ctx, j) }); err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", j.name, j.schedule, err)
		}
		app.logger.Info("job scheduled", zap.String("job", j.name), zap.String("schedule", j.schedule))
	}
	c.Start()
	return c, nil
}

func (app *application) runJob(ctx context.Context, j job) {
	runCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	n, err := j.run(runCtx)
	if app.metrics != nil {
		app.metrics.ObserveJob(j.name, err)
	}
	if err != nil {
		app.logger.Error("job failed", zap.String("job", j.name), zap.Error(err))
		return
	}
	if n > 0 {
		app.logger.Info("job finished", zap.String("job", j.name), zap.Int64("affected", n))
	}
}
