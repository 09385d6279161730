package main

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"danceBack/internal/metrics"
)

func TestStartSchedulerRejectsBadSchedule(t *testing.T) {
	app, _ := testApp(t, defaultUsers())
	_, err := app.startScheduler(context.Background(), []job{{
		name:     "broken",
		schedule: "every tuesday",
		run:      func(context.Context) (int64, error) { return 0, nil },
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestRunJobRecordsOutcome(t *testing.T) {
	app, logs := testApp(t, defaultUsers())
	app.metrics = metrics.New()

	app.runJob(context.Background(), job{name: "purge", run: func(context.Context) (int64, error) {
		return 3, nil
	}})
	app.runJob(context.Background(), job{name: "purge", run: func(context.Context) (int64, error) {
		return 0, errors.New("deadlock")
	}})

	assert.Equal(t, 1.0, testutil.ToFloat64(app.metrics.JobRunsTotal.WithLabelValues("purge", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(app.metrics.JobRunsTotal.WithLabelValues("purge", "error")))
	assert.Equal(t, 1, logs.FilterMessage("job finished").Len())
	assert.Equal(t, 1, logs.FilterMessage("job failed").Len())
}
