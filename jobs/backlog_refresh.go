package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/hotelcms/hotelcms/internal/jobs"
)

// BacklogCounter reports how many changes await review.
type BacklogCounter interface {
	CountPending(ctx context.Context) (int64, error)
}

// BacklogGauge receives the refreshed backlog size.
type BacklogGauge interface {
	SetPendingChanges(n int64)
}

// BacklogRefreshJob publishes the review backlog as a gauge.
type BacklogRefreshJob struct {
	Changes BacklogCounter
	Gauge   BacklogGauge
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewBacklogRefreshJob wires dependencies for the refresh handler.
func NewBacklogRefreshJob(changes BacklogCounter, gauge BacklogGauge, logger *slog.Logger, metrics *jobmetrics.Metrics) *BacklogRefreshJob {
	return &BacklogRefreshJob{Changes: changes, Gauge: gauge, Logger: logger, Metrics: metrics}
}

// Handle processes backlog refresh tasks.
func (j *BacklogRefreshJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Changes == nil {
		return errors.New("backlog refresh: handler not configured")
	}
	tracker := j.Metrics.Track(TaskBacklogRefresh)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	n, err := j.Changes.CountPending(ctx)
	if err != nil {
		j.logger().Error("count pending changes", slog.Any("error", err))
		return err
	}
	if j.Gauge != nil {
		j.Gauge.SetPendingChanges(n)
	}
	j.logger().Debug("backlog refreshed", slog.Int64("pending", n))
	return nil
}

func (j *BacklogRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
