package infrastructure

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushMetrics sends the collected batch metrics to a Prometheus Pushgateway.
// Batch runs exit before a scraper can collect them, so the final state is pushed.
// An empty url is a no-op.
func PushMetrics(ctx context.Context, url, job, traceID string, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	if url == "" || gatherer == nil {
		return nil
	}
	if logger == nil {
		logger = GetLogger()
	}

	pusher := push.New(url, job).Gatherer(gatherer)
	if traceID != "" {
		pusher = pusher.Grouping("run", traceID)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}

	logger.InfoContext(ctx, "Metrics pushed", slog.String("url", url), slog.String("job", job))
	return nil
}
