package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-inventory/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-inventory/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

type consistencyChecker interface {
	CheckAll(ctx context.Context, concurrency int) ([]inventory.Violation, int, error)
}

// ConsistencyAuditJob walks every warehouse and reports invariant violations.
// Individual violations are logged and counted by the checker itself.
type ConsistencyAuditJob struct {
	Checker     consistencyChecker
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
	clock       func() time.Time
}

// NewConsistencyAuditJob initialises the audit handler.
func NewConsistencyAuditJob(checker consistencyChecker, logger *slog.Logger, metrics *jobmetrics.Metrics, concurrency int) *ConsistencyAuditJob {
	return &ConsistencyAuditJob{
		Checker:     checker,
		Logger:      logger,
		Metrics:     metrics,
		Concurrency: concurrency,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one audit run.
func (j *ConsistencyAuditJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Checker == nil {
		return errors.New("consistency audit: handler not configured")
	}
	var payload ConsistencyAuditPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	concurrency := payload.Concurrency
	if concurrency <= 0 {
		concurrency = j.Concurrency
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	start := j.now()
	tracker := j.metrics().Track(TaskInventoryConsistencyAudit)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("concurrency", concurrency))
	logger.Info("starting consistency audit")

	violations, checked, err := j.Checker.CheckAll(ctx, concurrency)
	if err != nil {
		resultErr = err
		logger.Error("consistency audit failed", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddAudited(checked)

	level := slog.LevelInfo
	if len(violations) > 0 {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "completed consistency audit",
		slog.Int("warehouses", checked),
		slog.Int("violations", len(violations)),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return resultErr
}

func (j *ConsistencyAuditJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInventoryConsistencyAudit))
	}
	return slog.Default().With(slog.String("job", TaskInventoryConsistencyAudit))
}

func (j *ConsistencyAuditJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ConsistencyAuditJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
