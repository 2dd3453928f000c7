package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInventoryConsistencyAudit re-checks every warehouse for broken invariants.
	TaskInventoryConsistencyAudit = "inventory:consistency_audit"
)

// ConsistencyAuditPayload tunes a single audit run. Zero values fall back to
// the worker defaults.
type ConsistencyAuditPayload struct {
	Concurrency int `json:"concurrency,omitempty"`
}

// NewConsistencyAuditTask constructs an Asynq task for the consistency audit.
func NewConsistencyAuditTask(payload ConsistencyAuditPayload) (*asynq.Task, error) {
	if payload.Concurrency < 0 {
		return nil, fmt.Errorf("consistency audit: concurrency must not be negative")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryConsistencyAudit, data, asynq.MaxRetry(3)), nil
}

// KnownTask reports whether name is a task type this worker serves.
func KnownTask(name string) bool {
	return name == TaskInventoryConsistencyAudit
}
