package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueScan is the task type for the nightly overdue invoice scan.
	TaskOverdueScan = "finance:overdue_scan"
	// TaskAllocationIntegrity is the task type for the allocation ledger
	// integrity check.
	TaskAllocationIntegrity = "finance:allocation_integrity"
)

// OverdueScanPayload parameterises one overdue scan run.
type OverdueScanPayload struct {
	// AsOf is the cutoff date; zero means the enqueue time.
	AsOf time.Time `json:"as_of"`
}

// NewOverdueScanTask constructs an Asynq task.
func NewOverdueScanTask(payload OverdueScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueScan, data), nil
}

// NewAllocationIntegrityTask constructs an Asynq task.
func NewAllocationIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskAllocationIntegrity, nil)
}
