package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCounterDriftScan is the task type for the periodic counter
	// drift scan.
	TaskCounterDriftScan = "counters:drift_scan"
)

// DriftScanPayload scopes a drift scan. A zero SellerID scans every
// seller that owns counters.
type DriftScanPayload struct {
	SellerID int64 `json:"seller_id,omitempty"`
}

// NewCounterDriftScanTask constructs an Asynq task.
func NewCounterDriftScanTask(payload DriftScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCounterDriftScan, data), nil
}
