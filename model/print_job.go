/*
Copyright 2025 Tablelink Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package model

import (
	"math"
	"time"
)

// Print job kinds.
const (
	JobKindReceipt = "receipt"
	JobKindKitchen = "kitchen_ticket"
	JobKindTest    = "test"
)

// Print job statuses.
const (
	PrintPending   = "pending"
	PrintPrinting  = "printing"
	PrintCompleted = "completed"
	PrintFailed    = "failed"
)

// DefaultPrintMaxRetries caps automatic retries of a print job. Past the cap
// a job stays failed until an operator resets it.
const DefaultPrintMaxRetries = 5

// PrintJob is one unit of work for a physical printer. OrderID is empty for
// ad-hoc test jobs. Payload is opaque rendered bytes; the queue never
// interprets it.
type PrintJob struct {
	ID            int64      `json:"-"`
	JobID         string     `json:"job_id"`
	OrderID       string     `json:"order_id,omitempty"`
	PrinterID     string     `json:"printer_id"`
	JobKind       string     `json:"job_kind"`
	Payload       []byte     `json:"-"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	LastError     string     `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// DeadLettered reports whether the job has exhausted its retry budget.
func (j *PrintJob) DeadLettered() bool {
	return j.Status == PrintFailed && j.RetryCount >= j.MaxRetries
}

// BackoffDue reports whether the job's exponential backoff window has elapsed
// at the given time. A job that has never been attempted is always due.
func (j *PrintJob) BackoffDue(now time.Time, baseDelay time.Duration) bool {
	if j.LastAttemptAt == nil {
		return true
	}
	wait := time.Duration(float64(baseDelay) * math.Pow(2, float64(j.RetryCount)))
	return now.Sub(*j.LastAttemptAt) >= wait
}
