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
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tablelink/relay/database"
	"github.com/tablelink/relay/internal/notification"
	"github.com/tablelink/relay/model"
)

const (
	printQueueInterval  = 5 * time.Second
	printQueueBatchSize = 20
)

// printReporter reports final print outcomes to the platform.
type printReporter interface {
	OrderPrinted(ctx context.Context, orderID string, duration time.Duration)
	OrderPrintFailed(ctx context.Context, orderID, reason string)
}

// PrintQueue drains the durable print-job table. Jobs survive restarts and
// power loss; the worker simply picks up whatever is due. Failed jobs retry
// with exponential backoff until the retry cap, then stay failed until an
// operator resets them.
type PrintQueue struct {
	datasource database.IDataSource
	pool       *PrinterPool
	reporter   printReporter
	bus        *EventBus

	baseDelay time.Duration
	mu        sync.Mutex
}

// NewPrintQueue builds the queue worker.
func NewPrintQueue(ds database.IDataSource, pool *PrinterPool, reporter printReporter, bus *EventBus, baseDelay time.Duration) *PrintQueue {
	return &PrintQueue{
		datasource: ds,
		pool:       pool,
		reporter:   reporter,
		bus:        bus,
		baseDelay:  baseDelay,
	}
}

// Run loops until the context is cancelled, draining due jobs every tick.
func (q *PrintQueue) Run(ctx context.Context) error {
	ticker := time.NewTicker(printQueueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			q.ProcessDue(ctx)
		}
	}
}

// ProcessDue attempts every job whose backoff window has elapsed. Overlapping
// invocations collapse to one.
func (q *PrintQueue) ProcessDue(ctx context.Context) {
	if !q.mu.TryLock() {
		return
	}
	defer q.mu.Unlock()

	jobs, err := q.datasource.GetRetryablePrintJobs(ctx, q.pool.IDs(), printQueueBatchSize)
	if err != nil {
		notification.NotifyError(err)
		return
	}

	now := time.Now()
	for _, job := range jobs {
		if !job.BackoffDue(now, q.baseDelay) {
			continue
		}
		q.attempt(ctx, job)
	}
}

// attempt prints a single job and records the outcome.
func (q *PrintQueue) attempt(ctx context.Context, job *model.PrintJob) {
	transport, err := q.pool.Get(job.PrinterID)
	if err != nil {
		// Printer was removed from config after the job was queued.
		q.fail(ctx, job, err)
		return
	}

	if err := q.datasource.MarkPrintJobPrinting(ctx, job.JobID, time.Now()); err != nil {
		logrus.Errorf("marking job %s printing: %v", job.JobID, err)
		return
	}

	start := time.Now()
	err = transport.Print(ctx, job.Payload)
	elapsed := time.Since(start)

	if err != nil {
		q.fail(ctx, job, err)
		return
	}

	if err := q.datasource.CompletePrintJob(ctx, job.JobID); err != nil {
		logrus.Errorf("completing job %s: %v", job.JobID, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"job_id":     job.JobID,
		"printer_id": job.PrinterID,
		"elapsed_ms": elapsed.Milliseconds(),
	}).Info("print job completed")

	q.bus.Publish(EventPrintJobCompleted, map[string]string{
		"job_id":     job.JobID,
		"order_id":   job.OrderID,
		"printer_id": job.PrinterID,
	})

	if job.OrderID != "" && job.JobKind == model.JobKindReceipt {
		q.reporter.OrderPrinted(ctx, job.OrderID, elapsed)
	}
}

func (q *PrintQueue) fail(ctx context.Context, job *model.PrintJob, cause error) {
	retries, err := q.datasource.FailPrintJob(ctx, job.JobID, cause.Error(), time.Now())
	if err != nil {
		logrus.Errorf("recording failure for job %s: %v", job.JobID, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"job_id":      job.JobID,
		"printer_id":  job.PrinterID,
		"retry_count": retries,
	}).Warnf("print job failed: %v", cause)

	if retries >= job.MaxRetries {
		q.bus.Publish(EventPrintJobDead, map[string]string{
			"job_id":     job.JobID,
			"order_id":   job.OrderID,
			"printer_id": job.PrinterID,
			"last_error": cause.Error(),
		})
		if job.OrderID != "" && job.JobKind == model.JobKindReceipt {
			q.reporter.OrderPrintFailed(ctx, job.OrderID, cause.Error())
		}
	}
}

// RetryAllFailed clears the retry counters on dead-lettered jobs so the next
// tick picks them up again. Returns the number of jobs revived.
func (q *PrintQueue) RetryAllFailed(ctx context.Context) (int64, error) {
	return q.datasource.ResetFailedPrintJobs(ctx)
}
