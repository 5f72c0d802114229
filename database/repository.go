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

package database

import (
	"context"
	"time"

	"github.com/tablelink/relay/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	order        // Local order and line-item operations
	printJob     // Durable print-job queue operations
	pendingAck   // Acknowledgment retry queue operations
	offlineQueue // Offline outbound queue operations
	health       // Connection-health snapshot operations
	device       // Device identity operations
}

// order defines methods for the local order store.
type order interface {
	CreateOrderWithItems(ctx context.Context, ord *model.LocalOrder) (*model.LocalOrder, error) // Inserts an order and its items in one transaction
	GetOrderByRemoteID(ctx context.Context, remoteOrderID string) (*model.LocalOrder, error)    // Retrieves an order by its remote identifier
	GetOrderByID(ctx context.Context, orderID string) (*model.LocalOrder, error)                // Retrieves an order by local identifier
	GetOrders(ctx context.Context, limit, offset int) ([]*model.LocalOrder, error)              // Lists orders, newest first
	UpdateOrderStatus(ctx context.Context, orderID, status string, at time.Time) error          // Advances an order's status, stamping the transition time
	UpdateSyncStatus(ctx context.Context, orderID, syncStatus string) error                     // Records the platform acknowledgment state
}

// printJob defines methods for the durable print-job queue.
type printJob interface {
	CreatePrintJob(ctx context.Context, job *model.PrintJob) (*model.PrintJob, error)                         // Enqueues a new print job
	GetPrintJob(ctx context.Context, jobID string) (*model.PrintJob, error)                                   // Retrieves a job by ID
	GetRetryablePrintJobs(ctx context.Context, enabledPrinters []string, limit int) ([]*model.PrintJob, error) // Fetches pending/failed jobs under the retry cap for enabled printers
	MarkPrintJobPrinting(ctx context.Context, jobID string, at time.Time) error                               // Marks a job as in-flight
	CompletePrintJob(ctx context.Context, jobID string) error                                                 // Marks a job completed
	FailPrintJob(ctx context.Context, jobID, reason string, at time.Time) (int, error)                        // Records a failed attempt, returning the new retry count
	ResetFailedPrintJobs(ctx context.Context) (int64, error)                                                  // Operator reset: clears counters on dead-lettered jobs
	CountPrintJobsByStatus(ctx context.Context, status string) (int64, error)                                 // Queue-depth gauge for the ops surface
}

// pendingAck defines methods for the acknowledgment retry queue.
type pendingAck interface {
	CreatePendingAck(ctx context.Context, ack *model.PendingAck) (*model.PendingAck, error) // Persists a failed acknowledgment for retry
	GetRetryableAcks(ctx context.Context, now time.Time, limit int) ([]*model.PendingAck, error)
	DeletePendingAck(ctx context.Context, ackID string) error
	IncrementAckRetry(ctx context.Context, ackID string, at time.Time) error
	DeletePendingAcks(ctx context.Context, ackIDs []string) error // Batch removal after a successful flush
	CountPendingAcks(ctx context.Context) (int64, error)
}

// offlineQueue defines methods for the generic offline outbound queue.
type offlineQueue interface {
	EnqueueOfflineItem(ctx context.Context, item *model.OfflineQueueItem) (*model.OfflineQueueItem, error)
	GetDueOfflineItems(ctx context.Context, now time.Time, limit int) ([]*model.OfflineQueueItem, error)
	MarkOfflineItemProcessing(ctx context.Context, itemID string) error
	MarkOfflineItemSent(ctx context.Context, itemID string, responseCode int, responseBody string) error
	FailOfflineItem(ctx context.Context, itemID, reason string) (int, error) // Records a failed attempt, returning the new retry count
	CleanupSentItems(ctx context.Context, olderThan time.Time) (int64, error)
}

// health defines methods for the per-transport health snapshots.
type health interface {
	UpsertConnectionHealth(ctx context.Context, h *model.ConnectionHealth) error
	GetConnectionHealth(ctx context.Context, transport model.TransportType) (*model.ConnectionHealth, error)
	GetAllConnectionHealth(ctx context.Context) ([]*model.ConnectionHealth, error)
}

// device defines methods for the persisted device identity.
type device interface {
	GetOrCreateDeviceID(ctx context.Context) (string, error)
}
