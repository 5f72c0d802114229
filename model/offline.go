package model

import "time"

// Offline queue item statuses.
const (
	OfflinePending    = "pending"
	OfflineProcessing = "processing"
	OfflineSent       = "sent"
	OfflineFailed     = "failed"
)

// DefaultOfflineMaxRetries caps delivery attempts for a queued outbound call.
const DefaultOfflineMaxRetries = 5

// OfflineQueueItem is a durable record of an outbound HTTP call made while
// disconnected. Any component can enqueue one; a timer drains them once the
// network returns. Lower priority values drain sooner.
type OfflineQueueItem struct {
	ID           int64             `json:"-"`
	ItemID       string            `json:"item_id"`
	OpType       string            `json:"op_type"`
	Endpoint     string            `json:"endpoint"`
	Method       string            `json:"method"`
	Payload      []byte            `json:"payload,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Priority     int               `json:"priority"`
	Status       string            `json:"status"`
	RetryCount   int               `json:"retry_count"`
	MaxRetries   int               `json:"max_retries"`
	ScheduledAt  *time.Time        `json:"scheduled_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	ResponseCode int               `json:"response_code,omitempty"`
	ResponseBody string            `json:"response_body,omitempty"`
	LastError    string            `json:"last_error,omitempty"`
}

// Due reports whether the item may be attempted at the given time.
func (i *OfflineQueueItem) Due(now time.Time) bool {
	return i.ScheduledAt == nil || !i.ScheduledAt.After(now)
}
