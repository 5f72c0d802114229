package model

import "time"

// Ack statuses reported back to the platform.
const (
	AckQueuedForPrint = "queued_for_print"
	AckPrinted        = "printed"
	AckFailed         = "failed"
)

// Ack retry discipline: entries older than the window are abandoned, entries
// at the cap are dead-lettered.
const (
	AckMaxRetries  = 10
	AckRetryWindow = 6 * time.Hour
)

// OrderAck is the wire payload sent to the platform to report receipt or
// print outcome of an order.
type OrderAck struct {
	OrderID       string `json:"orderId"`
	Status        string `json:"status"`
	FailureReason string `json:"failureReason,omitempty"`
	DeviceID      string `json:"deviceId"`
	DurationMs    int64  `json:"durationMs,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// PendingAck is a failed acknowledgment parked for retry. The exact payload
// that failed to send is reconstructable from these fields; the row is
// deleted on a successful retry.
type PendingAck struct {
	ID            int64      `json:"-"`
	AckID         string     `json:"ack_id"`
	OrderID       string     `json:"order_id"`
	Status        string     `json:"status"`
	FailureReason string     `json:"failure_reason,omitempty"`
	DeviceID      string     `json:"device_id"`
	DurationMs    int64      `json:"duration_ms,omitempty"`
	RetryCount    int        `json:"retry_count"`
	CreatedAt     time.Time  `json:"created_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// ToAck rebuilds the wire payload for a retry attempt.
func (p *PendingAck) ToAck() OrderAck {
	return OrderAck{
		OrderID:       p.OrderID,
		Status:        p.Status,
		FailureReason: p.FailureReason,
		DeviceID:      p.DeviceID,
		DurationMs:    p.DurationMs,
		Timestamp:     p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Retryable reports whether the entry is still inside the retry window and
// under the retry cap at the given time.
func (p *PendingAck) Retryable(now time.Time) bool {
	return p.RetryCount < AckMaxRetries && now.Sub(p.CreatedAt) <= AckRetryWindow
}
