package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/tablelink/relay/internal/apierror"
	"github.com/tablelink/relay/model"
)

// CreatePendingAck parks a failed acknowledgment for later retry.
func (d Datasource) CreatePendingAck(ctx context.Context, ack *model.PendingAck) (*model.PendingAck, error) {
	ack.AckID = model.GenerateUUIDWithSuffix("ack")
	ack.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO pending_acks (ack_id, order_id, status, failure_reason, device_id, duration_ms, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, ack.AckID, ack.OrderID, ack.Status, ack.FailureReason, ack.DeviceID, ack.DurationMs, ack.RetryCount, ack.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create pending ack", err)
	}
	return ack, nil
}

// GetRetryableAcks returns acks created within the retry window with attempts
// remaining, oldest first. Entries outside the window are left in place; they
// are visible to the operator flush but never auto-retried.
func (d Datasource) GetRetryableAcks(ctx context.Context, now time.Time, limit int) ([]*model.PendingAck, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, ack_id, order_id, status, failure_reason, device_id, duration_ms, retry_count, created_at, last_attempt_at
		FROM pending_acks
		WHERE retry_count < $1 AND created_at > $2
		ORDER BY created_at
		LIMIT $3
	`, model.AckMaxRetries, now.Add(-model.AckRetryWindow), limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve pending acks", err)
	}
	defer rows.Close()

	var acks []*model.PendingAck
	for rows.Next() {
		ack, err := scanPendingAck(rows)
		if err != nil {
			return nil, err
		}
		acks = append(acks, ack)
	}
	return acks, nil
}

// DeletePendingAck removes an entry after a successful retry.
func (d Datasource) DeletePendingAck(ctx context.Context, ackID string) error {
	result, err := d.Conn.ExecContext(ctx, `DELETE FROM pending_acks WHERE ack_id = $1`, ackID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete pending ack", err)
	}
	return checkAffected(result, "Pending ack not found")
}

// DeletePendingAcks removes a batch of entries after a successful flush.
func (d Datasource) DeletePendingAcks(ctx context.Context, ackIDs []string) error {
	if len(ackIDs) == 0 {
		return nil
	}
	_, err := d.Conn.ExecContext(ctx, `DELETE FROM pending_acks WHERE ack_id = ANY($1)`, pq.Array(ackIDs))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete pending acks", err)
	}
	return nil
}

// IncrementAckRetry records one more failed retry attempt.
func (d Datasource) IncrementAckRetry(ctx context.Context, ackID string, at time.Time) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE pending_acks SET retry_count = retry_count + 1, last_attempt_at = $2 WHERE ack_id = $1
	`, ackID, at)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to increment ack retry", err)
	}
	return checkAffected(result, "Pending ack not found")
}

// CountPendingAcks returns the retry-queue depth.
func (d Datasource) CountPendingAcks(ctx context.Context) (int64, error) {
	var count int64
	err := d.Conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_acks`).Scan(&count)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count pending acks", err)
	}
	return count, nil
}

func scanPendingAck(row rowScanner) (*model.PendingAck, error) {
	ack := &model.PendingAck{}
	var failureReason sql.NullString
	var lastAttemptAt sql.NullTime

	err := row.Scan(&ack.ID, &ack.AckID, &ack.OrderID, &ack.Status, &failureReason, &ack.DeviceID,
		&ack.DurationMs, &ack.RetryCount, &ack.CreatedAt, &lastAttemptAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Pending ack not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan pending ack", err)
	}

	ack.FailureReason = failureReason.String
	ack.LastAttemptAt = nullTimePtr(lastAttemptAt)
	return ack, nil
}
