package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/tablelink/relay/internal/apierror"
	"github.com/tablelink/relay/model"
)

// EnqueueOfflineItem persists an outbound call for later delivery.
func (d Datasource) EnqueueOfflineItem(ctx context.Context, item *model.OfflineQueueItem) (*model.OfflineQueueItem, error) {
	item.ItemID = model.GenerateUUIDWithSuffix("oq")
	item.Status = model.OfflinePending
	item.CreatedAt = time.Now()
	if item.MaxRetries <= 0 {
		item.MaxRetries = model.DefaultOfflineMaxRetries
	}

	headersJSON, err := json.Marshal(item.Headers)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal headers", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO offline_queue (item_id, op_type, endpoint, method, payload, headers, priority, status,
			retry_count, max_retries, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, item.ItemID, item.OpType, item.Endpoint, item.Method, item.Payload, headersJSON, item.Priority,
		item.Status, item.RetryCount, item.MaxRetries, item.ScheduledAt, item.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to enqueue offline item", err)
	}
	return item, nil
}

// GetDueOfflineItems returns pending items whose scheduled time (if any) has
// passed, ordered by priority then age.
func (d Datasource) GetDueOfflineItems(ctx context.Context, now time.Time, limit int) ([]*model.OfflineQueueItem, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, item_id, op_type, endpoint, method, payload, headers, priority, status, retry_count,
			max_retries, scheduled_at, created_at, response_code, response_body, last_error
		FROM offline_queue
		WHERE status = $1 AND (scheduled_at IS NULL OR scheduled_at <= $2)
		ORDER BY priority, created_at
		LIMIT $3
	`, model.OfflinePending, now, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve offline items", err)
	}
	defer rows.Close()

	var items []*model.OfflineQueueItem
	for rows.Next() {
		item, err := scanOfflineItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// MarkOfflineItemProcessing transitions an item to processing.
func (d Datasource) MarkOfflineItemProcessing(ctx context.Context, itemID string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE offline_queue SET status = $2 WHERE item_id = $1 AND status = $3
	`, itemID, model.OfflineProcessing, model.OfflinePending)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark offline item processing", err)
	}
	return checkAffected(result, "Offline item not found or not pending")
}

// MarkOfflineItemSent records a successful delivery with the response.
func (d Datasource) MarkOfflineItemSent(ctx context.Context, itemID string, responseCode int, responseBody string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE offline_queue SET status = $2, response_code = $3, response_body = $4 WHERE item_id = $1
	`, itemID, model.OfflineSent, responseCode, responseBody)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark offline item sent", err)
	}
	return checkAffected(result, "Offline item not found")
}

// FailOfflineItem records a failed attempt. The item reverts to pending while
// retries remain and becomes terminally failed at the cap. The new retry
// count is returned so the caller can raise a dead-letter event.
func (d Datasource) FailOfflineItem(ctx context.Context, itemID, reason string) (int, error) {
	var retryCount int
	err := d.Conn.QueryRowContext(ctx, `
		UPDATE offline_queue
		SET retry_count = retry_count + 1,
			last_error = $2,
			status = CASE WHEN retry_count + 1 >= max_retries THEN $3 ELSE $4 END
		WHERE item_id = $1
		RETURNING retry_count
	`, itemID, reason, model.OfflineFailed, model.OfflinePending).Scan(&retryCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, apierror.NewAPIError(apierror.ErrNotFound, "Offline item not found", err)
		}
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record offline item failure", err)
	}
	return retryCount, nil
}

// CleanupSentItems deletes sent items older than the retention cutoff.
func (d Datasource) CleanupSentItems(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := d.Conn.ExecContext(ctx, `
		DELETE FROM offline_queue WHERE status = $1 AND created_at < $2
	`, model.OfflineSent, olderThan)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to clean up sent items", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	return affected, nil
}

func scanOfflineItem(row rowScanner) (*model.OfflineQueueItem, error) {
	item := &model.OfflineQueueItem{}
	var headersJSON []byte
	var scheduledAt sql.NullTime
	var responseCode sql.NullInt64
	var responseBody, lastError sql.NullString

	err := row.Scan(&item.ID, &item.ItemID, &item.OpType, &item.Endpoint, &item.Method, &item.Payload,
		&headersJSON, &item.Priority, &item.Status, &item.RetryCount, &item.MaxRetries, &scheduledAt,
		&item.CreatedAt, &responseCode, &responseBody, &lastError)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Offline item not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan offline item", err)
	}

	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &item.Headers); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal headers", err)
		}
	}
	item.ScheduledAt = nullTimePtr(scheduledAt)
	item.ResponseCode = int(responseCode.Int64)
	item.ResponseBody = responseBody.String
	item.LastError = lastError.String
	return item, nil
}
