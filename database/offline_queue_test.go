package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/tablelink/relay/internal/apierror"
	"github.com/tablelink/relay/model"
)

func offlineColumns() []string {
	return []string{
		"id", "item_id", "op_type", "endpoint", "method", "payload", "headers", "priority", "status",
		"retry_count", "max_retries", "scheduled_at", "created_at", "response_code", "response_body", "last_error",
	}
}

func TestEnqueueOfflineItem_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	ctx := context.TODO()

	mock.ExpectExec("INSERT INTO offline_queue").
		WillReturnResult(sqlmock.NewResult(1, 1))

	item, err := ds.EnqueueOfflineItem(ctx, &model.OfflineQueueItem{
		OpType:   "order_ack",
		Endpoint: "https://platform.example.com/pos/orders/ack",
		Method:   "POST",
		Payload:  []byte(`{"orderId":"R-100"}`),
		Priority: 10,
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, item.ItemID)
	assert.Equal(t, model.OfflinePending, item.Status)
	assert.Equal(t, model.DefaultOfflineMaxRetries, item.MaxRetries)
}

func TestGetDueOfflineItems(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	ctx := context.TODO()
	now := time.Now()

	rows := sqlmock.NewRows(offlineColumns()).
		AddRow(1, "oq_1", "order_ack", "/pos/orders/ack", "POST", []byte("{}"), []byte(`{"X-Api-Key":"k"}`),
			10, model.OfflinePending, 0, 5, nil, now.Add(-time.Minute), nil, nil, nil)

	mock.ExpectQuery("SELECT (.+) FROM offline_queue").
		WithArgs(model.OfflinePending, sqlmock.AnyArg(), 50).
		WillReturnRows(rows)

	items, err := ds.GetDueOfflineItems(ctx, now, 50)
	assert.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, "k", items[0].Headers["X-Api-Key"])
}

func TestMarkOfflineItemProcessing_AlreadyTaken(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	ctx := context.TODO()

	mock.ExpectExec("UPDATE offline_queue").
		WithArgs("oq_1", model.OfflineProcessing, model.OfflinePending).
		WillReturnResult(sqlmock.NewResult(1, 0))

	err = ds.MarkOfflineItemProcessing(ctx, "oq_1")
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrNotFound, err.(apierror.APIError).Code)
}

func TestFailOfflineItem_ReturnsRetryCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	ctx := context.TODO()

	mock.ExpectQuery("UPDATE offline_queue").
		WithArgs("oq_1", "dial tcp: timeout", model.OfflineFailed, model.OfflinePending).
		WillReturnRows(sqlmock.NewRows([]string{"retry_count"}).AddRow(5))

	count, err := ds.FailOfflineItem(ctx, "oq_1", "dial tcp: timeout")
	assert.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestCleanupSentItems(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	ctx := context.TODO()

	mock.ExpectExec("DELETE FROM offline_queue").
		WithArgs(model.OfflineSent, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 12))

	removed, err := ds.CleanupSentItems(ctx, time.Now().AddDate(0, 0, -7))
	assert.NoError(t, err)
	assert.Equal(t, int64(12), removed)
}
