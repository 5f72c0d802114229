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

func TestCreatePendingAck_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	ctx := context.TODO()

	mock.ExpectExec("INSERT INTO pending_acks").
		WillReturnResult(sqlmock.NewResult(1, 1))

	ack, err := ds.CreatePendingAck(ctx, &model.PendingAck{
		OrderID:  "R-100",
		Status:   model.AckPrinted,
		DeviceID: "dev_1",
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, ack.AckID)
	assert.WithinDuration(t, time.Now(), ack.CreatedAt, time.Second)
}

func TestGetRetryableAcks_WindowAndCapInQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	ctx := context.TODO()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "ack_id", "order_id", "status", "failure_reason", "device_id", "duration_ms",
		"retry_count", "created_at", "last_attempt_at",
	}).AddRow(1, "ack_1", "R-100", model.AckPrinted, nil, "dev_1", 1200, 2, now.Add(-time.Hour), nil)

	mock.ExpectQuery("SELECT (.+) FROM pending_acks").
		WithArgs(model.AckMaxRetries, sqlmock.AnyArg(), 100).
		WillReturnRows(rows)

	acks, err := ds.GetRetryableAcks(ctx, now, 100)
	assert.NoError(t, err)
	assert.Len(t, acks, 1)
	assert.Equal(t, "ack_1", acks[0].AckID)
	assert.Equal(t, int64(1200), acks[0].DurationMs)
}

func TestDeletePendingAck_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	ctx := context.TODO()

	mock.ExpectExec("DELETE FROM pending_acks").
		WithArgs("ack_missing").
		WillReturnResult(sqlmock.NewResult(1, 0))

	err = ds.DeletePendingAck(ctx, "ack_missing")
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrNotFound, err.(apierror.APIError).Code)
}

func TestDeletePendingAcks_EmptyBatchIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	err = ds.DeletePendingAcks(context.TODO(), nil)
	assert.NoError(t, err)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestIncrementAckRetry_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	ctx := context.TODO()

	mock.ExpectExec("UPDATE pending_acks").
		WithArgs("ack_1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = ds.IncrementAckRetry(ctx, "ack_1", time.Now())
	assert.NoError(t, err)
}
