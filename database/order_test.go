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
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/tablelink/relay/internal/apierror"
	"github.com/tablelink/relay/model"
)

func orderColumns() []string {
	return []string{
		"id", "order_id", "remote_order_id", "display_number", "customer_name", "customer_phone",
		"customer_address", "order_type", "payment_method", "payment_status", "subtotal_amount",
		"tax_amount", "delivery_fee", "total_amount", "instructions", "scheduled_for", "status",
		"sync_status", "created_at", "kitchen_at", "preparing_at", "ready_at", "delivering_at",
		"completed_at", "cancelled_at",
	}
}

func TestCreateOrderWithItems_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	ctx := context.TODO()

	ord := &model.LocalOrder{
		RemoteOrderID: "R-100",
		DisplayNumber: "42",
		CustomerName:  "Walk-in Customer",
		OrderType:     model.OrderTypePickup,
		PaymentMethod: model.PaymentCard,
		PaymentStatus: "paid",
		TotalAmount:   decimal.RequireFromString("25.00"),
		Status:        model.StatusNew,
		SyncStatus:    model.SyncPending,
		Items: []model.LocalOrderItem{
			{Name: "Burger", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO order_items").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	created, err := ds.CreateOrderWithItems(ctx, ord)
	assert.NoError(t, err)
	assert.NotEmpty(t, created.OrderID)
	assert.WithinDuration(t, time.Now(), created.CreatedAt, time.Second)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestCreateOrderWithItems_DuplicateRemoteID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	ctx := context.TODO()

	ord := &model.LocalOrder{
		RemoteOrderID: "R-100",
		CustomerName:  "Walk-in Customer",
		OrderType:     model.OrderTypePickup,
		Status:        model.StatusNew,
		SyncStatus:    model.SyncPending,
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err = ds.CreateOrderWithItems(ctx, ord)
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrConflict, err.(apierror.APIError).Code)
}

func TestGetOrderByRemoteID_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	ctx := context.TODO()

	rows := sqlmock.NewRows(orderColumns()).AddRow(
		1, "ord_abc", "R-100", "42", "Jane Doe", nil,
		nil, model.OrderTypeDelivery, model.PaymentCash, "pending", "20.00",
		"2.00", "3.00", "25.00", nil, nil, model.StatusNew,
		model.SyncPending, time.Now(), nil, nil, nil, nil,
		nil, nil,
	)

	mock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs("R-100").
		WillReturnRows(rows)

	ord, err := ds.GetOrderByRemoteID(ctx, "R-100")
	assert.NoError(t, err)
	assert.Equal(t, "ord_abc", ord.OrderID)
	assert.Equal(t, "25", ord.TotalAmount.String())
}

func TestGetOrderByRemoteID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	ctx := context.TODO()

	mock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs("R-404").
		WillReturnError(sql.ErrNoRows)

	_, err = ds.GetOrderByRemoteID(ctx, "R-404")
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrNotFound, err.(apierror.APIError).Code)
}

func TestUpdateOrderStatus_StampsTransitionColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	ctx := context.TODO()
	now := time.Now()

	mock.ExpectExec("UPDATE orders").
		WithArgs("ord_abc", model.StatusKitchen, now, model.StatusCompleted, model.StatusCancelled).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = ds.UpdateOrderStatus(ctx, "ord_abc", model.StatusKitchen, now)
	assert.NoError(t, err)
}

func TestUpdateOrderStatus_TerminalOrderRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	ctx := context.TODO()

	mock.ExpectExec("UPDATE orders").
		WillReturnResult(sqlmock.NewResult(1, 0))

	err = ds.UpdateOrderStatus(ctx, "ord_abc", model.StatusReady, time.Now())
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrNotFound, err.(apierror.APIError).Code)
}

func TestUpdateOrderStatus_UnknownStatus(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	err = ds.UpdateOrderStatus(context.TODO(), "ord_abc", "TELEPORTED", time.Now())
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrInvalidInput, err.(apierror.APIError).Code)
}

func TestUpdateSyncStatus_Fail(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	ctx := context.TODO()

	mock.ExpectExec("UPDATE orders").
		WithArgs("ord_abc", model.SyncSynced).
		WillReturnError(fmt.Errorf("connection reset"))

	err = ds.UpdateSyncStatus(ctx, "ord_abc", model.SyncSynced)
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrInternalServer, err.(apierror.APIError).Code)
}
