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
	"database/sql"
	"log"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/tablelink/relay/config"
	"github.com/tablelink/relay/database"
	"github.com/tablelink/relay/model"
)

func newTestDataSource() (database.IDataSource, sqlmock.Sqlmock, error) {
	db, mock, err := sqlmock.New()
	if err != nil {
		log.Printf("an error '%s' was not expected when opening a stub database Connection", err)
	}
	return &database.Datasource{Conn: db}, mock, nil
}

func mockConfig(autoPrint bool) {
	config.MockConfig(&config.Configuration{
		ProjectName: "Testaurant",
		Platform: config.PlatformConfig{
			BaseURL:    "https://platform.test",
			APIKey:     "key-123",
			TenantSlug: "testaurant",
		},
		Printing: config.PrintingConfig{
			AutoPrint:    autoPrint,
			MaxRetries:   5,
			BaseDelaySec: 30,
			Printers: []config.PrinterConfig{
				{PrinterID: "front", Address: "192.168.1.50:9100", Kind: model.JobKindReceipt, Enabled: true},
				{PrinterID: "kitchen", Address: "192.168.1.51:9100", Kind: model.JobKindKitchen, Enabled: true},
			},
		},
		Queue: config.QueueConfig{OfflineMaxRetries: 5, RetentionDays: 7},
	})
}

type stubScheduler struct {
	dispatched []string
	err        error
}

func (s *stubScheduler) DispatchOrder(_ context.Context, order *model.LocalOrder) error {
	s.dispatched = append(s.dispatched, order.OrderID)
	return s.err
}

type stubAcks struct {
	received []string
}

func (s *stubAcks) OrderReceived(_ context.Context, order *model.LocalOrder) {
	s.received = append(s.received, order.OrderID)
}

func sampleRemoteOrder() *model.RemoteOrder {
	return &model.RemoteOrder{
		OrderID:       "R-100",
		DisplayNumber: "42",
		CustomerName:  gofakeit.Name(),
		CustomerPhone: gofakeit.Phone(),
		OrderType:     "Pickup",
		PaymentMethod: "Online Payment",
		PaymentStatus: "paid",
		Subtotal:      "18.50",
		Tax:           "1.50",
		Total:         "20.00",
		CreatedAt:     time.Now(),
		Items: []model.RemoteOrderItem{
			{
				Name:     "Margherita",
				Quantity: 2,
				Price:    "9.25",
				Addons:   []model.RemoteAddon{{Name: "Extra cheese", Price: "1.00"}},
			},
		},
	}
}

func orderColumns() []string {
	return []string{"id", "order_id", "remote_order_id", "display_number", "customer_name", "customer_phone",
		"customer_address", "order_type", "payment_method", "payment_status", "subtotal_amount", "tax_amount",
		"delivery_fee", "total_amount", "instructions", "scheduled_for", "status", "sync_status", "created_at",
		"kitchen_at", "preparing_at", "ready_at", "delivering_at", "completed_at", "cancelled_at"}
}

func existingOrderRow() *sqlmock.Rows {
	return sqlmock.NewRows(orderColumns()).
		AddRow(1, "ord_abc", "R-100", "42", "Ada", "555-0101",
			"", "pickup", "card", "paid", "18.50", "1.50",
			"0", "20.00", "", nil, model.StatusNew, model.SyncSynced, time.Now(),
			nil, nil, nil, nil, nil, nil)
}

func TestIngestCreatesOrder(t *testing.T) {
	datasource, mock, err := newTestDataSource()
	assert.NoError(t, err)
	mockConfig(true)

	sched := &stubScheduler{}
	acks := &stubAcks{}
	gate := NewIngestionGate(datasource, sched, acks, NewEventBus())

	mock.ExpectQuery("SELECT .* FROM orders WHERE remote_order_id =").
		WithArgs("R-100").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO order_items").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, created, err := gate.Ingest(context.Background(), sampleRemoteOrder(), model.TransportAPI)
	assert.NoError(t, err)
	assert.Equal(t, IngestCreated, result)
	assert.NotNil(t, created)
	assert.Equal(t, "R-100", created.RemoteOrderID)
	assert.Equal(t, model.StatusNew, created.Status)
	assert.Equal(t, model.OrderTypePickup, created.OrderType)
	// Generic "Online Payment" with a paid status resolves to card.
	assert.Equal(t, model.PaymentCard, created.PaymentMethod)
	assert.Equal(t, "18.5", created.SubtotalAmount.String())

	assert.Equal(t, []string{created.OrderID}, sched.dispatched)
	assert.Equal(t, []string{created.OrderID}, acks.received)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestDefaultsCustomerName(t *testing.T) {
	datasource, mock, err := newTestDataSource()
	assert.NoError(t, err)
	mockConfig(true)

	gate := NewIngestionGate(datasource, &stubScheduler{}, &stubAcks{}, NewEventBus())

	mock.ExpectQuery("SELECT .* FROM orders WHERE remote_order_id =").
		WithArgs("R-100").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO order_items").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	remote := sampleRemoteOrder()
	remote.CustomerName = "   "

	result, created, err := gate.Ingest(context.Background(), remote, model.TransportAPI)
	assert.NoError(t, err)
	assert.Equal(t, IngestCreated, result)
	assert.Equal(t, "Walk-in Customer", created.CustomerName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestSkipsDuplicate(t *testing.T) {
	datasource, mock, err := newTestDataSource()
	assert.NoError(t, err)
	mockConfig(true)

	sched := &stubScheduler{}
	acks := &stubAcks{}
	gate := NewIngestionGate(datasource, sched, acks, NewEventBus())

	mock.ExpectQuery("SELECT .* FROM orders WHERE remote_order_id =").
		WithArgs("R-100").
		WillReturnRows(existingOrderRow())

	result, existing, err := gate.Ingest(context.Background(), sampleRemoteOrder(), model.TransportExternal)
	assert.NoError(t, err)
	assert.Equal(t, IngestDuplicate, result)
	assert.Equal(t, "ord_abc", existing.OrderID)

	// A duplicate never prints or acks again.
	assert.Empty(t, sched.dispatched)
	assert.Empty(t, acks.received)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestRejectsOrderWithoutItems(t *testing.T) {
	datasource, mock, err := newTestDataSource()
	assert.NoError(t, err)
	mockConfig(true)

	gate := NewIngestionGate(datasource, &stubScheduler{}, &stubAcks{}, NewEventBus())

	remote := sampleRemoteOrder()
	remote.Items = nil

	result, created, err := gate.Ingest(context.Background(), remote, model.TransportAPI)
	assert.Error(t, err)
	assert.Equal(t, IngestRejected, result)
	assert.Nil(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestLosesInsertRaceCleanly(t *testing.T) {
	datasource, mock, err := newTestDataSource()
	assert.NoError(t, err)
	mockConfig(true)

	sched := &stubScheduler{}
	gate := NewIngestionGate(datasource, sched, &stubAcks{}, NewEventBus())

	mock.ExpectQuery("SELECT .* FROM orders WHERE remote_order_id =").
		WithArgs("R-100").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT .* FROM orders WHERE remote_order_id =").
		WithArgs("R-100").
		WillReturnRows(existingOrderRow())

	result, existing, err := gate.Ingest(context.Background(), sampleRemoteOrder(), model.TransportDatabase)
	assert.NoError(t, err)
	assert.Equal(t, IngestDuplicate, result)
	assert.Equal(t, "ord_abc", existing.OrderID)
	assert.Empty(t, sched.dispatched)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalizeOrderTypeVariants(t *testing.T) {
	assert.Equal(t, model.OrderTypePickup, normalizeOrderType("Collection"))
	assert.Equal(t, model.OrderTypeDineIn, normalizeOrderType("Dine-In"))
	assert.Equal(t, model.OrderTypeDelivery, normalizeOrderType(" delivery "))
	assert.Equal(t, model.OrderTypePickup, normalizeOrderType("something-new"))
}
