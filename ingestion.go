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
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tablelink/relay/config"
	"github.com/tablelink/relay/database"
	"github.com/tablelink/relay/internal/apierror"
	"github.com/tablelink/relay/model"
)

// IngestResult classifies the outcome of offering a remote order to the gate.
type IngestResult string

const (
	IngestCreated   IngestResult = "created"
	IngestDuplicate IngestResult = "duplicate"
	IngestRejected  IngestResult = "rejected"
	IngestFailed    IngestResult = "failed"
)

// defaultCustomerName stands in for orders the platform delivers without a
// customer name, so receipts never print a blank name line.
const defaultCustomerName = "Walk-in Customer"

// printScheduler queues the print jobs for a newly created order.
type printScheduler interface {
	DispatchOrder(ctx context.Context, order *model.LocalOrder) error
}

// ackNotifier reports ingestion outcomes back to the platform.
type ackNotifier interface {
	OrderReceived(ctx context.Context, order *model.LocalOrder)
}

// IngestionGate is the single entry point for orders discovered on any
// channel. All three discovery channels hand their finds here; the gate
// deduplicates on the remote order ID, so the channels can overlap freely.
type IngestionGate struct {
	datasource database.IDataSource
	dispatcher printScheduler
	acks       ackNotifier
	bus        *EventBus
}

// NewIngestionGate wires the gate to its stores and downstream consumers.
func NewIngestionGate(ds database.IDataSource, dispatcher printScheduler, acks ackNotifier, bus *EventBus) *IngestionGate {
	return &IngestionGate{datasource: ds, dispatcher: dispatcher, acks: acks, bus: bus}
}

// Ingest offers one remote order to the gate. The order is created locally
// (and printed and acknowledged), recognized as already ingested, rejected as
// malformed, or failed on a store error the channel should retry. Two
// channels racing on the same order are resolved by the unique remote-ID
// constraint; the loser sees a duplicate, never an error.
func (g *IngestionGate) Ingest(ctx context.Context, remote *model.RemoteOrder, source model.TransportType) (IngestResult, *model.LocalOrder, error) {
	if err := validateRemoteOrder(remote); err != nil {
		logrus.WithFields(logrus.Fields{
			"remote_order_id": remote.OrderID,
			"source":          source,
		}).Warnf("rejecting order: %v", err)
		return IngestRejected, nil, err
	}

	existing, err := g.datasource.GetOrderByRemoteID(ctx, remote.OrderID)
	if err == nil {
		return IngestDuplicate, existing, nil
	}
	if !isNotFound(err) {
		return IngestFailed, nil, err
	}

	local := g.normalize(remote)
	created, err := g.datasource.CreateOrderWithItems(ctx, local)
	if err != nil {
		if isConflict(err) {
			// Another channel ingested this order between our check and
			// insert. Fetch what it wrote.
			existing, getErr := g.datasource.GetOrderByRemoteID(ctx, remote.OrderID)
			if getErr != nil {
				return IngestFailed, nil, getErr
			}
			return IngestDuplicate, existing, nil
		}
		return IngestFailed, nil, err
	}

	logrus.WithFields(logrus.Fields{
		"order_id":        created.OrderID,
		"remote_order_id": created.RemoteOrderID,
		"source":          source,
	}).Info("order ingested")

	g.acks.OrderReceived(ctx, created)

	conf, confErr := config.Fetch()
	autoPrint := confErr == nil && conf.Printing.AutoPrint
	if autoPrint {
		if err := g.dispatcher.DispatchOrder(ctx, created); err != nil {
			logrus.Errorf("dispatching print jobs for order %s: %v", created.OrderID, err)
		}
	}

	g.bus.Publish(EventOrderReceived, created)
	g.bus.Publish(EventOrdersUpdated, map[string]string{"order_id": created.OrderID})

	return IngestCreated, created, nil
}

// normalize converts the channel-neutral remote order into the local record.
func (g *IngestionGate) normalize(remote *model.RemoteOrder) *model.LocalOrder {
	fallbackPayment := ""
	if conf, err := config.Fetch(); err == nil {
		fallbackPayment = conf.FallbackPaymentMethod
	}

	name := strings.TrimSpace(remote.CustomerName)
	if name == "" {
		name = defaultCustomerName
	}

	// OrderID and CreatedAt are assigned by the datasource on insert.
	local := &model.LocalOrder{
		RemoteOrderID:   remote.OrderID,
		DisplayNumber:   remote.DisplayNumber,
		CustomerName:    name,
		CustomerPhone:   strings.TrimSpace(remote.CustomerPhone),
		CustomerAddress: strings.TrimSpace(remote.CustomerAddress),
		OrderType:       normalizeOrderType(remote.OrderType),
		PaymentMethod:   model.ResolvePaymentMethod(remote.PaymentMethod, remote.PaymentStatus, remote.VoucherCode, fallbackPayment),
		PaymentStatus:   strings.ToLower(strings.TrimSpace(remote.PaymentStatus)),
		SubtotalAmount:  model.ParseAmount(remote.Subtotal),
		TaxAmount:       model.ParseAmount(remote.Tax),
		DeliveryFee:     model.ParseAmount(remote.DeliveryFee),
		TotalAmount:     model.ParseAmount(remote.Total),
		Instructions:    remote.Instructions,
		ScheduledFor:    remote.ScheduledAt,
		Status:          model.StatusNew,
		SyncStatus:      model.SyncPending,
	}

	for _, it := range remote.Items {
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		item := model.LocalOrderItem{
			Name:      strings.TrimSpace(it.Name),
			Quantity:  qty,
			UnitPrice: model.ParseAmount(it.Price),
		}
		for _, ad := range it.Addons {
			item.Modifiers = append(item.Modifiers, model.OrderModifier{
				Name:  strings.TrimSpace(ad.Name),
				Price: model.ParseAmount(ad.Price),
			})
		}
		local.Items = append(local.Items, item)
	}
	return local
}

// validateRemoteOrder rejects orders that cannot become a printable local
// record.
func validateRemoteOrder(remote *model.RemoteOrder) error {
	if remote == nil {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "order is empty", nil)
	}
	if strings.TrimSpace(remote.OrderID) == "" {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "order is missing its remote id", nil)
	}
	if len(remote.Items) == 0 {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "order has no line items", map[string]string{"remote_order_id": remote.OrderID})
	}
	for i, it := range remote.Items {
		if strings.TrimSpace(it.Name) == "" {
			return apierror.NewAPIError(apierror.ErrInvalidInput, "order has an unnamed line item", map[string]interface{}{
				"remote_order_id": remote.OrderID,
				"item_index":      i,
			})
		}
	}
	return nil
}

// normalizeOrderType collapses the platform's order-type spellings onto the
// three local values. Unknown types default to pickup, which never routes an
// order through the delivery leg by accident.
func normalizeOrderType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "-", "_")
	t = strings.ReplaceAll(t, " ", "_")
	switch t {
	case model.OrderTypeDelivery:
		return model.OrderTypeDelivery
	case model.OrderTypeDineIn, "dinein", "eat_in":
		return model.OrderTypeDineIn
	case model.OrderTypePickup, "collection", "takeaway", "take_away":
		return model.OrderTypePickup
	default:
		return model.OrderTypePickup
	}
}

func isNotFound(err error) bool {
	apiErr, ok := err.(apierror.APIError)
	return ok && apiErr.Code == apierror.ErrNotFound
}

func isConflict(err error) bool {
	apiErr, ok := err.(apierror.APIError)
	return ok && apiErr.Code == apierror.ErrConflict
}
