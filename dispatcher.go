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
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tablelink/relay/config"
	"github.com/tablelink/relay/database"
	"github.com/tablelink/relay/internal/apierror"
	"github.com/tablelink/relay/model"
)

const ticketWidth = 42

// PrintDispatcher turns a local order into durable print jobs: a customer
// receipt for every receipt printer and a kitchen ticket for every kitchen
// printer. Rendering happens once, at dispatch; the queue only moves bytes.
type PrintDispatcher struct {
	datasource database.IDataSource
	pool       *PrinterPool
}

// NewPrintDispatcher builds a dispatcher over the given stores and printers.
func NewPrintDispatcher(ds database.IDataSource, pool *PrinterPool) *PrintDispatcher {
	return &PrintDispatcher{datasource: ds, pool: pool}
}

// DispatchOrder enqueues the order's print jobs. An order dispatched with no
// enabled printers is an error: the restaurant would never see it.
func (d *PrintDispatcher) DispatchOrder(ctx context.Context, order *model.LocalOrder) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	type target struct {
		printerID string
		kind      string
		payload   []byte
	}
	var targets []target

	receipt := renderReceipt(order, conf.ProjectName)
	for _, id := range d.pool.IDsByKind(model.JobKindReceipt) {
		targets = append(targets, target{printerID: id, kind: model.JobKindReceipt, payload: receipt})
	}

	ticket := renderKitchenTicket(order)
	for _, id := range d.pool.IDsByKind(model.JobKindKitchen) {
		targets = append(targets, target{printerID: id, kind: model.JobKindKitchen, payload: ticket})
	}

	if len(targets) == 0 {
		return errors.New("no enabled printers to dispatch to")
	}

	for _, t := range targets {
		job := &model.PrintJob{
			JobID:      model.GenerateUUIDWithSuffix("job"),
			OrderID:    order.OrderID,
			PrinterID:  t.printerID,
			JobKind:    t.kind,
			Payload:    t.payload,
			Status:     model.PrintPending,
			MaxRetries: conf.Printing.MaxRetries,
			CreatedAt:  time.Now(),
		}
		if _, err := d.datasource.CreatePrintJob(ctx, job); err != nil {
			return errors.Wrapf(err, "enqueueing %s job for printer %s", t.kind, t.printerID)
		}
		logrus.WithFields(logrus.Fields{
			"job_id":     job.JobID,
			"order_id":   order.OrderID,
			"printer_id": t.printerID,
			"job_kind":   t.kind,
		}).Info("print job queued")
	}
	return nil
}

// DispatchTest enqueues a short test page on one printer.
func (d *PrintDispatcher) DispatchTest(ctx context.Context, printerID string) (*model.PrintJob, error) {
	if _, err := d.pool.Get(printerID); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("printer %s is not configured", printerID), nil)
	}
	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	writeCenter(&b, conf.ProjectName)
	writeCenter(&b, "TEST PAGE")
	writeLine(&b, "")
	writeLine(&b, fmt.Sprintf("Printer: %s", printerID))
	writeLine(&b, fmt.Sprintf("Time:    %s", time.Now().Format("2006-01-02 15:04:05")))
	writeCut(&b)

	job := &model.PrintJob{
		JobID:      model.GenerateUUIDWithSuffix("job"),
		PrinterID:  printerID,
		JobKind:    model.JobKindTest,
		Payload:    b.Bytes(),
		Status:     model.PrintPending,
		MaxRetries: 1,
		CreatedAt:  time.Now(),
	}
	return d.datasource.CreatePrintJob(ctx, job)
}

// renderReceipt produces the customer-facing receipt as plain text. Thermal
// printers render whatever bytes arrive, so plain text with a trailing feed
// works on every model the relay targets.
func renderReceipt(order *model.LocalOrder, shopName string) []byte {
	var b bytes.Buffer
	writeCenter(&b, shopName)
	writeCenter(&b, fmt.Sprintf("Order #%s", order.DisplayNumber))
	writeLine(&b, strings.Repeat("-", ticketWidth))
	writeLine(&b, fmt.Sprintf("Type:    %s", strings.ReplaceAll(order.OrderType, "_", " ")))
	writeLine(&b, fmt.Sprintf("Payment: %s (%s)", order.PaymentMethod, order.PaymentStatus))
	if order.CustomerName != "" {
		writeLine(&b, fmt.Sprintf("Name:    %s", order.CustomerName))
	}
	if order.CustomerPhone != "" {
		writeLine(&b, fmt.Sprintf("Phone:   %s", order.CustomerPhone))
	}
	if order.OrderType == model.OrderTypeDelivery && order.CustomerAddress != "" {
		writeLine(&b, fmt.Sprintf("Address: %s", order.CustomerAddress))
	}
	if order.ScheduledFor != nil {
		writeLine(&b, fmt.Sprintf("For:     %s", order.ScheduledFor.Format("Mon 15:04")))
	}
	writeLine(&b, strings.Repeat("-", ticketWidth))

	for _, it := range order.Items {
		writePriced(&b, fmt.Sprintf("%dx %s", it.Quantity, it.Name), it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).StringFixed(2))
		for _, m := range it.Modifiers {
			if m.Price.IsZero() {
				writeLine(&b, fmt.Sprintf("   + %s", m.Name))
			} else {
				writePriced(&b, fmt.Sprintf("   + %s", m.Name), m.Price.StringFixed(2))
			}
		}
	}

	writeLine(&b, strings.Repeat("-", ticketWidth))
	writePriced(&b, "Subtotal", order.SubtotalAmount.StringFixed(2))
	if !order.TaxAmount.IsZero() {
		writePriced(&b, "Tax", order.TaxAmount.StringFixed(2))
	}
	if !order.DeliveryFee.IsZero() {
		writePriced(&b, "Delivery", order.DeliveryFee.StringFixed(2))
	}
	writePriced(&b, "TOTAL", order.TotalAmount.StringFixed(2))

	if order.Instructions != "" {
		writeLine(&b, strings.Repeat("-", ticketWidth))
		writeLine(&b, "Notes:")
		writeLine(&b, order.Instructions)
	}
	writeCut(&b)
	return b.Bytes()
}

// renderKitchenTicket produces the kitchen-facing ticket: big on items and
// notes, silent on money.
func renderKitchenTicket(order *model.LocalOrder) []byte {
	var b bytes.Buffer
	writeCenter(&b, fmt.Sprintf("** ORDER #%s **", order.DisplayNumber))
	writeCenter(&b, strings.ToUpper(strings.ReplaceAll(order.OrderType, "_", " ")))
	if order.ScheduledFor != nil {
		writeCenter(&b, fmt.Sprintf("FOR %s", order.ScheduledFor.Format("15:04")))
	}
	writeLine(&b, strings.Repeat("=", ticketWidth))

	for _, it := range order.Items {
		writeLine(&b, fmt.Sprintf("%d x %s", it.Quantity, strings.ToUpper(it.Name)))
		for _, m := range it.Modifiers {
			writeLine(&b, fmt.Sprintf("    + %s", m.Name))
		}
	}

	if order.Instructions != "" {
		writeLine(&b, strings.Repeat("=", ticketWidth))
		writeLine(&b, "!! "+order.Instructions)
	}
	writeCut(&b)
	return b.Bytes()
}

func writeLine(b *bytes.Buffer, s string) {
	b.WriteString(s)
	b.WriteByte('\n')
}

func writeCenter(b *bytes.Buffer, s string) {
	if pad := (ticketWidth - len(s)) / 2; pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	writeLine(b, s)
}

// writePriced writes a label left-aligned and an amount right-aligned on one
// line.
func writePriced(b *bytes.Buffer, label, amount string) {
	gap := ticketWidth - len(label) - len(amount)
	if gap < 1 {
		gap = 1
	}
	writeLine(b, label+strings.Repeat(" ", gap)+amount)
}

// writeCut feeds past the tear bar.
func writeCut(b *bytes.Buffer) {
	b.WriteString("\n\n\n\n")
}
