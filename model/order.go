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
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Order lifecycle statuses. An order only moves forward along
// New → Kitchen → Preparing → Ready → Delivering → Completed, with Cancelled
// as the only terminal branch off the path.
const (
	StatusNew        = "NEW"
	StatusKitchen    = "KITCHEN"
	StatusPreparing  = "PREPARING"
	StatusReady      = "READY"
	StatusDelivering = "DELIVERING"
	StatusCompleted  = "COMPLETED"
	StatusCancelled  = "CANCELLED"
)

// Sync statuses report whether the platform has acknowledged our receipt of
// the order.
const (
	SyncPending = "PENDING"
	SyncSynced  = "SYNCED"
	SyncFailed  = "FAILED"
)

// Order types as they arrive from the platform.
const (
	OrderTypePickup   = "pickup"
	OrderTypeDelivery = "delivery"
	OrderTypeDineIn   = "dine_in"
)

// statusRank orders the forward lifecycle. Cancelled is deliberately absent:
// it is reachable from any non-terminal status but never by AdvanceStatus.
var statusRank = map[string]int{
	StatusNew:        0,
	StatusKitchen:    1,
	StatusPreparing:  2,
	StatusReady:      3,
	StatusDelivering: 4,
	StatusCompleted:  5,
}

// RemoteAddon is a modifier attached to a remote line item (name plus price).
type RemoteAddon struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

// RemoteOrderItem is one line item of a remote order as it arrives from a
// channel. Prices are carried as raw text because the three channels deliver
// them in channel-specific shapes; normalization happens at ingestion.
type RemoteOrderItem struct {
	Name     string        `json:"name"`
	Quantity int           `json:"quantity"`
	Price    string        `json:"price"`
	Addons   []RemoteAddon `json:"selectedAddons,omitempty"`
}

// RemoteOrder is the channel-neutral representation of an order discovered on
// the platform. It is immutable once received; each channel reconstructs one
// from its own wire shape and hands it to the ingestion gate.
type RemoteOrder struct {
	OrderID         string            `json:"id"`
	DisplayNumber   string            `json:"orderNumber"`
	CustomerName    string            `json:"customerName"`
	CustomerPhone   string            `json:"customerPhone"`
	CustomerAddress string            `json:"customerAddress"`
	OrderType       string            `json:"orderType"`
	PaymentMethod   string            `json:"paymentMethod"`
	PaymentStatus   string            `json:"paymentStatus"`
	VoucherCode     string            `json:"voucherCode,omitempty"`
	Subtotal        string            `json:"subtotal"`
	Tax             string            `json:"tax"`
	DeliveryFee     string            `json:"deliveryFee"`
	Total           string            `json:"total"`
	Instructions    string            `json:"instructions,omitempty"`
	ScheduledAt     *time.Time        `json:"scheduledAt,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	Items           []RemoteOrderItem `json:"items"`
}

// OrderModifier is a normalized line-item modifier on a local order.
type OrderModifier struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// LocalOrderItem is a normalized line item persisted with a local order.
type LocalOrderItem struct {
	ID        int64           `json:"-"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Modifiers []OrderModifier `json:"modifiers,omitempty"`
}

// LocalOrder is the point-of-sale record an ingested remote order becomes.
// RemoteOrderID is unique across all local orders; that column is what makes
// the three discovery channels safely redundant.
type LocalOrder struct {
	ID              int64            `json:"-"`
	OrderID         string           `json:"order_id"`
	RemoteOrderID   string           `json:"remote_order_id"`
	DisplayNumber   string           `json:"display_number"`
	CustomerName    string           `json:"customer_name"`
	CustomerPhone   string           `json:"customer_phone,omitempty"`
	CustomerAddress string           `json:"customer_address,omitempty"`
	OrderType       string           `json:"order_type"`
	PaymentMethod   string           `json:"payment_method"`
	PaymentStatus   string           `json:"payment_status"`
	SubtotalAmount  decimal.Decimal  `json:"subtotal_amount"`
	TaxAmount       decimal.Decimal  `json:"tax_amount"`
	DeliveryFee     decimal.Decimal  `json:"delivery_fee"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	Instructions    string           `json:"instructions,omitempty"`
	ScheduledFor    *time.Time       `json:"scheduled_for,omitempty"`
	Status          string           `json:"status"`
	SyncStatus      string           `json:"sync_status"`
	CreatedAt       time.Time        `json:"created_at"`
	KitchenAt       *time.Time       `json:"kitchen_at,omitempty"`
	PreparingAt     *time.Time       `json:"preparing_at,omitempty"`
	ReadyAt         *time.Time       `json:"ready_at,omitempty"`
	DeliveringAt    *time.Time       `json:"delivering_at,omitempty"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	CancelledAt     *time.Time       `json:"cancelled_at,omitempty"`
	Items           []LocalOrderItem `json:"items,omitempty"`
}

// NextStatus returns the status that follows the order's current one.
// Delivery orders pass through Delivering; pickup and dine-in go straight
// from Ready to Completed.
func (o *LocalOrder) NextStatus() (string, error) {
	rank, ok := statusRank[o.Status]
	if !ok {
		return "", fmt.Errorf("order %s is in terminal status %s", o.OrderID, o.Status)
	}
	switch {
	case o.Status == StatusCompleted:
		return "", fmt.Errorf("order %s is already completed", o.OrderID)
	case o.Status == StatusReady && o.OrderType != OrderTypeDelivery:
		return StatusCompleted, nil
	default:
		for status, r := range statusRank {
			if r == rank+1 {
				return status, nil
			}
		}
	}
	return "", fmt.Errorf("order %s has no status after %s", o.OrderID, o.Status)
}

// CanTransition reports whether moving from the order's current status to the
// target is a legal forward move. Backward moves are never legal;
// cancellation is legal from any non-terminal status.
func (o *LocalOrder) CanTransition(target string) bool {
	if o.Status == StatusCancelled || o.Status == StatusCompleted {
		return false
	}
	if target == StatusCancelled {
		return true
	}
	from, okFrom := statusRank[o.Status]
	to, okTo := statusRank[target]
	if !okFrom || !okTo {
		return false
	}
	return to > from
}

// IsTerminal reports whether the order can no longer change state.
func (o *LocalOrder) IsTerminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusCancelled
}
