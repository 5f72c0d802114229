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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tablelink/relay/internal/apierror"
	"github.com/tablelink/relay/model"
)

// GetOrder fetches one local order with its line items.
func (r *Relay) GetOrder(ctx context.Context, orderID string) (*model.LocalOrder, error) {
	return r.datasource.GetOrderByID(ctx, orderID)
}

// ListOrders lists local orders, newest first.
func (r *Relay) ListOrders(ctx context.Context, limit, offset int) ([]*model.LocalOrder, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return r.datasource.GetOrders(ctx, limit, offset)
}

// AdvanceOrder moves an order one step forward along its lifecycle and
// returns the refreshed record. Delivery orders pass through the delivering
// step; pickup and dine-in skip it.
func (r *Relay) AdvanceOrder(ctx context.Context, orderID string) (*model.LocalOrder, error) {
	order, err := r.datasource.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	next, err := order.NextStatus()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, err.Error(), nil)
	}
	return r.transition(ctx, order, next)
}

// TransitionOrder moves an order to an explicit target status. Only forward
// moves and cancellation are legal.
func (r *Relay) TransitionOrder(ctx context.Context, orderID, target string) (*model.LocalOrder, error) {
	order, err := r.datasource.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !order.CanTransition(target) {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest,
			"illegal status transition", map[string]string{
				"order_id": orderID,
				"from":     order.Status,
				"to":       target,
			})
	}
	return r.transition(ctx, order, target)
}

// CancelOrder cancels a non-terminal order.
func (r *Relay) CancelOrder(ctx context.Context, orderID string) (*model.LocalOrder, error) {
	return r.TransitionOrder(ctx, orderID, model.StatusCancelled)
}

func (r *Relay) transition(ctx context.Context, order *model.LocalOrder, target string) (*model.LocalOrder, error) {
	if err := r.datasource.UpdateOrderStatus(ctx, order.OrderID, target, time.Now()); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"order_id": order.OrderID,
		"from":     order.Status,
		"to":       target,
	}).Info("order status changed")

	r.bus.Publish(EventOrdersUpdated, map[string]string{
		"order_id": order.OrderID,
		"status":   target,
	})

	return r.datasource.GetOrderByID(ctx, order.OrderID)
}
