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
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/tablelink/relay/model"
)

// ConnectionOverride pins or unpins the active transport.
type ConnectionOverride struct {
	Transport string `json:"transport"`
}

func (o *ConnectionOverride) ValidateConnectionOverride() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.Transport, validation.Required, validation.In(
			string(model.TransportNone),
			string(model.TransportDatabase),
			string(model.TransportAPI),
			string(model.TransportExternal),
		)),
	)
}

// TestPrint requests a test page on one printer.
type TestPrint struct {
	PrinterID string `json:"printer_id"`
}

func (p *TestPrint) ValidateTestPrint() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.PrinterID, validation.Required),
	)
}

// TransitionOrder moves an order to an explicit status.
type TransitionOrder struct {
	Status string `json:"status"`
}

func (t *TransitionOrder) ValidateTransitionOrder() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Status, validation.Required, validation.In(
			model.StatusKitchen,
			model.StatusPreparing,
			model.StatusReady,
			model.StatusDelivering,
			model.StatusCompleted,
			model.StatusCancelled,
		)),
	)
}
