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
	"sync"

	"github.com/sirupsen/logrus"
)

// Event names emitted to the host application.
const (
	EventOrdersUpdated     = "orders.updated"
	EventOrderReceived     = "order.received"
	EventPrintJobCompleted = "print_job.completed"
	EventPrintJobDead      = "print_job.dead_lettered"
	EventConnectionSwitch  = "connection.switched"
	EventConnectionOffline = "connection.offline"
)

// Event is a notification pushed to the host application. It carries an event
// name and the payload associated with it.
type Event struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"data"`
}

// EventListener receives events published by the relay. Listeners must not
// block; slow listeners drop events rather than stall the pipeline.
type EventListener func(Event)

// EventBus fans relay events out to registered listeners. Delivery is
// best-effort and ordered per listener.
type EventBus struct {
	mu        sync.RWMutex
	listeners []chan Event
	closed    bool
}

const listenerBuffer = 64

// NewEventBus creates an empty event bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers a listener and starts delivering events to it on a
// dedicated goroutine.
func (b *EventBus) Subscribe(fn EventListener) {
	ch := make(chan Event, listenerBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return
	}
	b.listeners = append(b.listeners, ch)
	b.mu.Unlock()

	go func() {
		for evt := range ch {
			fn(evt)
		}
	}()
}

// Publish delivers the event to every listener. A listener whose buffer is
// full misses the event.
func (b *EventBus) Publish(event string, payload interface{}) {
	evt := Event{Event: event, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.listeners {
		select {
		case ch <- evt:
		default:
			logrus.Warnf("event bus: listener buffer full, dropping %s", event)
		}
	}
}

// Close stops delivery and releases listener goroutines.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.listeners {
		close(ch)
	}
	b.listeners = nil
}
