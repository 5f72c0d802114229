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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/tablelink/relay/config"
)

func TestHandleFrameIngestsNewOrder(t *testing.T) {
	gate := newStubGate()
	p := NewPushChannel(gate, NewEventBus())

	frame := []byte(`{"type":"new_order","data":{"id":"R-77","orderNumber":"77","items":[{"name":"Burger","quantity":1,"price":"11.00"}]}}`)
	p.handleFrame(context.Background(), frame)

	assert.Equal(t, []string{"R-77"}, gate.orders())
}

func TestHandleFrameToleratesUnknownTypes(t *testing.T) {
	gate := newStubGate()
	p := NewPushChannel(gate, NewEventBus())

	p.handleFrame(context.Background(), []byte(`{"type":"table_booked","data":{}}`))
	p.handleFrame(context.Background(), []byte(`not json at all`))
	p.handleFrame(context.Background(), []byte(`{"type":"ping"}`))

	assert.Empty(t, gate.orders())
}

func TestHandleFramePublishesOrderUpdates(t *testing.T) {
	bus := NewEventBus()
	events := make(chan Event, 1)
	bus.Subscribe(func(evt Event) {
		if evt.Event == EventOrdersUpdated {
			events <- evt
		}
	})

	p := NewPushChannel(newStubGate(), bus)
	p.handleFrame(context.Background(), []byte(`{"type":"order_updated","data":{"id":"R-5"}}`))

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("expected an orders-updated event")
	}
}

func TestPushSessionReceivesOrders(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var gotKey, gotTenant string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotTenant = r.URL.Query().Get("tenant")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(pushEnvelope{Type: pushConnected})
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"new_order","data":{"id":"R-88","orderNumber":"88","items":[{"name":"Ramen","quantity":2,"price":"13.00"}]}}`))

		// Give the client time to process before tearing the socket down.
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	config.MockConfig(&config.Configuration{
		Platform: config.PlatformConfig{
			APIKey:      "key-123",
			TenantSlug:  "testaurant",
			PushEnabled: true,
			PushURL:     "ws" + strings.TrimPrefix(server.URL, "http"),
		},
	})

	gate := newStubGate()
	p := NewPushChannel(gate, NewEventBus())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return len(gate.orders()) == 1
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("push loop did not stop on cancel")
	}

	assert.Equal(t, []string{"R-88"}, gate.orders())
	assert.Equal(t, "key-123", gotKey)
	assert.Equal(t, "testaurant", gotTenant)
}

func TestReconnectLadderClimbsAndHolds(t *testing.T) {
	var ladder reconnectLadder

	assert.Equal(t, 5*time.Second, ladder.next())
	assert.Equal(t, 10*time.Second, ladder.next())
	assert.Equal(t, 30*time.Second, ladder.next())
	assert.Equal(t, 60*time.Second, ladder.next())
	// The cap holds until a successful dial resets the ladder.
	assert.Equal(t, 60*time.Second, ladder.next())

	ladder.reset()
	assert.Equal(t, 5*time.Second, ladder.next())
}

func TestPushSessionResetsLadderOnConnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer server.Close()

	config.MockConfig(&config.Configuration{
		Platform: config.PlatformConfig{
			APIKey:      "key-123",
			TenantSlug:  "testaurant",
			PushEnabled: true,
			PushURL:     "ws" + strings.TrimPrefix(server.URL, "http"),
		},
	})

	p := NewPushChannel(newStubGate(), NewEventBus())

	var resets int
	conf, err := config.Fetch()
	assert.NoError(t, err)
	_ = p.session(context.Background(), conf, func() { resets++ })

	assert.Equal(t, 1, resets)
}

func TestPushStartsDisconnected(t *testing.T) {
	p := NewPushChannel(newStubGate(), NewEventBus())
	assert.False(t, p.Connected())
}
