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
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tablelink/relay/config"
	"github.com/tablelink/relay/model"
)

// Push message kinds delivered over the platform's websocket.
const (
	pushNewOrder     = "new_order"
	pushOrderUpdated = "order_updated"
	pushGiftCard     = "gift_card_updated"
	pushLoyalty      = "loyalty_updated"
	pushConnected    = "connected"
	pushPing         = "ping"
	pushPong         = "pong"
)

// ErrPushDisconnected is reported by the push transport's health probe while
// the websocket is down.
var ErrPushDisconnected = errors.New("push channel disconnected")

const (
	pushKeepAlive    = 30 * time.Second
	pushReadTimeout  = 90 * time.Second
	pushWriteTimeout = 10 * time.Second
	pushDialTimeout  = 10 * time.Second
)

// pushReconnectSteps is the reconnect delay ladder. The last step repeats
// forever.
var pushReconnectSteps = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// reconnectLadder walks pushReconnectSteps, holding at the cap until reset.
type reconnectLadder struct {
	idx int
}

func (l *reconnectLadder) next() time.Duration {
	d := pushReconnectSteps[l.idx]
	if l.idx < len(pushReconnectSteps)-1 {
		l.idx++
	}
	return d
}

func (l *reconnectLadder) reset() {
	l.idx = 0
}

// pushEnvelope is the tagged-union frame every push message arrives in.
type pushEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ingester is the slice of the ingestion gate the channels need.
type ingester interface {
	Ingest(ctx context.Context, remote *model.RemoteOrder, source model.TransportType) (IngestResult, *model.LocalOrder, error)
}

// PushChannel holds a websocket open to the platform and ingests orders the
// moment they are pushed. It is the fastest of the three discovery channels
// and the least reliable: any drop is covered by polling and tailing, so the
// channel's only job after a disconnect is to get back on as soon as the
// platform allows.
type PushChannel struct {
	gate ingester
	bus  *EventBus

	writeMu   sync.Mutex
	connMu    sync.RWMutex
	conn      *websocket.Conn
	connected bool
}

// NewPushChannel builds the channel.
func NewPushChannel(gate ingester, bus *EventBus) *PushChannel {
	return &PushChannel{gate: gate, bus: bus}
}

// Run connects and re-connects until the context is cancelled. Reconnects
// back off 5s, 10s, 30s, then 60s forever; the ladder drops back to 5s as
// soon as a dial succeeds, so a drop after a long healthy session reconnects
// immediately rather than at the cap.
func (p *PushChannel) Run(ctx context.Context) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if !conf.Platform.PushEnabled || conf.Platform.PushURL == "" {
		logrus.Info("push channel disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	var ladder reconnectLadder

	for {
		err := p.session(ctx, conf, ladder.reset)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := ladder.next()
		logrus.Warnf("push session ended: %v (reconnecting in %s)", err, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// session runs one connect-read-until-failure cycle. onConnect fires after a
// successful dial.
func (p *PushChannel) session(ctx context.Context, conf *config.Configuration, onConnect func()) error {
	u, err := url.Parse(conf.Platform.PushURL)
	if err != nil {
		return errors.Wrap(err, "parsing push url")
	}
	q := u.Query()
	q.Set("tenant", conf.Platform.TenantSlug)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("X-Api-Key", conf.Platform.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: pushDialTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return errors.Wrap(err, "dialing push endpoint")
	}

	p.setConn(conn, true)
	defer func() {
		p.setConn(nil, false)
		_ = conn.Close()
	}()

	if onConnect != nil {
		onConnect()
	}
	logrus.Info("push channel connected")

	// Keep-alive writer.
	keepAliveCtx, stopKeepAlive := context.WithCancel(ctx)
	defer stopKeepAlive()
	go p.keepAlive(keepAliveCtx)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(pushReadTimeout)); err != nil {
			return err
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "reading push frame")
		}
		p.handleFrame(ctx, raw)
	}
}

// handleFrame dispatches one envelope. A frame the relay does not understand
// is logged and dropped; new platform message kinds must never kill the
// session.
func (p *PushChannel) handleFrame(ctx context.Context, raw []byte) {
	var envelope pushEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		logrus.Warnf("push: undecodable frame: %v", err)
		return
	}

	switch envelope.Type {
	case pushNewOrder:
		var remote model.RemoteOrder
		if err := json.Unmarshal(envelope.Data, &remote); err != nil {
			logrus.Warnf("push: undecodable order payload: %v", err)
			return
		}
		if _, _, err := p.gate.Ingest(ctx, &remote, model.TransportExternal); err != nil {
			logrus.Errorf("push: ingesting order %s: %v", remote.OrderID, err)
		}
	case pushOrderUpdated:
		p.bus.Publish(EventOrdersUpdated, envelope.Data)
	case pushGiftCard, pushLoyalty:
		// Not point-of-sale concerns; surface to the host app untouched.
		p.bus.Publish(envelope.Type, envelope.Data)
	case pushConnected:
		logrus.Debug("push: server confirmed connection")
	case pushPing:
		p.send(pushEnvelope{Type: pushPong})
	case pushPong:
		// Keep-alive answered.
	default:
		logrus.Debugf("push: ignoring frame type %q", envelope.Type)
	}
}

// keepAlive pings the server on a timer so intermediaries keep the socket
// open.
func (p *PushChannel) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pushKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.send(pushEnvelope{Type: pushPing})
		}
	}
}

// send writes one frame. Writes from the keep-alive timer and the read loop
// are serialized here; gorilla allows only one concurrent writer.
func (p *PushChannel) send(envelope pushEnvelope) {
	p.connMu.RLock()
	conn := p.conn
	p.connMu.RUnlock()
	if conn == nil {
		return
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(pushWriteTimeout))
	if err := conn.WriteJSON(envelope); err != nil {
		logrus.Warnf("push: writing %s frame: %v", envelope.Type, err)
	}
}

func (p *PushChannel) setConn(conn *websocket.Conn, connected bool) {
	p.connMu.Lock()
	p.conn = conn
	p.connected = connected
	p.connMu.Unlock()
}

// Connected reports whether the websocket is currently up.
func (p *PushChannel) Connected() bool {
	p.connMu.RLock()
	defer p.connMu.RUnlock()
	return p.connected
}
