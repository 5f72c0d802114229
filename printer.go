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
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/tablelink/relay/config"
)

// Printer delivery errors. ErrPrinterUnreachable means the device could not
// be reached at all; ErrPrintRejected means it accepted the connection but
// refused or truncated the job. Both are retryable, but they are reported
// differently in failure reasons.
var (
	ErrPrinterUnreachable = errors.New("printer unreachable")
	ErrPrintRejected      = errors.New("printer rejected job")
	ErrPrinterUnknown     = errors.New("printer not configured")
)

const (
	printerDialTimeout  = 3 * time.Second
	printerWriteTimeout = 5 * time.Second
)

// PrinterTransport delivers rendered bytes to one physical printer.
type PrinterTransport interface {
	Print(ctx context.Context, payload []byte) error
}

// TCPPrinter writes raw bytes to a network printer over a plain TCP socket,
// the protocol thermal receipt printers speak on port 9100.
type TCPPrinter struct {
	Address string
}

// Print dials the printer and writes the payload. The context deadline, if
// earlier than the transport's own timeouts, wins.
func (p *TCPPrinter) Print(ctx context.Context, payload []byte) error {
	dialer := net.Dialer{Timeout: printerDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return errors.Wrapf(ErrPrinterUnreachable, "dial %s: %v", p.Address, err)
	}
	defer func() {
		_ = conn.Close()
	}()

	deadline := time.Now().Add(printerWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return errors.Wrap(err, "setting printer write deadline")
	}

	n, err := conn.Write(payload)
	if err != nil {
		return errors.Wrapf(ErrPrintRejected, "write to %s: %v", p.Address, err)
	}
	if n < len(payload) {
		return errors.Wrapf(ErrPrintRejected, "short write to %s: %d of %d bytes", p.Address, n, len(payload))
	}
	return nil
}

// PrinterPool resolves printer IDs to transports based on the configured
// printer list. Disabled printers are absent from the pool.
type PrinterPool struct {
	printers map[string]PrinterTransport
	kinds    map[string]string
}

// NewPrinterPool builds a pool from configuration.
func NewPrinterPool(conf *config.Configuration) *PrinterPool {
	pool := &PrinterPool{
		printers: make(map[string]PrinterTransport),
		kinds:    make(map[string]string),
	}
	for _, p := range conf.Printing.Printers {
		if !p.Enabled || p.PrinterID == "" {
			continue
		}
		pool.printers[p.PrinterID] = &TCPPrinter{Address: p.Address}
		pool.kinds[p.PrinterID] = p.Kind
	}
	return pool
}

// Get returns the transport for a printer ID.
func (pp *PrinterPool) Get(printerID string) (PrinterTransport, error) {
	t, ok := pp.printers[printerID]
	if !ok {
		return nil, errors.Wrapf(ErrPrinterUnknown, "printer %s", printerID)
	}
	return t, nil
}

// IDs lists the enabled printer IDs.
func (pp *PrinterPool) IDs() []string {
	ids := make([]string, 0, len(pp.printers))
	for id := range pp.printers {
		ids = append(ids, id)
	}
	return ids
}

// IDsByKind lists enabled printers of the given kind.
func (pp *PrinterPool) IDsByKind(kind string) []string {
	var ids []string
	for id, k := range pp.kinds {
		if k == kind {
			ids = append(ids, id)
		}
	}
	return ids
}

// Set replaces the transport for a printer ID. Used by tests to substitute a
// fake transport.
func (pp *PrinterPool) Set(printerID, kind string, t PrinterTransport) {
	pp.printers[printerID] = t
	pp.kinds[printerID] = kind
}
