// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package snmp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// packetConn is the network surface Transport depends on, satisfied
// by *net.UDPConn in production and by a hand-rolled channel-driven
// fake in tests (see fakePacketConn in transport_test.go).
type packetConn interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
	ReadFrom(b []byte) (int, net.Addr, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Transport drives the request/response state machine over a single
// UDP socket: synchronous blocking requests with retry/timeout, and a
// single-slot asynchronous path for callback-driven use. It has no
// opinion about SNMP versions or PDU contents; its caller (Client's
// engine discovery) builds messages and hands Transport raw bytes.
type Transport struct {
	conn       packetConn
	remoteAddr net.Addr
	logger     *slog.Logger

	verifySource bool

	timeout time.Duration
	retries int

	busy      atomic.Bool
	attemptID atomic.Uint64

	mu      sync.Mutex
	asyncCh chan asyncResult
}

type asyncResult struct {
	attempt uint64
	data    []byte
	addr    net.Addr
	err     error
}

// NewTransport wraps an already-connected/bound packetConn.
// verifySource controls whether a received datagram's source address
// is checked against remoteAddr before being treated as a response
// (RFC-recommended for UDP, since anyone can spoof a reply).
func NewTransport(conn packetConn, remoteAddr net.Addr, timeout time.Duration, retries int, verifySource bool, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		conn:         conn,
		remoteAddr:   remoteAddr,
		logger:       logger,
		verifySource: verifySource,
		timeout:      timeout,
		retries:      retries,
	}
}

// roundTrip sends data and blocks for a single reply, retrying up to
// t.retries times on timeout. It does not interpret the payload; the
// caller decodes the returned bytes.
func (t *Transport) roundTrip(ctx context.Context, data []byte) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= t.retries; attempt++ {
		if attempt > 0 {
			t.logger.Debug("retrying request", "attempt", attempt)
		}

		if _, err := t.conn.WriteTo(data, t.remoteAddr); err != nil {
			lastErr = fmt.Errorf("snmp: write failed: %w", err)
			continue
		}

		resp, err := t.readOne(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if lastErr == nil {
		lastErr = ErrNoResponse
	}
	return nil, lastErr
}

// readOne reads datagrams until one passes source verification (or
// verification is disabled), the deadline elapses, or ctx is done.
func (t *Transport) readOne(ctx context.Context) ([]byte, error) {
	deadline := time.Now().Add(t.timeout)
	buf := make([]byte, 65535)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		t.conn.SetReadDeadline(deadline)
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			if isTimeoutErr(err) {
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("snmp: read failed: %w", err)
		}

		if t.verifySource && !sameHost(addr, t.remoteAddr) {
			t.logger.Warn("dropping datagram from unverified source", "from", addr, "expected", t.remoteAddr)
			continue
		}

		out := make([]byte, n)
		copy(out, buf[:n])
		return out, nil
	}
}

// SendAsync starts (or fails with ErrTransportBusy if one is already
// in flight) a single outstanding asynchronous request. The given
// callback fires exactly once, on its own goroutine, with the
// response bytes or an error. Only one request may be in flight per
// Transport at a time.
func (t *Transport) SendAsync(data []byte, cb func([]byte, error)) error {
	if !t.busy.CompareAndSwap(false, true) {
		return ErrTransportBusy
	}

	attempt := t.attemptID.Add(1)

	if _, err := t.conn.WriteTo(data, t.remoteAddr); err != nil {
		t.busy.Store(false)
		return fmt.Errorf("snmp: write failed: %w", err)
	}

	timer := time.AfterFunc(t.timeout, func() {
		t.finishAsync(attempt, nil, ErrTimeout, cb)
	})

	go func() {
		buf := make([]byte, 65535)
		for {
			t.conn.SetReadDeadline(time.Now().Add(t.timeout))
			n, addr, err := t.conn.ReadFrom(buf)
			if err != nil {
				if isTimeoutErr(err) {
					return
				}
				timer.Stop()
				t.finishAsync(attempt, nil, fmt.Errorf("snmp: read failed: %w", err), cb)
				return
			}

			if t.verifySource && !sameHost(addr, t.remoteAddr) {
				continue
			}

			out := make([]byte, n)
			copy(out, buf[:n])
			timer.Stop()
			t.finishAsync(attempt, out, nil, cb)
			return
		}
	}()

	return nil
}

// finishAsync discards results from a stale attempt (one whose timer
// fired after a later SendAsync call already reset the slot) and
// otherwise releases the busy slot and invokes cb exactly once.
func (t *Transport) finishAsync(attempt uint64, data []byte, err error, cb func([]byte, error)) {
	if t.attemptID.Load() != attempt {
		return
	}
	if !t.busy.CompareAndSwap(true, false) {
		return
	}
	cb(data, err)
}

// Close releases the underlying socket.
func (t *Transport) Close() error {
	return t.conn.Close()
}

func isTimeoutErr(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func sameHost(a, b net.Addr) bool {
	au, aok := a.(*net.UDPAddr)
	bu, bok := b.(*net.UDPAddr)
	if aok && bok {
		return au.IP.Equal(bu.IP) && au.Port == bu.Port
	}
	return a.String() == b.String()
}
