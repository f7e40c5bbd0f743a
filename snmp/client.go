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
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Client is a connection-oriented SNMP client: it owns a UDP socket,
// a background reader, and correlates requests to responses by
// request-id. For v1/v2c it speaks Message; for v3 it speaks
// V3Message over the same socket, driving USM engine discovery,
// authentication and privacy through target.go/usm.go.
type Client struct {
	opts   *ClientOptions
	conn   net.Conn
	state  atomic.Int32
	mu     sync.RWMutex
	wg     sync.WaitGroup
	done   chan struct{}
	metrics *Metrics
	logger *slog.Logger

	target *SecureTargetParams

	requestID     int32
	requestIDLock sync.Mutex
	msgID         int32

	pending     map[int32]chan []byte
	pendingLock sync.RWMutex
}

// NewClient creates a new SNMP client from functional options.
func NewClient(opts ...Option) *Client {
	options := NewClientOptions()
	for _, opt := range opts {
		opt(options)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		opts:      options,
		done:      make(chan struct{}),
		metrics:   NewMetrics(options.MetricsRegisterer),
		logger:    logger,
		pending:   make(map[int32]chan []byte),
		requestID: rand.Int31(),
		msgID:     rand.Int31(),
	}

	if options.Version == Version3 {
		target := NewSecureTargetParams(options.SecurityName, options.SecurityLevel)
		target.AuthProtocol = options.AuthProtocol
		target.AuthPassphrase = options.AuthPassphrase
		target.PrivProtocol = options.PrivProtocol
		target.PrivPassphrase = options.PrivPassphrase
		target.ContextName = options.ContextName
		target.ContextEngineID = []byte(options.ContextEngineID)
		c.target = target
	}

	return c
}

// Connect establishes a connection to the SNMP agent, performing USM
// engine discovery first when running SNMPv3.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	if c.opts.Target == "" {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("snmp: no target configured")
	}

	c.metrics.ConnectionAttempts.Inc()

	addr := fmt.Sprintf("%s:%d", c.opts.Target, c.opts.Port)

	dialer := net.Dialer{Timeout: c.opts.Timeout}
	conn, err := dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("snmp: connection failed: %w", err)
	}

	c.conn = conn
	c.done = make(chan struct{})

	c.wg.Add(1)
	go c.readLoop()

	if c.opts.Version == Version3 {
		if err := c.target.Validate(); err != nil {
			c.Disconnect(ctx)
			return err
		}
		if err := c.discoverEngine(ctx); err != nil {
			c.Disconnect(ctx)
			return err
		}
	}

	c.state.Store(int32(StateConnected))
	c.metrics.ActiveConnections.Inc()

	if c.opts.OnConnect != nil {
		go c.opts.OnConnect(c)
	}

	c.logger.Info("connected to SNMP agent", "target", addr, "version", c.opts.Version)

	return nil
}

func (c *Client) discoverEngine(ctx context.Context) error {
	t := c.connTransport()
	return discoverEngine(ctx, t, c.target, c.nextMsgID(), c.nextRequestID())
}

// connTransport wraps the already-connected net.Conn as a packetConn
// for the one-shot discovery round trip, without taking ownership of
// closing it (the Client owns the socket's lifetime: connPacketConn's
// Close is a no-op).
func (c *Client) connTransport() *Transport {
	pc := &connPacketConn{Conn: c.conn, remote: c.conn.RemoteAddr()}
	return NewTransport(pc, c.conn.RemoteAddr(), c.opts.Timeout, c.opts.Retries, false, c.logger)
}

// connPacketConn adapts a connected net.Conn to the packetConn
// interface Transport expects, since net.Conn.Write/Read don't take an
// explicit address.
type connPacketConn struct {
	net.Conn
	remote net.Addr
}

func (p *connPacketConn) WriteTo(b []byte, _ net.Addr) (int, error) { return p.Conn.Write(b) }
func (p *connPacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, err := p.Conn.Read(b)
	return n, p.remote, err
}
func (p *connPacketConn) Close() error { return nil }

// Disconnect closes the connection and fails any pending requests.
func (c *Client) Disconnect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnecting)) &&
		!c.state.CompareAndSwap(int32(StateConnecting), int32(StateDisconnecting)) {
		return ErrNotConnected
	}

	c.state.Store(int32(StateDisconnected))
	c.metrics.ActiveConnections.Dec()

	close(c.done)
	c.wg.Wait()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	c.failPending(ErrClientClosed)

	c.logger.Info("disconnected from SNMP agent")
	return nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	buf := make([]byte, 65535)
	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.conn.SetReadDeadline(time.Now().Add(c.opts.Timeout * 2))

		n, err := c.conn.Read(buf)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				c.handleConnectionLost(err)
				return
			}
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		requestID, err := peekRequestID(c.opts.Version, data)
		if err != nil {
			c.logger.Warn("failed to decode response", "error", err)
			c.metrics.Errors.WithLabelValues("decode").Inc()
			continue
		}

		c.pendingLock.RLock()
		ch, ok := c.pending[requestID]
		c.pendingLock.RUnlock()

		if ok {
			select {
			case ch <- data:
			default:
			}
		}
	}
}

// peekRequestID decodes just enough of a response to learn its
// request-id for correlation, without fully processing v3 security.
func peekRequestID(version SNMPVersion, data []byte) (int32, error) {
	if version == Version3 {
		m, err := DecodeV3Message(data)
		if err != nil {
			return 0, err
		}
		if m.PDU != nil {
			return m.PDU.RequestID, nil
		}
		// Encrypted PDU: request-id isn't visible until decrypted;
		// route by msgID instead, which encodeRequest sets equal to the
		// request-id.
		return m.MsgID, nil
	}
	msg, err := DecodeMessage(data)
	if err != nil {
		return 0, err
	}
	return msg.PDU.RequestID, nil
}

func (c *Client) handleConnectionLost(err error) {
	if !c.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected)) {
		return
	}

	c.metrics.ActiveConnections.Dec()
	close(c.done)

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	c.logger.Info("connection lost", "error", err)

	if c.opts.OnConnectionLost != nil {
		go c.opts.OnConnectionLost(c, err)
	}

	c.failPending(err)

	if c.opts.AutoReconnect {
		go c.reconnect()
	}
}

func (c *Client) failPending(_ error) {
	c.pendingLock.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingLock.Unlock()
}

func (c *Client) reconnect() {
	backoff := c.opts.ConnectRetryInterval
	retries := 0

	for {
		if c.opts.OnReconnecting != nil {
			c.opts.OnReconnecting(c, c.opts)
		}

		c.metrics.ReconnectAttempts.Inc()

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
		err := c.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		c.logger.Warn("reconnection failed", "error", err, "retry_in", backoff)

		retries++
		if c.opts.MaxRetries > 0 && retries >= c.opts.MaxRetries {
			c.logger.Error("max reconnection attempts reached")
			return
		}

		time.Sleep(backoff)

		backoff = time.Duration(float64(backoff) * (1.5 + rand.Float64()*0.5))
		if backoff > c.opts.MaxReconnectInterval {
			backoff = c.opts.MaxReconnectInterval
		}
	}
}

func (c *Client) nextRequestID() int32 {
	c.requestIDLock.Lock()
	defer c.requestIDLock.Unlock()

	c.requestID++
	if c.requestID <= 0 {
		c.requestID = 1
	}
	return c.requestID
}

func (c *Client) nextMsgID() int32 {
	c.requestIDLock.Lock()
	defer c.requestIDLock.Unlock()

	c.msgID++
	if c.msgID <= 0 {
		c.msgID = 1
	}
	return c.msgID
}

// sendRequest encodes pdu per the client's configured version,
// transmits it with retry-on-timeout, and returns the decoded response
// PDU or the SNMPError it carries.
func (c *Client) sendRequest(ctx context.Context, pdu *PDU) (*PDU, error) {
	if c.State() != StateConnected {
		return nil, ErrNotConnected
	}

	respCh := make(chan []byte, 1)
	correlationKey := pdu.RequestID

	c.pendingLock.Lock()
	c.pending[correlationKey] = respCh
	c.pendingLock.Unlock()

	defer func() {
		c.pendingLock.Lock()
		delete(c.pending, correlationKey)
		c.pendingLock.Unlock()
	}()

	data, err := c.encodeRequest(pdu)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	if peerMax := c.peerMaxMessageSize(); peerMax > 0 && len(data) > peerMax {
		return nil, fmt.Errorf("%w: encoded request is %d bytes, agent's max is %d", ErrMaximumMessageSizeExceeded, len(data), peerMax)
	}

	var lastErr error
	for retry := 0; retry <= c.opts.Retries; retry++ {
		if retry > 0 {
			c.metrics.Retries.Inc()
			c.logger.Debug("retrying request", "retry", retry, "request_id", pdu.RequestID)
		}

		start := time.Now()

		c.conn.SetWriteDeadline(time.Now().Add(c.opts.Timeout))
		if _, err := c.conn.Write(data); err != nil {
			lastErr = fmt.Errorf("write failed: %w", err)
			continue
		}

		c.metrics.RequestsSent.WithLabelValues(pdu.Type.String()).Inc()
		c.metrics.VarbindsSent.Add(float64(len(pdu.Variables)))

		select {
		case raw, ok := <-respCh:
			if !ok {
				return nil, ErrClientClosed
			}
			c.metrics.ResponsesReceived.Inc()

			resp, err := c.decodeResponse(raw, pdu)
			if err != nil {
				lastErr = err
				continue
			}

			c.metrics.RequestLatency.Observe(time.Since(start).Seconds())
			c.metrics.VarbindsReceived.Add(float64(len(resp.Variables)))

			status, statusErr := resp.ErrorStatus()
			if statusErr == nil && status != NoError {
				index, _ := resp.ErrorIndex()
				var oid OID
				if index > 0 && index <= len(pdu.Variables) {
					oid = pdu.Variables[index-1].OID
				}
				return resp, NewSNMPError(status, index, oid)
			}

			return resp, nil

		case <-time.After(c.opts.Timeout):
			lastErr = ErrTimeout
			c.metrics.Timeouts.Inc()

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// peerMaxMessageSize returns the agent's last-advertised msgMaxSize
// for SNMPv3, or 0 (no limit known/applicable) otherwise.
func (c *Client) peerMaxMessageSize() int {
	if c.opts.Version != Version3 || c.target == nil {
		return 0
	}
	return int(c.target.PeerMaxSize())
}

func (c *Client) encodeRequest(pdu *PDU) ([]byte, error) {
	if c.opts.Version == Version3 {
		// The msgID mirrors the request-id so that an encrypted reply,
		// which readLoop can only route by msgID, finds the pending slot
		// sendRequest registered under pdu.RequestID.
		m, err := buildV3Request(c.target, pdu.RequestID, pdu)
		if err != nil {
			return nil, err
		}
		return signAndEncode(c.target, m)
	}

	msg := &Message{
		Version:   c.opts.Version,
		Community: c.opts.Community,
		PDU:       pdu,
	}
	return msg.Encode()
}

// decodeResponse decodes raw into a PDU, verifies its request-id
// matches sentPDU's (the one the client actually sent), and rejects an
// unsolicited Report. A request-id mismatch means the datagram routed
// to this pending slot (by request-id, for v1/v2c, or by msgID for an
// encrypted v3 reply whose request-id was hidden until decryption)
// doesn't actually answer the outstanding request, and is rejected
// rather than handed to the caller.
func (c *Client) decodeResponse(raw []byte, sentPDU *PDU) (*PDU, error) {
	wantRequestID := sentPDU.RequestID

	if c.opts.Version == Version3 {
		m, err := DecodeV3Message(raw)
		if err != nil {
			return nil, err
		}
		if err := authenticateResponse(c.target, raw, m); err != nil {
			return nil, err
		}
		if m.Flags&V3FlagPriv != 0 {
			c.target.mu.Lock()
			privKey := c.target.localPrivKey
			c.target.mu.Unlock()
			if err := m.DecryptScopedPDU(c.target.PrivProtocol, privKey); err != nil {
				return nil, err
			}
		}
		if m.PDU != nil && m.PDU.Type == PDUReport && !reportableForPDUType(sentPDU.Type) {
			return nil, ErrReportOnNoReports
		}
		if m.PDU == nil || m.PDU.RequestID != wantRequestID {
			return nil, ErrRequestIDMismatch
		}
		return m.PDU, nil
	}

	msg, err := DecodeMessage(raw)
	if err != nil {
		return nil, err
	}
	if msg.PDU == nil || msg.PDU.RequestID != wantRequestID {
		return nil, ErrRequestIDMismatch
	}
	return msg.PDU, nil
}

// Get performs an SNMP GET request.
func (c *Client) Get(ctx context.Context, oids ...OID) ([]Variable, error) {
	c.metrics.GetRequests.Inc()

	pdu := NewGetRequest(c.nextRequestID(), oids...)
	resp, err := c.sendRequest(ctx, pdu)
	if err != nil {
		c.metrics.Errors.WithLabelValues("get").Inc()
		return nil, err
	}

	return resp.Variables, nil
}

// GetNext performs an SNMP GET-NEXT request.
func (c *Client) GetNext(ctx context.Context, oids ...OID) ([]Variable, error) {
	c.metrics.GetNextRequests.Inc()

	pdu := NewGetNextRequest(c.nextRequestID(), oids...)
	resp, err := c.sendRequest(ctx, pdu)
	if err != nil {
		c.metrics.Errors.WithLabelValues("getnext").Inc()
		return nil, err
	}

	return resp.Variables, nil
}

// GetBulk performs an SNMP GET-BULK request (v2c/v3 only).
func (c *Client) GetBulk(ctx context.Context, nonRepeaters, maxRepetitions int, oids ...OID) ([]Variable, error) {
	if c.opts.Version == Version1 {
		return nil, fmt.Errorf("snmp: GetBulk not supported in SNMPv1")
	}

	c.metrics.GetBulkRequests.Inc()

	pdu := NewGetBulkRequest(c.nextRequestID(), nonRepeaters, maxRepetitions, oids...)
	resp, err := c.sendRequest(ctx, pdu)
	if err != nil {
		c.metrics.Errors.WithLabelValues("getbulk").Inc()
		return nil, err
	}

	return resp.Variables, nil
}

// Set performs an SNMP SET request.
func (c *Client) Set(ctx context.Context, variables ...Variable) ([]Variable, error) {
	c.metrics.SetRequests.Inc()

	pdu := NewSetRequest(c.nextRequestID(), variables...)
	resp, err := c.sendRequest(ctx, pdu)
	if err != nil {
		c.metrics.Errors.WithLabelValues("set").Inc()
		return nil, err
	}

	return resp.Variables, nil
}

// Walk performs an SNMP walk starting from the given OID, using
// GetNext for v1 and GetBulk for v2c/v3.
func (c *Client) Walk(ctx context.Context, rootOID OID) ([]Variable, error) {
	var results []Variable
	err := c.WalkFunc(ctx, rootOID, func(v Variable) error {
		results = append(results, v)
		return nil
	})
	return results, err
}

// WalkFunc walks the MIB tree rooted at rootOID and calls fn for each
// variable in order, stopping at the first variable outside the
// subtree or at an end-of-MIB marker.
func (c *Client) WalkFunc(ctx context.Context, rootOID OID, fn func(Variable) error) error {
	c.metrics.WalkRequests.Inc()

	currentOID := rootOID.Copy()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var vars []Variable
		var err error

		if c.opts.Version == Version1 {
			vars, err = c.GetNext(ctx, currentOID)
		} else {
			vars, err = c.GetBulk(ctx, c.opts.NonRepeaters, c.opts.MaxRepetitions, currentOID)
		}

		if err != nil {
			if IsEndOfMIB(err) || IsNoSuchObject(err) || IsNoSuchInstance(err) {
				return nil
			}
			var snmpErr *SNMPError
			if errors.As(err, &snmpErr) && snmpErr.Status == NoSuchName {
				// v1 has no exception varbind markers; an agent signals
				// the end of the tree (or a missing next object) with
				// a noSuchName error-status on the whole response.
				return nil
			}
			c.metrics.Errors.WithLabelValues("walk").Inc()
			return err
		}

		if len(vars) == 0 {
			return nil
		}

		for _, v := range vars {
			if !v.OID.HasPrefix(rootOID) {
				return nil
			}
			if v.IsException() {
				return nil
			}
			if err := fn(v); err != nil {
				return err
			}
			currentOID = v.OID
		}
	}
}

// State returns the current connection state.
func (c *Client) State() ConnectionState { return ConnectionState(c.state.Load()) }

// IsConnected returns true if connected.
func (c *Client) IsConnected() bool { return c.State() == StateConnected }

// Metrics returns the client metrics.
func (c *Client) Metrics() *Metrics { return c.metrics }

// Options returns the client options.
func (c *Client) Options() *ClientOptions { return c.opts }
