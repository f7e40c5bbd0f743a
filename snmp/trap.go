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
	"net"
	"sync"
)

// TrapListener listens for SNMP traps and informs, decoding v1, v2c
// and v3 notifications and acknowledging v3 INFORMs with a Response.
// v2c INFORMs are passed to the handler but no Response is sent.
type TrapListener struct {
	opts    *TrapListenerOptions
	conn    *net.UDPConn
	handler TrapHandler
	logger  *slog.Logger
	done    chan struct{}
	wg      sync.WaitGroup
	metrics *Metrics

	usmMu    sync.Mutex
	usmCache map[string]*SecureTargetParams
}

// NewTrapListener creates a new trap listener.
func NewTrapListener(handler TrapHandler, opts ...TrapListenerOption) *TrapListener {
	options := NewTrapListenerOptions()
	for _, opt := range opts {
		opt(options)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TrapListener{
		opts:     options,
		handler:  handler,
		logger:   logger,
		done:     make(chan struct{}),
		metrics:  NewMetrics(options.MetricsRegisterer),
		usmCache: make(map[string]*SecureTargetParams),
	}
}

// Start starts listening for traps.
func (l *TrapListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.opts.Address)
	if err != nil {
		return err
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}

	l.conn = conn
	l.logger.Info("trap listener started", "address", l.opts.Address)

	l.wg.Add(1)
	go l.listen()

	return nil
}

// Stop stops the trap listener.
func (l *TrapListener) Stop() error {
	close(l.done)
	if l.conn != nil {
		l.conn.Close()
	}
	l.wg.Wait()
	l.logger.Info("trap listener stopped")
	return nil
}

func (l *TrapListener) listen() {
	defer l.wg.Done()

	buf := make([]byte, 65535)
	for {
		select {
		case <-l.done:
			return
		default:
		}

		n, remoteAddr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-l.done:
				return
			default:
				l.logger.Warn("error reading trap", "error", err)
				continue
			}
		}

		l.metrics.TrapsReceived.Inc()

		data := make([]byte, n)
		copy(data, buf[:n])

		trap, raw3, err := l.decodeTrap(data, remoteAddr)
		if err != nil {
			l.logger.Warn("failed to decode trap", "error", err, "source", remoteAddr)
			l.metrics.Errors.WithLabelValues("decode").Inc()
			continue
		}

		if trap.Version != Version3 && l.opts.Community != "" && trap.Community != l.opts.Community {
			l.logger.Warn("trap community mismatch",
				"expected", l.opts.Community,
				"received", trap.Community,
				"source", remoteAddr)
			continue
		}

		if trap.IsInform {
			if err := l.acknowledgeInform(raw3, remoteAddr); err != nil {
				l.logger.Warn("failed to acknowledge inform", "error", err, "source", remoteAddr)
				l.metrics.Errors.WithLabelValues("inform_ack").Inc()
			}
		}

		if l.handler != nil {
			go l.handler(trap)
		}
	}
}

// decodeTrap decodes data as a v1, v2c or v3 trap/inform. For v3
// notifications it also returns the decoded V3Message, since
// acknowledgeInform needs the inbound message's header/security
// parameters to build a Response.
func (l *TrapListener) decodeTrap(data []byte, remoteAddr *net.UDPAddr) (*TrapPDU, *V3Message, error) {
	msg, err := DecodeMessage(data)
	if err != nil {
		if errors.Is(err, ErrInvalidVersion) {
			return l.decodeV3Trap(data, remoteAddr)
		}
		trap, err := l.decodeV1Trap(data, remoteAddr)
		return trap, nil, err
	}

	trap := &TrapPDU{
		Version:       msg.Version,
		Community:     msg.Community,
		SourceAddress: remoteAddr.String(),
		IsInform:      msg.PDU.Type == PDUInformRequest,
	}

	if msg.PDU.Type == PDUTrapV2 || msg.PDU.Type == PDUInformRequest {
		l.fillNotification(trap, msg.PDU.Variables)
	}

	return trap, nil, nil
}

func (l *TrapListener) decodeV1Trap(data []byte, remoteAddr *net.UDPAddr) (*TrapPDU, error) {
	msg, err := DecodeTrapV1Message(data)
	if err != nil {
		return nil, err
	}

	var agentAddr string
	if len(msg.PDU.AgentAddress) == 4 {
		agentAddr = net.IP(msg.PDU.AgentAddress).String()
	}

	return &TrapPDU{
		Version:       msg.Version,
		Community:     msg.Community,
		Enterprise:    msg.PDU.Enterprise,
		AgentAddress:  agentAddr,
		GenericTrap:   msg.PDU.GenericTrap,
		SpecificTrap:  msg.PDU.SpecificTrap,
		Timestamp:     msg.PDU.Timestamp,
		Variables:     msg.PDU.Variables,
		SourceAddress: remoteAddr.String(),
	}, nil
}

func (l *TrapListener) decodeV3Trap(data []byte, remoteAddr *net.UDPAddr) (*TrapPDU, *V3Message, error) {
	m, err := DecodeV3Message(data)
	if err != nil {
		return nil, nil, err
	}

	target, err := l.usmTarget(m.SecParams.UserName, m.SecParams.AuthoritativeEngineID, m.SecParams.AuthoritativeEngineBoots, m.SecParams.AuthoritativeEngineTime)
	if err != nil {
		return nil, nil, err
	}

	if m.Flags&V3FlagAuth != 0 {
		if err := verifyDigest(target, data, m); err != nil {
			return nil, nil, err
		}
	}

	if m.Flags&V3FlagPriv != 0 {
		target.mu.Lock()
		privKey := target.localPrivKey
		target.mu.Unlock()
		if err := m.DecryptScopedPDU(target.PrivProtocol, privKey); err != nil {
			return nil, nil, err
		}
	}

	trap := &TrapPDU{
		Version:       Version3,
		SourceAddress: remoteAddr.String(),
		IsInform:      m.PDU.Type == PDUInformRequest,
		SecurityName:  m.SecParams.UserName,
	}
	l.fillNotification(trap, m.PDU.Variables)

	return trap, m, nil
}

func (l *TrapListener) fillNotification(trap *TrapPDU, vars []Variable) {
	for _, v := range vars {
		switch {
		case v.OID.Equal(OIDSysUpTime):
			if val, ok := v.Value.(uint32); ok {
				trap.Timestamp = val
			}
		case v.OID.Equal(OIDSnmpTrapOID):
			if oid, ok := v.Value.(OID); ok {
				trap.TrapObjectID = oid
			}
		}
	}
	trap.Variables = vars
}

// usmTarget returns (lazily localizing keys if not already cached) the
// SecureTargetParams for the given username/engine, matched against
// the listener's configured TrapUSMUsers.
func (l *TrapListener) usmTarget(username string, engineID []byte, boots, engineTime int32) (*SecureTargetParams, error) {
	key := string(engineID) + "\x00" + username

	l.usmMu.Lock()
	defer l.usmMu.Unlock()

	if t, ok := l.usmCache[key]; ok {
		if err := t.acceptEngineTime(boots, engineTime); err != nil {
			return nil, err
		}
		return t, nil
	}

	for _, u := range l.opts.Users {
		if u.SecurityName != username {
			continue
		}
		level := NoAuthNoPriv
		if u.AuthProtocol != NoAuth {
			level = AuthNoPriv
		}
		if u.PrivProtocol != NoPriv {
			level = AuthPriv
		}
		t := NewSecureTargetParams(username, level)
		t.AuthProtocol = u.AuthProtocol
		t.AuthPassphrase = u.AuthPassphrase
		t.PrivProtocol = u.PrivProtocol
		t.PrivPassphrase = u.PrivPassphrase
		if err := t.setEngine(engineID, boots, engineTime); err != nil {
			return nil, err
		}
		l.usmCache[key] = t
		return t, nil
	}

	return nil, ErrUnknownUserName
}

// acknowledgeInform sends a Response back to an INFORM's originator,
// copying msg id, request id, engine id/boots/time, security name,
// context and auth/priv selections from the inbound message, per the
// RFC 3412/3414 acknowledgement contract for INFORM-REQUEST.
func (l *TrapListener) acknowledgeInform(inbound *V3Message, remoteAddr *net.UDPAddr) error {
	if inbound == nil {
		// Only v3 informs are acknowledged; for a v1/v2c message
		// there is no V3Message and nothing is sent.
		return nil
	}

	respPDU := NewResponse(inbound.PDU.RequestID, NoError, 0, inbound.PDU.Variables...)

	resp := &V3Message{
		MsgID:           inbound.MsgID,
		MaxSize:         inbound.MaxSize,
		Flags:           inbound.Flags &^ V3FlagReportable,
		SecModel:        inbound.SecModel,
		ContextEngineID: inbound.ContextEngineID,
		ContextName:     inbound.ContextName,
		PDU:             respPDU,
		SecParams: UsmSecurityParameters{
			AuthoritativeEngineID:    inbound.SecParams.AuthoritativeEngineID,
			AuthoritativeEngineBoots: inbound.SecParams.AuthoritativeEngineBoots,
			AuthoritativeEngineTime:  inbound.SecParams.AuthoritativeEngineTime,
			UserName:                 inbound.SecParams.UserName,
		},
	}

	target, err := l.usmTarget(inbound.SecParams.UserName, inbound.SecParams.AuthoritativeEngineID, inbound.SecParams.AuthoritativeEngineBoots, inbound.SecParams.AuthoritativeEngineTime)
	if err != nil {
		return err
	}

	if resp.Flags&V3FlagPriv != 0 {
		target.mu.Lock()
		privKey := target.localPrivKey
		target.mu.Unlock()
		if err := resp.EncryptScopedPDU(target.PrivProtocol, privKey, target); err != nil {
			return err
		}
	}

	if resp.Flags&V3FlagAuth != 0 {
		resp.SecParams.AuthenticationParameters = make([]byte, usmAuthDigestLength)
	}

	data, err := signAndEncode(target, resp)
	if err != nil {
		return err
	}

	_, err = l.conn.WriteToUDP(data, remoteAddr)
	return err
}

// Metrics returns the listener metrics.
func (l *TrapListener) Metrics() *Metrics {
	return l.metrics
}

// Address returns the listen address.
func (l *TrapListener) Address() string {
	if l.conn != nil {
		return l.conn.LocalAddr().String()
	}
	return l.opts.Address
}

// TrapSender performs a one-shot, fire-and-forget encode-and-send of a
// trap or inform notification: no retry, no reply expected (INFORM's
// acknowledgement is handled by the recipient's TrapListener, not by
// the sender).
type TrapSender struct {
	conn *net.UDPConn
}

// NewTrapSender opens a UDP socket for sending notifications.
func NewTrapSender() (*TrapSender, error) {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, err
	}
	return &TrapSender{conn: conn}, nil
}

// Close releases the sender's socket.
func (s *TrapSender) Close() error {
	return s.conn.Close()
}

// SendTrapV1 sends an SNMPv1 Trap PDU to addr.
func (s *TrapSender) SendTrapV1(addr string, community string, version SNMPVersion, pdu *TrapV1PDU) error {
	msg := &TrapV1Message{Version: version, Community: community, PDU: pdu}
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	return s.sendTo(addr, data)
}

// SendTrapV2 sends an SNMPv2c V2Trap PDU to addr. pdu.Type must be
// PDUTrapV2.
func (s *TrapSender) SendTrapV2(addr string, community string, pdu *PDU) error {
	if pdu.Type != PDUTrapV2 {
		return fmt.Errorf("%w: SendTrapV2 requires a V2Trap PDU", ErrInvalidPduOperation)
	}
	msg := &Message{Version: Version2c, Community: community, PDU: pdu}
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	return s.sendTo(addr, data)
}

// SendInformV2 sends an SNMPv2c InformRequest PDU to addr. pdu.Type
// must be PDUInformRequest. Unlike SendTrapV2, the caller is expected
// to read the acknowledging Response off its own socket; this method
// only performs the send.
func (s *TrapSender) SendInformV2(addr string, community string, pdu *PDU) error {
	if pdu.Type != PDUInformRequest {
		return fmt.Errorf("%w: SendInformV2 requires an InformRequest PDU", ErrInvalidPduOperation)
	}
	msg := &Message{Version: Version2c, Community: community, PDU: pdu}
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	return s.sendTo(addr, data)
}

// SendTrapV3 sends an authenticated/encrypted (as target's security
// level requires) SNMPv3 Trap or Inform to addr. pdu.Type must be
// PDUTrapV2 or PDUInformRequest. target must already have discovered
// engine parameters (SendTrapV3 does not perform discovery, since a
// trap sender and the discovery probe it would require have opposite
// directions of initiation).
func (s *TrapSender) SendTrapV3(addr string, target *SecureTargetParams, msgID int32, pdu *PDU) error {
	if pdu.Type != PDUTrapV2 && pdu.Type != PDUInformRequest {
		return fmt.Errorf("%w: SendTrapV3 requires a V2Trap or InformRequest PDU", ErrInvalidPduOperation)
	}

	m, err := buildV3Request(target, msgID, pdu)
	if err != nil {
		return err
	}

	data, err := signAndEncode(target, m)
	if err != nil {
		return err
	}

	return s.sendTo(addr, data)
}

func (s *TrapSender) sendTo(addr string, data []byte) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	_, err = s.conn.WriteToUDP(data, raddr)
	return err
}
