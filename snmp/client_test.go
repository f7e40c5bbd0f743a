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
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeAgent is a minimal SNMP agent: a real loopback UDP socket whose
// handler decodes each request and returns a caller-built response. It
// exercises Client end to end through actual net.Conn plumbing, which a
// packetConn-level fake can't substitute for here since Connect dials
// its own socket internally.
type fakeAgent struct {
	conn *net.UDPConn
}

func newFakeAgent(t *testing.T) *fakeAgent {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	return &fakeAgent{conn: conn}
}

func (a *fakeAgent) port() int {
	return a.conn.LocalAddr().(*net.UDPAddr).Port
}

func (a *fakeAgent) close() { a.conn.Close() }

// serveOnce reads exactly one request and hands it to handler, which
// returns the raw bytes to send back (or nil to not reply at all).
func (a *fakeAgent) serveOnce(t *testing.T, handler func(req []byte) []byte) {
	t.Helper()
	go func() {
		buf := make([]byte, 65535)
		n, addr, err := a.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		resp := handler(buf[:n])
		if resp != nil {
			a.conn.WriteToUDP(resp, addr)
		}
	}()
}

func newTestClient(t *testing.T, agent *fakeAgent, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithTarget("127.0.0.1"),
		WithPort(agent.port()),
		WithVersion(Version2c),
		WithCommunity("public"),
		WithTimeout(200 * time.Millisecond),
		WithRetries(0),
		WithAutoReconnect(false),
	}
	c := NewClient(append(base, opts...)...)
	t.Cleanup(func() {
		if c.IsConnected() {
			c.Disconnect(context.Background())
		}
	})
	return c
}

func TestClientGetRoundTrip(t *testing.T) {
	agent := newFakeAgent(t)
	defer agent.close()

	agent.serveOnce(t, func(req []byte) []byte {
		msg, err := DecodeMessage(req)
		require.NoError(t, err)
		resp := NewResponse(msg.PDU.RequestID, NoError, 0,
			Variable{OID: OIDSysDescr, Type: TypeOctetString, Value: "a fake agent"})
		out, err := (&Message{Version: Version2c, Community: "public", PDU: resp}).Encode()
		require.NoError(t, err)
		return out
	})

	c := newTestClient(t, agent)
	require.NoError(t, c.Connect(context.Background()))

	vars, err := c.Get(context.Background(), OIDSysDescr)
	require.NoError(t, err)
	require.Len(t, vars, 1)
	require.Equal(t, "a fake agent", vars[0].Value)
}

func TestClientGetBulkRejectedOnV1(t *testing.T) {
	agent := newFakeAgent(t)
	defer agent.close()

	c := newTestClient(t, agent, WithVersion(Version1))
	require.NoError(t, c.Connect(context.Background()))

	_, err := c.GetBulk(context.Background(), 0, 10, OIDSysDescr)
	require.Error(t, err)
}

func TestClientSendRequestTimesOutWithNoResponse(t *testing.T) {
	agent := newFakeAgent(t)
	defer agent.close()

	c := newTestClient(t, agent, WithTimeout(30*time.Millisecond), WithRetries(1))
	require.NoError(t, c.Connect(context.Background()))

	_, err := c.Get(context.Background(), OIDSysDescr)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestClientGetPropagatesSNMPError(t *testing.T) {
	agent := newFakeAgent(t)
	defer agent.close()

	agent.serveOnce(t, func(req []byte) []byte {
		msg, err := DecodeMessage(req)
		require.NoError(t, err)
		resp := NewResponse(msg.PDU.RequestID, NoSuchName, 1,
			Variable{OID: OIDSysDescr, Type: TypeNull})
		out, err := (&Message{Version: Version2c, Community: "public", PDU: resp}).Encode()
		require.NoError(t, err)
		return out
	})

	c := newTestClient(t, agent)
	require.NoError(t, c.Connect(context.Background()))

	_, err := c.Get(context.Background(), OIDSysDescr)
	var snmpErr *SNMPError
	require.ErrorAs(t, err, &snmpErr)
	require.Equal(t, NoSuchName, snmpErr.Status)
}

func TestWalkFuncV1TerminatesOnNoSuchName(t *testing.T) {
	agent := newFakeAgent(t)
	defer agent.close()

	agent.serveOnce(t, func(req []byte) []byte {
		msg, err := DecodeMessage(req)
		require.NoError(t, err)
		resp := NewResponse(msg.PDU.RequestID, NoSuchName, 1,
			Variable{OID: msg.PDU.Variables[0].OID, Type: TypeNull})
		out, err := (&Message{Version: Version1, Community: "public", PDU: resp}).Encode()
		require.NoError(t, err)
		return out
	})

	c := newTestClient(t, agent, WithVersion(Version1))
	require.NoError(t, c.Connect(context.Background()))

	vars, err := c.Walk(context.Background(), MustParseOID("1.3.6.1.2.1.1"))
	require.NoError(t, err)
	require.Empty(t, vars)
}

func TestWalkFuncStopsOutsideSubtree(t *testing.T) {
	agent := newFakeAgent(t)
	defer agent.close()

	rootOID := MustParseOID("1.3.6.1.2.1.1")
	outsideOID := MustParseOID("1.3.6.1.2.1.2.1.0")

	agent.serveOnce(t, func(req []byte) []byte {
		msg, err := DecodeMessage(req)
		require.NoError(t, err)
		resp := NewResponse(msg.PDU.RequestID, NoError, 0,
			Variable{OID: outsideOID, Type: TypeOctetString, Value: "out of bounds"})
		out, err := (&Message{Version: Version2c, Community: "public", PDU: resp}).Encode()
		require.NoError(t, err)
		return out
	})

	c := newTestClient(t, agent, WithVersion(Version2c))
	require.NoError(t, c.Connect(context.Background()))

	vars, err := c.Walk(context.Background(), rootOID)
	require.NoError(t, err)
	require.Empty(t, vars)
}

func TestClientConnectFailsWithoutTarget(t *testing.T) {
	c := NewClient(WithPort(161))
	err := c.Connect(context.Background())
	require.Error(t, err)
	require.Equal(t, StateDisconnected, c.State())
}

func TestClientDoubleConnectRejected(t *testing.T) {
	agent := newFakeAgent(t)
	defer agent.close()

	c := newTestClient(t, agent)
	require.NoError(t, c.Connect(context.Background()))

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestClientDisconnectWithoutConnectFails(t *testing.T) {
	c := NewClient(WithTarget("127.0.0.1"))
	err := c.Disconnect(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestNextRequestIDWrapsPastZero(t *testing.T) {
	c := &Client{requestID: 1<<31 - 2}
	first := c.nextRequestID()
	second := c.nextRequestID()
	require.Equal(t, int32(1<<31-1), first)
	require.Equal(t, int32(1), second)
}

func TestDecodeResponseRejectsRequestIDMismatch(t *testing.T) {
	c := &Client{opts: &ClientOptions{Version: Version2c}}

	sent := NewGetRequest(5, OIDSysDescr)
	reply := NewResponse(6, NoError, 0, Variable{OID: OIDSysDescr, Type: TypeOctetString, Value: "wrong"})
	raw, err := (&Message{Version: Version2c, Community: "public", PDU: reply}).Encode()
	require.NoError(t, err)

	_, err = c.decodeResponse(raw, sent)
	require.ErrorIs(t, err, ErrRequestIDMismatch)
}

func TestDecodeResponseAcceptsMatchingRequestID(t *testing.T) {
	c := &Client{opts: &ClientOptions{Version: Version2c}}

	sent := NewGetRequest(5, OIDSysDescr)
	reply := NewResponse(5, NoError, 0, Variable{OID: OIDSysDescr, Type: TypeOctetString, Value: "right"})
	raw, err := (&Message{Version: Version2c, Community: "public", PDU: reply}).Encode()
	require.NoError(t, err)

	resp, err := c.decodeResponse(raw, sent)
	require.NoError(t, err)
	require.Equal(t, "right", resp.Variables[0].Value)
}

func TestDecodeResponseRejectsUnsolicitedReport(t *testing.T) {
	target := discoveredTarget(t)
	c := &Client{opts: &ClientOptions{Version: Version3}, target: target}

	// TrapV2 is fire-and-forget and never sets the reportable flag, so
	// a Report answering one is unsolicited and must be rejected.
	sent := NewTrapV2(3, 100, MustParseOID("1.3.6.1.6.3.1.1.5.3"))

	m, err := buildV3Request(target, 9, &PDU{Type: PDUReport, RequestID: sent.RequestID})
	require.NoError(t, err)
	raw, err := signAndEncode(target, m)
	require.NoError(t, err)

	_, err = c.decodeResponse(raw, sent)
	require.ErrorIs(t, err, ErrReportOnNoReports)
}

func TestSendRequestRejectsOversizedMessage(t *testing.T) {
	agent := newFakeAgent(t)
	defer agent.close()

	c := newTestClient(t, agent, WithVersion(Version3),
		WithSecurityName("admin"), WithSecurityLevel(AuthPriv),
		WithAuth(SHA, "authpass123"), WithPrivacy(AES, "privpass123"))

	agent.serveOnce(t, func(req []byte) []byte {
		m, err := DecodeV3Message(req)
		require.NoError(t, err)
		reply := &V3Message{
			MsgID:   m.MsgID,
			MaxSize: 65507,
			SecParams: UsmSecurityParameters{
				AuthoritativeEngineID:    []byte{0x80, 0x00, 0x1f, 0x88, 0x04},
				AuthoritativeEngineBoots: 1,
				AuthoritativeEngineTime:  500,
			},
			PDU: &PDU{Type: PDUReport, RequestID: m.PDU.RequestID},
		}
		out, err := reply.EncodeV3Message()
		require.NoError(t, err)
		return out
	})
	require.NoError(t, c.Connect(context.Background()))

	c.target.setPeerMaxSize(16) // far smaller than any real v3 request

	_, err := c.Get(context.Background(), OIDSysDescr)
	require.ErrorIs(t, err, ErrMaximumMessageSizeExceeded)
}

func TestPeekRequestIDv2c(t *testing.T) {
	msg := &Message{Version: Version2c, Community: "public", PDU: NewGetRequest(77, OIDSysDescr)}
	data, err := msg.Encode()
	require.NoError(t, err)

	id, err := peekRequestID(Version2c, data)
	require.NoError(t, err)
	require.Equal(t, int32(77), id)
}
