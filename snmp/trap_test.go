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
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestListener(users ...TrapUSMUser) *TrapListener {
	return NewTrapListener(nil, WithTrapUSMUsers(users...))
}

func testUDPAddr(t *testing.T) *net.UDPAddr {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp", "198.51.100.7:55123")
	require.NoError(t, err)
	return addr
}

func TestDecodeTrapAcceptsV1(t *testing.T) {
	l := newTestListener()
	msg := &TrapV1Message{
		Version:   Version1,
		Community: "public",
		PDU: &TrapV1PDU{
			Enterprise:   MustParseOID("1.3.6.1.4.1.9"),
			AgentAddress: []byte{10, 0, 0, 5},
			GenericTrap:  6,
			SpecificTrap: 2,
			Timestamp:    42,
		},
	}
	data, err := msg.Encode()
	require.NoError(t, err)

	trap, raw3, err := l.decodeTrap(data, testUDPAddr(t))
	require.NoError(t, err)
	require.Nil(t, raw3)
	require.Equal(t, Version1, trap.Version)
	require.False(t, trap.IsInform)
	require.Equal(t, "10.0.0.5", trap.AgentAddress)
	require.Equal(t, 6, trap.GenericTrap)
}

func TestDecodeTrapAcceptsV2cTrapAndInform(t *testing.T) {
	l := newTestListener()

	trapOID := MustParseOID("1.3.6.1.6.3.1.1.5.3")
	pdu := NewTrapV2(1, 1000, trapOID, Variable{OID: OIDSysDescr, Type: TypeOctetString, Value: "a box"})
	msg := &Message{Version: Version2c, Community: "public", PDU: pdu}
	data, err := msg.Encode()
	require.NoError(t, err)

	trap, raw3, err := l.decodeTrap(data, testUDPAddr(t))
	require.NoError(t, err)
	require.Nil(t, raw3)
	require.False(t, trap.IsInform)
	require.Equal(t, uint32(1000), trap.Timestamp)
	require.True(t, trap.TrapObjectID.Equal(trapOID))

	informPDU := NewInformRequest(2, 2000, trapOID)
	informMsg := &Message{Version: Version2c, Community: "public", PDU: informPDU}
	informData, err := informMsg.Encode()
	require.NoError(t, err)

	informTrap, raw3b, err := l.decodeTrap(informData, testUDPAddr(t))
	require.NoError(t, err)
	require.Nil(t, raw3b)
	require.True(t, informTrap.IsInform)
}

func TestUsmTargetMatchesConfiguredUserAndCachesEngine(t *testing.T) {
	l := newTestListener(TrapUSMUser{
		SecurityName:   "admin",
		AuthProtocol:   SHA,
		AuthPassphrase: "authpass123",
		PrivProtocol:   AES,
		PrivPassphrase: "privpass123",
	})

	engineID := []byte{0x80, 0x00, 0x1f, 0x88, 0x04}

	target, err := l.usmTarget("admin", engineID, 3, 1000)
	require.NoError(t, err)
	require.True(t, target.IsDiscovered())

	cached, err := l.usmTarget("admin", engineID, 3, 1001)
	require.NoError(t, err)
	require.Same(t, target, cached)
}

func TestUsmTargetRejectsUnknownUser(t *testing.T) {
	l := newTestListener(TrapUSMUser{SecurityName: "admin"})

	_, err := l.usmTarget("nobody", []byte{1, 2, 3, 4}, 1, 100)
	require.ErrorIs(t, err, ErrUnknownUserName)
}

func TestUsmTargetReplayRejectionPropagatesFromCache(t *testing.T) {
	l := newTestListener(TrapUSMUser{
		SecurityName:   "admin",
		AuthProtocol:   MD5,
		AuthPassphrase: "authpass123",
	})

	engineID := []byte{1, 2, 3, 4}
	_, err := l.usmTarget("admin", engineID, 1, 5000)
	require.NoError(t, err)

	_, err = l.usmTarget("admin", engineID, 1, 5000-usmTimeWindow-1)
	require.ErrorIs(t, err, ErrNotInTimeWindow)
}

func TestDecodeV3TrapAuthenticatesAndFillsNotification(t *testing.T) {
	l := newTestListener(TrapUSMUser{
		SecurityName:   "admin",
		AuthProtocol:   SHA,
		AuthPassphrase: "authpass123",
	})

	sender := &SecureTargetParams{
		SecurityName:   "admin",
		SecurityLevel:  AuthNoPriv,
		AuthProtocol:   SHA,
		AuthPassphrase: "authpass123",
		nowFunc:        time.Now,
	}
	require.NoError(t, sender.setEngine([]byte{0x80, 0x00, 0x1f, 0x88, 0x04}, 2, 800))

	trapOID := MustParseOID("1.3.6.1.6.3.1.1.5.3")
	pdu := NewTrapV2(9, 1234, trapOID)

	m, err := buildV3Request(sender, 9, pdu)
	require.NoError(t, err)
	data, err := signAndEncode(sender, m)
	require.NoError(t, err)

	trap, raw3, err := l.decodeTrap(data, testUDPAddr(t))
	require.NoError(t, err)
	require.NotNil(t, raw3)
	require.Equal(t, Version3, trap.Version)
	require.Equal(t, "admin", trap.SecurityName)
	require.True(t, trap.TrapObjectID.Equal(trapOID))
}

func TestDecodeV3TrapRejectsUnknownUser(t *testing.T) {
	l := newTestListener(TrapUSMUser{SecurityName: "someone-else"})

	sender := &SecureTargetParams{
		SecurityName:  "admin",
		SecurityLevel: NoAuthNoPriv,
		nowFunc:       time.Now,
	}
	require.NoError(t, sender.setEngine([]byte{1, 2, 3, 4}, 1, 10))

	pdu := NewTrapV2(1, 10, MustParseOID("1.3.6.1.6.3.1.1.5.3"))
	m, err := buildV3Request(sender, 1, pdu)
	require.NoError(t, err)
	data, err := signAndEncode(sender, m)
	require.NoError(t, err)

	_, _, err = l.decodeTrap(data, testUDPAddr(t))
	require.ErrorIs(t, err, ErrUnknownUserName)
}

func TestAcknowledgeInformIsNoOpWithoutV3Message(t *testing.T) {
	l := newTestListener()
	require.NoError(t, l.acknowledgeInform(nil, testUDPAddr(t)))
}

func TestSendTrapV2RejectsWrongPDUType(t *testing.T) {
	s := &TrapSender{}
	err := s.SendTrapV2("127.0.0.1:162", "public", NewGetRequest(1))
	require.ErrorIs(t, err, ErrInvalidPduOperation)
}

func TestSendInformV2RejectsWrongPDUType(t *testing.T) {
	s := &TrapSender{}
	err := s.SendInformV2("127.0.0.1:162", "public", NewGetRequest(1))
	require.ErrorIs(t, err, ErrInvalidPduOperation)
}

func TestSendTrapV3RejectsWrongPDUType(t *testing.T) {
	s := &TrapSender{}
	target := newTestTarget()
	err := s.SendTrapV3("127.0.0.1:162", target, 1, NewGetRequest(1))
	require.ErrorIs(t, err, ErrInvalidPduOperation)
}
