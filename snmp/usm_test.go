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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discoveredTarget(t *testing.T) *SecureTargetParams {
	t.Helper()
	target := newTestTarget()
	require.NoError(t, target.setEngine([]byte{0x80, 0x00, 0x1f, 0x88, 0x04}, 3, 1000))
	return target
}

// encodeDiscoveryReply builds and serializes the Report a real agent
// sends back to a discovery probe: an unauthenticated v3 message
// carrying the given engine id/boots/time in its security parameters.
func encodeDiscoveryReply(t *testing.T, requestID int32, engineID []byte, boots, engineTime int32) []byte {
	t.Helper()
	m := &V3Message{
		MsgID:   1,
		MaxSize: 65507,
		SecParams: UsmSecurityParameters{
			AuthoritativeEngineID:    engineID,
			AuthoritativeEngineBoots: boots,
			AuthoritativeEngineTime:  engineTime,
		},
		ContextEngineID: engineID,
		PDU: &PDU{
			Type:      PDUReport,
			RequestID: requestID,
		},
	}
	data, err := m.EncodeV3Message()
	require.NoError(t, err)
	return data
}

func TestDiscoverEngineChainsSecondRoundOnZeroBootsTime(t *testing.T) {
	engineID := []byte{0x80, 0x00, 0x1f, 0x88, 0x04}

	conn := newFakePacketConn()
	transport := NewTransport(conn, testRemoteAddr, 200*time.Millisecond, 0, false, nil)
	target := newTestTarget()

	conn.queueReply(encodeDiscoveryReply(t, 7, engineID, 0, 0))
	conn.queueReply(encodeDiscoveryReply(t, 7, engineID, 3, 1000))

	err := discoverEngine(context.Background(), transport, target, 1, 7)
	require.NoError(t, err)

	require.Len(t, conn.writes, 2, "expected a probe and a re-probe")
	require.True(t, target.IsDiscovered())
	require.Equal(t, engineID, target.EngineID())

	boots, engineTime := target.currentEngineTime()
	require.Equal(t, int32(3), boots)
	require.Equal(t, int32(1000), engineTime)
}

func TestDiscoverEngineSingleRoundWhenTimeAlreadyKnown(t *testing.T) {
	engineID := []byte{0x80, 0x00, 0x1f, 0x88, 0x04}

	conn := newFakePacketConn()
	transport := NewTransport(conn, testRemoteAddr, 200*time.Millisecond, 0, false, nil)
	target := newTestTarget()

	conn.queueReply(encodeDiscoveryReply(t, 9, engineID, 3, 1000))

	err := discoverEngine(context.Background(), transport, target, 1, 9)
	require.NoError(t, err)

	require.Len(t, conn.writes, 1, "no re-probe needed when the first reply already has boots/time")
}

func TestDiscoveryProbeIsUnauthenticated(t *testing.T) {
	probe := discoveryProbe(1, 2)
	require.Equal(t, V3MsgFlags(V3FlagReportable), probe.Flags)
	require.Empty(t, probe.SecParams.UserName)
	require.Equal(t, PDUGetRequest, probe.PDU.Type)
}

func TestBuildV3RequestRequiresDiscovery(t *testing.T) {
	target := newTestTarget()
	_, err := buildV3Request(target, 1, NewGetRequest(1, OIDSysDescr))
	require.ErrorIs(t, err, ErrEngineDiscoveryNeeded)
}

func TestBuildV3RequestSetsFlagsForAuthPriv(t *testing.T) {
	target := discoveredTarget(t)

	m, err := buildV3Request(target, 5, NewGetRequest(1, OIDSysDescr))
	require.NoError(t, err)
	require.NotZero(t, m.Flags&V3FlagAuth)
	require.NotZero(t, m.Flags&V3FlagPriv)
	require.NotZero(t, m.Flags&V3FlagReportable)
	require.NotNil(t, m.encryptedPDU)
	require.Len(t, m.SecParams.AuthenticationParameters, usmAuthDigestLength)
}

func TestBuildV3RequestTrapNotReportable(t *testing.T) {
	target := discoveredTarget(t)
	trapPDU := NewTrapV2(1, 100, MustParseOID("1.3.6.1.6.3.1.1.5.3"))

	m, err := buildV3Request(target, 1, trapPDU)
	require.NoError(t, err)
	require.Zero(t, m.Flags&V3FlagReportable)
}

func TestSignAndEncodeThenVerifyDigest(t *testing.T) {
	target := &SecureTargetParams{
		SecurityName:   "admin",
		SecurityLevel:  AuthNoPriv,
		AuthProtocol:   SHA,
		AuthPassphrase: "authpass123",
		nowFunc:        func() time.Time { return time.Unix(0, 0) },
	}
	require.NoError(t, target.setEngine([]byte{1, 2, 3, 4}, 1, 500))

	m, err := buildV3Request(target, 1, NewGetRequest(1, OIDSysDescr))
	require.NoError(t, err)

	encoded, err := signAndEncode(target, m)
	require.NoError(t, err)

	decoded, err := DecodeV3Message(encoded)
	require.NoError(t, err)

	require.NoError(t, verifyDigest(target, encoded, decoded))
}

func TestVerifyDigestRejectsTamperedMessage(t *testing.T) {
	target := &SecureTargetParams{
		SecurityName:   "admin",
		SecurityLevel:  AuthNoPriv,
		AuthProtocol:   MD5,
		AuthPassphrase: "authpass123",
		nowFunc:        func() time.Time { return time.Unix(0, 0) },
	}
	require.NoError(t, target.setEngine([]byte{1, 2, 3, 4}, 1, 500))

	m, err := buildV3Request(target, 1, NewGetRequest(1, OIDSysDescr))
	require.NoError(t, err)

	encoded, err := signAndEncode(target, m)
	require.NoError(t, err)

	tampered := append([]byte(nil), encoded...)
	tampered[len(tampered)-1] ^= 0xff

	decoded, err := DecodeV3Message(tampered)
	require.NoError(t, err)

	err = verifyDigest(target, tampered, decoded)
	require.Error(t, err)
}

func TestAuthenticateResponseChecksTimeWindow(t *testing.T) {
	now := time.Unix(10_000, 0)
	target := &SecureTargetParams{
		SecurityName:   "admin",
		SecurityLevel:  AuthNoPriv,
		AuthProtocol:   SHA,
		AuthPassphrase: "authpass123",
		nowFunc:        func() time.Time { return now },
	}
	require.NoError(t, target.setEngine([]byte{1, 2, 3, 4}, 1, 500))

	m, err := buildV3Request(target, 1, NewGetRequest(1, OIDSysDescr))
	require.NoError(t, err)
	encoded, err := signAndEncode(target, m)
	require.NoError(t, err)

	decoded, err := DecodeV3Message(encoded)
	require.NoError(t, err)
	// The response's own reported time matches what currentEngineTime
	// projects, so this must authenticate cleanly.
	require.NoError(t, authenticateResponse(target, encoded, decoded))

	// Now simulate a response reporting a time far outside the window.
	decoded.SecParams.AuthoritativeEngineTime += usmTimeWindow + 100
	err = authenticateResponse(target, encoded, decoded)
	require.ErrorIs(t, err, ErrNotInTimeWindow)
}

func TestSpliceAuthDigestPreservesLength(t *testing.T) {
	target := &SecureTargetParams{
		SecurityName:   "admin",
		SecurityLevel:  AuthNoPriv,
		AuthProtocol:   MD5,
		AuthPassphrase: "authpass123",
		nowFunc:        func() time.Time { return time.Unix(0, 0) },
	}
	require.NoError(t, target.setEngine([]byte{1, 2, 3, 4}, 1, 500))

	m, err := buildV3Request(target, 1, NewGetRequest(1, OIDSysDescr))
	require.NoError(t, err)

	unsigned, err := m.EncodeV3Message()
	require.NoError(t, err)

	signed, err := signAndEncode(target, m)
	require.NoError(t, err)

	require.Len(t, signed, len(unsigned))
}
