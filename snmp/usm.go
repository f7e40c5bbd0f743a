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
	"bytes"
	"context"
	"fmt"
)

// usmTimeWindow is the RFC 3414 §3.2(7) freshness bound: an incoming
// message is rejected if the authoritative engine's reported time
// differs from the locally tracked time by more than this many
// seconds, or if its engineBoots differs from the tracked value.
const usmTimeWindow = 150 * 10 // 1500 seconds

// discoveryProbe builds the unauthenticated, unencrypted "who are
// you" probe RFC 3414 §4 describes: an empty engine ID, reportable
// flag set, noAuthNoPriv, carrying a GetRequest with no varbinds.
func discoveryProbe(msgID, requestID int32) *V3Message {
	return &V3Message{
		MsgID:    msgID,
		MaxSize:  65507,
		Flags:    V3FlagReportable,
		SecModel: UserBasedSecurityModel,
		SecParams: UsmSecurityParameters{
			UserName: "",
		},
		ContextEngineID: nil,
		ContextName:     "",
		PDU: &PDU{
			Type:      PDUGetRequest,
			RequestID: requestID,
		},
	}
}

// discoverEngine sends a discovery probe over the given transport and
// records the learned engine ID/boots/time into target. Per RFC 3414
// §4, agents respond to the empty-engine-ID probe with a Report PDU
// carrying their authoritative engineID/boots/time in the security
// parameters, even though msgFlags says noAuthNoPriv.
func discoverEngine(ctx context.Context, t *Transport, target *SecureTargetParams, msgID, requestID int32) error {
	probe := discoveryProbe(msgID, requestID)
	data, err := probe.EncodeV3Message()
	if err != nil {
		return fmt.Errorf("snmp: encoding discovery probe: %w", err)
	}

	respData, err := t.roundTrip(ctx, data)
	if err != nil {
		return fmt.Errorf("%w: engine discovery failed: %v", ErrEngineDiscoveryNeeded, err)
	}

	resp, err := DecodeV3Message(respData)
	if err != nil {
		return fmt.Errorf("snmp: decoding discovery response: %w", err)
	}

	if len(resp.SecParams.AuthoritativeEngineID) == 0 {
		return fmt.Errorf("%w: agent did not report an engine ID", ErrUnknownEngineID)
	}

	target.setPeerMaxSize(resp.MaxSize)

	if resp.SecParams.AuthoritativeEngineBoots == 0 && resp.SecParams.AuthoritativeEngineTime == 0 {
		return rediscoverEngine(ctx, t, target, resp.SecParams.AuthoritativeEngineID, msgID, requestID)
	}

	return target.setEngine(resp.SecParams.AuthoritativeEngineID, resp.SecParams.AuthoritativeEngineBoots, resp.SecParams.AuthoritativeEngineTime)
}

// rediscoverEngine performs the second round of the RFC 3414 §4
// discovery handshake: the first probe's reply carries a real engine
// ID but engineBoots=engineTime=0 (the agent's convention for "come
// back with this engine ID and I'll tell you my real clock"), so a
// second probe is sent, this time with the learned engine ID filled
// in, to learn the authoritative boots/time pair.
func rediscoverEngine(ctx context.Context, t *Transport, target *SecureTargetParams, engineID []byte, msgID, requestID int32) error {
	probe := discoveryProbe(msgID, requestID)
	probe.SecParams.AuthoritativeEngineID = engineID

	data, err := probe.EncodeV3Message()
	if err != nil {
		return fmt.Errorf("snmp: encoding second discovery probe: %w", err)
	}

	respData, err := t.roundTrip(ctx, data)
	if err != nil {
		return fmt.Errorf("%w: engine time discovery failed: %v", ErrEngineDiscoveryNeeded, err)
	}

	resp, err := DecodeV3Message(respData)
	if err != nil {
		return fmt.Errorf("snmp: decoding second discovery response: %w", err)
	}

	target.setPeerMaxSize(resp.MaxSize)

	reportedID := resp.SecParams.AuthoritativeEngineID
	if len(reportedID) == 0 {
		reportedID = engineID
	}

	return target.setEngine(reportedID, resp.SecParams.AuthoritativeEngineBoots, resp.SecParams.AuthoritativeEngineTime)
}

// reportableForPDUType reports whether a v3 request of this PDU type
// should set msgFlags' reportable bit, per RFC 3412 §7.1: every
// request wants a Report on a security failure except TrapV2, which
// is fire-and-forget and must never solicit one.
func reportableForPDUType(t PDUType) bool {
	return t != PDUTrapV2
}

// buildV3Request assembles an authenticated/encrypted (as the security
// level requires) SNMPv3 request message ready to send.
func buildV3Request(target *SecureTargetParams, msgID int32, pdu *PDU) (*V3Message, error) {
	if !target.IsDiscovered() {
		return nil, ErrEngineDiscoveryNeeded
	}

	boots, engineTime := target.currentEngineTime()

	var flags V3MsgFlags
	if target.SecurityLevel >= AuthNoPriv {
		flags |= V3FlagAuth
	}
	if target.SecurityLevel == AuthPriv {
		flags |= V3FlagPriv
	}
	if reportableForPDUType(pdu.Type) {
		flags |= V3FlagReportable
	}

	m := &V3Message{
		MsgID:    msgID,
		MaxSize:  65507,
		Flags:    flags,
		SecModel: UserBasedSecurityModel,
		SecParams: UsmSecurityParameters{
			AuthoritativeEngineID:    target.EngineID(),
			AuthoritativeEngineBoots: boots,
			AuthoritativeEngineTime:  engineTime,
			UserName:                 target.SecurityName,
		},
		ContextEngineID: target.ContextEngineID,
		ContextName:     target.ContextName,
		PDU:             pdu,
	}
	if m.ContextEngineID == nil {
		m.ContextEngineID = target.EngineID()
	}

	if flags&V3FlagPriv != 0 {
		target.mu.Lock()
		privKey := target.localPrivKey
		target.mu.Unlock()
		if err := m.EncryptScopedPDU(target.PrivProtocol, privKey, target); err != nil {
			return nil, err
		}
	}

	if flags&V3FlagAuth != 0 {
		m.SecParams.AuthenticationParameters = make([]byte, usmAuthDigestLength)
	}

	return m, nil
}

// signAndEncode encodes m, computes the HMAC digest over the whole
// message with msgAuthenticationParameters zero-filled (already done
// by buildV3Request), re-splices the digest into place, and returns
// the final wire bytes, per RFC 3414 §6.3.1.
func signAndEncode(target *SecureTargetParams, m *V3Message) ([]byte, error) {
	if m.Flags&V3FlagAuth == 0 {
		return m.EncodeV3Message()
	}

	encoded, err := m.EncodeV3Message()
	if err != nil {
		return nil, err
	}

	target.mu.Lock()
	authKey := target.localAuthKey
	target.mu.Unlock()

	digest, err := authenticateMessage(target.AuthProtocol, authKey, encoded)
	if err != nil {
		return nil, err
	}

	return spliceAuthDigest(encoded, digest)
}

// spliceAuthDigest finds the zero-filled msgAuthenticationParameters
// OCTET STRING placeholder and overwrites it in place with digest,
// without re-encoding the whole message (the digest is fixed-length,
// so the TLV framing around it never changes size).
func spliceAuthDigest(encoded, digest []byte) ([]byte, error) {
	placeholder := bytes.Repeat([]byte{0x00}, usmAuthDigestLength)
	marker := append(encodeTLV(TypeOctetString, placeholder))
	idx := bytes.Index(encoded, marker)
	if idx < 0 {
		return nil, fmt.Errorf("%w: authentication parameter placeholder not found", ErrAuthFailure)
	}
	valueOffset := idx + len(marker) - usmAuthDigestLength
	out := append([]byte(nil), encoded...)
	copy(out[valueOffset:valueOffset+usmAuthDigestLength], digest)
	return out, nil
}

// authenticateResponse verifies an incoming v3 response's HMAC digest
// against the locally-held auth key and checks the RFC 3414 §3.2(7)
// time window, given the raw wire bytes (with the digest field
// zeroed back out for the recompute) and the decoded message. Used for
// request/response traffic, where target's engine time was already
// synced by a prior discovery round trip.
func authenticateResponse(target *SecureTargetParams, raw []byte, m *V3Message) error {
	if m.Flags&V3FlagAuth == 0 {
		return nil
	}

	if err := checkTimeWindow(target, m); err != nil {
		return err
	}

	return verifyDigest(target, raw, m)
}

// verifyDigest checks only the HMAC digest, with no time-window check.
// Used for unsolicited traps/informs, where replay protection is
// instead handled by SecureTargetParams.acceptEngineTime (a notification
// listener has no independently-synced clock for this engine to check
// the inbound message's claimed time against).
func verifyDigest(target *SecureTargetParams, raw []byte, m *V3Message) error {
	if m.Flags&V3FlagAuth == 0 {
		return nil
	}

	digest := m.SecParams.AuthenticationParameters
	zeroed, err := zeroAuthDigest(raw, len(digest))
	if err != nil {
		return err
	}

	target.mu.Lock()
	authKey := target.localAuthKey
	target.mu.Unlock()

	return verifyMessage(target.AuthProtocol, authKey, zeroed, digest)
}

func zeroAuthDigest(raw []byte, digestLen int) ([]byte, error) {
	if digestLen == 0 {
		return raw, nil
	}
	m, err := DecodeV3Message(raw)
	if err != nil {
		return nil, err
	}
	digest := m.SecParams.AuthenticationParameters
	idx := bytes.Index(raw, encodeTLV(TypeOctetString, digest))
	if idx < 0 {
		return nil, fmt.Errorf("%w: authentication parameter not found in response", ErrWrongDigest)
	}
	out := append([]byte(nil), raw...)
	valueOffset := idx + len(encodeTLV(TypeOctetString, digest)) - len(digest)
	for i := 0; i < len(digest); i++ {
		out[valueOffset+i] = 0
	}
	return out, nil
}

// checkTimeWindow implements RFC 3414 §3.2(7): a response is stale if
// its reported engineBoots differs from ours, or engineTime differs
// by more than usmTimeWindow seconds.
func checkTimeWindow(target *SecureTargetParams, m *V3Message) error {
	boots, engineTime := target.currentEngineTime()
	if m.SecParams.AuthoritativeEngineBoots != boots {
		return ErrNotInTimeWindow
	}
	delta := m.SecParams.AuthoritativeEngineTime - engineTime
	if delta < 0 {
		delta = -delta
	}
	if delta > usmTimeWindow {
		return ErrNotInTimeWindow
	}
	return nil
}
