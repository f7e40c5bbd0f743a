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
	"fmt"
	"io"
)

// Message represents a complete SNMPv1/v2c message: a community
// string wrapped around a PDU. SNMPv3 uses the distinct envelope in
// usm_message.go instead.
type Message struct {
	Version   SNMPVersion
	Community string
	PDU       *PDU
}

// Encode encodes the SNMPv1/v2c message to BER bytes.
func (m *Message) Encode() ([]byte, error) {
	var buf bytes.Buffer

	buf.Write(encodeTLV(TypeInteger, encodeInteger(int64(m.Version))))
	buf.Write(encodeTLV(TypeOctetString, []byte(m.Community)))

	pduBytes, err := m.PDU.Encode()
	if err != nil {
		return nil, err
	}
	buf.Write(pduBytes)

	return encodeTLV(TypeSequence, buf.Bytes()), nil
}

// DecodeMessage decodes an SNMPv1/v2c message from BER bytes.
func DecodeMessage(data []byte) (*Message, error) {
	r := bytes.NewReader(data)

	seqType, seqData, err := decodeTLV(r)
	if err != nil {
		return nil, err
	}
	if seqType != TypeSequence {
		return nil, NewParseError(fmt.Sprintf("expected sequence, got %s", seqType), -1)
	}

	seqReader := bytes.NewReader(seqData)
	msg := &Message{}

	_, versionData, err := decodeTLV(seqReader)
	if err != nil {
		return nil, err
	}
	msg.Version = SNMPVersion(decodeInteger(versionData))

	if msg.Version == Version3 {
		return nil, fmt.Errorf("%w: use DecodeV3Message for SNMPv3 packets", ErrInvalidVersion)
	}

	_, communityData, err := decodeTLV(seqReader)
	if err != nil {
		return nil, err
	}
	msg.Community = string(communityData)

	msg.PDU, err = decodePDU(seqReader)
	if err != nil {
		return nil, err
	}
	if err := checkPDUTypeForVersion(msg.Version, msg.PDU); err != nil {
		return nil, err
	}

	return msg, nil
}

// TrapV1PDU represents an SNMPv1 Trap-PDU, whose layout (enterprise
// OID, agent address, generic/specific trap codes, sysUpTime) predates
// and differs from the v2/v3 notification varbind splice.
type TrapV1PDU struct {
	Enterprise   OID
	AgentAddress []byte
	GenericTrap  int
	SpecificTrap int
	Timestamp    uint32
	Variables    []Variable
}

// Encode encodes the v1 trap PDU to BER bytes.
func (t *TrapV1PDU) Encode() ([]byte, error) {
	var buf bytes.Buffer

	buf.Write(encodeTLV(TypeObjectIdentifier, encodeOID(t.Enterprise)))
	buf.Write(encodeTLV(TypeIPAddress, t.AgentAddress))
	buf.Write(encodeTLV(TypeInteger, encodeInteger(int64(t.GenericTrap))))
	buf.Write(encodeTLV(TypeInteger, encodeInteger(int64(t.SpecificTrap))))
	buf.Write(encodeTLV(TypeTimeTicks, encodeUnsignedInteger(uint64(t.Timestamp))))

	varbinds, err := encodeVariableBindings(t.Variables)
	if err != nil {
		return nil, err
	}
	buf.Write(varbinds)

	return encodeTLV(TypeTrapV1, buf.Bytes()), nil
}

// DecodeTrapV1PDU decodes an SNMPv1 Trap-PDU from BER bytes.
func DecodeTrapV1PDU(data []byte) (*TrapV1PDU, error) {
	r := bytes.NewReader(data)

	trapType, trapData, err := decodeTLV(r)
	if err != nil {
		return nil, err
	}
	if trapType != TypeTrapV1 {
		return nil, NewParseError(fmt.Sprintf("expected trap PDU, got %s", trapType), -1)
	}

	trapReader := bytes.NewReader(trapData)
	trap := &TrapV1PDU{}

	_, oidData, err := decodeTLV(trapReader)
	if err != nil {
		return nil, err
	}
	trap.Enterprise, err = decodeOID(oidData)
	if err != nil {
		return nil, err
	}

	_, addrData, err := decodeTLV(trapReader)
	if err != nil {
		return nil, err
	}
	trap.AgentAddress = addrData

	_, genData, err := decodeTLV(trapReader)
	if err != nil {
		return nil, err
	}
	trap.GenericTrap = int(decodeInteger(genData))

	_, specData, err := decodeTLV(trapReader)
	if err != nil {
		return nil, err
	}
	trap.SpecificTrap = int(decodeInteger(specData))

	_, tsData, err := decodeTLV(trapReader)
	if err != nil {
		return nil, err
	}
	trap.Timestamp = uint32(decodeUnsignedInteger(tsData))

	remaining := make([]byte, trapReader.Len())
	if _, err := io.ReadFull(trapReader, remaining); err != nil {
		return nil, err
	}
	trap.Variables, err = decodeVariables(remaining)
	if err != nil {
		return nil, err
	}

	return trap, nil
}

// TrapV1Message represents a complete SNMPv1 trap message.
type TrapV1Message struct {
	Version   SNMPVersion
	Community string
	PDU       *TrapV1PDU
}

// Encode encodes the v1 trap message to BER bytes.
func (m *TrapV1Message) Encode() ([]byte, error) {
	var buf bytes.Buffer

	buf.Write(encodeTLV(TypeInteger, encodeInteger(int64(m.Version))))
	buf.Write(encodeTLV(TypeOctetString, []byte(m.Community)))

	pduBytes, err := m.PDU.Encode()
	if err != nil {
		return nil, err
	}
	buf.Write(pduBytes)

	return encodeTLV(TypeSequence, buf.Bytes()), nil
}

// DecodeTrapV1Message decodes an SNMPv1 trap message from BER bytes.
func DecodeTrapV1Message(data []byte) (*TrapV1Message, error) {
	r := bytes.NewReader(data)

	seqType, seqData, err := decodeTLV(r)
	if err != nil {
		return nil, err
	}
	if seqType != TypeSequence {
		return nil, NewParseError(fmt.Sprintf("expected sequence, got %s", seqType), -1)
	}

	seqReader := bytes.NewReader(seqData)
	msg := &TrapV1Message{}

	_, versionData, err := decodeTLV(seqReader)
	if err != nil {
		return nil, err
	}
	msg.Version = SNMPVersion(decodeInteger(versionData))

	_, communityData, err := decodeTLV(seqReader)
	if err != nil {
		return nil, err
	}
	msg.Community = string(communityData)

	remaining := make([]byte, seqReader.Len())
	if _, err := io.ReadFull(seqReader, remaining); err != nil {
		return nil, err
	}
	msg.PDU, err = DecodeTrapV1PDU(remaining)
	if err != nil {
		return nil, err
	}

	return msg, nil
}
