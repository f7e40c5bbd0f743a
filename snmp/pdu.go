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

// PDU represents an SNMP Protocol Data Unit.
//
// GetBulkRequest overloads the third and fourth integer slots as
// non-repeaters/max-repetitions instead of error-status/error-index.
// The two slots are kept as separate fields rather than unioned so
// that reading the wrong pair for a given PDU type is a programming
// error caught by ErrorStatus/ErrorIndex/NonRepeaters/MaxRepetitions
// below, not a silently-misinterpreted integer.
type PDU struct {
	Type      PDUType
	RequestID int32
	Variables []Variable

	errorStatus ErrorStatus
	errorIndex  int

	nonRepeaters   int
	maxRepetitions int
}

// ErrorStatus returns the PDU's error-status field. Valid for every
// PDU type except GetBulkRequest.
func (p *PDU) ErrorStatus() (ErrorStatus, error) {
	if p.Type == PDUGetBulkRequest {
		return 0, fmt.Errorf("%w: GetBulkRequest has no error-status, use NonRepeaters", ErrInvalidPduOperation)
	}
	return p.errorStatus, nil
}

// ErrorIndex returns the PDU's error-index field. Valid for every PDU
// type except GetBulkRequest.
func (p *PDU) ErrorIndex() (int, error) {
	if p.Type == PDUGetBulkRequest {
		return 0, fmt.Errorf("%w: GetBulkRequest has no error-index, use MaxRepetitions", ErrInvalidPduOperation)
	}
	return p.errorIndex, nil
}

// SetError sets the error-status/error-index pair. Valid for every PDU
// type except GetBulkRequest.
func (p *PDU) SetError(status ErrorStatus, index int) error {
	if p.Type == PDUGetBulkRequest {
		return fmt.Errorf("%w: GetBulkRequest has no error-status/index", ErrInvalidPduOperation)
	}
	p.errorStatus = status
	p.errorIndex = index
	return nil
}

// NonRepeaters returns the GetBulkRequest non-repeaters count. Valid
// only for GetBulkRequest.
func (p *PDU) NonRepeaters() (int, error) {
	if p.Type != PDUGetBulkRequest {
		return 0, fmt.Errorf("%w: non-repeaters only valid on GetBulkRequest", ErrInvalidPduOperation)
	}
	return p.nonRepeaters, nil
}

// MaxRepetitions returns the GetBulkRequest max-repetitions count.
// Valid only for GetBulkRequest.
func (p *PDU) MaxRepetitions() (int, error) {
	if p.Type != PDUGetBulkRequest {
		return 0, fmt.Errorf("%w: max-repetitions only valid on GetBulkRequest", ErrInvalidPduOperation)
	}
	return p.maxRepetitions, nil
}

// rawErrorStatus/rawErrorIndex give the codec direct field access
// without the PDU-type guard, since the wire layout must be
// written/read uniformly regardless of which pair is semantically
// meaningful.
func (p *PDU) rawErrorStatus() ErrorStatus { return p.errorStatus }
func (p *PDU) rawErrorIndex() int          { return p.errorIndex }

// Encode encodes the PDU to BER bytes.
func (p *PDU) Encode() ([]byte, error) {
	var buf bytes.Buffer

	buf.Write(encodeTLV(TypeInteger, encodeInteger(int64(p.RequestID))))

	if p.Type == PDUGetBulkRequest {
		buf.Write(encodeTLV(TypeInteger, encodeInteger(int64(p.nonRepeaters))))
		buf.Write(encodeTLV(TypeInteger, encodeInteger(int64(p.maxRepetitions))))
	} else {
		buf.Write(encodeTLV(TypeInteger, encodeInteger(int64(p.errorStatus))))
		buf.Write(encodeTLV(TypeInteger, encodeInteger(int64(p.errorIndex))))
	}

	varbinds, err := encodeVariableBindings(p.Variables)
	if err != nil {
		return nil, err
	}
	buf.Write(varbinds)

	return encodeTLV(BERType(p.Type), buf.Bytes()), nil
}

// DecodePDU decodes a PDU from BER bytes.
func DecodePDU(data []byte) (*PDU, error) {
	r := bytes.NewReader(data)
	return decodePDU(r)
}

// validPDUTypesForVersion lists the PDU tags an envelope of the given
// SNMP version may legally carry. SNMPv1 predates GetBulkRequest,
// InformRequest and Report; its own Trap-PDU (0xA4) is decoded through
// the distinct TrapV1PDU/TrapV1Message path instead of decodePDU, so
// it's never a legal tag here either.
func validPDUTypesForVersion(version SNMPVersion) map[PDUType]bool {
	switch version {
	case Version1:
		return map[PDUType]bool{
			PDUGetRequest:     true,
			PDUGetNextRequest: true,
			PDUGetResponse:    true,
			PDUSetRequest:     true,
		}
	default: // Version2c, Version3
		return map[PDUType]bool{
			PDUGetRequest:     true,
			PDUGetNextRequest: true,
			PDUGetResponse:    true,
			PDUSetRequest:     true,
			PDUGetBulkRequest: true,
			PDUInformRequest:  true,
			PDUTrapV2:         true,
			PDUReport:         true,
		}
	}
}

// checkPDUTypeForVersion rejects a decoded PDU whose tag isn't valid
// for version, e.g. a v1 envelope carrying a GetBulkRequest.
func checkPDUTypeForVersion(version SNMPVersion, pdu *PDU) error {
	if !validPDUTypesForVersion(version)[pdu.Type] {
		return fmt.Errorf("%w: PDU type %s is not valid for SNMP version %s", ErrInvalidPDU, pdu.Type, version)
	}
	return nil
}

func decodePDU(r io.Reader) (*PDU, error) {
	pduType, pduData, err := decodeTLV(r)
	if err != nil {
		return nil, err
	}

	pdu := &PDU{Type: PDUType(pduType)}
	pduReader := bytes.NewReader(pduData)

	_, requestIDData, err := decodeTLV(pduReader)
	if err != nil {
		return nil, err
	}
	pdu.RequestID = int32(decodeInteger(requestIDData))

	_, secondFieldData, err := decodeTLV(pduReader)
	if err != nil {
		return nil, err
	}
	_, thirdFieldData, err := decodeTLV(pduReader)
	if err != nil {
		return nil, err
	}

	if pduType == TypeGetBulkRequest {
		pdu.nonRepeaters = int(decodeInteger(secondFieldData))
		pdu.maxRepetitions = int(decodeInteger(thirdFieldData))
	} else {
		pdu.errorStatus = ErrorStatus(decodeInteger(secondFieldData))
		pdu.errorIndex = int(decodeInteger(thirdFieldData))
	}

	remaining := make([]byte, pduReader.Len())
	if _, err := io.ReadFull(pduReader, remaining); err != nil {
		return nil, err
	}
	pdu.Variables, err = decodeVariables(remaining)
	if err != nil {
		return nil, err
	}

	return pdu, nil
}

// NewGetRequest creates a GetRequest PDU for the given OIDs.
func NewGetRequest(requestID int32, oids ...OID) *PDU {
	return &PDU{
		Type:      PDUGetRequest,
		RequestID: requestID,
		Variables: nullVariables(oids),
	}
}

// NewGetNextRequest creates a GetNextRequest PDU for the given OIDs.
func NewGetNextRequest(requestID int32, oids ...OID) *PDU {
	return &PDU{
		Type:      PDUGetNextRequest,
		RequestID: requestID,
		Variables: nullVariables(oids),
	}
}

// NewGetBulkRequest creates a GetBulkRequest PDU (v2c/v3 only).
func NewGetBulkRequest(requestID int32, nonRepeaters, maxRepetitions int, oids ...OID) *PDU {
	return &PDU{
		Type:           PDUGetBulkRequest,
		RequestID:      requestID,
		nonRepeaters:   nonRepeaters,
		maxRepetitions: maxRepetitions,
		Variables:      nullVariables(oids),
	}
}

// NewSetRequest creates a SetRequest PDU.
func NewSetRequest(requestID int32, variables ...Variable) *PDU {
	return &PDU{
		Type:      PDUSetRequest,
		RequestID: requestID,
		Variables: variables,
	}
}

// NewResponse creates a GetResponse PDU carrying the given error
// status/index and variable bindings.
func NewResponse(requestID int32, status ErrorStatus, index int, variables ...Variable) *PDU {
	return &PDU{
		Type:        PDUGetResponse,
		RequestID:   requestID,
		Variables:   variables,
		errorStatus: status,
		errorIndex:  index,
	}
}

// NewTrapV2 creates an SNMPv2c/v3 Trap PDU with sysUpTime and
// snmpTrapOID spliced in as the first two varbinds, per RFC 3416.
func NewTrapV2(requestID int32, sysUpTime uint32, trapOID OID, variables ...Variable) *PDU {
	return &PDU{
		Type:      PDUTrapV2,
		RequestID: requestID,
		Variables: notificationVariables(sysUpTime, trapOID, variables),
	}
}

// NewInformRequest creates an SNMPv2c/v3 InformRequest PDU, identical
// in varbind layout to a v2 trap but acknowledged by the receiver.
func NewInformRequest(requestID int32, sysUpTime uint32, trapOID OID, variables ...Variable) *PDU {
	return &PDU{
		Type:      PDUInformRequest,
		RequestID: requestID,
		Variables: notificationVariables(sysUpTime, trapOID, variables),
	}
}

func nullVariables(oids []OID) []Variable {
	variables := make([]Variable, len(oids))
	for i, oid := range oids {
		variables[i] = Variable{OID: oid, Type: TypeNull, Value: nil}
	}
	return variables
}

func notificationVariables(sysUpTime uint32, trapOID OID, extra []Variable) []Variable {
	allVars := make([]Variable, 0, len(extra)+2)
	allVars = append(allVars, Variable{
		OID:   OIDSysUpTime,
		Type:  TypeTimeTicks,
		Value: sysUpTime,
	})
	allVars = append(allVars, Variable{
		OID:   OIDSnmpTrapOID,
		Type:  TypeObjectIdentifier,
		Value: trapOID,
	})
	return append(allVars, extra...)
}
