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
	"net"
)

// Variable is a variable binding (VB): an OID paired with a tagged SMI
// value. Type carries the wire tag so a VB round-trips even for values
// the caller never inspects (e.g. relaying a trap payload unmodified).
type Variable struct {
	OID   OID
	Type  BERType
	Value interface{}
}

// String returns a human-readable representation of the variable.
func (v *Variable) String() string {
	return fmt.Sprintf("%s = %s: %v", v.OID, v.Type, v.Value)
}

// AsInt returns the value as a signed integer, if it is one of the
// integer-bearing SMI types.
func (v *Variable) AsInt() (int64, bool) {
	switch val := v.Value.(type) {
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	default:
		return 0, false
	}
}

// AsUint returns the value as an unsigned integer.
func (v *Variable) AsUint() (uint64, bool) {
	switch val := v.Value.(type) {
	case int:
		return uint64(val), true
	case int32:
		return uint64(val), true
	case int64:
		return uint64(val), true
	case uint32:
		return uint64(val), true
	case uint64:
		return val, true
	default:
		return 0, false
	}
}

// AsString returns the value rendered as a string.
func (v *Variable) AsString() string {
	switch val := v.Value.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", v.Value)
	}
}

// AsBytes returns the value's raw bytes, for OCTET STRING and Opaque.
func (v *Variable) AsBytes() []byte {
	switch val := v.Value.(type) {
	case []byte:
		return val
	case string:
		return []byte(val)
	default:
		return nil
	}
}

// IsException reports whether the variable carries one of the
// SNMPv2c exception markers (noSuchObject, noSuchInstance,
// endOfMibView) instead of a real value.
func (v *Variable) IsException() bool {
	switch v.Type {
	case TypeNoSuchObject, TypeNoSuchInstance, TypeEndOfMibView:
		return true
	default:
		return false
	}
}

// encodeVariable encodes a single variable binding as a BER SEQUENCE
// of { OBJECT IDENTIFIER, value }.
func encodeVariable(v *Variable) ([]byte, error) {
	var buf bytes.Buffer

	oidBytes := encodeOID(v.OID)
	buf.Write(encodeTLV(TypeObjectIdentifier, oidBytes))

	switch v.Type {
	case TypeNull, TypeNoSuchObject, TypeNoSuchInstance, TypeEndOfMibView:
		buf.Write(encodeTLV(v.Type, nil))

	case TypeInteger:
		val, ok := v.AsInt()
		if !ok {
			return nil, fmt.Errorf("%w: invalid integer value %v", ErrInvalidValue, v.Value)
		}
		buf.Write(encodeTLV(TypeInteger, encodeInteger(val)))

	case TypeOctetString, TypeOpaque, TypeBitString:
		data := v.AsBytes()
		if data == nil && v.Value != nil {
			return nil, fmt.Errorf("%w: invalid octet string value %v", ErrInvalidValue, v.Value)
		}
		buf.Write(encodeTLV(v.Type, data))

	case TypeObjectIdentifier:
		oid, ok := v.Value.(OID)
		if !ok {
			return nil, fmt.Errorf("%w: invalid OID value %v", ErrInvalidValue, v.Value)
		}
		buf.Write(encodeTLV(TypeObjectIdentifier, encodeOID(oid)))

	case TypeIPAddress:
		ip4, err := encodeIPAddress(v.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(encodeTLV(TypeIPAddress, ip4))

	case TypeCounter32, TypeGauge32, TypeTimeTicks, TypeUInteger32:
		val, ok := v.AsUint()
		if !ok {
			return nil, fmt.Errorf("%w: invalid unsigned integer value %v", ErrInvalidValue, v.Value)
		}
		if val > 0xffffffff {
			return nil, fmt.Errorf("%w: %s value %d overflows 32 bits", ErrInvalidValue, v.Type, val)
		}
		buf.Write(encodeTLV(v.Type, encodeUnsignedInteger(val)))

	case TypeCounter64:
		val, ok := v.AsUint()
		if !ok {
			return nil, fmt.Errorf("%w: invalid counter64 value %v", ErrInvalidValue, v.Value)
		}
		buf.Write(encodeTLV(TypeCounter64, encodeUnsignedInteger(val)))

	default:
		return nil, fmt.Errorf("%w: unsupported type %s", ErrInvalidType, v.Type)
	}

	return encodeTLV(TypeSequence, buf.Bytes()), nil
}

func encodeIPAddress(value interface{}) ([]byte, error) {
	var ip net.IP
	switch val := value.(type) {
	case net.IP:
		ip = val
	case string:
		ip = net.ParseIP(val)
	case []byte:
		ip = net.IP(val)
	default:
		return nil, fmt.Errorf("%w: invalid IP address value %v", ErrInvalidValue, value)
	}
	if ip == nil {
		return nil, fmt.Errorf("%w: invalid IP address %v", ErrInvalidValue, value)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("%w: not an IPv4 address %v", ErrInvalidValue, value)
	}
	return ip4, nil
}

// decodeVariable decodes one variable binding SEQUENCE.
func decodeVariable(data []byte) (*Variable, error) {
	r := bytes.NewReader(data)

	seqType, seqData, err := decodeTLV(r)
	if err != nil {
		return nil, err
	}
	if seqType != TypeSequence {
		return nil, NewParseError(fmt.Sprintf("expected sequence, got %s", seqType), -1)
	}

	return decodeVariableBody(seqData)
}

func decodeVariableBody(seqData []byte) (*Variable, error) {
	seqReader := bytes.NewReader(seqData)

	oidType, oidData, err := decodeTLV(seqReader)
	if err != nil {
		return nil, err
	}
	if oidType != TypeObjectIdentifier {
		return nil, NewParseError(fmt.Sprintf("expected OID, got %s", oidType), -1)
	}
	oid, err := decodeOID(oidData)
	if err != nil {
		return nil, err
	}

	valType, valData, err := decodeTLV(seqReader)
	if err != nil {
		return nil, err
	}

	v := &Variable{OID: oid, Type: valType}

	switch valType {
	case TypeNull, TypeNoSuchObject, TypeNoSuchInstance, TypeEndOfMibView:
		v.Value = nil

	case TypeInteger:
		v.Value = int(decodeInteger(valData))

	case TypeOctetString, TypeOpaque, TypeBitString:
		v.Value = valData

	case TypeObjectIdentifier:
		v.Value, err = decodeOID(valData)
		if err != nil {
			return nil, err
		}

	case TypeIPAddress:
		if len(valData) == 4 {
			v.Value = net.IP(valData)
		} else {
			v.Value = valData
		}

	case TypeCounter32, TypeGauge32, TypeTimeTicks, TypeUInteger32:
		v.Value = uint32(decodeUnsignedInteger(valData))

	case TypeCounter64:
		v.Value = decodeUnsignedInteger(valData)

	default:
		v.Value = valData
	}

	return v, nil
}

// decodeVariables decodes a SEQUENCE OF VarBind.
func decodeVariables(data []byte) ([]Variable, error) {
	r := bytes.NewReader(data)

	seqType, seqData, err := decodeTLV(r)
	if err != nil {
		return nil, err
	}
	if seqType != TypeSequence {
		return nil, NewParseError(fmt.Sprintf("expected sequence, got %s", seqType), -1)
	}

	var variables []Variable
	seqReader := bytes.NewReader(seqData)

	for seqReader.Len() > 0 {
		vbType, vbData, err := decodeTLV(seqReader)
		if err != nil {
			return nil, err
		}
		if vbType != TypeSequence {
			return nil, NewParseError(fmt.Sprintf("expected sequence, got %s", vbType), -1)
		}

		v, err := decodeVariableBody(vbData)
		if err != nil {
			return nil, err
		}

		variables = append(variables, *v)
	}

	return variables, nil
}

// encodeVariableBindings encodes a VarBindList.
func encodeVariableBindings(variables []Variable) ([]byte, error) {
	var buf bytes.Buffer

	for i := range variables {
		vbBytes, err := encodeVariable(&variables[i])
		if err != nil {
			return nil, err
		}
		buf.Write(vbBytes)
	}

	return encodeTLV(TypeSequence, buf.Bytes()), nil
}
