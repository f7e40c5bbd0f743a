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

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeVariableInteger(t *testing.T) {
	v := &Variable{OID: MustParseOID("1.3.6.1.2.1.1.7.0"), Type: TypeInteger, Value: -42}

	encoded, err := encodeVariable(v)
	require.NoError(t, err)

	decoded, err := decodeVariable(encoded)
	require.NoError(t, err)
	require.True(t, v.OID.Equal(decoded.OID))
	require.Equal(t, TypeInteger, decoded.Type)
	require.Equal(t, -42, decoded.Value)
}

func TestEncodeDecodeVariableOctetString(t *testing.T) {
	v := &Variable{OID: OIDSysDescr, Type: TypeOctetString, Value: "edgeo-device"}

	encoded, err := encodeVariable(v)
	require.NoError(t, err)

	decoded, err := decodeVariable(encoded)
	require.NoError(t, err)
	require.Equal(t, []byte("edgeo-device"), decoded.Value)
}

func TestEncodeDecodeVariableCounter32AndTimeTicks(t *testing.T) {
	v := &Variable{OID: OIDSysUpTime, Type: TypeTimeTicks, Value: uint32(123456)}

	encoded, err := encodeVariable(v)
	require.NoError(t, err)

	decoded, err := decodeVariable(encoded)
	require.NoError(t, err)
	require.Equal(t, TypeTimeTicks, decoded.Type)
	require.Equal(t, uint32(123456), decoded.Value)
}

func TestEncodeDecodeVariableCounter64(t *testing.T) {
	v := &Variable{OID: MustParseOID("1.3.6.1.2.1.31.1.1.1.6.1"), Type: TypeCounter64, Value: uint64(1) << 40}

	encoded, err := encodeVariable(v)
	require.NoError(t, err)

	decoded, err := decodeVariable(encoded)
	require.NoError(t, err)
	require.Equal(t, uint64(1)<<40, decoded.Value)
}

func TestEncodeDecodeVariableIPAddress(t *testing.T) {
	v := &Variable{OID: MustParseOID("1.3.6.1.2.1.4.20.1.1"), Type: TypeIPAddress, Value: "192.0.2.1"}

	encoded, err := encodeVariable(v)
	require.NoError(t, err)

	decoded, err := decodeVariable(encoded)
	require.NoError(t, err)
	ip, ok := decoded.Value.(net.IP)
	require.True(t, ok)
	require.True(t, ip.Equal(net.ParseIP("192.0.2.1")))
}

func TestEncodeVariableInvalidIPAddress(t *testing.T) {
	v := &Variable{OID: OIDSysDescr, Type: TypeIPAddress, Value: "not-an-ip"}
	_, err := encodeVariable(v)
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestEncodeDecodeVariableNullAndExceptions(t *testing.T) {
	for _, typ := range []BERType{TypeNull, TypeNoSuchObject, TypeNoSuchInstance, TypeEndOfMibView} {
		v := &Variable{OID: OIDSysDescr, Type: typ}
		encoded, err := encodeVariable(v)
		require.NoError(t, err)

		decoded, err := decodeVariable(encoded)
		require.NoError(t, err)
		require.Equal(t, typ, decoded.Type)
		require.Nil(t, decoded.Value)
	}

	exception := &Variable{Type: TypeNoSuchInstance}
	require.True(t, exception.IsException())

	notException := &Variable{Type: TypeInteger, Value: 1}
	require.False(t, notException.IsException())
}

func TestEncodeVariableUnsupportedType(t *testing.T) {
	v := &Variable{OID: OIDSysDescr, Type: BERType(0x99), Value: 1}
	_, err := encodeVariable(v)
	require.ErrorIs(t, err, ErrInvalidType)
}

func TestVariableAccessors(t *testing.T) {
	intVar := &Variable{Value: int32(7)}
	i, ok := intVar.AsInt()
	require.True(t, ok)
	require.Equal(t, int64(7), i)

	u, ok := intVar.AsUint()
	require.True(t, ok)
	require.Equal(t, uint64(7), u)

	strVar := &Variable{Value: []byte("hello")}
	require.Equal(t, "hello", strVar.AsString())
	require.Equal(t, []byte("hello"), strVar.AsBytes())

	notNumeric := &Variable{Value: "abc"}
	_, ok = notNumeric.AsInt()
	require.False(t, ok)
}

func TestEncodeDecodeVariableBindings(t *testing.T) {
	vars := []Variable{
		{OID: OIDSysDescr, Type: TypeOctetString, Value: "desc"},
		{OID: OIDSysUpTime, Type: TypeTimeTicks, Value: uint32(42)},
	}

	encoded, err := encodeVariableBindings(vars)
	require.NoError(t, err)

	decoded, err := decodeVariables(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	require.True(t, decoded[0].OID.Equal(OIDSysDescr))
	require.True(t, decoded[1].OID.Equal(OIDSysUpTime))
}
