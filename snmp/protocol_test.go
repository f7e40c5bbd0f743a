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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeLength(t *testing.T) {
	cases := []struct {
		length int
		want   []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x81, 0x80}},
		{255, []byte{0x81, 0xff}},
		{256, []byte{0x82, 0x01, 0x00}},
		{65535, []byte{0x82, 0xff, 0xff}},
	}

	for _, c := range cases {
		got := encodeLength(c.length)
		require.Equal(t, c.want, got, "length %d", c.length)

		decoded, err := decodeLength(bytes.NewReader(got))
		require.NoError(t, err)
		require.Equal(t, c.length, decoded)
	}
}

func TestDecodeLengthRejectsIndefinite(t *testing.T) {
	_, err := decodeLength(bytes.NewReader([]byte{0x80}))
	require.Error(t, err)
}

func TestEncodeDecodeInteger(t *testing.T) {
	cases := []int64{0, 1, -1, 127, 128, -128, -129, 255, 256, 65535, -65536, 1 << 30, -(1 << 30)}

	for _, v := range cases {
		encoded := encodeInteger(v)
		decoded := decodeInteger(encoded)
		require.Equal(t, v, decoded, "value %d encoded as % x", v, encoded)
	}
}

func TestEncodeIntegerMinimalLength(t *testing.T) {
	// 127 fits in one byte; 128 requires a leading zero to keep the sign
	// bit clear.
	require.Equal(t, []byte{0x7f}, encodeInteger(127))
	require.Equal(t, []byte{0x00, 0x80}, encodeInteger(128))
	require.Equal(t, []byte{0x80}, encodeInteger(-128))
	require.Equal(t, []byte{0xff, 0x7f}, encodeInteger(-129))
}

func TestEncodeDecodeUnsignedInteger(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 255, 256, 0x7fffffff, 0x80000000, 0xffffffff}

	for _, v := range cases {
		encoded := encodeUnsignedInteger(v)
		decoded := decodeUnsignedInteger(encoded)
		require.Equal(t, v, decoded, "value %d encoded as % x", v, encoded)
	}
}

func TestEncodeUnsignedIntegerPadsHighBit(t *testing.T) {
	// 0x80000000 would look negative without a padding zero byte.
	encoded := encodeUnsignedInteger(0x80000000)
	require.Equal(t, []byte{0x00, 0x80, 0x00, 0x00, 0x00}, encoded)
}

func TestEncodeDecodeTLV(t *testing.T) {
	value := []byte("public")
	encoded := encodeTLV(TypeOctetString, value)

	berType, decoded, err := decodeTLV(bytes.NewReader(encoded))
	require.NoError(t, err)
	require.Equal(t, TypeOctetString, berType)
	require.Equal(t, value, decoded)
}

func TestDecodeTLVTruncated(t *testing.T) {
	// Claims a 10-byte value but supplies none.
	_, _, err := decodeTLV(bytes.NewReader([]byte{byte(TypeOctetString), 0x0a}))
	require.Error(t, err)
}

func TestTimeTicksRoundTrip(t *testing.T) {
	ticks := SecondsToTimeTicks(12.34)
	require.InDelta(t, 12.34, TimeTicksToSeconds(ticks), 0.01)
}

func TestTimeTicksToString(t *testing.T) {
	require.Equal(t, "00:00:01.00", TimeTicksToString(100))
	require.Equal(t, "1 days, 00:00:00.00", TimeTicksToString(100*86400))
}
