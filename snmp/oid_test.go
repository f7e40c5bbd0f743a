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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseOIDAndString(t *testing.T) {
	oid, err := ParseOID("1.3.6.1.2.1.1.1.0")
	require.NoError(t, err)
	require.Equal(t, OID{1, 3, 6, 1, 2, 1, 1, 1, 0}, oid)
	require.Equal(t, "1.3.6.1.2.1.1.1.0", oid.String())
}

func TestParseOIDLeadingDot(t *testing.T) {
	oid, err := ParseOID(".1.3.6.1")
	require.NoError(t, err)
	require.Equal(t, OID{1, 3, 6, 1}, oid)
}

func TestParseOIDInvalid(t *testing.T) {
	_, err := ParseOID("")
	require.ErrorIs(t, err, ErrInvalidOID)

	_, err = ParseOID("1.3.x.1")
	require.ErrorIs(t, err, ErrInvalidOID)
}

func TestMustParseOIDPanics(t *testing.T) {
	require.Panics(t, func() {
		MustParseOID("not-an-oid")
	})
}

func TestOIDEqual(t *testing.T) {
	a := MustParseOID("1.3.6.1.2.1")
	b := MustParseOID("1.3.6.1.2.1")
	c := MustParseOID("1.3.6.1.2.2")

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
	require.False(t, a.Equal(MustParseOID("1.3.6.1.2")))
}

func TestOIDHasPrefix(t *testing.T) {
	full := MustParseOID("1.3.6.1.2.1.1.1.0")
	require.True(t, full.HasPrefix(MustParseOID("1.3.6.1.2.1")))
	require.True(t, full.HasPrefix(full))
	require.False(t, full.HasPrefix(MustParseOID("1.3.6.1.2.2")))
	require.False(t, full.HasPrefix(MustParseOID("1.3.6.1.2.1.1.1.0.1")))
}

func TestOIDCompare(t *testing.T) {
	cases := []struct {
		a, b OID
		want int
	}{
		{MustParseOID("1.3.6.1"), MustParseOID("1.3.6.1"), 0},
		{MustParseOID("1.3.6.1"), MustParseOID("1.3.6.2"), -1},
		{MustParseOID("1.3.6.2"), MustParseOID("1.3.6.1"), 1},
		{MustParseOID("1.3.6.1"), MustParseOID("1.3.6.1.0"), -1},
		{MustParseOID("1.3.6.1.0"), MustParseOID("1.3.6.1"), 1},
	}

	for _, c := range cases {
		require.Equal(t, c.want, c.a.Compare(c.b), "%s vs %s", c.a, c.b)
	}
}

func TestOIDCompareLexical(t *testing.T) {
	cases := []struct {
		a, b OID
		want int
	}{
		{MustParseOID("1.3.6.1"), MustParseOID("1.3.6.1"), 0},
		{MustParseOID("1.3.6.1"), MustParseOID("1.3.6.2"), -1},
		{MustParseOID("1.3.6.2"), MustParseOID("1.3.6.1"), 1},
		// Unlike Compare, a pure prefix relationship compares equal:
		// no length tie-break.
		{MustParseOID("1.3.6.1"), MustParseOID("1.3.6.1.0"), 0},
		{MustParseOID("1.3.6.1.0"), MustParseOID("1.3.6.1"), 0},
	}

	for _, c := range cases {
		require.Equal(t, c.want, c.a.CompareLexical(c.b), "%s vs %s", c.a, c.b)
	}
}

func TestOIDCopyIsIndependent(t *testing.T) {
	original := MustParseOID("1.3.6.1")
	clone := original.Copy()
	clone[0] = 99
	require.Equal(t, uint32(1), original[0])
}

func TestOIDAppend(t *testing.T) {
	base := MustParseOID("1.3.6.1.2.1.1")
	appended := base.Append(1, 0)
	require.Equal(t, MustParseOID("1.3.6.1.2.1.1.1.0"), appended)
}

func TestEncodeDecodeOID(t *testing.T) {
	oids := []string{
		"1.3.6.1.2.1.1.1.0",
		"1.3.6.1.6.3.1.1.4.1.0",
		"1.3.6.1.4.1.9.9.13.1.3.1.3.1",
		"0.0",
	}

	for _, s := range oids {
		oid := MustParseOID(s)
		encoded := encodeOID(oid)
		decoded, err := decodeOID(encoded)
		require.NoError(t, err)
		if diff := cmp.Diff(oid, decoded); diff != "" {
			t.Errorf("OID %s round trip mismatch (-want +got):\n%s", s, diff)
		}
	}
}

func TestDecodeOIDTruncatedComponent(t *testing.T) {
	// A final byte with the continuation bit set is an incomplete
	// base-128 component.
	_, err := decodeOID([]byte{0x2b, 0x86})
	require.Error(t, err)
}

func TestEncodeOIDTooShort(t *testing.T) {
	require.Nil(t, encodeOID(OID{1}))
}
