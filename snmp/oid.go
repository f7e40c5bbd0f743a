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
	"fmt"
	"strconv"
	"strings"
)

// OID represents an SNMP Object Identifier as a sequence of unsigned
// 32-bit sub-identifiers, per the ASN.1 OBJECT IDENTIFIER encoding
// used on the wire (a sub-identifier above 2^31 must still round-trip,
// which an []int representation cannot guarantee on 32-bit builds).
type OID []uint32

// String returns the dotted-decimal string representation.
func (o OID) String() string {
	if len(o) == 0 {
		return ""
	}
	parts := make([]string, len(o))
	for i, n := range o {
		parts[i] = strconv.FormatUint(uint64(n), 10)
	}
	return strings.Join(parts, ".")
}

// ParseOID parses a dotted-decimal OID string, e.g. "1.3.6.1.2.1.1.1.0".
func ParseOID(s string) (OID, error) {
	if s == "" {
		return nil, ErrInvalidOID
	}

	s = strings.TrimPrefix(s, ".")

	parts := strings.Split(s, ".")
	oid := make(OID, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid component %q: %v", ErrInvalidOID, p, err)
		}
		oid[i] = uint32(n)
	}

	return oid, nil
}

// MustParseOID parses an OID string and panics on error. Intended for
// package-level variable initialization of well-known OIDs.
func MustParseOID(s string) OID {
	oid, err := ParseOID(s)
	if err != nil {
		panic(err)
	}
	return oid
}

// Equal reports whether two OIDs have identical sub-identifiers.
func (o OID) Equal(other OID) bool {
	if len(o) != len(other) {
		return false
	}
	for i, n := range o {
		if n != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether o starts with the given prefix.
func (o OID) HasPrefix(prefix OID) bool {
	if len(prefix) > len(o) {
		return false
	}
	for i, n := range prefix {
		if n != o[i] {
			return false
		}
	}
	return true
}

// CompareLexical returns -1, 0, or 1 as o is lexicographically less
// than, equal to, or greater than other over the first min(len(o),
// len(other)) sub-identifiers, with no tie-break by length: one OID
// being a prefix of the other compares equal. Use Compare when a
// strict total order (prefix-then-shorter-first) is needed instead.
func (o OID) CompareLexical(other OID) int {
	n := len(o)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if o[i] != other[i] {
			if o[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Compare returns -1, 0, or 1 as o is lexicographically less than,
// equal to, or greater than other, comparing sub-identifiers pairwise
// and falling back to length when one is a prefix of the other.
func (o OID) Compare(other OID) int {
	if c := o.CompareLexical(other); c != 0 {
		return c
	}
	switch {
	case len(o) < len(other):
		return -1
	case len(o) > len(other):
		return 1
	default:
		return 0
	}
}

// Copy returns an independent copy of the OID.
func (o OID) Copy() OID {
	c := make(OID, len(o))
	copy(c, o)
	return c
}

// Append returns a new OID with the given sub-identifiers appended.
func (o OID) Append(subIDs ...uint32) OID {
	c := make(OID, 0, len(o)+len(subIDs))
	c = append(c, o...)
	c = append(c, subIDs...)
	return c
}

// encodeOID encodes an OID using the BER OBJECT IDENTIFIER rule: the
// first two sub-identifiers are combined as (first*40 + second), and
// every subsequent sub-identifier is base-128 encoded with the
// continuation bit set on all but the final byte.
func encodeOID(oid OID) []byte {
	if len(oid) < 2 {
		return nil
	}

	buf := []byte{byte(oid[0]*40 + oid[1])}

	for i := 2; i < len(oid); i++ {
		buf = append(buf, encodeOIDComponent(oid[i])...)
	}

	return buf
}

// encodeOIDComponent base-128 encodes a single sub-identifier.
func encodeOIDComponent(value uint32) []byte {
	if value < 128 {
		return []byte{byte(value)}
	}

	var buf []byte
	temp := value
	for temp > 0 {
		buf = append([]byte{byte(temp & 0x7f)}, buf...)
		temp >>= 7
	}

	for i := 0; i < len(buf)-1; i++ {
		buf[i] |= 0x80
	}

	return buf
}

// decodeOID decodes a BER OBJECT IDENTIFIER value.
func decodeOID(data []byte) (OID, error) {
	if len(data) == 0 {
		return nil, NewParseError("empty OID", -1)
	}

	oid := OID{uint32(data[0] / 40), uint32(data[0] % 40)}

	var current uint32
	haveComponent := false
	for i := 1; i < len(data); i++ {
		current = (current << 7) | uint32(data[i]&0x7f)
		haveComponent = true
		if data[i]&0x80 == 0 {
			oid = append(oid, current)
			current = 0
			haveComponent = false
		}
	}
	if haveComponent {
		return nil, NewParseError("truncated OID component", -1)
	}

	return oid, nil
}
