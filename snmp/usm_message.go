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
)

// V3MsgFlags are the single-byte msgFlags of the SNMPv3 header data,
// per RFC 3412 §6.
type V3MsgFlags byte

const (
	V3FlagAuth        V3MsgFlags = 0x01
	V3FlagPriv        V3MsgFlags = 0x02
	V3FlagReportable  V3MsgFlags = 0x04
)

// SecurityModel identifies the security model in use; this package
// implements only UserBasedSecurityModel (USM).
type SecurityModel int32

const (
	UserBasedSecurityModel SecurityModel = 3
)

// V3Message represents a complete SNMPv3 message: the shared header
// data, USM security parameters, and a scoped PDU that is in plaintext
// form once decrypted (or always, at noPriv/authNoPriv levels).
type V3Message struct {
	MsgID      int32
	MaxSize    int32
	Flags      V3MsgFlags
	SecModel   SecurityModel
	SecParams  UsmSecurityParameters
	ContextEngineID []byte
	ContextName     string
	PDU        *PDU

	// encryptedPDU holds the ciphertext scoped-PDU bytes between
	// decode and the caller's DecryptScopedPDU call, for authPriv
	// messages that must be authenticated before being decrypted.
	encryptedPDU []byte
}

// UsmSecurityParameters is the USM usmSecurityParameters SEQUENCE
// (RFC 3414 §2.4), carried as an OCTET STRING inside msgSecurityParameters.
type UsmSecurityParameters struct {
	AuthoritativeEngineID    []byte
	AuthoritativeEngineBoots int32
	AuthoritativeEngineTime  int32
	UserName                 string
	AuthenticationParameters []byte
	PrivacyParameters        []byte
}

// Copy returns a deep copy of the security parameters.
func (u *UsmSecurityParameters) Copy() *UsmSecurityParameters {
	c := *u
	c.AuthoritativeEngineID = append([]byte(nil), u.AuthoritativeEngineID...)
	c.AuthenticationParameters = append([]byte(nil), u.AuthenticationParameters...)
	c.PrivacyParameters = append([]byte(nil), u.PrivacyParameters...)
	return &c
}

func (u *UsmSecurityParameters) encode() []byte {
	var inner bytes.Buffer
	inner.Write(encodeTLV(TypeOctetString, u.AuthoritativeEngineID))
	inner.Write(encodeTLV(TypeInteger, encodeInteger(int64(u.AuthoritativeEngineBoots))))
	inner.Write(encodeTLV(TypeInteger, encodeInteger(int64(u.AuthoritativeEngineTime))))
	inner.Write(encodeTLV(TypeOctetString, []byte(u.UserName)))
	inner.Write(encodeTLV(TypeOctetString, u.AuthenticationParameters))
	inner.Write(encodeTLV(TypeOctetString, u.PrivacyParameters))
	return encodeTLV(TypeSequence, inner.Bytes())
}

func decodeUsmSecurityParameters(data []byte) (*UsmSecurityParameters, error) {
	r := bytes.NewReader(data)
	seqType, seqData, err := decodeTLV(r)
	if err != nil {
		return nil, err
	}
	if seqType != TypeSequence {
		return nil, NewParseError(fmt.Sprintf("usm security parameters: expected sequence, got %s", seqType), -1)
	}

	sr := bytes.NewReader(seqData)
	u := &UsmSecurityParameters{}

	_, v, err := decodeTLV(sr)
	if err != nil {
		return nil, err
	}
	u.AuthoritativeEngineID = v

	_, v, err = decodeTLV(sr)
	if err != nil {
		return nil, err
	}
	u.AuthoritativeEngineBoots = int32(decodeInteger(v))

	_, v, err = decodeTLV(sr)
	if err != nil {
		return nil, err
	}
	u.AuthoritativeEngineTime = int32(decodeInteger(v))

	_, v, err = decodeTLV(sr)
	if err != nil {
		return nil, err
	}
	u.UserName = string(v)

	_, v, err = decodeTLV(sr)
	if err != nil {
		return nil, err
	}
	u.AuthenticationParameters = v

	_, v, err = decodeTLV(sr)
	if err != nil {
		return nil, err
	}
	u.PrivacyParameters = v

	return u, nil
}

// encodeV3HeaderData encodes the shared msgGlobalData SEQUENCE.
func encodeV3HeaderData(msgID, maxSize int32, flags V3MsgFlags, secModel SecurityModel) []byte {
	var buf bytes.Buffer
	buf.Write(encodeTLV(TypeInteger, encodeInteger(int64(msgID))))
	buf.Write(encodeTLV(TypeInteger, encodeInteger(int64(maxSize))))
	buf.Write(encodeTLV(TypeOctetString, []byte{byte(flags)}))
	buf.Write(encodeTLV(TypeInteger, encodeInteger(int64(secModel))))
	return encodeTLV(TypeSequence, buf.Bytes())
}

// EncodeV3Message serializes a V3Message. When flags request privacy,
// the caller must have already set m.encryptedPDU (via EncryptScopedPDU);
// otherwise m.PDU is serialized in the clear as the scoped PDU.
func (m *V3Message) EncodeV3Message() ([]byte, error) {
	var buf bytes.Buffer

	buf.Write(encodeTLV(TypeInteger, encodeInteger(int64(Version3))))
	buf.Write(encodeV3HeaderData(m.MsgID, m.MaxSize, m.Flags, m.SecModel))
	buf.Write(encodeTLV(TypeOctetString, m.SecParams.encode()))

	scoped, err := m.scopedPDUBytes()
	if err != nil {
		return nil, err
	}
	buf.Write(scoped)

	return encodeTLV(TypeSequence, buf.Bytes()), nil
}

func (m *V3Message) scopedPDUBytes() ([]byte, error) {
	if m.Flags&V3FlagPriv != 0 {
		if m.encryptedPDU == nil {
			return nil, fmt.Errorf("%w: privacy flag set but scoped PDU was not encrypted", ErrPrivFailure)
		}
		return encodeTLV(TypeOctetString, m.encryptedPDU), nil
	}

	var scoped bytes.Buffer
	scoped.Write(encodeTLV(TypeOctetString, m.ContextEngineID))
	scoped.Write(encodeTLV(TypeOctetString, []byte(m.ContextName)))
	pduBytes, err := m.PDU.Encode()
	if err != nil {
		return nil, err
	}
	scoped.Write(pduBytes)
	return encodeTLV(TypeSequence, scoped.Bytes()), nil
}

// DecodeV3Message decodes an SNMPv3 message. If the message is
// encrypted the scoped PDU is left in ciphertext form in
// m.encryptedPDU for DecryptScopedPDU to resolve once the privacy key
// is available.
func DecodeV3Message(data []byte) (*V3Message, error) {
	r := bytes.NewReader(data)

	seqType, seqData, err := decodeTLV(r)
	if err != nil {
		return nil, err
	}
	if seqType != TypeSequence {
		return nil, NewParseError(fmt.Sprintf("v3 message: expected sequence, got %s", seqType), -1)
	}

	sr := bytes.NewReader(seqData)
	m := &V3Message{}

	_, versionData, err := decodeTLV(sr)
	if err != nil {
		return nil, err
	}
	if SNMPVersion(decodeInteger(versionData)) != Version3 {
		return nil, fmt.Errorf("%w: not an SNMPv3 message", ErrInvalidVersion)
	}

	_, headerData, err := decodeTLV(sr)
	if err != nil {
		return nil, err
	}
	if err := m.decodeHeaderData(headerData); err != nil {
		return nil, err
	}

	_, secParamsOctets, err := decodeTLV(sr)
	if err != nil {
		return nil, err
	}
	secParams, err := decodeUsmSecurityParameters(secParamsOctets)
	if err != nil {
		return nil, err
	}
	m.SecParams = *secParams

	if m.Flags&V3FlagAuth != 0 && len(m.SecParams.AuthenticationParameters) != usmAuthDigestLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidAuthParametersLength, len(m.SecParams.AuthenticationParameters), usmAuthDigestLength)
	}
	if m.Flags&V3FlagPriv != 0 && len(m.SecParams.PrivacyParameters) != usmPrivParametersLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidPrivParametersLength, len(m.SecParams.PrivacyParameters), usmPrivParametersLength)
	}

	scopedType, scopedData, err := decodeTLV(sr)
	if err != nil {
		return nil, err
	}

	if m.Flags&V3FlagPriv != 0 {
		if scopedType != TypeOctetString {
			return nil, fmt.Errorf("%w: encrypted scoped PDU must be an OCTET STRING", ErrInvalidPacket)
		}
		m.encryptedPDU = scopedData
		return m, nil
	}

	if scopedType != TypeSequence {
		return nil, NewParseError(fmt.Sprintf("scoped PDU: expected sequence, got %s", scopedType), -1)
	}
	return m, m.decodeScopedPDUPlaintext(scopedData)
}

func (m *V3Message) decodeHeaderData(data []byte) error {
	r := bytes.NewReader(data)

	_, v, err := decodeTLV(r)
	if err != nil {
		return err
	}
	m.MsgID = int32(decodeInteger(v))

	_, v, err = decodeTLV(r)
	if err != nil {
		return err
	}
	m.MaxSize = int32(decodeInteger(v))

	_, v, err = decodeTLV(r)
	if err != nil {
		return err
	}
	if len(v) != 1 {
		return NewParseError("msgFlags must be a single byte", -1)
	}
	m.Flags = V3MsgFlags(v[0])

	_, v, err = decodeTLV(r)
	if err != nil {
		return err
	}
	m.SecModel = SecurityModel(decodeInteger(v))
	if m.SecModel != UserBasedSecurityModel {
		return fmt.Errorf("%w: got %d, want %d (USM)", ErrUnsupportedSecurityModel, m.SecModel, UserBasedSecurityModel)
	}

	return nil
}

func (m *V3Message) decodeScopedPDUPlaintext(data []byte) error {
	r := bytes.NewReader(data)

	_, engineID, err := decodeTLV(r)
	if err != nil {
		return err
	}
	m.ContextEngineID = engineID

	_, contextName, err := decodeTLV(r)
	if err != nil {
		return err
	}
	m.ContextName = string(contextName)

	pdu, err := decodePDU(r)
	if err != nil {
		return err
	}
	if err := checkPDUTypeForVersion(Version3, pdu); err != nil {
		return err
	}
	m.PDU = pdu
	return nil
}

// DecryptScopedPDU decrypts m.encryptedPDU with the given privacy
// protocol/key and populates m.PDU/ContextEngineID/ContextName.
// Must be called only after the message has passed authentication.
func (m *V3Message) DecryptScopedPDU(proto PrivProtocol, privKey []byte) error {
	if m.encryptedPDU == nil {
		return nil
	}

	var plaintext []byte
	var err error

	switch proto {
	case DES:
		salt := m.SecParams.PrivacyParameters
		if len(salt) != usmPrivParametersLength {
			return fmt.Errorf("%w: DES salt must be %d bytes", ErrInvalidPrivParametersLength, usmPrivParametersLength)
		}
		iv := desIV(privKey, salt)
		plaintext, err = desDecrypt(privKey, iv, m.encryptedPDU)
	case AES:
		salt := m.SecParams.PrivacyParameters
		if len(salt) != usmPrivParametersLength {
			return fmt.Errorf("%w: AES salt must be %d bytes", ErrInvalidPrivParametersLength, usmPrivParametersLength)
		}
		plaintext, err = aesDecrypt(privKey, uint32(m.SecParams.AuthoritativeEngineBoots), uint32(m.SecParams.AuthoritativeEngineTime), salt, m.encryptedPDU)
	default:
		return fmt.Errorf("%w: privacy protocol %s not implemented", ErrUnsupportedSecLevel, proto)
	}
	if err != nil {
		return err
	}

	return m.decodeScopedPDUPlaintext(plaintext)
}

// EncryptScopedPDU serializes and encrypts the scoped PDU (context
// engine ID, context name, PDU) into m.encryptedPDU, and records the
// salt used into m.SecParams.PrivacyParameters.
func (m *V3Message) EncryptScopedPDU(proto PrivProtocol, privKey []byte, target *SecureTargetParams) error {
	var scoped bytes.Buffer
	scoped.Write(encodeTLV(TypeOctetString, m.ContextEngineID))
	scoped.Write(encodeTLV(TypeOctetString, []byte(m.ContextName)))
	pduBytes, err := m.PDU.Encode()
	if err != nil {
		return err
	}
	scoped.Write(pduBytes)

	switch proto {
	case DES:
		salt := target.nextDESSalt()
		iv := desIV(privKey, salt)
		ciphertext, err := desEncrypt(privKey, iv, scoped.Bytes())
		if err != nil {
			return err
		}
		m.encryptedPDU = ciphertext
		m.SecParams.PrivacyParameters = salt
	case AES:
		salt, err := target.nextAESSalt()
		if err != nil {
			return err
		}
		ciphertext, err := aesEncrypt(privKey, uint32(m.SecParams.AuthoritativeEngineBoots), uint32(m.SecParams.AuthoritativeEngineTime), salt, scoped.Bytes())
		if err != nil {
			return err
		}
		m.encryptedPDU = ciphertext
		m.SecParams.PrivacyParameters = salt
	default:
		return fmt.Errorf("%w: privacy protocol %s not implemented", ErrUnsupportedSecLevel, proto)
	}
	return nil
}
