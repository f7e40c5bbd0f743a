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
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash"
)

// USM (RFC 3414) key localization, authentication and privacy
// primitives. These stay on the standard library crypto packages
// rather than golang.org/x/crypto: gosnmp's USM implementation uses
// exactly this set (crypto/md5, crypto/sha1, crypto/des, crypto/aes,
// crypto/cipher) and nothing from x/crypto, so matching it is the
// idiomatic choice here, not a fallback.

const (
	usmPasswordIterations   = 1048576 // RFC 3414 §2.6: password expanded to 1MB
	usmAuthDigestLength     = 12      // HMAC-MD5-96 / HMAC-SHA1-96 truncation
	usmPrivParametersLength = 8       // DES and AES-CFB salts are both 8 bytes here
)

func hashForProtocol(proto AuthProtocol) (func() hash.Hash, error) {
	switch proto {
	case MD5:
		return md5.New, nil
	case SHA:
		return sha1.New, nil
	default:
		return nil, fmt.Errorf("%w: unsupported auth protocol %s", ErrUnsupportedSecLevel, proto)
	}
}

// localizeKey implements RFC 3414 §2.6's password-to-key algorithm:
// the passphrase is expanded to 1,048,576 bytes by cyclic repetition,
// hashed once to produce Ku, then localized to a specific SNMP engine
// as Kul = HASH(Ku || engineID || Ku).
func localizeKey(proto AuthProtocol, passphrase string, engineID []byte) ([]byte, error) {
	newHash, err := hashForProtocol(proto)
	if err != nil {
		return nil, err
	}

	if passphrase == "" {
		return nil, fmt.Errorf("%w: empty authentication passphrase", ErrAuthFailure)
	}

	h := newHash()
	password := []byte(passphrase)
	plen := len(password)

	var buf [64]byte
	written := 0
	for written < usmPasswordIterations {
		for i := 0; i < 64; i++ {
			buf[i] = password[written%plen]
			written++
		}
		h.Write(buf[:])
	}
	ku := h.Sum(nil)

	h2 := newHash()
	h2.Write(ku)
	h2.Write(engineID)
	h2.Write(ku)
	return h2.Sum(nil), nil
}

// hmacDigest computes the truncated HMAC used to authenticate a v3
// message: HMAC(key, wholeMessageWithZeroedAuthField)[:12].
func hmacDigest(proto AuthProtocol, key, message []byte) ([]byte, error) {
	newHash, err := hashForProtocol(proto)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(newHash, key)
	mac.Write(message)
	sum := mac.Sum(nil)
	if len(sum) < usmAuthDigestLength {
		return sum, nil
	}
	return sum[:usmAuthDigestLength], nil
}

// authenticateMessage returns the 12-byte authentication parameter to
// embed in usmSecurityParameters for the given serialized message,
// which must have its msgAuthenticationParameters field already
// zero-filled to the final digest length.
func authenticateMessage(proto AuthProtocol, key, wholeMessage []byte) ([]byte, error) {
	return hmacDigest(proto, key, wholeMessage)
}

// verifyMessage recomputes the digest over wholeMessage (with the
// authentication parameter field zeroed) and compares it in constant
// time against the digest the sender supplied.
func verifyMessage(proto AuthProtocol, key, wholeMessage, digest []byte) error {
	expected, err := hmacDigest(proto, key, wholeMessage)
	if err != nil {
		return err
	}
	if !hmac.Equal(expected, digest) {
		return ErrWrongDigest
	}
	return nil
}

// desEncrypt encrypts plaintext with DES-CBC, per RFC 3414 §8.1.1.
// The IV is the pre-IV (bytes 8-15 of the localized privacy key, the
// second half of its 16-byte DES key material)
// XORed with an 8-byte salt built from engine boots and a local
// counter; the salt itself travels in msgPrivacyParameters.
func desEncrypt(privKey, iv, plaintext []byte) ([]byte, error) {
	if len(privKey) < 8 {
		return nil, fmt.Errorf("%w: DES key too short", ErrPrivFailure)
	}
	block, err := des.NewCipher(privKey[:8])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrivFailure, err)
	}

	padded := padTo(plaintext, des.BlockSize)
	ciphertext := make([]byte, len(padded))
	cbc := cipher.NewCBCEncrypter(block, iv)
	cbc.CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// desDecrypt reverses desEncrypt.
func desDecrypt(privKey, iv, ciphertext []byte) ([]byte, error) {
	if len(privKey) < 8 {
		return nil, fmt.Errorf("%w: DES key too short", ErrPrivFailure)
	}
	if len(ciphertext)%des.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext not block-aligned", ErrDecryptionError)
	}
	block, err := des.NewCipher(privKey[:8])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionError, err)
	}
	plaintext := make([]byte, len(ciphertext))
	cbc := cipher.NewCBCDecrypter(block, iv)
	cbc.CryptBlocks(plaintext, ciphertext)
	return plaintext, nil
}

// desIV builds the CBC IV from the privacy key's pre-IV material and
// the 8-byte salt carried in msgPrivacyParameters.
func desIV(privKey, salt []byte) []byte {
	preIV := privKey[8:16]
	iv := make([]byte, des.BlockSize)
	for i := range iv {
		iv[i] = preIV[i] ^ salt[i]
	}
	return iv
}

// aesEncrypt encrypts plaintext with AES-128 in CFB mode, per RFC
// 3826. The IV is engineBoots(4) || engineTime(4) || salt(8); the
// 8-byte salt travels in msgPrivacyParameters.
func aesEncrypt(privKey []byte, engineBoots, engineTime uint32, salt, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(privKey[:16])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrivFailure, err)
	}
	iv := aesIV(engineBoots, engineTime, salt)
	ciphertext := make([]byte, len(plaintext))
	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext, plaintext)
	return ciphertext, nil
}

// aesDecrypt reverses aesEncrypt.
func aesDecrypt(privKey []byte, engineBoots, engineTime uint32, salt, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(privKey[:16])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionError, err)
	}
	iv := aesIV(engineBoots, engineTime, salt)
	plaintext := make([]byte, len(ciphertext))
	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

func aesIV(engineBoots, engineTime uint32, salt []byte) []byte {
	iv := make([]byte, 16)
	binary.BigEndian.PutUint32(iv[0:4], engineBoots)
	binary.BigEndian.PutUint32(iv[4:8], engineTime)
	copy(iv[8:16], salt)
	return iv
}

// padTo zero-pads data up to the next multiple of blockSize, per RFC
// 3414 §8.1.1.1's DES padding rule (SNMP payloads are already a
// multiple of the PDU's own encoding, so the pad is usually empty).
func padTo(data []byte, blockSize int) []byte {
	rem := len(data) % blockSize
	if rem == 0 {
		return data
	}
	padded := make([]byte, len(data)+(blockSize-rem))
	copy(padded, data)
	return padded
}
