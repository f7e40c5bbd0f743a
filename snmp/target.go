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
	"crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// CommunityParams carries everything needed to address an SNMPv1/v2c
// target: the community string used as the message's only access
// control.
type CommunityParams struct {
	Community string
	Version   SNMPVersion
}

// Validate reports whether the community parameters are well-formed
// enough to send a request.
func (p *CommunityParams) Validate() error {
	if p.Version != Version1 && p.Version != Version2c {
		return fmt.Errorf("%w: CommunityParams requires v1 or v2c", ErrInvalidVersion)
	}
	return nil
}

// SecureTargetParams carries everything needed to address an SNMPv3
// USM target: the security name, security level, auth/priv
// protocols and localized keys, and the engine-discovery state
// (engine ID, boots, time) that must be refreshed periodically.
type SecureTargetParams struct {
	SecurityName string
	SecurityLevel SecurityLevel

	AuthProtocol   AuthProtocol
	AuthPassphrase string
	PrivProtocol   PrivProtocol
	PrivPassphrase string

	ContextName     string
	ContextEngineID []byte

	// nowFunc is injectable for deterministic tests; defaults to
	// time.Now.
	nowFunc func() time.Time

	mu               sync.Mutex
	engineID         []byte
	engineBoots      int32
	engineTime       int32
	engineTimeStamp  time.Time
	localAuthKey     []byte
	localPrivKey     []byte
	desLocalCounter  uint32
	aesLocalCounter  uint64
	discovered       bool
	peerMaxSize      int32
}

// NewSecureTargetParams builds USM target parameters for the given
// security name/level/protocols. Key localization happens lazily on
// the first successful engine discovery, since it requires the
// authoritative engine's ID.
func NewSecureTargetParams(securityName string, level SecurityLevel) *SecureTargetParams {
	return &SecureTargetParams{
		SecurityName:  securityName,
		SecurityLevel: level,
		nowFunc:       time.Now,
	}
}

// Validate checks that the configured security level has the
// protocols/passphrases it requires.
func (p *SecureTargetParams) Validate() error {
	if p.SecurityName == "" {
		return fmt.Errorf("%w: empty security name", ErrUnknownUserName)
	}
	if p.SecurityLevel >= AuthNoPriv {
		if p.AuthProtocol == NoAuth {
			return fmt.Errorf("%w: security level %s requires an auth protocol", ErrUnsupportedSecLevel, p.SecurityLevel)
		}
		if p.AuthProtocol != MD5 && p.AuthProtocol != SHA {
			return fmt.Errorf("%w: auth protocol %s not implemented", ErrUnsupportedSecLevel, p.AuthProtocol)
		}
		if len(p.AuthPassphrase) < 8 {
			return fmt.Errorf("%w: auth passphrase must be at least 8 characters", ErrAuthFailure)
		}
	}
	if p.SecurityLevel == AuthPriv {
		if p.PrivProtocol != DES && p.PrivProtocol != AES {
			return fmt.Errorf("%w: privacy protocol %s not implemented", ErrUnsupportedSecLevel, p.PrivProtocol)
		}
		if len(p.PrivPassphrase) < 8 {
			return fmt.Errorf("%w: privacy passphrase must be at least 8 characters", ErrPrivFailure)
		}
	}
	return nil
}

// IsDiscovered reports whether engine parameters have been learned
// from the agent.
func (p *SecureTargetParams) IsDiscovered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discovered
}

// EngineID returns the cached authoritative engine ID, if discovered.
func (p *SecureTargetParams) EngineID() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engineID
}

// setEngine records engine discovery/time-sync results and (re)derives
// the localized auth/priv keys the first time an engine ID becomes
// known or changes.
func (p *SecureTargetParams) setEngine(engineID []byte, boots, engineTime int32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	engineChanged := string(p.engineID) != string(engineID)
	p.engineID = append([]byte(nil), engineID...)
	p.engineBoots = boots
	p.engineTime = engineTime
	p.engineTimeStamp = p.now()
	p.discovered = true

	if engineChanged {
		if p.SecurityLevel >= AuthNoPriv && p.AuthProtocol != NoAuth {
			key, err := localizeKey(p.AuthProtocol, p.AuthPassphrase, engineID)
			if err != nil {
				return err
			}
			p.localAuthKey = key
		}
		if p.SecurityLevel == AuthPriv && p.PrivProtocol != NoPriv {
			key, err := localizeKey(p.AuthProtocol, p.PrivPassphrase, engineID)
			if err != nil {
				return err
			}
			p.localPrivKey = key
		}
	}
	return nil
}

// acceptEngineTime applies RFC 3414 §3.2(7)'s anti-replay rule for a
// notification listener, which has no independently-synced clock for a
// remote engine to check an inbound message's claimed time against: a
// message is rejected if its boots is lower than the last one accepted
// from this engine, or if, with equal boots, its time is more than
// usmTimeWindow seconds older. Acceptance only ever advances the stored
// (boots, time) forward rather than resyncing to whatever the message
// claims regardless of order.
func (p *SecureTargetParams) acceptEngineTime(boots, engineTime int32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.discovered {
		if boots < p.engineBoots {
			return ErrNotInTimeWindow
		}
		if boots == p.engineBoots && engineTime < p.engineTime-usmTimeWindow {
			return ErrNotInTimeWindow
		}
	}

	if !p.discovered || boots > p.engineBoots || (boots == p.engineBoots && engineTime > p.engineTime) {
		p.engineBoots = boots
		p.engineTime = engineTime
		p.engineTimeStamp = p.now()
	}
	p.discovered = true
	return nil
}

// setPeerMaxSize records the msgMaxSize the agent advertised on its
// most recent reply, the upper bound on how large a request we can
// send it (RFC 3412 §6, msgMaxSize field).
func (p *SecureTargetParams) setPeerMaxSize(n int32) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	p.peerMaxSize = n
	p.mu.Unlock()
}

// PeerMaxSize returns the last msgMaxSize the agent advertised, or 0
// if none has been observed yet.
func (p *SecureTargetParams) PeerMaxSize() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peerMaxSize
}

// currentEngineTime projects the locally-tracked engineTime forward by
// how much wall-clock time has elapsed since the last sync, per RFC
// 3414 §2.3's timeliness check.
func (p *SecureTargetParams) currentEngineTime() (boots, engineTime int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	elapsed := int32(p.now().Sub(p.engineTimeStamp).Seconds())
	return p.engineBoots, p.engineTime + elapsed
}

// nextDESSalt returns the next 8-byte DES privacy salt: engine-boots
// (4 bytes) concatenated with a monotonically increasing local
// counter (4 bytes), per RFC 3414 §8.1.1.1.
func (p *SecureTargetParams) nextDESSalt() []byte {
	p.mu.Lock()
	p.desLocalCounter++
	counter := p.desLocalCounter
	boots := p.engineBoots
	p.mu.Unlock()

	salt := make([]byte, 8)
	salt[0] = byte(boots >> 24)
	salt[1] = byte(boots >> 16)
	salt[2] = byte(boots >> 8)
	salt[3] = byte(boots)
	salt[4] = byte(counter >> 24)
	salt[5] = byte(counter >> 16)
	salt[6] = byte(counter >> 8)
	salt[7] = byte(counter)
	return salt
}

// nextAESSalt returns the next 8-byte AES privacy salt: an
// unpredictable 64-bit value, seeded from crypto/rand and then
// incremented per message so two messages never reuse a salt within
// a single engine boot.
func (p *SecureTargetParams) nextAESSalt() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.aesLocalCounter == 0 {
		var seed [8]byte
		if _, err := rand.Read(seed[:]); err != nil {
			return nil, fmt.Errorf("snmp: generating AES salt seed: %w", err)
		}
		p.aesLocalCounter = beUint64(seed[:])
	}
	atomic.AddUint64(&p.aesLocalCounter, 1)

	salt := make([]byte, 8)
	putUint64(salt, p.aesLocalCounter)
	return salt, nil
}

func (p *SecureTargetParams) now() time.Time {
	if p.nowFunc != nil {
		return p.nowFunc()
	}
	return time.Now()
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = (v << 8) | uint64(x)
	}
	return v
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}
