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
	"time"

	"github.com/stretchr/testify/require"
)

func newTestTarget() *SecureTargetParams {
	target := NewSecureTargetParams("admin", AuthPriv)
	target.AuthProtocol = SHA
	target.AuthPassphrase = "authpass123"
	target.PrivProtocol = AES
	target.PrivPassphrase = "privpass123"
	target.nowFunc = func() time.Time { return time.Unix(1000, 0) }
	return target
}

func TestValidateRequiresSecurityName(t *testing.T) {
	target := NewSecureTargetParams("", NoAuthNoPriv)
	require.ErrorIs(t, target.Validate(), ErrUnknownUserName)
}

func TestValidateRejectsUnimplementedAuthProtocol(t *testing.T) {
	target := NewSecureTargetParams("admin", AuthNoPriv)
	target.AuthProtocol = SHA256
	target.AuthPassphrase = "authpass123"
	require.ErrorIs(t, target.Validate(), ErrUnsupportedSecLevel)
}

func TestValidateRejectsShortPassphrase(t *testing.T) {
	target := NewSecureTargetParams("admin", AuthNoPriv)
	target.AuthProtocol = MD5
	target.AuthPassphrase = "short"
	require.ErrorIs(t, target.Validate(), ErrAuthFailure)
}

func TestValidateAcceptsAuthPriv(t *testing.T) {
	target := newTestTarget()
	require.NoError(t, target.Validate())
}

func TestSetEngineLocalizesKeysOnFirstDiscovery(t *testing.T) {
	target := newTestTarget()

	err := target.setEngine([]byte{0x80, 0x00, 0x00, 0x00, 0x01}, 1, 100)
	require.NoError(t, err)
	require.True(t, target.IsDiscovered())
	require.NotEmpty(t, target.localAuthKey)
	require.NotEmpty(t, target.localPrivKey)
}

func TestAcceptEngineTimeFirstContactAlwaysAccepted(t *testing.T) {
	target := newTestTarget()

	err := target.acceptEngineTime(5, 500)
	require.NoError(t, err)
	require.True(t, target.discovered)
	require.Equal(t, int32(5), target.engineBoots)
	require.Equal(t, int32(500), target.engineTime)
}

func TestAcceptEngineTimeAdvancesForward(t *testing.T) {
	target := newTestTarget()
	require.NoError(t, target.acceptEngineTime(5, 500))

	// A later message from the same boot, with a newer time, advances
	// the stored baseline forward.
	require.NoError(t, target.acceptEngineTime(5, 600))
	require.Equal(t, int32(600), target.engineTime)

	// A higher engineBoots (the agent restarted) also advances forward.
	require.NoError(t, target.acceptEngineTime(6, 10))
	require.Equal(t, int32(6), target.engineBoots)
	require.Equal(t, int32(10), target.engineTime)
}

func TestAcceptEngineTimeRejectsOlderBoots(t *testing.T) {
	target := newTestTarget()
	require.NoError(t, target.acceptEngineTime(10, 1000))

	err := target.acceptEngineTime(9, 1000)
	require.ErrorIs(t, err, ErrNotInTimeWindow)
	// Rejected messages must not move the stored baseline.
	require.Equal(t, int32(10), target.engineBoots)
	require.Equal(t, int32(1000), target.engineTime)
}

func TestAcceptEngineTimeRejectsStaleTimeWithinSameBoot(t *testing.T) {
	target := newTestTarget()
	require.NoError(t, target.acceptEngineTime(10, 2000))

	// More than usmTimeWindow seconds older than the last accepted time.
	err := target.acceptEngineTime(10, 2000-usmTimeWindow-1)
	require.ErrorIs(t, err, ErrNotInTimeWindow)
	require.Equal(t, int32(2000), target.engineTime)
}

func TestAcceptEngineTimeAllowsSmallBacksteps(t *testing.T) {
	target := newTestTarget()
	require.NoError(t, target.acceptEngineTime(10, 2000))

	// A slightly older time within the window is accepted (common with
	// UDP reordering) but does not move the baseline backwards.
	err := target.acceptEngineTime(10, 1999)
	require.NoError(t, err)
	require.Equal(t, int32(2000), target.engineTime)
}

func TestAcceptEngineTimeRejectsReplayAfterResync(t *testing.T) {
	// Regression test for the bug where a cache-hit unconditionally
	// resynced to whatever the inbound message claimed, making the
	// freshness check against that same message vacuous. A message
	// replayed after a legitimate later one must still be rejected.
	target := newTestTarget()
	require.NoError(t, target.acceptEngineTime(1, 1000))
	require.NoError(t, target.acceptEngineTime(1, 2000))

	err := target.acceptEngineTime(1, 1000)
	require.ErrorIs(t, err, ErrNotInTimeWindow)
	require.Equal(t, int32(2000), target.engineTime)
}

func TestNextDESSaltIncrementsAndEmbedsBoots(t *testing.T) {
	target := newTestTarget()
	target.engineBoots = 7

	first := target.nextDESSalt()
	second := target.nextDESSalt()

	require.Len(t, first, 8)
	require.Equal(t, []byte{0, 0, 0, 7}, first[:4])
	require.NotEqual(t, first, second)
}

func TestNextAESSaltNeverRepeats(t *testing.T) {
	target := newTestTarget()

	first, err := target.nextAESSalt()
	require.NoError(t, err)
	second, err := target.nextAESSalt()
	require.NoError(t, err)

	require.Len(t, first, 8)
	require.NotEqual(t, first, second)
}

func TestCurrentEngineTimeProjectsForward(t *testing.T) {
	target := newTestTarget()
	base := time.Unix(1000, 0)
	current := base
	target.nowFunc = func() time.Time { return current }

	require.NoError(t, target.setEngine([]byte{1, 2, 3, 4}, 1, 500))

	current = base.Add(10 * time.Second)
	boots, engineTime := target.currentEngineTime()
	require.Equal(t, int32(1), boots)
	require.Equal(t, int32(510), engineTime)
}
