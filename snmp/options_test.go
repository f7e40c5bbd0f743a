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

func TestNewClientOptionsDefaults(t *testing.T) {
	o := NewClientOptions()
	require.Equal(t, DefaultPort, o.Port)
	require.Equal(t, Version2c, o.Version)
	require.Equal(t, DefaultCommunity, o.Community)
	require.True(t, o.AutoReconnect)
	require.True(t, o.VerifySource)
	require.Equal(t, NoAuthNoPriv, o.SecurityLevel)
}

func TestClientOptionsApplyOverrides(t *testing.T) {
	o := NewClientOptions()
	for _, opt := range []Option{
		WithTarget("10.0.0.1"),
		WithPort(1161),
		WithVersion(Version3),
		WithTimeout(5 * time.Second),
		WithRetries(4),
		WithSecurityName("admin"),
		WithSecurityLevel(AuthPriv),
		WithAuth(SHA, "authpass123"),
		WithPrivacy(AES, "privpass123"),
		WithContextEngineID("8000001f"),
		WithVerifySource(false),
	} {
		opt(o)
	}

	require.Equal(t, "10.0.0.1", o.Target)
	require.Equal(t, 1161, o.Port)
	require.Equal(t, Version3, o.Version)
	require.Equal(t, 5*time.Second, o.Timeout)
	require.Equal(t, 4, o.Retries)
	require.Equal(t, "admin", o.SecurityName)
	require.Equal(t, AuthPriv, o.SecurityLevel)
	require.Equal(t, SHA, o.AuthProtocol)
	require.Equal(t, "authpass123", o.AuthPassphrase)
	require.Equal(t, AES, o.PrivProtocol)
	require.Equal(t, "privpass123", o.PrivPassphrase)
	require.Equal(t, "8000001f", o.ContextEngineID)
	require.False(t, o.VerifySource)
}

func TestNewPoolOptionsDefaults(t *testing.T) {
	o := NewPoolOptions()
	require.Equal(t, 3, o.Size)
	require.Equal(t, 5*time.Minute, o.MaxIdleTime)
	require.Equal(t, 30*time.Second, o.HealthCheckInterval)
}

func TestNewTrapListenerOptionsDefaults(t *testing.T) {
	o := NewTrapListenerOptions()
	require.Equal(t, ":162", o.Address)
}

func TestSecurityLevelString(t *testing.T) {
	require.Equal(t, "noAuthNoPriv", NoAuthNoPriv.String())
	require.Equal(t, "authNoPriv", AuthNoPriv.String())
	require.Equal(t, "authPriv", AuthPriv.String())
}

func TestAuthProtocolString(t *testing.T) {
	require.Equal(t, "MD5", MD5.String())
	require.Equal(t, "SHA", SHA.String())
	require.Equal(t, "SHA-256", SHA256.String())
	require.Equal(t, "unknown", AuthProtocol(99).String())
}

func TestSNMPVersionString(t *testing.T) {
	require.Equal(t, "SNMPv1", Version1.String())
	require.Equal(t, "SNMPv2c", Version2c.String())
	require.Equal(t, "SNMPv3", Version3.String())
	require.Equal(t, "Unknown", SNMPVersion(2).String())
}

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()
	require.Equal(t, Version, info.Version)
}

func TestPrivProtocolString(t *testing.T) {
	require.Equal(t, "DES", DES.String())
	require.Equal(t, "AES", AES.String())
	require.Equal(t, "AES-256", AES256.String())
	require.Equal(t, "unknown", PrivProtocol(99).String())
}
