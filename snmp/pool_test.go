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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// serveForever answers every request on the agent's socket with a
// fixed sysDescr response until the agent is closed, so pooled clients
// (each dialing the same remote port from distinct local ports) can
// all be served concurrently.
func (a *fakeAgent) serveForever(t *testing.T) {
	t.Helper()
	go func() {
		buf := make([]byte, 65535)
		for {
			n, addr, err := a.conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			msg, err := DecodeMessage(buf[:n])
			if err != nil {
				continue
			}
			resp := NewResponse(msg.PDU.RequestID, NoError, 0,
				Variable{OID: OIDSysDescr, Type: TypeOctetString, Value: "pooled agent"})
			out, err := (&Message{Version: Version2c, Community: "public", PDU: resp}).Encode()
			if err != nil {
				continue
			}
			a.conn.WriteToUDP(out, addr)
		}
	}()
}

func newTestPool(t *testing.T, agent *fakeAgent, size int) *Pool {
	t.Helper()
	p := NewPool(
		WithPoolSize(size),
		WithPoolClientOptions(
			WithTarget("127.0.0.1"),
			WithPort(agent.port()),
			WithVersion(Version2c),
			WithCommunity("public"),
			WithTimeout(200*time.Millisecond),
			WithRetries(0),
			WithAutoReconnect(false),
		),
	)
	return p
}

func TestPoolConnectPopulatesHealthyClients(t *testing.T) {
	agent := newFakeAgent(t)
	defer agent.close()
	agent.serveForever(t)

	p := newTestPool(t, agent, 3)
	defer p.Close()
	require.NoError(t, p.Connect(context.Background()))
	require.Equal(t, 3, p.Size())
	require.Equal(t, 3, p.HealthyCount())
}

func TestPoolGetRoundRobinsAcrossClients(t *testing.T) {
	agent := newFakeAgent(t)
	defer agent.close()
	agent.serveForever(t)

	p := newTestPool(t, agent, 2)
	defer p.Close()
	require.NoError(t, p.Connect(context.Background()))

	seen := make(map[*Client]bool)
	for i := 0; i < 4; i++ {
		c, err := p.Get()
		require.NoError(t, err)
		seen[c] = true
		p.Release(c)
	}
	require.Len(t, seen, 2)
}

func TestPoolGetOIDsUsesPooledClient(t *testing.T) {
	agent := newFakeAgent(t)
	defer agent.close()
	agent.serveForever(t)

	p := newTestPool(t, agent, 2)
	defer p.Close()
	require.NoError(t, p.Connect(context.Background()))

	vars, err := p.GetOIDs(context.Background(), OIDSysDescr)
	require.NoError(t, err)
	require.Len(t, vars, 1)
	require.Equal(t, "pooled agent", vars[0].Value)
}

func TestPoolGetFailsWhenEmpty(t *testing.T) {
	p := NewPool(WithPoolSize(2))
	_, err := p.Get()
	require.Error(t, err)
}

func TestPoolCloseDisconnectsAllClients(t *testing.T) {
	agent := newFakeAgent(t)
	defer agent.close()
	agent.serveForever(t)

	p := newTestPool(t, agent, 2)
	require.NoError(t, p.Connect(context.Background()))

	require.NoError(t, p.Close())
	require.Equal(t, 0, p.HealthyCount())
}
