/*
 * Copyright © 2024 Kaleido, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
 * the License. You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
 * an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
 * specific language governing permissions and limitations under the License.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package tally

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yosrahelal/tally/internal/confutil"
	"github.com/yosrahelal/tally/internal/ledger"
	"github.com/yosrahelal/tally/internal/ledger/ledgerrpc"
	"github.com/yosrahelal/tally/internal/orchestrator"
	"github.com/yosrahelal/tally/internal/sessionmgr"
	"github.com/yosrahelal/tally/internal/statecache"
	"github.com/yosrahelal/tally/internal/wallet"
	"github.com/yosrahelal/tally/pkg/types"
)

func testConfig() *Config {
	return &Config{
		Wallet: wallet.Config{
			Simulated: wallet.SimulatedConfig{Latency: confutil.P("1ms")},
		},
		Session: sessionmgr.Config{PersistSessions: confutil.P(false)},
		Cache: statecache.Config{
			PollInterval:    confutil.P("1h"),
			ReconcileDelays: []string{"5ms"},
			Retry: statecache.RetryConfig{
				InitialDelay: confutil.P("1ms"),
				MaximumDelay: confutil.P("5ms"),
				MaxAttempts:  confutil.P(2),
			},
		},
	}
}

func startTestClient(t *testing.T, conf *Config) Client {
	ctx := context.Background()
	c, err := NewClient(ctx, conf)
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))
	t.Cleanup(c.Stop)
	return c
}

func TestClientFullSurfaceEmbedded(t *testing.T) {
	ctx := context.Background()
	c := startTestClient(t, testConfig())

	session, err := c.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusConnected, c.Status(ctx))

	// The simulated identity deployed the embedded ledger
	owner, err := c.GetOwner(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.Account, owner)

	_, err = c.Increment(ctx)
	require.NoError(t, err)
	_, err = c.IncrementBy(ctx, 10)
	require.NoError(t, err)
	_, err = c.Decrement(ctx)
	require.NoError(t, err)
	count, err := c.GetCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), count)

	snapshot, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snapshot.Stale)
	assert.Equal(t, uint64(10), snapshot.Info.Count)
}

func TestClientPauseResetTransfer(t *testing.T) {
	ctx := context.Background()
	c := startTestClient(t, testConfig())
	_, err := c.Connect(ctx)
	require.NoError(t, err)

	_, err = c.IncrementBy(ctx, 5)
	require.NoError(t, err)

	_, err = c.Pause(ctx)
	require.NoError(t, err)
	// Paused is not optimistically updated; reconciliation surfaces it
	require.Eventually(t, func() bool {
		paused, err := c.IsPaused(ctx)
		return err == nil && paused
	}, 2*time.Second, 5*time.Millisecond)

	// Reset is owner-gated but not pause-gated
	_, err = c.Reset(ctx)
	require.NoError(t, err)
	count, err := c.GetCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)

	_, err = c.Unpause(ctx)
	require.NoError(t, err)

	newOwner := *ethtypes.MustNewAddress("0x497eedc4299dea2f2a364be10025d0ad0f702de3")
	_, err = c.TransferOwnership(ctx, newOwner)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		owner, err := c.GetOwner(ctx)
		return err == nil && owner == newOwner
	}, 2*time.Second, 5*time.Millisecond)

	// Ownership gone: further owner operations now fail at the ledger
	_, err = c.Pause(ctx)
	require.Error(t, err)
	assert.Equal(t, types.RejectNotOwner, types.ReasonOf(err))

	history := c.History(ctx)
	assert.NotEmpty(t, history)
	got, err := c.GetRecord(ctx, history[0].ID)
	require.NoError(t, err)
	assert.Equal(t, history[0].ID, got.ID)
}

func TestClientSessionUpdates(t *testing.T) {
	ctx := context.Background()
	c := startTestClient(t, testConfig())
	updates := c.SessionUpdates(ctx)

	session, err := c.Connect(ctx)
	require.NoError(t, err)
	got := <-updates
	require.NotNil(t, got)
	assert.Equal(t, session.Account, got.Account)

	require.NoError(t, c.Disconnect(ctx))
	got = <-updates
	assert.Nil(t, got)
}

func TestClientAgainstRemoteNode(t *testing.T) {
	ctx := context.Background()

	// Node side: ledger deployed by the simulated wallet's identity
	probe, err := wallet.NewSimulatedWallet(ctx, &wallet.SimulatedConfig{}, "tally-local", nil)
	require.NoError(t, err)
	l := ledger.NewLedger(ctx, &ledger.Config{}, probe.Address())
	server, err := ledgerrpc.NewServer(ctx, l, &ledgerrpc.ServerConfig{Port: confutil.P(0)})
	require.NoError(t, err)
	require.NoError(t, server.Start())
	t.Cleanup(server.Stop)

	conf := testConfig()
	conf.Node.URL = confutil.P(fmt.Sprintf("http://%s", server.Addr()))
	c := startTestClient(t, conf)

	_, err = c.Connect(ctx)
	require.NoError(t, err)
	_, err = c.IncrementBy(ctx, 3)
	require.NoError(t, err)
	count, err := c.GetCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
	assert.Equal(t, uint64(3), l.GetCount(ctx))

	_, err = c.Pause(ctx)
	require.NoError(t, err)
	assert.True(t, l.IsPaused(ctx))
}

func TestClientHistoryLimitConfig(t *testing.T) {
	ctx := context.Background()
	conf := testConfig()
	conf.Orchestrator = orchestrator.Config{HistoryLimit: confutil.P(2)}
	c := startTestClient(t, conf)
	_, err := c.Connect(ctx)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = c.Increment(ctx)
		require.NoError(t, err)
	}
	assert.Len(t, c.History(ctx), 2)
}

func TestLoadConfig(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "tally.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
wallet:
  type: simulated
  network: tally-dev
  simulated:
    seed: config-test
cache:
  pollInterval: 2s
orchestrator:
  historyLimit: 10
`), 0644))

	conf, err := LoadConfig(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "simulated", *conf.Wallet.Type)
	assert.Equal(t, "tally-dev", *conf.Wallet.Network)
	assert.Equal(t, "config-test", *conf.Wallet.Simulated.Seed)
	assert.Equal(t, "2s", *conf.Cache.PollInterval)
	assert.Equal(t, 10, *conf.Orchestrator.HistoryLimit)
}

func TestLoadConfigErrors(t *testing.T) {
	ctx := context.Background()
	_, err := LoadConfig(ctx, filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Regexp(t, "TY010600", err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("{{{{"), 0644))
	_, err = LoadConfig(ctx, bad)
	require.Error(t, err)
	assert.Regexp(t, "TY010601", err)
}

func TestClientConfiguredOwner(t *testing.T) {
	ctx := context.Background()
	conf := testConfig()
	conf.Ledger.Owner = confutil.P("0x497eedc4299dea2f2a364be10025d0ad0f702de3")
	c := startTestClient(t, conf)
	owner, err := c.GetOwner(ctx)
	require.NoError(t, err)
	assert.Equal(t, *ethtypes.MustNewAddress("0x497eedc4299dea2f2a364be10025d0ad0f702de3"), owner)

	// Not the owner, so owner-gated operations fail on the ledger
	_, err = c.Connect(ctx)
	require.NoError(t, err)
	_, err = c.Reset(ctx)
	require.Error(t, err)
	assert.Equal(t, types.RejectNotOwner, types.ReasonOf(err))
}
