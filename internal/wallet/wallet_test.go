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

package wallet

import (
	"context"
	"testing"

	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yosrahelal/tally/internal/confutil"
	"github.com/yosrahelal/tally/internal/ledger"
	"github.com/yosrahelal/tally/pkg/types"
)

func newTestConnection(t *testing.T, deployer ethtypes.Address0xHex) ledger.Connection {
	l := ledger.NewLedger(context.Background(), &ledger.Config{}, deployer)
	return ledger.NewDirectConnection(l)
}

func newTestSimulated(t *testing.T, conf *SimulatedConfig) (*SimulatedWallet, ledger.Connection) {
	ctx := context.Background()
	if conf.Latency == nil {
		conf.Latency = confutil.P("1ms")
	}
	// Deploy with the wallet's own identity as owner so owner-gated
	// operations succeed in tests that need them
	probe, err := NewSimulatedWallet(ctx, conf, "tally-local", nil)
	require.NoError(t, err)
	conn := newTestConnection(t, probe.Address())
	w, err := NewSimulatedWallet(ctx, conf, "tally-local", conn)
	require.NoError(t, err)
	return w, conn
}

func TestSimulatedDeterministicIdentity(t *testing.T) {
	ctx := context.Background()
	w1, err := NewSimulatedWallet(ctx, &SimulatedConfig{Seed: confutil.P("alpha")}, "tally-local", nil)
	require.NoError(t, err)
	w2, err := NewSimulatedWallet(ctx, &SimulatedConfig{Seed: confutil.P("alpha")}, "tally-local", nil)
	require.NoError(t, err)
	w3, err := NewSimulatedWallet(ctx, &SimulatedConfig{Seed: confutil.P("beta")}, "tally-local", nil)
	require.NoError(t, err)

	assert.Equal(t, w1.Address(), w2.Address())
	assert.NotEqual(t, w1.Address(), w3.Address())
}

func TestSimulatedConnectAndSubmit(t *testing.T) {
	ctx := context.Background()
	w, conn := newTestSimulated(t, &SimulatedConfig{})
	assert.True(t, w.IsAvailable(ctx))
	assert.Equal(t, types.BackendSimulated, w.Kind())

	session, err := w.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), session.Account)
	assert.Equal(t, types.StatusConnected, session.Status)
	assert.Equal(t, types.BackendSimulated, session.Backend)

	result, err := w.SignAndSubmit(ctx, &types.OperationRequest{
		Kind:    types.OpIncrement,
		Caller:  session.Account,
		Network: session.Network,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), *result.NewCount)

	// The envelope the ledger saw was signed
	info, err := conn.ContractInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Count)
}

func TestSimulatedRejectConnect(t *testing.T) {
	ctx := context.Background()
	w, _ := newTestSimulated(t, &SimulatedConfig{RejectConnect: confutil.P(true)})
	_, err := w.Connect(ctx)
	require.Error(t, err)
	assert.Equal(t, types.FailureWallet, types.AsCounterError(err).Kind)
	assert.Equal(t, types.WalletUserRejected, types.ReasonOf(err))
}

func TestSimulatedRejectSubmit(t *testing.T) {
	ctx := context.Background()
	w, _ := newTestSimulated(t, &SimulatedConfig{RejectSubmit: confutil.P(true)})
	session, err := w.Connect(ctx)
	require.NoError(t, err)
	_, err = w.SignAndSubmit(ctx, &types.OperationRequest{
		Kind:    types.OpIncrement,
		Caller:  session.Account,
		Network: session.Network,
	})
	require.Error(t, err)
	assert.Equal(t, types.WalletUserRejected, types.ReasonOf(err))
}

func TestSimulatedSubmitNotConnected(t *testing.T) {
	ctx := context.Background()
	w, _ := newTestSimulated(t, &SimulatedConfig{})
	_, err := w.SignAndSubmit(ctx, &types.OperationRequest{Kind: types.OpIncrement})
	require.Error(t, err)
	assert.Equal(t, types.FailureWallet, types.AsCounterError(err).Kind)
	assert.Regexp(t, "TY010104", err)
}

func TestSimulatedNetworkMismatchOnSubmit(t *testing.T) {
	ctx := context.Background()
	w, _ := newTestSimulated(t, &SimulatedConfig{})
	session, err := w.Connect(ctx)
	require.NoError(t, err)
	_, err = w.SignAndSubmit(ctx, &types.OperationRequest{
		Kind:    types.OpIncrement,
		Caller:  session.Account,
		Network: "some-other-network",
	})
	require.Error(t, err)
	assert.Equal(t, types.WalletNetworkMismatch, types.ReasonOf(err))
}

func TestSimulatedDoubleConnect(t *testing.T) {
	ctx := context.Background()
	w, _ := newTestSimulated(t, &SimulatedConfig{})
	_, err := w.Connect(ctx)
	require.NoError(t, err)
	_, err = w.Connect(ctx)
	require.Error(t, err)
	assert.Regexp(t, "TY010106", err)
}

func TestSimulatedDisconnectThenReconnect(t *testing.T) {
	ctx := context.Background()
	w, _ := newTestSimulated(t, &SimulatedConfig{})
	_, err := w.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Disconnect(ctx))
	_, err = w.Connect(ctx)
	require.NoError(t, err)
}

func TestSimulatedBackendEvents(t *testing.T) {
	ctx := context.Background()
	w, _ := newTestSimulated(t, &SimulatedConfig{})
	_, err := w.Connect(ctx)
	require.NoError(t, err)

	newAccount := w.Address()
	w.SimulateAccountChange(newAccount)
	w.SimulateNetworkChange("tally-test")
	w.SimulateDisconnect()

	ev := <-w.Events()
	assert.Equal(t, types.WalletAccountsChanged, ev.Type)
	assert.Equal(t, newAccount, *ev.Account)
	ev = <-w.Events()
	assert.Equal(t, types.WalletNetworkChanged, ev.Type)
	assert.Equal(t, "tally-test", *ev.Network)
	ev = <-w.Events()
	assert.Equal(t, types.WalletDisconnected, ev.Type)

	// Backend-originated disconnect tears the session down
	_, err = w.SignAndSubmit(ctx, &types.OperationRequest{Kind: types.OpIncrement})
	require.Error(t, err)
}

func TestInjectedConfiguredKey(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnection(t, types.ZeroAddress)
	w, err := newInjectedWallet(ctx, &InjectedConfig{
		PrivateKey: confutil.P("0x2f07e73cf626a1d8b1ae00e5e3f4cd2b766fa5df9d103e7967b0fcd1dfbc1edb"),
	}, "tally-local", conn)
	require.NoError(t, err)
	assert.Equal(t, types.BackendInjected, w.Kind())
	assert.True(t, w.IsAvailable(ctx))

	session, err := w.Connect(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, types.ZeroAddress, session.Account)
	assert.Equal(t, "tally-local", session.Network)

	result, err := w.SignAndSubmit(ctx, &types.OperationRequest{
		Kind:    types.OpIncrement,
		Caller:  session.Account,
		Network: "tally-local",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), *result.NewCount)
}

func TestInjectedGeneratedKey(t *testing.T) {
	ctx := context.Background()
	w, err := newInjectedWallet(ctx, &InjectedConfig{}, "tally-local", newTestConnection(t, types.ZeroAddress))
	require.NoError(t, err)
	session, err := w.Connect(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, types.ZeroAddress, session.Account)
}

func TestInjectedInvalidKeyMaterial(t *testing.T) {
	ctx := context.Background()
	_, err := newInjectedWallet(ctx, &InjectedConfig{
		PrivateKey: confutil.P("not hex"),
	}, "tally-local", nil)
	require.Error(t, err)
	assert.Regexp(t, "TY010109", err)
	assert.Equal(t, types.WalletUnavailable, types.ReasonOf(err))
}

func TestInjectedDisabled(t *testing.T) {
	ctx := context.Background()
	w, err := newInjectedWallet(ctx, &InjectedConfig{
		Disabled: confutil.P(true),
	}, "tally-local", nil)
	require.NoError(t, err)
	assert.False(t, w.IsAvailable(ctx))
	_, err = w.Connect(ctx)
	require.Error(t, err)
	assert.Equal(t, types.WalletUnavailable, types.ReasonOf(err))
}

func TestInjectedUserDeclines(t *testing.T) {
	ctx := context.Background()
	w, err := newInjectedWallet(ctx, &InjectedConfig{
		AutoApprove: confutil.P(false),
	}, "tally-local", nil)
	require.NoError(t, err)
	_, err = w.Connect(ctx)
	require.Error(t, err)
	assert.Equal(t, types.WalletUserRejected, types.ReasonOf(err))
}

func TestInjectedNetworkMismatch(t *testing.T) {
	ctx := context.Background()
	w, err := newInjectedWallet(ctx, &InjectedConfig{
		WalletNetwork: confutil.P("mainnet"),
	}, "tally-local", nil)
	require.NoError(t, err)
	_, err = w.Connect(ctx)
	require.Error(t, err)
	assert.Equal(t, types.WalletNetworkMismatch, types.ReasonOf(err))
	assert.Regexp(t, "mainnet", err)
}

func TestInjectedNotConnected(t *testing.T) {
	ctx := context.Background()
	w, err := newInjectedWallet(ctx, &InjectedConfig{}, "tally-local", nil)
	require.NoError(t, err)
	_, err = w.SignAndSubmit(ctx, &types.OperationRequest{Kind: types.OpIncrement})
	require.Error(t, err)
	assert.Regexp(t, "TY010104", err)
}

func TestNewCapabilitySelection(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnection(t, types.ZeroAddress)

	w, err := NewCapability(ctx, &Config{Type: confutil.P("simulated")}, conn)
	require.NoError(t, err)
	assert.Equal(t, types.BackendSimulated, w.Kind())

	w, err = NewCapability(ctx, &Config{Type: confutil.P("injected")}, conn)
	require.NoError(t, err)
	assert.Equal(t, types.BackendInjected, w.Kind())

	w, err = NewCapability(ctx, &Config{
		Type:  confutil.P("relay"),
		Relay: RelayConfig{URL: confutil.P("ws://127.0.0.1:1")},
	}, conn)
	require.NoError(t, err)
	assert.Equal(t, types.BackendRelay, w.Kind())

	// Default backend is simulated
	w, err = NewCapability(ctx, &Config{}, conn)
	require.NoError(t, err)
	assert.Equal(t, types.BackendSimulated, w.Kind())

	_, err = NewCapability(ctx, &Config{Type: confutil.P("hardware")}, conn)
	require.Error(t, err)
	assert.Regexp(t, "TY010105", err)
}

func TestNewCapabilityRelayRequiresURL(t *testing.T) {
	_, err := NewCapability(context.Background(), &Config{Type: confutil.P("relay")}, nil)
	require.Error(t, err)
	assert.Regexp(t, "TY010108", err)
}
