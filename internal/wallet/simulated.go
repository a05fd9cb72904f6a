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
	"crypto/sha256"
	"sync"
	"time"

	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/hyperledger/firefly-signer/pkg/secp256k1"
	"github.com/yosrahelal/tally/internal/confutil"
	"github.com/yosrahelal/tally/internal/ledger"
	"github.com/yosrahelal/tally/internal/msgs"
	"github.com/yosrahelal/tally/pkg/types"
)

// SimulatedConfig drives the local development backend. The identity is
// derived deterministically from the seed so runs are reproducible, and the
// reject switches script handshake/submission failures for development of
// the error paths.
type SimulatedConfig struct {
	Seed          *string `yaml:"seed"`
	Latency       *string `yaml:"latency"`
	Balance       *uint64 `yaml:"balance"`
	RejectConnect *bool   `yaml:"rejectConnect"`
	RejectSubmit  *bool   `yaml:"rejectSubmit"`
}

var SimulatedDefaults = &SimulatedConfig{
	Seed:    confutil.P("tally-simulated"),
	Latency: confutil.P("50ms"),
	Balance: confutil.P(uint64(1000)),
}

// SimulatedWallet is exported (unlike the other backends) so development and
// test harnesses can drive backend-originated events through the Simulate*
// methods.
type SimulatedWallet struct {
	keypair       *secp256k1.KeyPair
	network       string
	latency       time.Duration
	balance       *uint64
	rejectConnect bool
	rejectSubmit  bool
	conn          ledger.Connection

	lock      sync.Mutex
	connected bool
	events    chan *types.WalletEvent
}

func NewSimulatedWallet(ctx context.Context, conf *SimulatedConfig, network string, conn ledger.Connection) (*SimulatedWallet, error) {
	// Hash of the seed is a valid 32-byte scalar for key derivation
	seedHash := sha256.Sum256([]byte(confutil.StringNotEmpty(conf.Seed, *SimulatedDefaults.Seed)))
	kp, err := secp256k1.NewSecp256k1KeyPair(seedHash[:])
	if err != nil {
		return nil, types.NewWalletError(ctx, types.WalletUnavailable, msgs.MsgWalletKeyMaterialInvalid)
	}
	balance := confutil.UInt64(conf.Balance, *SimulatedDefaults.Balance)
	return &SimulatedWallet{
		keypair:       kp,
		network:       network,
		latency:       confutil.DurationMin(conf.Latency, 0, *SimulatedDefaults.Latency),
		balance:       &balance,
		rejectConnect: confutil.Bool(conf.RejectConnect, false),
		rejectSubmit:  confutil.Bool(conf.RejectSubmit, false),
		conn:          conn,
		events:        make(chan *types.WalletEvent, 16),
	}, nil
}

func (w *SimulatedWallet) Kind() types.BackendKind {
	return types.BackendSimulated
}

func (w *SimulatedWallet) IsAvailable(ctx context.Context) bool {
	return true
}

// Address returns the deterministic identity this wallet signs as.
func (w *SimulatedWallet) Address() ethtypes.Address0xHex {
	return w.keypair.Address
}

func (w *SimulatedWallet) Connect(ctx context.Context) (*types.WalletSession, error) {
	if err := w.sleep(ctx); err != nil {
		return nil, err
	}
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.connected {
		return nil, types.NewWalletError(ctx, types.ReasonNone, msgs.MsgWalletAlreadyConnected, types.BackendSimulated)
	}
	if w.rejectConnect {
		return nil, types.NewWalletError(ctx, types.WalletUserRejected, msgs.MsgWalletUserRejected)
	}
	w.connected = true
	log.L(ctx).Infof("Simulated wallet connected account=%s network=%s", w.keypair.Address, w.network)
	return &types.WalletSession{
		Account: w.keypair.Address,
		Network: w.network,
		Status:  types.StatusConnected,
		Backend: types.BackendSimulated,
		Balance: w.balance,
	}, nil
}

func (w *SimulatedWallet) Disconnect(ctx context.Context) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.connected = false
	return nil
}

func (w *SimulatedWallet) SignAndSubmit(ctx context.Context, req *types.OperationRequest) (*types.SubmissionResult, error) {
	w.lock.Lock()
	connected := w.connected
	w.lock.Unlock()
	if !connected {
		return nil, types.NewWalletError(ctx, types.ReasonNone, msgs.MsgWalletNotConnected)
	}
	if err := w.sleep(ctx); err != nil {
		return nil, err
	}
	if w.rejectSubmit {
		return nil, types.NewWalletError(ctx, types.WalletUserRejected, msgs.MsgWalletUserRejected)
	}
	if req.Network != w.network {
		return nil, types.NewWalletError(ctx, types.WalletNetworkMismatch, msgs.MsgWalletNetworkMismatch, w.network, req.Network)
	}
	signed, err := signEnvelope(ctx, w.keypair, req)
	if err != nil {
		return nil, types.WrapTagged(types.FailureWallet, types.ReasonNone, err)
	}
	return w.conn.Submit(ctx, signed)
}

func (w *SimulatedWallet) Events() <-chan *types.WalletEvent {
	return w.events
}

func (w *SimulatedWallet) sleep(ctx context.Context) error {
	if w.latency <= 0 {
		return nil
	}
	select {
	case <-time.After(w.latency):
		return nil
	case <-ctx.Done():
		return types.NewTransientError(ctx, ctx.Err(), msgs.MsgWalletSubmitFailed)
	}
}

// SimulateAccountChange emits an accountsChanged event as a real backend
// would when the user switches accounts in the wallet UI.
func (w *SimulatedWallet) SimulateAccountChange(account ethtypes.Address0xHex) {
	w.events <- &types.WalletEvent{Type: types.WalletAccountsChanged, Account: &account}
}

// SimulateNetworkChange emits a networkChanged event.
func (w *SimulatedWallet) SimulateNetworkChange(network string) {
	w.events <- &types.WalletEvent{Type: types.WalletNetworkChanged, Network: &network}
}

// SimulateDisconnect emits a backend-originated disconnection.
func (w *SimulatedWallet) SimulateDisconnect() {
	w.lock.Lock()
	w.connected = false
	w.lock.Unlock()
	w.events <- &types.WalletEvent{Type: types.WalletDisconnected}
}
