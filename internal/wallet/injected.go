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
	"encoding/hex"
	"strings"
	"sync"

	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-signer/pkg/secp256k1"
	"github.com/yosrahelal/tally/internal/confutil"
	"github.com/yosrahelal/tally/internal/ledger"
	"github.com/yosrahelal/tally/internal/msgs"
	"github.com/yosrahelal/tally/pkg/types"
)

// InjectedConfig drives the backend that uses key material present in the
// local environment. With no private key configured a fresh one is generated
// per process. WalletNetwork only needs setting when the environment's
// provider is pinned to a different network than the client requires.
type InjectedConfig struct {
	PrivateKey    *string `yaml:"privateKey"`
	WalletNetwork *string `yaml:"walletNetwork"`
	Balance       *uint64 `yaml:"balance"`
	AutoApprove   *bool   `yaml:"autoApprove"`
	Disabled      *bool   `yaml:"disabled"`
}

var InjectedDefaults = &InjectedConfig{
	AutoApprove: confutil.P(true),
	Disabled:    confutil.P(false),
}

type injectedWallet struct {
	keypair       *secp256k1.KeyPair
	network       string
	walletNetwork string
	balance       *uint64
	autoApprove   bool
	disabled      bool
	conn          ledger.Connection

	lock      sync.Mutex
	connected bool
	events    chan *types.WalletEvent
}

func newInjectedWallet(ctx context.Context, conf *InjectedConfig, network string, conn ledger.Connection) (Capability, error) {
	var kp *secp256k1.KeyPair
	var err error
	if conf.PrivateKey != nil && *conf.PrivateKey != "" {
		keyBytes, decodeErr := hex.DecodeString(strings.TrimPrefix(*conf.PrivateKey, "0x"))
		if decodeErr != nil {
			return nil, types.NewWalletError(ctx, types.WalletUnavailable, msgs.MsgWalletKeyMaterialInvalid)
		}
		if kp, err = secp256k1.NewSecp256k1KeyPair(keyBytes); err != nil {
			return nil, types.NewWalletError(ctx, types.WalletUnavailable, msgs.MsgWalletKeyMaterialInvalid)
		}
	} else {
		if kp, err = secp256k1.GenerateSecp256k1KeyPair(); err != nil {
			return nil, err
		}
		log.L(ctx).Infof("Generated ephemeral key for injected wallet address=%s", kp.Address)
	}
	return &injectedWallet{
		keypair:       kp,
		network:       network,
		walletNetwork: confutil.StringNotEmpty(conf.WalletNetwork, network),
		balance:       conf.Balance,
		autoApprove:   confutil.Bool(conf.AutoApprove, *InjectedDefaults.AutoApprove),
		disabled:      confutil.Bool(conf.Disabled, *InjectedDefaults.Disabled),
		conn:          conn,
		events:        make(chan *types.WalletEvent, 16),
	}, nil
}

func (w *injectedWallet) Kind() types.BackendKind {
	return types.BackendInjected
}

func (w *injectedWallet) IsAvailable(ctx context.Context) bool {
	return !w.disabled
}

func (w *injectedWallet) Connect(ctx context.Context) (*types.WalletSession, error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.disabled {
		return nil, types.NewWalletError(ctx, types.WalletUnavailable, msgs.MsgWalletUnavailable, types.BackendInjected)
	}
	if w.connected {
		return nil, types.NewWalletError(ctx, types.ReasonNone, msgs.MsgWalletAlreadyConnected, types.BackendInjected)
	}
	if !w.autoApprove {
		return nil, types.NewWalletError(ctx, types.WalletUserRejected, msgs.MsgWalletUserRejected)
	}
	if w.walletNetwork != w.network {
		return nil, types.NewWalletError(ctx, types.WalletNetworkMismatch, msgs.MsgWalletNetworkMismatch, w.walletNetwork, w.network)
	}
	w.connected = true
	log.L(ctx).Infof("Injected wallet connected account=%s network=%s", w.keypair.Address, w.network)
	return &types.WalletSession{
		Account: w.keypair.Address,
		Network: w.network,
		Status:  types.StatusConnected,
		Backend: types.BackendInjected,
		Balance: w.balance,
	}, nil
}

func (w *injectedWallet) Disconnect(ctx context.Context) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.connected = false
	return nil
}

func (w *injectedWallet) SignAndSubmit(ctx context.Context, req *types.OperationRequest) (*types.SubmissionResult, error) {
	w.lock.Lock()
	connected := w.connected
	w.lock.Unlock()
	if !connected {
		return nil, types.NewWalletError(ctx, types.ReasonNone, msgs.MsgWalletNotConnected)
	}
	if req.Network != w.walletNetwork {
		return nil, types.NewWalletError(ctx, types.WalletNetworkMismatch, msgs.MsgWalletNetworkMismatch, w.walletNetwork, req.Network)
	}
	signed, err := signEnvelope(ctx, w.keypair, req)
	if err != nil {
		return nil, types.WrapTagged(types.FailureWallet, types.ReasonNone, err)
	}
	return w.conn.Submit(ctx, signed)
}

func (w *injectedWallet) Events() <-chan *types.WalletEvent {
	return w.events
}
