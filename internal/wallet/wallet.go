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

// Package wallet abstracts the signing backend behind a single Capability
// interface. The rest of the client never sees which variant is active; the
// backend is selected once from configuration at construction time.
package wallet

import (
	"context"
	"time"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/yosrahelal/tally/internal/confutil"
	"github.com/yosrahelal/tally/internal/ledger"
	"github.com/yosrahelal/tally/internal/msgs"
	"github.com/yosrahelal/tally/pkg/types"
)

// Capability is the uniform surface over every wallet backend. Connect
// performs the backend's approval handshake and returns the established
// session; SignAndSubmit signs one operation envelope and carries it to the
// ledger. Events delivers backend-originated session changes (account or
// network switches, disconnection) until Disconnect is called.
type Capability interface {
	Kind() types.BackendKind
	IsAvailable(ctx context.Context) bool
	Connect(ctx context.Context) (*types.WalletSession, error)
	Disconnect(ctx context.Context) error
	SignAndSubmit(ctx context.Context, req *types.OperationRequest) (*types.SubmissionResult, error)
	Events() <-chan *types.WalletEvent
}

type Config struct {
	Type           *string         `yaml:"type"`
	Network        *string         `yaml:"network"`
	ConnectTimeout *string         `yaml:"connectTimeout"`
	Injected       InjectedConfig  `yaml:"injected"`
	Relay          RelayConfig     `yaml:"relay"`
	Simulated      SimulatedConfig `yaml:"simulated"`
}

var Defaults = &Config{
	Type:           confutil.P(string(types.BackendSimulated)),
	Network:        confutil.P("tally-local"),
	ConnectTimeout: confutil.P("30s"),
}

// NewCapability builds the wallet backend named by conf.Type. The injected
// and simulated variants submit through the supplied ledger connection; the
// relay variant submits remotely through its paired wallet service.
func NewCapability(ctx context.Context, conf *Config, conn ledger.Connection) (Capability, error) {
	backendType := confutil.StringNotEmpty(conf.Type, *Defaults.Type)
	network := confutil.StringNotEmpty(conf.Network, *Defaults.Network)
	connectTimeout := confutil.DurationMin(conf.ConnectTimeout, 1*time.Second, *Defaults.ConnectTimeout)
	switch types.BackendKind(backendType) {
	case types.BackendInjected:
		return newInjectedWallet(ctx, &conf.Injected, network, conn)
	case types.BackendRelay:
		return newRelayWallet(ctx, &conf.Relay, network, connectTimeout)
	case types.BackendSimulated:
		return NewSimulatedWallet(ctx, &conf.Simulated, network, conn)
	default:
		return nil, i18n.NewError(ctx, msgs.MsgWalletUnknownBackend, backendType)
	}
}
