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

// Package tally is the client facade over the counter system: one Client
// assembles the wallet capability, session manager, state cache and
// orchestrator from a single YAML-loadable config, and mirrors the contract
// surface one to one.
package tally

import (
	"context"

	"github.com/google/uuid"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/yosrahelal/tally/internal/confutil"
	"github.com/yosrahelal/tally/internal/events"
	"github.com/yosrahelal/tally/internal/ledger"
	"github.com/yosrahelal/tally/internal/ledger/ledgerrpc"
	"github.com/yosrahelal/tally/internal/orchestrator"
	"github.com/yosrahelal/tally/internal/sessionmgr"
	"github.com/yosrahelal/tally/internal/statecache"
	"github.com/yosrahelal/tally/internal/wallet"
	"github.com/yosrahelal/tally/pkg/types"
)

// EmbeddedLedgerConfig deploys an in-process ledger, used when no remote
// node URL is configured. With no owner configured and a simulated wallet
// selected, the wallet's deterministic identity deploys the contract.
type EmbeddedLedgerConfig struct {
	ledger.Config `yaml:",inline"`
	Owner         *string `yaml:"owner"`
}

type Config struct {
	Node         ledgerrpc.ClientConfig `yaml:"node"`
	Ledger       EmbeddedLedgerConfig   `yaml:"ledger"`
	Wallet       wallet.Config          `yaml:"wallet"`
	Session      sessionmgr.Config      `yaml:"session"`
	Cache        statecache.Config      `yaml:"cache"`
	Orchestrator orchestrator.Config    `yaml:"orchestrator"`
}

// LoadConfig parses a client configuration from a YAML file.
func LoadConfig(ctx context.Context, filePath string) (*Config, error) {
	var conf Config
	if err := confutil.ReadAndParseYAMLFile(ctx, filePath, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

type Client interface {
	// Start populates the state cache and begins session/state background
	// processing; Stop tears both down.
	Start(ctx context.Context) error
	Stop()

	Connect(ctx context.Context) (*types.WalletSession, error)
	Disconnect(ctx context.Context) error
	Session(ctx context.Context) *types.WalletSession
	Status(ctx context.Context) types.ConnectionStatus

	Increment(ctx context.Context) (*types.TransactionRecord, error)
	Decrement(ctx context.Context) (*types.TransactionRecord, error)
	IncrementBy(ctx context.Context, amount uint64) (*types.TransactionRecord, error)
	DecrementBy(ctx context.Context, amount uint64) (*types.TransactionRecord, error)
	Reset(ctx context.Context) (*types.TransactionRecord, error)
	Pause(ctx context.Context) (*types.TransactionRecord, error)
	Unpause(ctx context.Context) (*types.TransactionRecord, error)
	TransferOwnership(ctx context.Context, newOwner ethtypes.Address0xHex) (*types.TransactionRecord, error)

	GetCount(ctx context.Context) (uint64, error)
	GetOwner(ctx context.Context) (ethtypes.Address0xHex, error)
	IsPaused(ctx context.Context) (bool, error)
	GetContractInfo(ctx context.Context) (*types.ContractInfo, error)

	// Snapshot exposes the cached view including staleness, without
	// forcing a refresh.
	Snapshot(ctx context.Context) (*statecache.Snapshot, error)

	History(ctx context.Context) []*types.TransactionRecord
	GetRecord(ctx context.Context, id uuid.UUID) (*types.TransactionRecord, error)

	// SessionUpdates delivers every session change (nil on disconnect)
	// until the supplied context ends or the client stops.
	SessionUpdates(ctx context.Context) <-chan *types.WalletSession
}

type client struct {
	conn     ledger.Connection
	broker   events.Broker
	sessions sessionmgr.Manager
	state    statecache.StateCache
	orch     orchestrator.Orchestrator
}

func NewClient(ctx context.Context, conf *Config) (Client, error) {
	conn, err := buildConnection(ctx, conf)
	if err != nil {
		return nil, err
	}
	capability, err := wallet.NewCapability(ctx, &conf.Wallet, conn)
	if err != nil {
		return nil, err
	}
	broker := events.NewBroker()
	sessions, err := sessionmgr.NewManager(ctx, &conf.Session, capability, broker)
	if err != nil {
		return nil, err
	}
	state := statecache.NewStateCache(ctx, &conf.Cache, conn)
	return &client{
		conn:     conn,
		broker:   broker,
		sessions: sessions,
		state:    state,
		orch:     orchestrator.NewOrchestrator(ctx, &conf.Orchestrator, capability, sessions, state),
	}, nil
}

func buildConnection(ctx context.Context, conf *Config) (ledger.Connection, error) {
	if conf.Node.URL != nil && *conf.Node.URL != "" {
		return ledgerrpc.NewClient(ctx, &conf.Node)
	}
	owner, err := embeddedOwner(ctx, conf)
	if err != nil {
		return nil, err
	}
	log.L(ctx).Infof("Using embedded ledger owner=%s", owner)
	return ledger.NewDirectConnection(ledger.NewLedger(ctx, &conf.Ledger.Config, owner)), nil
}

func embeddedOwner(ctx context.Context, conf *Config) (ethtypes.Address0xHex, error) {
	if conf.Ledger.Owner != nil && *conf.Ledger.Owner != "" {
		addr, err := ethtypes.NewAddress(*conf.Ledger.Owner)
		if err != nil {
			return types.ZeroAddress, err
		}
		return *addr, nil
	}
	backendType := types.BackendKind(confutil.StringNotEmpty(conf.Wallet.Type, *wallet.Defaults.Type))
	if backendType == types.BackendSimulated {
		network := confutil.StringNotEmpty(conf.Wallet.Network, *wallet.Defaults.Network)
		probe, err := wallet.NewSimulatedWallet(ctx, &conf.Wallet.Simulated, network, nil)
		if err != nil {
			return types.ZeroAddress, err
		}
		return probe.Address(), nil
	}
	// No owner identity known ahead of connect; owner-gated operations
	// will be rejected until ownership is transferred on the ledger side
	return types.ZeroAddress, nil
}

func (c *client) Start(ctx context.Context) error {
	if err := c.state.Start(ctx); err != nil {
		return err
	}
	if err := c.sessions.Start(ctx); err != nil {
		c.state.Stop()
		return err
	}
	return nil
}

func (c *client) Stop() {
	c.sessions.Stop()
	c.state.Stop()
}

func (c *client) Connect(ctx context.Context) (*types.WalletSession, error) {
	return c.sessions.Connect(ctx)
}

func (c *client) Disconnect(ctx context.Context) error {
	return c.sessions.Disconnect(ctx)
}

func (c *client) Session(ctx context.Context) *types.WalletSession {
	return c.sessions.Session(ctx)
}

func (c *client) Status(ctx context.Context) types.ConnectionStatus {
	return c.sessions.Status(ctx)
}

func (c *client) Increment(ctx context.Context) (*types.TransactionRecord, error) {
	return c.orch.Submit(ctx, types.OpIncrement, nil, nil)
}

func (c *client) Decrement(ctx context.Context) (*types.TransactionRecord, error) {
	return c.orch.Submit(ctx, types.OpDecrement, nil, nil)
}

func (c *client) IncrementBy(ctx context.Context, amount uint64) (*types.TransactionRecord, error) {
	return c.orch.Submit(ctx, types.OpIncrementBy, &amount, nil)
}

func (c *client) DecrementBy(ctx context.Context, amount uint64) (*types.TransactionRecord, error) {
	return c.orch.Submit(ctx, types.OpDecrementBy, &amount, nil)
}

func (c *client) Reset(ctx context.Context) (*types.TransactionRecord, error) {
	return c.orch.Submit(ctx, types.OpReset, nil, nil)
}

func (c *client) Pause(ctx context.Context) (*types.TransactionRecord, error) {
	return c.orch.Submit(ctx, types.OpPause, nil, nil)
}

func (c *client) Unpause(ctx context.Context) (*types.TransactionRecord, error) {
	return c.orch.Submit(ctx, types.OpUnpause, nil, nil)
}

func (c *client) TransferOwnership(ctx context.Context, newOwner ethtypes.Address0xHex) (*types.TransactionRecord, error) {
	return c.orch.Submit(ctx, types.OpTransferOwnership, nil, &newOwner)
}

// contractInfo serves reads from the cache, refreshing once if it has not
// been populated yet.
func (c *client) contractInfo(ctx context.Context) (*types.ContractInfo, error) {
	snapshot, err := c.state.Snapshot(ctx)
	if err != nil {
		if err := c.state.Refresh(ctx); err != nil {
			return nil, err
		}
		if snapshot, err = c.state.Snapshot(ctx); err != nil {
			return nil, err
		}
	}
	return &snapshot.Info, nil
}

func (c *client) GetCount(ctx context.Context) (uint64, error) {
	info, err := c.contractInfo(ctx)
	if err != nil {
		return 0, err
	}
	return info.Count, nil
}

func (c *client) GetOwner(ctx context.Context) (ethtypes.Address0xHex, error) {
	info, err := c.contractInfo(ctx)
	if err != nil {
		return types.ZeroAddress, err
	}
	return info.Owner, nil
}

func (c *client) IsPaused(ctx context.Context) (bool, error) {
	info, err := c.contractInfo(ctx)
	if err != nil {
		return false, err
	}
	return info.Paused, nil
}

func (c *client) GetContractInfo(ctx context.Context) (*types.ContractInfo, error) {
	return c.contractInfo(ctx)
}

func (c *client) Snapshot(ctx context.Context) (*statecache.Snapshot, error) {
	return c.state.Snapshot(ctx)
}

func (c *client) History(ctx context.Context) []*types.TransactionRecord {
	return c.orch.History(ctx)
}

func (c *client) GetRecord(ctx context.Context, id uuid.UUID) (*types.TransactionRecord, error) {
	return c.orch.GetRecord(ctx, id)
}

func (c *client) SessionUpdates(ctx context.Context) <-chan *types.WalletSession {
	sub := c.broker.Subscribe(ctx, events.TopicSessionUpdated)
	out := make(chan *types.WalletSession, 16)
	go func() {
		defer close(out)
		defer c.broker.Unsubscribe(ctx, events.TopicSessionUpdated, sub.ID)
		for {
			select {
			case payload, ok := <-sub.Channel:
				if !ok {
					return
				}
				if ev, ok := payload.(*events.SessionEvent); ok {
					select {
					case out <- ev.Session:
					default:
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
