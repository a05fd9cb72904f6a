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

// Package sessionmgr owns the single wallet session of the client. It is the
// only writer of session state: user connect/disconnect calls and
// backend-originated events both land here, and every change is broadcast on
// the session topic and reflected in the persisted descriptor.
package sessionmgr

import (
	"context"
	"sync"

	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/yosrahelal/tally/internal/confutil"
	"github.com/yosrahelal/tally/internal/events"
	"github.com/yosrahelal/tally/internal/wallet"
	"github.com/yosrahelal/tally/pkg/types"
)

type Config struct {
	DataDir         *string `yaml:"dataDir"`
	PersistSessions *bool   `yaml:"persistSessions"`
}

var Defaults = &Config{
	DataDir:         confutil.P("./data"),
	PersistSessions: confutil.P(true),
}

type Manager interface {
	// Start rehydrates any persisted session, then begins consuming
	// backend events until Stop.
	Start(ctx context.Context) error
	Stop()

	// Connect establishes a session through the bound capability. Calling
	// it with a session already active returns that session unchanged.
	Connect(ctx context.Context) (*types.WalletSession, error)
	Disconnect(ctx context.Context) error

	// Session returns a copy of the active session, or nil when disconnected.
	Session(ctx context.Context) *types.WalletSession
	Status(ctx context.Context) types.ConnectionStatus
}

type sessionManager struct {
	capability wallet.Capability
	broker     events.Broker
	store      *descriptorStore
	persist    bool

	lock      sync.Mutex
	session   *types.WalletSession
	status    types.ConnectionStatus
	cancelCtx func()
	done      chan struct{}
}

func NewManager(ctx context.Context, conf *Config, capability wallet.Capability, broker events.Broker) (Manager, error) {
	var store *descriptorStore
	persist := confutil.Bool(conf.PersistSessions, *Defaults.PersistSessions)
	if persist {
		var err error
		if store, err = newDescriptorStore(ctx, confutil.StringNotEmpty(conf.DataDir, *Defaults.DataDir)); err != nil {
			return nil, err
		}
	}
	return &sessionManager{
		capability: capability,
		broker:     broker,
		store:      store,
		persist:    persist,
		status:     types.StatusDisconnected,
	}, nil
}

func (sm *sessionManager) Start(ctx context.Context) error {
	sm.rehydrate(ctx)

	loopCtx, cancelCtx := context.WithCancel(log.WithLogField(context.Background(), "role", "sessionmgr"))
	sm.lock.Lock()
	sm.cancelCtx = cancelCtx
	sm.done = make(chan struct{})
	sm.lock.Unlock()
	go sm.eventLoop(loopCtx)
	return nil
}

func (sm *sessionManager) Stop() {
	sm.lock.Lock()
	cancelCtx := sm.cancelCtx
	done := sm.done
	sm.lock.Unlock()
	if cancelCtx != nil {
		cancelCtx()
		<-done
	}
}

// rehydrate re-establishes a persisted session where the backend is still
// available. Failure to reconnect just discards the descriptor; the user
// connects fresh.
func (sm *sessionManager) rehydrate(ctx context.Context) {
	if sm.store == nil {
		return
	}
	descriptor := sm.store.load(ctx)
	if descriptor == nil {
		return
	}
	if descriptor.Backend != sm.capability.Kind() || !sm.capability.IsAvailable(ctx) {
		log.L(ctx).Infof("Not resuming persisted %s session, backend unavailable", descriptor.Backend)
		sm.store.clear(ctx)
		return
	}
	session, err := sm.capability.Connect(ctx)
	if err != nil {
		log.L(ctx).Warnf("Failed to resume persisted session: %s", err)
		sm.store.clear(ctx)
		return
	}
	log.L(ctx).Infof("Resumed %s session account=%s", session.Backend, session.Account)
	sm.setSession(ctx, session)
}

func (sm *sessionManager) Connect(ctx context.Context) (*types.WalletSession, error) {
	sm.lock.Lock()
	if sm.session != nil {
		existing := *sm.session
		sm.lock.Unlock()
		return &existing, nil
	}
	sm.status = types.StatusConnecting
	sm.lock.Unlock()

	session, err := sm.capability.Connect(ctx)
	if err != nil {
		sm.lock.Lock()
		sm.status = types.StatusDisconnected
		sm.lock.Unlock()
		return nil, err
	}
	sm.setSession(ctx, session)
	copied := *session
	return &copied, nil
}

func (sm *sessionManager) Disconnect(ctx context.Context) error {
	if err := sm.capability.Disconnect(ctx); err != nil {
		return err
	}
	sm.clearSession(ctx)
	return nil
}

func (sm *sessionManager) Session(ctx context.Context) *types.WalletSession {
	sm.lock.Lock()
	defer sm.lock.Unlock()
	if sm.session == nil {
		return nil
	}
	copied := *sm.session
	return &copied
}

func (sm *sessionManager) Status(ctx context.Context) types.ConnectionStatus {
	sm.lock.Lock()
	defer sm.lock.Unlock()
	return sm.status
}

func (sm *sessionManager) setSession(ctx context.Context, session *types.WalletSession) {
	sm.lock.Lock()
	copied := *session
	sm.session = &copied
	sm.status = types.StatusConnected
	sm.lock.Unlock()
	sm.persistSession(ctx, &copied)
	sm.broker.Publish(ctx, events.TopicSessionUpdated, &events.SessionEvent{Session: &copied})
}

func (sm *sessionManager) clearSession(ctx context.Context) {
	sm.lock.Lock()
	sm.session = nil
	sm.status = types.StatusDisconnected
	sm.lock.Unlock()
	if sm.store != nil {
		sm.store.clear(ctx)
	}
	sm.broker.Publish(ctx, events.TopicSessionUpdated, &events.SessionEvent{Session: nil})
}

func (sm *sessionManager) persistSession(ctx context.Context, session *types.WalletSession) {
	if sm.store == nil {
		return
	}
	err := sm.store.save(ctx, &types.SessionDescriptor{
		Account: session.Account,
		Network: session.Network,
		Backend: session.Backend,
		Balance: session.Balance,
	})
	if err != nil {
		// In-memory session stays valid; only resumption is lost
		log.L(ctx).Warnf("Failed to persist session descriptor: %s", err)
	}
}

func (sm *sessionManager) eventLoop(ctx context.Context) {
	defer close(sm.done)
	l := log.L(ctx)
	for {
		select {
		case ev, ok := <-sm.capability.Events():
			if !ok {
				return
			}
			sm.handleEvent(ctx, ev)
		case <-ctx.Done():
			l.Debugf("Session event loop stopping")
			return
		}
	}
}

func (sm *sessionManager) handleEvent(ctx context.Context, ev *types.WalletEvent) {
	l := log.L(ctx)
	sm.lock.Lock()
	session := sm.session
	sm.lock.Unlock()
	if session == nil {
		l.Debugf("Ignoring %s event with no active session", ev.Type)
		return
	}
	switch ev.Type {
	case types.WalletAccountsChanged:
		if ev.Account == nil {
			return
		}
		l.Infof("Wallet account changed to %s", ev.Account)
		updated := *session
		updated.Account = *ev.Account
		sm.setSession(ctx, &updated)
	case types.WalletNetworkChanged:
		if ev.Network == nil {
			return
		}
		l.Infof("Wallet network changed to %s", *ev.Network)
		updated := *session
		updated.Network = *ev.Network
		sm.setSession(ctx, &updated)
	case types.WalletDisconnected:
		l.Infof("Wallet disconnected by backend")
		sm.clearSession(ctx)
	}
}
