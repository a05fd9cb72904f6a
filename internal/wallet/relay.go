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
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-common/pkg/wsclient"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/yosrahelal/tally/internal/confutil"
	"github.com/yosrahelal/tally/internal/msgs"
	"github.com/yosrahelal/tally/pkg/types"
)

// RelayConfig drives the backend that pairs with a remote wallet service
// over a websocket. The remote side holds the keys, approves the pairing,
// signs, and submits to the ledger itself.
type RelayConfig struct {
	URL            *string `yaml:"url"`
	RequestTimeout *string `yaml:"requestTimeout"`
}

var RelayDefaults = &RelayConfig{
	RequestTimeout: confutil.P("30s"),
}

// Wire messages exchanged with the relay service. Every client request
// carries an ID the relay echoes back on its response; unsolicited messages
// from the relay carry no ID.
const (
	relayMsgPairingRequest  = "pairing_request"
	relayMsgPairingApproved = "pairing_approved"
	relayMsgPairingRejected = "pairing_rejected"
	relayMsgSubmit          = "submit"
	relayMsgResult          = "result"
	relayMsgAccountsChanged = "accounts_changed"
	relayMsgNetworkChanged  = "network_changed"
	relayMsgSessionClosed   = "session_closed"
)

type relayMessage struct {
	Type    string                  `json:"type"`
	ID      string                  `json:"id,omitempty"`
	Network string                  `json:"network,omitempty"`
	Account *ethtypes.Address0xHex  `json:"account,omitempty"`
	Balance *uint64                 `json:"balance,omitempty"`
	Request *types.OperationRequest `json:"request,omitempty"`
	Result  *types.SubmissionResult `json:"result,omitempty"`
	Error   *relayErrorBody         `json:"error,omitempty"`
}

type relayErrorBody struct {
	Kind    types.FailureKind  `json:"kind"`
	Reason  types.RejectReason `json:"reason,omitempty"`
	Message string             `json:"message"`
}

func (re *relayErrorBody) toError() error {
	cause := errors.New(re.Message)
	if re.Kind == "" {
		return cause
	}
	return types.WrapTagged(re.Kind, re.Reason, cause)
}

type relayWallet struct {
	url            string
	network        string
	connectTimeout time.Duration
	requestTimeout time.Duration

	lock      sync.Mutex
	wsc       wsclient.WSClient
	connected bool
	handshake chan *relayMessage
	inflight  map[string]chan *relayMessage
	events    chan *types.WalletEvent
}

func newRelayWallet(ctx context.Context, conf *RelayConfig, network string, connectTimeout time.Duration) (Capability, error) {
	if conf.URL == nil || *conf.URL == "" {
		return nil, i18n.NewError(ctx, msgs.MsgWalletRelayURLMissing)
	}
	return &relayWallet{
		url:            *conf.URL,
		network:        network,
		connectTimeout: connectTimeout,
		requestTimeout: confutil.DurationMin(conf.RequestTimeout, 1*time.Second, *RelayDefaults.RequestTimeout),
		inflight:       make(map[string]chan *relayMessage),
		events:         make(chan *types.WalletEvent, 16),
	}, nil
}

func (w *relayWallet) Kind() types.BackendKind {
	return types.BackendRelay
}

func (w *relayWallet) IsAvailable(ctx context.Context) bool {
	return w.url != ""
}

func (w *relayWallet) Connect(ctx context.Context) (*types.WalletSession, error) {
	w.lock.Lock()
	if w.connected {
		w.lock.Unlock()
		return nil, types.NewWalletError(ctx, types.ReasonNone, msgs.MsgWalletAlreadyConnected, types.BackendRelay)
	}
	w.handshake = make(chan *relayMessage, 1)
	w.lock.Unlock()

	wsc, err := wsclient.New(ctx, &wsclient.WSConfig{
		WebSocketURL:           w.url,
		ConnectionTimeout:      w.connectTimeout,
		InitialConnectAttempts: 1,
	}, nil, nil)
	if err != nil {
		return nil, types.WrapTagged(types.FailureWallet, types.WalletUnavailable, err)
	}
	if err := wsc.Connect(); err != nil {
		return nil, types.WrapTagged(types.FailureWallet, types.WalletUnavailable,
			i18n.WrapError(ctx, err, msgs.MsgWalletUnavailable, types.BackendRelay))
	}
	go w.receiveLoop(ctx, wsc)

	if err := w.send(ctx, wsc, &relayMessage{Type: relayMsgPairingRequest, Network: w.network}); err != nil {
		wsc.Close()
		return nil, err
	}

	select {
	case msg := <-w.handshake:
		if msg.Type == relayMsgPairingRejected {
			wsc.Close()
			return nil, types.NewWalletError(ctx, types.WalletUserRejected, msgs.MsgWalletUserRejected)
		}
		if msg.Account == nil {
			wsc.Close()
			return nil, types.NewWalletError(ctx, types.WalletUnavailable, msgs.MsgWalletPairingIncomplete)
		}
		if msg.Network != w.network {
			wsc.Close()
			return nil, types.NewWalletError(ctx, types.WalletNetworkMismatch, msgs.MsgWalletNetworkMismatch, msg.Network, w.network)
		}
		w.lock.Lock()
		w.wsc = wsc
		w.connected = true
		w.lock.Unlock()
		log.L(ctx).Infof("Relay wallet paired account=%s network=%s", msg.Account, msg.Network)
		return &types.WalletSession{
			Account: *msg.Account,
			Network: msg.Network,
			Status:  types.StatusConnected,
			Backend: types.BackendRelay,
			Balance: msg.Balance,
		}, nil
	case <-time.After(w.connectTimeout):
		wsc.Close()
		return nil, types.NewWalletError(ctx, types.WalletHandshakeTimeout, msgs.MsgWalletHandshakeTimeout, w.connectTimeout)
	case <-ctx.Done():
		wsc.Close()
		return nil, types.NewTransientError(ctx, ctx.Err(), msgs.MsgWalletHandshakeAbandoned)
	}
}

func (w *relayWallet) Disconnect(ctx context.Context) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.wsc != nil {
		w.wsc.Close()
		w.wsc = nil
	}
	w.connected = false
	return nil
}

func (w *relayWallet) SignAndSubmit(ctx context.Context, req *types.OperationRequest) (*types.SubmissionResult, error) {
	w.lock.Lock()
	wsc := w.wsc
	connected := w.connected
	respond := make(chan *relayMessage, 1)
	id := uuid.New().String()
	if connected {
		w.inflight[id] = respond
	}
	w.lock.Unlock()
	if !connected {
		return nil, types.NewWalletError(ctx, types.ReasonNone, msgs.MsgWalletNotConnected)
	}
	defer func() {
		w.lock.Lock()
		delete(w.inflight, id)
		w.lock.Unlock()
	}()

	if err := w.send(ctx, wsc, &relayMessage{Type: relayMsgSubmit, ID: id, Request: req}); err != nil {
		return nil, err
	}
	select {
	case msg := <-respond:
		if msg.Error != nil {
			return nil, msg.Error.toError()
		}
		return msg.Result, nil
	case <-time.After(w.requestTimeout):
		return nil, types.WrapTagged(types.FailureTransientNetwork, types.ReasonNone,
			i18n.NewError(ctx, msgs.MsgWalletSubmitFailed))
	case <-ctx.Done():
		return nil, types.NewTransientError(ctx, ctx.Err(), msgs.MsgWalletSubmitFailed)
	}
}

func (w *relayWallet) Events() <-chan *types.WalletEvent {
	return w.events
}

func (w *relayWallet) send(ctx context.Context, wsc wsclient.WSClient, msg *relayMessage) error {
	payload, _ := json.Marshal(msg)
	if err := wsc.Send(ctx, payload); err != nil {
		return types.NewTransientError(ctx, err, msgs.MsgWalletSubmitFailed)
	}
	return nil
}

func (w *relayWallet) receiveLoop(ctx context.Context, wsc wsclient.WSClient) {
	l := log.L(ctx)
	for payload := range wsc.Receive() {
		var msg relayMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			l.Warnf("Discarding malformed relay message: %s", err)
			continue
		}
		switch msg.Type {
		case relayMsgPairingApproved, relayMsgPairingRejected:
			w.lock.Lock()
			handshake := w.handshake
			w.lock.Unlock()
			select {
			case handshake <- &msg:
			default:
			}
		case relayMsgResult:
			w.lock.Lock()
			respond := w.inflight[msg.ID]
			w.lock.Unlock()
			if respond != nil {
				respond <- &msg
			}
		case relayMsgAccountsChanged:
			w.emit(&types.WalletEvent{Type: types.WalletAccountsChanged, Account: msg.Account})
		case relayMsgNetworkChanged:
			network := msg.Network
			w.emit(&types.WalletEvent{Type: types.WalletNetworkChanged, Network: &network})
		case relayMsgSessionClosed:
			w.lock.Lock()
			w.connected = false
			w.lock.Unlock()
			w.emit(&types.WalletEvent{Type: types.WalletDisconnected})
		default:
			l.Debugf("Ignoring relay message type '%s'", msg.Type)
		}
	}
}

func (w *relayWallet) emit(ev *types.WalletEvent) {
	select {
	case w.events <- ev:
	default:
	}
}
