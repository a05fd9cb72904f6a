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

// Package orchestrator drives one mutating operation from user intent to
// resolved transaction record: client-side validation, advisory preflight
// against the cached contract state, delegated signing+submission under a
// timeout, then optimistic cache update and staggered reconciliation.
//
// Operations are never coalesced and mutations are never retried
// automatically; a failure resolves the record and the user decides.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/yosrahelal/tally/internal/cache"
	"github.com/yosrahelal/tally/internal/confutil"
	"github.com/yosrahelal/tally/internal/msgs"
	"github.com/yosrahelal/tally/internal/sessionmgr"
	"github.com/yosrahelal/tally/internal/statecache"
	"github.com/yosrahelal/tally/internal/wallet"
	"github.com/yosrahelal/tally/pkg/types"
)

type Config struct {
	SubmissionTimeout *string `yaml:"submissionTimeout"`
	HistoryLimit      *int    `yaml:"historyLimit"`
}

var Defaults = &Config{
	SubmissionTimeout: confutil.P("30s"),
	HistoryLimit:      confutil.P(50),
}

type Orchestrator interface {
	// Submit runs one operation end to end. The returned record is also
	// retained in the history, resolved success or error exactly once.
	Submit(ctx context.Context, kind types.OperationKind, amount *uint64, newOwner *ethtypes.Address0xHex) (*types.TransactionRecord, error)

	// History returns retained records, oldest first.
	History(ctx context.Context) []*types.TransactionRecord

	GetRecord(ctx context.Context, id uuid.UUID) (*types.TransactionRecord, error)
}

type orchestrator struct {
	capability        wallet.Capability
	sessions          sessionmgr.Manager
	state             statecache.StateCache
	submissionTimeout time.Duration
	historyLimit      int

	lock    sync.Mutex
	history []*types.TransactionRecord
	byID    cache.Cache[uuid.UUID, *types.TransactionRecord]
}

func NewOrchestrator(ctx context.Context, conf *Config, capability wallet.Capability, sessions sessionmgr.Manager, state statecache.StateCache) Orchestrator {
	historyLimit := confutil.IntMin(conf.HistoryLimit, 1, *Defaults.HistoryLimit)
	return &orchestrator{
		capability:        capability,
		sessions:          sessions,
		state:             state,
		submissionTimeout: confutil.DurationMin(conf.SubmissionTimeout, 1*time.Millisecond, *Defaults.SubmissionTimeout),
		historyLimit:      historyLimit,
		byID:              cache.NewCache[uuid.UUID, *types.TransactionRecord](&cache.Config{Capacity: &historyLimit}, &cache.Config{Capacity: &historyLimit}),
	}
}

func (o *orchestrator) Submit(ctx context.Context, kind types.OperationKind, amount *uint64, newOwner *ethtypes.Address0xHex) (*types.TransactionRecord, error) {
	session := o.sessions.Session(ctx)
	if session == nil {
		return nil, types.NewWalletError(ctx, types.ReasonNone, msgs.MsgWalletNotConnected)
	}
	if err := validate(ctx, kind, amount, newOwner); err != nil {
		return nil, err
	}

	record := o.newRecord(kind, amount)
	if err := o.preflight(ctx, kind, amount, session); err != nil {
		o.resolve(ctx, record, err)
		return o.copyOf(record), err
	}

	req := &types.OperationRequest{
		Kind:     kind,
		Amount:   amount,
		NewOwner: newOwner,
		Caller:   session.Account,
		Network:  session.Network,
	}
	submitCtx, cancel := context.WithTimeout(ctx, o.submissionTimeout)
	defer cancel()
	result, err := o.capability.SignAndSubmit(submitCtx, req)
	if err != nil {
		if errors.Is(submitCtx.Err(), context.DeadlineExceeded) {
			err = types.WrapTagged(types.FailureTransientNetwork, types.ReasonNone,
				i18n.NewError(ctx, msgs.MsgTxSubmissionTimeout, o.submissionTimeout))
		}
		o.resolve(ctx, record, err)
		return o.copyOf(record), err
	}

	o.resolve(ctx, record, nil)
	if result != nil && result.NewCount != nil {
		o.state.ApplyOptimistic(ctx, *result.NewCount)
	}
	o.state.ForceReconcile(ctx)
	log.L(ctx).Infof("Operation %s submitted tx=%s", kind, record.ID)
	return o.copyOf(record), nil
}

// validate rejects malformed input before any network interaction. Ledger
// preconditions are not checked here.
func validate(ctx context.Context, kind types.OperationKind, amount *uint64, newOwner *ethtypes.Address0xHex) error {
	switch kind {
	case types.OpIncrementBy, types.OpDecrementBy:
		if amount == nil || *amount == 0 || *amount > types.MaxCount {
			var amountVal uint64
			if amount != nil {
				amountVal = *amount
			}
			return types.NewValidationError(ctx, msgs.MsgTxAmountOutOfRange, amountVal, types.MaxCount)
		}
	case types.OpTransferOwnership:
		if newOwner == nil || *newOwner == types.ZeroAddress {
			return types.NewValidationError(ctx, msgs.MsgLedgerInvalidNewOwner)
		}
	case types.OpIncrement, types.OpDecrement, types.OpReset, types.OpPause, types.OpUnpause:
	default:
		return types.NewValidationError(ctx, msgs.MsgLedgerUnknownOperation, kind)
	}
	return nil
}

// preflight fails fast on conditions the cached state already shows would be
// rejected. Advisory only: an unpopulated or stale cache never blocks a
// submission, and the ledger remains authoritative either way.
func (o *orchestrator) preflight(ctx context.Context, kind types.OperationKind, amount *uint64, session *types.WalletSession) error {
	snapshot, err := o.state.Snapshot(ctx)
	if err != nil || snapshot.Stale {
		return nil
	}
	info := &snapshot.Info

	delta := uint64(1)
	if amount != nil {
		delta = *amount
	}
	switch kind {
	case types.OpIncrement, types.OpIncrementBy:
		if info.Paused {
			return types.NewLedgerRejection(ctx, types.RejectPaused, msgs.MsgTxPreflightPaused)
		}
		if delta > info.MaxCount-info.Count {
			return types.NewLedgerRejection(ctx, types.RejectMaxCountExceeded, msgs.MsgTxPreflightBound)
		}
	case types.OpDecrement, types.OpDecrementBy:
		if info.Paused {
			return types.NewLedgerRejection(ctx, types.RejectPaused, msgs.MsgTxPreflightPaused)
		}
		if info.Count < info.MinCount+delta {
			return types.NewLedgerRejection(ctx, types.RejectMinCountExceeded, msgs.MsgTxPreflightBound)
		}
	case types.OpReset, types.OpPause, types.OpUnpause, types.OpTransferOwnership:
		if session.Account != info.Owner {
			return types.NewLedgerRejection(ctx, types.RejectNotOwner, msgs.MsgTxPreflightNotOwner)
		}
	}
	return nil
}

func (o *orchestrator) newRecord(kind types.OperationKind, amount *uint64) *types.TransactionRecord {
	record := &types.TransactionRecord{
		ID:          uuid.New(),
		Kind:        kind,
		Status:      types.TxStatusPending,
		Amount:      amount,
		SubmittedAt: fftypes.Now(),
	}
	o.lock.Lock()
	defer o.lock.Unlock()
	o.history = append(o.history, record)
	if len(o.history) > o.historyLimit {
		evicted := o.history[0]
		o.history = o.history[1:]
		o.byID.Delete(evicted.ID)
	}
	o.byID.Set(record.ID, record)
	return record
}

func (o *orchestrator) resolve(ctx context.Context, record *types.TransactionRecord, err error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	record.ResolvedAt = fftypes.Now()
	if err != nil {
		record.Status = types.TxStatusError
		record.ErrorDetail = err.Error()
		log.L(ctx).Warnf("Operation %s failed tx=%s: %s", record.Kind, record.ID, err)
		return
	}
	record.Status = types.TxStatusSuccess
}

func (o *orchestrator) copyOf(record *types.TransactionRecord) *types.TransactionRecord {
	o.lock.Lock()
	defer o.lock.Unlock()
	copied := *record
	return &copied
}

func (o *orchestrator) History(ctx context.Context) []*types.TransactionRecord {
	o.lock.Lock()
	defer o.lock.Unlock()
	out := make([]*types.TransactionRecord, len(o.history))
	for i, record := range o.history {
		copied := *record
		out[i] = &copied
	}
	return out
}

func (o *orchestrator) GetRecord(ctx context.Context, id uuid.UUID) (*types.TransactionRecord, error) {
	o.lock.Lock()
	record, ok := o.byID.Get(id)
	o.lock.Unlock()
	if !ok {
		return nil, i18n.NewError(ctx, msgs.MsgTxRecordNotFound, id)
	}
	return o.copyOf(record), nil
}
