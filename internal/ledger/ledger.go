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

// Package ledger is the authoritative bounded counter state machine. It is the
// single source of truth for count, owner and paused, applying each operation
// atomically under its preconditions and emitting a structured change record
// for every successful mutation.
package ledger

import (
	"context"
	"sync"

	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/yosrahelal/tally/internal/confutil"
	"github.com/yosrahelal/tally/internal/msgs"
	"github.com/yosrahelal/tally/pkg/types"
)

type Config struct {
	InitialCount *uint64 `yaml:"initialCount"`
	JournalLimit *int    `yaml:"journalLimit"`
}

var Defaults = &Config{
	InitialCount: confutil.P(uint64(0)),
	JournalLimit: confutil.P(1000),
}

type Ledger interface {
	// Apply executes one mutating operation atomically. On rejection the
	// state is left completely unchanged.
	Apply(ctx context.Context, req *types.OperationRequest) (*types.SubmissionResult, error)

	GetCount(ctx context.Context) uint64
	GetOwner(ctx context.Context) ethtypes.Address0xHex
	IsPaused(ctx context.Context) bool
	GetContractInfo(ctx context.Context) *types.ContractInfo

	// Subscribe registers a change-record listener. Records are delivered
	// best-effort; a subscriber that stops draining loses records rather
	// than blocking the ledger.
	Subscribe() <-chan *types.ChangeRecord
	Unsubscribe(ch <-chan *types.ChangeRecord)

	// Journal returns the retained change records, oldest first.
	Journal(ctx context.Context) []*types.ChangeRecord
}

type counterLedger struct {
	lock         sync.Mutex
	count        uint64
	owner        ethtypes.Address0xHex
	paused       bool
	journal      []*types.ChangeRecord
	journalLimit int
	subscribers  []chan *types.ChangeRecord
}

// NewLedger initializes the contract with the supplied deployer as owner.
func NewLedger(ctx context.Context, conf *Config, deployer ethtypes.Address0xHex) Ledger {
	initial := confutil.UInt64(conf.InitialCount, *Defaults.InitialCount)
	if initial > types.MaxCount {
		initial = types.MaxCount
	}
	l := &counterLedger{
		count:        initial,
		owner:        deployer,
		journalLimit: confutil.IntMin(conf.JournalLimit, 1, *Defaults.JournalLimit),
	}
	log.L(ctx).Infof("Counter ledger initialized count=%d owner=%s", l.count, l.owner)
	return l
}

func (l *counterLedger) Apply(ctx context.Context, req *types.OperationRequest) (*types.SubmissionResult, error) {
	if req.Caller == types.ZeroAddress {
		return nil, types.NewValidationError(ctx, msgs.MsgLedgerMissingCaller)
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	var record *types.ChangeRecord
	var err error
	switch req.Kind {
	case types.OpIncrement:
		record, err = l.adjust(ctx, req.Caller, 1, true)
	case types.OpDecrement:
		record, err = l.adjust(ctx, req.Caller, 1, false)
	case types.OpIncrementBy:
		record, err = l.adjustBy(ctx, req, true)
	case types.OpDecrementBy:
		record, err = l.adjustBy(ctx, req, false)
	case types.OpReset:
		record, err = l.reset(ctx, req.Caller)
	case types.OpPause:
		record, err = l.setPaused(ctx, req.Caller, true)
	case types.OpUnpause:
		record, err = l.setPaused(ctx, req.Caller, false)
	case types.OpTransferOwnership:
		record, err = l.transferOwnership(ctx, req)
	default:
		return nil, types.NewValidationError(ctx, msgs.MsgLedgerUnknownOperation, req.Kind)
	}
	if err != nil {
		return nil, err
	}

	l.record(ctx, record)
	newCount := l.count
	return &types.SubmissionResult{NewCount: &newCount, Record: record}, nil
}

func (l *counterLedger) adjustBy(ctx context.Context, req *types.OperationRequest, up bool) (*types.ChangeRecord, error) {
	if req.Amount == nil || *req.Amount == 0 {
		return nil, types.NewValidationError(ctx, msgs.MsgLedgerAmountRequired, req.Kind)
	}
	return l.adjust(ctx, req.Caller, *req.Amount, up)
}

// adjust applies the full delta or nothing. The paused rejection takes
// precedence over bound rejections.
func (l *counterLedger) adjust(ctx context.Context, caller ethtypes.Address0xHex, delta uint64, up bool) (*types.ChangeRecord, error) {
	if l.paused {
		return nil, types.NewLedgerRejection(ctx, types.RejectPaused, msgs.MsgLedgerPaused)
	}
	changeType := types.CountIncremented
	if up {
		if delta > types.MaxCount-l.count {
			return nil, types.NewLedgerRejection(ctx, types.RejectMaxCountExceeded, msgs.MsgLedgerMaxCountExceeded, types.MaxCount)
		}
		l.count += delta
	} else {
		if l.count < types.MinCount+delta {
			return nil, types.NewLedgerRejection(ctx, types.RejectMinCountExceeded, msgs.MsgLedgerMinCountExceeded, types.MinCount)
		}
		l.count -= delta
		changeType = types.CountDecremented
	}
	newCount := l.count
	return &types.ChangeRecord{
		Type:     changeType,
		Caller:   caller,
		NewCount: &newCount,
	}, nil
}

func (l *counterLedger) reset(ctx context.Context, caller ethtypes.Address0xHex) (*types.ChangeRecord, error) {
	if err := l.requireOwner(ctx, caller); err != nil {
		return nil, err
	}
	l.count = 0
	return &types.ChangeRecord{
		Type:   types.CountReset,
		Caller: caller,
	}, nil
}

func (l *counterLedger) setPaused(ctx context.Context, caller ethtypes.Address0xHex, paused bool) (*types.ChangeRecord, error) {
	if err := l.requireOwner(ctx, caller); err != nil {
		return nil, err
	}
	l.paused = paused
	changeType := types.ContractPaused
	if !paused {
		changeType = types.ContractUnpaused
	}
	return &types.ChangeRecord{
		Type:   changeType,
		Caller: caller,
	}, nil
}

func (l *counterLedger) transferOwnership(ctx context.Context, req *types.OperationRequest) (*types.ChangeRecord, error) {
	if err := l.requireOwner(ctx, req.Caller); err != nil {
		return nil, err
	}
	if req.NewOwner == nil || *req.NewOwner == types.ZeroAddress {
		return nil, types.NewLedgerRejection(ctx, types.RejectInvalidIdentity, msgs.MsgLedgerInvalidNewOwner)
	}
	previous := l.owner
	l.owner = *req.NewOwner
	return &types.ChangeRecord{
		Type:          types.OwnershipTransferred,
		Caller:        req.Caller,
		PreviousOwner: &previous,
		NewOwner:      req.NewOwner,
	}, nil
}

func (l *counterLedger) requireOwner(ctx context.Context, caller ethtypes.Address0xHex) error {
	if caller != l.owner {
		return types.NewLedgerRejection(ctx, types.RejectNotOwner, msgs.MsgLedgerNotOwner, l.owner, caller)
	}
	return nil
}

// record appends to the bounded journal and fans out. Called with the lock held.
func (l *counterLedger) record(ctx context.Context, record *types.ChangeRecord) {
	record.Timestamp = fftypes.Now()
	l.journal = append(l.journal, record)
	if len(l.journal) > l.journalLimit {
		l.journal = l.journal[len(l.journal)-l.journalLimit:]
	}
	for _, ch := range l.subscribers {
		select {
		case ch <- record:
		default:
			log.L(ctx).Warnf("Dropping change record %s for slow subscriber", record.Type)
		}
	}
}

func (l *counterLedger) GetCount(ctx context.Context) uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.count
}

func (l *counterLedger) GetOwner(ctx context.Context) ethtypes.Address0xHex {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.owner
}

func (l *counterLedger) IsPaused(ctx context.Context) bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.paused
}

func (l *counterLedger) GetContractInfo(ctx context.Context) *types.ContractInfo {
	l.lock.Lock()
	defer l.lock.Unlock()
	return &types.ContractInfo{
		Count:    l.count,
		Owner:    l.owner,
		Paused:   l.paused,
		MaxCount: types.MaxCount,
		MinCount: types.MinCount,
	}
}

func (l *counterLedger) Subscribe() <-chan *types.ChangeRecord {
	l.lock.Lock()
	defer l.lock.Unlock()
	ch := make(chan *types.ChangeRecord, 16)
	l.subscribers = append(l.subscribers, ch)
	return ch
}

func (l *counterLedger) Unsubscribe(target <-chan *types.ChangeRecord) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for i, ch := range l.subscribers {
		if ch == target {
			l.subscribers = append(l.subscribers[:i], l.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

func (l *counterLedger) Journal(ctx context.Context) []*types.ChangeRecord {
	l.lock.Lock()
	defer l.lock.Unlock()
	out := make([]*types.ChangeRecord, len(l.journal))
	copy(out, l.journal)
	return out
}
