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

// Package statecache mirrors the authoritative contract state locally. Reads
// are sequenced so that only the newest-initiated read may update the mirror:
// a slow read that completes after a newer one is discarded, never applied.
// A failed refresh marks the mirror stale but keeps the last good state.
package statecache

import (
	"context"
	"sync"
	"time"

	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-common/pkg/retry"
	"github.com/yosrahelal/tally/internal/confutil"
	"github.com/yosrahelal/tally/internal/ledger"
	"github.com/yosrahelal/tally/internal/msgs"
	"github.com/yosrahelal/tally/pkg/types"
)

type RetryConfig struct {
	InitialDelay *string  `yaml:"initialDelay"`
	MaximumDelay *string  `yaml:"maximumDelay"`
	Factor       *float64 `yaml:"factor"`
	MaxAttempts  *int     `yaml:"maxAttempts"`
}

type Config struct {
	PollInterval    *string     `yaml:"pollInterval"`
	ReconcileDelays []string    `yaml:"reconcileDelays"`
	Retry           RetryConfig `yaml:"retry"`
}

var Defaults = &Config{
	PollInterval:    confutil.P("5s"),
	ReconcileDelays: []string{"500ms", "2s", "5s"},
	Retry: RetryConfig{
		InitialDelay: confutil.P("250ms"),
		MaximumDelay: confutil.P("5s"),
		Factor:       confutil.P(2.0),
		MaxAttempts:  confutil.P(5),
	},
}

// Snapshot is one consistent view of the mirrored state. Stale means the
// last refresh attempt failed and Info is the last-known-good state.
type Snapshot struct {
	Info          types.ContractInfo
	Stale         bool
	LastRefreshed *fftypes.FFTime
}

type StateCache interface {
	// Start performs the initial refresh (with retry) then polls in the
	// background until Stop.
	Start(ctx context.Context) error
	Stop()

	// Snapshot fails only before the first successful refresh.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// Refresh forces an authoritative read now, retrying transient
	// failures with bounded backoff.
	Refresh(ctx context.Context) error

	// ForceReconcile schedules one read per configured staggered delay,
	// catching state the ledger settles shortly after a mutation.
	ForceReconcile(ctx context.Context)

	// ApplyOptimistic overwrites the mirrored count ahead of the next
	// authoritative read, which always wins over it.
	ApplyOptimistic(ctx context.Context, newCount uint64)
}

type stateCache struct {
	conn            ledger.Connection
	pollInterval    time.Duration
	reconcileDelays []time.Duration
	retry           *retry.Retry
	maxAttempts     int
	closing         chan struct{}
	closeOnce       sync.Once

	lock            sync.Mutex
	info            *types.ContractInfo
	stale           bool
	lastRefreshed   *fftypes.FFTime
	nextSequence    uint64
	appliedSequence uint64

	cancelCtx func()
	done      chan struct{}
}

func NewStateCache(ctx context.Context, conf *Config, conn ledger.Connection) StateCache {
	delayConf := conf.ReconcileDelays
	if len(delayConf) == 0 {
		delayConf = Defaults.ReconcileDelays
	}
	reconcileDelays := make([]time.Duration, len(delayConf))
	for i, d := range delayConf {
		reconcileDelays[i] = confutil.Duration(&d, "1s")
	}
	return &stateCache{
		conn:            conn,
		reconcileDelays: reconcileDelays,
		closing:         make(chan struct{}),
		pollInterval:    confutil.DurationMin(conf.PollInterval, 10*time.Millisecond, *Defaults.PollInterval),
		retry: &retry.Retry{
			InitialDelay: confutil.DurationMin(conf.Retry.InitialDelay, 1*time.Millisecond, *Defaults.Retry.InitialDelay),
			MaximumDelay: confutil.DurationMin(conf.Retry.MaximumDelay, 1*time.Millisecond, *Defaults.Retry.MaximumDelay),
			Factor:       confutil.Float64Min(conf.Retry.Factor, 1.0, *Defaults.Retry.Factor),
		},
		maxAttempts: confutil.IntMin(conf.Retry.MaxAttempts, 1, *Defaults.Retry.MaxAttempts),
	}
}

func (sc *stateCache) Start(ctx context.Context) error {
	if err := sc.Refresh(ctx); err != nil {
		return err
	}
	loopCtx, cancelCtx := context.WithCancel(log.WithLogField(context.Background(), "role", "statecache"))
	sc.cancelCtx = cancelCtx
	sc.done = make(chan struct{})
	go sc.pollLoop(loopCtx)
	return nil
}

func (sc *stateCache) Stop() {
	sc.closeOnce.Do(func() { close(sc.closing) })
	if sc.cancelCtx != nil {
		sc.cancelCtx()
		<-sc.done
	}
}

func (sc *stateCache) pollLoop(ctx context.Context) {
	defer close(sc.done)
	ticker := time.NewTicker(sc.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			// Single attempt per tick; the next tick is the retry
			if err := sc.read(ctx); err != nil {
				log.L(ctx).Warnf("Poll refresh failed (stale=true): %s", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// read performs one sequenced authoritative read. The sequence is claimed
// before the network call, so a read overtaken while in flight is discarded
// on completion instead of regressing the mirror.
func (sc *stateCache) read(ctx context.Context) error {
	sc.lock.Lock()
	sc.nextSequence++
	seq := sc.nextSequence
	sc.lock.Unlock()

	info, err := sc.conn.ContractInfo(ctx)

	sc.lock.Lock()
	defer sc.lock.Unlock()
	if err != nil {
		// A failed read overtaken by a newer successful one says nothing
		// about the freshness of the mirror
		if seq <= sc.appliedSequence {
			log.L(ctx).Debugf("Discarding overtaken failed read seq=%d applied=%d", seq, sc.appliedSequence)
			return err
		}
		sc.stale = true
		return err
	}
	if seq <= sc.appliedSequence {
		log.L(ctx).Debugf("Discarding overtaken read seq=%d applied=%d", seq, sc.appliedSequence)
		return nil
	}
	sc.appliedSequence = seq
	sc.info = info
	sc.stale = false
	sc.lastRefreshed = fftypes.Now()
	return nil
}

func (sc *stateCache) Refresh(ctx context.Context) error {
	err := sc.retry.Do(ctx, "contract state refresh", func(attempt int) (bool, error) {
		if err := sc.read(ctx); err != nil {
			return attempt < sc.maxAttempts, err
		}
		return false, nil
	})
	if err != nil {
		return types.WrapTagged(types.FailureTransientNetwork, types.ReasonNone,
			i18n.WrapError(ctx, err, msgs.MsgCacheRefreshFailed))
	}
	return nil
}

func (sc *stateCache) Snapshot(ctx context.Context) (*Snapshot, error) {
	sc.lock.Lock()
	defer sc.lock.Unlock()
	if sc.info == nil {
		return nil, i18n.NewError(ctx, msgs.MsgCacheNotPopulated)
	}
	return &Snapshot{
		Info:          *sc.info,
		Stale:         sc.stale,
		LastRefreshed: sc.lastRefreshed,
	}, nil
}

// ForceReconcile reads are single-attempt; the sequence discipline and the
// later scheduled reads cover an individual failure.
func (sc *stateCache) ForceReconcile(ctx context.Context) {
	go func() {
		reconcileCtx := log.WithLogField(context.Background(), "role", "reconcile")
		for _, delay := range sc.reconcileDelays {
			select {
			case <-time.After(delay):
				if err := sc.read(reconcileCtx); err != nil {
					log.L(reconcileCtx).Warnf("Reconcile read failed: %s", err)
				}
			case <-sc.closing:
				return
			}
		}
	}()
}

func (sc *stateCache) ApplyOptimistic(ctx context.Context, newCount uint64) {
	sc.lock.Lock()
	defer sc.lock.Unlock()
	if sc.info == nil {
		return
	}
	log.L(ctx).Debugf("Optimistic count %d -> %d", sc.info.Count, newCount)
	sc.info.Count = newCount
}
