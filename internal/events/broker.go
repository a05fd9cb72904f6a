// Copyright © 2024 Kaleido, Inc.
//
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package events is the in-process broker connecting the session manager to
// the components that react to session changes. Events are broadcast to all
// subscribers of a topic; a subscriber that stops draining loses events
// rather than blocking the publisher.
package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/yosrahelal/tally/pkg/types"
)

type Topic string

const (
	// TopicSessionUpdated fires whenever the active session is established,
	// mutated by a backend event, or torn down (payload session is nil).
	TopicSessionUpdated Topic = "session.updated"
)

// SessionEvent is the payload on TopicSessionUpdated. A nil Session means
// the client is now disconnected.
type SessionEvent struct {
	Session *types.WalletSession
}

type Subscription struct {
	ID      string
	Channel <-chan interface{}
}

type Broker interface {
	Publish(ctx context.Context, topic Topic, payload interface{})
	Subscribe(ctx context.Context, topic Topic) *Subscription
	Unsubscribe(ctx context.Context, topic Topic, id string)
}

type broker struct {
	lock   sync.Mutex
	topics map[Topic]map[string]chan interface{}
}

func NewBroker() Broker {
	return &broker{
		topics: make(map[Topic]map[string]chan interface{}),
	}
}

func (b *broker) Publish(ctx context.Context, topic Topic, payload interface{}) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for id, ch := range b.topics[topic] {
		select {
		case ch <- payload:
		default:
			log.L(ctx).Warnf("Dropping %s event for slow subscriber %s", topic, id)
		}
	}
}

func (b *broker) Subscribe(ctx context.Context, topic Topic) *Subscription {
	b.lock.Lock()
	defer b.lock.Unlock()
	id := uuid.New().String()
	ch := make(chan interface{}, 16)
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[string]chan interface{})
	}
	b.topics[topic][id] = ch
	log.L(ctx).Debugf("Subscribed %s to %s", id, topic)
	return &Subscription{ID: id, Channel: ch}
}

func (b *broker) Unsubscribe(ctx context.Context, topic Topic, id string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if ch, ok := b.topics[topic][id]; ok {
		delete(b.topics[topic], id)
		close(ch)
	}
}
