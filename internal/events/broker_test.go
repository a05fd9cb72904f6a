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

package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yosrahelal/tally/pkg/types"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	ctx := context.Background()
	b := NewBroker()
	sub1 := b.Subscribe(ctx, TopicSessionUpdated)
	sub2 := b.Subscribe(ctx, TopicSessionUpdated)
	assert.NotEqual(t, sub1.ID, sub2.ID)

	session := &types.WalletSession{Network: "tally-local"}
	b.Publish(ctx, TopicSessionUpdated, &SessionEvent{Session: session})

	for _, sub := range []*Subscription{sub1, sub2} {
		ev := (<-sub.Channel).(*SessionEvent)
		assert.Equal(t, "tally-local", ev.Session.Network)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	ctx := context.Background()
	b := NewBroker()
	sub := b.Subscribe(ctx, TopicSessionUpdated)
	b.Unsubscribe(ctx, TopicSessionUpdated, sub.ID)

	_, ok := <-sub.Channel
	assert.False(t, ok)

	// Publishing with no subscribers is a no-op
	b.Publish(ctx, TopicSessionUpdated, &SessionEvent{})

	// Unknown id is ignored
	b.Unsubscribe(ctx, TopicSessionUpdated, "unknown")
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	ctx := context.Background()
	b := NewBroker()
	sub := b.Subscribe(ctx, TopicSessionUpdated)

	// Fill the buffer and keep going; Publish must never block
	for i := 0; i < 40; i++ {
		b.Publish(ctx, TopicSessionUpdated, &SessionEvent{})
	}

	received := 0
	for {
		select {
		case <-sub.Channel:
			received++
			continue
		default:
		}
		break
	}
	require.Greater(t, received, 0)
	assert.Less(t, received, 40)
}

func TestTopicsAreIsolated(t *testing.T) {
	ctx := context.Background()
	b := NewBroker()
	sub := b.Subscribe(ctx, Topic("other.topic"))
	b.Publish(ctx, TopicSessionUpdated, &SessionEvent{})
	select {
	case <-sub.Channel:
		t.Fatal("event crossed topics")
	default:
	}
}
