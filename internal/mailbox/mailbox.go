// Copyright 2026 The ScaleCI Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mailbox is the single cross-loop mutable object (spec §5):
// a multi-producer/single-consumer queue carrying model.MailboxMessage
// from the Scale-Up Loop to the Scale-Down Loop. Post never blocks;
// Drain never blocks and returns everything queued so far (REDESIGN
// FLAGS: "mailbox as unbounded queue with polling drain" — the queue
// stays unbounded, but the consumer drains to empty every cycle instead
// of taking one message at a time).
package mailbox

import (
	"sync"

	"github.com/scaleci/fleet/internal/model"
)

// Mailbox is safe for concurrent Post calls from many Scale-Up
// iterations and a single concurrent Drain caller.
type Mailbox struct {
	mu       sync.Mutex
	messages []model.MailboxMessage
}

// New returns an empty Mailbox.
func New() *Mailbox {
	return &Mailbox{}
}

// Post appends msg. Never blocks.
func (m *Mailbox) Post(msg model.MailboxMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

// Drain removes and returns every message queued so far, in post order.
// Never blocks; returns nil if the mailbox is empty.
func (m *Mailbox) Drain() []model.MailboxMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return nil
	}
	out := m.messages
	m.messages = nil
	return out
}

// Len reports the number of messages currently queued, for the fleet
// gauge the out-of-scope metrics surface reads.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}
