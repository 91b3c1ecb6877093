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

package mailbox

import (
	"sync"
	"testing"

	"github.com/scaleci/fleet/internal/model"
)

func TestMailboxDrainReturnsInPostOrder(t *testing.T) {
	box := New()
	box.Post(model.MailboxMessage{ServerName: "a"})
	box.Post(model.MailboxMessage{ServerName: "b"})
	box.Post(model.MailboxMessage{ServerName: "c"})

	got := box.Drain()
	if len(got) != 3 {
		t.Fatalf("len(Drain()) = %d, want 3", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].ServerName != want {
			t.Errorf("Drain()[%d].ServerName = %q, want %q", i, got[i].ServerName, want)
		}
	}
}

func TestMailboxDrainEmptiesTheQueue(t *testing.T) {
	box := New()
	box.Post(model.MailboxMessage{ServerName: "a"})

	if got := box.Drain(); len(got) != 1 {
		t.Fatalf("first Drain() len = %d, want 1", len(got))
	}
	if got := box.Drain(); got != nil {
		t.Errorf("second Drain() = %v, want nil", got)
	}
	if got := box.Len(); got != 0 {
		t.Errorf("Len() after drain = %d, want 0", got)
	}
}

func TestMailboxLenTracksQueueDepth(t *testing.T) {
	box := New()
	if got := box.Len(); got != 0 {
		t.Fatalf("Len() on empty mailbox = %d, want 0", got)
	}
	box.Post(model.MailboxMessage{ServerName: "a"})
	box.Post(model.MailboxMessage{ServerName: "b"})
	if got := box.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

func TestMailboxConcurrentPostsAreAllDrained(t *testing.T) {
	box := New()
	const n = 200

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			box.Post(model.MailboxMessage{ServerName: "x"})
		}()
	}
	wg.Wait()

	if got := len(box.Drain()); got != n {
		t.Errorf("drained %d messages, want %d", got, n)
	}
}
