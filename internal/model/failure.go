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

package model

import "time"

// MailboxMessage is the one-way record Scale-Up posts to Scale-Down for
// failures that freeing capacity might resolve (spec §3).
type MailboxMessage struct {
	Timestamp  time.Time
	Labels     LabelSet
	ServerName string
	Err        error
}

// ScaleUpFailureRecord aggregates MailboxMessages by server name (spec §3,
// §4.5 step 7).
type ScaleUpFailureRecord struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Count      int
	ServerName string
	Labels     LabelSet
	Err        error
}

// Absorb folds a newly-drained message into the record, bumping Count and
// LastSeen. Mailbox monotonicity (spec §8): LastSeen and Count are
// non-decreasing until the record is forgotten.
func (r *ScaleUpFailureRecord) Absorb(msg MailboxMessage) {
	if r.FirstSeen.IsZero() {
		r.FirstSeen = msg.Timestamp
	}
	r.LastSeen = msg.Timestamp
	r.Count++
	r.ServerName = msg.ServerName
	r.Labels = msg.Labels
	r.Err = msg.Err
}
