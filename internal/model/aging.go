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

// AgingEntry tracks how long a subject (a powered-off server, a zombie
// server, or an unused runner) has been observed, across cycles, before
// the Scale-Down Loop acts on it (spec §3, §4.5 step 4).
type AgingEntry[T any] struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Subject   T
}

// Age reports how long the entry has persisted as of now.
func (e AgingEntry[T]) Age(now time.Time) time.Duration {
	return now.Sub(e.FirstSeen)
}

// AgingTable is a map of subject name to its aging entry. Track records
// the subject as observed this cycle, preserving FirstSeen if already
// present. Evict drops anything not refreshed this cycle, implementing
// "no server exists in the Scale-Down accounting maps unless it was
// observed in the current cycle" (spec §3 invariant).
type AgingTable[T any] map[string]*AgingEntry[T]

// Track records name as observed at now carrying subject, preserving the
// original FirstSeen if the entry already existed.
func (t AgingTable[T]) Track(name string, subject T, now time.Time) *AgingEntry[T] {
	if e, ok := t[name]; ok {
		e.LastSeen = now
		e.Subject = subject
		return e
	}
	e := &AgingEntry[T]{FirstSeen: now, LastSeen: now, Subject: subject}
	t[name] = e
	return e
}

// EvictStale removes every entry whose LastSeen is before now, i.e. that
// was not Tracked during the current cycle, and returns the removed names.
func (t AgingTable[T]) EvictStale(now time.Time) []string {
	var evicted []string
	for name, e := range t {
		if e.LastSeen.Before(now) {
			evicted = append(evicted, name)
			delete(t, name)
		}
	}
	return evicted
}
