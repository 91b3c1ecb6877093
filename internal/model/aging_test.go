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

import (
	"testing"
	"time"
)

func TestAgingTableTrackPreservesFirstSeen(t *testing.T) {
	table := AgingTable[string]{}
	t0 := time.Unix(0, 0)
	t1 := t0.Add(time.Minute)

	table.Track("srv-1", "v0", t0)
	table.Track("srv-1", "v1", t1)

	entry := table["srv-1"]
	if !entry.FirstSeen.Equal(t0) {
		t.Errorf("FirstSeen = %v, want %v", entry.FirstSeen, t0)
	}
	if !entry.LastSeen.Equal(t1) {
		t.Errorf("LastSeen = %v, want %v", entry.LastSeen, t1)
	}
	if entry.Subject != "v1" {
		t.Errorf("Subject = %q, want %q (Track should overwrite the subject)", entry.Subject, "v1")
	}
}

func TestAgingTableEvictStaleDropsUntrackedEntries(t *testing.T) {
	table := AgingTable[string]{}
	t0 := time.Unix(0, 0)
	t1 := t0.Add(time.Minute)

	table.Track("stays", "a", t0)
	table.Track("stays", "a", t1) // re-tracked this cycle
	table.Track("goes", "b", t0)  // not re-tracked before EvictStale(t1)

	evicted := table.EvictStale(t1)

	if len(evicted) != 1 || evicted[0] != "goes" {
		t.Errorf("evicted = %v, want [goes]", evicted)
	}
	if _, ok := table["goes"]; ok {
		t.Error("expected \"goes\" to be removed from the table")
	}
	if _, ok := table["stays"]; !ok {
		t.Error("expected \"stays\" to remain in the table")
	}
}

func TestAgingEntryAge(t *testing.T) {
	t0 := time.Unix(0, 0)
	entry := AgingEntry[int]{FirstSeen: t0, LastSeen: t0, Subject: 1}
	now := t0.Add(90 * time.Second)
	if got, want := entry.Age(now), 90*time.Second; got != want {
		t.Errorf("Age() = %v, want %v", got, want)
	}
}

func TestAgingTableEmptyCycleEvictsEverything(t *testing.T) {
	table := AgingTable[string]{}
	t0 := time.Unix(0, 0)
	table.Track("a", "x", t0)
	table.Track("b", "y", t0)

	evicted := table.EvictStale(t0.Add(time.Second))
	if len(evicted) != 2 {
		t.Errorf("expected both entries evicted when nothing was tracked this cycle, got %v", evicted)
	}
	if len(table) != 0 {
		t.Errorf("expected table to be empty, got %d entries", len(table))
	}
}
