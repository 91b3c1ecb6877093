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

// Package model holds the shared data model the scale-up and scale-down
// loops both read and write: runner labels, desired shapes, servers,
// runners, standby declarations, and the aging/failure bookkeeping types.
package model

import (
	"sort"
	"strings"
)

// LabelSet is a deduplicated, case-folded set of runner labels.
type LabelSet map[string]struct{}

// NewLabelSet case-folds and deduplicates the given labels into a set.
func NewLabelSet(labels ...string) LabelSet {
	s := make(LabelSet, len(labels))
	for _, l := range labels {
		s[fold(l)] = struct{}{}
	}
	return s
}

func fold(l string) string {
	return strings.ToLower(strings.TrimSpace(l))
}

// Add inserts a label, case-folding it.
func (s LabelSet) Add(label string) {
	s[fold(label)] = struct{}{}
}

// Contains reports whether label (case-folded) is present.
func (s LabelSet) Contains(label string) bool {
	_, ok := s[fold(label)]
	return ok
}

// IsSupersetOf reports whether s contains every label in other.
func (s LabelSet) IsSupersetOf(other LabelSet) bool {
	for l := range other {
		if _, ok := s[l]; !ok {
			return false
		}
	}
	return true
}

// Equal reports whether s and other contain exactly the same labels.
func (s LabelSet) Equal(other LabelSet) bool {
	if len(s) != len(other) {
		return false
	}
	return s.IsSupersetOf(other)
}

// Clone returns an independent copy of s.
func (s LabelSet) Clone() LabelSet {
	out := make(LabelSet, len(s))
	for l := range s {
		out[l] = struct{}{}
	}
	return out
}

// Union returns a new set containing the labels of s and other.
func (s LabelSet) Union(other LabelSet) LabelSet {
	out := s.Clone()
	for l := range other {
		out[l] = struct{}{}
	}
	return out
}

// Sorted returns the labels in deterministic (lexical) order, for
// serialization and for byte-for-byte-stable test comparisons.
func (s LabelSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Join renders the set as a comma-joined string, the form the bootstrap
// protocol's GITHUB_RUNNER_LABELS environment variable expects (spec §6.3).
func (s LabelSet) Join() string {
	return strings.Join(s.Sorted(), ",")
}
