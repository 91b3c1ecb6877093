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

	"github.com/google/go-cmp/cmp"
)

func TestLabelSetFoldsCase(t *testing.T) {
	s := NewLabelSet("Self-Hosted", " Linux ", "X64")
	for _, want := range []string{"self-hosted", "linux", "x64"} {
		if !s.Contains(want) {
			t.Errorf("expected folded label %q in set, got %v", want, s.Sorted())
		}
	}
}

func TestLabelSetIsSupersetOf(t *testing.T) {
	cases := []struct {
		name  string
		have  LabelSet
		want  LabelSet
		super bool
	}{
		{"exact match", NewLabelSet("a", "b"), NewLabelSet("a", "b"), true},
		{"proper superset", NewLabelSet("a", "b", "c"), NewLabelSet("a", "b"), true},
		{"missing label", NewLabelSet("a", "b"), NewLabelSet("a", "c"), false},
		{"empty want is always satisfied", NewLabelSet("a"), NewLabelSet(), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.have.IsSupersetOf(c.want); got != c.super {
				t.Errorf("IsSupersetOf() = %v, want %v", got, c.super)
			}
		})
	}
}

func TestLabelSetEqual(t *testing.T) {
	a := NewLabelSet("a", "b")
	b := NewLabelSet("B", "A")
	if !a.Equal(b) {
		t.Errorf("expected %v to equal %v", a.Sorted(), b.Sorted())
	}
	c := NewLabelSet("a", "b", "c")
	if a.Equal(c) {
		t.Errorf("expected %v to not equal %v", a.Sorted(), c.Sorted())
	}
}

func TestLabelSetCloneIsIndependent(t *testing.T) {
	orig := NewLabelSet("a")
	clone := orig.Clone()
	clone.Add("b")
	if orig.Contains("b") {
		t.Errorf("mutating clone leaked into original: %v", orig.Sorted())
	}
}

func TestLabelSetUnion(t *testing.T) {
	a := NewLabelSet("a", "b")
	b := NewLabelSet("b", "c")
	got := a.Union(b).Sorted()
	want := []string{"a", "b", "c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Union() mismatch (-want +got):\n%s", diff)
	}
}

func TestLabelSetJoinIsSortedAndComma(t *testing.T) {
	s := NewLabelSet("x64", "self-hosted", "linux")
	if got, want := s.Join(), "linux,self-hosted,x64"; got != want {
		t.Errorf("Join() = %q, want %q", got, want)
	}
}
