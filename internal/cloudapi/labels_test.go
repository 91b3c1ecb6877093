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

package cloudapi

import (
	"strings"
	"testing"

	"github.com/scaleci/fleet/internal/model"
)

func testNaming() LabelNaming {
	return LabelNaming{RunnerLabel: "fleet-active", RunnerLabelPrefix: "fleet-label", SSHKeyLabel: "fleet-ssh-key"}
}

func TestBuildLabelsStampsActiveMarker(t *testing.T) {
	n := testNaming()
	out := n.BuildLabels(model.NewLabelSet("x64"), "fp-123")
	if out[n.RunnerLabel] != ActiveLabel {
		t.Errorf("active marker = %q, want %q", out[n.RunnerLabel], ActiveLabel)
	}
}

func TestLabelsRoundTripCapabilitySet(t *testing.T) {
	n := testNaming()
	want := model.NewLabelSet("self-hosted", "x64", "linux")
	cloudLabels := n.BuildLabels(want, "fp-abc")

	got := n.ParseLabels(cloudLabels)
	if !got.Equal(want) {
		t.Errorf("ParseLabels() = %v, want %v", got.Sorted(), want.Sorted())
	}
}

func TestSSHFingerprintRoundTrips(t *testing.T) {
	n := testNaming()
	cloudLabels := n.BuildLabels(model.NewLabelSet("x64"), "aa:bb:cc")
	if got := n.SSHFingerprintOf(cloudLabels); got != "aa:bb:cc" {
		t.Errorf("SSHFingerprintOf() = %q, want %q", got, "aa:bb:cc")
	}
}

func TestParseLabelsIgnoresUnrelatedKeys(t *testing.T) {
	n := testNaming()
	cloudLabels := map[string]string{
		n.RunnerLabel:         ActiveLabel,
		n.SSHKeyLabel:         "fp",
		"unrelated":           "should-not-appear",
		n.RunnerLabelPrefix:   "no-trailing-index-should-be-ignored",
		n.RunnerLabelPrefix + "-0": "x64",
	}
	got := n.ParseLabels(cloudLabels)
	if !got.Contains("x64") {
		t.Errorf("expected x64 in parsed set, got %v", got.Sorted())
	}
	if got.Contains("should-not-appear") || got.Contains("no-trailing-index-should-be-ignored") {
		t.Errorf("ParseLabels leaked non-indexed label values: %v", got.Sorted())
	}
}

func TestValidateRejectsEmptyKeyAndOversizedValue(t *testing.T) {
	if err := Validate(map[string]string{"": "v"}); err == nil {
		t.Error("expected error for empty key")
	}
	if err := Validate(map[string]string{"k": strings.Repeat("x", 64)}); err == nil {
		t.Error("expected error for value over 63 bytes")
	}
	if err := Validate(map[string]string{"k": strings.Repeat("x", 63)}); err != nil {
		t.Errorf("unexpected error for 63-byte value: %v", err)
	}
}
