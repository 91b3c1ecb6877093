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

import "testing"

func TestRoleClassifiesByNamePrefix(t *testing.T) {
	const runnerPrefix, standbyPrefix, recyclePrefix = "ci-", "standby-", "recycle-"

	cases := []struct {
		name string
		want ServerRole
	}{
		{"ci-standby-abc123", RoleStandby},
		{"ci-recycle-abc123", RoleRecyclable},
		{"ci-42-7", RoleJob},
		{"ci-", RoleJob},
	}
	for _, c := range cases {
		if got := Role(c.name, runnerPrefix, standbyPrefix, recyclePrefix); got != c.want {
			t.Errorf("Role(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestServerNameBuildersRoundTripThroughRole(t *testing.T) {
	const runnerPrefix, standbyPrefix, recyclePrefix = "ci-", "standby-", "recycle-"

	standby := StandbyServerName(runnerPrefix, standbyPrefix, "uid1")
	if got, want := Role(standby, runnerPrefix, standbyPrefix, recyclePrefix), RoleStandby; got != want {
		t.Errorf("Role(%q) = %q, want %q", standby, got, want)
	}

	recyclable := RecyclableServerName(runnerPrefix, recyclePrefix, "uid2")
	if got, want := Role(recyclable, runnerPrefix, standbyPrefix, recyclePrefix), RoleRecyclable; got != want {
		t.Errorf("Role(%q) = %q, want %q", recyclable, got, want)
	}

	job := JobServerName(runnerPrefix, 100, 7)
	if got, want := job, "ci-100-7"; got != want {
		t.Errorf("JobServerName() = %q, want %q", got, want)
	}
	if got, want := Role(job, runnerPrefix, standbyPrefix, recyclePrefix), RoleJob; got != want {
		t.Errorf("Role(%q) = %q, want %q", job, got, want)
	}
}

func TestServerIsRunnerBearing(t *testing.T) {
	s := Server{Name: "ci-100-7", RunnerName: "ci-100-7-gh-runner-xyz"}
	if !s.IsRunnerBearing() {
		t.Error("expected server with matching-prefix runner name to be runner-bearing")
	}
	s.RunnerName = ""
	if s.IsRunnerBearing() {
		t.Error("expected server with no runner name to not be runner-bearing")
	}
	s.RunnerName = "unrelated-runner"
	if s.IsRunnerBearing() {
		t.Error("expected server with non-matching runner name to not be runner-bearing")
	}
}

func TestRunnerIsUnusedCandidate(t *testing.T) {
	cases := []struct {
		name   string
		runner Runner
		want   bool
	}{
		{"online and idle", Runner{Online: true, Busy: false}, true},
		{"online and busy", Runner{Online: true, Busy: true}, false},
		{"offline and idle", Runner{Online: false, Busy: false}, true},
		{"offline marked busy is still an unused candidate", Runner{Online: false, Busy: true}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.runner.IsUnusedCandidate(); got != c.want {
				t.Errorf("IsUnusedCandidate() = %v, want %v", got, c.want)
			}
		})
	}
}
