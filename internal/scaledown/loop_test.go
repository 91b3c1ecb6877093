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

package scaledown

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/log"

	"github.com/scaleci/fleet/internal/cloudapi"
	"github.com/scaleci/fleet/internal/config"
	"github.com/scaleci/fleet/internal/mailbox"
	"github.com/scaleci/fleet/internal/model"
	"github.com/scaleci/fleet/internal/scmapi"
)

const controllerFP = "controller-fp"

func newTestLoop(t *testing.T, cloud *cloudapi.Fake, scm scmapi.Service, now *time.Time) *Loop {
	t.Helper()
	l := New()
	l.Cloud = cloud
	l.SCM = scm
	l.Naming = cloud.Naming
	l.Mailbox = mailbox.New()
	l.Logger = log.NewNopLogger()
	l.Now = func() time.Time { return *now }
	l.Config = &config.Config{
		RunnerNamePrefix:          "ci-",
		StandbyNamePrefix:         "standby-",
		RecycleNamePrefix:         "recycle-",
		ControllerKeyFP:           controllerFP,
		MaxPoweredOffTime:         5 * time.Minute,
		MaxRunnerRegistrationTime: 5 * time.Minute,
		MaxUnusedRunnerTime:       5 * time.Minute,
		EndOfLifeMinutes:          55,
		RecycleEnabled:            true,
		ScaleUpInterval:           time.Minute,
	}
	return l
}

func TestAccountStandbyConsumesBudgetFirstMatchWins(t *testing.T) {
	now := time.Unix(0, 0)
	l := newTestLoop(t, cloudapi.NewFake(), scmapi.NewFake(), &now)
	l.Config.StandbyDeclarations = []model.StandbyDeclaration{
		{Labels: model.NewLabelSet("x64"), DesiredCount: 1},
		{Labels: model.NewLabelSet(), DesiredCount: 10}, // catch-all, matches everything
	}

	runners := []model.Runner{
		{ID: 1, Name: "ci-standby-a", Online: true, Busy: false, Labels: model.NewLabelSet("x64")},
		{ID: 2, Name: "ci-standby-b", Online: true, Busy: false, Labels: model.NewLabelSet("x64")},
		{ID: 3, Name: "ci-standby-c", Online: true, Busy: true, Labels: model.NewLabelSet("x64")}, // busy, not a candidate
	}

	unused := l.accountStandby(runners)

	// The x64 declaration's budget of 1 absorbs exactly one idle x64
	// runner; the second idle x64 runner falls through to the catch-all
	// declaration (budget 10) and is also absorbed, so neither ends up
	// truly unused. The busy runner was never a candidate.
	if len(unused) != 0 {
		t.Errorf("accountStandby() = %v, want empty (both idle runners absorbed by declarations)", unused)
	}
}

func TestAccountStandbyOverflowIsTrulyUnused(t *testing.T) {
	now := time.Unix(0, 0)
	l := newTestLoop(t, cloudapi.NewFake(), scmapi.NewFake(), &now)
	l.Config.StandbyDeclarations = []model.StandbyDeclaration{
		{Labels: model.NewLabelSet("x64"), DesiredCount: 1},
	}

	runners := []model.Runner{
		{ID: 1, Name: "ci-standby-a", Online: true, Busy: false, Labels: model.NewLabelSet("x64")},
		{ID: 2, Name: "ci-standby-b", Online: true, Busy: false, Labels: model.NewLabelSet("x64")},
	}

	unused := l.accountStandby(runners)
	if len(unused) != 1 {
		t.Fatalf("accountStandby() returned %d runners, want 1", len(unused))
	}
	if unused[0].ID != 2 {
		t.Errorf("unused runner ID = %d, want 2 (budget exhausted by the first)", unused[0].ID)
	}
}

func TestAgePoweredOffDeletesAfterThresholdNotBefore(t *testing.T) {
	cloud := cloudapi.NewFake()
	now := time.Unix(0, 0)
	l := newTestLoop(t, cloud, scmapi.NewFake(), &now)

	srv := model.Server{Name: "ci-1-1", State: model.ServerOff}
	cloud.Seed(srv)

	// First cycle: observed, but not yet aged past the threshold.
	l.agePoweredOff(context.Background(), []model.Server{srv}, now)
	if _, ok := l.poweredOff["ci-1-1"]; !ok {
		t.Fatal("expected server to remain tracked before the threshold elapses")
	}

	// Second cycle, well past MaxPoweredOffTime, still observed.
	now = now.Add(10 * time.Minute)
	l.agePoweredOff(context.Background(), []model.Server{srv}, now)

	if _, ok := l.poweredOff["ci-1-1"]; ok {
		t.Error("expected server to be removed from aging table once acted on")
	}
	remaining, err := cloud.ListServers(context.Background(), "")
	if err != nil {
		t.Fatalf("ListServers() err = %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected the server to be deleted (no SSH fingerprint => delete, not recycle), got %v", remaining)
	}
}

func TestAgePoweredOffEvictsWhenNotReobserved(t *testing.T) {
	cloud := cloudapi.NewFake()
	now := time.Unix(0, 0)
	l := newTestLoop(t, cloud, scmapi.NewFake(), &now)

	srv := model.Server{Name: "ci-1-1", State: model.ServerOff}
	l.agePoweredOff(context.Background(), []model.Server{srv}, now)

	// Next cycle the server is gone from the observed set (e.g. it came
	// back on) before it ever aged out.
	now = now.Add(time.Hour)
	l.agePoweredOff(context.Background(), nil, now)

	if _, ok := l.poweredOff["ci-1-1"]; ok {
		t.Error("expected stale entry to be evicted once it was not re-observed")
	}
}

func TestRecycleOrDeleteRecyclesWhenKeyMatchesAndNotEndOfLife(t *testing.T) {
	cloud := cloudapi.NewFake()
	now := time.Unix(0, 0)
	l := newTestLoop(t, cloud, scmapi.NewFake(), &now)

	srv := model.Server{
		Name:           "ci-1-1",
		Labels:         model.NewLabelSet("x64"),
		SSHFingerprint: controllerFP,
		CreatedAt:      now, // 0 minutes elapsed in the billing hour
		State:          model.ServerRunning,
	}
	cloud.Seed(srv)

	l.recycleOrDelete(context.Background(), srv, "zombie")

	servers, _ := cloud.ListServers(context.Background(), "")
	if len(servers) != 1 {
		t.Fatalf("expected exactly one server to remain (renamed, not deleted), got %d", len(servers))
	}
	got := servers[0]
	if got.Name == srv.Name {
		t.Errorf("expected server to be renamed off %q, stayed as-is", srv.Name)
	}
	if model.Role(got.Name, "ci-", "standby-", "recycle-") != model.RoleRecyclable {
		t.Errorf("renamed server %q is not classified as recyclable", got.Name)
	}
	if got.State != model.ServerOff {
		t.Errorf("State = %q, want %q (recycling powers the server off)", got.State, model.ServerOff)
	}
}

func TestRecycleOrDeleteDeletesOnFingerprintMismatch(t *testing.T) {
	cloud := cloudapi.NewFake()
	now := time.Unix(0, 0)
	l := newTestLoop(t, cloud, scmapi.NewFake(), &now)

	srv := model.Server{Name: "ci-1-1", SSHFingerprint: "some-other-key", CreatedAt: now}
	cloud.Seed(srv)

	l.recycleOrDelete(context.Background(), srv, "zombie")

	servers, _ := cloud.ListServers(context.Background(), "")
	if len(servers) != 0 {
		t.Errorf("expected server with mismatched fingerprint to be deleted, got %v", servers)
	}
}

func TestRecycleOrDeleteDeletesNearEndOfLife(t *testing.T) {
	cloud := cloudapi.NewFake()
	now := time.Unix(0, 0)
	l := newTestLoop(t, cloud, scmapi.NewFake(), &now)
	l.Config.EndOfLifeMinutes = 55

	srv := model.Server{
		Name:           "ci-1-1",
		SSHFingerprint: controllerFP,
		CreatedAt:      now.Add(-55 * time.Minute), // exactly at the boundary
	}
	cloud.Seed(srv)

	l.recycleOrDelete(context.Background(), srv, "zombie")

	servers, _ := cloud.ListServers(context.Background(), "")
	if len(servers) != 0 {
		t.Errorf("expected server at the end-of-life boundary to be deleted, got %v", servers)
	}
}

func TestDrainRecyclablesKeepsLiveOnesAndDeletesExpired(t *testing.T) {
	cloud := cloudapi.NewFake()
	now := time.Unix(0, 0)
	l := newTestLoop(t, cloud, scmapi.NewFake(), &now)

	live := model.Server{Name: "ci-recycle-1", SSHFingerprint: controllerFP, CreatedAt: now}
	expired := model.Server{Name: "ci-recycle-2", SSHFingerprint: controllerFP, CreatedAt: now.Add(-55 * time.Minute)}
	cloud.Seed(live)
	cloud.Seed(expired)

	remaining, errs := l.drainRecyclables(context.Background(), []model.Server{live, expired})
	if len(errs) != 0 {
		t.Fatalf("drainRecyclables() errs = %v, want none", errs)
	}
	if len(remaining) != 1 || remaining[0].Name != live.Name {
		t.Errorf("remaining = %v, want only %q", remaining, live.Name)
	}

	servers, _ := cloud.ListServers(context.Background(), "")
	if len(servers) != 1 || servers[0].Name != live.Name {
		t.Errorf("expected only the live recyclable to survive deletion, got %v", servers)
	}
}

func TestProcessMailboxIgnoresFailureOnceCapacityExists(t *testing.T) {
	cloud := cloudapi.NewFake()
	now := time.Unix(0, 0)
	l := newTestLoop(t, cloud, scmapi.NewFake(), &now)

	l.Mailbox.Post(model.MailboxMessage{Timestamp: now, ServerName: "ci-1-1", Labels: model.NewLabelSet("x64")})

	// A server already satisfying the failed job's labels exists, so the
	// failure resolves itself without touching the recyclable pool.
	servers := []model.Server{{Name: "ci-2-2", Labels: model.NewLabelSet("x64", "linux")}}
	l.processMailbox(context.Background(), servers, nil)

	if len(l.failures) != 0 {
		t.Errorf("expected failure record to be forgotten once matching capacity exists, got %v", l.failures)
	}
}

func TestProcessMailboxFreesRecyclableAfterRepeatedFailures(t *testing.T) {
	cloud := cloudapi.NewFake()
	now := time.Unix(0, 0)
	l := newTestLoop(t, cloud, scmapi.NewFake(), &now)

	recyclable := model.Server{Name: "ci-recycle-1", SSHFingerprint: controllerFP}
	cloud.Seed(recyclable)

	labels := model.NewLabelSet("x64")
	for i := 0; i < 3; i++ {
		l.Mailbox.Post(model.MailboxMessage{Timestamp: now, ServerName: "ci-1-1", Labels: labels})
	}
	now = now.Add(3 * time.Minute) // past the 2*ScaleUpInterval threshold

	l.processMailbox(context.Background(), nil, []model.Server{recyclable})

	servers, _ := cloud.ListServers(context.Background(), "")
	if len(servers) != 0 {
		t.Errorf("expected the recyclable to be deleted to relieve mailbox pressure, got %v", servers)
	}
	if len(l.failures) != 0 {
		t.Errorf("expected the failure record to be forgotten after acting on it, got %v", l.failures)
	}
}

func TestProcessMailboxLeavesCountTwoUnhandled(t *testing.T) {
	cloud := cloudapi.NewFake()
	now := time.Unix(0, 0)
	l := newTestLoop(t, cloud, scmapi.NewFake(), &now)

	recyclable := model.Server{Name: "ci-recycle-1", SSHFingerprint: controllerFP}
	cloud.Seed(recyclable)

	labels := model.NewLabelSet("x64")
	l.Mailbox.Post(model.MailboxMessage{Timestamp: now, ServerName: "ci-1-1", Labels: labels})
	l.Mailbox.Post(model.MailboxMessage{Timestamp: now, ServerName: "ci-1-1", Labels: labels})
	now = now.Add(3 * time.Minute)

	l.processMailbox(context.Background(), nil, []model.Server{recyclable})

	if _, ok := l.failures["ci-1-1"]; !ok {
		t.Error("expected the count==2 record to remain pending, not resolved either way")
	}
	servers, _ := cloud.ListServers(context.Background(), "")
	if len(servers) != 1 {
		t.Errorf("expected the recyclable to survive untouched at count==2, got %v", servers)
	}
}
