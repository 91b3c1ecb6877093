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

package scmapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/scaleci/fleet/internal/model"
)

// Fake is an in-memory Service for tests, mirroring cloudapi.Fake.
type Fake struct {
	mu          sync.Mutex
	runs        []model.WorkflowRun
	runners     map[int64]model.Runner
	nextToken   int
	removed     []int64
	TokenPrefix string
}

func NewFake() *Fake {
	return &Fake{
		runners:     map[int64]model.Runner{},
		TokenPrefix: "AABBCC",
	}
}

func (f *Fake) SeedRun(run model.WorkflowRun) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
}

func (f *Fake) SeedRunner(r model.Runner) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runners[r.ID] = r
}

// Removed returns the IDs passed to RemoveRunner, in call order.
func (f *Fake) Removed() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.removed))
	copy(out, f.removed)
	return out
}

func (f *Fake) ListQueuedWorkflowRuns(context.Context) ([]model.WorkflowRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.WorkflowRun, len(f.runs))
	copy(out, f.runs)
	return out, nil
}

func (f *Fake) ListSelfHostedRunners(_ context.Context, namePrefix string) ([]model.Runner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Runner, 0, len(f.runners))
	for _, r := range f.runners {
		if namePrefix != "" && len(r.Name) < len(namePrefix) {
			continue
		}
		if namePrefix != "" && r.Name[:len(namePrefix)] != namePrefix {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *Fake) CreateRegistrationToken(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextToken++
	return fmt.Sprintf("%s-%d", f.TokenPrefix, f.nextToken), nil
}

func (f *Fake) RemoveRunner(_ context.Context, runnerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.runners, runnerID)
	f.removed = append(f.removed, runnerID)
	return nil
}
