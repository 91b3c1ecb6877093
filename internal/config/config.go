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

// Package config holds the CORE's configuration as a plain struct
// (spec §9 design note: "Dataclasses used as config roots with runtime
// mutation" — here filled in only while the process is being wired up,
// before the loops start, and not changed afterwards). Loading, validating, and merging this
// struct from a file or flags is an external collaborator (spec §1
// Non-goals) and lives outside this package.
package config

import (
	"time"

	"github.com/scaleci/fleet/internal/label"
	"github.com/scaleci/fleet/internal/model"
)

// MaxRunners is the optional global server cap. The spec's open question
// ("max_runners = None means no cap in some paths, numeric elsewhere")
// is resolved by making the absence of a cap explicit at the type level:
// only Limit(n) sets a cap; the zero value and Unlimited(), which returns
// it, both mean "no cap".
type MaxRunners struct {
	value   int
	limited bool
}

// Limit returns a MaxRunners enforcing the given non-negative cap.
func Limit(n int) MaxRunners { return MaxRunners{value: n, limited: true} }

// Unlimited returns a MaxRunners enforcing no cap.
func Unlimited() MaxRunners { return MaxRunners{} }

// Exceeded reports whether count has reached or passed the cap.
func (m MaxRunners) Exceeded(count int) bool {
	return m.limited && count >= m.value
}

// Value returns the numeric limit and whether one is set.
func (m MaxRunners) Value() (int, bool) { return m.value, m.limited }

// Config is the complete, immutable configuration the CORE's components
// are constructed from.
type Config struct {
	// Identity and naming (spec §6.4).
	Repository         string
	RunnerNamePrefix   string
	StandbyNamePrefix  string
	RecycleNamePrefix  string
	RunnerLabel        string
	RunnerLabelPrefix  string
	SSHKeyLabel        string
	SSHKeyName         string
	ControllerKeyFP    string

	// Label Resolver inputs (spec §4.1).
	RequiredLabels model.LabelSet
	LabelPrefix    string
	MetaLabels     map[string]model.LabelSet
	Defaults       label.Defaults
	ScriptsDir     string
	ARMMarker      string

	// Standby pools (spec §3).
	StandbyDeclarations []model.StandbyDeclaration

	// Caps (spec §4.4).
	MaxRunners              MaxRunners
	MaxRunnersInWorkflowRun int

	// Scale-Down thresholds (spec §4.5 step 4).
	MaxPoweredOffTime         time.Duration
	MaxRunnerRegistrationTime time.Duration
	MaxUnusedRunnerTime       time.Duration
	EndOfLifeMinutes          int
	RecycleEnabled            bool

	// Concurrency (spec §5).
	ScaleUpInterval    time.Duration
	ScaleDownInterval  time.Duration
	Workers            int
	MaxServerReadyTime time.Duration

	// HTTP retry policy (spec §5).
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Cloud provider / source-control endpoints (spec §6).
	CloudBaseURL string
	CloudToken   string
	SCMBaseURL   string
	SCMToken     string
}
