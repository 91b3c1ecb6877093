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

// Package scmapi is the CORE's view of the source-control service (spec
// §6.2): queued workflow runs/jobs, self-hosted runners, registration
// tokens, and runner removal.
package scmapi

import (
	"context"

	"github.com/scaleci/fleet/internal/model"
)

// Service is everything the CORE needs from the source-control service.
type Service interface {
	ListQueuedWorkflowRuns(ctx context.Context) ([]model.WorkflowRun, error)
	ListSelfHostedRunners(ctx context.Context, namePrefix string) ([]model.Runner, error)
	CreateRegistrationToken(ctx context.Context) (string, error)
	RemoveRunner(ctx context.Context, runnerID int64) error
}
