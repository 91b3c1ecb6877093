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

// Runner is a registered worker in the source-control service.
type Runner struct {
	ID     int64
	Name   string
	Online bool
	Busy   bool
	Labels LabelSet
}

// IsUnusedCandidate reports whether this runner is a potential unused
// candidate per spec §4.5 step 2: online-and-idle, or offline.
func (r Runner) IsUnusedCandidate() bool {
	return (r.Online && !r.Busy) || !r.Online
}

// Job is a single unit of work within a queued workflow run.
type Job struct {
	RunID      int64
	JobID      int64
	Labels     LabelSet
	RunnerID   int64
	RunnerName string
	Status     JobStatus
}

// JobStatus is the source-control service's status for a job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
)

// WorkflowRun groups jobs sharing a run id.
type WorkflowRun struct {
	RunID int64
	Jobs  []Job
}
