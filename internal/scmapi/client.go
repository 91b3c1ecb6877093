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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/scaleci/fleet/internal/httpx"
	"github.com/scaleci/fleet/internal/model"
)

// HTTPService wraps the source-control REST API the way the teacher's
// internal/promapi wraps its target API.
type HTTPService struct {
	BaseURL string
	Token   string
	Repo    string
	HTTP    *httpx.Client
}

func (s *HTTPService) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("building request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+s.Token)
	req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(nil)), nil }

	resp, err := s.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("source-control API returned status %d for %s %s", resp.StatusCode, method, path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type jobDTO struct {
	RunID      int64    `json:"run_id"`
	JobID      int64    `json:"job_id"`
	Labels     []string `json:"labels"`
	RunnerID   int64    `json:"runner_id"`
	RunnerName string   `json:"runner_name"`
	Status     string   `json:"status"`
}

func (s *HTTPService) ListQueuedWorkflowRuns(ctx context.Context) ([]model.WorkflowRun, error) {
	var runsOut []struct {
		RunID int64    `json:"id"`
		Jobs  []jobDTO `json:"jobs"`
	}
	path := fmt.Sprintf("/repos/%s/actions/runs?status=queued", s.Repo)
	if err := s.do(ctx, http.MethodGet, path, &runsOut); err != nil {
		return nil, err
	}

	runs := make([]model.WorkflowRun, 0, len(runsOut))
	for _, r := range runsOut {
		jobs := make([]model.Job, 0, len(r.Jobs))
		for _, j := range r.Jobs {
			jobs = append(jobs, model.Job{
				RunID:      j.RunID,
				JobID:      j.JobID,
				Labels:     model.NewLabelSet(j.Labels...),
				RunnerID:   j.RunnerID,
				RunnerName: j.RunnerName,
				Status:     model.JobStatus(j.Status),
			})
		}
		runs = append(runs, model.WorkflowRun{RunID: r.RunID, Jobs: jobs})
	}
	return runs, nil
}

func (s *HTTPService) ListSelfHostedRunners(ctx context.Context, namePrefix string) ([]model.Runner, error) {
	var out []struct {
		ID     int64    `json:"id"`
		Name   string   `json:"name"`
		Status string   `json:"status"`
		Busy   bool     `json:"busy"`
		Labels []string `json:"labels"`
	}
	path := fmt.Sprintf("/repos/%s/actions/runners", s.Repo)
	if err := s.do(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}

	runners := make([]model.Runner, 0, len(out))
	for _, r := range out {
		if !strings.HasPrefix(r.Name, namePrefix) {
			continue
		}
		runners = append(runners, model.Runner{
			ID:     r.ID,
			Name:   r.Name,
			Online: r.Status == "online",
			Busy:   r.Busy,
			Labels: model.NewLabelSet(r.Labels...),
		})
	}
	return runners, nil
}

func (s *HTTPService) CreateRegistrationToken(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	path := fmt.Sprintf("/repos/%s/actions/runners/registration-token", s.Repo)
	if err := s.do(ctx, http.MethodPost, path, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (s *HTTPService) RemoveRunner(ctx context.Context, runnerID int64) error {
	path := fmt.Sprintf("/repos/%s/actions/runners/%d", s.Repo, runnerID)
	return s.do(ctx, http.MethodDelete, path, nil)
}
