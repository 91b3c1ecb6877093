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

// Package scaleup implements the Scale-Up Loop (spec §4.4): observe
// queued jobs and standby-pool deficits, decide server creations,
// enforce caps, and surface failures to the Scale-Down Loop's mailbox.
package scaleup

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/scaleci/fleet/internal/cloudapi"
	"github.com/scaleci/fleet/internal/config"
	"github.com/scaleci/fleet/internal/fleeterr"
	"github.com/scaleci/fleet/internal/label"
	"github.com/scaleci/fleet/internal/logging"
	"github.com/scaleci/fleet/internal/mailbox"
	"github.com/scaleci/fleet/internal/metrics"
	"github.com/scaleci/fleet/internal/model"
	"github.com/scaleci/fleet/internal/provisioner"
	"github.com/scaleci/fleet/internal/recycler"
	"github.com/scaleci/fleet/internal/scmapi"
)

// Loop is the Scale-Up convergence loop.
type Loop struct {
	Cloud       cloudapi.Provider
	SCM         scmapi.Service
	Resolver    label.Resolver
	Provisioner *provisioner.Provisioner
	Recycler    *recycler.Recycler
	Mailbox     *mailbox.Mailbox
	Naming      cloudapi.LabelNaming
	Config      *config.Config
	Now         func() time.Time
	Logger      log.Logger
	Metrics     *metrics.Metrics
}

// Run iterates until ctx is canceled, sleeping Config.ScaleUpInterval
// between cycles. A cycle-level error is logged and does not stop the
// loop (spec §7 "Cycle-level" propagation).
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := l.runCycle(ctx); err != nil {
			_ = level.Error(l.Logger).Log("msg", "scale-up cycle failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.Config.ScaleUpInterval):
		}
	}
}

func (l *Loop) runCycle(ctx context.Context) error {
	scope := logging.Enter(l.Logger, "scale-up-cycle")
	var cycleErr error
	defer func() { scope.Exit(cycleErr) }()

	start := l.now()

	servers, err := l.Cloud.ListServers(ctx, l.Naming.RunnerLabel+"="+cloudapi.ActiveLabel)
	if err != nil {
		cycleErr = err
		return err
	}
	runners, err := l.SCM.ListSelfHostedRunners(ctx, l.Config.RunnerNamePrefix)
	if err != nil {
		cycleErr = err
		return err
	}
	runs, err := l.SCM.ListQueuedWorkflowRuns(ctx)
	if err != nil {
		cycleErr = err
		return err
	}

	snap := newSnapshot(servers, runners, l.Config)

	var futures []model.ProvisionTask
	futures = append(futures, l.driveQueuedWork(ctx, snap, runs)...)
	futures = append(futures, l.driveStandbyPools(ctx, snap)...)

	l.collect(ctx, futures)

	if l.Metrics != nil {
		l.Metrics.CycleDuration.WithLabelValues("scale-up").Observe(l.now().Sub(start).Seconds())
		l.Metrics.MailboxDepth.Set(float64(l.Mailbox.Len()))
	}
	return nil
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// snapshot is the per-cycle consistent view both steps 3 and 4 act on
// (spec §5 "a loop observes a single consistent snapshot").
type snapshot struct {
	cfg           *config.Config
	byName        map[string]model.Server
	recyclables   []model.Server
	runnersByName map[string]model.Runner
	runnersByID   map[int64]model.Runner
	totalCount    int
}

// newSnapshot builds the per-cycle view and cross-annotates every server
// with the runner (if any) observed bearing its name (spec §4.4 step 1):
// a server defaults to "initializing" until a runner claims it, at which
// point it becomes "busy" or "ready" depending on the runner's own
// online/busy state. This annotation feeds countStandbyPresent's
// replenish_immediately accounting.
func newSnapshot(servers []model.Server, runners []model.Runner, cfg *config.Config) *snapshot {
	s := &snapshot{
		cfg:           cfg,
		byName:        make(map[string]model.Server, len(servers)),
		runnersByName: make(map[string]model.Runner, len(runners)),
		runnersByID:   make(map[int64]model.Runner, len(runners)),
		totalCount:    len(servers),
	}
	for _, srv := range servers {
		srv.RunnerStatus = model.RunnerStatusInitializing
		s.byName[srv.Name] = srv
		if model.Role(srv.Name, cfg.RunnerNamePrefix, cfg.StandbyNamePrefix, cfg.RecycleNamePrefix) == model.RoleRecyclable {
			s.recyclables = append(s.recyclables, srv)
		}
	}
	for _, r := range runners {
		s.runnersByName[r.Name] = r
		s.runnersByID[r.ID] = r
		for name, srv := range s.byName {
			if !strings.HasPrefix(r.Name, name) {
				continue
			}
			srv.RunnerName = r.Name
			if r.Online {
				if r.Busy {
					srv.RunnerStatus = model.RunnerStatusBusy
				} else {
					srv.RunnerStatus = model.RunnerStatusReady
				}
			}
			s.byName[name] = srv
		}
	}
	return s
}

func (s *snapshot) removeRecyclable(name string) {
	for i, c := range s.recyclables {
		if c.Name == name {
			s.recyclables = append(s.recyclables[:i], s.recyclables[i+1:]...)
			return
		}
	}
}

// runCount counts servers whose names embed the given run id (spec §4.4
// step 3 per-workflow-run cap).
func (s *snapshot) runCount(runID int64) int {
	prefix := s.cfg.RunnerNamePrefix + strconv.FormatInt(runID, 10) + "-"
	n := 0
	for name := range s.byName {
		if strings.HasPrefix(name, prefix) {
			n++
		}
	}
	return n
}

func (l *Loop) driveQueuedWork(ctx context.Context, snap *snapshot, runs []model.WorkflowRun) []model.ProvisionTask {
	var futures []model.ProvisionTask
	runCounts := map[int64]int{}

	for _, run := range runs {
		if _, ok := runCounts[run.RunID]; !ok {
			runCounts[run.RunID] = snap.runCount(run.RunID)
		}
		if l.Config.MaxRunnersInWorkflowRun > 0 && runCounts[run.RunID] >= l.Config.MaxRunnersInWorkflowRun {
			continue
		}

		for _, job := range run.Jobs {
			if job.Status == model.JobCompleted {
				continue
			}
			desiredName := model.JobServerName(l.Config.RunnerNamePrefix, run.RunID, job.JobID)
			if _, exists := snap.byName[desiredName]; exists {
				continue
			}

			if job.Status == model.JobInProgress {
				labels, proceed := l.inProgressJobLabels(snap, job)
				if !proceed {
					continue
				}
				job.Labels = labels
			}

			if l.Config.MaxRunnersInWorkflowRun > 0 && runCounts[run.RunID] >= l.Config.MaxRunnersInWorkflowRun {
				continue
			}

			if !l.Resolver.Filter(job.Labels) {
				continue
			}

			shape, ok, err := l.Resolver.Resolve(job.Labels)
			if err != nil {
				_ = level.Warn(l.Logger).Log("msg", "label resolution failed, dropping job", "run_id", run.RunID, "job_id", job.JobID, "err", err)
				continue
			}
			if !ok {
				continue
			}

			if hasIdleSuperset(snap.runnersByName, shape.Labels) {
				continue
			}

			task, recycled := l.Recycler.TryRecycle(ctx, snap.recyclables, desiredName, shape, l.Config.ControllerKeyFP)
			if recycled {
				snap.removeRecyclable(task.ServerName)
				if l.Metrics != nil {
					l.Metrics.ServersRecycled.Inc()
				}
				futures = append(futures, task)
				runCounts[run.RunID]++
				snap.totalCount++
				continue
			}

			if l.Config.MaxRunners.Exceeded(snap.totalCount) {
				limit, _ := l.Config.MaxRunners.Value()
				futures = append(futures, failedTask(desiredName, shape.Labels, &fleeterr.MaxServersReachedError{ServerName: desiredName, Limit: limit}))
				continue
			}

			task = l.Provisioner.Provision(ctx, desiredName, shape)
			if l.Metrics != nil {
				l.Metrics.ServersProvisioned.Inc()
			}
			futures = append(futures, task)
			runCounts[run.RunID]++
			snap.totalCount++
		}
	}
	return futures
}

// inProgressJobLabels implements the spec §4.4 step 3 three-way branch for
// a job that is already in_progress: skip it if its runner belongs to an
// unmanaged/foreign server (so this controller never double-provisions for
// a runner it doesn't own), skip it if the runner is a standby-server
// (already serving), and otherwise recover the originally-requested label
// set from the job-server whose runner this job "stole" so the caller can
// keep processing it as if it were still unclaimed.
func (l *Loop) inProgressJobLabels(snap *snapshot, job model.Job) (model.LabelSet, bool) {
	if !strings.HasPrefix(job.RunnerName, l.Config.RunnerNamePrefix) {
		return model.LabelSet{}, false
	}
	if strings.HasPrefix(job.RunnerName, l.Config.RunnerNamePrefix+l.Config.StandbyNamePrefix) {
		return model.LabelSet{}, false
	}

	if r, ok := snap.runnersByID[job.RunnerID]; ok {
		return r.Labels, true
	}
	if r, ok := snap.runnersByName[job.RunnerName]; ok {
		return r.Labels, true
	}
	return job.Labels, true
}

func hasIdleSuperset(runners map[string]model.Runner, desired model.LabelSet) bool {
	for _, r := range runners {
		if r.Online && !r.Busy && r.Labels.IsSupersetOf(desired) {
			return true
		}
	}
	return false
}

func failedTask(name string, labels model.LabelSet, err error) model.ProvisionTask {
	done := make(chan error, 1)
	done <- err
	close(done)
	return model.ProvisionTask{ServerName: name, Labels: labels, Done: done}
}

func (l *Loop) driveStandbyPools(ctx context.Context, snap *snapshot) []model.ProvisionTask {
	var futures []model.ProvisionTask

	for _, decl := range l.Config.StandbyDeclarations {
		present := countStandbyPresent(snap, decl)
		deficit := decl.DesiredCount - present
		for i := 0; i < deficit; i++ {
			shape, ok, err := l.Resolver.Resolve(decl.Labels)
			if err != nil || !ok {
				if err != nil {
					_ = level.Warn(l.Logger).Log("msg", "standby label resolution failed", "err", err)
				}
				break
			}

			name := model.StandbyServerName(l.Config.RunnerNamePrefix, l.Config.StandbyNamePrefix, model.NewUID())

			task, recycled := l.Recycler.TryRecycle(ctx, snap.recyclables, name, shape, l.Config.ControllerKeyFP)
			if recycled {
				snap.removeRecyclable(task.ServerName)
				if l.Metrics != nil {
					l.Metrics.ServersRecycled.Inc()
				}
				futures = append(futures, task)
				snap.totalCount++
				continue
			}

			if l.Config.MaxRunners.Exceeded(snap.totalCount) {
				limit, _ := l.Config.MaxRunners.Value()
				futures = append(futures, failedTask(name, shape.Labels, &fleeterr.MaxServersReachedError{ServerName: name, Limit: limit}))
				continue
			}

			task = l.Provisioner.Provision(ctx, name, shape)
			if l.Metrics != nil {
				l.Metrics.ServersProvisioned.Inc()
			}
			futures = append(futures, task)
			snap.totalCount++
		}
	}
	return futures
}

// countStandbyPresent implements the Standby Declaration count policy
// (spec §3): replenish_immediately counts only available-now servers
// (STARTING or RUNNING, status initializing/ready); otherwise it counts
// all present servers of that shape.
func countStandbyPresent(snap *snapshot, decl model.StandbyDeclaration) int {
	n := 0
	for _, srv := range snap.byName {
		if !srv.Labels.IsSupersetOf(decl.Labels) {
			continue
		}
		if decl.ReplenishImmediately {
			if srv.State == model.ServerOff {
				continue
			}
			if srv.RunnerStatus != model.RunnerStatusInitializing && srv.RunnerStatus != model.RunnerStatusReady {
				continue
			}
		}
		n++
	}
	return n
}

// collect awaits every future and posts mailbox-eligible failures (spec
// §4.4 step 5). On cancellation Scale-Up still awaits already-submitted
// futures to completion rather than abandoning them (spec §5
// Cancellation, SPEC_FULL supplemented feature 5) — collect therefore
// never selects on ctx.Done, only on each task's own Done channel.
func (l *Loop) collect(ctx context.Context, futures []model.ProvisionTask) {
	for _, t := range futures {
		err := <-t.Done
		if err == nil {
			continue
		}
		if fleeterr.IsMailboxEligible(err) {
			l.Mailbox.Post(model.MailboxMessage{
				Timestamp:  l.now(),
				Labels:     t.Labels,
				ServerName: t.ServerName,
				Err:        err,
			})
			if l.Metrics != nil {
				l.Metrics.ScaleUpFailures.WithLabelValues(failureKind(err)).Inc()
			}
			continue
		}
		_ = level.Warn(l.Logger).Log("msg", "provisioning failed", "server", t.ServerName, "err", err)
		if l.Metrics != nil {
			l.Metrics.ScaleUpFailures.WithLabelValues(failureKind(err)).Inc()
		}
	}
}

func failureKind(err error) string {
	switch err.(type) {
	case *fleeterr.MaxServersReachedError:
		return "max_servers_reached"
	case *fleeterr.ResourceLimitExceededError:
		return "resource_limit_exceeded"
	case *fleeterr.BootstrapError:
		return "bootstrap"
	case *fleeterr.TransientCreateError:
		return "transient_create"
	default:
		return "other"
	}
}
