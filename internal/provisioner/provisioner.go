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

// Package provisioner implements the Provisioner (spec §4.2): create a
// cloud server for a desired shape, then asynchronously finish turning it
// into a working runner via the bootstrap protocol (spec §6.3).
package provisioner

import (
	"context"
	"errors"
	"time"

	"github.com/scaleci/fleet/internal/cloudapi"
	"github.com/scaleci/fleet/internal/fleeterr"
	"github.com/scaleci/fleet/internal/model"
	"github.com/scaleci/fleet/internal/scmapi"
	"github.com/scaleci/fleet/internal/workerpool"
)

// SSHWaiter blocks until the named server accepts SSH connections, or
// returns an error if ctx expires first. Bootstrap itself (what runs over
// that connection) is out of scope (spec §1); this is the one hook the
// CORE depends on.
type SSHWaiter func(ctx context.Context, server model.Server) error

// ScriptRunner executes script on the server over SSH with env set in the
// process environment. Out of scope per spec §1; injected so the
// Provisioner stays testable without a real SSH session.
type ScriptRunner func(ctx context.Context, server model.Server, script string, env map[string]string) error

// Provisioner creates servers and drives their bootstrap to completion.
type Provisioner struct {
	Cloud                 cloudapi.Provider
	SCM                   scmapi.Service
	Naming                cloudapi.LabelNaming
	SSHKeyName            string
	ControllerFingerprint string
	Repository            string
	MaxServerReadyTime    time.Duration

	// BootstrapPool is the primary worker pool of spec §5 item 3: it
	// services the bootstrap job submitted once cloud-create returns, so
	// the calling loop is never blocked past that point.
	BootstrapPool *workerpool.Pool
	// SSHPool is the secondary "setup sub-pool" (spec §5): SSH-bound
	// waiting is submitted here so a slow boot on one server cannot
	// starve the bootstrap pool's other in-flight jobs.
	SSHPool *workerpool.Pool

	WaitForSSH SSHWaiter
	RunScript  ScriptRunner
}

// Provision builds labels, creates the cloud server, and submits its
// bootstrap to the worker pool, returning immediately with a
// model.ProvisionTask whose Done channel reports the eventual outcome.
// A cloud-create failure is folded into the returned task as an already
// completed (failed) future rather than a separate error return, so
// callers can treat every provision attempt uniformly as "await a future"
// (spec §4.4 step 3: "inject it into the futures list as if provisioning
// had failed").
func (p *Provisioner) Provision(ctx context.Context, name string, shape model.DesiredShape) model.ProvisionTask {
	done := make(chan error, 1)
	task := model.ProvisionTask{ServerName: name, Labels: shape.Labels, Done: done}

	cloudLabels := p.Naming.BuildLabels(shape.Labels, p.ControllerFingerprint)
	if err := cloudapi.Validate(cloudLabels); err != nil {
		done <- &fleeterr.TransientCreateError{ServerName: name, Cause: err}
		close(done)
		return task
	}

	req := cloudapi.CreateServerRequest{
		Name:     name,
		Type:     shape.ServerType,
		Image:    shape.Image,
		Location: shape.Location,
		SSHKeys:  []string{p.SSHKeyName},
		Labels:   cloudLabels,
		Net:      shape.Net,
	}

	server, err := p.Cloud.CreateServer(ctx, req)
	if err != nil {
		done <- classifyCreateErr(name, err)
		close(done)
		return task
	}
	server.Labels = shape.Labels

	bootstrapTask := p.BootstrapPool.Submit(ctx, func(ctx context.Context) error {
		return p.bootstrap(ctx, server, shape)
	})
	go func() {
		done <- bootstrapTask.Await(ctx)
		close(done)
	}()

	return task
}

// ContinueBootstrap submits the bootstrap job for a server that already
// exists in the cloud — the Recycler's hand-off point (spec §4.3: "then
// hand off to the Provisioner's bootstrap step") — skipping the
// cloud-create step Provision otherwise performs.
func (p *Provisioner) ContinueBootstrap(ctx context.Context, server model.Server, shape model.DesiredShape) model.ProvisionTask {
	done := make(chan error, 1)
	task := model.ProvisionTask{ServerName: server.Name, Labels: shape.Labels, Done: done}

	bootstrapTask := p.BootstrapPool.Submit(ctx, func(ctx context.Context) error {
		return p.bootstrap(ctx, server, shape)
	})
	go func() {
		done <- bootstrapTask.Await(ctx)
		close(done)
	}()
	return task
}

func classifyCreateErr(name string, err error) error {
	var maxErr *cloudapi.MaxServersError
	if errors.As(err, &maxErr) {
		return &fleeterr.ResourceLimitExceededError{ServerName: name, Reason: maxErr.Reason}
	}
	return &fleeterr.TransientCreateError{ServerName: name, Cause: err}
}

func (p *Provisioner) bootstrap(ctx context.Context, server model.Server, shape model.DesiredShape) error {
	sshCtx, cancel := context.WithTimeout(ctx, p.MaxServerReadyTime)
	defer cancel()

	sshTask := p.SSHPool.Submit(sshCtx, func(ctx context.Context) error {
		return p.WaitForSSH(ctx, server)
	})
	if err := sshTask.Await(sshCtx); err != nil {
		return &fleeterr.BootstrapError{ServerName: server.Name, Stage: "ssh-wait", Cause: err}
	}

	token, err := p.SCM.CreateRegistrationToken(ctx)
	if err != nil {
		return &fleeterr.BootstrapError{ServerName: server.Name, Stage: "registration-token", Cause: err}
	}

	env := bootstrapEnv(server, shape, token, p.Repository)

	if shape.SetupScript != "" {
		if err := p.RunScript(ctx, server, shape.SetupScript, env); err != nil {
			return &fleeterr.BootstrapError{ServerName: server.Name, Stage: "setup-script", Cause: err}
		}
	}
	if shape.StartupScript != "" {
		if err := p.RunScript(ctx, server, shape.StartupScript, env); err != nil {
			return &fleeterr.BootstrapError{ServerName: server.Name, Stage: "startup-script", Cause: err}
		}
	}
	return nil
}

// bootstrapEnv builds the environment the bootstrap protocol passes to
// startup_{arch}.sh (spec §6.3).
func bootstrapEnv(server model.Server, shape model.DesiredShape, token, repository string) map[string]string {
	return map[string]string{
		"GITHUB_REPOSITORY":    repository,
		"GITHUB_RUNNER_TOKEN":  token,
		"GITHUB_RUNNER_GROUP":  "Default",
		"GITHUB_RUNNER_LABELS": shape.Labels.Join(),
		"SERVER_ID":            server.Name,
		"SERVER_TYPE_NAME":     shape.ServerType,
		"SERVER_LOCATION_NAME": shape.Location,
	}
}
