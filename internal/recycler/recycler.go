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

// Package recycler implements the Recycler (spec §4.3): match a
// recyclable server against a desired shape and, on match, rename,
// relabel, and rebuild it in place of creating a new server.
package recycler

import (
	"context"

	"github.com/scaleci/fleet/internal/cloudapi"
	"github.com/scaleci/fleet/internal/model"
	"github.com/scaleci/fleet/internal/provisioner"
)

// Recycler rewrites a matched recyclable server into a new job server and
// hands it to the Provisioner's bootstrap step, skipping cloud-create.
type Recycler struct {
	Cloud                 cloudapi.Provider
	Naming                cloudapi.LabelNaming
	ControllerFingerprint string
	Provision             *provisioner.Provisioner
}

// TryRecycle scans candidates for the first exact match on
// (server_type, location-if-specified, ipv4-presence, ipv6-presence,
// ssh-key-fingerprint) and, on match, renames/relabels/rebuilds it to
// newName and hands off to the Provisioner's bootstrap step. On no match
// it returns ok=false and candidates is left untouched by the caller
// (TryRecycle itself never mutates the slice).
func (r *Recycler) TryRecycle(ctx context.Context, candidates []model.Server, newName string, shape model.DesiredShape, controllerFingerprint string) (model.ProvisionTask, bool) {
	for _, c := range candidates {
		if !shape.Matches(c.Type, c.Location, c.Net, c.SSHFingerprint, controllerFingerprint) {
			continue
		}
		return r.recycle(ctx, c, newName, shape), true
	}
	return model.ProvisionTask{}, false
}

func (r *Recycler) recycle(ctx context.Context, candidate model.Server, newName string, shape model.DesiredShape) model.ProvisionTask {
	labels := r.Naming.BuildLabels(shape.Labels, r.ControllerFingerprint)

	done := make(chan error, 1)
	task := model.ProvisionTask{ServerName: newName, Labels: shape.Labels, Done: done}

	if err := r.Cloud.UpdateServer(ctx, candidate.Name, newName, labels); err != nil {
		done <- err
		close(done)
		return task
	}
	if err := r.Cloud.RebuildServer(ctx, newName, shape.Image); err != nil {
		done <- err
		close(done)
		return task
	}

	server := candidate
	server.Name = newName
	server.Labels = shape.Labels
	server.State = model.ServerStarting

	return r.Provision.ContinueBootstrap(ctx, server, shape)
}
