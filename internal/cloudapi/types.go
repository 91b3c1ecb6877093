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

// Package cloudapi is the CORE's view of the cloud provider API (spec
// §6.1): server/SSH-key/server-type operations, kept provider-agnostic
// because the spec never names a concrete vendor SDK.
package cloudapi

import (
	"context"

	"github.com/scaleci/fleet/internal/model"
)

// CreateServerRequest is the set of fields spec §6.1's servers.create
// operation takes.
type CreateServerRequest struct {
	Name     string
	Type     string
	Image    model.Image
	Location string // empty: provider chooses
	SSHKeys  []string
	Labels   map[string]string
	Net      model.NetConfig
}

// SSHKey is a cloud-provider-registered public key.
type SSHKey struct {
	Name        string
	Fingerprint string
}

// ServerTypePrice is one entry of server_types.get_all() (spec §6.1),
// used by the Scale-Down Loop's recyclable cost ranking (spec §4.5 step 7).
type ServerTypePrice struct {
	Type              string
	Location          string
	PricePerHourCents float64
}

// MaxServersError signals the cloud provider itself refused the create
// because of a provider-side capacity limit (spec §7
// ResourceLimitExceeded), distinct from the CORE's own max_runners cap.
type MaxServersError struct {
	Reason string
}

func (e *MaxServersError) Error() string { return "cloud provider capacity exceeded: " + e.Reason }

// Provider is everything the CORE needs from the cloud provider.
type Provider interface {
	CreateServer(ctx context.Context, req CreateServerRequest) (model.Server, error)
	ListServers(ctx context.Context, activeLabel string) ([]model.Server, error)
	DeleteServer(ctx context.Context, name string) error
	PowerOffServer(ctx context.Context, name string) error
	UpdateServer(ctx context.Context, name, newName string, labels map[string]string) error
	RebuildServer(ctx context.Context, name string, image model.Image) error
	GetSSHKeyByFingerprint(ctx context.Context, fingerprint string) (*SSHKey, error)
	CreateSSHKey(ctx context.Context, name, publicKey string) (*SSHKey, error)
	ListServerTypePrices(ctx context.Context) ([]ServerTypePrice, error)
}
