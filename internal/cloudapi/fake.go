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

package cloudapi

import (
	"context"
	"sync"

	"github.com/scaleci/fleet/internal/model"
)

// Fake is an in-memory Provider for tests, the way the teacher's
// pkg/export/gcm/promtest package fakes a backend instead of generating
// mocks from the interface.
type Fake struct {
	mu        sync.Mutex
	servers   map[string]model.Server
	rawLabels map[string]map[string]string
	sshKeys   map[string]*SSHKey // by fingerprint
	prices    []ServerTypePrice
	Naming    LabelNaming
	CreateErr error
}

func NewFake() *Fake {
	return &Fake{
		servers:   map[string]model.Server{},
		rawLabels: map[string]map[string]string{},
		sshKeys:   map[string]*SSHKey{},
		Naming:    LabelNaming{RunnerLabel: "active-marker", RunnerLabelPrefix: "label", SSHKeyLabel: "ssh-key"},
	}
}

// RawLabels returns the raw cloud labels last set on the named server via
// CreateServer/UpdateServer, for test assertions.
func (f *Fake) RawLabels(name string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rawLabels[name]
}

func (f *Fake) Seed(s model.Server) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.servers[s.Name] = s
}

func (f *Fake) SeedSSHKey(k SSHKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sshKeys[k.Fingerprint] = &k
}

func (f *Fake) SeedPrices(p []ServerTypePrice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices = p
}

func (f *Fake) CreateServer(_ context.Context, req CreateServerRequest) (model.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return model.Server{}, f.CreateErr
	}
	if _, exists := f.servers[req.Name]; exists {
		return model.Server{}, &MaxServersError{Reason: "duplicate name"}
	}
	s := model.Server{
		Name:           req.Name,
		Type:           req.Type,
		Location:       req.Location,
		Net:            req.Net,
		Labels:         f.Naming.ParseLabels(req.Labels),
		SSHFingerprint: f.Naming.SSHFingerprintOf(req.Labels),
		State:          model.ServerStarting,
	}
	f.servers[req.Name] = s
	f.rawLabels[req.Name] = req.Labels
	return s, nil
}

func (f *Fake) ListServers(_ context.Context, _ string) ([]model.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Server, 0, len(f.servers))
	for _, s := range f.servers {
		out = append(out, s)
	}
	return out, nil
}

func (f *Fake) DeleteServer(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.servers, name)
	return nil
}

func (f *Fake) PowerOffServer(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.servers[name]
	if !ok {
		return nil
	}
	s.State = model.ServerOff
	f.servers[name] = s
	return nil
}

func (f *Fake) UpdateServer(_ context.Context, name, newName string, labels map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.servers[name]
	if !ok {
		return nil
	}
	delete(f.servers, name)
	delete(f.rawLabels, name)
	s.Name = newName
	s.Labels = f.Naming.ParseLabels(labels)
	s.SSHFingerprint = f.Naming.SSHFingerprintOf(labels)
	f.servers[newName] = s
	f.rawLabels[newName] = labels
	return nil
}

func (f *Fake) RebuildServer(_ context.Context, name string, image model.Image) error {
	return nil
}

func (f *Fake) GetSSHKeyByFingerprint(_ context.Context, fp string) (*SSHKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sshKeys[fp], nil
}

func (f *Fake) CreateSSHKey(_ context.Context, name, _ string) (*SSHKey, error) {
	k := &SSHKey{Name: name, Fingerprint: name}
	f.mu.Lock()
	f.sshKeys[k.Fingerprint] = k
	f.mu.Unlock()
	return k, nil
}

func (f *Fake) ListServerTypePrices(context.Context) ([]ServerTypePrice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prices, nil
}
