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

package label

import (
	"errors"
	"testing"

	"github.com/scaleci/fleet/internal/model"
)

func baseResolver() Resolver {
	return Resolver{
		RequiredLabels: model.NewLabelSet("self-hosted"),
		LabelPrefix:    "ci-",
		MetaLabels: map[string]model.LabelSet{
			"gpu": model.NewLabelSet("ci-type-gpu-large", "ci-in-us-east"),
		},
		Defaults: Defaults{
			ServerType:    "cx22",
			Location:      "nbg1",
			Image:         model.Image{Kind: "snapshot", Name: "base"},
			SetupScript:   "setup",
			StartupScript: "startup-{arch}",
		},
		ScriptExists: func(string) bool { return true },
	}
}

func TestResolverFilterRejectsMissingRequiredLabels(t *testing.T) {
	r := baseResolver()
	_, ok, err := r.Resolve(model.NewLabelSet("linux"))
	if err != nil {
		t.Fatalf("Resolve() err = %v, want nil", err)
	}
	if ok {
		t.Error("Resolve() ok = true, want false (missing required label)")
	}
}

func TestResolverAppliesDefaultsWhenUnspecified(t *testing.T) {
	r := baseResolver()
	shape, ok, err := r.Resolve(model.NewLabelSet("self-hosted"))
	if err != nil || !ok {
		t.Fatalf("Resolve() = (_, %v, %v), want (_, true, nil)", ok, err)
	}
	if shape.ServerType != "cx22" {
		t.Errorf("ServerType = %q, want %q", shape.ServerType, "cx22")
	}
	if shape.Location != "nbg1" {
		t.Errorf("Location = %q, want %q", shape.Location, "nbg1")
	}
	if shape.SetupScript != "setup" {
		t.Errorf("SetupScript = %q, want %q", shape.SetupScript, "setup")
	}
	if shape.StartupScript != "startup-x64" {
		t.Errorf("StartupScript = %q, want %q", shape.StartupScript, "startup-x64")
	}
	if !shape.Net.IPv4 || !shape.Net.IPv6 {
		t.Errorf("Net = %+v, want both IPv4 and IPv6 true by default", shape.Net)
	}
}

func TestResolverLabelOverridesWin(t *testing.T) {
	r := baseResolver()
	shape, ok, err := r.Resolve(model.NewLabelSet("self-hosted", "ci-type-cax31", "ci-in-fsn1", "ci-net-ipv6"))
	if err != nil || !ok {
		t.Fatalf("Resolve() = (_, %v, %v), want (_, true, nil)", ok, err)
	}
	if shape.ServerType != "cax31" {
		t.Errorf("ServerType = %q, want %q", shape.ServerType, "cax31")
	}
	if shape.Location != "fsn1" {
		t.Errorf("Location = %q, want %q", shape.Location, "fsn1")
	}
	// cax-prefixed server type should resolve to ARM64.
	if shape.Image.Arch != model.ArchARM64 {
		t.Errorf("Image.Arch = %q, want %q", shape.Image.Arch, model.ArchARM64)
	}
	if shape.StartupScript != "startup-arm64" {
		t.Errorf("StartupScript = %q, want %q", shape.StartupScript, "startup-arm64")
	}
	if shape.Net.IPv4 || !shape.Net.IPv6 {
		t.Errorf("Net = %+v, want ipv6-only since only ci-net-ipv6 was set", shape.Net)
	}
}

func TestResolverExpandsMetaLabels(t *testing.T) {
	r := baseResolver()
	shape, ok, err := r.Resolve(model.NewLabelSet("self-hosted", "ci-gpu"))
	if err != nil || !ok {
		t.Fatalf("Resolve() = (_, %v, %v), want (_, true, nil)", ok, err)
	}
	if shape.ServerType != "gpu-large" {
		t.Errorf("ServerType = %q, want %q (expanded via meta-label)", shape.ServerType, "gpu-large")
	}
	if shape.Location != "us-east" {
		t.Errorf("Location = %q, want %q (expanded via meta-label)", shape.Location, "us-east")
	}
}

func TestResolverUnknownScriptErrors(t *testing.T) {
	r := baseResolver()
	r.ScriptExists = func(string) bool { return false }
	_, _, err := r.Resolve(model.NewLabelSet("self-hosted"))
	var unknown *ErrUnknownScript
	if !errors.As(err, &unknown) {
		t.Fatalf("Resolve() err = %v, want *ErrUnknownScript", err)
	}
	if unknown.Script != "setup" {
		t.Errorf("ErrUnknownScript.Script = %q, want %q", unknown.Script, "setup")
	}
}

func TestResolverImageOverrideParsesThreeParts(t *testing.T) {
	r := baseResolver()
	shape, ok, err := r.Resolve(model.NewLabelSet("self-hosted", "ci-image-arm64-snapshot-custom"))
	if err != nil || !ok {
		t.Fatalf("Resolve() = (_, %v, %v), want (_, true, nil)", ok, err)
	}
	want := model.Image{Arch: model.ArchARM64, Kind: "snapshot", Name: "custom"}
	if shape.Image != want {
		t.Errorf("Image = %+v, want %+v", shape.Image, want)
	}
}
