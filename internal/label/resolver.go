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

// Package label implements the Label Resolver (spec §4.1): a pure
// mapping from a job's label set to a model.DesiredShape. Both the
// Scale-Up Loop and anything that needs to recompute "what does this job
// want" call the same Resolver so they never disagree.
package label

import (
	"fmt"
	"strings"

	"github.com/scaleci/fleet/internal/model"
)

// Defaults are the fallback values used when a job's labels don't pin a
// particular slot (spec §4.1 Default).
type Defaults struct {
	ServerType    string
	Location      string // may be empty: "let the provider choose"
	Image         model.Image
	SetupScript   string
	StartupScript string // a "startup-{arch}.sh"-style template resolved per architecture
}

// ScriptExists is injected so the Resolver stays a pure function of its
// inputs in tests, while production wires it to a real filesystem check.
type ScriptExists func(path string) bool

// Resolver derives a model.DesiredShape from a job's label set.
type Resolver struct {
	RequiredLabels model.LabelSet
	LabelPrefix    string
	MetaLabels     map[string]model.LabelSet
	Defaults       Defaults
	ScriptsDir     string
	ARMMarker      string // server-type name prefix meaning ARM64, defaults to "ca"
	ScriptExists   ScriptExists
}

// ErrUnknownScript is returned when the setup/startup script a job
// resolves to, whether named by a label or taken from the defaults, does
// not exist on disk (spec §4.1 Result: "Errors").
type ErrUnknownScript struct {
	Script string
}

func (e *ErrUnknownScript) Error() string {
	return fmt.Sprintf("unknown script: %s", e.Script)
}

func (r Resolver) prefixed(suffix string) string {
	p := r.LabelPrefix
	if p != "" && !strings.HasSuffix(p, "-") {
		p += "-"
	}
	return strings.ToLower(p + suffix)
}

// Filter reports whether a job's labels satisfy the required-label set
// (spec §4.1 Filter).
func (r Resolver) Filter(jobLabels model.LabelSet) bool {
	return jobLabels.IsSupersetOf(r.RequiredLabels)
}

// Expand replaces every occurrence of a meta-label name with its stored
// label set (spec §4.1 Expand). The raw, prefix-stripped form of each
// label is checked against MetaLabels, matching the original's
// expand_meta_label behavior.
func (r Resolver) Expand(jobLabels model.LabelSet) model.LabelSet {
	prefix := strings.ToLower(r.LabelPrefix)
	out := jobLabels.Clone()
	for l := range jobLabels {
		raw := l
		if prefix != "" {
			raw = strings.TrimPrefix(l, prefix)
		}
		if meta, ok := r.MetaLabels[raw]; ok {
			out = out.Union(meta)
		}
	}
	return out
}

// armArch reports the architecture implied by a resolved server type
// name: ARM64 iff the name begins with the configured ARM marker
// (default "ca"), else x64 (spec §4.1 Default).
func (r Resolver) armArch(serverType string) model.ImageArch {
	marker := r.ARMMarker
	if marker == "" {
		marker = "ca"
	}
	if strings.HasPrefix(strings.ToLower(serverType), strings.ToLower(marker)) {
		return model.ArchARM64
	}
	return model.ArchX64
}

func scanSuffix(labels model.LabelSet, prefix string) (string, bool) {
	var value string
	found := false
	for l := range labels {
		if strings.HasPrefix(l, prefix) {
			value = strings.TrimPrefix(l, prefix)
			found = true
		}
	}
	return value, found
}

// Resolve runs Filter, Expand, Parse, and Default in sequence and returns
// the DesiredShape, whose Labels field holds the expanded label set to
// stamp on the server, or false if the job does not carry every required
// label.
func (r Resolver) Resolve(jobLabels model.LabelSet) (model.DesiredShape, bool, error) {
	if !r.Filter(jobLabels) {
		return model.DesiredShape{}, false, nil
	}

	expanded := r.Expand(jobLabels)

	shape := model.DesiredShape{
		ServerType: r.Defaults.ServerType,
		Location:   r.Defaults.Location,
		Labels:     expanded,
	}

	if v, ok := scanSuffix(expanded, r.prefixed("type-")); ok {
		shape.ServerType = v
	}
	if v, ok := scanSuffix(expanded, r.prefixed("in-")); ok {
		shape.Location = v
	}

	shape.Image = r.Defaults.Image
	if v, ok := scanSuffix(expanded, r.prefixed("image-")); ok {
		parts := strings.SplitN(v, "-", 3)
		if len(parts) == 3 {
			shape.Image = model.Image{Arch: model.ImageArch(parts[0]), Kind: parts[1], Name: parts[2]}
		}
	}

	setupScript := r.Defaults.SetupScript
	if v, ok := scanSuffix(expanded, r.prefixed("setup-")); ok {
		setupScript = v + ".sh"
	}
	if err := r.checkScript(setupScript); err != nil {
		return model.DesiredShape{}, false, err
	}
	shape.SetupScript = setupScript

	arch := r.armArch(shape.ServerType)
	startupScript := formatStartup(r.Defaults.StartupScript, arch)
	if v, ok := scanSuffix(expanded, r.prefixed("startup-")); ok {
		startupScript = v + ".sh"
	}
	if err := r.checkScript(startupScript); err != nil {
		return model.DesiredShape{}, false, err
	}
	shape.StartupScript = startupScript
	if shape.Image.Arch == "" {
		shape.Image.Arch = arch
	}

	ipv4 := expanded.Contains(r.prefixed("net-ipv4"))
	ipv6 := expanded.Contains(r.prefixed("net-ipv6"))
	if !ipv4 && !ipv6 {
		ipv4, ipv6 = true, true
	}
	shape.Net = model.NetConfig{IPv4: ipv4, IPv6: ipv6}

	return shape, true, nil
}

func formatStartup(template string, arch model.ImageArch) string {
	return strings.ReplaceAll(template, "{arch}", string(arch))
}

func (r Resolver) checkScript(script string) error {
	if r.ScriptExists == nil {
		return nil
	}
	path := script
	if r.ScriptsDir != "" {
		path = r.ScriptsDir + "/" + script
	}
	if !r.ScriptExists(path) {
		return &ErrUnknownScript{Script: script}
	}
	return nil
}
