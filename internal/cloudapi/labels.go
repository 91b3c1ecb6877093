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
	"fmt"
	"strconv"
	"strings"

	"github.com/scaleci/fleet/internal/model"
)

// ActiveLabel is the scope marker stamped on every managed server and
// used to filter every list call (spec §3, §6.1). Never omitted — it is
// an invariant of BuildLabels, not a per-call option (spec SPEC_FULL
// "active label scoping marker lifecycle").
const ActiveLabel = "active"

// LabelNaming holds the configured label keys spec §6.1's required label
// schema names: the active-scope marker key, the indexed capability-label
// key prefix ("<runner-label-prefix>-<i>"), and the SSH-key binding key.
type LabelNaming struct {
	RunnerLabel       string // e.g. "github-hetzner-runner"
	RunnerLabelPrefix string // the "<runner-label-prefix>" used for "-<i>" keys
	SSHKeyLabel       string
}

// BuildLabels renders a capability label set plus an SSH-key fingerprint
// binding into the indexed cloud-label schema spec §6.1 requires. The
// fingerprint, not a key name, is what the Recycler compares against the
// controller's current key (spec §4.3) — storing it as a label round-trips
// through ListServers the same way the capability set does, rather than
// requiring a side channel the Fake and the real API would disagree on.
func (n LabelNaming) BuildLabels(labels model.LabelSet, sshKeyFingerprint string) map[string]string {
	out := map[string]string{
		n.RunnerLabel: ActiveLabel,
		n.SSHKeyLabel: sshKeyFingerprint,
	}
	for i, l := range labels.Sorted() {
		out[n.RunnerLabelPrefix+"-"+strconv.Itoa(i)] = l
	}
	return out
}

// SSHFingerprintOf reads back the SSH-key fingerprint binding BuildLabels
// stamped, the same round-trip ParseLabels performs for capability labels.
func (n LabelNaming) SSHFingerprintOf(cloudLabels map[string]string) string {
	return cloudLabels[n.SSHKeyLabel]
}

// ParseLabels reconstructs a capability LabelSet from a server's cloud
// labels, reading only the indexed "<prefix>-<i>" keys (spec §3
// invariant: "the Scale-Down Loop reconstructs the capability set from
// those labels alone").
func (n LabelNaming) ParseLabels(cloudLabels map[string]string) model.LabelSet {
	out := model.NewLabelSet()
	prefix := n.RunnerLabelPrefix + "-"
	for k, v := range cloudLabels {
		if idx, ok := strings.CutPrefix(k, prefix); ok {
			if _, err := strconv.Atoi(idx); err == nil {
				out.Add(v)
			}
		}
	}
	return out
}

// Validate rejects label keys/values the cloud provider's label
// validator would reject: empty keys, or any value over 63 bytes (the
// common cloud-label length ceiling this CORE targets).
func Validate(labels map[string]string) error {
	for k, v := range labels {
		if k == "" {
			return fmt.Errorf("invalid server label: empty key")
		}
		if len(v) > 63 {
			return fmt.Errorf("invalid server label %q: value %q exceeds 63 bytes", k, v)
		}
	}
	return nil
}
