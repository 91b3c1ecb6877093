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

import (
	"strings"

	"github.com/google/uuid"
)

// NewUID returns a monotone-ish, separator-free token suitable for
// standby- and recyclable-server names (spec §6.4: "<uid> is any
// monotone-unique token; source uses a high-resolution timestamp with
// separators stripped"). A time-ordered UUIDv7 gives the same
// monotonicity property without hand-rolling timestamp formatting.
func NewUID() string {
	id := uuid.Must(uuid.NewV7())
	return strings.ReplaceAll(id.String(), "-", "")
}
