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

package provisioner

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/scaleci/fleet/internal/model"
)

// ReadyCheck reports whether server currently accepts SSH connections.
// The connection attempt itself is out of scope (spec §1); only the
// polling loop around it belongs to the CORE.
type ReadyCheck func(ctx context.Context, server model.Server) (bool, error)

// PollingSSHWaiter returns an SSHWaiter that polls check, rate-limited by
// limiter so many concurrent bootstraps polling SSH readiness at once
// cannot hammer the server-side sshd. This is independent of the
// server-side retry-with-backoff in internal/httpx, which governs the
// cloud/source-control HTTP APIs, not SSH.
func PollingSSHWaiter(limiter *rate.Limiter, check ReadyCheck) SSHWaiter {
	return func(ctx context.Context, server model.Server) error {
		for {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			ready, err := check(ctx, server)
			if err != nil {
				return err
			}
			if ready {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}
