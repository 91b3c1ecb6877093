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

// Package fleeterr names the closed error taxonomy of spec §7. Exceptions
// never carry ad hoc attached attributes (REDESIGN FLAGS: "attach
// arbitrary attribute to exception for dedup flags") — dedup state lives
// in the caller's aggregation map, not on the error value.
package fleeterr

import (
	"errors"
	"fmt"
)

// MaxServersReachedError means the global server cap was hit (hitting the
// per-run cap only skips the job and produces no error).
// Spec §4.4 step 3/4: synthesized by the Scale-Up Loop itself, not
// returned by the cloud provider, and is always mailbox-eligible.
type MaxServersReachedError struct {
	ServerName string
	Limit      int
}

func (e *MaxServersReachedError) Error() string {
	return fmt.Sprintf("max servers reached (limit %d) while provisioning %q", e.Limit, e.ServerName)
}

// ResourceLimitExceededError wraps a cloud-provider-reported capacity
// error. Mailbox-eligible (spec §4.2 step 2, §7).
type ResourceLimitExceededError struct {
	ServerName string
	Reason     string // e.g. "resource_limit_exceeded"
}

func (e *ResourceLimitExceededError) Error() string {
	return fmt.Sprintf("resource limit exceeded (%s) while creating %q", e.Reason, e.ServerName)
}

// TransientCreateError is any other server-create failure: logged and
// dropped, the next Scale-Up cycle retries (spec §7).
type TransientCreateError struct {
	ServerName string
	Cause      error
}

func (e *TransientCreateError) Error() string {
	return fmt.Sprintf("transient create failure for %q: %v", e.ServerName, e.Cause)
}

func (e *TransientCreateError) Unwrap() error { return e.Cause }

// BootstrapError is a failure in the SSH/runner-token/setup-or-startup
// script sequence (spec §6.3, §7). It never deletes the server — the
// Scale-Down Loop's zombie/unused paths take over.
type BootstrapError struct {
	ServerName string
	Stage      string // "ssh-wait", "registration-token", "setup-script", "startup-script"
	Cause      error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap failed for %q at stage %q: %v", e.ServerName, e.Stage, e.Cause)
}

func (e *BootstrapError) Unwrap() error { return e.Cause }

// DeleteError is a failed cloud-side delete/power-off. Scale-Down's
// deletions use "ignore failure" semantics: logged, counted, the cycle
// continues (spec §7).
type DeleteError struct {
	ServerName string
	Cause      error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete failed for %q: %v", e.ServerName, e.Cause)
}

func (e *DeleteError) Unwrap() error { return e.Cause }

// IsMailboxEligible reports whether err should be posted to the mailbox
// as a scale-up failure (spec §4.4 step 5): MaxServersReachedError or
// ResourceLimitExceededError, and nothing else.
func IsMailboxEligible(err error) bool {
	var max *MaxServersReachedError
	var limit *ResourceLimitExceededError
	return errors.As(err, &max) || errors.As(err, &limit)
}
