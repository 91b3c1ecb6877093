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
	"strconv"
	"strings"
	"time"
)

// ServerState is a cloud VM's lifecycle state (spec §3).
type ServerState string

const (
	ServerStarting ServerState = "starting"
	ServerRunning  ServerState = "running"
	ServerOff      ServerState = "off"
)

// ServerRole is derived from a server's name prefix and never changes
// except through the recycling transition, which also rewrites the name.
type ServerRole string

const (
	RoleJob        ServerRole = "job"
	RoleStandby    ServerRole = "standby"
	RoleRecyclable ServerRole = "recyclable"
)

// RunnerStatus mirrors the source-control service's view of whether a
// runner-bearing server is ready to take work.
type RunnerStatus string

const (
	RunnerStatusNone         RunnerStatus = "" // no runner registered yet
	RunnerStatusInitializing RunnerStatus = "initializing"
	RunnerStatusReady        RunnerStatus = "ready"
	RunnerStatusBusy         RunnerStatus = "busy"
)

// Server is a cloud VM, annotated with the runner (if any) observed
// bearing its name this cycle.
type Server struct {
	Name           string
	Type           string
	Location       string
	Net            NetConfig
	Labels         LabelSet // capability labels only, reconstructed from <prefix>-<i>
	SSHFingerprint string
	State          ServerState
	CreatedAt      time.Time
	RunnerName     string // empty if no matching runner observed
	RunnerStatus   RunnerStatus
}

// IsRunnerBearing reports whether a runner exists whose name starts with
// the server's name (spec §3).
func (s Server) IsRunnerBearing() bool {
	return s.RunnerName != "" && strings.HasPrefix(s.RunnerName, s.Name)
}

// Role classifies the server by its name prefix under the given
// configured name prefixes. Returns RoleJob for anything that isn't a
// recognized standby/recyclable name — job-server names are run/job ids
// and cannot be recognized structurally beyond "not one of the others".
func Role(name, runnerPrefix, standbyPrefix, recyclePrefix string) ServerRole {
	rest := strings.TrimPrefix(name, runnerPrefix)
	switch {
	case strings.HasPrefix(rest, standbyPrefix):
		return RoleStandby
	case strings.HasPrefix(rest, recyclePrefix):
		return RoleRecyclable
	default:
		return RoleJob
	}
}

// JobServerName builds a job-server name (spec §6.4).
func JobServerName(runnerPrefix string, runID, jobID int64) string {
	return runnerPrefix + strconv.FormatInt(runID, 10) + "-" + strconv.FormatInt(jobID, 10)
}

// StandbyServerName builds a standby-server name (spec §6.4).
func StandbyServerName(runnerPrefix, standbyPrefix, uid string) string {
	return runnerPrefix + standbyPrefix + uid
}

// RecyclableServerName builds a recyclable-server name (spec §6.4).
func RecyclableServerName(runnerPrefix, recyclePrefix, uid string) string {
	return runnerPrefix + recyclePrefix + uid
}
