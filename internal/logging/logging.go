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

// Package logging constructs the CORE's go-kit logger and provides a
// scoped entry/exit guard in place of the source's decorator-style
// context-manager logging (REDESIGN FLAGS: "thread-local globals /
// decorator-style scoped logging action").
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// New builds a JSON go-kit logger filtered to levelName ("debug", "info",
// "warn", "error"), the way cmd/rule-evaluator builds its logger.
func New(levelName string) log.Logger {
	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	switch strings.ToLower(levelName) {
	case "debug":
		return level.NewFilter(logger, level.AllowDebug())
	case "warn":
		return level.NewFilter(logger, level.AllowWarn())
	case "error":
		return level.NewFilter(logger, level.AllowError())
	default:
		return level.NewFilter(logger, level.AllowInfo())
	}
}

// Scope is a RAII-style entry/exit guard for one named unit of work
// (a loop iteration, a provision attempt). Construct with Enter;
// call Exit (typically deferred) to log the outcome and duration.
type Scope struct {
	logger log.Logger
	name   string
	start  time.Time
}

// Enter logs entry into name with kvs and returns a Scope whose Exit logs
// the matching departure, including elapsed duration.
func Enter(logger log.Logger, name string, kvs ...any) *Scope {
	s := &Scope{logger: log.With(logger, "scope", name), name: name, start: time.Now()}
	_ = level.Debug(s.logger).Log(append([]any{"msg", "enter"}, kvs...)...)
	return s
}

// Exit logs the scope's departure and elapsed duration. err, if non-nil,
// is logged and raises the log level to Warn.
func (s *Scope) Exit(err error) {
	elapsed := time.Since(s.start)
	if err != nil {
		_ = level.Warn(s.logger).Log("msg", "exit", "err", err, "elapsed", elapsed)
		return
	}
	_ = level.Debug(s.logger).Log("msg", "exit", "elapsed", elapsed)
}
