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

// Package sshexec is the one concrete implementation of the
// Provisioner's SSH hooks (spec §1 Non-goals: the bootstrap transport
// itself is out of scope, but the CORE still needs something real to
// inject in production). It dials over SSH with a short per-attempt
// timeout and runs scripts with the bootstrap environment exported as
// shell variables ahead of the script body, the way a cloud-init
// user-data script would.
package sshexec

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/scaleci/fleet/internal/model"
)

// Dialer connects to a server's SSH endpoint for readiness checks and
// script execution.
type Dialer struct {
	User        string
	Signer      ssh.Signer
	Port        int
	DialTimeout time.Duration
}

func (d *Dialer) port() int {
	if d.Port != 0 {
		return d.Port
	}
	return 22
}

func (d *Dialer) dialTimeout() time.Duration {
	if d.DialTimeout != 0 {
		return d.DialTimeout
	}
	return 5 * time.Second
}

func (d *Dialer) addr(server model.Server) string {
	return net.JoinHostPort(server.Name, fmt.Sprintf("%d", d.port()))
}

func (d *Dialer) dial(ctx context.Context, server model.Server) (*ssh.Client, error) {
	addr := d.addr(server)
	conn, err := (&net.Dialer{Timeout: d.dialTimeout()}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	cfg := &ssh.ClientConfig{
		User:            d.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(d.Signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // fleet-managed ephemeral runners have no known_hosts entry yet.
		Timeout:         d.dialTimeout(),
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Ready implements provisioner.ReadyCheck: a successful SSH handshake
// means the server is reachable. A connection refused/handshake failure
// reports "not ready yet", not an error, so PollingSSHWaiter keeps
// polling; only ctx expiring surfaces as an error.
func (d *Dialer) Ready(ctx context.Context, server model.Server) (bool, error) {
	client, err := d.dial(ctx, server)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	_ = client.Close()
	return true, nil
}

// RunScript implements provisioner.ScriptRunner: it opens one session,
// exports env as shell variable assignments ahead of script, and runs
// the result through sh -s over stdin.
func (d *Dialer) RunScript(ctx context.Context, server model.Server, script string, env map[string]string) error {
	client, err := d.dial(ctx, server)
	if err != nil {
		return fmt.Errorf("dial %s: %w", server.Name, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("open session on %s: %w", server.Name, err)
	}
	defer session.Close()

	session.Stdin = strings.NewReader(exportEnv(env) + script)
	if out, err := session.CombinedOutput("sh -s"); err != nil {
		return fmt.Errorf("run script on %s: %w: %s", server.Name, err, out)
	}
	return nil
}

func exportEnv(env map[string]string) string {
	var b strings.Builder
	for k, v := range env {
		fmt.Fprintf(&b, "export %s=%q\n", k, v)
	}
	return b.String()
}
