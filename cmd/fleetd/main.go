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

// Command fleetd runs the Scale-Up and Scale-Down convergence loops as
// one process, wired the way cmd/rule-evaluator wires its components:
// flags via kingpin, a YAML config file, an oklog/run.Group coordinating
// every long-lived goroutine, and a /metrics endpoint for Prometheus.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/time/rate"

	"github.com/scaleci/fleet/internal/clock"
	"github.com/scaleci/fleet/internal/cloudapi"
	"github.com/scaleci/fleet/internal/config"
	"github.com/scaleci/fleet/internal/httpx"
	"github.com/scaleci/fleet/internal/label"
	"github.com/scaleci/fleet/internal/logging"
	"github.com/scaleci/fleet/internal/mailbox"
	"github.com/scaleci/fleet/internal/metrics"
	"github.com/scaleci/fleet/internal/provisioner"
	"github.com/scaleci/fleet/internal/recycler"
	"github.com/scaleci/fleet/internal/scaledown"
	"github.com/scaleci/fleet/internal/scaleup"
	"github.com/scaleci/fleet/internal/scmapi"
	"github.com/scaleci/fleet/internal/sshexec"
	"github.com/scaleci/fleet/internal/workerpool"
)

func main() {
	a := kingpin.New("fleetd", "The CI runner fleet autoscaling controller")
	configFile := a.Flag("config.file", "Path to the fleet YAML configuration file.").Default("fleet.yml").String()
	logLevel := a.Flag("log.level", "The level of logging. One of 'debug', 'info', 'warn', 'error'.").Default("info").Enum("debug", "info", "warn", "error")
	listenAddr := a.Flag("web.listen-address", "Address to serve /metrics and /-/healthy on.").Default(":9090").String()
	sshKeyFile := a.Flag("ssh.private-key-file", "Private key used to SSH into provisioned servers during bootstrap.").Required().String()
	a.HelpFlag.Short('h')

	if _, err := a.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "parsing flags:", err)
		os.Exit(2)
	}

	logger := logging.New(*logLevel)

	cfg, err := loadConfigFile(*configFile)
	if err != nil {
		_ = level.Error(logger).Log("msg", "failed to load config file", "file", *configFile, "err", err)
		os.Exit(1)
	}

	signer, err := loadSigner(*sshKeyFile)
	if err != nil {
		_ = level.Error(logger).Log("msg", "failed to load SSH private key", "file", *sshKeyFile, "err", err)
		os.Exit(1)
	}
	cfg.ControllerKeyFP = fingerprint(signer)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met := metrics.New(reg)

	naming := cloudapi.LabelNaming{
		RunnerLabel:       cfg.RunnerLabel,
		RunnerLabelPrefix: cfg.RunnerLabelPrefix,
		SSHKeyLabel:       cfg.SSHKeyLabel,
	}

	cloudHTTP := httpx.New(cfg.MaxRetries, cfg.BaseDelay, cfg.MaxDelay)
	cloudProvider := &cloudapi.HTTPProvider{BaseURL: cfg.CloudBaseURL, Token: cfg.CloudToken, HTTP: cloudHTTP, Naming: naming}
	prices := &cloudapi.PriceCache{Provider: cloudProvider, Clock: clock.Real(), TTL: cfg.ScaleDownInterval}

	scmHTTP := httpx.New(cfg.MaxRetries, cfg.BaseDelay, cfg.MaxDelay)
	scmService := &scmapi.HTTPService{BaseURL: cfg.SCMBaseURL, Token: cfg.SCMToken, Repo: cfg.Repository, HTTP: scmHTTP}

	resolver := label.Resolver{
		RequiredLabels: cfg.RequiredLabels,
		LabelPrefix:    cfg.LabelPrefix,
		MetaLabels:     cfg.MetaLabels,
		Defaults:       cfg.Defaults,
		ScriptsDir:     cfg.ScriptsDir,
		ARMMarker:      cfg.ARMMarker,
		ScriptExists:   scriptExists,
	}

	dialer := &sshexec.Dialer{User: "root", Signer: signer}
	limiter := rate.NewLimiter(rate.Every(2*time.Second), 1)

	prov := &provisioner.Provisioner{
		Cloud:                 cloudProvider,
		SCM:                   scmService,
		Naming:                naming,
		SSHKeyName:            cfg.SSHKeyName,
		ControllerFingerprint: cfg.ControllerKeyFP,
		Repository:            cfg.Repository,
		MaxServerReadyTime:    cfg.MaxServerReadyTime,
		BootstrapPool:         workerpool.New(cfg.Workers),
		SSHPool:               workerpool.New(cfg.Workers),
		WaitForSSH:            provisioner.PollingSSHWaiter(limiter, dialer.Ready),
		RunScript:             dialer.RunScript,
	}

	rec := &recycler.Recycler{
		Cloud:                 cloudProvider,
		Naming:                naming,
		ControllerFingerprint: cfg.ControllerKeyFP,
		Provision:             prov,
	}

	box := mailbox.New()

	upLoop := &scaleup.Loop{
		Cloud:       cloudProvider,
		SCM:         scmService,
		Resolver:    resolver,
		Provisioner: prov,
		Recycler:    rec,
		Mailbox:     box,
		Naming:      naming,
		Config:      cfg,
		Logger:      logger,
		Metrics:     met,
	}

	downLoop := scaledown.New()
	downLoop.Cloud = cloudProvider
	downLoop.SCM = scmService
	downLoop.Naming = naming
	downLoop.Prices = prices
	downLoop.Mailbox = box
	downLoop.Config = cfg
	downLoop.Logger = logger
	downLoop.Metrics = met

	var g run.Group
	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return upLoop.Run(ctx)
		}, func(error) {
			cancel()
		})
	}
	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return downLoop.Run(ctx)
		}, func(error) {
			cancel()
		})
	}
	{
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		mux.HandleFunc("/-/healthy", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
		server := &http.Server{Addr: *listenAddr, Handler: mux}
		g.Add(func() error {
			_ = level.Info(logger).Log("msg", "starting web server", "listen", *listenAddr)
			return server.ListenAndServe()
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		})
	}
	{
		term := make(chan os.Signal, 1)
		cancel := make(chan struct{})
		signal.Notify(term, os.Interrupt, syscall.SIGTERM)
		g.Add(func() error {
			select {
			case <-term:
				_ = level.Info(logger).Log("msg", "received termination signal, shutting down")
			case <-cancel:
			}
			return nil
		}, func(error) {
			close(cancel)
		})
	}

	if err := g.Run(); err != nil {
		_ = level.Error(logger).Log("msg", "fleetd exited", "err", err)
		os.Exit(1)
	}
}

func scriptExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func loadSigner(path string) (ssh.Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return signer, nil
}

func fingerprint(signer ssh.Signer) string {
	return strings.TrimPrefix(ssh.FingerprintSHA256(signer.PublicKey()), "SHA256:")
}
