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

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scaleci/fleet/internal/config"
	"github.com/scaleci/fleet/internal/label"
	"github.com/scaleci/fleet/internal/model"
)

// fileConfig is the on-disk YAML shape, unmarshaled then translated into
// config.Config's richer types (LabelSet, MaxRunners) the way
// cmd/rule-evaluator's loadConfig unmarshals into operator.RuleEvaluatorConfig
// before the reloaders apply it to live components.
type fileConfig struct {
	Repository        string `yaml:"repository"`
	RunnerNamePrefix  string `yaml:"runner_name_prefix"`
	StandbyNamePrefix string `yaml:"standby_name_prefix"`
	RecycleNamePrefix string `yaml:"recycle_name_prefix"`
	RunnerLabel       string `yaml:"runner_label"`
	RunnerLabelPrefix string `yaml:"runner_label_prefix"`
	SSHKeyLabel       string `yaml:"ssh_key_label"`
	SSHKeyName        string `yaml:"ssh_key_name"`

	RequiredLabels []string            `yaml:"required_labels"`
	LabelPrefix    string              `yaml:"label_prefix"`
	MetaLabels     map[string][]string `yaml:"meta_labels"`
	ScriptsDir     string              `yaml:"scripts_dir"`
	ARMMarker      string              `yaml:"arm_marker"`

	Defaults struct {
		ServerType    string `yaml:"server_type"`
		Location      string `yaml:"location"`
		ImageArch     string `yaml:"image_arch"`
		ImageKind     string `yaml:"image_kind"`
		ImageName     string `yaml:"image_name"`
		SetupScript   string `yaml:"setup_script"`
		StartupScript string `yaml:"startup_script"`
	} `yaml:"defaults"`

	StandbyPools []struct {
		Labels               []string `yaml:"labels"`
		DesiredCount         int      `yaml:"desired_count"`
		ReplenishImmediately bool     `yaml:"replenish_immediately"`
	} `yaml:"standby_pools"`

	MaxRunners              *int `yaml:"max_runners"`
	MaxRunnersInWorkflowRun int  `yaml:"max_runners_in_workflow_run"`

	MaxPoweredOffTimeSeconds         int  `yaml:"max_powered_off_time_seconds"`
	MaxRunnerRegistrationTimeSeconds int  `yaml:"max_runner_registration_time_seconds"`
	MaxUnusedRunnerTimeSeconds       int  `yaml:"max_unused_runner_time_seconds"`
	EndOfLifeMinutes                 int  `yaml:"end_of_life_minutes"`
	RecycleEnabled                   bool `yaml:"recycle_enabled"`

	ScaleUpIntervalSeconds    int `yaml:"scale_up_interval_seconds"`
	ScaleDownIntervalSeconds  int `yaml:"scale_down_interval_seconds"`
	Workers                   int `yaml:"workers"`
	MaxServerReadyTimeSeconds int `yaml:"max_server_ready_time_seconds"`

	MaxRetries      int `yaml:"max_retries"`
	BaseDelayMillis int `yaml:"base_delay_millis"`
	MaxDelaySeconds int `yaml:"max_delay_seconds"`

	CloudBaseURL string `yaml:"cloud_base_url"`
	CloudToken   string `yaml:"cloud_token"`
	SCMBaseURL   string `yaml:"scm_base_url"`
	SCMToken     string `yaml:"scm_token"`
}

func loadConfigFile(path string) (*config.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("unmarshal config %q: %w", path, err)
	}

	metaLabels := make(map[string]model.LabelSet, len(fc.MetaLabels))
	for name, labels := range fc.MetaLabels {
		metaLabels[name] = model.NewLabelSet(labels...)
	}

	standby := make([]model.StandbyDeclaration, 0, len(fc.StandbyPools))
	for _, p := range fc.StandbyPools {
		standby = append(standby, model.StandbyDeclaration{
			Labels:               model.NewLabelSet(p.Labels...),
			DesiredCount:         p.DesiredCount,
			ReplenishImmediately: p.ReplenishImmediately,
		})
	}

	maxRunners := config.Unlimited()
	if fc.MaxRunners != nil {
		maxRunners = config.Limit(*fc.MaxRunners)
	}

	cfg := &config.Config{
		Repository:        fc.Repository,
		RunnerNamePrefix:  fc.RunnerNamePrefix,
		StandbyNamePrefix: fc.StandbyNamePrefix,
		RecycleNamePrefix: fc.RecycleNamePrefix,
		RunnerLabel:       fc.RunnerLabel,
		RunnerLabelPrefix: fc.RunnerLabelPrefix,
		SSHKeyLabel:       fc.SSHKeyLabel,
		SSHKeyName:        fc.SSHKeyName,

		RequiredLabels: model.NewLabelSet(fc.RequiredLabels...),
		LabelPrefix:    fc.LabelPrefix,
		MetaLabels:     metaLabels,
		ScriptsDir:     fc.ScriptsDir,
		ARMMarker:      fc.ARMMarker,
		Defaults: label.Defaults{
			ServerType: fc.Defaults.ServerType,
			Location:   fc.Defaults.Location,
			Image: model.Image{
				Arch: model.ImageArch(fc.Defaults.ImageArch),
				Kind: fc.Defaults.ImageKind,
				Name: fc.Defaults.ImageName,
			},
			SetupScript:   fc.Defaults.SetupScript,
			StartupScript: fc.Defaults.StartupScript,
		},

		StandbyDeclarations: standby,

		MaxRunners:              maxRunners,
		MaxRunnersInWorkflowRun: fc.MaxRunnersInWorkflowRun,

		MaxPoweredOffTime:         time.Duration(fc.MaxPoweredOffTimeSeconds) * time.Second,
		MaxRunnerRegistrationTime: time.Duration(fc.MaxRunnerRegistrationTimeSeconds) * time.Second,
		MaxUnusedRunnerTime:       time.Duration(fc.MaxUnusedRunnerTimeSeconds) * time.Second,
		EndOfLifeMinutes:          fc.EndOfLifeMinutes,
		RecycleEnabled:            fc.RecycleEnabled,

		ScaleUpInterval:    time.Duration(fc.ScaleUpIntervalSeconds) * time.Second,
		ScaleDownInterval:  time.Duration(fc.ScaleDownIntervalSeconds) * time.Second,
		Workers:            fc.Workers,
		MaxServerReadyTime: time.Duration(fc.MaxServerReadyTimeSeconds) * time.Second,

		MaxRetries: fc.MaxRetries,
		BaseDelay:  time.Duration(fc.BaseDelayMillis) * time.Millisecond,
		MaxDelay:   time.Duration(fc.MaxDelaySeconds) * time.Second,

		CloudBaseURL: fc.CloudBaseURL,
		CloudToken:   fc.CloudToken,
		SCMBaseURL:   fc.SCMBaseURL,
		SCMToken:     fc.SCMToken,
	}

	return cfg, nil
}
