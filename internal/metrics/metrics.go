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

// Package metrics holds the counters and gauges the out-of-scope
// observability surface (spec §1) reads from. The CORE only increments
// and sets them; it never scrapes or renders them itself.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every series the control loops touch.
type Metrics struct {
	ScaleUpFailures        *prometheus.CounterVec
	ScaleDownDeleteFailures *prometheus.CounterVec
	ServersProvisioned     prometheus.Counter
	ServersRecycled        prometheus.Counter
	ServersDeleted         *prometheus.CounterVec
	MailboxDepth           prometheus.Gauge
	FleetSize              *prometheus.GaugeVec
	CycleDuration          *prometheus.HistogramVec
}

// New registers every series with reg and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScaleUpFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_scale_up_failures_total",
			Help: "Count of scale-up provisioning failures, by classified kind.",
		}, []string{"kind"}),
		ScaleDownDeleteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_scale_down_delete_failures_total",
			Help: "Count of scale-down delete/power-off failures, by reason.",
		}, []string{"reason"}),
		ServersProvisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_servers_provisioned_total",
			Help: "Count of servers created fresh by the Provisioner.",
		}),
		ServersRecycled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_servers_recycled_total",
			Help: "Count of servers reused by the Recycler instead of created fresh.",
		}),
		ServersDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_servers_deleted_total",
			Help: "Count of servers deleted by the Scale-Down Loop, by trigger.",
		}, []string{"trigger"}),
		MailboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_mailbox_depth",
			Help: "Number of scale-up failure messages currently queued in the mailbox.",
		}),
		FleetSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleet_servers",
			Help: "Number of active servers observed, by role.",
		}, []string{"role"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleet_cycle_duration_seconds",
			Help:    "Wall-clock duration of one control-loop iteration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"loop"}),
	}

	reg.MustRegister(
		m.ScaleUpFailures,
		m.ScaleDownDeleteFailures,
		m.ServersProvisioned,
		m.ServersRecycled,
		m.ServersDeleted,
		m.MailboxDepth,
		m.FleetSize,
		m.CycleDuration,
	)
	return m
}
