// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package snmp

import (
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes a client's or trap listener's counters and
// histograms as Prometheus collectors, registered against whatever
// prometheus.Registerer the caller supplies (or a private registry if
// nil, so that two Clients in the same process never collide on
// metric names).
//
// This replaces a hand-rolled atomic-counter scheme: SNMP monitoring
// tools in production (device pollers, MIB exporters) pair an SNMP
// client directly with a Prometheus registry, so that is the ambient
// metrics surface here too, not a private struct of int64s.
type Metrics struct {
	ConnectionAttempts prometheus.Counter
	ActiveConnections  prometheus.Gauge
	ReconnectAttempts  prometheus.Counter

	RequestsSent      *prometheus.CounterVec
	ResponsesReceived prometheus.Counter
	Timeouts          prometheus.Counter
	Retries           prometheus.Counter
	Errors            *prometheus.CounterVec

	GetRequests     prometheus.Counter
	GetNextRequests prometheus.Counter
	GetBulkRequests prometheus.Counter
	SetRequests     prometheus.Counter
	WalkRequests    prometheus.Counter

	TrapsReceived prometheus.Counter

	VarbindsSent     prometheus.Counter
	VarbindsReceived prometheus.Counter

	RequestLatency prometheus.Histogram

	startTime time.Time
}

// NewMetrics builds and registers a Metrics against reg, or against a
// fresh private prometheus.Registry if reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		ConnectionAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snmp", Name: "connection_attempts_total", Help: "Total connection attempts.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "snmp", Name: "active_connections", Help: "Currently active connections.",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snmp", Name: "reconnect_attempts_total", Help: "Total reconnection attempts.",
		}),
		RequestsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snmp", Name: "requests_sent_total", Help: "Requests sent, by PDU type.",
		}, []string{"pdu_type"}),
		ResponsesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snmp", Name: "responses_received_total", Help: "Responses received.",
		}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snmp", Name: "timeouts_total", Help: "Request timeouts.",
		}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snmp", Name: "retries_total", Help: "Request retries.",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snmp", Name: "errors_total", Help: "Errors, by operation.",
		}, []string{"operation"}),
		GetRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snmp", Name: "get_requests_total", Help: "GET requests issued.",
		}),
		GetNextRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snmp", Name: "getnext_requests_total", Help: "GET-NEXT requests issued.",
		}),
		GetBulkRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snmp", Name: "getbulk_requests_total", Help: "GET-BULK requests issued.",
		}),
		SetRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snmp", Name: "set_requests_total", Help: "SET requests issued.",
		}),
		WalkRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snmp", Name: "walk_requests_total", Help: "Walks started.",
		}),
		TrapsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snmp", Name: "traps_received_total", Help: "Traps/informs received.",
		}),
		VarbindsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snmp", Name: "varbinds_sent_total", Help: "Variable bindings sent.",
		}),
		VarbindsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snmp", Name: "varbinds_received_total", Help: "Variable bindings received.",
		}),
		RequestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "snmp", Name: "request_latency_seconds", Help: "Request round-trip latency.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		startTime: time.Now(),
	}

	for _, c := range []prometheus.Collector{
		m.ConnectionAttempts, m.ActiveConnections, m.ReconnectAttempts,
		m.RequestsSent, m.ResponsesReceived, m.Timeouts, m.Retries, m.Errors,
		m.GetRequests, m.GetNextRequests, m.GetBulkRequests, m.SetRequests, m.WalkRequests,
		m.TrapsReceived, m.VarbindsSent, m.VarbindsReceived, m.RequestLatency,
	} {
		factory.MustRegister(c)
	}

	return m
}

// MetricsSnapshot is a point-in-time rendering of the counters, for a
// non-Prometheus caller that wants to print current values without
// scraping /metrics.
type MetricsSnapshot struct {
	ConnectionAttempts float64
	ActiveConnections  float64
	RequestsSent       float64
	ResponsesReceived  float64
	Timeouts           float64
	Retries            float64
	Errors             float64
	GetRequests        float64
	GetNextRequests    float64
	GetBulkRequests    float64
	SetRequests        float64
	WalkRequests       float64
	TrapsReceived      float64
	VarbindsSent       float64
	VarbindsReceived   float64
	Uptime             time.Duration
}

// Snapshot reads the current counter/gauge values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		ConnectionAttempts: readCounter(m.ConnectionAttempts),
		ActiveConnections:  readGauge(m.ActiveConnections),
		RequestsSent:       sumVec(m.RequestsSent),
		ResponsesReceived:  readCounter(m.ResponsesReceived),
		Timeouts:           readCounter(m.Timeouts),
		Retries:            readCounter(m.Retries),
		Errors:             sumVec(m.Errors),
		GetRequests:        readCounter(m.GetRequests),
		GetNextRequests:    readCounter(m.GetNextRequests),
		GetBulkRequests:    readCounter(m.GetBulkRequests),
		SetRequests:        readCounter(m.SetRequests),
		WalkRequests:       readCounter(m.WalkRequests),
		TrapsReceived:      readCounter(m.TrapsReceived),
		VarbindsSent:       readCounter(m.VarbindsSent),
		VarbindsReceived:   readCounter(m.VarbindsReceived),
		Uptime:             time.Since(m.startTime),
	}
}

func readCounter(c prometheus.Counter) float64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	return pb.GetCounter().GetValue()
}

func readGauge(g prometheus.Gauge) float64 {
	var pb dto.Metric
	if err := g.Write(&pb); err != nil {
		return 0
	}
	return pb.GetGauge().GetValue()
}

func sumVec(v *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		v.Collect(ch)
		close(ch)
	}()
	var total float64
	for metric := range ch {
		var pb dto.Metric
		if err := metric.Write(&pb); err == nil {
			total += pb.GetCounter().GetValue()
		}
	}
	return total
}

// PoolMetrics tracks a connection pool's aggregate health.
type PoolMetrics struct {
	TotalClients   prometheus.Gauge
	HealthyClients prometheus.Gauge
	TotalRequests  prometheus.Counter
	FailedRequests prometheus.Counter
}

// NewPoolMetrics builds and registers pool metrics against reg, or a
// private registry if reg is nil.
func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &PoolMetrics{
		TotalClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "snmp", Subsystem: "pool", Name: "total_clients", Help: "Configured pool size.",
		}),
		HealthyClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "snmp", Subsystem: "pool", Name: "healthy_clients", Help: "Currently healthy pool clients.",
		}),
		TotalRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snmp", Subsystem: "pool", Name: "requests_total", Help: "Requests dispatched through the pool.",
		}),
		FailedRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snmp", Subsystem: "pool", Name: "failed_requests_total", Help: "Requests that found no healthy client.",
		}),
	}

	for _, c := range []prometheus.Collector{m.TotalClients, m.HealthyClients, m.TotalRequests, m.FailedRequests} {
		factory.MustRegister(c)
	}

	return m
}

// Snapshot reads the current pool metric values.
func (m *PoolMetrics) Snapshot() PoolMetricsSnapshot {
	return PoolMetricsSnapshot{
		TotalClients:   readGauge(m.TotalClients),
		HealthyClients: readGauge(m.HealthyClients),
		TotalRequests:  readCounter(m.TotalRequests),
		FailedRequests: readCounter(m.FailedRequests),
	}
}

// PoolMetricsSnapshot is a point-in-time rendering of PoolMetrics.
type PoolMetricsSnapshot struct {
	TotalClients   float64
	HealthyClients float64
	TotalRequests  float64
	FailedRequests float64
}
