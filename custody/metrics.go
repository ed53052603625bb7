// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package custody

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all custody metrics.
	Namespace = "ssdd"
	subsystem = "custody"
)

// Metrics counts store activity. A nil *Metrics records nothing.
type Metrics struct {
	StoredTotal    prometheus.Counter
	RetrievedTotal prometheus.Counter
	NotFoundTotal  prometheus.Counter
	// ExpiredTotal counts shares removed by a read after expiry.
	ExpiredTotal prometheus.Counter
	// EvictedTotal counts shares removed by the periodic sweep.
	EvictedTotal prometheus.Counter
	DeletedTotal prometheus.Counter
	// DroppedEventsTotal counts events not delivered to a slow subscriber.
	DroppedEventsTotal prometheus.Counter
	LiveShares         prometheus.Gauge
}

// NewMetrics creates the custody metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		StoredTotal:        counter("stored_total", "Total number of shares stored"),
		RetrievedTotal:     counter("retrieved_total", "Total number of successful share retrievals"),
		NotFoundTotal:      counter("not_found_total", "Total number of retrievals of unknown share IDs"),
		ExpiredTotal:       counter("expired_total", "Total number of shares deleted when read after expiry"),
		EvictedTotal:       counter("evicted_total", "Total number of shares deleted by the periodic sweep"),
		DeletedTotal:       counter("deleted_total", "Total number of shares deleted by callers"),
		DroppedEventsTotal: counter("dropped_events_total", "Total number of events dropped for slow subscribers"),
		LiveShares: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "live_shares",
			Help:      "Number of shares currently held, including expired shares not yet swept",
		}),
	}
}

func (m *Metrics) stored(live int) {
	if m == nil {
		return
	}
	m.StoredTotal.Inc()
	m.LiveShares.Set(float64(live))
}

func (m *Metrics) retrieved() {
	if m == nil {
		return
	}
	m.RetrievedTotal.Inc()
}

func (m *Metrics) notFound() {
	if m == nil {
		return
	}
	m.NotFoundTotal.Inc()
}

func (m *Metrics) expired(live int) {
	if m == nil {
		return
	}
	m.ExpiredTotal.Inc()
	m.LiveShares.Set(float64(live))
}

func (m *Metrics) evicted(n, live int) {
	if m == nil {
		return
	}
	m.EvictedTotal.Add(float64(n))
	m.LiveShares.Set(float64(live))
}

func (m *Metrics) deleted(live int) {
	if m == nil {
		return
	}
	m.DeletedTotal.Inc()
	m.LiveShares.Set(float64(live))
}

func (m *Metrics) droppedEvent() {
	if m == nil {
		return
	}
	m.DroppedEventsTotal.Inc()
}
