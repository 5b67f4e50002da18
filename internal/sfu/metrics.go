/*
Copyright 2022 The Matrix.org Foundation C.I.C.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sfu

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the Router-wide counters/gauges surfaced over /metrics. A nil
// *Metrics is valid and every method on it becomes a no-op, so routers
// created without a metrics registry never need a nil check at the call site.
type Metrics struct {
	publishedTracks   prometheus.Gauge
	publishedChannels prometheus.Gauge
	subscribers       prometheus.Gauge
	droppedRTCP       prometheus.Counter
}

// NewMetrics registers the SFU's counters/gauges on reg and returns a
// Metrics handle to pass to NewRouter.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		publishedTracks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sfu",
			Name:      "published_tracks",
			Help:      "Number of currently published media tracks.",
		}),
		publishedChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sfu",
			Name:      "published_data_channels",
			Help:      "Number of currently published data channels.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sfu",
			Name:      "subscribers",
			Help:      "Number of currently active track subscriptions.",
		}),
		droppedRTCP: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sfu",
			Name:      "dropped_rtcp_packets_total",
			Help:      "RTCP packets dropped because a writer sink was full.",
		}),
	}

	for _, c := range []prometheus.Collector{m.publishedTracks, m.publishedChannels, m.subscribers, m.droppedRTCP} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) trackPublished() {
	if m != nil {
		m.publishedTracks.Inc()
	}
}

func (m *Metrics) trackRemoved() {
	if m != nil {
		m.publishedTracks.Dec()
	}
}

func (m *Metrics) dataPublished() {
	if m != nil {
		m.publishedChannels.Inc()
	}
}

func (m *Metrics) dataRemoved() {
	if m != nil {
		m.publishedChannels.Dec()
	}
}

func (m *Metrics) subscriberAdded() {
	if m != nil {
		m.subscribers.Inc()
	}
}

func (m *Metrics) subscriberRemoved() {
	if m != nil {
		m.subscribers.Dec()
	}
}

func (m *Metrics) rtcpDropped() {
	if m != nil {
		m.droppedRTCP.Inc()
	}
}
