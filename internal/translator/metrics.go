// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package translator

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the process-local counters this translator exposes.
// Translate/drop/icmp-reply counts are carried as ambient
// instrumentation via prometheus counters, independent of any
// per-flow state tracking.
type metrics struct {
	translated *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	icmpReply  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		translated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nat64",
			Name:      "packets_translated_total",
			Help:      "Packets successfully translated and emitted, by ingress family.",
		}, []string{"family"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nat64",
			Name:      "packets_dropped_total",
			Help:      "Packets dropped on the translate path, by reason.",
		}, []string{"reason"}),
		icmpReply: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nat64",
			Name:      "icmp_replies_total",
			Help:      "Locally-originated ICMP/ICMPv6 error replies, by type.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.translated, m.dropped, m.icmpReply)
	}
	return m
}
