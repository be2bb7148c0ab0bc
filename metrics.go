// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the process-wide Prometheus collectors every Handle reports
// decode activity to. They are registered lazily and at most once per
// process, so opening many containers in one process does not panic on a
// duplicate registration.
type metrics struct {
	scansDecoded   prometheus.Counter
	decodeErrors   prometheus.Counter
	decodeDuration prometheus.Histogram
	openDuration   prometheus.Histogram
}

var (
	metricsOnce sync.Once
	sharedMetrics *metrics
)

func getMetrics() *metrics {
	metricsOnce.Do(func() {
		m := &metrics{
			scansDecoded: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "rawspec",
				Name:      "scans_decoded_total",
				Help:      "Number of scan packets successfully decoded.",
			}),
			decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "rawspec",
				Name:      "decode_errors_total",
				Help:      "Number of scan decode attempts that returned an error.",
			}),
			decodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "rawspec",
				Name:      "decode_duration_seconds",
				Help:      "Per-scan decode latency.",
				Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
			}),
			openDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "rawspec",
				Name:      "open_duration_seconds",
				Help:      "Time spent walking a container's header/index structures in Open.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(m.scansDecoded, m.decodeErrors, m.decodeDuration, m.openDuration)
		sharedMetrics = m
	})
	return sharedMetrics
}
