// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsIngestion holds Prometheus metrics for the ingestion subsystem.
type metricsIngestion struct {
	once sync.Once

	// Files and chunks by kind
	filesTotal  *prometheus.CounterVec
	chunksTotal *prometheus.CounterVec

	// Failures
	parseFailures prometheus.Counter

	// Batches by outcome
	batchesTotal *prometheus.CounterVec

	// Durations
	stageDuration  *prometheus.HistogramVec
	appendDuration prometheus.Histogram
}

var ingMetrics metricsIngestion

func (m *metricsIngestion) init() {
	m.once.Do(func() {
		m.filesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pylore_ingest_files_total", Help: "Archivos descubiertos por tipo"}, []string{"kind"})
		m.chunksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pylore_ingest_chunks_total", Help: "Chunks creados por tipo"}, []string{"kind"})

		m.parseFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "pylore_ingest_parse_failures_total", Help: "Archivos con fallo de parseo"})

		m.batchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pylore_ingest_batches_total", Help: "Batches escritos al índice por resultado"}, []string{"status"})

		buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
		m.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "pylore_ingest_stage_seconds", Help: "Duración por etapa del pipeline", Buckets: buckets}, []string{"stage"})
		m.appendDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "pylore_index_append_seconds", Help: "Duración de escrituras al índice", Buckets: buckets})

		prometheus.MustRegister(
			m.filesTotal, m.chunksTotal,
			m.parseFailures,
			m.batchesTotal,
			m.stageDuration, m.appendDuration,
		)
	})
}

// record helpers - used by pipeline for metrics tracking
func recordFileDiscovered(kind FileKind) {
	ingMetrics.init()
	ingMetrics.filesTotal.WithLabelValues(string(kind)).Inc()
}

func recordChunks(kind string, n int) {
	ingMetrics.init()
	ingMetrics.chunksTotal.WithLabelValues(kind).Add(float64(n))
}

func recordParseFailure() {
	ingMetrics.init()
	ingMetrics.parseFailures.Inc()
}

func recordBatch(status string) {
	ingMetrics.init()
	ingMetrics.batchesTotal.WithLabelValues(status).Inc()
}

func recordStageDuration(stage string, d time.Duration) {
	ingMetrics.init()
	ingMetrics.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func recordAppendDuration(d time.Duration) {
	ingMetrics.init()
	ingMetrics.appendDuration.Observe(d.Seconds())
}
