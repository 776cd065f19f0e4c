package metrics

import "github.com/prometheus/client_golang/prometheus"

// initEngineMetrics initializes write, index and search metrics.
func (m *Manager) initEngineMetrics() {
	m.writesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_writes_total",
			Help: "Total number of stored memory records by type",
		},
		[]string{"type"},
	)

	m.archivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memory_records_archived_total",
			Help: "Total number of records archived by slot supersession",
		},
	)

	m.writeRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memory_write_retries_total",
			Help: "Total number of optimistic write retries",
		},
	)

	m.writeConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memory_write_conflicts_exhausted_total",
			Help: "Total number of writes abandoned after the retry budget",
		},
	)

	m.candidatesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_candidates_skipped_total",
			Help: "Total number of rejected fact candidates by reason",
		},
		[]string{"reason"},
	)

	m.indexLag = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_index_lag_total",
			Help: "Total number of failed vector index updates by reason",
		},
		[]string{"reason"},
	)

	m.indexRecovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memory_index_recovered_total",
			Help: "Total number of lagged index entries repaired by reindexing",
		},
	)

	m.indexPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "memory_index_pending",
			Help: "Current number of records awaiting vector index repair",
		},
	)

	m.searchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_searches_total",
			Help: "Total number of searches by mode",
		},
		[]string{"mode"},
	)

	m.staleHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memory_stale_hits_dropped_total",
			Help: "Total number of vector hits without a live metadata record",
		},
	)

	m.registry.MustRegister(
		m.writesTotal,
		m.archivedTotal,
		m.writeRetries,
		m.writeConflicts,
		m.candidatesSkipped,
		m.indexLag,
		m.indexRecovered,
		m.indexPending,
		m.searchesTotal,
		m.staleHitsTotal,
	)
}

// RecordWrite records a stored memory record.
func (m *Manager) RecordWrite(recordType string) {
	if !m.enabled {
		return
	}
	m.writesTotal.WithLabelValues(recordType).Inc()
}

// RecordArchived records records archived by slot supersession.
func (m *Manager) RecordArchived(count int) {
	if !m.enabled || count <= 0 {
		return
	}
	m.archivedTotal.Add(float64(count))
}

// RecordWriteRetry records one optimistic write retry.
func (m *Manager) RecordWriteRetry() {
	if !m.enabled {
		return
	}
	m.writeRetries.Inc()
}

// RecordWriteConflictExhausted records a write abandoned after the retry
// budget.
func (m *Manager) RecordWriteConflictExhausted() {
	if !m.enabled {
		return
	}
	m.writeConflicts.Inc()
}

// RecordCandidateSkipped records a rejected fact candidate.
func (m *Manager) RecordCandidateSkipped(reason string) {
	if !m.enabled {
		return
	}
	m.candidatesSkipped.WithLabelValues(reason).Inc()
}

// RecordIndexLag records a failed vector index update.
func (m *Manager) RecordIndexLag(reason string) {
	if !m.enabled {
		return
	}
	m.indexLag.WithLabelValues(reason).Inc()
}

// RecordIndexRecovered records a repaired index entry.
func (m *Manager) RecordIndexRecovered() {
	if !m.enabled {
		return
	}
	m.indexRecovered.Inc()
}

// SetIndexPending sets the current reindex backlog size.
func (m *Manager) SetIndexPending(count int) {
	if !m.enabled {
		return
	}
	m.indexPending.Set(float64(count))
}

// RecordSearch records a search, marking whether it ran degraded.
func (m *Manager) RecordSearch(degraded bool) {
	if !m.enabled {
		return
	}
	mode := "vector"
	if degraded {
		mode = "degraded"
	}
	m.searchesTotal.WithLabelValues(mode).Inc()
}

// RecordStaleHitsDropped records vector hits dropped during hydration.
func (m *Manager) RecordStaleHitsDropped(count int) {
	if !m.enabled || count <= 0 {
		return
	}
	m.staleHitsTotal.Add(float64(count))
}
