package docstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts store operations. All methods are nil-safe so metrics
// stay optional: a store without metrics simply skips the counters.
type Metrics struct {
	puts          prometheus.Counter
	gets          prometheus.Counter
	deletes       prometheus.Counter
	queries       prometheus.Counter
	fallbackScans prometheus.Counter
	changeEvents  prometheus.Counter
	pruned        prometheus.Counter
}

// NewMetrics registers the store's counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		puts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "recordstore", Name: "puts_total",
			Help: "Documents written via put or update.",
		}),
		gets: f.NewCounter(prometheus.CounterOpts{
			Namespace: "recordstore", Name: "gets_total",
			Help: "Point lookups by document id.",
		}),
		deletes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "recordstore", Name: "deletes_total",
			Help: "Documents deleted.",
		}),
		queries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "recordstore", Name: "queries_total",
			Help: "Declarative queries executed.",
		}),
		fallbackScans: f.NewCounter(prometheus.CounterOpts{
			Namespace: "recordstore", Name: "index_fallback_scans_total",
			Help: "Queries answered by a full scan instead of an index.",
		}),
		changeEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: "recordstore", Name: "change_events_total",
			Help: "Change events delivered to listeners.",
		}),
		pruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: "recordstore", Name: "pruned_documents_total",
			Help: "Documents removed by retention pruning.",
		}),
	}
}

func (m *Metrics) incPuts() {
	if m != nil {
		m.puts.Inc()
	}
}

func (m *Metrics) incGets() {
	if m != nil {
		m.gets.Inc()
	}
}

func (m *Metrics) incDeletes() {
	if m != nil {
		m.deletes.Inc()
	}
}

func (m *Metrics) incQueries() {
	if m != nil {
		m.queries.Inc()
	}
}

func (m *Metrics) incFallbackScans() {
	if m != nil {
		m.fallbackScans.Inc()
	}
}

func (m *Metrics) incChangeEvents() {
	if m != nil {
		m.changeEvents.Inc()
	}
}

func (m *Metrics) addPruned(n int) {
	if m != nil {
		m.pruned.Add(float64(n))
	}
}
