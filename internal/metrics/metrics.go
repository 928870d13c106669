// Package metrics exposes the engine's prometheus instrumentation. All
// metrics are registered by NewSet against a caller-supplied registry;
// nothing in the core ever calls MustRegister against the global default
// registry, so embedding this engine in a process that runs its own
// prometheus registry never collides.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set is a bundle of the counters/histograms the engine updates. A nil
// *Set is valid everywhere it's used — every method below is a no-op on a
// nil receiver, so callers that don't want metrics never pay for them.
type Set struct {
	ObjectReads     *prometheus.CounterVec
	ObjectWrites    *prometheus.CounterVec
	PackImports     prometheus.Counter
	PackImportBytes prometheus.Counter
	GCRuns          prometheus.Counter
	GCPruned        prometheus.Counter
	GCDuration      prometheus.Histogram
}

// NewSet builds a Set and registers it against reg. Pass prometheus.NewRegistry()
// for an isolated registry, or nil to build unregistered metrics (still
// usable, just not scraped).
func NewSet(reg prometheus.Registerer) *Set {
	s := &Set{
		ObjectReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vcscore", Subsystem: "objectstore", Name: "reads_total",
		}, []string{"kind", "backing"}),
		ObjectWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vcscore", Subsystem: "objectstore", Name: "writes_total",
		}, []string{"kind"}),
		PackImports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vcscore", Subsystem: "packfile", Name: "imports_total",
		}),
		PackImportBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vcscore", Subsystem: "packfile", Name: "import_bytes_total",
		}),
		GCRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vcscore", Subsystem: "gc", Name: "runs_total",
		}),
		GCPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vcscore", Subsystem: "gc", Name: "pruned_objects_total",
		}),
		GCDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vcscore", Subsystem: "gc", Name: "duration_seconds",
		}),
	}
	if reg != nil {
		reg.MustRegister(s.ObjectReads, s.ObjectWrites, s.PackImports,
			s.PackImportBytes, s.GCRuns, s.GCPruned, s.GCDuration)
	}
	return s
}

func (s *Set) objectRead(kind, backing string) {
	if s == nil {
		return
	}
	s.ObjectReads.WithLabelValues(kind, backing).Inc()
}

func (s *Set) objectWrite(kind string) {
	if s == nil {
		return
	}
	s.ObjectWrites.WithLabelValues(kind).Inc()
}

// ObjectRead records a read of an object of the given kind, tagged with
// which backing store served it ("loose" or "pack").
func ObjectRead(s *Set, kind, backing string) { s.objectRead(kind, backing) }

// ObjectWrite records a write of an object of the given kind.
func ObjectWrite(s *Set, kind string) { s.objectWrite(kind) }

// GCRun records the start of one garbage-collection pass.
func GCRun(s *Set) {
	if s == nil {
		return
	}
	s.GCRuns.Inc()
}

// GCPruned records n objects removed by a garbage-collection pass.
func GCPruned(s *Set, n int) {
	if s == nil || n <= 0 {
		return
	}
	s.GCPruned.Add(float64(n))
}

// GCDurationSeconds records how long a garbage-collection pass took.
func GCDurationSeconds(s *Set, seconds float64) {
	if s == nil {
		return
	}
	s.GCDuration.Observe(seconds)
}
