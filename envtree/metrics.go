package envtree

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by a Loader
type Metrics struct {
	// FilesLoaded counts environment files applied to a store
	FilesLoaded prometheus.Counter

	// FileFailures counts skipped directories and files by kind
	FileFailures *prometheus.CounterVec

	// EntriesApplied counts key/value pairs set from files
	EntriesApplied prometheus.Counter

	// LoadDuration measures complete Load calls
	LoadDuration prometheus.Histogram
}

// NewMetrics registers the loader collectors with reg. Collectors already
// registered by another Loader are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		FilesLoaded: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "projectenv_files_loaded_total",
			Help: "Total number of environment files applied",
		})),
		FileFailures: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "projectenv_file_failures_total",
			Help: "Total number of skipped directories and files by failure kind",
		}, []string{"kind"})),
		EntriesApplied: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "projectenv_entries_applied_total",
			Help: "Total number of key/value pairs set from environment files",
		})),
		LoadDuration: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "projectenv_load_duration_seconds",
			Help:    "Duration of project environment loads in seconds",
			Buckets: prometheus.DefBuckets,
		})),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}
