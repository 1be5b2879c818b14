// Package metrics is a small facade over prometheus counters. A process-wide
// registry is created by Init; components hang their counters off a
// MetricsRegistry scoped to a subsystem name.
package metrics

import (
	"net/http"
	"regexp"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu        sync.Mutex
	registry  *prometheus.Registry
	namespace string
	counters  map[string]prometheus.Counter
)

var invalidChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// Init creates the process-wide registry. The name is used as the metric
// namespace; callers may pass test names, so invalid characters are mapped
// to underscores.
func Init(name string) error {
	mu.Lock()
	defer mu.Unlock()

	registry = prometheus.NewRegistry()
	namespace = invalidChars.ReplaceAllString(name, "_")
	counters = make(map[string]prometheus.Counter)
	return nil
}

// Deinit drops the registry. Mostly useful in tests, where Init is called
// once per test case.
func Deinit() {
	mu.Lock()
	defer mu.Unlock()

	registry = nil
	counters = nil
}

// Handler returns the scrape endpoint for the current registry.
func Handler() http.Handler {
	mu.Lock()
	defer mu.Unlock()

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// MetricsRegistry scopes counters to a subsystem.
type MetricsRegistry struct {
	subsystem string
}

func NewMetricsRegistry(subsystem string) *MetricsRegistry {
	return &MetricsRegistry{subsystem: subsystem}
}

// Counter returns the counter with the given name, creating and registering
// it on first use.
func (m *MetricsRegistry) Counter(name string) prometheus.Counter {
	mu.Lock()
	defer mu.Unlock()

	key := m.subsystem + "_" + name
	if c, ok := counters[key]; ok {
		return c
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: m.subsystem,
		Name:      name,
	})
	if registry != nil {
		_ = registry.Register(c)
	}
	if counters == nil {
		counters = make(map[string]prometheus.Counter)
	}
	counters[key] = c
	return c
}
