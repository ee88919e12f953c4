package sdk

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// Observer provides hooks for monitoring SDK requests.
// Implement this interface to track request rates and latencies or to
// integrate with your observability stack.
//
// Observer methods are called synchronously on the request path and should
// be fast and non-blocking.
//
// Example implementation:
//
//	type LogObserver struct {
//	    logger *log.Logger
//	}
//
//	func (o *LogObserver) OnRequestStart(method, path string) {
//	    o.logger.Printf("[START] %s %s", method, path)
//	}
//
//	func (o *LogObserver) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
//	    o.logger.Printf("[END] %s %s -> %d (%v) %v", method, path, status, duration, err)
//	}
type Observer interface {
	// OnRequestStart is called right before a request is sent.
	//
	// Parameters:
	//   - method: HTTP method (GET, POST, PUT, DELETE)
	//   - path: Path relative to the game root (e.g. "entities/Type/id")
	OnRequestStart(method, path string)

	// OnRequestEnd is called when a request completes.
	//
	// Parameters:
	//   - method: HTTP method
	//   - path: Path relative to the game root
	//   - status: HTTP status code, 0 if no response was received
	//   - duration: Time taken for the round trip
	//   - err: Transport error, or the ServiceError for non-2xx statuses
	OnRequestEnd(method, path string, status int, duration time.Duration, err error)
}

// NoopObserver is a no-op implementation of Observer that does nothing.
// This is the default observer used when none is configured.
type NoopObserver struct{}

// OnRequestStart does nothing
func (n *NoopObserver) OnRequestStart(method, path string) {}

// OnRequestEnd does nothing
func (n *NoopObserver) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
}

// MetricsCollector is a simple in-memory Observer. It counts requests,
// errors and status codes per endpoint and keeps every latency sample.
//
// It is intended for debugging and tests; export to a real monitoring
// system with an Observer of your own.
//
// Example:
//
//	metrics := sdk.NewMetricsCollector()
//	client, _ := sdk.NewClient(config.WithObserver(metrics))
//	// ...
//	snapshot := metrics.GetMetrics()
//	fmt.Printf("Total requests: %v\n", snapshot["requests"])
type MetricsCollector struct {
	mu           sync.RWMutex
	requestCount map[string]int64
	latencies    map[string][]time.Duration
	errorCount   map[string]int64
	statusCount  map[int]int64
}

// NewMetricsCollector creates a new metrics collector.
// The collector is safe for concurrent use.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		requestCount: make(map[string]int64),
		latencies:    make(map[string][]time.Duration),
		errorCount:   make(map[string]int64),
		statusCount:  make(map[int]int64),
	}
}

// OnRequestStart increments request count
func (m *MetricsCollector) OnRequestStart(method, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[method+" "+path]++
}

// OnRequestEnd records request duration, status and errors
func (m *MetricsCollector) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := method + " " + path
	m.latencies[key] = append(m.latencies[key], duration)
	m.statusCount[status]++
	if err != nil {
		m.errorCount[key]++
	}
}

// RequestCount returns the number of requests sent to "METHOD path".
func (m *MetricsCollector) RequestCount(method, path string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount[method+" "+path]
}

// TotalRequests returns the number of requests across all endpoints.
func (m *MetricsCollector) TotalRequests() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for _, n := range m.requestCount {
		total += n
	}
	return total
}

// GetMetrics returns a snapshot of current metrics.
// The returned map is a copy and safe to read without locks.
//
// The metrics include:
//   - "requests": Map of endpoint to request count
//   - "latencies": Map of endpoint to latency measurements
//   - "errors": Map of endpoint to error count
//   - "statuses": Map of status code to count
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latencies := make(map[string][]time.Duration, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = slices.Clone(v)
	}

	return map[string]interface{}{
		"requests":  maps.Clone(m.requestCount),
		"latencies": latencies,
		"errors":    maps.Clone(m.errorCount),
		"statuses":  maps.Clone(m.statusCount),
	}
}

// CompositeObserver fans every event out to several observers.
//
// Example:
//
//	observer := sdk.NewCompositeObserver(
//	    sdk.NewMetricsCollector(),
//	    telemetry.NewPrometheusObserver(prometheus.DefaultRegisterer),
//	)
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an observer that forwards to all given
// observers; nil entries are skipped.
func NewCompositeObserver(observers ...Observer) Observer {
	filtered := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	return &CompositeObserver{observers: filtered}
}

// OnRequestStart forwards to all observers
func (c *CompositeObserver) OnRequestStart(method, path string) {
	for _, o := range c.observers {
		o.OnRequestStart(method, path)
	}
}

// OnRequestEnd forwards to all observers
func (c *CompositeObserver) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
	for _, o := range c.observers {
		o.OnRequestEnd(method, path, status, duration, err)
	}
}
