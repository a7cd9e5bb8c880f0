// Package metrics exposes HTTP request metrics in Prometheus text
// exposition format without pulling in a client library.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type seriesKey struct {
	handler string
	method  string
	code    string
}

type histogram struct {
	bounds []float64
	counts []uint64
	sum    float64
	count  uint64
}

func newHistogram() *histogram {
	bounds := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	return &histogram{bounds: bounds, counts: make([]uint64, len(bounds))}
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.bounds {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			return
		}
	}
	// Larger values only land in the implicit +Inf bucket via h.count.
}

type collector struct {
	mu       sync.Mutex
	requests map[seriesKey]uint64
	errors   map[seriesKey]uint64
	latency  map[seriesKey]*histogram
}

var httpCollector = &collector{
	requests: make(map[seriesKey]uint64),
	errors:   make(map[seriesKey]uint64),
	latency:  make(map[seriesKey]*histogram),
}

// ObserveHTTPRequest records one finished HTTP request.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpCollector.observe(handler, method, status, duration)
}

func (c *collector) observe(handler, method string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := seriesKey{handler: handler, method: method, code: strconv.Itoa(status)}
	c.requests[key]++

	latKey := seriesKey{handler: handler, method: method}
	if status >= 500 {
		c.errors[latKey]++
	}
	hist := c.latency[latKey]
	if hist == nil {
		hist = newHistogram()
		c.latency[latKey] = hist
	}
	hist.observe(duration.Seconds())
}

// Handler serves the collected metrics.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, httpCollector.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	reqKeys := make([]seriesKey, 0, len(c.requests))
	for key := range c.requests {
		reqKeys = append(reqKeys, key)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		a, b := reqKeys[i], reqKeys[j]
		if a.handler != b.handler {
			return a.handler < b.handler
		}
		if a.method != b.method {
			return a.method < b.method
		}
		return a.code < b.code
	})

	latKeys := make([]seriesKey, 0, len(c.latency))
	for key := range c.latency {
		latKeys = append(latKeys, key)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		a, b := latKeys[i], latKeys[j]
		if a.handler != b.handler {
			return a.handler < b.handler
		}
		return a.method < b.method
	})

	var builder strings.Builder
	builder.Grow(1024)

	builder.WriteString("# HELP vault_http_requests_total Total number of HTTP requests processed.\n")
	builder.WriteString("# TYPE vault_http_requests_total counter\n")
	for _, key := range reqKeys {
		builder.WriteString(fmt.Sprintf("vault_http_requests_total{handler=%q,method=%q,code=%q} %d\n",
			key.handler, key.method, key.code, c.requests[key]))
	}

	errKeys := make([]seriesKey, 0, len(c.errors))
	for key := range c.errors {
		errKeys = append(errKeys, key)
	}
	sort.Slice(errKeys, func(i, j int) bool {
		a, b := errKeys[i], errKeys[j]
		if a.handler != b.handler {
			return a.handler < b.handler
		}
		return a.method < b.method
	})
	builder.WriteString("# HELP vault_http_request_errors_total Total number of HTTP requests that resulted in a server error.\n")
	builder.WriteString("# TYPE vault_http_request_errors_total counter\n")
	for _, key := range errKeys {
		builder.WriteString(fmt.Sprintf("vault_http_request_errors_total{handler=%q,method=%q} %d\n",
			key.handler, key.method, c.errors[key]))
	}

	builder.WriteString("# HELP vault_http_request_duration_seconds HTTP request duration in seconds.\n")
	builder.WriteString("# TYPE vault_http_request_duration_seconds histogram\n")
	for _, key := range latKeys {
		hist := c.latency[key]
		for idx, bound := range hist.bounds {
			builder.WriteString(fmt.Sprintf("vault_http_request_duration_seconds_bucket{handler=%q,method=%q,le=%q} %d\n",
				key.handler, key.method, formatFloat(bound), hist.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("vault_http_request_duration_seconds_bucket{handler=%q,method=%q,le=\"+Inf\"} %d\n",
			key.handler, key.method, hist.count))
		builder.WriteString(fmt.Sprintf("vault_http_request_duration_seconds_sum{handler=%q,method=%q} %s\n",
			key.handler, key.method, formatFloat(hist.sum)))
		builder.WriteString(fmt.Sprintf("vault_http_request_duration_seconds_count{handler=%q,method=%q} %d\n",
			key.handler, key.method, hist.count))
	}

	return builder.String()
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
