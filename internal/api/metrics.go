package api

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/xchatlife/novelgraph/internal/events"
	"github.com/xchatlife/novelgraph/internal/version"
)

var (
	metricsState = &MetricsState{lastSaveTimeSec: -1}
)

// MetricsState holds process metrics for the /metrics endpoint.
type MetricsState struct {
	mu              sync.RWMutex
	startTime       time.Time
	savesTotal      uint64
	saveFailures    uint64
	lastSaveTimeSec int64 // Unix timestamp, -1 if never saved
}

// InitMetrics initializes the metrics system. Must be called at startup.
func InitMetrics() {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.startTime = time.Now()
	metricsState.savesTotal = 0
	metricsState.saveFailures = 0
	metricsState.lastSaveTimeSec = -1
}

func recordSave(ts time.Time) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.savesTotal++
	metricsState.lastSaveTimeSec = ts.Unix()
}

func recordSaveFailure() {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.saveFailures++
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	metricsState.mu.RLock()
	startTime := metricsState.startTime
	savesTotal := metricsState.savesTotal
	saveFailures := metricsState.saveFailures
	lastSave := metricsState.lastSaveTimeSec
	metricsState.mu.RUnlock()

	readiness.mu.RLock()
	mqttConnected := readiness.mqttConnected
	storageConnected := readiness.storageConnected
	readiness.mu.RUnlock()

	info := s.sess.Info()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
	}

	labels := fmt.Sprintf(`novel="%s",instance="%s",version="%s"`, info.NovelID, hostname, version.Version)

	writeMetric("novelgraph_uptime_seconds", "gauge",
		"Number of seconds since the editor started", time.Since(startTime).Seconds(), labels)
	writeMetric("novelgraph_nodes", "gauge",
		"Number of nodes in the graph", info.Nodes, labels)
	writeMetric("novelgraph_edges", "gauge",
		"Number of edges in the graph", info.Edges, labels)
	writeMetric("novelgraph_layout_dirty", "gauge",
		"Whether the graph changed since the last layout (1) or not (0)", boolGauge(info.Dirty), labels)
	writeMetric("novelgraph_events_total", "counter",
		"Total number of events emitted since startup", events.TotalCount(), labels)
	writeMetric("novelgraph_saves_total", "counter",
		"Number of successful saves since startup", savesTotal, labels)
	writeMetric("novelgraph_save_failures_total", "counter",
		"Number of failed saves since startup", saveFailures, labels)
	writeMetric("novelgraph_last_save_timestamp", "gauge",
		"Unix timestamp of the last successful save (-1 if none)", lastSave, labels)
	writeMetric("novelgraph_storage_connected", "gauge",
		"Whether the snapshot store is reachable (1) or not (0)", boolGauge(storageConnected), labels)
	writeMetric("novelgraph_mqtt_connected", "gauge",
		"Whether the MQTT broker is connected (1) or not (0)", boolGauge(mqttConnected), labels)
	writeMetric("novelgraph_ws_clients", "gauge",
		"Number of active WebSocket client connections", events.SubscriberCount(), labels)
	writeMetric("novelgraph_ws_dropped_events_total", "counter",
		"Events discarded because a stream client fell behind", events.DroppedTotal(), labels)
	if na := certNotAfter(); !na.IsZero() {
		writeMetric("novelgraph_tls_cert_expiry_timestamp", "gauge",
			"Unix timestamp at which the serving certificate expires", na.Unix(), labels)
	}
}
