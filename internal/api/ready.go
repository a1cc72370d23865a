package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// readinessState tracks the dependencies the editor needs to serve.
// An optional dependency that is down is reported as degraded and does
// not make the service unready.
type readinessState struct {
	mu               sync.RWMutex
	sessionReady     bool
	storageConnected bool
	mqttConnected    bool
	mqttOptional     bool
}

var readiness = &readinessState{mqttOptional: true}

// SetSessionReady marks the editing session as opened.
func SetSessionReady(ready bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.sessionReady = ready
}

// SetStorageConnected records whether the snapshot store answers.
func SetStorageConnected(connected bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.storageConnected = connected
}

// SetMQTTConnected records the broker state. Save notices are optional
// unless required is set.
func SetMQTTConnected(connected, required bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.mqttConnected = connected
	readiness.mqttOptional = !required
}

// CheckStatus is the state of one dependency.
type CheckStatus struct {
	Status string `json:"status"`
}

// ReadinessResponse is the body of /ready.
type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckStatus `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	readiness.mu.RLock()
	sessionReady := readiness.sessionReady
	storageConnected := readiness.storageConnected
	mqttConnected := readiness.mqttConnected
	mqttOptional := readiness.mqttOptional
	readiness.mu.RUnlock()

	resp := ReadinessResponse{Ready: true, Checks: make(map[string]CheckStatus)}
	var failing []string

	check := func(name string, ok, optional bool, down string) {
		switch {
		case ok:
			resp.Checks[name] = CheckStatus{Status: "ok"}
		case optional:
			resp.Checks[name] = CheckStatus{Status: "degraded"}
		default:
			resp.Checks[name] = CheckStatus{Status: down}
			resp.Ready = false
			failing = append(failing, name)
		}
	}
	check("session", sessionReady, false, "not_ready")
	check("storage", storageConnected, false, "unavailable")
	check("mqtt", mqttConnected, mqttOptional, "unavailable")

	w.Header().Set("Content-Type", "application/json")
	if !resp.Ready {
		sort.Strings(failing)
		resp.NotReadyMsg = "not ready: " + strings.Join(failing, ", ")
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
