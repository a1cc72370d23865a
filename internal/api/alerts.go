package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/xchatlife/novelgraph/internal/log"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert event types
const (
	AlertMQTTDisconnected   = "mqtt_disconnected"
	AlertStorageUnavailable = "storage_unavailable"
	AlertSaveFailed         = "save_failed"
)

// Alert environment variables.
const (
	EnvAlertWebhookURL   = "NOVEL_ALERT_WEBHOOK_URL"
	EnvMQTTAlertDelay    = "NOVEL_MQTT_ALERT_DELAY"
	EnvStorageAlertDelay = "NOVEL_STORAGE_ALERT_DELAY"
)

// AlertPayload is the JSON structure sent to the webhook.
type AlertPayload struct {
	NovelID   string                 `json:"novel_id"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AlertConfig holds alert configuration.
type AlertConfig struct {
	WebhookURL             string
	NovelID                string
	MQTTDisconnectDelay    time.Duration // How long MQTT must be disconnected before alerting
	StorageDisconnectDelay time.Duration // How long storage must be unreachable before alerting
}

var (
	alertConfig = &AlertConfig{
		MQTTDisconnectDelay:    30 * time.Second,
		StorageDisconnectDelay: 5 * time.Second,
	}
	alertMu sync.Mutex

	mqttWatch    = &outageWatch{event: AlertMQTTDisconnected, name: "MQTT broker"}
	storageWatch = &outageWatch{event: AlertStorageUnavailable, name: "snapshot storage"}

	alertMonitorInitialized bool
)

// InitAlerts initializes the alert system from environment variables.
func InitAlerts(novelID string) {
	alertMu.Lock()
	defer alertMu.Unlock()

	alertConfig.NovelID = novelID
	alertConfig.WebhookURL = os.Getenv(EnvAlertWebhookURL)

	if delayStr := os.Getenv(EnvMQTTAlertDelay); delayStr != "" {
		if d, err := time.ParseDuration(delayStr); err == nil {
			alertConfig.MQTTDisconnectDelay = d
		}
	}
	if delayStr := os.Getenv(EnvStorageAlertDelay); delayStr != "" {
		if d, err := time.ParseDuration(delayStr); err == nil {
			alertConfig.StorageDisconnectDelay = d
		}
	}

	if alertConfig.WebhookURL != "" {
		log.WithComponent("alerts").Info("alerts enabled",
			"mqtt_delay", alertConfig.MQTTDisconnectDelay,
			"storage_delay", alertConfig.StorageDisconnectDelay)
	}

	// Assume connected at start
	mqttWatch.reset()
	storageWatch.reset()
	alertMonitorInitialized = true
}

// GetAlertWebhookURL returns the configured webhook URL (for testing).
func GetAlertWebhookURL() string {
	alertMu.Lock()
	defer alertMu.Unlock()
	return alertConfig.WebhookURL
}

// SendAlert sends an alert to the configured webhook (best-effort, non-blocking).
func SendAlert(event, severity, message string, details map[string]interface{}) {
	alertMu.Lock()
	webhookURL := alertConfig.WebhookURL
	novelID := alertConfig.NovelID
	alertMu.Unlock()

	logger := log.WithComponent("alerts")
	if webhookURL == "" {
		// No webhook configured, log instead
		logger.Warn("alert", "event", event, "severity", severity, "msg", message, "details", details)
		return
	}

	if novelID == "" {
		novelID = "unknown"
	}

	payload := AlertPayload{
		NovelID:   novelID,
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Severity:  severity,
		Message:   message,
		Details:   details,
	}

	// Send asynchronously to avoid blocking
	go sendWebhook(webhookURL, payload)
}

// sendWebhook performs the actual HTTP POST (runs in goroutine).
func sendWebhook(url string, payload AlertPayload) {
	logger := log.WithComponent("alerts")
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal alert payload", "error", err)
		return
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		logger.Error("webhook POST failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logger.Error("webhook rejected alert", "status", resp.StatusCode)
	}
}

// outageWatch tracks one dependency's connection state for alerting.
type outageWatch struct {
	event     string
	name      string
	downSince time.Time
	alertSent bool
	lastUp    bool
}

func (o *outageWatch) reset() {
	o.downSince = time.Time{}
	o.alertSent = false
	o.lastUp = true
}

// observe records the state at now and sends an alert once the dependency
// has been down for delay, plus a recovery notice after such an alert.
// Callers hold alertMu.
func (o *outageWatch) observe(up bool, now time.Time, delay time.Duration, severity string) {
	if up {
		if !o.lastUp && o.alertSent {
			go SendAlert(o.event, SeverityInfo, o.name+" restored", map[string]interface{}{
				"recovered_at": now.UTC().Format(time.RFC3339),
			})
		}
		o.reset()
		return
	}

	if o.lastUp {
		// Just became disconnected
		o.downSince = now
	}
	o.lastUp = false

	if !o.alertSent && !o.downSince.IsZero() {
		down := now.Sub(o.downSince)
		if down >= delay {
			o.alertSent = true
			go SendAlert(o.event, severity, o.name+" unavailable", map[string]interface{}{
				"disconnected_since":   o.downSince.UTC().Format(time.RFC3339),
				"disconnected_seconds": int(down.Seconds()),
			})
		}
	}
}

// CheckAndAlertMQTT checks MQTT state and sends alert if disconnected too long.
// Should be called periodically or on state change.
func CheckAndAlertMQTT(connected bool) {
	alertMu.Lock()
	defer alertMu.Unlock()

	if !alertMonitorInitialized {
		return
	}
	mqttWatch.observe(connected, time.Now(), alertConfig.MQTTDisconnectDelay, SeverityWarning)
}

// CheckAndAlertStorage checks storage state and sends alert if unavailable.
func CheckAndAlertStorage(connected bool) {
	alertMu.Lock()
	defer alertMu.Unlock()

	if !alertMonitorInitialized {
		return
	}
	storageWatch.observe(connected, time.Now(), alertConfig.StorageDisconnectDelay, SeverityCritical)
}

// Pinger reports whether a dependency answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StartAlertMonitor periodically pings storage, reads the MQTT state and
// updates readiness and alerts until ctx is cancelled.
func StartAlertMonitor(ctx context.Context, checkInterval time.Duration, storage Pinger, mqttUp func() bool) {
	go func() {
		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			pingCtx, cancel := context.WithTimeout(ctx, checkInterval)
			storageUp := storage.Ping(pingCtx) == nil
			cancel()
			SetStorageConnected(storageUp)
			CheckAndAlertStorage(storageUp)

			if mqttUp != nil {
				up := mqttUp()
				readiness.mu.Lock()
				readiness.mqttConnected = up
				readiness.mu.Unlock()
				CheckAndAlertMQTT(up)
			}
		}
	}()
}
