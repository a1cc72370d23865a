package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func webhook(t *testing.T) (string, <-chan AlertPayload) {
	t.Helper()
	ch := make(chan AlertPayload, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p AlertPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("bad alert payload: %v", err)
		}
		ch <- p
	}))
	t.Cleanup(srv.Close)
	return srv.URL, ch
}

func resetAlerts() {
	alertMu.Lock()
	defer alertMu.Unlock()
	alertConfig.WebhookURL = ""
	alertConfig.NovelID = ""
	alertConfig.MQTTDisconnectDelay = 30 * time.Second
	alertConfig.StorageDisconnectDelay = 5 * time.Second
	mqttWatch.reset()
	storageWatch.reset()
}

func receive(t *testing.T, ch <-chan AlertPayload) AlertPayload {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for alert")
	}
	return AlertPayload{}
}

func TestStorageOutageAlertAndRecovery(t *testing.T) {
	url, ch := webhook(t)
	t.Setenv(EnvAlertWebhookURL, url)
	t.Setenv(EnvStorageAlertDelay, "0s")
	InitAlerts("harbor")
	t.Cleanup(resetAlerts)

	if GetAlertWebhookURL() != url {
		t.Fatalf("expected webhook %s, got %s", url, GetAlertWebhookURL())
	}

	CheckAndAlertStorage(false)
	p := receive(t, ch)
	if p.Event != AlertStorageUnavailable || p.Severity != SeverityCritical || p.NovelID != "harbor" {
		t.Errorf("unexpected outage alert %+v", p)
	}

	// A second failed check does not alert again.
	CheckAndAlertStorage(false)
	CheckAndAlertStorage(true)
	p = receive(t, ch)
	if p.Severity != SeverityInfo {
		t.Errorf("expected recovery notice, got %+v", p)
	}
}

func TestMQTTAlertWaitsForDelay(t *testing.T) {
	url, ch := webhook(t)
	t.Setenv(EnvAlertWebhookURL, url)
	t.Setenv(EnvMQTTAlertDelay, "1h")
	InitAlerts("harbor")
	t.Cleanup(resetAlerts)

	CheckAndAlertMQTT(false)
	CheckAndAlertMQTT(false)
	select {
	case p := <-ch:
		t.Errorf("unexpected alert before delay: %+v", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSendAlertWithoutWebhookOnlyLogs(t *testing.T) {
	t.Setenv(EnvAlertWebhookURL, "")
	InitAlerts("harbor")
	t.Cleanup(resetAlerts)
	SendAlert(AlertSaveFailed, SeverityWarning, "novel save failed", nil)
}
