package api

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/xchatlife/novelgraph/internal/log"
)

// TLS environment variables.
const (
	EnvTLSCert = "NOVEL_TLS_CERT"
	EnvTLSKey  = "NOVEL_TLS_KEY"
)

// certExpiryWarning is how close to expiry a certificate triggers a warning
// at startup.
const certExpiryWarning = 14 * 24 * time.Hour

// ErrTLSIncomplete is returned when only one of the certificate and key is
// configured.
var ErrTLSIncomplete = errors.New("tls: both " + EnvTLSCert + " and " + EnvTLSKey + " must be set")

// TLSSettings names the PEM files the editor serves with.
type TLSSettings struct {
	CertFile string
	KeyFile  string
}

var tlsState struct {
	mu       sync.RWMutex
	settings *TLSSettings
	config   *tls.Config
	notAfter time.Time
}

// InitTLS reads the certificate paths from the environment and loads the key
// pair. Plain HTTP is used when neither is set. A half configuration or an
// unreadable pair is an error so the editor never silently downgrades.
func InitTLS() error {
	certFile := os.Getenv(EnvTLSCert)
	keyFile := os.Getenv(EnvTLSKey)

	switch {
	case certFile == "" && keyFile == "":
		resetTLS()
		log.WithComponent("api").Debug("tls disabled")
		return nil
	case certFile == "" || keyFile == "":
		resetTLS()
		return ErrTLSIncomplete
	}
	return ConfigureTLS(TLSSettings{CertFile: certFile, KeyFile: keyFile})
}

// ConfigureTLS loads the key pair named by s and makes it the serving
// configuration.
func ConfigureTLS(s TLSSettings) error {
	cert, err := tls.LoadX509KeyPair(s.CertFile, s.KeyFile)
	if err != nil {
		resetTLS()
		return fmt.Errorf("tls: load %s: %w", s.CertFile, err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		resetTLS()
		return fmt.Errorf("tls: parse %s: %w", s.CertFile, err)
	}

	logger := log.WithComponent("api")
	now := time.Now()
	if now.After(leaf.NotAfter) {
		resetTLS()
		return fmt.Errorf("tls: certificate %s expired at %s", s.CertFile, leaf.NotAfter.UTC().Format(time.RFC3339))
	}
	if leaf.NotAfter.Sub(now) < certExpiryWarning {
		logger.Warn("tls certificate expires soon", "cert", s.CertFile, "not_after", leaf.NotAfter.UTC())
	}

	tlsState.mu.Lock()
	tlsState.settings = &s
	tlsState.config = &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	tlsState.notAfter = leaf.NotAfter
	tlsState.mu.Unlock()

	logger.Info("tls enabled", "cert", s.CertFile, "subject", leaf.Subject.CommonName, "not_after", leaf.NotAfter.UTC())
	return nil
}

func resetTLS() {
	tlsState.mu.Lock()
	tlsState.settings = nil
	tlsState.config = nil
	tlsState.notAfter = time.Time{}
	tlsState.mu.Unlock()
}

// IsTLSEnabled reports whether a key pair is loaded.
func IsTLSEnabled() bool {
	tlsState.mu.RLock()
	defer tlsState.mu.RUnlock()
	return tlsState.config != nil
}

// GetTLSSettings returns the configured file paths, or nil when TLS is off.
func GetTLSSettings() *TLSSettings {
	tlsState.mu.RLock()
	defer tlsState.mu.RUnlock()
	if tlsState.settings == nil {
		return nil
	}
	s := *tlsState.settings
	return &s
}

// serverTLSConfig returns a copy of the loaded configuration, or nil.
func serverTLSConfig() *tls.Config {
	tlsState.mu.RLock()
	defer tlsState.mu.RUnlock()
	if tlsState.config == nil {
		return nil
	}
	return tlsState.config.Clone()
}

// certNotAfter returns the expiry of the serving certificate, zero when TLS
// is off.
func certNotAfter() time.Time {
	tlsState.mu.RLock()
	defer tlsState.mu.RUnlock()
	return tlsState.notAfter
}
