package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EditorConfig is the editor.yaml file.
type EditorConfig struct {
	Version int `yaml:"version"`
	Editor  struct {
		Name            string `yaml:"name"`
		LayoutDirection string `yaml:"layout_direction"`
	} `yaml:"editor"`
	Network struct {
		UIPort int `yaml:"ui_port"`
	} `yaml:"network"`
	Storage struct {
		Driver     string `yaml:"driver"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"storage"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"logging"`
}

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// UIPort returns the configured UI port, defaulting to 8080 if not set.
func (c *EditorConfig) UIPort() int {
	if c.Network.UIPort == 0 {
		return 8080
	}
	return c.Network.UIPort
}

// Name returns the editor's display name.
func (c *EditorConfig) Name() string {
	if c.Editor.Name == "" {
		return "novelgraph"
	}
	return c.Editor.Name
}

// Direction returns the layout direction, TB unless configured.
func (c *EditorConfig) Direction() string {
	if c.Editor.LayoutDirection == "" {
		return "TB"
	}
	return strings.ToUpper(c.Editor.LayoutDirection)
}

// StorageDriver returns the snapshot store driver, postgres unless configured.
func (c *EditorConfig) StorageDriver() string {
	if c.Storage.Driver == "" {
		return DriverPostgres
	}
	return strings.ToLower(c.Storage.Driver)
}

// SQLitePath returns the SQLite database path.
func (c *EditorConfig) SQLitePath() string {
	if c.Storage.SQLitePath == "" {
		return "novelgraph.db"
	}
	return c.Storage.SQLitePath
}

// MQTTBroker returns the broker URL for save notices.
func (c *EditorConfig) MQTTBroker() string {
	if c.MQTT.Broker == "" {
		return "tcp://localhost:1883"
	}
	return c.MQTT.Broker
}

// TopicPrefix returns the MQTT topic prefix.
func (c *EditorConfig) TopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "novelgraph"
	}
	return strings.TrimSuffix(c.MQTT.TopicPrefix, "/")
}

// Default returns the configuration used when no file is given.
func Default() *EditorConfig {
	return &EditorConfig{Version: 1}
}

// LoadEditorConfig reads and checks editor.yaml.
func LoadEditorConfig(path string) (*EditorConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg EditorConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported editor.yaml version: %d", cfg.Version)
	}
	switch cfg.StorageDriver() {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.Storage.Driver)
	}
	switch cfg.Direction() {
	case "TB", "LR":
	default:
		return nil, fmt.Errorf("unsupported layout_direction: %q", cfg.Editor.LayoutDirection)
	}

	return &cfg, nil
}
