package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xchatlife/novelgraph/internal/api"
	"github.com/xchatlife/novelgraph/internal/config"
	"github.com/xchatlife/novelgraph/internal/events"
	"github.com/xchatlife/novelgraph/internal/layout"
	"github.com/xchatlife/novelgraph/internal/log"
	"github.com/xchatlife/novelgraph/internal/mqtt"
	"github.com/xchatlife/novelgraph/internal/session"
	"github.com/xchatlife/novelgraph/internal/snapshot"
	"github.com/xchatlife/novelgraph/internal/storage/postgres"
	"github.com/xchatlife/novelgraph/internal/storage/sqlite"
	"github.com/xchatlife/novelgraph/internal/version"
)

// storage is what the editor needs from a snapshot backend.
type storage interface {
	snapshot.Repository
	events.Sink
	Ping(ctx context.Context) error
	Close() error
}

type flags struct {
	configPath string
	port       int
	direction  string
	monitor    time.Duration
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "editor <novel-id>",
		Short:         "Serve the branching story editor for one novel",
		Args:          cobra.ExactArgs(1),
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err := run(ctx, args[0], f)
			if err != nil {
				log.L().Error("editor stopped", "error", err)
			}
			return err
		},
	}
	cmd.SetVersionTemplate("{{ .Version }}\n")
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to editor.yaml")
	cmd.Flags().IntVarP(&f.port, "port", "p", 0, "HTTP port (overrides network.ui_port)")
	cmd.Flags().StringVar(&f.direction, "direction", "", "layout direction TB or LR (overrides editor.layout_direction)")
	cmd.Flags().DurationVar(&f.monitor, "monitor-interval", 10*time.Second, "dependency check interval")
	return cmd
}

func loadConfig(path string) (*config.EditorConfig, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadEditorConfig(path)
}

func initLogging(cfg *config.EditorConfig) {
	opts := log.FromEnv()
	if cfg.Logging.Level != "" && os.Getenv("NOVEL_LOG_LEVEL") == "" {
		opts.Level = cfg.Logging.Level
	}
	if cfg.Logging.Format != "" && os.Getenv("NOVEL_LOG_FORMAT") == "" {
		opts.Format = cfg.Logging.Format
	}
	if cfg.Logging.File != "" && opts.File == "" {
		opts.File = cfg.Logging.File
	}
	log.Init(opts)
}

func openStorage(ctx context.Context, cfg *config.EditorConfig, novelID string) (storage, error) {
	switch cfg.StorageDriver() {
	case config.DriverSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath(), novelID)
	case config.DriverPostgres:
		return postgres.New(ctx, novelID)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver())
	}
}

func run(ctx context.Context, novelID string, f flags) error {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	initLogging(cfg)
	defer log.Close()

	logger := log.WithNovel(log.WithComponent("editor"), novelID)

	dirName := cfg.Direction()
	if f.direction != "" {
		dirName = f.direction
	}
	dir, err := layout.ParseDirection(dirName)
	if err != nil {
		return err
	}
	port := cfg.UIPort()
	if f.port != 0 {
		port = f.port
	}

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "editor starting", map[string]interface{}{
		"service":  "editor",
		"novel_id": novelID,
		"hostname": hostname,
		"pid":      os.Getpid(),
		"version":  version.Version,
	})

	store, err := openStorage(ctx, cfg, novelID)
	if err != nil {
		events.Emit("error", "system.error", "storage unavailable", map[string]interface{}{
			"driver": cfg.StorageDriver(),
			"error":  err.Error(),
		})
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()
	events.SetSink(store)
	defer events.SetSink(nil)

	sessOpts := []session.Option{
		session.WithEngine(layout.NewLayered()),
		session.WithDirection(dir),
		session.WithTitle(cfg.Name()),
	}

	var broker *mqtt.Client
	if cfg.MQTT.Enabled {
		broker = mqtt.NewClient(cfg.MQTTBroker(), "novelgraph-editor-"+novelID)
		broker.Start()
		defer broker.Disconnect()
		sessOpts = append(sessOpts, session.WithNotifier(mqtt.NewPublisher(broker, cfg.TopicPrefix())))
	}

	sess, err := session.Open(ctx, store, novelID, sessOpts...)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	api.InitAuth(creds)
	if err := api.InitTLS(); err != nil {
		return err
	}
	api.InitMetrics()
	api.InitAlerts(novelID)

	api.SetSessionReady(true)
	api.SetStorageConnected(true)
	var mqttUp func() bool
	if broker != nil {
		api.SetMQTTConnected(broker.IsConnected(), false)
		mqttUp = broker.IsConnected
	}
	api.StartAlertMonitor(ctx, f.monitor, store, mqttUp)

	logger.Info("editor listening", "port", port, "storage", cfg.StorageDriver(), "direction", string(dir))
	err = api.NewServer(sess).Run(ctx, port)

	events.Emit("info", "system.shutdown", "editor stopping", map[string]interface{}{
		"service":  "editor",
		"novel_id": novelID,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
