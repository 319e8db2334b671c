package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haldane-labs/backupd/internal/history"
	"github.com/haldane-labs/backupd/internal/logger"
	"github.com/haldane-labs/backupd/internal/metrics"
	"github.com/haldane-labs/backupd/internal/scheduler"
	"github.com/haldane-labs/backupd/internal/sender"
	"github.com/haldane-labs/backupd/internal/source"
	"github.com/haldane-labs/backupd/internal/source/file"
	"github.com/haldane-labs/backupd/internal/tlsconf"
	"github.com/haldane-labs/backupd/internal/wire"
	"github.com/haldane-labs/backupd/pkg/config"
	"github.com/spf13/cobra"
)

var pollInterval time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the polling scheduler in the foreground",
	Long: `serve loads the configuration named by --config, initializes logging
and metrics, and blocks running polling passes until SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&pollInterval, "interval", scheduler.DefaultInterval, "spacing between polling passes")
}

func runServe(cmd *cobra.Command, args []string) error {
	if GetConfigFile() == "" {
		return fmt.Errorf("--config is required")
	}

	cfg, err := config.LoadSender(GetConfigFile())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	log := logger.Get()

	sources, err := buildSources(cfg.Sources)
	if err != nil {
		return fmt.Errorf("building sources: %w", err)
	}

	hist, err := history.LoadOrCreate(cfg.HistoryPath)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	tlsCfg, err := tlsconf.Client(tlsconf.Config{
		CertFile: cfg.Endpoint.TLS.CertFile,
		KeyFile:  cfg.Endpoint.TLS.KeyFile,
		CAFile:   cfg.Endpoint.TLS.CAFile,
	})
	if err != nil {
		return fmt.Errorf("building TLS configuration: %w", err)
	}

	endpoint := sender.New(sender.Config{
		ReceiverAddress: cfg.Endpoint.ReceiverAddress,
		ReceiverPort:    cfg.Endpoint.ReceiverPort,
		TLS:             tlsCfg,
	}, log)

	reg := metrics.New()

	sched := scheduler.New(scheduler.Config{
		Sources:  sources,
		Endpoint: endpoint,
		History:  hist,
		Interval: pollInterval,
	}, log, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var metricsSrv *metrics.Server
	if cfg.Metrics.Addr != "" {
		metricsSrv = metrics.NewServer(cfg.Metrics.Addr, reg)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil {
				log.Error("metrics server stopped", logger.Err(err))
			}
		}()
		log.Info("metrics endpoint enabled", "addr", cfg.Metrics.Addr)
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- sched.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Info("senderd polling", "interval", pollInterval, "sources", len(sources))

	select {
	case <-sigCh:
		signal.Stop(sigCh)
		log.Info("shutdown signal received")
		cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(ctx)
		}
		<-runDone
		return nil
	case err := <-runDone:
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(ctx)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

func buildSources(cfgs []config.SourceConfig) ([]source.Source, error) {
	sources := make([]source.Source, 0, len(cfgs))
	for _, sc := range cfgs {
		switch sc.Kind {
		case "file":
			cadences, err := parseCadences(sc.Cadences)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", sc.ServiceName, err)
			}
			src, err := file.New(file.Config{
				ServiceName:   sc.ServiceName,
				Directory:     sc.Directory,
				Cadences:      cadences,
				FileExtension: sc.FileExtension,
			})
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
		default:
			return nil, fmt.Errorf("source %s: unsupported kind %q", sc.ServiceName, sc.Kind)
		}
	}
	return sources, nil
}

func parseCadences(names []string) ([]wire.Cadence, error) {
	out := make([]wire.Cadence, len(names))
	for i, name := range names {
		c, err := wire.ParseCadence(name)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}
