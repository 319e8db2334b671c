package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/haldane-labs/backupd/internal/logger"
	"github.com/haldane-labs/backupd/internal/metrics"
	"github.com/haldane-labs/backupd/internal/receiver"
	"github.com/haldane-labs/backupd/internal/retention"
	"github.com/haldane-labs/backupd/internal/tlsconf"
	"github.com/haldane-labs/backupd/internal/wire"
	"github.com/haldane-labs/backupd/pkg/config"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the receiver server in the foreground",
	Long: `serve loads the configuration named by --config, initializes logging
and metrics, and blocks accepting uploads until SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if GetConfigFile() == "" {
		return fmt.Errorf("--config is required")
	}

	cfg, err := config.LoadReceiver(GetConfigFile())
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

	retentionLimits, err := parseRetentionLimits(cfg.Limits.MaximumFiles)
	if err != nil {
		return fmt.Errorf("parsing limits.maximum_files: %w", err)
	}

	tlsCfg, err := tlsconf.Server(tlsconf.Config{
		CertFile: cfg.TLS.CertFile,
		KeyFile:  cfg.TLS.KeyFile,
		CAFile:   cfg.TLS.CAFile,
	})
	if err != nil {
		return fmt.Errorf("building TLS configuration: %w", err)
	}

	reg := metrics.New()

	srv := receiver.New(receiver.Config{
		SocketAddress: cfg.SocketAddress,
		TLS:           tlsCfg,
		BackupsRoot:   cfg.BackupsRoot,
		Limits: receiver.Limits{
			MaximumPayloadBytes:   cfg.Limits.MaximumPayloadBytes,
			MaximumBackupsPerHour: cfg.Limits.MaximumBackupsPerHour,
			TimeoutSeconds:        cfg.Limits.TimeoutSeconds,
		},
		RetentionLimit: retentionLimits,
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

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Info("receiverd listening", "addr", cfg.SocketAddress, "backups_root", cfg.BackupsRoot)

	select {
	case <-sigCh:
		signal.Stop(sigCh)
		log.Info("shutdown signal received, draining connections")
		if err := srv.Close(); err != nil {
			log.Error("closing listener", logger.Err(err))
		}
		srv.Wait()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(ctx)
		}
		return <-serveDone
	case err := <-serveDone:
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(ctx)
		}
		return err
	}
}

func parseRetentionLimits(maximumFiles map[string]int) (retention.Limits, error) {
	limits := make(retention.Limits, len(maximumFiles))
	for name, n := range maximumFiles {
		cadence, err := wire.ParseCadence(name)
		if err != nil {
			return nil, err
		}
		limits[cadence] = n
	}
	return limits, nil
}
