package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haskel/quorum/internal/config"
	"github.com/haskel/quorum/internal/engine"
	"github.com/haskel/quorum/internal/engine/scheduler"
	"github.com/haskel/quorum/internal/logger"
	"github.com/haskel/quorum/internal/monitor"
	"github.com/haskel/quorum/internal/server"
	"github.com/haskel/quorum/internal/storage/backend"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the quorum server",
	Long:  `Start the quorum server in foreground mode.`,
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Override port if specified via flag
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = host
	}

	// Create logger
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	log.Info("quorum starting",
		"version", Version,
		"config", cfgFile,
		"backend", cfg.Persistence.Backend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open storage
	store, err := backend.Open(ctx, cfg.StorageConfig(), log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	predictors, err := cfg.Predictors()
	if err != nil {
		store.Close()
		return err
	}

	opts := append(cfg.EngineOptions(),
		engine.WithStore(store),
		engine.WithLogger(log),
	)

	// Resource sampling feeds the selector's memory and cpu figures
	var sampler *monitor.Sampler
	if cfg.Monitoring.Enabled {
		dataDir := cfg.Persistence.DataDir
		if cfg.Persistence.Backend == string(backend.KindMemory) {
			dataDir = ""
		}
		sampler = monitor.NewSampler(monitor.DefaultMonitors(dataDir, log), cfg.MonitoringInterval(), logger.Component(log, "monitor"))
		if err := sampler.Start(ctx); err != nil {
			store.Close()
			return fmt.Errorf("failed to start sampler: %w", err)
		}
		opts = append(opts, engine.WithResourceSampler(sampler))
	}

	eng, err := engine.New(cfg.EngineConfig(), predictors, opts...)
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to create engine: %w", err)
	}

	// Load persisted state
	if err := eng.Load(ctx); err != nil {
		log.Warn("failed to load persisted state", "error", err)
	}

	sched := scheduler.NewScheduler(eng, scheduler.Config{
		Interval: cfg.TickInterval(),
		Logger:   log,
	})
	if err := sched.Start(ctx); err != nil {
		store.Close()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Write PID file if configured
	if cfg.Server.PIDFile != "" {
		if err := writePIDFile(cfg.Server.PIDFile); err != nil {
			log.Warn("failed to write PID file", "error", err)
		} else {
			defer os.Remove(cfg.Server.PIDFile)
		}
	}

	// Create and start server
	srv := server.New(cfg, eng, log, Version)
	srv.SetComponents(&server.Components{
		Sampler:   sampler,
		Scheduler: sched,
	})
	srv.MarkReady()

	// Signal channels
	sighupCh := make(chan os.Signal, 1)
	sigCh := make(chan os.Signal, 1)
	shutdownDone := make(chan struct{})

	signal.Notify(sighupCh, syscall.SIGHUP)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Handle SIGHUP for hot-reload
	go func() {
		for {
			select {
			case <-sighupCh:
				log.Info("SIGHUP received, reloading configuration")

				newCfg, err := loadConfig()
				if err != nil {
					log.Error("invalid configuration, reload aborted", "error", err)
					continue
				}

				srv.ReloadConfig(newCfg)
			case <-shutdownDone:
				return
			}
		}
	}()

	// Handle shutdown signals
	go func() {
		<-sigCh

		log.Info("shutdown signal received")

		// Stop receiving signals
		signal.Stop(sighupCh)
		signal.Stop(sigCh)
		close(shutdownDone)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", "error", err)
		}

		sched.Stop()

		// Save predictor state, then close storage (flushes buffered writes)
		if err := eng.Close(shutdownCtx); err != nil {
			log.Error("engine shutdown error", "error", err)
		}
		if err := store.Close(); err != nil {
			log.Error("storage shutdown error", "error", err)
		}

		if sampler != nil {
			sampler.Stop()
		}
		cancel()
	}()

	log.Info("quorum ready", "addr", srv.Addr())

	if err := srv.Start(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("quorum stopped")
	return nil
}

// loadConfig reads --config, or the defaults with environment overrides.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.LoadDefault()
	}
	return config.Load(cfgFile)
}

func writePIDFile(path string) error {
	pid := os.Getpid()
	return os.WriteFile(path, []byte(fmt.Sprintf("%d", pid)), 0644)
}
