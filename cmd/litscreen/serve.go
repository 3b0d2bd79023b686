package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fentz26/litscreen/internal/audit"
	"github.com/fentz26/litscreen/internal/config"
	"github.com/fentz26/litscreen/internal/controlplane"
	"github.com/fentz26/litscreen/internal/registry"
	"github.com/fentz26/litscreen/internal/scheduler"
	"github.com/fentz26/litscreen/internal/sink"
	"github.com/fentz26/litscreen/internal/store"
	"github.com/fentz26/litscreen/internal/update"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds the graceful stop of the HTTP server.
const shutdownTimeout = 30 * time.Second

var (
	listenAddr  string
	auditDBPath string
	maxTasks    int
	backend     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the screening server",
	Long:  `Starts the HTTP API and web form. Submissions are screened in the background by a bounded worker pool.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides server.listen)")
	serveCmd.Flags().StringVar(&auditDBPath, "audit-db", "", "SQLite audit database; enables the audit trail")
	serveCmd.Flags().IntVar(&maxTasks, "max-tasks", 0, "maximum concurrent tasks (overrides scheduler.global_max)")
	serveCmd.Flags().StringVar(&backend, "registry", "", "task registry backend: memory or redis")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if listenAddr != "" {
		cfg.Server.Listen = listenAddr
	}
	if auditDBPath != "" {
		cfg.Audit.Enabled = true
		cfg.Audit.Path = auditDBPath
	}
	if maxTasks > 0 {
		cfg.Scheduler.GlobalMax = maxTasks
	}
	if backend != "" {
		cfg.Registry.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.Default()
	logger.Info("starting litscreen server", "version", update.Version, "listen", cfg.Server.Listen)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, closeReg, err := openRegistry(ctx, cfg.Registry)
	if err != nil {
		return err
	}
	defer closeReg()

	var st *store.Store
	if cfg.Audit.Enabled {
		st, err = store.New(cfg.Audit.Path)
		if err != nil {
			return err
		}
		logger.Info("audit trail enabled", "path", cfg.Audit.Path)
	}

	sched := scheduler.New(reg, audit.NewPDRWriter(st), &cfg.Scheduler, logger)
	if cfg.Sink.Enabled {
		s3Sink, err := sink.NewS3(ctx, cfg.Sink, logger)
		if err != nil {
			sched.Stop()
			closeStore(st)
			return err
		}
		sched.OnComplete(s3Sink.OnComplete)
		logger.Info("result sink enabled", "bucket", cfg.Sink.Bucket, "prefix", cfg.Sink.Prefix)
	}

	service := controlplane.NewService(sched, st, controlplane.ServiceConfig{
		Version:     update.Version,
		NewDelegate: cfg.AI.NewDelegate,
		Verify:      cfg.AI.Verify,
		CallTimeout: cfg.AI.CallTimeout,
		Dedup:       cfg.Screening.DedupMethod(),
		Logger:      logger,
	})
	gin.SetMode(gin.ReleaseMode)
	server := controlplane.NewServer(service, cfg.Server.Listen, cfg.Server.MaxUploadMB, cfg.AI.Model)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("received signal, initiating graceful shutdown")
	case err := <-serverErr:
		if err != nil {
			sched.Stop()
			closeStore(st)
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("stopping scheduler")
	sched.Stop()
	closeStore(st)

	logger.Info("shutdown complete")
	return nil
}

func openRegistry(ctx context.Context, rc config.RegistryConfig) (registry.Registry, func(), error) {
	if rc.Backend == config.BackendRedis {
		r, err := registry.NewRedisRegistry(ctx, rc.Redis)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("task registry on redis", "addr", rc.Redis.Addr)
		return r, func() { _ = r.Close() }, nil
	}
	return registry.NewMemoryRegistry(), func() {}, nil
}

func closeStore(st *store.Store) {
	if st == nil {
		return
	}
	if err := st.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "database close error: %v\n", err)
	}
}
