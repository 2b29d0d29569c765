package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"clipd/internal/api"
	"clipd/internal/config"
	"clipd/internal/ffmpeg"
	"clipd/internal/jobs"
	"clipd/internal/logger"
	"clipd/internal/reframe"
	"clipd/internal/store"
	"clipd/internal/stt"
	"clipd/internal/ytdlp"
)

// sweepInterval is how often finished job artifacts are checked against
// the retention window.
const sweepInterval = time.Hour

func newServeCommand(cmdCtx *commandContext) *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the clipd HTTP service and job workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address override (default from config)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger.Init(cfg.LogLevel)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Single-instance guard: two processes sharing one data dir would
	// both claim queued jobs.
	lock := flock.New(filepath.Join(cfg.DataDir, "clipd.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return errors.New("another clipd instance is already using this data directory")
	}
	defer lock.Unlock()

	st, err := store.NewSQLiteStore(filepath.Join(cfg.DataDir, "clipd.db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	requeued, err := st.ResetInterrupted()
	if err != nil {
		return fmt.Errorf("reset interrupted jobs: %w", err)
	}
	if requeued > 0 {
		logger.Info("re-queued interrupted jobs", "count", requeued)
	}

	modelCache := stt.NewModelCache()
	runner := &jobs.Runner{
		Cfg:    cfg,
		Store:  st,
		Dl:     ytdlp.NewClient(cfg.YtdlpPath),
		Prober: ffmpeg.NewProber(cfg.FFprobePath),
		Media:  ffmpeg.NewTranscoder(cfg.FFmpegPath),
		Engines: func(size string) stt.Engine {
			return stt.NewWhisperEngine(cfg.WhisperPath, cfg.WhisperModelDir, size, modelCache)
		},
		Detector: reframe.NewTool(cfg.PoseToolPath),
	}

	pool := jobs.NewWorkerPool(runner, st, cfg.Workers)
	pool.Start()
	defer pool.Stop()

	handler := api.NewHandler(st, pool, cfg)
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewRouter(handler),
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepLoop(ctx, cfg, st)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("clipd listening", "addr", cfg.ListenAddr, "workers", cfg.Workers, "data", cfg.DataDir)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	return nil
}

// sweepLoop removes artifacts of terminal jobs once they age past the
// retention window, plus orphaned uploads.
func sweepLoop(ctx context.Context, cfg *config.Config, st store.Store) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	sweep(cfg, st)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(cfg, st)
		}
	}
}

func sweep(cfg *config.Config, st store.Store) {
	cutoff := time.Now().Add(-time.Duration(cfg.RetentionHours) * time.Hour)

	entries, err := os.ReadDir(filepath.Join(cfg.DataDir, "jobs"))
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		job, err := st.GetJob(e.Name())
		if errors.Is(err, jobs.ErrJobNotFound) {
			// Directory without a record, drop it.
			os.RemoveAll(cfg.JobDir(e.Name()))
			continue
		}
		if err != nil {
			continue
		}
		if job.IsTerminal() && job.UpdatedAt.Before(cutoff) {
			if rmErr := os.RemoveAll(cfg.JobDir(job.ID)); rmErr == nil {
				logger.Debug("swept job artifacts", "job", job.ID)
			}
		}
	}

	uploads, err := os.ReadDir(filepath.Join(cfg.DataDir, "uploads"))
	if err != nil {
		return
	}
	for _, e := range uploads {
		info, err := e.Info()
		if err == nil && info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(cfg.DataDir, "uploads", e.Name()))
		}
	}
}
