package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/intake/internal/config"
	"github.com/MrWong99/intake/internal/observe"
	"github.com/MrWong99/intake/internal/server"
)

func newServeCmd(ro *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the upload page and POST /process_audio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := ro.setup(cmd); err != nil {
				return err
			}
			return serve(cmd.Context(), cmd.OutOrStdout(), ro)
		},
	}
}

// serve runs the HTTP surface until ctx is done, then shuts down gracefully.
func serve(ctx context.Context, out io.Writer, ro *rootOptions) error {
	cfg := ro.cfg
	slog.Info("intake starting",
		"config", ro.configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", ro.level.Level(),
	)

	var metricsHandler http.Handler
	if cfg.Observe.Metrics {
		shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    cfg.Observe.ServiceName,
			ServiceVersion: version,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer shutdown(shutdownOTel)
		metricsHandler = observe.MetricsHandler()
	}

	application, err := ro.newApp(observe.DefaultMetrics())
	if err != nil {
		return err
	}
	defer shutdown(application.Shutdown)

	handler := server.New(application, server.Config{
		UploadDir:      cfg.Server.UploadDir,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RequestTimeout: cfg.Server.RequestTimeout,
		Metrics:        observe.DefaultMetrics(),
		MetricsHandler: metricsHandler,
		Checkers:       application.Checkers(),
	})
	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(ro.configPath); err == nil {
		onChange := application.Apply
		if ro.debug {
			// --debug pins the level for the life of the process.
			onChange = func(old, new *config.Config, d config.ConfigDiff) {
				d.LogLevelChanged = false
				application.Apply(old, new, d)
			}
		}
		w, err := config.NewWatcher(ro.configPath, onChange)
		if err != nil {
			return err
		}
		g.Go(func() error {
			w.Run(gctx)
			return nil
		})
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}

	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	printStartupSummary(out, ro)
	slog.Info("server ready, press Ctrl+C to shut down")

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("goodbye")
	return nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, ro *rootOptions) {
	cfg := ro.cfg
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║         Intake — startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider(w, "LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	fmt.Fprintf(w, "║  STT fallbacks   : %-19d ║\n", len(cfg.Providers.FallbackSTT))
	fmt.Fprintf(w, "║  LLM fallbacks   : %-19d ║\n", len(cfg.Providers.FallbackLLM))
	fmt.Fprintf(w, "║  Upload dir      : %-19s ║\n", truncate(cfg.Server.UploadDir))
	if cfg.Observe.Metrics {
		fmt.Fprintf(w, "║  Metrics         : %-19s ║\n", "/metrics")
	} else {
		fmt.Fprintf(w, "║  Metrics         : %-19s ║\n", "(disabled)")
	}
	fmt.Fprintf(w, "║  Listen addr     : %-19s ║\n", truncate(cfg.Server.ListenAddr))
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", kind, truncate(value))
}

func truncate(s string) string {
	if r := []rune(s); len(r) > 19 {
		return string(r[:18]) + "…"
	}
	return s
}
