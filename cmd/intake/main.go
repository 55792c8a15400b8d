// Command intake turns recorded Thai customer calls into structured customer
// records: transcribe, extract, validate, and ask back for what is missing.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/intake/internal/app"
	"github.com/MrWong99/intake/internal/config"
	"github.com/MrWong99/intake/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// errReported marks a failure that the command already reported on stdout.
var errReported = errors.New("run failed")

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(registerBuiltinProviders)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "intake: %v\n", err)
		}
		return 1
	}
	return 0
}

// rootOptions holds the persistent flags and the shared setup of every
// subcommand.
type rootOptions struct {
	configPath string
	envFile    string
	debug      bool

	// register fills the provider registry. Tests substitute mocks.
	register func(*config.Registry)

	level slog.LevelVar
	cfg   *config.Config
}

func newRootCmd(register func(*config.Registry)) *cobra.Command {
	ro := &rootOptions{register: register}

	root := &cobra.Command{
		Use:           "intake",
		Short:         "Voice customer intake: speech to a validated customer record",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&ro.configPath, "config", "intake.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&ro.envFile, "env-file", ".env", "dotenv file loaded before the config")
	root.PersistentFlags().BoolVar(&ro.debug, "debug", false, "force debug logging")

	root.AddCommand(
		newProcessCmd(ro),
		newBatchCmd(ro),
		newServeCmd(ro),
		newVersionCmd(),
	)
	return root
}

// setup loads the environment and config and installs the logger.
func (ro *rootOptions) setup(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(ro.envFile); err != nil {
		return err
	}
	cfg, err := config.LoadOrDefault(ro.configPath)
	if err != nil {
		return err
	}
	ro.cfg = cfg

	level := cfg.Server.LogLevel.Level()
	if ro.debug {
		level = slog.LevelDebug
	}
	ro.level.Set(level)
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), &ro.level))
	return nil
}

// newApp builds the application from the loaded config.
func (ro *rootOptions) newApp(metrics *observe.Metrics) (*app.App, error) {
	reg := config.NewRegistry()
	ro.register(reg)
	opts := []app.Option{app.WithLevelVar(&ro.level)}
	if metrics != nil {
		opts = append(opts, app.WithMetrics(metrics))
	}
	return app.New(ro.cfg, reg, opts...)
}

func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
