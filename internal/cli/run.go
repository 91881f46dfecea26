package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/sometimes/internal/config"
	"github.com/roach88/sometimes/internal/engine"
	"github.com/roach88/sometimes/internal/metrics"
	"github.com/roach88/sometimes/internal/server"
	"github.com/roach88/sometimes/internal/transport"
	"github.com/roach88/sometimes/internal/transport/telegram"
	"github.com/roach88/sometimes/internal/weather"
	"github.com/roach88/sometimes/internal/worker"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// Presenter overrides the configured delivery presenter (for testing).
	Presenter transport.Presenter
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the delivery daemon",
		Long: `Start the delivery daemon.

The daemon loads the corpus, opens the SQLite database (creating it if it
doesn't exist), re-arms any pending delivery and starts the single-writer
event loop. A cron job reconciles with the transport periodically. When
http.addr is configured, a control API and /metrics are served.

Example:
  sometimes run
  sometimes run --db /tmp/sometimes.db --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts, cmd)
		},
	}

	return cmd
}

// setupLogging installs the default slog handler on w.
func setupLogging(cfg config.Config, verbose bool, w io.Writer) {
	level := cfg.Level()
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, hopts)
	} else {
		handler = slog.NewTextHandler(w, hopts)
	}
	slog.SetDefault(slog.New(handler))
}

// presenter builds the configured delivery presenter.
func presenter(cfg config.Config, out io.Writer) (transport.Presenter, error) {
	switch cfg.Transport.Kind {
	case config.TransportTelegram:
		sender, err := telegram.NewBotSender(cfg.Transport.Telegram.Token)
		if err != nil {
			return nil, err
		}
		return telegram.NewPresenter(sender, cfg.Transport.Telegram.ChatID), nil
	default:
		return transport.NewWriterPresenter(out), nil
	}
}

func runDaemon(opts *RunOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	// Logging is configured from the config file before anything else logs.
	if cfg, err := config.Load(opts.ConfigPath); err == nil {
		setupLogging(cfg, opts.Verbose, cmd.ErrOrStderr())
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	a, err := openApp(ctx, opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer a.Close()

	p := opts.Presenter
	if p == nil {
		p, err = presenter(a.cfg, cmd.OutOrStdout())
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeConfig, "failed to set up transport", err)
		}
	}
	tr := transport.NewTimer(p, transport.WithNow(a.clock.Now))
	defer tr.Close()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	collector.ObserveLedger(a.ledger)

	eng := a.newEngine(tr, engine.WithMetrics(collector))

	w := worker.New(eng, a.cfg.Location())
	if err := w.ScheduleReconcile(worker.Every(a.cfg.ReconcileEvery)); err != nil {
		return f.fail(ExitCommandError, ErrCodeConfig, "invalid reconcile schedule", err)
	}
	if cache, ok := a.weather.(*weather.Cache); ok {
		// Refresh the reading ahead of use.
		err := w.AddJob("weather", worker.Every(a.cfg.Weather.CacheTTL), func() {
			cache.Refresh(ctx)
		})
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeConfig, "invalid weather schedule", err)
		}
	}
	w.Start()
	defer w.Stop()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	go eng.Listen(ctx, tr.Fired())

	if addr := a.cfg.HTTP.Addr; addr != "" {
		router := server.NewRouter(&server.Deps{
			Scheduler: eng,
			History:   a.ledger,
			Gatherer:  reg,
			Now:       a.clock.Now,
		})
		go func() {
			if err := server.Serve(ctx, addr, router); err != nil {
				slog.Error("http server failed", "addr", addr, "error", err)
			}
		}()
	}

	// Replace any stale pending delivery with a fresh plan.
	eng.Enqueue(engine.ReconcileEvent())

	slog.Info("daemon starting",
		"db", a.cfg.DBPath,
		"corpus", a.corpus.Source(),
		"items", a.corpus.Len(),
		"transport", a.cfg.Transport.Kind,
	)
	fmt.Fprintln(cmd.OutOrStdout(), "sometimes is running. Press Ctrl-C to stop.")

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	slog.Info("daemon stopped gracefully")
	return nil
}
