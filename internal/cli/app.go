package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sometimes/internal/ambient"
	"github.com/roach88/sometimes/internal/config"
	"github.com/roach88/sometimes/internal/corpus"
	"github.com/roach88/sometimes/internal/engine"
	"github.com/roach88/sometimes/internal/ledger"
	"github.com/roach88/sometimes/internal/store"
	"github.com/roach88/sometimes/internal/transport"
	"github.com/roach88/sometimes/internal/weather"
)

// app holds the opened resources shared by commands.
type app struct {
	opts    *RootOptions
	cfg     config.Config
	store   *store.Store
	ledger  *ledger.Ledger
	corpus  *corpus.Corpus
	salt    int64
	weather engine.WeatherSource
	clock   engine.Clock
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openApp loads config, opens the database and the delivery ledger, and
// loads the corpus. A corpus load failure is logged and the fallback corpus
// is used. Errors are already written through f.
func openApp(ctx context.Context, opts *RootOptions, f *OutputFormatter) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeStorage, "failed to create data directory", err)
	}
	f.VerboseLog("opening database %s", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeStorage, "failed to open database", err)
	}

	salt, err := st.LoadOrCreateSalt(ctx, store.RandomSalt)
	if err != nil {
		st.Close()
		return nil, f.fail(ExitCommandError, ErrCodeStorage, "failed to read installation salt", err)
	}

	l, err := ledger.Open(ctx, st)
	if err != nil {
		st.Close()
		return nil, f.fail(ExitCommandError, ErrCodeStorage, "failed to load delivery history", err)
	}

	c, err := corpus.Load(cfg.CorpusPath)
	if err != nil {
		slog.Warn("corpus unavailable; using the built-in collection", "error", err)
	}
	f.VerboseLog("corpus %s: %d items", c.Source(), c.Len())

	clock := opts.Clock
	if clock == nil {
		clock = engine.SystemClock{Location: cfg.Location()}
	}

	return &app{
		opts:    opts,
		cfg:     cfg,
		store:   st,
		ledger:  l,
		corpus:  c,
		salt:    salt,
		weather: weatherSource(cfg, clock),
		clock:   clock,
	}, nil
}

// weatherSource builds the configured source. Open-Meteo readings are
// cached and fall back to the season when unavailable.
func weatherSource(cfg config.Config, clock engine.Clock) engine.WeatherSource {
	w := cfg.Weather
	switch w.Provider {
	case config.WeatherStatic:
		return weather.Static{Condition: ambient.Weather(w.Condition)}
	case config.WeatherOpenMeteo:
		src := weather.NewOpenMeteo(weather.NewSafeClient(w.Timeout), w.Endpoint, w.Latitude, w.Longitude)
		return weather.NewCache(src,
			weather.WithTTL(w.CacheTTL),
			weather.WithTimeout(w.Timeout),
			weather.WithClock(clock.Now),
		)
	default:
		return nil
	}
}

// newEngine builds an Engine over the app's state delivering through t.
func (a *app) newEngine(t transport.Transport, opts ...engine.EngineOption) *engine.Engine {
	opts = append([]engine.EngineOption{engine.WithClock(a.clock)}, opts...)
	if a.opts.Rand != nil {
		opts = append(opts, engine.WithRand(a.opts.Rand))
	}
	return engine.New(engine.Deps{
		Corpus:    a.corpus,
		Ledger:    a.ledger,
		Pending:   a.store,
		Prefs:     a.store,
		Transport: t,
		Weather:   a.weather,
		Salt:      a.salt,
	}, opts...)
}

// offlineEngine builds an Engine whose transport never presents anything.
// Use it for read-only commands; call the returned close func when done.
func (a *app) offlineEngine() (*engine.Engine, func()) {
	t := transport.NewTimer(transport.NewWriterPresenter(io.Discard))
	return a.newEngine(t), func() { t.Close() }
}

func (a *app) now() time.Time {
	return a.clock.Now()
}

// currentWeather reads the configured source, or unknown when it fails.
func (a *app) currentWeather(ctx context.Context) ambient.Weather {
	if a.weather == nil {
		return ambient.WeatherUnknown
	}
	w, err := a.weather.CurrentCondition(ctx)
	if err != nil {
		slog.Warn("weather unavailable", "error", err)
		return ambient.WeatherUnknown
	}
	return w
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// storageFailure maps a storage error to an exit code and message.
func storageFailure(f *OutputFormatter, msg string, err error) error {
	if errors.Is(err, ledger.ErrStorageCorrupt) {
		return f.fail(ExitCommandError, ErrCodeStorage, fmt.Sprintf("%s: database is corrupt", msg), err)
	}
	return f.fail(ExitCommandError, ErrCodeStorage, msg, err)
}
