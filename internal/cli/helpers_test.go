package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/sometimes/internal/ambient"
	"github.com/roach88/sometimes/internal/config"
	"github.com/roach88/sometimes/internal/ledger"
	"github.com/roach88/sometimes/internal/store"
	"github.com/roach88/sometimes/internal/testutil"
)

// monday is the wall clock every CLI test runs at.
var monday = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

const testCorpus = `
- id: a
  title: Morning Line
  author: Anon A
  body: The light comes in.
  affinity:
    times_of_day: [morning]
- id: b
  title: Evening Song
  author: Anon B
  body: The light goes out.
  affinity:
    times_of_day: [evening]
- id: c
  title: Rain Poem
  author: Anon C
  body: It falls.
  affinity:
    weather: [rainy]
`

type testEnv struct {
	dir        string
	configPath string
	dbPath     string
	corpusPath string
}

// newTestEnv writes a corpus and a config into a temp dir.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvDB, "")
	t.Setenv(config.EnvTelegramToken, "")

	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		dbPath:     filepath.Join(dir, "data", "sometimes.db"),
		corpusPath: filepath.Join(dir, "corpus.yaml"),
	}
	require.NoError(t, os.WriteFile(env.corpusPath, []byte(testCorpus), 0o644))
	cfg := "timezone: UTC\ncorpus_path: " + env.corpusPath + "\nweather:\n  provider: static\n  condition: rainy\n"
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0o644))
	return env
}

// run executes the root command with the env's config and database.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return e.runContext(context.Background(), t, args...)
}

func (e *testEnv) runContext(ctx context.Context, t *testing.T, args ...string) (string, error) {
	t.Helper()
	opts := &RootOptions{
		Clock: testutil.NewManualClock(monday),
		Rand:  testutil.NewRand(7),
	}
	cmd := newRootCommand(opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", e.configPath, "--db", e.dbPath}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// seed records deliveries directly through the ledger.
func (e *testEnv) seed(t *testing.T, deliveries ...seedDelivery) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, os.MkdirAll(filepath.Dir(e.dbPath), 0o755))
	st, err := store.Open(e.dbPath)
	require.NoError(t, err)
	defer st.Close()

	l, err := ledger.Open(ctx, st)
	require.NoError(t, err)
	for _, d := range deliveries {
		rec, err := l.RecordDelivery(ctx, d.itemID, ambient.Build(d.at, ambient.Clear))
		require.NoError(t, err)
		if d.kept {
			_, err := l.ToggleKept(ctx, rec.ID, d.at.Add(time.Hour), ambient.Clear)
			require.NoError(t, err)
		}
	}
}

// openStore opens the env's database for assertions.
func (e *testEnv) openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(e.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

type seedDelivery struct {
	itemID string
	at     time.Time
	kept   bool
}
