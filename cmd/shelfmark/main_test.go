package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/poiesic/shelfmark/report"
)

const testItems = `{"title": "Dune", "authors": ["Frank Herbert"], "isbns": ["9780441013593"], "subjects": ["Science fiction"]}
{"title": "The Left Hand of Darkness", "authors": ["Ursula K. Le Guin"], "isbns": ["OLISBN-OL59800W"], "work_key": "OL59800W"}
`

// runApp runs the CLI against args and returns stdout.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := newApp()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run(append([]string{"shelfmark", "--env-file", "", "--log-level", "error"}, args...))
	return stdout.String(), err
}

func writeItems(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "items.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(testItems), 0o644))
	return path
}

func TestInvalidLogLevel(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}
	app.ErrWriter = &bytes.Buffer{}
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run([]string{"shelfmark", "--log-level", "loud", "ledger"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestIngestCommand(t *testing.T) {
	t.Run("requires exactly one source", func(t *testing.T) {
		db := filepath.Join(t.TempDir(), "catalog.db")
		for _, args := range [][]string{
			{"--db", db, "ingest"},
			{"--db", db, "ingest", "--subject", "dune", "--file", "items.jsonl"},
		} {
			_, err := runApp(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "exactly one of --subject or --file")
		}
	})

	t.Run("imports a file and writes a report", func(t *testing.T) {
		dir := t.TempDir()
		db := filepath.Join(dir, "catalog.db")
		reportPath := filepath.Join(dir, "run.yaml")

		out, err := runApp(t, "--db", db, "ingest", "--file", writeItems(t),
			"--no-resolve", "--no-enrich", "--report", reportPath)
		require.NoError(t, err)
		assert.Contains(t, out, "Dune")
		assert.Contains(t, out, "created")

		data, err := os.ReadFile(reportPath)
		require.NoError(t, err)
		var summary report.Summary
		require.NoError(t, yaml.Unmarshal(data, &summary))
		assert.Equal(t, 2, summary.Total)
		assert.Equal(t, 2, summary.Counts["created"])
		assert.NotEmpty(t, summary.RunID)
		require.Len(t, summary.Items, 2)
		assert.Equal(t, "Dune", summary.Items[0].Title)
		assert.Equal(t, "9780441013593", summary.Items[0].Identifier)
	})

	t.Run("rerun matches existing records", func(t *testing.T) {
		db := filepath.Join(t.TempDir(), "catalog.db")
		items := writeItems(t)

		_, err := runApp(t, "--db", db, "ingest", "--file", items, "--no-resolve", "--no-enrich")
		require.NoError(t, err)

		out, err := runApp(t, "--db", db, "ingest", "--file", items, "--no-resolve", "--no-enrich")
		require.NoError(t, err)
		assert.Contains(t, out, "matched-existing")
		assert.NotContains(t, out, "created")
	})

	t.Run("badger backend", func(t *testing.T) {
		db := filepath.Join(t.TempDir(), "badger")
		out, err := runApp(t, "--db", db, "--backend", "badger", "ingest", "--file", writeItems(t),
			"--no-resolve", "--no-enrich")
		require.NoError(t, err)
		assert.Contains(t, out, "created")
	})

	t.Run("missing file", func(t *testing.T) {
		db := filepath.Join(t.TempDir(), "catalog.db")
		_, err := runApp(t, "--db", db, "ingest", "--file", filepath.Join(t.TempDir(), "absent.jsonl"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load items")
	})
}

func TestLedgerCommand(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		db := filepath.Join(t.TempDir(), "catalog.db")
		out, err := runApp(t, "--db", db, "ledger")
		require.NoError(t, err)
		assert.Contains(t, out, "No stale pending entries.")
	})

	t.Run("counts done entries", func(t *testing.T) {
		db := filepath.Join(t.TempDir(), "catalog.db")
		_, err := runApp(t, "--db", db, "ingest", "--file", writeItems(t), "--no-resolve", "--no-enrich")
		require.NoError(t, err)

		out, err := runApp(t, "--db", db, "ledger")
		require.NoError(t, err)
		assert.Contains(t, out, "done")
		assert.Contains(t, out, "2")
	})
}

func TestArgumentValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"similar without target", []string{"similar"}, "give a record id or --query"},
		{"similar with both", []string{"similar", "--query", "dune", "7"}, "give a record id or --query"},
		{"embed without target", []string{"embed"}, "give a record id or --all"},
		{"embed with bad id", []string{"embed", "abc"}, "invalid record id"},
		{"enrich with zero id", []string{"enrich", "0"}, "invalid record id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := filepath.Join(t.TempDir(), "catalog.db")
			_, err := runApp(t, append([]string{"--db", db}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInvalidBackend(t *testing.T) {
	_, err := runApp(t, "--db", filepath.Join(t.TempDir(), "x"), "--backend", "mongo", "ledger")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")
}

func TestFlagDefaults(t *testing.T) {
	app := newApp()

	intDefault := func(command, flag string) int {
		cmd := app.Command(command)
		require.NotNil(t, cmd)
		for _, f := range cmd.Flags {
			if f, ok := f.(*cli.IntFlag); ok && f.Name == flag {
				return f.Value
			}
		}
		t.Fatalf("flag %s not found on %s", flag, command)
		return 0
	}

	assert.Equal(t, 50, intDefault("ingest", "limit"))
	assert.Equal(t, 100, intDefault("embed", "batch-size"))
	assert.Equal(t, 100, intDefault("embed", "report-interval"))
	assert.Equal(t, 3, intDefault("embed", "max-retries"))
	assert.Equal(t, 10, intDefault("similar", "limit"))
}
