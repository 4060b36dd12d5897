package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/mechpack/internal/mechanism"
)

// run executes the CLI with an isolated config file and captured output.
// Commands share package-level flag destinations, so tests are sequential.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(envMechpackConfig, filepath.Join(t.TempDir(), "missing.yaml"))
	catalogues = nil
	checkpointDB = ""
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	err := app.Run(context.Background(), append([]string{"mechpack"}, args...))
	return out.String(), err
}

func TestInstantiateJSON(t *testing.T) {
	out, err := run(t, "instantiate", "--backend", "host", "-o", "json", "testdata/soma.yaml")
	require.NoError(t, err)

	var reports []mechanism.Report
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 4)
	assert.Equal(t, "hh", reports[0].Mechanism)
	assert.Equal(t, 2, reports[0].Width)
	assert.Equal(t, 16, reports[0].WidthPadded)
	assert.Equal(t, "cad", reports[2].Mechanism)
	assert.True(t, reports[3].Multiplicity)
	assert.False(t, reports[1].Multiplicity)
}

func TestInstantiateText(t *testing.T) {
	out, err := run(t, "instantiate", "--backend", "host", "testdata/soma.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "hh")
	assert.Contains(t, out, "node_index")
	assert.Contains(t, out, "ion_na")
	assert.Contains(t, out, "ion_x")
	assert.Contains(t, out, "4 instance(s)")
}

func TestInstantiateRequiresScenario(t *testing.T) {
	_, err := run(t, "instantiate", "--backend", "host")
	require.Error(t, err)
}

func TestCatalogueListsBuiltins(t *testing.T) {
	out, err := run(t, "catalogue")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "cad"))
	assert.Contains(t, out, "ions=na,k")
}

func TestCatalogueLoadsExtraFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mechanisms:\n  - name: leak2\n    parameters:\n      - {name: g, default: 0.002}\n"), 0o644))
	out, err := run(t, "catalogue", "--catalogue", path)
	require.NoError(t, err)
	assert.Contains(t, out, "leak2")
}

func TestCheckpointSaveListRestore(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ckpt.db")

	out, err := run(t, "checkpoint", "save", "--backend", "host", "--db", db, "--label", "rest", "testdata/soma.yaml")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	out, err = run(t, "checkpoint", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "rest")

	out, err = run(t, "checkpoint", "restore", "--backend", "host", "--db", db, "--id", id, "testdata/soma.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "1 pas.e [-70 -70]")

	_, err = run(t, "checkpoint", "delete", "--db", db, id)
	require.NoError(t, err)
	out, err = run(t, "checkpoint", "list", "--db", db)
	require.NoError(t, err)
	assert.NotContains(t, out, id)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version:")
	assert.Contains(t, out, "backends:   host")
}
