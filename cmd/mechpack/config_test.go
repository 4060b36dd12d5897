package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: host
alignment: 128
catalogues: [a.yaml, b.yaml]
checkpoint_db: /tmp/ckpt.db
log_level: debug
server_address: 0.0.0.0:9000
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "host", cfg.Backend)
	require.NotNil(t, cfg.Alignment)
	assert.Equal(t, int64(128), *cfg.Alignment)
	assert.Equal(t, []string{"a.yaml", "b.yaml"}, cfg.Catalogues)
	assert.Equal(t, "0.0.0.0:9000", cfg.ServerAddress)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("alignment: [1\n"), 0o644))
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestFlagsWinOverConfig(t *testing.T) {
	align := int64(256)
	cfg := Config{Backend: "cuda", Alignment: &align}

	var gotBackend string
	var gotAlign int64
	cmd := &cli.Command{
		Name:  "check",
		Flags: deviceFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyConfig(cmd, cfg)
			gotBackend, gotAlign = backendName, alignment
			return nil
		},
	}
	require.NoError(t, cmd.Run(context.Background(), []string{"check", "--backend", "host"}))
	assert.Equal(t, "host", gotBackend)
	assert.Equal(t, int64(256), gotAlign)
}

func TestConfigPathFromEnv(t *testing.T) {
	t.Setenv(envMechpackConfig, "/etc/mechpack.yaml")
	var got string
	cmd := &cli.Command{
		Name:  "check",
		Flags: []cli.Flag{configFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			got = configPath()
			return nil
		},
	}
	require.NoError(t, cmd.Run(context.Background(), []string{"check"}))
	assert.Equal(t, "/etc/mechpack.yaml", got)
}
