package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/mechpack/internal/logger"
)

const envMechpackConfig = "MECHPACK_CONFIG"

// Config represents the mechpack configuration file
// (~/.config/mechpack/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	Backend    string   `yaml:"backend"`
	Alignment  *int64   `yaml:"alignment"`
	Catalogues []string `yaml:"catalogues"`

	CheckpointDB string `yaml:"checkpoint_db"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	if configFile != "" {
		return configFile
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "mechpack", "config.yaml")
}

func defaultCheckpointDB() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "mechpack.db"
	}
	return filepath.Join(dir, "mechpack", "checkpoints.db")
}

// LoadConfig reads the config file. A missing file yields a zero Config;
// a malformed one is an error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// applyConfig fills device and store variables from cfg when the matching
// flag was not set on the command line.
func applyConfig(c *cli.Command, cfg Config) {
	if cfg.Backend != "" && !c.IsSet("backend") {
		backendName = cfg.Backend
	}
	if cfg.Alignment != nil && !c.IsSet("alignment") {
		alignment = *cfg.Alignment
	}
	if len(cfg.Catalogues) > 0 && !c.IsSet("catalogue") {
		catalogues = cfg.Catalogues
	}
	if cfg.CheckpointDB != "" && !c.IsSet("db") {
		checkpointDB = cfg.CheckpointDB
	}
}

func applyLogConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

var loadedConfig Config

// setup loads the config file and installs the logger on the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configPath())
	if err != nil {
		return ctx, err
	}
	loadedConfig = cfg
	applyLogConfig(cmd, cfg)

	level := slog.LevelDebug
	if !debug {
		if level, err = logger.ParseLevel(logLevel); err != nil {
			return ctx, err
		}
	}
	w := cmd.Root().ErrWriter
	if w == nil {
		w = os.Stderr
	}
	log, err := logger.ForFormat(logFormat, w, level)
	if err != nil {
		return ctx, err
	}
	return logger.WithContext(ctx, log), nil
}
