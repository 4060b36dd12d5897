package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mechpack/internal/backend"
	"github.com/samcharles93/mechpack/internal/catalogue"
	"github.com/samcharles93/mechpack/internal/cellgroup"
	"github.com/samcharles93/mechpack/internal/logger"
	"github.com/samcharles93/mechpack/internal/metrics"
	"github.com/samcharles93/mechpack/internal/scenario"
)

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func loadCatalogue() (*catalogue.Catalogue, error) {
	cat := catalogue.Builtin()
	for _, path := range catalogues {
		if err := cat.LoadFile(path); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

// openGroup builds the scenario named by the first argument on the
// configured backend.
func openGroup(ctx context.Context, cmd *cli.Command) (*cellgroup.Group, error) {
	applyConfig(cmd, loadedConfig)
	path := cmd.Args().First()
	if path == "" {
		return nil, errors.New("scenario file argument is required")
	}
	sc, err := scenario.Load(path)
	if err != nil {
		return nil, err
	}
	cat, err := loadCatalogue()
	if err != nil {
		return nil, err
	}
	dev, err := backend.New(backendName, int(alignment))
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	log.Debug("opened device", "device", dev.Name(), "alignment", dev.Alignment())

	g, err := sc.Build(ctx, dev, cat,
		cellgroup.WithMetrics(metrics.New(dev)),
		cellgroup.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", path, err)
	}
	return g, nil
}
