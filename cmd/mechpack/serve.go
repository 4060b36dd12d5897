package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mechpack/internal/api"
	"github.com/samcharles93/mechpack/internal/checkpoint"
	"github.com/samcharles93/mechpack/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:      "serve",
		Usage:     "Instantiate a scenario and serve its instances over HTTP",
		ArgsUsage: "<scenario.yaml>",
		Flags: append(append(deviceFlags(), storeFlags()...),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if loadedConfig.ServerAddress != "" && !cmd.IsSet("addr") {
				addr = loadedConfig.ServerAddress
			}

			g, err := openGroup(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = g.Close() }()
			if err := g.Initialize(ctx); err != nil {
				return err
			}

			var store *checkpoint.Store
			if checkpointDB != "" {
				if store, err = checkpoint.Open(checkpointDB); err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				log.Info("checkpoint store open", "path", store.Path())
			}

			server := api.NewServer(g, store)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "device", g.State().Device().Name(), "instances", len(g.Instances()))
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
