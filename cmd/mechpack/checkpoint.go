package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mechpack/internal/checkpoint"
	"github.com/samcharles93/mechpack/internal/logger"
)

func checkpointCmd() *cli.Command {
	return &cli.Command{
		Name:    "checkpoint",
		Aliases: []string{"ckpt"},
		Usage:   "Save, list and restore mechanism field snapshots",
		Commands: []*cli.Command{
			checkpointSaveCmd(),
			checkpointListCmd(),
			checkpointRestoreCmd(),
			checkpointDeleteCmd(),
		},
	}
}

func openStore(cmd *cli.Command) (*checkpoint.Store, error) {
	applyConfig(cmd, loadedConfig)
	path := checkpointDB
	if path == "" {
		path = defaultCheckpointDB()
	}
	return checkpoint.Open(path)
}

func checkpointSaveCmd() *cli.Command {
	var label string
	return &cli.Command{
		Name:      "save",
		Usage:     "Instantiate and initialise a scenario, then store its fields",
		ArgsUsage: "<scenario.yaml>",
		Flags: append(append(deviceFlags(), storeFlags()...),
			&cli.StringFlag{
				Name:        "label",
				Usage:       "snapshot label",
				Destination: &label,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			g, err := openGroup(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = g.Close() }()
			if err := g.Initialize(ctx); err != nil {
				return err
			}
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			snap, err := checkpoint.Capture(g, label)
			if err != nil {
				return err
			}
			if err := store.Save(ctx, snap); err != nil {
				return err
			}
			logger.FromContext(ctx).Info("saved checkpoint", "id", snap.ID, "mechanisms", len(snap.Mechanisms))
			_, err = fmt.Fprintln(stdout(cmd), snap.ID)
			return err
		},
	}
}

func checkpointListCmd() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List stored snapshots, newest first",
		Flags:   storeFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			sums, err := store.List(ctx)
			if err != nil {
				return err
			}
			w := stdout(cmd)
			for _, s := range sums {
				_, _ = fmt.Fprintf(w, "%s  %s  %3d  %s\n",
					s.ID, s.CreatedAt.Format("2006-01-02 15:04:05"), s.Mechanisms, s.Label)
			}
			return nil
		},
	}
}

func checkpointRestoreCmd() *cli.Command {
	var id string
	return &cli.Command{
		Name:      "restore",
		Usage:     "Instantiate a scenario and load a stored snapshot into it",
		ArgsUsage: "<scenario.yaml>",
		Flags: append(append(deviceFlags(), storeFlags()...),
			&cli.StringFlag{
				Name:        "id",
				Usage:       "snapshot id",
				Required:    true,
				Destination: &id,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			g, err := openGroup(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = g.Close() }()
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			snap, err := store.Load(ctx, id)
			if err != nil {
				return err
			}
			if err := snap.Restore(g); err != nil {
				return err
			}
			insts := g.Instances()
			for _, m := range insts {
				for _, f := range m.FieldTable() {
					vals, err := m.FieldValues(f.Name)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(stdout(cmd), "%d %s.%s %v\n", m.ID(), m.Name(), f.Name, vals)
				}
			}
			return nil
		},
	}
}

func checkpointDeleteCmd() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Delete a stored snapshot",
		ArgsUsage: "<id>",
		Flags:     storeFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return errors.New("snapshot id argument is required")
			}
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			return store.Delete(ctx, id)
		},
	}
}
