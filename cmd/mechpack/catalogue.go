package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mechpack/internal/schema"
)

func catalogueCmd() *cli.Command {
	var output string
	return &cli.Command{
		Name:    "catalogue",
		Aliases: []string{"cat"},
		Usage:   "List the mechanism types available for placement",
		Flags: append(deviceFlags(),
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &output,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyConfig(cmd, loadedConfig)
			cat, err := loadCatalogue()
			if err != nil {
				return err
			}
			w := stdout(cmd)
			schemas := cat.Schemas()
			if strings.EqualFold(output, "json") {
				data, err := json.MarshalIndent(schemas, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(w, "%s\n", data)
				return err
			}
			for _, s := range schemas {
				_, _ = fmt.Fprintf(w, "%-16s %-8s params=%s state=%s globals=%s ions=%s\n",
					s.Name, s.Kind, names(s.Parameters), names(s.StateVars), names(s.Globals), ionNames(s.Ions))
			}
			return nil
		},
	}
}

func names(fs []schema.Field) string {
	if len(fs) == 0 {
		return "-"
	}
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return strings.Join(out, ",")
}

func ionNames(ions []schema.Ion) string {
	if len(ions) == 0 {
		return "-"
	}
	out := make([]string, len(ions))
	for i, ion := range ions {
		out[i] = ion.Name
	}
	return strings.Join(out, ",")
}
