package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mechpack/internal/mechanism"
)

func instantiateCmd() *cli.Command {
	var (
		initialize bool
		output     string
	)
	return &cli.Command{
		Name:      "instantiate",
		Aliases:   []string{"inst"},
		Usage:     "Instantiate a scenario and print the packed layout",
		ArgsUsage: "<scenario.yaml>",
		Flags: append(deviceFlags(),
			&cli.BoolFlag{
				Name:        "initialize",
				Usage:       "run mechanism initialisation after packing",
				Value:       true,
				Destination: &initialize,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &output,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			g, err := openGroup(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = g.Close() }()

			if initialize {
				if err := g.Initialize(ctx); err != nil {
					return err
				}
			}
			insts := g.Instances()
			reports := make([]mechanism.Report, len(insts))
			for i, m := range insts {
				reports[i] = m.Layout()
			}
			return writeReports(cmd, output, reports)
		},
	}
}

func writeReports(cmd *cli.Command, format string, reports []mechanism.Report) error {
	w := stdout(cmd)
	switch strings.ToLower(format) {
	case "json":
		data, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	case "text", "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	var total uint64
	for _, r := range reports {
		size := uint64(r.ValueBytes + r.IndexBytes)
		total += size
		_, _ = fmt.Fprintf(w, "%-4d %-16s width=%-6d padded=%-6d %10s\n",
			r.ID, r.Mechanism, r.Width, r.WidthPadded, humanize.IBytes(size))
		for _, reg := range r.Values {
			_, _ = fmt.Fprintf(w, "       value  %-16s offset=%-8d len=%d\n", reg.Name, reg.Offset, reg.Len)
		}
		for _, reg := range r.Indices {
			_, _ = fmt.Fprintf(w, "       index  %-16s offset=%-8d len=%d\n", reg.Name, reg.Offset, reg.Len)
		}
	}
	_, err := fmt.Fprintf(w, "\n%d instance(s), %s packed\n", len(reports), humanize.IBytes(total))
	return err
}
