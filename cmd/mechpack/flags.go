package main

import "github.com/urfave/cli/v3"

var (
	backendName  string
	alignment    int64
	catalogues   []string
	checkpointDB string
	configFile   string
	logLevel     string
	logFormat    string
	debug        bool
)

func deviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "device backend (auto, host, cuda)",
			Value:       "auto",
			Destination: &backendName,
		},
		&cli.Int64Flag{
			Name:        "alignment",
			Usage:       "host allocation alignment in bytes",
			Value:       64,
			Destination: &alignment,
		},
		&cli.StringSliceFlag{
			Name:        "catalogue",
			Usage:       "extra YAML catalogue file (repeatable)",
			Destination: &catalogues,
		},
	}
}

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db",
			Usage:       "checkpoint database path",
			Destination: &checkpointDB,
		},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Usage:       "config file path",
		Sources:     cli.EnvVars(envMechpackConfig),
		Destination: &configFile,
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
