package main

import "github.com/urfave/cli/v3"

func dataFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "data",
			Aliases: []string{"d"},
			Usage:   "Path to the base64 dataset",
			Value:   "recital_data.dat",
			Sources: cli.EnvVars("CATALOG_PATH"),
		},
		&cli.StringFlag{
			Name:    "tz",
			Usage:   "Timezone for timestamps without an offset",
			Value:   "UTC",
			Sources: cli.EnvVars("CATALOG_TZ"),
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
		},
	}
}

func (r *Runner) register() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "encode",
			Usage: "Validate a JSON dataset and write it base64 encoded",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "JSON dataset", Required: true},
				&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file (default stdout)"},
			},
			Action: r.Encode,
		},
		{
			Name:   "decode",
			Usage:  "Print the JSON document inside a dataset",
			Flags:  dataFlags(),
			Action: r.Decode,
		},
		{
			Name:   "shows",
			Usage:  "List the shows of a dataset",
			Flags:  dataFlags(),
			Action: r.Shows,
		},
		{
			Name:  "search",
			Usage: "Search one show of a dataset",
			Commands: []*cli.Command{
				{
					Name:      "performers",
					Usage:     "Performers matching a query, with their acts",
					Flags:     dataFlags(),
					Arguments: []cli.Argument{
						&cli.StringArg{Name: "show"},
						&cli.StringArg{Name: "query"},
					},
					Action: r.SearchPerformers,
				},
				{
					Name:      "acts",
					Usage:     "Acts whose title, number or performers match a query",
					Flags:     dataFlags(),
					Arguments: []cli.Argument{
						&cli.StringArg{Name: "show"},
						&cli.StringArg{Name: "query"},
					},
					Action: r.SearchActs,
				},
			},
		},
	}
}
