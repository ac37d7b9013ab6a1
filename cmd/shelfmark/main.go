// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "shelfmark",
		Usage: "Book catalog ingestion, identifier resolution and enrichment",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML configuration file",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Storage path (overrides the config file and SHELFMARK_DB)",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Storage backend (sqlite, badger)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file if it exists",
				Value: ".env",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Import catalog items, deduplicate them, resolve identifiers and enrich new records",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "subject",
						Usage: "Open Library subject to import, e.g. \"science fiction\"",
					},
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Catalog dump to import (.jsonl, .ndjson, .json, .parquet)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of items to import (0 imports a whole file)",
						Value: 50,
					},
					&cli.StringFlag{
						Name:  "source-url",
						Usage: "Source recorded in the ledger (defaults to the subject URL or file path)",
					},
					&cli.BoolFlag{
						Name:  "no-resolve",
						Usage: "Skip identifier resolution",
					},
					&cli.BoolFlag{
						Name:  "no-enrich",
						Usage: "Skip enrichment and embeddings",
					},
					&cli.StringFlag{
						Name:  "report",
						Usage: "Write a YAML run report to this path",
					},
				},
			},
			{
				Name:   "resolve",
				Usage:  "Resolve verified identifiers for records that still carry placeholders",
				Action: resolveCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of records to resolve (0 for all)",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Resolve without writing identifiers",
					},
				},
			},
			{
				Name:      "enrich",
				Usage:     "Enrich one record, or every record when no id is given",
				ArgsUsage: "[record-id]",
				Action:    enrichCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of records to enrich (0 for all)",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Compute enrichments without writing them",
					},
				},
			},
			{
				Name:      "embed",
				Usage:     "Refresh the embedding of one record, or of every record with --all",
				ArgsUsage: "[record-id]",
				Action:    embedCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Re-embed every record in the catalog",
					},
					&cli.BoolFlag{
						Name:  "missing",
						Usage: "With --all, only embed records that have no vector yet",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts per batch",
						Value: 3,
					},
				},
			},
			{
				Name:      "similar",
				Usage:     "List records similar to a record or to a free-text query",
				ArgsUsage: "[record-id]",
				Action:    similarCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "query",
						Aliases: []string{"q"},
						Usage:   "Free-text query",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 10,
					},
				},
			},
			{
				Name:   "ledger",
				Usage:  "Show ledger status counts and stale pending entries",
				Action: ledgerCommand,
			},
		},
	}
}
