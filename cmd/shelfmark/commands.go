package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/dataset"
	"github.com/poiesic/shelfmark/enrichment"
	"github.com/poiesic/shelfmark/openlibrary"
	"github.com/poiesic/shelfmark/reembed"
	"github.com/poiesic/shelfmark/report"
	"github.com/poiesic/shelfmark/resolver"
	"github.com/poiesic/shelfmark/storage"
)

func ingestCommand(c *cli.Context) error {
	subject, file := c.String("subject"), c.String("file")
	if (subject == "") == (file == "") {
		return cli.Exit("exactly one of --subject or --file is required", 2)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.Bool("no-resolve") {
		cfg.Ingestion.Resolve = false
	}
	if c.Bool("no-enrich") {
		cfg.Ingestion.Enrich = false
	}

	catalog, err := openCatalog(c, cfg, true)
	if err != nil {
		return err
	}
	defer catalog.Close()

	var items []core.CatalogItem
	sourceURL := c.String("source-url")
	if file != "" {
		items, err = dataset.LoadSample(file, c.Int("limit"))
		if sourceURL == "" {
			sourceURL = "file://" + file
		}
	} else {
		items, err = catalog.OpenLibrary().SubjectItems(c.Context, subject, c.Int("limit"))
		if sourceURL == "" {
			sourceURL = catalog.OpenLibrary().BaseURL() + "/subjects/" + openlibrary.SubjectSlug(subject) + ".json"
		}
	}
	if err != nil {
		return fmt.Errorf("failed to load items: %w", err)
	}

	pipeline, err := catalog.NewIngestionPipeline()
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	outcomes := pipeline.Run(c.Context, items, sourceURL)
	if err := report.RenderTable(c.App.Writer, outcomes); err != nil {
		return err
	}

	summary := report.Summarize(runID, outcomes)
	if path := c.String("report"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create report: %w", err)
		}
		defer f.Close()
		if err := report.WriteYAML(f, summary); err != nil {
			return err
		}
	}
	if err := report.RenderCounts(c.App.Writer, "Status", summary.Counts); err != nil {
		return err
	}

	if failed := summary.Failed(); failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d items failed", failed, summary.Total), 1)
	}
	return nil
}

func resolveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	catalog, err := openCatalog(c, cfg, true)
	if err != nil {
		return err
	}
	defer catalog.Close()

	r := catalog.NewResolver(resolver.WithDryRun(c.Bool("dry-run")))
	resolutions, err := r.ResolveAll(c.Context, storage.RecordFilter{Limit: c.Int("limit")})

	rows := make([][]string, 0, len(resolutions))
	for _, res := range resolutions {
		detail := ""
		if res.Err != nil {
			detail = res.Err.Error()
		}
		rows = append(rows, []string{
			strconv.FormatUint(uint64(res.RecordId), 10),
			res.WorkKey,
			string(res.Outcome),
			res.Identifier,
			string(res.Source),
			strconv.Itoa(res.Navigations),
			detail,
		})
	}
	headers := []string{"Record", "Work", "Outcome", "Identifier", "Source", "Navigations", "Detail"}
	if renderErr := report.RenderRows(c.App.Writer, headers, rows, 1, 6); renderErr != nil {
		return renderErr
	}
	return err
}

func enrichCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	var id core.ID
	if c.Args().Present() {
		if id, err = parseRecordID(c.Args().First()); err != nil {
			return err
		}
	}

	catalog, err := openCatalog(c, cfg, true)
	if err != nil {
		return err
	}
	defer catalog.Close()

	enricher, err := catalog.NewEnricher(enrichment.WithDryRun(c.Bool("dry-run")))
	if err != nil {
		return err
	}

	var reports []*enrichment.Report
	if id != 0 {
		reports = []*enrichment.Report{enricher.Run(c.Context, id)}
	} else if reports, err = enricher.RunAll(c.Context, storage.RecordFilter{Limit: c.Int("limit")}); err != nil {
		return err
	}

	var errs []error
	rows := make([][]string, 0, len(reports))
	for _, rep := range reports {
		provenance, detail := "", ""
		if rep.Result != nil {
			provenance = string(rep.Result.Provenance)
			if rep.Result.SourceErr != nil {
				detail = rep.Result.SourceErr.Error()
			}
		}
		if rep.Err != nil {
			detail = rep.Err.Error()
			errs = append(errs, fmt.Errorf("record %d: %w", rep.RecordId, rep.Err))
		}
		embedding := "ok"
		if rep.EmbeddingErr != nil {
			embedding = rep.EmbeddingErr.Error()
		}
		rows = append(rows, []string{
			strconv.FormatUint(uint64(rep.RecordId), 10),
			strconv.FormatBool(rep.OK()),
			provenance,
			embedding,
			detail,
		})
	}
	headers := []string{"Record", "OK", "Provenance", "Embedding", "Detail"}
	if err := report.RenderRows(c.App.Writer, headers, rows, 1); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func embedCommand(c *cli.Context) error {
	all := c.Bool("all")
	if all == c.Args().Present() {
		return cli.Exit("give a record id or --all", 2)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	var id core.ID
	if !all {
		if id, err = parseRecordID(c.Args().First()); err != nil {
			return err
		}
	}

	catalog, err := openCatalog(c, cfg, true)
	if err != nil {
		return err
	}
	defer catalog.Close()

	if !all {
		enricher, err := catalog.NewEnricher()
		if err != nil {
			return err
		}
		if err := enricher.RefreshEmbedding(c.Context, id); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "record %d embedded\n", id)
		return nil
	}

	config := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     time.Second,
		MissingOnly:    c.Bool("missing"),
	}
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if config.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	fmt.Fprintf(c.App.ErrWriter, "Storage: %s (%s)\n", cfg.Storage.Path, cfg.Storage.Backend)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n\n", cfg.AI.EmbeddingModel)

	if err := catalog.NewReembedder(config, c.App.ErrWriter).Run(c.Context); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func similarCommand(c *cli.Context) error {
	query := c.String("query")
	if (query == "") == !c.Args().Present() {
		return cli.Exit("give a record id or --query", 2)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	var id core.ID
	if query == "" {
		if id, err = parseRecordID(c.Args().First()); err != nil {
			return err
		}
	}

	catalog, err := openCatalog(c, cfg, false)
	if err != nil {
		return err
	}
	defer catalog.Close()

	searcher, err := catalog.NewSearcher()
	if err != nil {
		return err
	}

	var results []*core.SearchResult
	if query != "" {
		results, err = searcher.Query(c.Context, query, c.Int("limit"))
	} else {
		results, err = searcher.SimilarTo(c.Context, id, c.Int("limit"))
	}
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(results))
	for _, result := range results {
		row := []string{"", "", "", "", fmt.Sprintf("%.3f", result.Score)}
		if result.Record != nil {
			row[0] = strconv.FormatUint(uint64(result.Record.Id), 10)
			row[1] = core.Truncate(result.Record.Title, 48)
			if len(result.Record.Authors) > 0 {
				row[2] = result.Record.Authors[0]
			}
			row[3] = result.Record.Identifier
		}
		rows = append(rows, row)
	}
	headers := []string{"Record", "Title", "Author", "Identifier", "Score"}
	return report.RenderRows(c.App.Writer, headers, rows, 1, 5)
}

func ledgerCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	catalog, err := openCatalog(c, cfg, false)
	if err != nil {
		return err
	}
	defer catalog.Close()

	counts, err := catalog.Ledger().Counts(c.Context)
	if err != nil {
		return err
	}
	labels := make(map[string]int, len(counts))
	for status, n := range counts {
		labels[status.String()] = n
	}
	if err := report.RenderCounts(c.App.Writer, "Status", labels); err != nil {
		return err
	}

	staleAfter := cfg.Ingestion.StaleAfter()
	stale, err := catalog.StaleLedgerEntries(c.Context)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		fmt.Fprintln(c.App.Writer, "No stale pending entries.")
		return nil
	}

	rows := make([][]string, 0, len(stale))
	for _, entry := range stale {
		rows = append(rows, []string{
			entry.Fingerprint.Short(),
			entry.SourceURL,
			strconv.Itoa(entry.Attempts),
			entry.UpdatedAt.Format(time.RFC3339),
		})
	}
	fmt.Fprintf(c.App.Writer, "Stale pending entries (older than %v):\n", staleAfter)
	headers := []string{"Fingerprint", "Source", "Attempts", "Updated"}
	return report.RenderRows(c.App.Writer, headers, rows, 3)
}

func parseRecordID(s string) (core.ID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, cli.Exit(fmt.Sprintf("invalid record id %q", s), 2)
	}
	return core.ID(n), nil
}
