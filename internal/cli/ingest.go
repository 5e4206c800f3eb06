package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/lexsearch/internal/lawapi"
	"github.com/ppiankov/lexsearch/internal/pipeline"
)

var (
	ingestTarget      string
	ingestPageSize    int
	ingestMaxPages    int
	ingestConcurrency int
	ingestAttempts    int
	ingestNoVectorize bool
	ingestFilter      lawapi.Filter
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Collect, store and index documents from the open API",
	Long: `Ingest pages through the list search of one or all document kinds,
retrieves every listed document (structured API, then the HTML detail page,
then a headless render), stores the normalized records and indexes their
embeddings.

A failed document or page is counted and skipped. Index write failures
abort the run.

Example:
  lexsearch ingest --target prec --page-size 100
  lexsearch ingest --target detc --max-pages 2 --no-vectorize
  lexsearch ingest --target all --query 손해배상 --concurrency 8`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestTarget, "target", "prec", "document kind: prec, detc, expc or all")
	ingestCmd.Flags().IntVar(&ingestPageSize, "page-size", 0, "list page size (default from config)")
	ingestCmd.Flags().IntVar(&ingestMaxPages, "max-pages", 0, "stop after this many pages (0 = all)")
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 0, "concurrent document fetches per page (default from config)")
	ingestCmd.Flags().IntVar(&ingestAttempts, "attempts", 0, "whole-document fetch attempts (default from config)")
	ingestCmd.Flags().BoolVar(&ingestNoVectorize, "no-vectorize", false, "store documents without embedding them")

	ingestCmd.Flags().StringVar(&ingestFilter.Query, "query", "", "list search query")
	ingestCmd.Flags().StringVar(&ingestFilter.Court, "court", "", "court name filter (prec only)")
	ingestCmd.Flags().StringVar(&ingestFilter.CaseType, "case-type", "", "case type filter")
	ingestCmd.Flags().StringVar(&ingestFilter.Field, "field", "", "field filter (expc only)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	kinds, err := kindsFor(ingestTarget)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	flags := cmd.Flags()
	if flags.Changed("page-size") {
		cfg.Ingest.PageSize = ingestPageSize
	}
	if flags.Changed("max-pages") {
		cfg.Ingest.MaxPages = ingestMaxPages
	}
	if flags.Changed("concurrency") {
		cfg.Ingest.Concurrency = ingestConcurrency
	}
	if flags.Changed("attempts") {
		cfg.Ingest.Attempts = ingestAttempts
	}
	if ingestNoVectorize {
		cfg.Ingest.Vectorize = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := a.withRetriever(); err != nil {
		return err
	}
	if err := a.withStore(); err != nil {
		return err
	}
	if cfg.Ingest.Vectorize {
		if err := a.withVectors(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := a.checkEmbedder(ctx); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  lexsearch ingest\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Target:       %s\n", ingestTarget)
	fmt.Fprintf(os.Stderr, "  Page size:    %d\n", cfg.Ingest.PageSize)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Ingest.Concurrency)
	fmt.Fprintf(os.Stderr, "  Store:        %s\n", cfg.Store.Driver)
	fmt.Fprintf(os.Stderr, "  Vectorize:    %v\n", cfg.Ingest.Vectorize)
	fmt.Fprintf(os.Stderr, "\n")

	p := a.newPipeline()
	opts := pipeline.IngestOptions{
		PageSize:    cfg.Ingest.PageSize,
		Concurrency: cfg.Ingest.Concurrency,
		MaxPages:    cfg.Ingest.MaxPages,
		Vectorize:   cfg.Ingest.Vectorize,
	}

	var runErr error
	for _, kind := range kinds {
		fmt.Fprintf(os.Stderr, "⚙️  Ingesting %s (%s)...\n", kind, kind.Label())

		src := &lawapi.Collection{Client: a.api, Kind: kind, Filter: ingestFilter}
		stats, err := p.IngestCollection(ctx, src, opts)
		printIngestStats(stats)
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n\n", kind, err)
			runErr = fmt.Errorf("ingest %s: %w", kind, err)
			break
		}
	}
	return runErr
}

func printIngestStats(s pipeline.Stats) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Run:          %s\n", s.RunID)
	fmt.Fprintf(os.Stderr, "  Listed:       %d documents\n", s.Total)
	fmt.Fprintf(os.Stderr, "  Pages:        %d (%d failed)\n", s.Pages, s.PagesFailed)
	fmt.Fprintf(os.Stderr, "  Saved:        %d\n", s.Saved)
	fmt.Fprintf(os.Stderr, "  Failed:       %d\n", s.Failed)
	fmt.Fprintf(os.Stderr, "  Skipped:      %d\n", s.Skipped)
	fmt.Fprintf(os.Stderr, "  Vectorized:   %d\n", s.Vectorized)
	fmt.Fprintf(os.Stderr, "  Duration:     %v\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "\n")
}
