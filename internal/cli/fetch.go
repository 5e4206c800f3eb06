package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/lexsearch/internal/model"
)

var (
	fetchTarget      string
	fetchFile        string
	fetchConcurrency int
	fetchSave        bool
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch [serial...]",
	Short: "Retrieve documents by serial number and print them as JSON",
	Long: `Fetch runs the tiered retrieval for each serial number and prints the
retrieval results (record, tier reached, attempted tiers, diagnostics) as JSON.

Serial numbers can be passed as arguments or read from a file, one per line.
Blank lines and lines starting with # are ignored.

Example:
  lexsearch fetch 228541
  lexsearch fetch --target detc 17530 17531
  lexsearch fetch --target prec --file serials.txt --save`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchTarget, "target", "prec", "document kind: prec, detc or expc")
	fetchCmd.Flags().StringVar(&fetchFile, "file", "", "read serial numbers from file (one per line)")
	fetchCmd.Flags().IntVar(&fetchConcurrency, "concurrency", 0, "concurrent fetches (default from config)")
	fetchCmd.Flags().BoolVar(&fetchSave, "save", false, "store successfully retrieved documents")
}

func runFetch(cmd *cobra.Command, args []string) error {
	kind, err := model.ParseKind(fetchTarget)
	if err != nil {
		return err
	}

	serials, err := parseSerials(args)
	if err != nil {
		return err
	}
	if fetchFile != "" {
		fromFile, err := readSerialsFromFile(fetchFile)
		if err != nil {
			return err
		}
		serials = append(serials, fromFile...)
	}
	if len(serials) == 0 {
		return fmt.Errorf("no serial numbers given")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.withRetriever(); err != nil {
		return err
	}
	if fetchSave {
		if err := a.withStore(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	refs := make([]model.Ref, len(serials))
	for i, s := range serials {
		refs[i] = model.Ref{Kind: kind, SerialNumber: s}
	}

	concurrency := a.cfg.Ingest.Concurrency
	if cmd.Flags().Changed("concurrency") {
		concurrency = fetchConcurrency
	}
	results := a.newPipeline().FetchMany(ctx, refs, concurrency)

	failed := 0
	var ok []model.Record
	for _, res := range results {
		if res.Failed {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s/%d\n", kind, res.Record.SerialNumber)
			for _, line := range res.DiagnosticLines() {
				fmt.Fprintf(os.Stderr, "    %s\n", line)
			}
			continue
		}
		ok = append(ok, res.Record)
		fmt.Fprintf(os.Stderr, "✓ %s/%d via %s\n", kind, res.Record.SerialNumber, res.Tier)
	}

	if fetchSave && len(ok) > 0 {
		if err := a.store.UpsertBatch(ctx, ok); err != nil {
			return fmt.Errorf("save documents: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Saved %d documents\n", len(ok))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	var out interface{} = results
	if len(results) == 1 {
		out = results[0]
	}
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	if failed == len(results) {
		return fmt.Errorf("all %d retrievals failed", failed)
	}
	return nil
}

func parseSerials(args []string) ([]int64, error) {
	serials := make([]int64, 0, len(args))
	for _, arg := range args {
		n, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid serial number %q", arg)
		}
		serials = append(serials, n)
	}
	return serials, nil
}

// readSerialsFromFile reads serial numbers from a file (one per line),
// skipping blanks, comments and duplicates.
func readSerialsFromFile(path string) ([]int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var serials []int64
	seen := make(map[int64]bool)

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		n, err := strconv.ParseInt(line, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%s:%d: invalid serial number %q", path, lineNo, line)
		}
		if !seen[n] {
			seen[n] = true
			serials = append(serials, n)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return serials, nil
}
