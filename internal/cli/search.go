package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/ppiankov/lexsearch/internal/model"
	"github.com/ppiankov/lexsearch/internal/search"
)

var (
	searchTarget    string
	searchTopK      int
	searchThreshold float32
	searchJSON      bool
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Find documents similar to free text",
	Long: `Search embeds the query text and returns the most similar indexed
documents of one kind, best first.

Example:
  lexsearch search "임대차 보증금 반환" --target prec --top-k 5
  lexsearch search "표현의 자유" --target detc --threshold 0.5 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(cmd, func(ctx context.Context, svc *search.Service, kind model.Kind, topK int, threshold float32) ([]search.Match, error) {
			return svc.SearchSimilar(ctx, kind, strings.Join(args, " "), topK, threshold)
		})
	},
}

// similarCmd represents the similar command
var similarCmd = &cobra.Command{
	Use:   "similar <serial>",
	Short: "Find documents similar to a stored document",
	Long: `Similar looks up a stored document and returns the most similar other
documents of the same kind. The document itself is never part of the result.

Example:
  lexsearch similar 228541 --target prec
  lexsearch similar 17530 --target detc --top-k 20 --threshold 0.4`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serial, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || serial <= 0 {
			return fmt.Errorf("invalid serial number %q", args[0])
		}
		return runSearch(cmd, func(ctx context.Context, svc *search.Service, kind model.Kind, topK int, threshold float32) ([]search.Match, error) {
			return svc.SimilarTo(ctx, kind, serial, topK, threshold)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, similarCmd} {
		rootCmd.AddCommand(c)
		c.Flags().StringVar(&searchTarget, "target", "prec", "document kind: prec, detc or expc")
		c.Flags().IntVar(&searchTopK, "top-k", 0, "maximum number of results (default from config)")
		c.Flags().Float32Var(&searchThreshold, "threshold", 0, "minimum cosine similarity (default from config)")
		c.Flags().BoolVar(&searchJSON, "json", false, "print matches as JSON")
	}
}

type searchFunc func(ctx context.Context, svc *search.Service, kind model.Kind, topK int, threshold float32) ([]search.Match, error)

func runSearch(cmd *cobra.Command, run searchFunc) error {
	kind, err := model.ParseKind(searchTarget)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.withStore(); err != nil {
		return err
	}
	if err := a.withVectors(); err != nil {
		return err
	}

	topK := a.cfg.Search.TopK
	if cmd.Flags().Changed("top-k") {
		topK = searchTopK
	}
	threshold := a.cfg.Search.Threshold
	if cmd.Flags().Changed("threshold") {
		threshold = searchThreshold
	}

	matches, err := run(cmd.Context(), a.newSearcher(), kind, topK, threshold)
	if err != nil {
		return err
	}

	if searchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(matches)
	}

	if len(matches) == 0 {
		fmt.Fprintf(os.Stderr, "No documents above threshold %.2f\n", threshold)
		return nil
	}
	for i, m := range matches {
		r := m.Record
		date := ""
		if r.DecidedOn != nil {
			date = r.DecidedOn.Format("2006-01-02")
		}
		fmt.Printf("%2d. [%.3f] %s/%d  %s  %s  %s\n", i+1, m.Score, r.Kind, r.SerialNumber, r.CaseNumber, r.IssuingBody, date)
		fmt.Printf("    %s\n", truncate(r.Title, 80))
	}
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
