package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ppiankov/lexsearch/internal/vectorindex"
)

var (
	indexTarget string
	indexJSON   bool
)

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect and rebuild the vector indexes",
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vector index statistics",
	Long:  `Show the number of vectors, dimension, type and status of each index next to the number of stored documents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds, err := kindsFor(indexTarget)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.withIndexes(); err != nil {
			return err
		}
		if err := a.withStore(); err != nil {
			return err
		}

		type row struct {
			Index  vectorindex.Stats `json:"index"`
			Stored int               `json:"stored_documents"`
		}
		var rows []row
		for _, kind := range kinds {
			stored, err := a.store.Count(cmd.Context(), kind)
			if err != nil {
				return fmt.Errorf("count %s documents: %w", kind, err)
			}
			st := a.indexes.Stats(kind)
			rows = append(rows, row{Index: st, Stored: stored})

			if !indexJSON {
				fmt.Printf("%s (%s)\n", kind, kind.Label())
				fmt.Printf("  Status:       %s\n", st.Status)
				fmt.Printf("  Vectors:      %d (%d slots)\n", st.Total, st.Slots)
				fmt.Printf("  Dimension:    %d\n", st.Dimension)
				fmt.Printf("  Type:         %s (trained: %v)\n", st.Type, st.Trained)
				fmt.Printf("  Stored docs:  %d\n\n", stored)
			}
		}

		if indexJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}
		return nil
	},
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild vector indexes from the document store",
	Long: `Rebuild discards an index and embeds every stored document of the kind
again. Use it after changing the embedding model or the index type.

Example:
  lexsearch index rebuild --target prec
  lexsearch index rebuild --target all`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds, err := kindsFor(indexTarget)
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

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := a.checkEmbedder(ctx); err != nil {
			return err
		}

		p := a.newPipeline()
		for _, kind := range kinds {
			fmt.Fprintf(os.Stderr, "⚙️  Rebuilding %s index...\n", kind)
			stats, err := p.Rebuild(ctx, kind, a.store)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "✓ %s: %d documents, %d vectorized, %d skipped, %d failed\n",
				kind, stats.Total, stats.Vectorized, stats.Skipped, stats.Failed)
		}
		return nil
	},
}

var indexRemoveCmd = &cobra.Command{
	Use:   "remove <serial>...",
	Short: "Remove documents from a vector index",
	Long: `Remove drops the vectors of the given serial numbers from one index so
they no longer appear in similarity results. Stored documents are kept, and
a rebuild adds them back.

Example:
  lexsearch index remove --target prec 228541 228542`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds, err := kindsFor(indexTarget)
		if err != nil {
			return err
		}
		if len(kinds) != 1 {
			return fmt.Errorf("remove needs a single --target, got %q", indexTarget)
		}
		serials, err := parseSerials(args)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.withIndexes(); err != nil {
			return err
		}

		removed, err := a.indexes.Remove(kinds[0], serials)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ %s: removed %d of %d documents from the index\n", kinds[0], removed, len(serials))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexStatsCmd)
	indexCmd.AddCommand(indexRebuildCmd)
	indexCmd.AddCommand(indexRemoveCmd)

	indexCmd.PersistentFlags().StringVar(&indexTarget, "target", "all", "document kind: prec, detc, expc or all")
	indexStatsCmd.Flags().BoolVar(&indexJSON, "json", false, "print stats as JSON")
}
