package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/patentsearch/evidence-engine/pkg/errors"
)

// NewSearchCmd builds the "search" subcommand: hybrid BM25+vector retrieval
// over the evidence-chunk store, printed as a two-space-indented JSON object
// of the shape {chunks: [...], patents: [...]}.
func NewSearchCmd() *cobra.Command {
	var (
		query         string
		topk          int
		topkBM25      int
		topkVec       int
		graphExpand   bool
		graphMultiHop bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the evidence store with hybrid BM25+vector retrieval",
		RunE: func(cmd *cobra.Command, args []string) error {
			if query == "" {
				return errors.New(errors.CodeValidation, "--query is required")
			}

			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			result, err := cliCtx.Engine.RunSearch(cmd.Context(), query, topk, topkBM25, topkVec, graphExpand, graphMultiHop)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "search query text (required)")
	cmd.Flags().IntVar(&topk, "topk", 50, "number of fused chunk results to return")
	cmd.Flags().IntVar(&topkBM25, "topk-bm25", 200, "number of BM25 candidates to fetch before fusion")
	cmd.Flags().IntVar(&topkVec, "topk-vec", 200, "number of vector candidates to fetch before fusion")
	cmd.Flags().BoolVar(&graphExpand, "graph-expand", false, "boost results whose publication shares a citation/CPC edge with a top seed")
	cmd.Flags().BoolVar(&graphMultiHop, "graph-multi-hop", false, "use the Neo4j mirror's multi-hop expansion instead of single-hop graph_neighbors (falls back when unconfigured)")

	return cmd
}
