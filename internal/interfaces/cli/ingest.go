package cli

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/patentsearch/evidence-engine/internal/ingest"
)

// NewIngestCmd builds the "ingest" subcommand: discover and download new
// USPTO grant archives, parse and filter by CPC prefix, persist chunks, and
// backfill embeddings for anything still missing one.
func NewIngestCmd() *cobra.Command {
	var (
		weeks       int
		cpcPrefix   string
		sinceLast   bool
		lockTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest weekly USPTO grant archives into the evidence store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			result, err := cliCtx.Orchestrator.Run(cmd.Context(), ingest.Options{
				Weeks:       weeks,
				CPCPrefix:   cpcPrefix,
				SinceLast:   sinceLast,
				LockTimeout: lockTimeout,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().IntVar(&weeks, "weeks", 12, "number of most recent weeks to consider")
	cmd.Flags().StringVar(&cpcPrefix, "cpc", "G06F", "CPC code prefix patents must match to be ingested")
	cmd.Flags().BoolVar(&sinceLast, "since-last", false, "does not change week selection; already-processed weeks are always skipped")
	cmd.Flags().DurationVar(&lockTimeout, "lock-timeout", 0, "how long to wait for the distributed ingest lock (0 = fail fast)")

	return cmd
}
