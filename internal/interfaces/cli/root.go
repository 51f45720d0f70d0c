// Package cli implements the patentsearch command-line entry points: a
// two-subcommand tree ("ingest" and "search") backed by dependencies main
// constructs once and threads through the command tree's context.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patentsearch/evidence-engine/internal/config"
	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/logging"
	"github.com/patentsearch/evidence-engine/internal/ingest"
	"github.com/patentsearch/evidence-engine/internal/retrieval"
	"github.com/patentsearch/evidence-engine/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// cliContextKey is the context key CLIContext is stored under.
type cliContextKey struct{}

// CLIContext carries the dependencies every subcommand needs. There is no
// lazy initialization chain: main builds one of these from config.Config and
// the infrastructure clients it constructs, and every subcommand reads it
// back out of the command's context rather than touching package globals.
type CLIContext struct {
	Config       *config.Config
	Logger       logging.Logger
	Orchestrator *ingest.Orchestrator
	Engine       *retrieval.Engine
}

// NewRootCommand builds the root "patentsearch" command, mounting the
// ingest and search subcommands and making cliCtx available to both via the
// command context.
func NewRootCommand(cliCtx *CLIContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "patentsearch",
		Short:   "Domain-restricted patent evidence search engine",
		Long:    "patentsearch ingests weekly USPTO grant archives into an evidence-chunk\nstore and serves hybrid BM25+vector search over the result.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cliCtx))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewIngestCmd(), NewSearchCmd())
	return cmd
}

// GetCLIContext extracts CLIContext from a cobra command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New(errors.CodeValidation, "command context is nil")
	}

	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.New(errors.CodeValidation, "CLIContext not found in command context")
	}

	return cliCtx, nil
}

// Execute runs the root command against cliCtx, printing any fatal error to
// stderr. The caller maps a non-nil return into a nonzero exit code.
func Execute(cliCtx *CLIContext) error {
	root := NewRootCommand(cliCtx)
	if err := root.Execute(); err != nil {
		PrintError(root, err)
		return err
	}
	return nil
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
}
