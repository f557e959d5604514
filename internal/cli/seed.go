package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/txiso/internal/experiment"
	"github.com/roach88/txiso/internal/store"
)

// SeedResult is the JSON payload of the seed command.
type SeedResult struct {
	Workspace store.WorkspaceID  `json:"workspace"`
	Entries   []experiment.Entry `json:"entries"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var workspace int64

	cmd := &cobra.Command{
		Use:   "seed --workspace W name=amount...",
		Short: "Insert balances into a workspace",
		Long: `Insert one balance row per name=amount argument into workspace W, all in
one transaction. Names are NFC-normalised; amounts are exact decimals.

Examples:
  txiso seed --workspace 3 Alice=1000 Bob=0`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, store.WorkspaceID(workspace), args, cmd)
		},
	}

	cmd.Flags().Int64Var(&workspace, "workspace", 0, "workspace id (required)")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

func runSeed(opts *RootOptions, ws store.WorkspaceID, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	entries := make([]experiment.Entry, 0, len(args))
	for _, arg := range args {
		e, err := experiment.ParseEntry(arg)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeUsage, "invalid entry", err)
		}
		entries = append(entries, e)
	}

	ctx, cancel := opts.commandContext(cmd)
	defer cancel()

	s, err := opts.connect(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConnect, "failed to open store", err)
	}
	defer opts.closeStore(s)

	if err := experiment.SeedBalances(ctx, s, ws, entries); err != nil {
		return formatter.FailExperiment("failed to seed balances", err)
	}

	if opts.Format == "json" {
		return formatter.Success(SeedResult{Workspace: ws, Entries: entries})
	}
	fmt.Fprintf(formatter.Writer, "✓ seeded %d balance(s) into workspace %d\n", len(entries), ws)
	return nil
}
