package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/txiso/internal/experiment"
	"github.com/roach88/txiso/internal/store"
)

// BalancesResult is the JSON payload of the balances command.
type BalancesResult struct {
	Workspace store.WorkspaceID `json:"workspace"`
	Balances  []store.Balance   `json:"balances"`
}

// NewBalancesCommand creates the balances command.
func NewBalancesCommand(rootOpts *RootOptions) *cobra.Command {
	var workspace int64

	cmd := &cobra.Command{
		Use:   "balances --workspace W",
		Short: "Print every balance in a workspace",
		Long: `Read every balance in workspace W with a plain read outside any
explicit transaction. Reading twice returns the same set.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBalances(rootOpts, store.WorkspaceID(workspace), cmd)
		},
	}

	cmd.Flags().Int64Var(&workspace, "workspace", 0, "workspace id (required)")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

func runBalances(opts *RootOptions, ws store.WorkspaceID, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx, cancel := opts.commandContext(cmd)
	defer cancel()

	s, err := opts.connect(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConnect, "failed to open store", err)
	}
	defer opts.closeStore(s)

	balances, err := experiment.ReadBalances(ctx, s, ws)
	if err != nil {
		return formatter.FailExperiment("failed to read balances", err)
	}

	if opts.Format == "json" {
		return formatter.Success(BalancesResult{Workspace: ws, Balances: balances})
	}
	if len(balances) == 0 {
		fmt.Fprintf(formatter.Writer, "workspace %d is empty\n", ws)
		return nil
	}
	for _, b := range balances {
		fmt.Fprintln(formatter.Writer, b.String())
	}
	return nil
}
