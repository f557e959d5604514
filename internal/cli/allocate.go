package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/txiso/internal/experiment"
	"github.com/roach88/txiso/internal/store"
)

// AllocateResult is the JSON payload of the allocate command.
type AllocateResult struct {
	Workspaces []store.WorkspaceID `json:"workspaces"`
}

// NewAllocateCommand creates the allocate command.
func NewAllocateCommand(rootOpts *RootOptions) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Allocate fresh workspace ids",
		Long: `Allocate workspace ids from next_workspace_id.

With --count M the allocations run concurrently, each in its own
transaction, and the M ids printed are distinct.

Examples:
  txiso allocate
  txiso allocate --count 10 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAllocate(rootOpts, count, cmd)
		},
	}

	cmd.Flags().IntVar(&count, "count", 1, "number of workspaces to allocate concurrently")
	return cmd
}

func runAllocate(opts *RootOptions, count int, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	if count < 1 {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, fmt.Sprintf("--count must be at least 1, got %d", count), nil)
	}

	ctx, cancel := opts.commandContext(cmd)
	defer cancel()

	s, err := opts.connect(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConnect, "failed to open store", err)
	}
	defer opts.closeStore(s)

	ids, err := experiment.AllocateWorkspaces(ctx, s, count)
	if err != nil {
		return formatter.FailExperiment("failed to allocate workspaces", err)
	}
	for range ids {
		opts.Metrics.WorkspaceAllocated()
	}

	if opts.Format == "json" {
		return formatter.Success(AllocateResult{Workspaces: ids})
	}
	for _, id := range ids {
		fmt.Fprintf(formatter.Writer, "workspace %d\n", id)
	}
	return nil
}
