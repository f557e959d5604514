package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// InitResult is the JSON payload of the init command.
type InitResult struct {
	Driver   string `json:"driver"`
	Migrated bool   `json:"migrated"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the schema and the workspace counter",
		Long: `Create the key_int_value and balance tables if they are missing and
insert next_workspace_id = 1 when the counter row is absent.

init is idempotent. Every other command assumes it has been run.

Examples:
  txiso init --driver pgx --dsn postgres://localhost/txiso
  txiso init --driver sqlite3 --dsn ./txiso.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, cmd)
		},
	}
}

func runInit(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx, cancel := opts.commandContext(cmd)
	defer cancel()

	s, err := opts.connect(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConnect, "failed to open store", err)
	}
	defer opts.closeStore(s)

	if err := s.Migrate(ctx); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConnect, "failed to migrate store", err)
	}
	opts.Logger.Info("schema ready", "driver", opts.Config.Store.Driver)

	if opts.Format == "json" {
		return formatter.Success(InitResult{Driver: opts.Config.Store.Driver, Migrated: true})
	}
	fmt.Fprintf(formatter.Writer, "✓ schema ready (%s)\n", opts.Config.Store.Driver)
	return nil
}
