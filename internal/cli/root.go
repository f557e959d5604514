package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/txiso/internal/config"
	"github.com/roach88/txiso/internal/metrics"
	"github.com/roach88/txiso/internal/store"
)

// RootOptions holds global flags and the state PersistentPreRunE builds
// from them.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Timeout    time.Duration

	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the txiso CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "txiso",
		Short: "txiso - transaction isolation experiments",
		Long: `Run lost-update experiments against a database.

Each experiment allocates a fresh workspace, seeds a small ledger, runs N
concurrent read-modify-write transactions with or without SELECT ... FOR
UPDATE, and compares the final balances with the serial result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.setup(cmd)
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging)")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.ConfigPath, "config", "", "config file (default txiso.yaml in ~/.txiso or the working directory)")
	pf.DurationVar(&opts.Timeout, "timeout", 0, "abort the command after this long (0 disables)")
	pf.String("driver", store.DefaultDriver, "store driver (pgx|postgres|sqlite3|memory)")
	pf.String("dsn", "", "data source name for the store driver")
	pf.Int("max-open-conns", 0, "connection pool cap (0 is unlimited)")
	pf.String("log-level", "info", "log level (debug|info|warn|error)")
	pf.String("log-format", "text", "log format (text|json)")
	pf.String("metrics-file", "", "write Prometheus metrics to this file after the command")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewAllocateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewBalancesCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	// Cobra skips post-run hooks when RunE fails, so export from RunE.
	for _, sub := range cmd.Commands() {
		if sub.RunE != nil {
			sub.RunE = opts.withMetricsExport(sub.RunE)
		}
	}

	return cmd
}

// withMetricsExport runs fn and then writes the metrics file, whether or not
// fn succeeded. A failed export only surfaces when fn itself succeeded.
func (o *RootOptions) withMetricsExport(fn func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		runErr := fn(cmd, args)
		exportErr := o.exportMetrics()
		if runErr != nil {
			if exportErr != nil {
				o.Logger.Warn("metrics export failed", "error", exportErr)
			}
			return runErr
		}
		return exportErr
	}
}

// setup loads configuration and builds the logger and metrics recorder.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath, cmd.Flags())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.Config = cfg
	o.Logger = newLogger(cfg.Logging, o.Verbose, cmd.ErrOrStderr())
	o.Metrics = metrics.New()
	return nil
}

// newLogger builds the process logger. Logs go to w (stderr) so they never
// mix with command output.
func newLogger(cfg config.LoggingConfig, verbose bool, w io.Writer) *slog.Logger {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func (o *RootOptions) exportMetrics() error {
	if o.Config == nil || o.Metrics == nil || o.Config.Metrics.File == "" {
		return nil
	}
	if err := o.Metrics.WriteTextfile(o.Config.Metrics.File); err != nil {
		return WrapExitError(ExitCommandError, "failed to export metrics", err)
	}
	o.Logger.Debug("metrics written", "file", o.Config.Metrics.File)
	return nil
}

// commandContext returns the command's context bounded by --timeout and
// cancelled on SIGINT or SIGTERM.
func (o *RootOptions) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if o.Timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// connect opens the configured store. It does not provision it.
func (o *RootOptions) connect(ctx context.Context) (store.Store, error) {
	sc := o.Config.Store
	s, err := store.Connect(ctx, sc.Driver, sc.DSN, sc.StoreOptions())
	if err != nil {
		return nil, err
	}
	o.Logger.Debug("store connected", "driver", sc.Driver)
	return s, nil
}

// closeStore closes s and logs a failure.
func (o *RootOptions) closeStore(s store.Store) {
	if err := s.Close(); err != nil {
		o.Logger.Error("error closing store", "error", err)
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
