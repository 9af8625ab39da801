// Package commands implements the ckpt inspection CLI.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/checkpointfs/internal/printer"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/checkpoint"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/config"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/observability"
)

var versionString = "dev"

// SetVersionInfo sets the version reported by --version.
func SetVersionInfo(v, c, d string) {
	versionString = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

// Execute builds the root command and runs it.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	backend    string
	root       string
	delimiter  string
	format     string
	sqlitePath string
	logLevel   string
	noColor    bool

	// lookupEnv is os.LookupEnv outside tests.
	lookupEnv func(string) (string, bool)
}

// NewRootCmd constructs the ckpt command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&globalOptions{lookupEnv: os.LookupEnv})
}

func newRootCmd(g *globalOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "ckpt",
		Short: "Inspect and manage stored graph checkpoints",
		Long: `ckpt reads the checkpoint store written by a graph runtime.

Settings are resolved in order: built-in defaults, the --config file
(YAML or JSON), CKPT_* environment variables, then command-line flags.

Examples:
  # List the newest checkpoints of a thread
  ckpt list --thread t1 --limit 5

  # Show the latest checkpoint of a thread
  ckpt get t1

  # Run an inspection query
  ckpt query lineage t1`,
		Version:       versionString,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.noColor {
				printer.DisableColor()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Settings file (.yaml, .yml or .json)")
	pf.StringVar(&g.backend, config.KeyBackend, "", "Storage backend: file, sqlite or memory")
	pf.StringVar(&g.root, config.KeyRoot, "", "Root directory of the file backend")
	pf.StringVar(&g.delimiter, config.KeyDelimiter, "", "Pending-write file name delimiter")
	pf.StringVar(&g.format, config.KeyFormat, "", "Value encoding: json or yaml")
	pf.StringVar(&g.sqlitePath, "sqlite-path", "", "Database file of the sqlite backend")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.BoolVar(&g.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newListCmd(g),
		newGetCmd(g),
		newWritesCmd(g),
		newQueryCmd(g),
		newDeleteCmd(g),
	)
	return root
}

// settings resolves defaults, the config file, the environment and flags.
func (g *globalOptions) settings(cmd *cobra.Command) (config.Store, error) {
	store := config.Default()
	if g.configPath != "" {
		var err error
		store, err = config.FromFile(g.configPath)
		if err != nil {
			return store, err
		}
	}
	store = store.ApplyEnv(g.lookupEnv)

	flags := cmd.Flags()
	overrides := []struct {
		flag string
		dst  *string
		val  string
	}{
		{config.KeyBackend, &store.Backend, g.backend},
		{config.KeyRoot, &store.Root, g.root},
		{config.KeyDelimiter, &store.Delimiter, g.delimiter},
		{config.KeyFormat, &store.Format, g.format},
		{"sqlite-path", &store.SQLitePath, g.sqlitePath},
		{"log-level", &store.LogLevel, g.logLevel},
	}
	for _, o := range overrides {
		if flags.Changed(o.flag) {
			*o.dst = o.val
		}
	}
	return store.ExpandPaths(g.lookupEnv), nil
}

// open builds the saver selected by the resolved settings. Logs go to the
// command's stderr.
func (g *globalOptions) open(cmd *cobra.Command) (checkpoint.Saver, func() error, error) {
	store, err := g.settings(cmd)
	if err != nil {
		return nil, nil, printer.Error(cmd.ErrOrStderr(), "Cannot load settings", err.Error(), []string{
			"Check the path passed to --config",
		})
	}
	if err := store.Validate(); err != nil {
		return nil, nil, printer.Error(cmd.ErrOrStderr(), "Invalid settings", err.Error(), nil)
	}

	logger, err := observability.NewLogger(cmd.ErrOrStderr(), store.LogLevel, store.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	saver, closeFn, err := store.Open(logger.With(slog.String("backend", store.Backend)))
	if err != nil {
		return nil, nil, printer.Error(cmd.ErrOrStderr(), "Cannot open checkpoint store", err.Error(), nil)
	}
	return saver, closeFn, nil
}

// withSaver opens the saver, runs fn and closes the saver.
func (g *globalOptions) withSaver(cmd *cobra.Command, fn func(checkpoint.Saver) error) error {
	saver, closeFn, err := g.open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()
	return fn(saver)
}
