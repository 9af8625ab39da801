package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/checkpointfs/internal/printer"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/checkpoint"
)

func newGetCmd(g *globalOptions) *cobra.Command {
	var (
		namespace string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "get THREAD [CHECKPOINT_ID]",
		Short: "Show one checkpoint with its channels and pending writes",
		Long: `Show one checkpoint. Without CHECKPOINT_ID the latest checkpoint of the
namespace is shown.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := targetConfig(args, namespace)
			return g.withSaver(cmd, func(saver checkpoint.Saver) error {
				tuple, err := loadTuple(cmd, saver, cfg)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), newTupleView(tuple))
				}
				printTuple(cmd.OutOrStdout(), tuple)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&namespace, "ns", "", "Checkpoint namespace")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

// targetConfig builds a config from THREAD [CHECKPOINT_ID] arguments.
func targetConfig(args []string, namespace string) checkpoint.Config {
	cfg := checkpoint.Config{ThreadID: args[0], Namespace: namespace}
	if len(args) > 1 {
		cfg.CheckpointID = args[1]
	}
	return cfg
}

// loadTuple fetches cfg and reports a missing checkpoint as a printed error.
func loadTuple(cmd *cobra.Command, saver checkpoint.Saver, cfg checkpoint.Config) (*checkpoint.Tuple, error) {
	tuple, err := saver.GetTuple(cmd.Context(), cfg)
	if err != nil {
		return nil, printer.Error(cmd.ErrOrStderr(), "Cannot load checkpoint", err.Error(), nil)
	}
	if tuple == nil {
		what := "No checkpoints"
		if cfg.CheckpointID != "" {
			what = fmt.Sprintf("Checkpoint %s", cfg.CheckpointID)
		}
		return nil, printer.Error(cmd.ErrOrStderr(), "Checkpoint not found",
			fmt.Sprintf("%s in thread %q, namespace %s.", what, cfg.ThreadID, displayNamespace(cfg.Namespace)),
			[]string{
				"Run 'ckpt list --thread " + cfg.ThreadID + "' to see stored checkpoints",
				"Check --root or --config point at the right store",
			})
	}
	return tuple, nil
}
