package commands

import (
	"slices"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/checkpoint"
)

func newWritesCmd(g *globalOptions) *cobra.Command {
	var (
		namespace string
		taskID    string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "writes THREAD [CHECKPOINT_ID]",
		Short: "Show pending writes staged against a checkpoint",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := targetConfig(args, namespace)
			return g.withSaver(cmd, func(saver checkpoint.Saver) error {
				tuple, err := loadTuple(cmd, saver, cfg)
				if err != nil {
					return err
				}
				writes := tuple.PendingWrites
				if taskID != "" {
					writes = slices.DeleteFunc(slices.Clone(writes), func(w checkpoint.PendingWrite) bool {
						return w.TaskID != taskID
					})
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), newWriteViews(writes))
				}
				printWrites(cmd.OutOrStdout(), writes)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&namespace, "ns", "", "Checkpoint namespace")
	cmd.Flags().StringVar(&taskID, "task", "", "Only writes from this task")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}
