package commands

import (
	"github.com/spf13/cobra"

	"github.com/randalmurphal/checkpointfs/internal/printer"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/checkpoint"
)

func newDeleteCmd(g *globalOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete THREAD",
		Short: "Delete every checkpoint and pending write of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			thread := args[0]
			if !yes {
				return printer.Error(cmd.ErrOrStderr(), "Refusing to delete without --yes",
					"Deleting thread "+thread+" removes all of its checkpoints and cannot be undone.",
					[]string{"Re-run with --yes to confirm"})
			}
			return g.withSaver(cmd, func(saver checkpoint.Saver) error {
				if err := saver.DeleteThread(cmd.Context(), thread); err != nil {
					return printer.Error(cmd.ErrOrStderr(), "Delete failed", err.Error(), nil)
				}
				printer.Success(cmd.OutOrStdout(), "Deleted thread %s", thread)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")
	return cmd
}
