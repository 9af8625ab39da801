package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/checkpointfs/internal/printer"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/checkpoint"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/query"
)

func newQueryCmd(g *globalOptions) *cobra.Command {
	var (
		namespace string
		arg       string
	)
	cmd := &cobra.Command{
		Use:   "query NAME THREAD [CHECKPOINT_ID]",
		Short: "Run a read-only inspection query",
		Long: `Run a read-only inspection query and print its result as JSON.

Queries:
  latest          summary of the checkpoint
  channels        all channel values
  channel         one channel value (--arg CHANNEL)
  pending_writes  pending writes (--arg TASK_ID to filter)
  history         summaries newest first (--arg LIMIT)
  lineage         checkpoint ids back to the root`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			cfg := targetConfig(args[1:], namespace)
			return g.withSaver(cmd, func(saver checkpoint.Saver) error {
				registry := query.NewRegistry()
				if err := query.RegisterBuiltins(registry, saver); err != nil {
					return err
				}

				var qargs any
				if cmd.Flags().Changed("arg") {
					qargs = arg
				}
				val, err := query.NewExecutor(registry).Execute(cmd.Context(), cfg, name, qargs)
				if err != nil {
					return printer.Error(cmd.ErrOrStderr(), fmt.Sprintf("Query %s failed", name), err.Error(), []string{
						"Available queries: " + strings.Join(registry.List(), ", "),
					})
				}
				if writes, ok := val.([]checkpoint.PendingWrite); ok {
					return writeJSON(cmd.OutOrStdout(), newWriteViews(writes))
				}
				return writeJSON(cmd.OutOrStdout(), val)
			})
		},
	}
	cmd.Flags().StringVar(&namespace, "ns", "", "Checkpoint namespace")
	cmd.Flags().StringVar(&arg, "arg", "", "Query argument")
	return cmd
}
