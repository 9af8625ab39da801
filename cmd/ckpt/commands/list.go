package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/checkpointfs/internal/printer"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/checkpoint"
)

type listOptions struct {
	thread     string
	namespace  string
	checkpoint string
	before     string
	limit      int
	filters    []string
	where      string
	json       bool
}

func newListCmd(g *globalOptions) *cobra.Command {
	o := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored checkpoints, newest first per namespace",
		Long: `List stored checkpoints.

Without --thread every thread is listed. Without --ns every namespace of the
selected threads is listed; pass --ns "" for the default namespace.

Filters:
  --filter key=value  metadata field equality (value parsed as JSON,
                      otherwise taken as a string); repeatable
  --where  EXPR       CEL expression over thread_id, checkpoint_ns,
                      checkpoint_id, source, step and metadata

Examples:
  ckpt list --thread t1 --limit 3
  ckpt list --filter source=loop --where 'step > 1'
  ckpt list --thread t1 --json | jq '.[0].config'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, g, o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.thread, "thread", "t", "", "Thread id")
	f.StringVar(&o.namespace, "ns", "", "Checkpoint namespace")
	f.StringVar(&o.checkpoint, "checkpoint", "", "Exact checkpoint id")
	f.StringVar(&o.before, "before", "", "Only checkpoints with ids below this id")
	f.IntVarP(&o.limit, "limit", "n", -1, "Maximum checkpoints per namespace (negative for all)")
	f.StringArrayVar(&o.filters, "filter", nil, "Metadata filter key=value (repeatable)")
	f.StringVar(&o.where, "where", "", "CEL filter expression")
	f.BoolVar(&o.json, "json", false, "Output in JSON format")
	return cmd
}

func runList(cmd *cobra.Command, g *globalOptions, o *listOptions) error {
	fields, err := parseFilters(o.filters)
	if err != nil {
		return printer.Error(cmd.ErrOrStderr(), "Invalid --filter", err.Error(), []string{
			"Use key=value, e.g. --filter source=loop or --filter step=2",
		})
	}

	sel := checkpoint.Selector{ThreadID: o.thread, CheckpointID: o.checkpoint}
	if cmd.Flags().Changed("ns") {
		sel = sel.InNamespace(o.namespace)
	}
	opts := []checkpoint.ListOption{
		checkpoint.WithBefore(o.before),
		checkpoint.WithLimit(o.limit),
		checkpoint.WithFilter(fields),
		checkpoint.WithWhere(o.where),
	}

	return g.withSaver(cmd, func(saver checkpoint.Saver) error {
		out := cmd.OutOrStdout()
		views := []tupleView{}
		table := newTupleTable(out)
		for tuple, err := range saver.List(cmd.Context(), sel, opts...) {
			if err != nil {
				return printer.Error(cmd.ErrOrStderr(), "List failed", err.Error(), nil)
			}
			if o.json {
				views = append(views, newTupleView(tuple))
				continue
			}
			table.Row(tupleRow(tuple)...)
		}

		if o.json {
			return writeJSON(out, views)
		}
		if table.Rows() == 0 {
			printer.Muted(out, "No checkpoints found.")
			return nil
		}
		table.Footer("checkpoint")
		return nil
	})
}

// parseFilters turns key=value pairs into a metadata filter. Values that
// parse as JSON keep their JSON type; anything else is a string.
func parseFilters(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	fields := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("filter %q: want key=value", pair)
		}
		var val any
		if err := json.Unmarshal([]byte(raw), &val); err != nil {
			val = raw
		}
		fields[key] = val
	}
	return fields, nil
}
