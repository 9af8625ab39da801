package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/randalmurphal/checkpointfs/internal/printer"
	"github.com/randalmurphal/checkpointfs/pkg/checkpointfs/checkpoint"
)

// tupleView is the JSON shape of a checkpoint tuple.
type tupleView struct {
	Config        checkpoint.Config      `json:"config"`
	ParentID      string                 `json:"parent_id,omitempty"`
	Checkpoint    *checkpoint.Checkpoint `json:"checkpoint"`
	Metadata      *checkpoint.Metadata   `json:"metadata"`
	PendingWrites []writeView            `json:"pending_writes"`
}

type writeView struct {
	TaskID  string `json:"task_id"`
	Channel string `json:"channel"`
	Value   any    `json:"value"`
}

func newTupleView(t *checkpoint.Tuple) tupleView {
	v := tupleView{
		Config:        t.Config,
		Checkpoint:    t.Checkpoint,
		Metadata:      t.Metadata,
		PendingWrites: newWriteViews(t.PendingWrites),
	}
	if t.ParentConfig != nil {
		v.ParentID = t.ParentConfig.CheckpointID
	}
	return v
}

func newWriteViews(writes []checkpoint.PendingWrite) []writeView {
	views := make([]writeView, 0, len(writes))
	for _, w := range writes {
		views = append(views, writeView{TaskID: w.TaskID, Channel: w.Channel, Value: w.Value})
	}
	return views
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTupleTable creates the list output table.
func newTupleTable(w io.Writer) *printer.Table {
	return printer.NewTable(w,
		[]string{"CHECKPOINT", "THREAD", "NAMESPACE", "SOURCE", "STEP", "WRITES"},
		[]int{36, 16, 16, 8, 5},
	)
}

// tupleRow renders a tuple as a list table row.
func tupleRow(t *checkpoint.Tuple) []string {
	ns := t.Config.Namespace
	if ns == "" {
		ns = "-"
	}
	source, step := "", 0
	if t.Metadata != nil {
		source, step = t.Metadata.Source, t.Metadata.Step
	}
	return []string{
		t.Config.CheckpointID,
		t.Config.ThreadID,
		ns,
		source,
		strconv.Itoa(step),
		strconv.Itoa(len(t.PendingWrites)),
	}
}

// printTuple prints a tuple in detail for get output.
func printTuple(w io.Writer, t *checkpoint.Tuple) {
	printer.Heading(w, "Checkpoint "+t.Config.CheckpointID)
	printer.Field(w, "thread", t.Config.ThreadID)
	printer.Field(w, "namespace", displayNamespace(t.Config.Namespace))
	if t.ParentConfig != nil {
		printer.Field(w, "parent", t.ParentConfig.CheckpointID)
	}
	if t.Checkpoint != nil {
		printer.Field(w, "version", t.Checkpoint.V)
		printer.Field(w, "ts", t.Checkpoint.TS.Format(time.RFC3339Nano))
	}
	if t.Metadata != nil {
		printer.Field(w, "source", t.Metadata.Source)
		printer.Field(w, "step", t.Metadata.Step)
	}

	if t.Checkpoint != nil {
		printer.Heading(w, "Channels")
		if len(t.Checkpoint.ChannelValues) == 0 {
			printer.Muted(w, "  (none)")
		}
		printer.Fields(w, t.Checkpoint.ChannelValues)
	}

	printer.Heading(w, "Pending writes")
	printWrites(w, t.PendingWrites)
}

func printWrites(w io.Writer, writes []checkpoint.PendingWrite) {
	if len(writes) == 0 {
		printer.Muted(w, "  (none)")
		return
	}
	for _, pw := range writes {
		printer.Info(w, "  %-24s %-16s %s", pw.TaskID, pw.Channel, compact(pw.Value))
	}
}

func displayNamespace(ns string) string {
	if ns == "" {
		return "(default)"
	}
	return ns
}

// compact renders a value as single-line JSON, falling back to %v.
func compact(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSpace(string(data))
}
