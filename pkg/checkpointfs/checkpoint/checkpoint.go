package checkpoint

import (
	"encoding/json"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to checkpoint structure.
const Version = 4

// Metadata sources.
const (
	SourceInput  = "input"
	SourceLoop   = "loop"
	SourceUpdate = "update"
	SourceFork   = "fork"
)

// Checkpoint is an immutable snapshot of channel state at one step.
type Checkpoint struct {
	V  int       `json:"v" yaml:"v"`
	ID string    `json:"id" yaml:"id"`
	TS time.Time `json:"ts" yaml:"ts"`

	// ChannelValues maps channel name to its current value.
	ChannelValues map[string]any `json:"channel_values" yaml:"channel_values"`

	// ChannelVersions maps channel name to its version counter.
	ChannelVersions map[string]int64 `json:"channel_versions" yaml:"channel_versions"`

	// VersionsSeen records, per node, the channel versions that node observed.
	VersionsSeen map[string]map[string]int64 `json:"versions_seen" yaml:"versions_seen"`
}

// New creates a checkpoint with a fresh time-ordered id and the current UTC time.
func New(values map[string]any, versions map[string]int64, seen map[string]map[string]int64) *Checkpoint {
	return &Checkpoint{
		V:               Version,
		ID:              NewID(),
		TS:              time.Now().UTC(),
		ChannelValues:   values,
		ChannelVersions: versions,
		VersionsSeen:    seen,
	}
}

// NewID returns a new checkpoint id. Ids are UUIDv7 strings, so comparing
// them as strings orders them by creation time.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Copy returns a copy of the checkpoint whose maps can be modified without
// affecting the original. Channel values themselves are not deep-copied.
func (c *Checkpoint) Copy() *Checkpoint {
	if c == nil {
		return nil
	}
	cp := *c
	cp.ChannelValues = maps.Clone(c.ChannelValues)
	cp.ChannelVersions = maps.Clone(c.ChannelVersions)
	if c.VersionsSeen != nil {
		cp.VersionsSeen = make(map[string]map[string]int64, len(c.VersionsSeen))
		for node, seen := range c.VersionsSeen {
			cp.VersionsSeen[node] = maps.Clone(seen)
		}
	}
	return &cp
}

// Metadata describes how a checkpoint was produced.
//
// Metadata is stored as one flat document: Extra keys sit beside source,
// step and parents, and unknown keys read back into Extra.
type Metadata struct {
	// Source is one of the Source* constants.
	Source string
	// Step is the execution step counter (-1 for the input checkpoint).
	Step int
	// Parents maps parent namespace to parent checkpoint id for subgraphs.
	// Always non-nil after decoding.
	Parents map[string]string
	// Extra carries free-form caller fields.
	Extra map[string]any
}

// metadataFields holds the keys with fixed types.
type metadataFields struct {
	Source  string            `json:"source" yaml:"source"`
	Step    int               `json:"step" yaml:"step"`
	Parents map[string]string `json:"parents" yaml:"parents"`
}

var metadataKeys = []string{"source", "step", "parents"}

// document flattens the metadata. Known fields win over Extra keys.
func (m Metadata) document() map[string]any {
	doc := make(map[string]any, len(m.Extra)+len(metadataKeys))
	maps.Copy(doc, m.Extra)
	doc["source"] = m.Source
	doc["step"] = m.Step
	parents := m.Parents
	if parents == nil {
		parents = map[string]string{}
	}
	doc["parents"] = parents
	return doc
}

func (m *Metadata) assign(fields metadataFields, doc map[string]any) {
	m.Source = fields.Source
	m.Step = fields.Step
	m.Parents = fields.Parents
	if m.Parents == nil {
		m.Parents = map[string]string{}
	}
	m.Extra = nil
	for k, v := range doc {
		if slices.Contains(metadataKeys, k) {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]any)
		}
		m.Extra[k] = v
	}
}

// MarshalJSON writes the flat metadata document.
func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.document())
}

// UnmarshalJSON reads a flat metadata document.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var fields metadataFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	m.assign(fields, doc)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (m Metadata) MarshalYAML() (any, error) {
	return m.document(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *Metadata) UnmarshalYAML(node *yaml.Node) error {
	var fields metadataFields
	if err := node.Decode(&fields); err != nil {
		return err
	}
	var doc map[string]any
	if err := node.Decode(&doc); err != nil {
		return err
	}
	m.assign(fields, doc)
	return nil
}

// Fields flattens the metadata into a field map for filtering.
// Known fields take precedence over Extra keys with the same name.
func (m *Metadata) Fields() map[string]any {
	if m == nil {
		return map[string]any{}
	}
	fields := make(map[string]any, len(m.Extra)+3)
	for k, v := range m.Extra {
		fields[k] = v
	}
	fields["source"] = m.Source
	fields["step"] = m.Step
	parents := make(map[string]any, len(m.Parents))
	for k, v := range m.Parents {
		parents[k] = v
	}
	fields["parents"] = parents
	return fields
}

// Write is a single (channel, value) pair submitted by a task.
type Write struct {
	Channel string
	Value   any
}

// PendingWrite is a stored write as returned by GetTuple.
type PendingWrite struct {
	TaskID  string
	Channel string
	Value   any
}

// Reserved channel names with fixed slot indices. Negative slots are always
// overwritten instead of following first-write-wins.
const (
	ErrorChannel     = "__error__"
	ScheduledChannel = "__scheduled__"
	InterruptChannel = "__interrupt__"
	ResumeChannel    = "__resume__"
)

var reservedSlots = map[string]int{
	ErrorChannel:     -1,
	ScheduledChannel: -2,
	InterruptChannel: -3,
	ResumeChannel:    -4,
}

// SlotIndex returns the slot a write occupies: the reserved index for
// well-known channels, otherwise its position in the submitted batch.
func SlotIndex(channel string, position int) int {
	if slot, ok := reservedSlots[channel]; ok {
		return slot
	}
	return position
}

// Config addresses a checkpoint. For Put, CheckpointID names the parent.
type Config struct {
	ThreadID     string `json:"thread_id"`
	Namespace    string `json:"checkpoint_ns"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
}

// WithCheckpointID returns a copy of the config pointing at id.
func (c Config) WithCheckpointID(id string) Config {
	c.CheckpointID = id
	return c
}

// Selector narrows List. The zero value selects every thread and namespace.
type Selector struct {
	ThreadID string
	// Namespace restricts listing to one namespace when non-nil.
	// A pointer to "" selects the default namespace.
	Namespace    *string
	CheckpointID string
}

// InNamespace returns a copy of the selector restricted to ns.
func (s Selector) InNamespace(ns string) Selector {
	s.Namespace = &ns
	return s
}

// Selector returns a selector matching the config's thread, namespace and
// checkpoint id.
func (c Config) Selector() Selector {
	return Selector{ThreadID: c.ThreadID, CheckpointID: c.CheckpointID}.InNamespace(c.Namespace)
}

// Tuple is a checkpoint with everything stored alongside it.
type Tuple struct {
	Config        Config
	Checkpoint    *Checkpoint
	Metadata      *Metadata
	PendingWrites []PendingWrite
	// ParentConfig is nil for root checkpoints.
	ParentConfig *Config
}
