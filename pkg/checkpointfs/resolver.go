package checkpointfs

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Defaults for Options.
const (
	DefaultRoot      = "./checkpoint-file-store"
	DefaultDelimiter = "$$"
	// DefaultNamespaceFolder is the folder that stores the "" namespace.
	DefaultNamespaceFolder = "__DEFAULT_NS__"
)

// Folder and file names inside a checkpoint folder.
const (
	checkpointsDir = "checkpoints"
	writesDir      = "writes"
	checkpointFile = "checkpoint"
	metadataFile   = "metadata"
	extraFile      = "extra.json"
)

// PathResolver maps logical identifiers to locations under a root folder
// and decodes write file names back into their parts.
//
//	<root>/<thread>/<ns or __DEFAULT_NS__>/<checkpoint>/checkpoints/{checkpoint,metadata,extra.json}
//	<root>/<thread>/<ns or __DEFAULT_NS__>/<checkpoint>/writes/<task><delim><channel><delim><slot>
type PathResolver struct {
	root      string
	delimiter string
}

// NewPathResolver returns a resolver rooted at root. Empty arguments take
// DefaultRoot and DefaultDelimiter.
func NewPathResolver(root, delimiter string) *PathResolver {
	if root == "" {
		root = DefaultRoot
	}
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	return &PathResolver{root: filepath.Clean(root), delimiter: delimiter}
}

// Root returns the root folder.
func (r *PathResolver) Root() string { return r.root }

// Delimiter returns the token joining write file name parts.
func (r *PathResolver) Delimiter() string { return r.delimiter }

// ThreadPath returns the folder holding every namespace of a thread.
func (r *PathResolver) ThreadPath(threadID string) string {
	return filepath.Join(r.root, threadID)
}

// NamespaceFolder returns the folder name for ns.
func (r *PathResolver) NamespaceFolder(ns string) string {
	if ns == "" {
		return DefaultNamespaceFolder
	}
	return ns
}

// NamespaceFromFolder reverses NamespaceFolder.
func (r *PathResolver) NamespaceFromFolder(folder string) string {
	if folder == DefaultNamespaceFolder {
		return ""
	}
	return folder
}

// NamespacePath returns the folder holding a namespace's checkpoints.
func (r *PathResolver) NamespacePath(threadID, ns string) string {
	return filepath.Join(r.ThreadPath(threadID), r.NamespaceFolder(ns))
}

// CheckpointFolder returns the folder of one checkpoint.
func (r *PathResolver) CheckpointFolder(threadID, ns, checkpointID string) string {
	return filepath.Join(r.NamespacePath(threadID, ns), checkpointID)
}

// CheckpointsPath returns the folder holding the checkpoint, metadata and
// parent link blobs.
func (r *PathResolver) CheckpointsPath(threadID, ns, checkpointID string) string {
	return filepath.Join(r.CheckpointFolder(threadID, ns, checkpointID), checkpointsDir)
}

// WritesPath returns the folder holding one file per pending-write slot.
func (r *PathResolver) WritesPath(threadID, ns, checkpointID string) string {
	return filepath.Join(r.CheckpointFolder(threadID, ns, checkpointID), writesDir)
}

// WriteFileName packs a pending-write key into a file name.
func (r *PathResolver) WriteFileName(taskID, channel string, slot int) string {
	return strings.Join([]string{taskID, channel, strconv.Itoa(slot)}, r.delimiter)
}

// ParseWriteFileName reverses WriteFileName.
func (r *PathResolver) ParseWriteFileName(name string) (taskID, channel string, slot int, err error) {
	parts := strings.Split(name, r.delimiter)
	if len(parts) != 3 {
		return "", "", 0, fmt.Errorf("write file %q: want 3 fields separated by %q, got %d", name, r.delimiter, len(parts))
	}
	slot, err = strconv.Atoi(parts[2])
	if err != nil {
		return "", "", 0, fmt.Errorf("write file %q: bad slot: %w", name, err)
	}
	return parts[0], parts[1], slot, nil
}
