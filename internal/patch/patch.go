// Package patch defines the JSON patch operations that flow through message
// stores, and the tagged payloads carried at "/entries/{index}" paths.
package patch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Op is a patch operation name. Only add, replace and remove are produced
// or understood.
type Op string

const (
	OpAdd     Op = "add"
	OpReplace Op = "replace"
	OpRemove  Op = "remove"
)

// Operation is a single JSON patch operation.
type Operation struct {
	Op    Op              `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Patch is an ordered list of operations applied atomically by consumers.
type Patch []Operation

// Payload type tags used inside entry values and ledger wrappers.
const (
	TypeStdout          = "STDOUT"
	TypeStderr          = "STDERR"
	TypeNormalizedEntry = "NORMALIZED_ENTRY"
	TypeDiff            = "DIFF"
)

// Tagged is the {"type":...,"content":...} wrapper used for entry values.
type Tagged struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

const entriesPrefix = "/entries/"

// EntryPath returns the patch path addressing the entry at index.
func EntryPath(index uint64) string {
	return entriesPrefix + strconv.FormatUint(index, 10)
}

// ParseEntryPath extracts the index from a "/entries/{index}" path.
func ParseEntryPath(path string) (uint64, bool) {
	rest, ok := strings.CutPrefix(path, entriesPrefix)
	if !ok || rest == "" {
		return 0, false
	}
	index, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return index, true
}

// Wrap encodes content under the given type tag.
func Wrap(typ string, content any) (json.RawMessage, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s content: %w", typ, err)
	}
	return json.Marshal(Tagged{Type: typ, Content: raw})
}

// AddNormalizedEntry builds a patch adding entry at index.
func AddNormalizedEntry(index uint64, entry NormalizedEntry) (Patch, error) {
	return entryPatch(OpAdd, index, entry)
}

// ReplaceNormalizedEntry builds a patch replacing the entry at index.
func ReplaceNormalizedEntry(index uint64, entry NormalizedEntry) (Patch, error) {
	return entryPatch(OpReplace, index, entry)
}

func entryPatch(op Op, index uint64, entry NormalizedEntry) (Patch, error) {
	value, err := Wrap(TypeNormalizedEntry, entry)
	if err != nil {
		return nil, err
	}
	return Patch{{Op: op, Path: EntryPath(index), Value: value}}, nil
}

// NormalizedEntryAt reports whether op upserts a normalized entry, returning
// its index and the tagged value. Remove operations, other paths and other
// value types report false.
func NormalizedEntryAt(op Operation) (uint64, json.RawMessage, bool) {
	if op.Op != OpAdd && op.Op != OpReplace {
		return 0, nil, false
	}
	index, ok := ParseEntryPath(op.Path)
	if !ok {
		return 0, nil, false
	}
	var tagged Tagged
	if err := json.Unmarshal(op.Value, &tagged); err != nil {
		return 0, nil, false
	}
	if tagged.Type != TypeNormalizedEntry || len(tagged.Content) == 0 {
		return 0, nil, false
	}
	return index, op.Value, true
}

// EntityPath returns "/{collection}/{id}".
func EntityPath(collection, id string) string {
	return "/" + collection + "/" + id
}

// Add builds a single-op patch adding value at "/{collection}/{id}".
func Add(collection, id string, value any) (Patch, error) {
	return entityPatch(OpAdd, collection, id, value)
}

// Replace builds a single-op patch replacing the value at "/{collection}/{id}".
func Replace(collection, id string, value any) (Patch, error) {
	return entityPatch(OpReplace, collection, id, value)
}

// Remove builds a single-op patch removing "/{collection}/{id}".
func Remove(collection, id string) Patch {
	return Patch{{Op: OpRemove, Path: EntityPath(collection, id)}}
}

func entityPatch(op Op, collection, id string, value any) (Patch, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s value: %w", collection, err)
	}
	return Patch{{Op: op, Path: EntityPath(collection, id), Value: raw}}, nil
}
