// Package snapshot models full-table snapshots of spreadsheet-like sources
// and the diff between two snapshot versions.
package snapshot

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Table is a full snapshot of a source at one sync version. Rows are keyed
// by the first column so two versions can be compared row-by-row.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// RowKey returns the comparison key for a row. The first cell identifies
// the row; the full joined row detects in-place edits.
func RowKey(row []string) string {
	if len(row) == 0 {
		return ""
	}
	return row[0]
}

// rowFingerprint is the change-detection value for a row.
func rowFingerprint(row []string) string {
	return strings.Join(row, "\x1f")
}

// Encode serializes the table to its artifact representation.
func (t *Table) Encode() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode deserializes a table from its artifact representation.
func Decode(data []byte) (*Table, error) {
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &t, nil
}

// SchemaEqual reports whether two snapshots share the same column set.
func SchemaEqual(a, b *Table) bool {
	if len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	return true
}

// Artifact kinds stored per (source, version).
const (
	KindRaw    = "raw"
	KindSchema = "schema"
	KindDiff   = "diff"
)

// ArtifactKey addresses one artifact object in blob storage.
func ArtifactKey(sourceID string, version int64, kind string) string {
	return fmt.Sprintf("%s/%d/%s", sourceID, version, kind)
}

// ArtifactKeys returns all artifact keys for one cycle version.
func ArtifactKeys(sourceID string, version int64) []string {
	return []string{
		ArtifactKey(sourceID, version, KindRaw),
		ArtifactKey(sourceID, version, KindSchema),
		ArtifactKey(sourceID, version, KindDiff),
	}
}
