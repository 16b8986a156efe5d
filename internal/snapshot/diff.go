package snapshot

import "encoding/json"

// Diff is the result of comparing a sync version against its baseline.
// A modified row appears as a delete of the old row plus an add of the new
// one, which is how the loader applies it.
type Diff struct {
	AddedRows     [][]string `json:"added_rows"`
	DeletedRows   [][]string `json:"deleted_rows"`
	SchemaChanged bool       `json:"schema_changed"`
}

// Compare diffs the current snapshot against the previous one. prev may be
// nil for the first cycle, in which case every row is an add.
func Compare(prev, curr *Table) *Diff {
	diff := &Diff{}

	if prev == nil {
		diff.AddedRows = append(diff.AddedRows, curr.Rows...)
		return diff
	}

	diff.SchemaChanged = !SchemaEqual(prev, curr)

	prevByKey := make(map[string]string, len(prev.Rows))
	for _, row := range prev.Rows {
		prevByKey[RowKey(row)] = rowFingerprint(row)
	}

	currKeys := make(map[string]bool, len(curr.Rows))
	for _, row := range curr.Rows {
		key := RowKey(row)
		currKeys[key] = true

		prevPrint, existed := prevByKey[key]
		if !existed {
			diff.AddedRows = append(diff.AddedRows, row)
			continue
		}
		if prevPrint != rowFingerprint(row) {
			// Modified: replace the baseline row.
			diff.AddedRows = append(diff.AddedRows, row)
			for _, prevRow := range prev.Rows {
				if RowKey(prevRow) == key {
					diff.DeletedRows = append(diff.DeletedRows, prevRow)
					break
				}
			}
		}
	}

	for _, row := range prev.Rows {
		if !currKeys[RowKey(row)] {
			diff.DeletedRows = append(diff.DeletedRows, row)
		}
	}

	return diff
}

// Encode serializes the diff to its artifact representation.
func (d *Diff) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// DecodeDiff deserializes a diff artifact.
func DecodeDiff(data []byte) (*Diff, error) {
	var d Diff
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
