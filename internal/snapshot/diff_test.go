package snapshot

import (
	"testing"
)

func table(columns []string, rows ...[]string) *Table {
	return &Table{Columns: columns, Rows: rows}
}

func TestCompare_FirstCycle(t *testing.T) {
	curr := table([]string{"id", "name"},
		[]string{"1", "alpha"},
		[]string{"2", "beta"},
	)

	diff := Compare(nil, curr)

	if len(diff.AddedRows) != 2 {
		t.Errorf("expected 2 added rows, got %d", len(diff.AddedRows))
	}
	if len(diff.DeletedRows) != 0 {
		t.Errorf("expected no deleted rows, got %d", len(diff.DeletedRows))
	}
	if diff.SchemaChanged {
		t.Error("first cycle should not flag schema change")
	}
}

func TestCompare_AddsAndDeletes(t *testing.T) {
	prev := table([]string{"id", "name"},
		[]string{"1", "alpha"},
		[]string{"2", "beta"},
		[]string{"3", "gamma"},
	)
	curr := table([]string{"id", "name"},
		[]string{"1", "alpha"},
		[]string{"4", "delta"},
	)

	diff := Compare(prev, curr)

	if len(diff.AddedRows) != 1 || RowKey(diff.AddedRows[0]) != "4" {
		t.Errorf("expected one added row with key 4, got %v", diff.AddedRows)
	}
	if len(diff.DeletedRows) != 2 {
		t.Errorf("expected two deleted rows, got %v", diff.DeletedRows)
	}
}

func TestCompare_ModifiedRowIsDeletePlusAdd(t *testing.T) {
	prev := table([]string{"id", "name"}, []string{"1", "alpha"})
	curr := table([]string{"id", "name"}, []string{"1", "ALPHA"})

	diff := Compare(prev, curr)

	if len(diff.AddedRows) != 1 {
		t.Fatalf("expected one added row, got %v", diff.AddedRows)
	}
	if len(diff.DeletedRows) != 1 {
		t.Fatalf("expected one deleted row, got %v", diff.DeletedRows)
	}
	if diff.AddedRows[0][1] != "ALPHA" || diff.DeletedRows[0][1] != "alpha" {
		t.Errorf("expected new row added and old row deleted, got %v / %v",
			diff.AddedRows, diff.DeletedRows)
	}
}

func TestCompare_SchemaChange(t *testing.T) {
	prev := table([]string{"id", "name"}, []string{"1", "alpha"})
	curr := table([]string{"id", "name", "email"}, []string{"1", "alpha", "a@x"})

	diff := Compare(prev, curr)

	if !diff.SchemaChanged {
		t.Error("expected schema change flag")
	}
}

func TestCompare_NoChanges(t *testing.T) {
	prev := table([]string{"id", "name"}, []string{"1", "alpha"})
	curr := table([]string{"id", "name"}, []string{"1", "alpha"})

	diff := Compare(prev, curr)

	if len(diff.AddedRows) != 0 || len(diff.DeletedRows) != 0 || diff.SchemaChanged {
		t.Errorf("expected empty diff, got %+v", diff)
	}
}

func TestEncodeDecode_Roundtrip(t *testing.T) {
	curr := table([]string{"id"}, []string{"1"})

	data, err := curr.Encode()
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if !SchemaEqual(curr, decoded) || len(decoded.Rows) != 1 {
		t.Errorf("roundtrip mismatch: %+v", decoded)
	}
}

func TestArtifactKeys(t *testing.T) {
	keys := ArtifactKeys("src-1", 3)
	want := []string{"src-1/3/raw", "src-1/3/schema", "src-1/3/diff"}

	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d: expected %q, got %q", i, want[i], keys[i])
		}
	}
}
