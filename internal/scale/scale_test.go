// SPDX-License-Identifier: MIT
package scale

import (
	"os"
	"path/filepath"
	"testing"
)

func quarterToneDef() Definition {
	return Definition{
		Name:  "test-quarter",
		Notes: map[int]float64{0: 0, 1: 150, 2: 350, 3: 500},
		NoteNames: map[int]string{
			0: "C",
			1: "C+/Dd",
			2: "D+",
			3: "F",
		},
	}
}

func TestNewValidScale(t *testing.T) {
	s, err := New(quarterToneDef())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Len() != 4 {
		t.Errorf("Len: got %d, want 4", s.Len())
	}
	n, err := s.Note(2)
	if err != nil {
		t.Fatal(err)
	}
	if n.Cents != 350 || n.Name != "D+" {
		t.Errorf("Note(2): got %+v", n)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		desc string
		def  Definition
	}{
		{
			"degree 0 not at 0 cents",
			Definition{Name: "bad", Notes: map[int]float64{0: 5, 1: 100}, NoteNames: map[int]string{0: "a", 1: "b"}},
		},
		{
			"non-increasing cents",
			Definition{Name: "bad", Notes: map[int]float64{0: 0, 1: 200, 2: 150}, NoteNames: map[int]string{0: "a", 1: "b", 2: "c"}},
		},
		{
			"cents at or above 1200",
			Definition{Name: "bad", Notes: map[int]float64{0: 0, 1: 1200}, NoteNames: map[int]string{0: "a", 1: "b"}},
		},
		{
			"negative cents",
			Definition{Name: "bad", Notes: map[int]float64{0: 0, 1: -3}, NoteNames: map[int]string{0: "a", 1: "b"}},
		},
		{
			"name count mismatch",
			Definition{Name: "bad", Notes: map[int]float64{0: 0, 1: 100}, NoteNames: map[int]string{0: "a"}},
		},
		{
			"non-contiguous degrees",
			Definition{Name: "bad", Notes: map[int]float64{0: 0, 2: 100}, NoteNames: map[int]string{0: "a", 2: "b"}},
		},
		{
			"empty definition",
			Definition{Name: "bad"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if _, err := New(tt.def); err == nil {
				t.Errorf("expected validation error for %s", tt.desc)
			}
		})
	}
}

func TestLookupByNameAndAlias(t *testing.T) {
	s := EDO12()

	for _, name := range []string{"C#/Db", "C#", "Db"} {
		n, err := s.NoteByName(name)
		if err != nil {
			t.Fatalf("NoteByName(%q): %v", name, err)
		}
		if n.Index != 1 {
			t.Errorf("NoteByName(%q): got degree %d, want 1", name, n.Index)
		}
	}

	if _, err := s.NoteByName("H"); err == nil {
		t.Error("expected lookup error for unknown name")
	}
	if _, err := s.Note(12); err == nil {
		t.Error("expected lookup error for out-of-range degree")
	}
}

func TestEDO12(t *testing.T) {
	s := EDO12()
	if s.Len() != 12 {
		t.Fatalf("EDO12 Len: got %d, want 12", s.Len())
	}
	a, err := s.NoteByName("A")
	if err != nil {
		t.Fatal(err)
	}
	if a.Index != 9 || a.Cents != 900 {
		t.Errorf("A: got %+v, want degree 9 at 900 cents", a)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quarter.yaml")
	content := `
name: quarter
notes:
  0: 0.0
  1: 150.0
  2: 350.0
note_names:
  0: C
  1: C+/Dd
  2: D+
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name() != "quarter" || s.Len() != 3 {
		t.Errorf("loaded scale: name=%q len=%d", s.Name(), s.Len())
	}

	// Suffix fallback.
	if _, err := Load(filepath.Join(dir, "quarter")); err != nil {
		t.Errorf("Load without suffix: %v", err)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
