// SPDX-License-Identifier: MIT
/*
Package scale models tuning systems as an ordered set of notes, each
defined by its distance in cents above the fundamental. A Scale is
immutable once constructed; the tuner swaps scales wholesale at runtime
rather than mutating one in place.
*/
package scale

import (
	"fmt"
	"strings"
)

// Note is one degree of a scale.
type Note struct {
	Index int
	Name  string
	Cents float64
}

// Scale is a validated, immutable tuning system.
type Scale struct {
	name    string
	notes   []Note
	byName  map[string]int
}

// Definition is the raw description a Scale is built from. Notes maps
// scale degree to cents above the fundamental; NoteNames is optional and
// defaults to the standard chromatic names when the degree count allows.
type Definition struct {
	Name      string             `yaml:"name"`
	Notes     map[int]float64    `yaml:"notes"`
	NoteNames map[int]string     `yaml:"note_names"`
}

// DefaultNoteNames returns the standard chromatic note names, with
// enharmonic spellings joined by "/".
func DefaultNoteNames() map[int]string {
	return map[int]string{
		0:  "C",
		1:  "C#/Db",
		2:  "D",
		3:  "D#/Eb",
		4:  "E",
		5:  "F",
		6:  "F#/Gb",
		7:  "G",
		8:  "G#/Ab",
		9:  "A",
		10: "A#/Bb",
		11: "B",
	}
}

// New validates a Definition and constructs the Scale. Degree 0 must sit
// at exactly 0 cents, cents must be strictly increasing within [0, 1200),
// degrees must be contiguous from 0, and the name mapping (when present)
// must cover exactly the same degrees.
func New(def Definition) (*Scale, error) {
	n := len(def.Notes)
	if n == 0 {
		return nil, fmt.Errorf("scale %q: no notes defined", def.Name)
	}

	cents := make([]float64, n)
	for degree, c := range def.Notes {
		if degree < 0 || degree >= n {
			return nil, fmt.Errorf("scale %q: degree %d outside contiguous range 0..%d", def.Name, degree, n-1)
		}
		cents[degree] = c
	}
	if cents[0] != 0 {
		return nil, fmt.Errorf("scale %q: degree 0 must be 0 cents, got %g", def.Name, cents[0])
	}
	for i, c := range cents {
		if c < 0 || c >= 1200 {
			return nil, fmt.Errorf("scale %q: degree %d cents %g outside [0, 1200)", def.Name, i, c)
		}
		if i > 0 && c <= cents[i-1] {
			return nil, fmt.Errorf("scale %q: cents not strictly increasing at degree %d (%g after %g)", def.Name, i, c, cents[i-1])
		}
	}

	names := def.NoteNames
	if names == nil {
		names = DefaultNoteNames()
	}
	if len(names) != n {
		return nil, fmt.Errorf("scale %q: %d note names for %d degrees", def.Name, len(names), n)
	}

	s := &Scale{
		name:   def.Name,
		notes:  make([]Note, n),
		byName: make(map[string]int, n),
	}
	for i := 0; i < n; i++ {
		name, ok := names[i]
		if !ok {
			return nil, fmt.Errorf("scale %q: missing name for degree %d", def.Name, i)
		}
		s.notes[i] = Note{Index: i, Name: name, Cents: cents[i]}
		s.byName[name] = i
		// Enharmonic aliases each resolve to the same degree.
		if strings.Contains(name, "/") {
			for _, alias := range strings.Split(name, "/") {
				s.byName[alias] = i
			}
		}
	}
	return s, nil
}

// EDO12 returns the standard twelve-tone equal temperament scale. It is
// the default tuning system until a scale file is loaded.
func EDO12() *Scale {
	notes := make(map[int]float64, 12)
	for i := 0; i < 12; i++ {
		notes[i] = float64(i) * 100
	}
	s, err := New(Definition{Name: "EDO12", Notes: notes})
	if err != nil {
		// Static definition; cannot fail.
		panic(err)
	}
	return s
}

// Name returns the scale's display name.
func (s *Scale) Name() string { return s.name }

// Len returns the number of degrees.
func (s *Scale) Len() int { return len(s.notes) }

// Cents returns the cents value of each degree, in order.
func (s *Scale) Cents() []float64 {
	out := make([]float64, len(s.notes))
	for i, n := range s.notes {
		out[i] = n.Cents
	}
	return out
}

// Note returns the note at the given degree.
func (s *Scale) Note(degree int) (Note, error) {
	if degree < 0 || degree >= len(s.notes) {
		return Note{}, fmt.Errorf("scale %q: no degree %d", s.name, degree)
	}
	return s.notes[degree], nil
}

// NoteByName looks a note up by name or enharmonic alias.
func (s *Scale) NoteByName(name string) (Note, error) {
	i, ok := s.byName[name]
	if !ok {
		return Note{}, fmt.Errorf("scale %q: unknown note name %q", s.name, name)
	}
	return s.notes[i], nil
}

func (s *Scale) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Scale(%q)\n", s.name)
	for _, n := range s.notes {
		fmt.Fprintf(&sb, "- %-3d | %-5s | %7.1f\n", n.Index, n.Name, n.Cents)
	}
	return sb.String()
}
