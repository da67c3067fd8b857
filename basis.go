package main

import (
	"fmt"
	"strconv"
	"strings"
)

// BasisSet is the one-shot payload from the external symmetry
// provider: an ordered set of symmetry-adapted distortions with the
// species bookkeeping needed to mass-weight them. Read-only after
// load.
type BasisSet struct {
	NumModes int
	Labels   []string       // per-mode species label
	Species  []string       // species labels, provider order
	Amu      []float64      // per-species mass
	Counts   []int          // atoms per species, provider order
	Dist     [][][3]float64 // mode -> atom -> xyz displacement pattern
}

// LoadBasis parses a symmetry-adapted basis file. Header keywords:
// nmodes, species, amu, counts; then one "mode <label>" line per
// distortion followed by natom coordinate rows.
func LoadBasis(filename string, natom int) (*BasisSet, error) {
	lines, err := ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return ParseBasis(lines, filename, natom)
}

// ParseBasis parses basis lines in the LoadBasis format; name labels
// any errors. Inline basis blocks from the infile come through here.
func ParseBasis(lines []string, name string, natom int) (*BasisSet, error) {
	b := &BasisSet{}
	var err error
	for i := 0; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], "#") {
			continue
		}
		fields := strings.Fields(lines[i])
		bad := func(err error) (*BasisSet, error) {
			return nil, fmt.Errorf("%w: %s line %d: %v",
				ErrConfig, name, i+1, err)
		}
		switch strings.ToLower(fields[0]) {
		case "nmodes":
			b.NumModes, err = strconv.Atoi(fields[1])
		case "species":
			b.Species = fields[1:]
		case "amu":
			b.Amu, err = ParseFloats(fields[1:])
		case "counts":
			for _, f := range fields[1:] {
				c, e := strconv.Atoi(f)
				if e != nil {
					return bad(e)
				}
				b.Counts = append(b.Counts, c)
			}
		case "mode":
			if len(fields) < 2 {
				return bad(fmt.Errorf("mode line missing species label"))
			}
			b.Labels = append(b.Labels, fields[1])
			dist := make([][3]float64, natom)
			for a := 0; a < natom; a++ {
				i++
				if i >= len(lines) {
					return bad(fmt.Errorf("truncated mode block"))
				}
				row, e := ParseFloats(strings.Fields(lines[i]))
				if e != nil || len(row) != 3 {
					return bad(fmt.Errorf("bad distortion row"))
				}
				dist[a] = [3]float64{row[0], row[1], row[2]}
			}
			b.Dist = append(b.Dist, dist)
		default:
			return bad(fmt.Errorf("unrecognized keyword %q", fields[0]))
		}
		if err != nil {
			return bad(err)
		}
	}
	if b.NumModes == 0 {
		b.NumModes = len(b.Dist)
	}
	return b, b.Check(natom)
}

// Check verifies the shape invariants of the basis against the
// structure's atom count
func (b *BasisSet) Check(natom int) error {
	switch {
	case len(b.Dist) != b.NumModes:
		return fmt.Errorf("%w: basis has %d distortions, header says %d",
			ErrConfig, len(b.Dist), b.NumModes)
	case len(b.Labels) != b.NumModes:
		return fmt.Errorf("%w: basis has %d mode labels for %d modes",
			ErrConfig, len(b.Labels), b.NumModes)
	case len(b.Species) != len(b.Amu):
		return fmt.Errorf("%w: basis species/amu length mismatch",
			ErrConfig)
	case len(b.Counts) != len(b.Species):
		return fmt.Errorf("%w: basis counts/species length mismatch",
			ErrConfig)
	}
	var tot int
	for _, c := range b.Counts {
		tot += c
	}
	if tot != natom {
		return fmt.Errorf("%w: basis counts sum to %d, structure has %d atoms",
			ErrConfig, tot, natom)
	}
	for m, d := range b.Dist {
		if len(d) != natom {
			return fmt.Errorf("%w: distortion %d has %d atoms, want %d",
				ErrConfig, m, len(d), natom)
		}
	}
	return nil
}

// MassFor returns the species mass matched to a mode's label, or 0 if
// the label is not a known species
func (b *BasisSet) MassFor(label string) float64 {
	for i, sp := range b.Species {
		if sp == label {
			return b.Amu[i]
		}
	}
	return 0
}

// MassColumn expands the per-species masses to a per-atom vector in
// the fixed atom ordering (species blocks in provider order)
func (b *BasisSet) MassColumn() []float64 {
	var col []float64
	for t, c := range b.Counts {
		for i := 0; i < c; i++ {
			col = append(col, b.Amu[t])
		}
	}
	return col
}
