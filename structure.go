package main

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// bohrPerAng converts Angstrom displacements to the Bohr lengths used
// in solver input
const bohrPerAng = 1.88973

// Structure is the crystal configuration handed to the solver. Cart
// and Red are kept consistent: mutating one regenerates the other.
// Atom ordering is fixed for the lifetime of an analysis; mode
// vectors are indexed by it.
type Structure struct {
	Lattice *mat.Dense   // 3x3, rows are lattice vectors (Bohr)
	Natom   int
	Ntypat  int
	Typat   []int        // per-atom species index, 1-based
	Species []string     // species labels, one per type
	Amu     []float64    // per-species mass
	Cart    [][3]float64 // Cartesian coordinates (Bohr)
	Red     [][3]float64 // reduced coordinates
}

// LoadStructure parses a crystal structure file. The format is
// keyword-driven: natom, ntypat, typat, species, amu, then rprim
// followed by three rows and xred or xcart followed by natom rows.
func LoadStructure(filename string) (*Structure, error) {
	lines, err := ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return ParseStructure(lines, filename)
}

// ParseStructure parses structure lines in the LoadStructure format;
// name labels any errors. Inline struct blocks from the infile come
// through here.
func ParseStructure(lines []string, name string) (*Structure, error) {
	s := &Structure{}
	var err error
	var (
		rprim   []float64
		coords  [][3]float64
		cartIn  bool
		haveXYZ bool
	)
	for i := 0; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], "#") {
			continue
		}
		fields := strings.Fields(lines[i])
		bad := func(err error) (*Structure, error) {
			return nil, fmt.Errorf("%w: %s line %d: %v",
				ErrConfig, name, i+1, err)
		}
		switch strings.ToLower(fields[0]) {
		case "natom":
			s.Natom, err = strconv.Atoi(fields[1])
		case "ntypat":
			s.Ntypat, err = strconv.Atoi(fields[1])
		case "typat":
			for _, f := range fields[1:] {
				t, e := strconv.Atoi(f)
				if e != nil {
					return bad(e)
				}
				s.Typat = append(s.Typat, t)
			}
		case "species":
			s.Species = fields[1:]
		case "amu":
			s.Amu, err = ParseFloats(fields[1:])
		case "rprim":
			for r := 0; r < 3; r++ {
				i++
				row, e := ParseFloats(strings.Fields(lines[i]))
				if e != nil || len(row) != 3 {
					return bad(fmt.Errorf("bad rprim row"))
				}
				rprim = append(rprim, row...)
			}
		case "xred", "xcart":
			cartIn = strings.EqualFold(fields[0], "xcart")
			haveXYZ = true
			for a := 0; a < s.Natom; a++ {
				i++
				row, e := ParseFloats(strings.Fields(lines[i]))
				if e != nil || len(row) != 3 {
					return bad(fmt.Errorf("bad coordinate row"))
				}
				coords = append(coords, [3]float64{row[0], row[1], row[2]})
			}
		default:
			return bad(fmt.Errorf("unrecognized keyword %q", fields[0]))
		}
		if err != nil {
			return bad(err)
		}
	}
	if len(rprim) != 9 || !haveXYZ || s.Natom == 0 {
		return nil, fmt.Errorf("%w: %s: incomplete structure",
			ErrConfig, name)
	}
	if len(s.Typat) != s.Natom || len(s.Species) != s.Ntypat ||
		len(s.Amu) != s.Ntypat {
		return nil, fmt.Errorf(
			"%w: %s: typat/species/amu lengths do not match natom/ntypat",
			ErrConfig, name)
	}
	s.Lattice = mat.NewDense(3, 3, rprim)
	if cartIn {
		s.Cart = coords
		s.RedFromCart()
	} else {
		s.Red = coords
		s.CartFromRed()
	}
	return s, nil
}

// CartFromRed regenerates Cartesian coordinates from the reduced ones
// through the lattice: cart = red * L with lattice vectors as rows
func (s *Structure) CartFromRed() {
	s.Cart = make([][3]float64, s.Natom)
	for a := 0; a < s.Natom; a++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += s.Red[a][k] * s.Lattice.At(k, j)
			}
			s.Cart[a][j] = sum
		}
	}
}

// RedFromCart regenerates reduced coordinates from the Cartesian ones
// by solving against the lattice
func (s *Structure) RedFromCart() {
	rhs := mat.NewDense(3, s.Natom, nil)
	for a := 0; a < s.Natom; a++ {
		for j := 0; j < 3; j++ {
			rhs.Set(j, a, s.Cart[a][j])
		}
	}
	// cart = red * L  =>  L^T red^T = cart^T
	var sol mat.Dense
	if err := sol.Solve(s.Lattice.T(), rhs); err != nil {
		panic(fmt.Sprintf("singular lattice: %v", err))
	}
	s.Red = make([][3]float64, s.Natom)
	for a := 0; a < s.Natom; a++ {
		for j := 0; j < 3; j++ {
			s.Red[a][j] = sol.At(j, a)
		}
	}
}

// Snapshot returns a copy of the reduced coordinates for later Restore
func (s *Structure) Snapshot() [][3]float64 {
	snap := make([][3]float64, len(s.Red))
	copy(snap, s.Red)
	return snap
}

// Restore resets the structure to a Snapshot, regenerating the
// Cartesian coordinates
func (s *Structure) Restore(snap [][3]float64) {
	s.Red = make([][3]float64, len(snap))
	copy(s.Red, snap)
	s.CartFromRed()
}

// Displace applies scale times the per-atom displacement field to the
// Cartesian coordinates and regenerates the reduced ones. disp is in
// Angstrom; the scale carries the Bohr conversion.
func (s *Structure) Displace(disp [][3]float64, scale float64) error {
	if len(disp) != s.Natom {
		return fmt.Errorf(
			"%w: displacement field has %d atoms, structure has %d",
			ErrConfig, len(disp), s.Natom)
	}
	for a := 0; a < s.Natom; a++ {
		for j := 0; j < 3; j++ {
			s.Cart[a][j] += scale * disp[a][j]
		}
	}
	s.RedFromCart()
	return nil
}

// MassOf returns the mass for a species label, or 0 if the label is
// unknown
func (s *Structure) MassOf(label string) float64 {
	for i, sp := range s.Species {
		if sp == label {
			return s.Amu[i]
		}
	}
	return 0
}
