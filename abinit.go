package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Errors used in solver output extraction. A missing marker is a
// recoverable per-field miss attached to the requesting point, not a
// crash.
var (
	ErrFileNotFound   = errors.New("solver output file not found")
	ErrBlankOutput    = errors.New("solver output file exists but is blank")
	ErrEnergyNotFound = errors.New("energy not found in solver output")
	ErrForcesNotFound = errors.New("forces not found in solver output")
	ErrTensorNotFound = errors.New("tensor not found in solver output")
)

// Calculation templates, one per Kind. Each fixes the sequence of
// solver sub-calculations: forces and energy are a single ground-state
// pass, piezo adds the ddk and strain responses, flexo adds the
// long-wave pass on top of those.
const (
	forcesTmpl = `useylm 1
kptopt 2
chkprim 0
`
	energyTmpl = `ndtset 1

# Ground State Self-Consistency
#*******************************

getwfk1 0
kptopt1 1

# turn off various file outputs
prtpot 0
prteig 0

getwfk 1
useylm 1
kptopt 2
`
	piezoTmpl = `ndtset 4

# Set 1: Ground State Self-Consistency
#*************************************

getwfk1 0
kptopt1 1
tolvrs1 1.0d-18

# Set 2: Response function calculation of d/dk wave function
#***********************************************************

iscf2 -3
rfelfd2 2
tolwfr2 1.0d-20

# Set 3: Response function calculation of d2/dkdk wavefunction
#*************************************************************

getddk3 2
iscf3 -3
rf2_dkdk3 3
tolwfr3 1.0d-16
rf2_pert1_dir3 1 1 1
rf2_pert2_dir3 1 1 1

# Set 4: Response function calculation to q=0 phonons, electric field and strain
#*******************************************************************************

getddk4 2
rfelfd4 3
rfphon4 1
rfstrs4 3
rfstrs_ref4 1
tolvrs4 1.0d-8

getwfk 1
useylm 1
kptopt 2
`
	flexoTmpl = `ndtset 5

# Set 1: Ground State Self-Consistency
#*************************************

getwfk1 0
kptopt1 1
tolvrs1 1.0d-18

# Set 2: Response function calculation of d/dk wave function
#***********************************************************

iscf2 -3
rfelfd2 2
tolwfr2 1.0d-20

# Set 3: Response function calculation of d2/dkdk wavefunction
#*************************************************************

getddk3 2
iscf3 -3
rf2_dkdk3 3
tolwfr3 1.0d-16
rf2_pert1_dir3 1 1 1
rf2_pert2_dir3 1 1 1

# Set 4: Response function calculation to q=0 phonons, electric field and strain
#*******************************************************************************

getddk4 2
rfelfd4 3
rfphon4 1
rfstrs4 3
rfstrs_ref4 1
tolvrs4 1.0d-8
prepalw4 1

# Set 5: Long-wave Calculations
#******************************

optdriver5 10
get1wf5 4
get1den5 4
getddk5 2
getdkdk5 3
lw_flexo5 1

getwfk 1
useylm 1
kptopt 2
`
)

var kindTmpl = map[Kind]string{
	Forces: forcesTmpl,
	Energy: energyTmpl,
	Piezo:  piezoTmpl,
	Flexo:  flexoTmpl,
}

// Abinit is the gateway to the external solver: it writes one input
// file per structural configuration and extracts the parsed physical
// quantities from the finished output.
type Abinit struct {
	Dir string // working directory for inputs and outputs
}

// WriteInput writes the solver input for the current structure as
// basename.abi, selecting the calculation template by kind. basename
// carries any directory prefix already. If cartesian is true the
// coordinates are written as xcart, else as xred.
func (a *Abinit) WriteInput(basename string, s *Structure, k Kind, cartesian bool) error {
	var buf bytes.Buffer
	buf.WriteString(kindTmpl[k])
	buf.WriteString("\n#--------------------------")
	buf.WriteString("\n# Definition of unit cell")
	buf.WriteString("\n#--------------------------\n")
	buf.WriteString("acell 1.0 1.0 1.0\n")
	buf.WriteString("rprim\n")
	for r := 0; r < 3; r++ {
		fmt.Fprintf(&buf, "  %.10f  %.10f  %.10f\n",
			s.Lattice.At(r, 0), s.Lattice.At(r, 1), s.Lattice.At(r, 2))
	}
	if cartesian {
		buf.WriteString("xcart\n")
		for _, c := range s.Cart {
			fmt.Fprintf(&buf, "  %.10f  %.10f  %.10f\n", c[0], c[1], c[2])
		}
	} else {
		buf.WriteString("xred\n")
		for _, c := range s.Red {
			fmt.Fprintf(&buf, "  %.10f  %.10f  %.10f\n", c[0], c[1], c[2])
		}
	}
	buf.WriteString("\n#--------------------------")
	buf.WriteString("\n# Definition of atoms")
	buf.WriteString("\n#--------------------------\n")
	fmt.Fprintf(&buf, "natom %d\n", s.Natom)
	fmt.Fprintf(&buf, "ntypat %d\n", s.Ntypat)
	fmt.Fprintf(&buf, "typat")
	for _, t := range s.Typat {
		fmt.Fprintf(&buf, " %d", t)
	}
	buf.WriteString("\n")
	return os.WriteFile(basename+".abi", buf.Bytes(), 0644)
}

// Path joins a basename onto the gateway working directory
func (a *Abinit) Path(basename string) string {
	if a.Dir == "" {
		return basename
	}
	return a.Dir + "/" + basename
}

var energyRe = regexp.MustCompile(`total_energy\s*:\s*(-?\d+\.\d+E?[+-]?\d*)`)

// ReadEnergy extracts the total energy from a solver output file
func (a *Abinit) ReadEnergy(filename string) (float64, error) {
	byts, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return 0, fmt.Errorf("%w: %s", ErrFileNotFound, filename)
	} else if err != nil {
		return 0, err
	}
	if len(bytes.TrimSpace(byts)) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrBlankOutput, filename)
	}
	match := energyRe.FindSubmatch(byts)
	if match == nil {
		return 0, fmt.Errorf("%w: %s", ErrEnergyNotFound, filename)
	}
	return strconv.ParseFloat(string(match[1]), 64)
}

// ReadForces extracts the per-atom Cartesian force block following
// the "cartesian forces (eV/Angstrom)" marker
func (a *Abinit) ReadForces(filename string, natom int) ([][3]float64, error) {
	lines, err := ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filename)
	}
	start := -1
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) >= 3 && fields[0] == "cartesian" &&
			fields[1] == "forces" && fields[2] == "(eV/Angstrom)" {
			start = i + 1
			break
		}
	}
	if start < 0 || start+natom > len(lines) {
		return nil, fmt.Errorf("%w: %s", ErrForcesNotFound, filename)
	}
	forces := make([][3]float64, natom)
	for i := 0; i < natom; i++ {
		fields := strings.Fields(lines[start+i])
		if len(fields) < 4 {
			return nil, fmt.Errorf("%w: %s: short force row %d",
				ErrForcesNotFound, filename, i)
		}
		// first field is the atom index
		row, err := ParseFloats(fields[1:4])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: force row %d: %v",
				ErrForcesNotFound, filename, i, err)
		}
		forces[i] = [3]float64{row[0], row[1], row[2]}
	}
	return forces, nil
}

// readTensorBlock collects the consecutive all-numeric rows following
// the first line containing marker, optionally skipping skip header
// rows and dropping lead leading fields from each row
func readTensorBlock(lines []string, marker string, skip, lead, rows int) ([][]float64, error) {
	start := -1
	for i, line := range lines {
		if strings.Contains(line, marker) {
			start = i + 1 + skip
			break
		}
	}
	if start < 0 {
		return nil, ErrTensorNotFound
	}
	var tensor [][]float64
	for i := start; i < len(lines); i++ {
		fields := strings.Fields(lines[i])
		if len(fields) <= lead {
			break
		}
		row, err := ParseFloats(fields[lead:])
		if err != nil {
			break
		}
		tensor = append(tensor, row)
		if rows > 0 && len(tensor) == rows {
			break
		}
	}
	if len(tensor) == 0 || (rows > 0 && len(tensor) != rows) {
		return nil, ErrTensorNotFound
	}
	return tensor, nil
}

// ReadPiezo extracts the clamped- and relaxed-ion proper
// piezoelectric tensors. Each tensor is reported independently; a
// missing marker fails only that field.
func (a *Abinit) ReadPiezo(filename string) (clamped, relaxed [][]float64, err error) {
	lines, err := ReadFile(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrFileNotFound, filename)
	}
	clamped, cerr := readTensorBlock(lines,
		"Proper piezoelectric constants (clamped ion)", 0, 0, 0)
	relaxed, rerr := readTensorBlock(lines,
		"Proper piezoelectric constants (relaxed ion)", 0, 0, 0)
	if cerr != nil {
		return nil, relaxed, fmt.Errorf("%w: clamped ion: %s",
			ErrTensorNotFound, filename)
	}
	if rerr != nil {
		return clamped, nil, fmt.Errorf("%w: relaxed ion: %s",
			ErrTensorNotFound, filename)
	}
	return clamped, relaxed, nil
}

// ReadFlexo extracts the 9-row TOTAL flexoelectric tensor block. The
// marker line is followed by a column-header row, and each data row
// leads with its component label.
func (a *Abinit) ReadFlexo(filename string) ([][]float64, error) {
	lines, err := ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filename)
	}
	tensor, terr := readTensorBlock(lines,
		"TOTAL flexoelectric tensor (units= nC/m)", 1, 1, 9)
	if terr != nil {
		return nil, fmt.Errorf("%w: flexoelectric: %s",
			ErrTensorNotFound, filename)
	}
	return tensor, nil
}
