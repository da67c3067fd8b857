package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ntBre/anpass"
	"gonum.org/v1/gonum/mat"
)

// SweepStatus tracks a sweep through its lifecycle. Partial and
// Complete are terminal: Partial means some points lack quantities,
// Complete means every requested quantity is present for every point.
type SweepStatus int

const (
	Built SweepStatus = iota
	Submitted
	Awaiting
	Partial
	Complete
)

func (s SweepStatus) String() string {
	return []string{"BUILT", "SUBMITTED", "AWAITING", "PARTIAL",
		"COMPLETE"}[s]
}

// Point is one amplitude step of a sweep. Quantities are populated as
// jobs finish and never mutated afterward; Err records a per-point
// failure without invalidating sibling points.
type Point struct {
	Amp          float64
	Name         string
	Energy       float64
	PiezoClamped [][]float64
	PiezoRelaxed [][]float64
	Flexo        [][]float64
	Err          error
}

// Sweep dispatches property calculations along one unstable mode at a
// series of displacement amplitudes
type Sweep struct {
	Kind   Kind
	Status SweepStatus
	Points []Point
}

// Amplitudes returns n evenly spaced values from min to max
// inclusive. Fewer than 2 points leaves the step size undefined.
func Amplitudes(min, max float64, n int) ([]float64, error) {
	if n < 2 {
		return nil, fmt.Errorf(
			"%w: sweep needs at least 2 points, got %d", ErrConfig, n)
	}
	step := (max - min) / float64(n-1)
	amps := make([]float64, n)
	for i := range amps {
		amps[i] = min + float64(i)*step
	}
	// guard the endpoint against accumulated rounding
	amps[n-1] = max
	return amps, nil
}

// NewSweep builds the amplitude grid for one sweep of the given kind.
// Shape problems fail here, before any job is submitted.
func NewSweep(kind Kind, min, max float64, n int) (*Sweep, error) {
	amps, err := Amplitudes(min, max, n)
	if err != nil {
		return nil, err
	}
	s := &Sweep{Kind: kind, Status: Built}
	for _, a := range amps {
		s.Points = append(s.Points, Point{Amp: a})
	}
	return s, nil
}

// Run displaces the base structure to each amplitude along pert,
// submits the whole batch, blocks once until the scheduler reports
// completion, and populates each point from its output. The base
// structure is checkpointed before the first displacement and
// restored after every one; result i always corresponds to amplitude
// i.
func (s *Sweep) Run(gw *Abinit, q Queue, base *Structure,
	pert [][3]float64, interval time.Duration) error {
	snap := base.Snapshot()
	calcs := make([]Calc, len(s.Points))
	for i := range s.Points {
		name := UniqueName(
			gw.Path(fmt.Sprintf("%s_%03d", s.Kind, i)), ".abi")
		s.Points[i].Name = name
		calcs[i] = Calc{Name: name, Index: i}
		if err := base.Displace(pert, s.Points[i].Amp); err != nil {
			calcs[i].Err = err
		} else if err := gw.WriteInput(name, base, s.Kind, true); err != nil {
			calcs[i].Err = err
		}
		base.Restore(snap)
	}
	calcs = Push(q, calcs)
	s.Status = Submitted

	s.Status = Awaiting
	WaitBatch(q, interval)

	complete := true
	for i := range calcs {
		p := &s.Points[i]
		if calcs[i].Err != nil {
			p.Err = calcs[i].Err
			complete = false
			continue
		}
		out := p.Name + ".abo"
		if err := s.collect(gw, p, out); err != nil {
			p.Err = err
			complete = false
		}
	}
	if complete {
		s.Status = Complete
	} else {
		s.Status = Partial
	}
	return nil
}

// collect parses the quantities the sweep kind requires into p
func (s *Sweep) collect(gw *Abinit, p *Point, out string) error {
	energy, err := gw.ReadEnergy(out)
	if err != nil {
		return err
	}
	p.Energy = energy
	switch s.Kind {
	case Piezo:
		p.PiezoClamped, p.PiezoRelaxed, err = gw.ReadPiezo(out)
	case Flexo:
		p.Flexo, err = gw.ReadFlexo(out)
		if err != nil {
			return err
		}
		p.PiezoClamped, p.PiezoRelaxed, err = gw.ReadPiezo(out)
	}
	return err
}

// Failed returns the amplitudes of the points that lack quantities; a
// caller can re-invoke a sweep over just these
func (s *Sweep) Failed() []float64 {
	var amps []float64
	for _, p := range s.Points {
		if p.Err != nil {
			amps = append(amps, p.Amp)
		}
	}
	return amps
}

// WriteRecord appends one row per populated amplitude to filename:
// amplitude, energy, then the flattened tensor components the kind
// provides. The format is flat and stable so external analysis can
// re-load it.
func (s *Sweep) WriteRecord(filename string) error {
	_, statErr := os.Stat(filename)
	f, err := os.OpenFile(filename,
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if os.IsNotExist(statErr) {
		fmt.Fprintf(f, "# %s sweep: amplitude energy", s.Kind)
		switch s.Kind {
		case Piezo:
			fmt.Fprintf(f, " piezo_clamped... piezo_relaxed...")
		case Flexo:
			fmt.Fprintf(f, " flexo...")
		}
		fmt.Fprintf(f, "\n")
	}
	for _, p := range s.Points {
		if p.Err != nil {
			continue
		}
		fmt.Fprintf(f, "%15.8f%20.12f", p.Amp, p.Energy)
		switch s.Kind {
		case Piezo:
			writeFlat(f, p.PiezoClamped)
			writeFlat(f, p.PiezoRelaxed)
		case Flexo:
			writeFlat(f, p.Flexo)
		}
		fmt.Fprintf(f, "\n")
	}
	return nil
}

func writeFlat(f *os.File, tensor [][]float64) {
	for _, row := range tensor {
		for _, v := range row {
			fmt.Fprintf(f, "%15.8f", v)
		}
	}
}

// LoadRecord reads back a sweep record file, returning one row of
// floats per amplitude
func LoadRecord(filename string) ([][]float64, error) {
	lines, err := ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var rows [][]float64
	for _, line := range lines {
		if line[0] == '#' {
			continue
		}
		row, err := ParseFloats(splitFields(line))
		if err != nil {
			return nil, fmt.Errorf("%s: %v", filename, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func splitFields(line string) []string {
	return CleanSplit(line, " ")
}

// FitEnergyCurve fits the relative sweep energies against amplitude
// with a quartic polynomial and returns the resulting force constants
// as a printable summary. Only populated points contribute.
func (s *Sweep) FitEnergyCurve() (string, error) {
	var amps, energies []float64
	for _, p := range s.Points {
		if p.Err == nil {
			amps = append(amps, p.Amp)
			energies = append(energies, p.Energy)
		}
	}
	if len(amps) < 5 {
		return "", fmt.Errorf(
			"%w: need at least 5 populated points for a quartic fit, got %d",
			ErrConfig, len(amps))
	}
	min := energies[0]
	for _, e := range energies {
		if e < min {
			min = e
		}
	}
	rel := make([]float64, len(energies))
	for i := range energies {
		rel[i] = energies[i] - min
	}
	disps := mat.NewDense(len(amps), 1, amps)
	exps := mat.NewDense(1, 5, []float64{0, 1, 2, 3, 4})
	coeffs, _ := anpass.Fit(disps, rel, exps)
	fcs := anpass.MakeFCs(coeffs, exps)
	return fmt.Sprintf("%v", fcs), nil
}
