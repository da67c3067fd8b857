package main

import (
	"fmt"
	"log"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Analysis holds the output of the stability stage
type Analysis struct {
	ForceConstants *mat.Dense
	Dynamical      *mat.Dense
	Modes          []Mode
	FcEvals        []float64
}

// LoopModes writes and dispatches the ground-state force calculation
// for the undisplaced structure (dist_0) and for each basis
// distortion, applied sequentially against the saved baseline. The
// structure is restored after every distortion; all jobs are pushed
// before the single blocking wait. The returned calcs preserve
// submission order: calc i+1 corresponds to distortion i.
func LoopModes(gw *Abinit, q Queue, s *Structure, b *BasisSet) []Calc {
	snap := s.Snapshot()
	calcs := make([]Calc, 0, b.NumModes+1)
	name := UniqueName(gw.Path("dist_0"), ".abi")
	if err := gw.WriteInput(name, s, Forces, false); err != nil {
		calcs = append(calcs, Calc{Name: name, Index: 0, Err: err})
	} else {
		calcs = append(calcs, Calc{Name: name, Index: 0})
	}
	for i := 0; i < b.NumModes; i++ {
		calc := Calc{Index: i + 1}
		calc.Name = UniqueName(gw.Path(fmt.Sprintf("dist_%d", i+1)), ".abi")
		if err := s.Displace(b.Dist[i], bohrPerAng*Conf.DispMag); err != nil {
			calc.Err = err
		} else if err := gw.WriteInput(calc.Name, s, Forces, false); err != nil {
			calc.Err = err
		}
		s.Restore(snap)
		calcs = append(calcs, calc)
	}
	return Push(q, calcs)
}

// RunStability drives the stability analysis stage: dispatch the
// distortion batch, collect forces, assemble and diagonalize the
// dynamical matrix. Missing forces for any distortion make the matrix
// unassemblable, so they abort the stage.
func RunStability(gw *Abinit, q Queue, s *Structure, b *BasisSet) (*Analysis, error) {
	calcs := LoopModes(gw, q, s, b)
	WaitBatch(q, time.Duration(Conf.SleepInt)*time.Second)

	raw := make([][][3]float64, len(calcs))
	for i, c := range calcs {
		if c.Err != nil {
			return nil, fmt.Errorf("distortion %s: %w", c.Name, c.Err)
		}
		forces, err := gw.ReadForces(c.Name+".abo", s.Natom)
		if err != nil {
			return nil, fmt.Errorf("distortion %s: %w", c.Name, err)
		}
		raw[i] = forces
	}

	fc, err := BuildForceConstants(raw, b, s.Natom, Conf.DispMag)
	if err != nil {
		return nil, err
	}
	cond := CheckCond("force constants matrix", fc)
	if Conf.Stabilize && cond > Conf.CondLimit {
		Stabilize(fc, Conf.CondLimit, Conf.Epsilon, Conf.Alpha)
		log.Printf("stabilized force constants matrix: condition number %.3e -> %.3e",
			cond, mat.Cond(fc, 2))
	}
	mm, err := MassMatrix(b)
	if err != nil {
		return nil, err
	}
	dyn := DynamicalMatrix(fc, mm)
	CheckCond("dynamical matrix", dyn)
	modes, fcEvals, err := Decompose(dyn, fc, b, s.Natom)
	if err != nil {
		return nil, err
	}
	return &Analysis{
		ForceConstants: fc,
		Dynamical:      dyn,
		Modes:          modes,
		FcEvals:        fcEvals,
	}, nil
}

// Summarize prints a table of the mode frequencies and their
// stability verdicts
func Summarize(modes []Mode, threshold float64) {
	fmt.Printf("+%10s-+%12s-+%12s-+%12s-+%9s-+\n",
		"----------", "------------", "------------",
		"------------", "---------")
	fmt.Printf("|%10s |%12s |%12s |%12s |%9s |\n",
		"Mode", "Freq(THz)", "Freq(cm-1)", "RedMass", "Stable")
	fmt.Printf("+%10s-+%12s-+%12s-+%12s-+%9s-+\n",
		"----------", "------------", "------------",
		"------------", "---------")
	for i, m := range modes {
		verdict := "yes"
		if m.FreqCm < threshold {
			verdict = "no"
		}
		fmt.Printf("|%10d |%12.4f |%12.4f |%12.6f |%9s |\n",
			i, m.FreqTHz, m.FreqCm, m.RedMass, verdict)
	}
	fmt.Printf("+%10s-+%12s-+%12s-+%12s-+%9s-+\n",
		"----------", "------------", "------------",
		"------------", "---------")
}
