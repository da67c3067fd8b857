package main

import (
	"fmt"
	"math"
	"testing"
)

func forcesOutput(rows ...[3]float64) string {
	out := " gradients are converged\n\n" +
		" cartesian forces (eV/Angstrom) at end:\n"
	for i, r := range rows {
		out += fmt.Sprintf("    %d  %18.14f %18.14f %18.14f\n",
			i+1, r[0], r[1], r[2])
	}
	return out + "\n total_energy : -123.456789012\n"
}

func TestLoopModes(t *testing.T) {
	resetGlobal(t)
	dir := t.TempDir()
	gw := &Abinit{Dir: dir}
	q := &testQueue{}
	s := loadTestCell(t)
	b := loadTestBasis(t)
	temp := Conf
	defer func() {
		Conf = temp
	}()
	Conf.DispMag = 0.01

	calcs := LoopModes(gw, q, s, b)
	if len(calcs) != 3 {
		t.Fatalf("got %d calcs, wanted 3\n", len(calcs))
	}
	wantNames := []string{
		dir + "/dist_0", dir + "/dist_1", dir + "/dist_2",
	}
	for i, c := range calcs {
		if c.Err != nil {
			t.Fatalf("calc %d: %v\n", i, c.Err)
		}
		if c.Name != wantNames[i] {
			t.Errorf("got %v, wanted %v\n", c.Name, wantNames[i])
		}
		if c.JobID == "" {
			t.Errorf("calc %d was not submitted\n", i)
		}
	}
	// the baseline is restored between distortions
	if s.Cart[0][0] != 0 || s.Cart[1][0] != 5 {
		t.Errorf("got %v %v, wanted baseline coordinates\n",
			s.Cart[0], s.Cart[1])
	}
}

func TestRunStability(t *testing.T) {
	resetGlobal(t)
	dir := t.TempDir()
	writeTestFile(t, dir+"/dist_0.abo", forcesOutput(
		[3]float64{0, 0, 0}, [3]float64{0, 0, 0}))
	writeTestFile(t, dir+"/dist_1.abo", forcesOutput(
		[3]float64{0.01, 0, 0}, [3]float64{0, 0, 0}))
	writeTestFile(t, dir+"/dist_2.abo", forcesOutput(
		[3]float64{0, 0, 0}, [3]float64{0.02, 0, 0}))

	gw := &Abinit{Dir: dir}
	q := &testQueue{}
	s := loadTestCell(t)
	b := loadTestBasis(t)
	temp := Conf
	defer func() {
		Conf = temp
	}()
	Conf.DispMag = 0.01
	Conf.SleepInt = 1

	analysis, err := RunStability(gw, q, s, b)
	if err != nil {
		t.Fatal(err)
	}
	matApproxEqual(t, "fc", analysis.ForceConstants,
		[][]float64{{-1, 0}, {0, -2}}, 1e-10)
	matApproxEqual(t, "dyn", analysis.Dynamical,
		[][]float64{{-1, 0}, {0, -1}}, 1e-10)
	if len(analysis.Modes) != 2 {
		t.Fatalf("got %d modes, wanted 2\n", len(analysis.Modes))
	}
	wantCm := -math.Sqrt(evToJ/(angToM*angToM*amuToKg)) * 1e-12 /
		(2 * math.Pi) * 1e12 / cLight
	for i, m := range analysis.Modes {
		if math.Abs(m.FreqCm-wantCm) > 1e-3 {
			t.Errorf("mode %d: got %v, wanted %v\n", i, m.FreqCm, wantCm)
		}
	}
	unstable := Unstable(analysis.Modes, -20)
	if len(unstable) != 2 {
		t.Errorf("got %v, wanted both modes unstable\n", unstable)
	}
	// descending force-constant eigenvalue square roots
	wantF := []float64{-1, -math.Sqrt2}
	for i := range wantF {
		if math.Abs(analysis.FcEvals[i]-wantF[i]) > 1e-10 {
			t.Errorf("got %v, wanted %v\n", analysis.FcEvals, wantF)
		}
	}
}

func TestRunStabilityMissingForces(t *testing.T) {
	resetGlobal(t)
	dir := t.TempDir()
	writeTestFile(t, dir+"/dist_0.abo", forcesOutput(
		[3]float64{0, 0, 0}, [3]float64{0, 0, 0}))
	writeTestFile(t, dir+"/dist_1.abo", forcesOutput(
		[3]float64{0.01, 0, 0}, [3]float64{0, 0, 0}))
	// dist_2 never produced an output

	gw := &Abinit{Dir: dir}
	q := &testQueue{}
	s := loadTestCell(t)
	b := loadTestBasis(t)
	temp := Conf
	defer func() {
		Conf = temp
	}()
	Conf.DispMag = 0.01
	Conf.SleepInt = 1

	if _, err := RunStability(gw, q, s, b); err == nil {
		t.Error("expected error, got nil")
	}
}
