package main

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestAmplitudes(t *testing.T) {
	tests := []struct {
		min, max float64
		n        int
		want     []float64
	}{
		{0, 0.5, 3, []float64{0, 0.25, 0.5}},
		{0, 0.5, 2, []float64{0, 0.5}},
		{-0.5, 0.5, 5, []float64{-0.5, -0.25, 0, 0.25, 0.5}},
	}
	for _, test := range tests {
		got, err := Amplitudes(test.min, test.max, test.n)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, test.want) {
			t.Errorf("got %v, wanted %v\n", got, test.want)
		}
	}
}

func TestAmplitudesEndpoints(t *testing.T) {
	got, err := Amplitudes(0, 0.3, 11)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 0 || got[10] != 0.3 {
		t.Errorf("got endpoints %v and %v, wanted 0 and 0.3\n",
			got[0], got[10])
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Errorf("amplitudes not increasing at %d: %v\n", i, got)
		}
	}
}

func TestAmplitudesTooFew(t *testing.T) {
	if _, err := Amplitudes(0, 0.5, 1); !errors.Is(err, ErrConfig) {
		t.Errorf("got %v, wanted ErrConfig\n", err)
	}
}

func TestNewSweep(t *testing.T) {
	s, err := NewSweep(Energy, 0, 0.5, 3)
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != Built {
		t.Errorf("got %v, wanted BUILT\n", s.Status)
	}
	if len(s.Points) != 3 {
		t.Errorf("got %d points, wanted 3\n", len(s.Points))
	}
	if s.Points[1].Amp != 0.25 {
		t.Errorf("got %v, wanted 0.25\n", s.Points[1].Amp)
	}
}

func TestSweepStatusString(t *testing.T) {
	tests := []struct {
		status SweepStatus
		want   string
	}{
		{Built, "BUILT"},
		{Submitted, "SUBMITTED"},
		{Awaiting, "AWAITING"},
		{Partial, "PARTIAL"},
		{Complete, "COMPLETE"},
	}
	for _, test := range tests {
		if got := test.status.String(); got != test.want {
			t.Errorf("got %v, wanted %v\n", got, test.want)
		}
	}
}

func TestSweepRunComplete(t *testing.T) {
	resetGlobal(t)
	dir := t.TempDir()
	writeTestFile(t, dir+"/energy_000.abo",
		" total_energy : -10.500000000000\n")
	writeTestFile(t, dir+"/energy_001.abo",
		" total_energy : -10.600000000000\n")
	writeTestFile(t, dir+"/energy_002.abo",
		" total_energy : -10.400000000000\n")

	gw := &Abinit{Dir: dir}
	q := &testQueue{}
	base := loadTestCell(t)
	pert := [][3]float64{{1, 0, 0}, {0, 0, 0}}
	s, err := NewSweep(Energy, 0, 0.5, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Run(gw, q, base, pert, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if s.Status != Complete {
		t.Errorf("got %v, wanted COMPLETE\n", s.Status)
	}
	wantE := []float64{-10.5, -10.6, -10.4}
	for i, p := range s.Points {
		if p.Err != nil {
			t.Fatalf("point %d: %v\n", i, p.Err)
		}
		if p.Energy != wantE[i] {
			t.Errorf("point %d: got %v, wanted %v\n", i, p.Energy, wantE[i])
		}
	}
	// the base structure comes back unchanged
	if base.Cart[0][0] != 0 {
		t.Errorf("got %v, wanted base structure restored\n", base.Cart[0])
	}
	if len(q.submitted) != 3 {
		t.Errorf("got %d submissions, wanted 3\n", len(q.submitted))
	}

	record := dir + "/record.dat"
	if err := s.WriteRecord(record); err != nil {
		t.Fatal(err)
	}
	rows, err := LoadRecord(record)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]float64{
		{0, -10.5},
		{0.25, -10.6},
		{0.5, -10.4},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("got %v, wanted %v\n", rows, want)
	}
}

func TestSweepRunPartial(t *testing.T) {
	resetGlobal(t)
	dir := t.TempDir()
	writeTestFile(t, dir+"/energy_000.abo",
		" total_energy : -10.500000000000\n")
	// point 1 finished without reporting an energy
	writeTestFile(t, dir+"/energy_001.abo", " job killed\n")
	writeTestFile(t, dir+"/energy_002.abo",
		" total_energy : -10.400000000000\n")

	gw := &Abinit{Dir: dir}
	q := &testQueue{}
	base := loadTestCell(t)
	pert := [][3]float64{{1, 0, 0}, {0, 0, 0}}
	s, err := NewSweep(Energy, 0, 0.5, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Run(gw, q, base, pert, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if s.Status != Partial {
		t.Errorf("got %v, wanted PARTIAL\n", s.Status)
	}
	if !errors.Is(s.Points[1].Err, ErrEnergyNotFound) {
		t.Errorf("got %v, wanted ErrEnergyNotFound\n", s.Points[1].Err)
	}
	// sibling points are untouched by the failure
	if s.Points[0].Err != nil || s.Points[2].Err != nil {
		t.Error("sibling points should not fail")
	}
	if got, want := s.Failed(), []float64{0.25}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, wanted %v\n", got, want)
	}
	// the record carries only the populated points
	record := dir + "/record.dat"
	if err := s.WriteRecord(record); err != nil {
		t.Fatal(err)
	}
	rows, err := LoadRecord(record)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Errorf("got %d rows, wanted 2\n", len(rows))
	}
}

func TestSweepRunFlexo(t *testing.T) {
	resetGlobal(t)
	dir := t.TempDir()
	flexo, err := ReadFile("testfiles/flexo.abo")
	if err != nil {
		t.Fatal(err)
	}
	contents := ""
	for _, line := range flexo {
		contents += line + "\n"
	}
	writeTestFile(t, dir+"/flexo_000.abo", contents)
	writeTestFile(t, dir+"/flexo_001.abo", contents)

	gw := &Abinit{Dir: dir}
	q := &testQueue{}
	base := loadTestCell(t)
	pert := [][3]float64{{1, 0, 0}, {0, 0, 0}}
	s, err := NewSweep(Flexo, 0, 0.5, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Run(gw, q, base, pert, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if s.Status != Complete {
		t.Errorf("got %v, wanted COMPLETE\n", s.Status)
	}
	for i, p := range s.Points {
		if len(p.Flexo) != 9 {
			t.Errorf("point %d: got %d flexo rows, wanted 9\n",
				i, len(p.Flexo))
		}
		if len(p.PiezoClamped) != 6 || len(p.PiezoRelaxed) != 6 {
			t.Errorf("point %d: missing piezo tensors\n", i)
		}
	}
}

func TestFitEnergyCurve(t *testing.T) {
	s, err := NewSweep(Energy, -0.5, 0.5, 6)
	if err != nil {
		t.Fatal(err)
	}
	// a pure quartic well, offset to exercise the relative-energy
	// shift; the failed point must not contribute to the fit
	for i := range s.Points {
		a := s.Points[i].Amp
		s.Points[i].Energy = -100 + a*a*a*a
	}
	s.Points[3].Err = ErrEnergyNotFound
	got, err := s.FitEnergyCurve()
	if err != nil {
		t.Fatal(err)
	}
	if got == "" {
		t.Error("expected a force-constant summary")
	}
}

func TestFitEnergyCurveTooFew(t *testing.T) {
	s, err := NewSweep(Energy, 0, 0.5, 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.FitEnergyCurve(); !errors.Is(err, ErrConfig) {
		t.Errorf("got %v, wanted ErrConfig\n", err)
	}
}
