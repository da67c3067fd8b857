package main

import (
	"errors"
	"reflect"
	"testing"
)

func loadTestBasis(t *testing.T) *BasisSet {
	t.Helper()
	b, err := LoadBasis("testfiles/basis.txt", 2)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestLoadBasis(t *testing.T) {
	got := loadTestBasis(t)
	want := &BasisSet{
		NumModes: 2,
		Labels:   []string{"A", "B"},
		Species:  []string{"A", "B"},
		Amu:      []float64{1.0, 2.0},
		Counts:   []int{1, 1},
		Dist: [][][3]float64{
			{{1, 0, 0}, {0, 0, 0}},
			{{0, 0, 0}, {1, 0, 0}},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, wanted %v\n", got, want)
	}
}

func TestBasisCheck(t *testing.T) {
	tests := []struct {
		msg string
		mod func(*BasisSet)
	}{
		{"header mode count", func(b *BasisSet) { b.NumModes = 3 }},
		{"missing label", func(b *BasisSet) { b.Labels = b.Labels[:1] }},
		{"species/amu mismatch", func(b *BasisSet) { b.Amu = b.Amu[:1] }},
		{"counts/species mismatch", func(b *BasisSet) { b.Counts = b.Counts[:1] }},
		{"counts sum", func(b *BasisSet) { b.Counts = []int{2, 2} }},
		{"short distortion", func(b *BasisSet) {
			b.Dist[0] = b.Dist[0][:1]
		}},
	}
	for _, test := range tests {
		b := loadTestBasis(t)
		test.mod(b)
		if err := b.Check(2); !errors.Is(err, ErrConfig) {
			t.Errorf("%s: got %v, wanted ErrConfig\n", test.msg, err)
		}
	}
}

func TestMassFor(t *testing.T) {
	b := loadTestBasis(t)
	tests := []struct {
		label string
		want  float64
	}{
		{"A", 1.0},
		{"B", 2.0},
		{"Z", 0},
	}
	for _, test := range tests {
		if got := b.MassFor(test.label); got != test.want {
			t.Errorf("MassFor(%q): got %v, wanted %v\n",
				test.label, got, test.want)
		}
	}
}

func TestMassColumn(t *testing.T) {
	b := loadTestBasis(t)
	b.Counts = []int{2, 1}
	got := b.MassColumn()
	want := []float64{1.0, 1.0, 2.0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, wanted %v\n", got, want)
	}
}
