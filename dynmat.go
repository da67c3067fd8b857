package main

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Unit conversion factors for the eigenvalue -> frequency step
const (
	evToJ   = 1.602177e-19
	angToM  = 1.0e-10
	amuToKg = 1.66053e-27
	cLight  = 2.9979458e10 // speed of light in cm/s
)

// Mode is one phonon mode from the diagonalized dynamical matrix. The
// sign of the frequency encodes stability: a negative value stands
// for an imaginary frequency. Disp is the unit-norm Cartesian
// displacement eigenvector.
type Mode struct {
	FreqTHz float64
	FreqCm  float64
	RedMass float64
	Disp    [][3]float64
}

// BuildForceConstants assembles the symmetrized force-constant matrix
// from the raw force samples. raw[0] is the zero-displacement
// reference; raw[i+1] corresponds to basis distortion i. Each force
// difference is projected onto the distortion basis by contracting
// over the atom and Cartesian indices, scaled by -1/dispMag, and the
// result is averaged with its transpose since finite-difference
// forces are not exactly symmetric.
func BuildForceConstants(raw [][][3]float64, b *BasisSet, natom int,
	dispMag float64) (*mat.Dense, error) {
	n := b.NumModes
	if len(raw) != n+1 {
		return nil, fmt.Errorf(
			"%w: have %d force samples for %d distortions, want %d",
			ErrConfig, len(raw), n, n+1)
	}
	for i, sample := range raw {
		if len(sample) != natom {
			return nil, fmt.Errorf(
				"%w: force sample %d has %d atoms, want %d",
				ErrConfig, i, len(sample), natom)
		}
	}
	diff := make([][][3]float64, n)
	for i := 0; i < n; i++ {
		diff[i] = make([][3]float64, natom)
		for a := 0; a < natom; a++ {
			for x := 0; x < 3; x++ {
				diff[i][a][x] = raw[i+1][a][x] - raw[0][a][x]
			}
		}
	}
	fc := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for a := 0; a < natom; a++ {
				for x := 0; x < 3; x++ {
					sum += diff[i][a][x] * b.Dist[j][a][x]
				}
			}
			fc.Set(i, j, -sum/dispMag)
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			avg := (fc.At(i, j) + fc.At(j, i)) / 2
			fc.Set(i, j, avg)
			fc.Set(j, i, avg)
		}
	}
	return fc, nil
}

// MassMatrix builds M[i,j] = sqrt(m_i * m_j) from the species mass
// matched to each symmetry mode's label. An unmatched label is a
// data-integrity problem in the symmetry input and is not recoverable
// here.
func MassMatrix(b *BasisSet) (*mat.Dense, error) {
	masses := make([]float64, b.NumModes)
	for m, label := range b.Labels {
		masses[m] = b.MassFor(label)
		if masses[m] == 0 {
			return nil, fmt.Errorf(
				"%w: no mass for symmetry mode %d species %q",
				ErrConfig, m, label)
		}
	}
	mm := mat.NewDense(b.NumModes, b.NumModes, nil)
	for i := range masses {
		for j := range masses {
			mm.Set(i, j, math.Sqrt(masses[i]*masses[j]))
		}
	}
	return mm, nil
}

// DynamicalMatrix divides the force-constant matrix by the mass
// matrix element-wise
func DynamicalMatrix(fc, mm *mat.Dense) *mat.Dense {
	n, _ := fc.Dims()
	dyn := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			dyn.Set(i, j, fc.At(i, j)/mm.At(i, j))
		}
	}
	return dyn
}

// CheckCond reports the 2-norm condition number of m, warning when it
// exceeds the configured limit. The matrix is used as-is either way;
// correction happens only through an explicit Stabilize request.
func CheckCond(name string, m mat.Matrix) float64 {
	cond := mat.Cond(m, 2)
	if cond > Conf.CondLimit {
		Warn("high numerical instability in %s: condition number %.3e",
			name, cond)
	}
	return cond
}

// Stabilize conditions m in place when its condition number exceeds
// threshold: any row whose absolute off-diagonal sum exceeds the
// diagonal entry has its diagonal raised by blending epsilon of that
// sum, then the whole matrix is blended with alpha of its symmetrized
// form. This is an approximation, not an exact physical correction;
// results computed from a stabilized matrix reflect it.
func Stabilize(m *mat.Dense, threshold, epsilon, alpha float64) {
	if mat.Cond(m, 2) <= threshold {
		return
	}
	n, _ := m.Dims()
	diag := make([]float64, n)
	for i := 0; i < n; i++ {
		diag[i] = m.At(i, i)
	}
	for i := 0; i < n; i++ {
		var rowSum float64
		for j := 0; j < n; j++ {
			rowSum += math.Abs(m.At(i, j))
		}
		rowSum -= m.At(i, i)
		if m.At(i, i) < rowSum {
			m.Set(i, i, (1-epsilon)*diag[i]+epsilon*rowSum)
		}
	}
	// the symmetrized matrix comes from the pre-blend values, so
	// snapshot before writing anything back
	orig := mat.DenseCopyOf(m)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sym := (orig.At(i, j) + orig.At(j, i)) / 2
			m.Set(i, j, (1-alpha)*orig.At(i, j)+alpha*sym)
		}
	}
}

// signedSqrt preserves the sign of v through the square root so that
// negative eigenvalues map to negative (imaginary) frequencies
func signedSqrt(v float64) float64 {
	s := 1.0
	if v < 0 {
		s = -1.0
	}
	return s * math.Sqrt(math.Abs(v))
}

// Decompose eigendecomposes the dynamical matrix and converts the
// eigenvalues to signed frequencies in THz and wavenumbers, sorted in
// descending order with ties broken by original index. The
// eigenvectors are taken back from the symmetry-adapted basis to real
// Cartesian displacements, de-weighted by sqrt(mass) per atom, used
// to compute the reduced mass, and renormalized to unit norm. The
// order of those operations matters; do not rearrange it. The second
// return value holds the signed square roots of the force-constant
// eigenvalues in descending order; they are not paired with the modes.
func Decompose(dyn, fc *mat.Dense, b *BasisSet, natom int) ([]Mode, []float64, error) {
	var eig mat.Eigen
	if ok := eig.Factorize(dyn, mat.EigenRight); !ok {
		return nil, nil, fmt.Errorf(
			"eigendecomposition of the dynamical matrix failed")
	}
	n := b.NumModes
	vals := eig.Values(nil)
	var vecs mat.CDense
	eig.VectorsTo(&vecs)

	unit := evToJ / (angToM * angToM * amuToKg)
	raw := make([]float64, n)
	for i, v := range vals {
		raw[i] = signedSqrt(real(v)*unit) * 1.0e-12
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return raw[idx[i]] > raw[idx[j]]
	})

	// force-constant eigenvalues come from their own symmetric
	// eigendecomposition, sorted descending like the frequencies;
	// position i carries no pairing with Modes[i]
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, fc.At(i, j))
		}
	}
	var es mat.EigenSym
	if ok := es.Factorize(sym, false); !ok {
		return nil, nil, fmt.Errorf(
			"eigendecomposition of the force-constant matrix failed")
	}
	fvals := es.Values(nil)
	fcEvals := make([]float64, n)
	for i := 0; i < n; i++ {
		fcEvals[i] = signedSqrt(fvals[n-1-i])
	}

	massCol := b.MassColumn()
	modes := make([]Mode, n)
	for e := 0; e < n; e++ {
		col := idx[e]
		thz := raw[col] / (2 * math.Pi)
		// sum the SAM components back into a real Cartesian field
		disp := make([][3]float64, natom)
		for s := 0; s < n; s++ {
			c := real(vecs.At(s, col))
			for a := 0; a < natom; a++ {
				for x := 0; x < 3; x++ {
					disp[a][x] += c * b.Dist[s][a][x]
				}
			}
		}
		// de-weight by sqrt(mass) to get the physical displacement
		var mag2 float64
		for a := 0; a < natom; a++ {
			for x := 0; x < 3; x++ {
				disp[a][x] /= math.Sqrt(massCol[a])
				mag2 += disp[a][x] * disp[a][x]
			}
		}
		norm := math.Sqrt(mag2)
		for a := 0; a < natom; a++ {
			for x := 0; x < 3; x++ {
				disp[a][x] /= norm
			}
		}
		modes[e] = Mode{
			FreqTHz: thz,
			FreqCm:  thz * 1.0e12 / cLight,
			RedMass: 1.0 / mag2,
			Disp:    disp,
		}
	}
	return modes, fcEvals, nil
}

// Unstable returns the indices of modes whose wavenumber frequency is
// strictly below threshold. An empty result is a normal terminal
// outcome, not an error.
func Unstable(modes []Mode, threshold float64) []int {
	var idx []int
	for i, m := range modes {
		if m.FreqCm < threshold {
			idx = append(idx, i)
		}
	}
	return idx
}

// Normalize scales a displacement field to unit L2 norm over all
// atoms and Cartesian axes jointly, returning a copy
func Normalize(disp [][3]float64) [][3]float64 {
	norm := Norm(disp)
	out := make([][3]float64, len(disp))
	for a := range disp {
		for x := 0; x < 3; x++ {
			out[a][x] = disp[a][x] / norm
		}
	}
	return out
}

// Norm returns the L2 norm of a displacement field over all atoms and
// axes
func Norm(disp [][3]float64) float64 {
	var sum float64
	for a := range disp {
		for x := 0; x < 3; x++ {
			sum += disp[a][x] * disp[a][x]
		}
	}
	return math.Sqrt(sum)
}

// UnstablePhonons extracts the unit-normalized displacement fields
// for the given unstable mode indices
func UnstablePhonons(modes []Mode, idx []int) [][][3]float64 {
	out := make([][][3]float64, 0, len(idx))
	for _, i := range idx {
		out = append(out, Normalize(modes[i].Disp))
	}
	return out
}
