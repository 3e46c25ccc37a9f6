// Package mat has the small complex linear algebra kernels used on every mesh point:
// inversion, products and the Hermitian eigen-decomposition, all on row major n×n slices.
package mat

import (
	"cmp"
	"math"
	"math/cmplx"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrSingular = errors.New("singular matrix")
)

// embed returns the 2n×2n real matrix [[X, -Y], [Y, X]] of a = X + iY.
func embed(a []complex128, n int) *mat.Dense {
	m := mat.NewDense(2*n, 2*n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := a[i*n+j]
			m.Set(i, j, real(v))
			m.Set(i, n+j, -imag(v))
			m.Set(n+i, j, imag(v))
			m.Set(n+i, n+j, real(v))
		}
	}
	return m
}

// Inv writes the inverse of the n×n matrix a into dst, which may alias a.
func Inv(dst, a []complex128, n int) error {
	if n == 1 {
		if a[0] == 0 || cmplx.IsNaN(a[0]) {
			return errors.WithStack(ErrSingular)
		}
		dst[0] = 1 / a[0]
		return nil
	}

	var inv mat.Dense
	if err := inv.Inverse(embed(a, n)); err != nil {
		return errors.Wrap(ErrSingular, err.Error())
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			dst[i*n+j] = complex(inv.At(i, j), inv.At(n+i, j))
		}
	}
	return nil
}

// Mul writes the product a*b of n×n matrices into dst, which must not alias a or b.
func Mul(dst, a, b []complex128, n int) {
	clear(dst[:n*n])
	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			aik := a[i*n+k]
			if aik == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				dst[i*n+j] += aik * b[k*n+j]
			}
		}
	}
}

func Dagger(dst, a []complex128, n int) {
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			dst[j*n+i] = cmplx.Conj(a[i*n+j])
		}
	}
}

// IsHermitian reports whether a equals its conjugate transpose within tol.
func IsHermitian(a []complex128, n int, tol float64) bool {
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if cmplx.Abs(a[i*n+j]-cmplx.Conj(a[j*n+i])) > tol {
				return false
			}
		}
	}
	return true
}

// Eigen holds eigenvalues in ascending order and the eigenvectors as columns of the row major Vecs.
type Eigen struct {
	N    int
	Vals []float64
	Vecs []complex128
}

// U returns element (i, j) of the unitary matrix of eigenvectors.
func (e Eigen) U(i, j int) complex128 { return e.Vecs[i*e.N+j] }

// EigenHermitian diagonalizes the Hermitian matrix a.
// The real symmetric embedding has every eigenvalue twice, with eigenvectors u and i*u.
// A Gram-Schmidt pass that always takes the candidate with the largest orthogonal remainder picks one of each pair.
func EigenHermitian(a []complex128, n int) (Eigen, error) {
	if n == 1 {
		return Eigen{N: 1, Vals: []float64{real(a[0])}, Vecs: []complex128{1}}, nil
	}

	var es mat.EigenSym
	if ok := es.Factorize(mat.NewSymDense(2*n, embed(a, n).RawMatrix().Data), true); !ok {
		return Eigen{}, errors.Errorf("eigen decomposition failed %v", a)
	}
	vals2 := es.Values(nil)
	var vecs2 mat.Dense
	es.VectorsTo(&vecs2)

	type candidate struct {
		val float64
		vec []complex128
	}
	cands := make([]candidate, 2*n)
	for c := range cands {
		v := make([]complex128, n)
		for i := 0; i < n; i++ {
			v[i] = complex(vecs2.At(i, c), vecs2.At(n+i, c))
		}
		cands[c] = candidate{val: vals2[c], vec: v}
	}

	chosen := make([]candidate, 0, n)
	used := make([]bool, len(cands))
	for len(chosen) < n {
		best, bestNorm := -1, -1.0
		var bestVec []complex128
		for c, cand := range cands {
			if used[c] {
				continue
			}
			r := slices.Clone(cand.vec)
			for _, s := range chosen {
				var overlap complex128
				for i := range r {
					overlap += cmplx.Conj(s.vec[i]) * r[i]
				}
				for i := range r {
					r[i] -= overlap * s.vec[i]
				}
			}
			if nrm := norm(r); nrm > bestNorm {
				best, bestNorm, bestVec = c, nrm, r
			}
		}
		if bestNorm < 1e-8 {
			return Eigen{}, errors.Errorf("degenerate eigenvectors %v", a)
		}
		used[best] = true
		for i := range bestVec {
			bestVec[i] /= complex(bestNorm, 0)
		}
		chosen = append(chosen, candidate{val: cands[best].val, vec: bestVec})
	}
	slices.SortStableFunc(chosen, func(x, y candidate) int { return cmp.Compare(x.val, y.val) })

	e := Eigen{N: n, Vals: make([]float64, n), Vecs: make([]complex128, n*n)}
	for j, c := range chosen {
		e.Vals[j] = c.val
		for i := 0; i < n; i++ {
			e.Vecs[i*n+j] = c.vec[i]
		}
	}
	return e, nil
}

func norm(v []complex128) float64 {
	var s float64
	for _, x := range v {
		s += real(x)*real(x) + imag(x)*imag(x)
	}
	return math.Sqrt(s)
}
