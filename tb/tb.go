// Package tb evaluates tight binding dispersions H(k) = Σ_d hop(d) e^{ik·d}.
package tb

import (
	"context"
	"fmt"
	"math/cmplx"
	"slices"

	"github.com/pkg/errors"

	"github.com/fumin/tprf/errs"
	"github.com/fumin/tprf/gf"
	"github.com/fumin/tprf/internal/parallel"
	"github.com/fumin/tprf/mat"
	"github.com/fumin/tprf/mesh"
)

const hermitianTol = 1e-12

// Model is a lattice model given by its hopping table.
// Hopping matrices are NOrb×NOrb in row major order and hop(-d) must equal hop(d)†.
type Model struct {
	NOrb    int
	Hopping map[[3]int][]complex128
}

func New(norb int, hopping map[[3]int][][]complex128) (*Model, error) {
	m := &Model{NOrb: norb, Hopping: make(map[[3]int][]complex128, len(hopping))}
	for d, h := range hopping {
		if len(h) != norb {
			return nil, errs.Config("hopping", "%v has %d rows, expected %d", d, len(h), norb)
		}
		flat := make([]complex128, 0, norb*norb)
		for _, row := range h {
			if len(row) != norb {
				return nil, errs.Config("hopping", "%v has a row of %d, expected %d", d, len(row), norb)
			}
			flat = append(flat, row...)
		}
		m.Hopping[d] = flat
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return m, nil
}

// Validate checks the orbital dimension of every hopping and the conjugate pair invariant.
func (m *Model) Validate() error {
	if m.NOrb < 1 {
		return errs.Config("norb", "%d", m.NOrb)
	}
	dag := make([]complex128, m.NOrb*m.NOrb)
	for _, d := range m.displacements() {
		h := m.Hopping[d]
		if len(h) != m.NOrb*m.NOrb {
			return errs.Config("hopping", "%v has %d elements, expected %d", d, len(h), m.NOrb*m.NOrb)
		}
		neg := [3]int{-d[0], -d[1], -d[2]}
		hn, ok := m.Hopping[neg]
		if !ok {
			return errs.Config("hopping", "%v has no partner %v", d, neg)
		}
		if len(hn) != len(h) {
			return errs.Config("hopping", "%v has %d elements, expected %d", neg, len(hn), len(h))
		}
		mat.Dagger(dag, h, m.NOrb)
		for i, v := range dag {
			if cmplx.Abs(v-hn[i]) > hermitianTol {
				return errs.Config("hopping", "%v is not the conjugate transpose of %v", neg, d)
			}
		}
	}
	return nil
}

// HK evaluates the dispersion at momentum k.
func (m *Model) HK(k [3]float64) []complex128 {
	h := make([]complex128, m.NOrb*m.NOrb)
	for _, d := range m.displacements() {
		phase := cmplx.Exp(complex(0, k[0]*float64(d[0])+k[1]*float64(d[1])+k[2]*float64(d[2])))
		for i, v := range m.Hopping[d] {
			h[i] += v * phase
		}
	}
	return h
}

// OnMesh evaluates H(k) on every point of the Brillouin zone mesh of l.
func (m *Model) OnMesh(ctx context.Context, l mesh.Lattice) (*gf.Gf, error) {
	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	ek := gf.NewStatic(l, gf.Momentum, m.NOrb, m.NOrb)
	err := parallel.For(ctx, l.Len(), func(x int) error {
		h := m.HK(l.K(x))
		if !mat.IsHermitian(h, m.NOrb, 1e-10) {
			return errs.Config("hopping", "H(k) not hermitian at %v", l.Coord(x))
		}
		copy(ek.Block(0, x), h)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return ek, nil
}

// displacements returns the hopping keys in a fixed order, so that sums are reproducible.
func (m *Model) displacements() [][3]int {
	ds := make([][3]int, 0, len(m.Hopping))
	for d := range m.Hopping {
		ds = append(ds, d)
	}
	slices.SortFunc(ds, func(a, b [3]int) int {
		for i := range a {
			if a[i] != b[i] {
				return a[i] - b[i]
			}
		}
		return 0
	})
	return ds
}

func (m *Model) String() string {
	return fmt.Sprintf("tb(norb=%d, hoppings=%d)", m.NOrb, len(m.Hopping))
}

// SquareLattice has the on-site matrix hloc and the hopping t to the four nearest neighbours.
func SquareLattice(hloc, t [][]complex128) (*Model, error) {
	return New(len(hloc), map[[3]int][][]complex128{
		{0, 0, 0}:  hloc,
		{1, 0, 0}:  t,
		{-1, 0, 0}: t,
		{0, 1, 0}:  t,
		{0, -1, 0}: t,
	})
}

// Dimer is the two site molecule as a periodic chain of two cells.
// Both neighbours of a site are the same site, so each direction carries half of the hopping t.
func Dimer(t float64, norb int) (*Model, error) {
	h := make([][]complex128, norb)
	for i := range h {
		h[i] = make([]complex128, norb)
		h[i][i] = complex(-0.5*t, 0)
	}
	return New(norb, map[[3]int][][]complex128{
		{1, 0, 0}:  h,
		{-1, 0, 0}: h,
	})
}

// LocalDimer is the two site molecule as a single cell of four orbitals, site major and spin minor,
// with H = -t σx ⊗ 1.
func LocalDimer(t float64) (*Model, error) {
	h := mat.M(mat.PauliX)
	h.Kron(mat.Identity(2))
	return Local(h.Scale(complex(-t, 0)).Dense())
}

// Local is a model without dispersion, used for molecules written as one large unit cell.
func Local(h [][]complex128) (*Model, error) {
	return New(len(h), map[[3]int][][]complex128{{0, 0, 0}: h})
}
