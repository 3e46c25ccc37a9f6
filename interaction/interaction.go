// Package interaction builds the rank 4 interaction tensor V[a,b,c,d] of H_int = (1/2) Σ V[a,b,c,d] c†_a c_b c†_c c_d
// and broadcasts it onto a momentum mesh.
package interaction

import (
	"fmt"
	"math/cmplx"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"

	"github.com/fumin/tprf/errs"
	"github.com/fumin/tprf/gf"
	"github.com/fumin/tprf/mesh"
)

// Tensor is a local interaction on n orbitals, stored row major in [a][b][c][d].
type Tensor struct {
	N    int
	Data []complex128
}

func Zeros(n int) Tensor {
	return Tensor{N: n, Data: make([]complex128, n*n*n*n)}
}

func (v Tensor) At(a, b, c, d int) complex128 { return v.Data[gf.Idx4(v.N, a, b, c, d)] }

func (v Tensor) Set(a, b, c, d int, x complex128) { v.Data[gf.Idx4(v.N, a, b, c, d)] = x }

// DensityDensity returns the tensor of Σ_{a<b} u_ab n_a n_b, with V[a,a,b,b] = u_ab for a ≠ b.
// With selfInteraction the diagonal V[a,a,a,a] = u_aa is kept as well,
// which makes the Hartree and exchange terms of an orbital with itself cancel.
func DensityDensity(u [][]float64, selfInteraction bool) (Tensor, error) {
	n := len(u)
	if n == 0 {
		return Tensor{}, errs.Config("u", "no orbitals")
	}
	for a, row := range u {
		if len(row) != n {
			return Tensor{}, errs.Config("u", "row %d has %d entries, expected %d", a, len(row), n)
		}
		for b := range row {
			if row[b] != u[b][a] {
				return Tensor{}, errs.Config("u", "not symmetric at (%d, %d)", a, b)
			}
		}
	}

	v := Zeros(n)
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			if a == b && !selfInteraction {
				continue
			}
			v.Set(a, a, b, b, complex(u[a][b], 0))
		}
	}
	return v, nil
}

// Hubbard is the on-site interaction U n_up n_down of each site, with orbitals ordered (up_0, down_0, up_1, down_1, ...).
func Hubbard(sites int, u float64, selfInteraction bool) (Tensor, error) {
	m := make([][]float64, 2*sites)
	for i := range m {
		m[i] = make([]float64, 2*sites)
	}
	for s := 0; s < sites; s++ {
		for i := 2 * s; i < 2*s+2; i++ {
			for j := 2 * s; j < 2*s+2; j++ {
				m[i][j] = u
			}
		}
	}
	v, err := DensityDensity(m, selfInteraction)
	if err != nil {
		return Tensor{}, errors.Wrap(err, "")
	}
	return v, nil
}

// FromDense imports a rank 4 table with equal dimensions.
func FromDense(t *tensor.Dense) (Tensor, error) {
	shape := t.Shape()
	if len(shape) != 4 {
		return Tensor{}, errs.Config("interaction", "rank %d, expected 4", len(shape))
	}
	for _, d := range shape {
		if d != shape[0] {
			return Tensor{}, errs.Config("interaction", "shape %v is not n×n×n×n", shape)
		}
	}
	v := Zeros(shape[0])
	for ijk, x := range t.All() {
		v.Set(ijk[0], ijk[1], ijk[2], ijk[3], complex128(x))
	}
	return v, nil
}

// OnMesh returns V(k) = V for every k of l.
func (v Tensor) OnMesh(l mesh.Lattice) *gf.Gf {
	vk := gf.NewStatic(l, gf.Momentum, v.N, v.N, v.N, v.N)
	for x := 0; x < l.Len(); x++ {
		copy(vk.Block(0, x), v.Data)
	}
	return vk
}

// Equal reports whether v and o agree within tol.
func (v Tensor) Equal(o Tensor, tol float64) bool {
	if v.N != o.N {
		return false
	}
	for i, x := range v.Data {
		if cmplx.Abs(x-o.Data[i]) > tol {
			return false
		}
	}
	return true
}

// String lists the non zero entries.
func (v Tensor) String() string {
	s := make([]string, 0)
	n := v.N
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			for c := 0; c < n; c++ {
				for d := 0; d < n; d++ {
					if x := v.At(a, b, c, d); x != 0 {
						s = append(s, fmt.Sprintf("%d,%d,%d,%d: %v", a, b, c, d, x))
					}
				}
			}
		}
	}
	return fmt.Sprintf("interaction(n=%d)%v", n, s)
}
