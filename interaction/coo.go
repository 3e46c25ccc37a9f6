package interaction

import (
	"math"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"

	"github.com/fumin/tprf/errs"
	"github.com/fumin/tprf/mat"
)

// WriteCOO writes v into dir as the n²×n² pair space matrix with rows (a, b) and columns (c, d).
func (v Tensor) WriteCOO(dir string) error {
	n2 := v.N * v.N
	if err := mat.FromFlat(n2, n2, v.Data).WriteCOO(dir); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// ReadCOO reads a pair space matrix written by WriteCOO or by scipy.
// The table passes through a single precision rank 4 tensor.
func ReadCOO(dir string) (Tensor, error) {
	m, err := mat.ReadCOO(dir)
	if err != nil {
		return Tensor{}, errors.Wrap(err, "")
	}
	n := int(math.Round(math.Sqrt(float64(m.Rows()))))
	if n == 0 || m.Rows() != m.Cols() || n*n != m.Rows() {
		return Tensor{}, errs.Config("interaction", "%d×%d is not a pair space matrix", m.Rows(), m.Cols())
	}

	t := tensor.Zeros(m.Rows(), m.Cols())
	for i, row := range m.Dense() {
		for j, x := range row {
			if x != 0 {
				t.SetAt([]int{i, j}, complex64(x))
			}
		}
	}
	v, err := FromDense(t.Reshape(n, n, n, n))
	if err != nil {
		return Tensor{}, errors.Wrap(err, dir)
	}
	return v, nil
}
