package errs

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestKinds(t *testing.T) {
	t.Parallel()
	cfg := errors.Wrap(Config("periodization", "off-diagonal entry %d", 3), "")
	require.True(t, IsConfiguration(cfg))
	require.False(t, IsSingular(cfg))
	require.Contains(t, cfg.Error(), "off-diagonal entry 3")

	sing := errors.Wrap(Singular("dyson", "k=%d w=%d", 1, 2), "")
	require.True(t, IsSingular(sing))
	var target *SingularMatrixError
	require.True(t, errors.As(sing, &target))
	require.Equal(t, "k=1 w=2", target.Point)
	require.Equal(t, "dyson", target.Stage)

	num := errors.Wrap(NonFinite("Sigma", 2, "k=%v", [3]int{1, 0, 0}), "")
	require.True(t, IsNumerical(num))
	require.False(t, IsSingular(num))
	require.Equal(t, "non finite Sigma in iteration 2 at k=[1 0 0]", errors.Cause(num).Error())

	nc := NonConvergence{Iterations: 3, Residual: 0.1, Tol: 1e-3}
	require.Contains(t, nc.Error(), "3 iterations")
	w := TruncationWarning{Quantity: "g_wk", Remainder: 0.2, Tol: 0.01}
	require.Contains(t, w.Error(), "g_wk")
}
