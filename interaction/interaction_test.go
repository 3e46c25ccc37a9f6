package interaction

import (
	"path/filepath"
	"testing"

	"github.com/fumin/tensor"
	"github.com/stretchr/testify/require"

	"github.com/fumin/tprf/errs"
	"github.com/fumin/tprf/mat"
	"github.com/fumin/tprf/mesh"
)

func TestDensityDensity(t *testing.T) {
	t.Parallel()
	u := 1.5
	v, err := DensityDensity([][]float64{{u, u}, {u, u}}, true)
	require.NoError(t, err)
	for _, abcd := range [][4]int{{0, 0, 0, 0}, {1, 1, 1, 1}, {0, 0, 1, 1}, {1, 1, 0, 0}} {
		require.Equal(t, complex(u, 0), v.At(abcd[0], abcd[1], abcd[2], abcd[3]), "%v", abcd)
	}
	var nonZero int
	for _, x := range v.Data {
		if x != 0 {
			nonZero++
		}
	}
	require.Equal(t, 4, nonZero)

	w, err := DensityDensity([][]float64{{u, u}, {u, u}}, false)
	require.NoError(t, err)
	require.Zero(t, w.At(0, 0, 0, 0))
	require.Equal(t, complex(u, 0), w.At(0, 0, 1, 1))

	_, err = DensityDensity([][]float64{{0, 1}, {2, 0}}, false)
	require.True(t, errs.IsConfiguration(err), "%+v", err)
	_, err = DensityDensity([][]float64{{0, 1}}, false)
	require.True(t, errs.IsConfiguration(err), "%+v", err)
}

func TestHubbard(t *testing.T) {
	t.Parallel()
	v, err := Hubbard(2, 2, false)
	require.NoError(t, err)
	for a := 0; a < 4; a++ {
		for b := 0; b < 4; b++ {
			var expected complex128
			if a != b && a/2 == b/2 {
				expected = 2
			}
			require.Equal(t, expected, v.At(a, a, b, b), "%d %d", a, b)
		}
	}
}

func TestFromDense(t *testing.T) {
	t.Parallel()
	v, err := Hubbard(1, 0.75, true)
	require.NoError(t, err)
	d := tensor.Zeros(2, 2, 2, 2)
	for _, abcd := range [][]int{{0, 0, 0, 0}, {1, 1, 1, 1}, {0, 0, 1, 1}, {1, 1, 0, 0}} {
		d.SetAt(abcd, 0.75)
	}
	back, err := FromDense(d)
	require.NoError(t, err)
	require.True(t, back.Equal(v, 1e-7), "%s %s", back, v)

	_, err = FromDense(tensor.Zeros(2, 2, 3, 2))
	require.True(t, errs.IsConfiguration(err), "%+v", err)
	_, err = FromDense(tensor.Zeros(2, 2))
	require.True(t, errs.IsConfiguration(err), "%+v", err)
}

func TestCOORoundTrip(t *testing.T) {
	t.Parallel()
	v, err := Hubbard(2, 1.5, true)
	require.NoError(t, err)
	v.Set(0, 2, 2, 0, 0.25-0.5i)
	dir := t.TempDir()
	require.NoError(t, v.WriteCOO(dir))

	back, err := ReadCOO(dir)
	require.NoError(t, err)
	require.Equal(t, 4, back.N)
	require.True(t, back.Equal(v, 1e-7), "%s %s", back, v)
	require.Equal(t, 0.25-0.5i, back.At(0, 2, 2, 0))

	// A matrix that is not n²×n² is rejected.
	require.NoError(t, mat.FromFlat(3, 3, make([]complex128, 9)).WriteCOO(dir))
	_, err = ReadCOO(dir)
	require.True(t, errs.IsConfiguration(err), "%+v", err)
	_, err = ReadCOO(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestOnMesh(t *testing.T) {
	t.Parallel()
	v, err := Hubbard(1, 1, true)
	require.NoError(t, err)
	l, err := mesh.Diag(3, 2, 1)
	require.NoError(t, err)
	vk := v.OnMesh(l)
	require.Equal(t, 6, vk.NX())
	require.Equal(t, []int{2, 2, 2, 2}, vk.Target)
	for x := 0; x < l.Len(); x++ {
		require.Equal(t, v.Data, vk.Block(0, x))
	}
}
