package mat

import (
	"fmt"
	"math/cmplx"
	"os"
	"path/filepath"
	"testing"
)

func TestKron(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a *COO
		b *COO
		c *COO
	}{
		// Bonding hopping of a two site molecule with two spin flavours.
		{
			a: M(PauliX),
			b: Identity(2),
			c: M([][]complex128{
				{0, 0, 1, 0},
				{0, 0, 0, 1},
				{1, 0, 0, 0},
				{0, 1, 0, 0},
			}),
		},
		{
			a: M([][]complex128{
				{1, -4},
				{-2, 0},
			}),
			b: M([][]complex128{
				{8, -9i},
				{1, 0},
			}),
			c: M([][]complex128{
				{8, -9i, -32, 36i},
				{1, 0, -4, 0},
				{-16, 18i, 0, 0},
				{-2, 0, 0, 0},
			}),
		},
		// Scalar kronecker.
		{
			a: M([][]complex128{{1}}),
			b: M([][]complex128{{1, 0}, {0, -1}}),
			c: M([][]complex128{{1, 0}, {0, -1}}),
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s", test.a), func(t *testing.T) {
			t.Parallel()
			test.a.Kron(test.b)
			if !test.a.Equal(test.c) {
				t.Fatalf("%s, expected %s", test.a, test.c)
			}
		})
	}
}

func TestWriteReadCOO(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)

	m := M([][]complex128{
		{0.5, 0, -1.25i},
		{0, 3 - 2i, 0},
	})
	if err := m.WriteCOO(dir); err != nil {
		t.Fatalf("%+v", err)
	}
	read, err := ReadCOO(dir)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !read.Equal(m) {
		t.Fatalf("%s, expected %s", read, m)
	}
}

func TestReadCOOErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		shape string
		coo   string
	}{
		{shape: "2,2\n", coo: "1,2,0\n"},
		{shape: "2,2\n", coo: "1,0\n"},
		{shape: "2,2\n", coo: "x,0,0\n"},
		{shape: "2\n", coo: ""},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%q %q", test.shape, test.coo), func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, FnameShape), []byte(test.shape), 0644); err != nil {
				t.Fatalf("%+v", err)
			}
			if err := os.WriteFile(filepath.Join(dir, FnameCOO), []byte(test.coo), 0644); err != nil {
				t.Fatalf("%+v", err)
			}
			if m, err := ReadCOO(dir); err == nil {
				t.Fatalf("%s, expected error", m)
			}
		})
	}
}

func TestInv(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a []complex128
		n int
	}{
		{a: []complex128{2i}, n: 1},
		{a: []complex128{1, 2i, -1i, 3}, n: 2},
		{a: []complex128{4, 1 - 1i, 0, 1 + 1i, 3, 0.5i, 0, -0.5i, 2}, n: 3},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v", test.a), func(t *testing.T) {
			t.Parallel()
			inv := make([]complex128, len(test.a))
			if err := Inv(inv, test.a, test.n); err != nil {
				t.Fatalf("%+v", err)
			}
			prod := make([]complex128, len(test.a))
			Mul(prod, test.a, inv, test.n)
			for i := 0; i < test.n; i++ {
				for j := 0; j < test.n; j++ {
					var expected complex128
					if i == j {
						expected = 1
					}
					if d := cmplx.Abs(prod[i*test.n+j] - expected); d > 1e-12 {
						t.Fatalf("%d %d %v, expected %v", i, j, prod[i*test.n+j], expected)
					}
				}
			}
		})
	}
}

func TestInvSingular(t *testing.T) {
	t.Parallel()
	for _, a := range [][]complex128{{0}, {1, 1i, 1i, -1}} {
		n := 1
		if len(a) == 4 {
			n = 2
		}
		dst := make([]complex128, len(a))
		if err := Inv(dst, a, n); err == nil {
			t.Fatalf("%v: expected singular", a)
		}
	}
}

func TestEigenHermitian(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a    []complex128
		n    int
		vals []float64
	}{
		{a: []complex128{-0.3, -0.5, -0.5, 0.4}, n: 2},
		{a: []complex128{1, 1i, -1i, 1}, n: 2, vals: []float64{0, 2}},
		// Degenerate spectrum.
		{a: []complex128{0, 0, 1, 0, 0, 0, 0, 1, 1, 0, 0, 0, 0, 1, 0, 0}, n: 4, vals: []float64{-1, -1, 1, 1}},
		{a: []complex128{2, 0.5 - 1i, 0, 0.5 + 1i, -1, 0.25i, 0, -0.25i, 0.3}, n: 3},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v", test.a), func(t *testing.T) {
			t.Parallel()
			e, err := EigenHermitian(test.a, test.n)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			for i, v := range test.vals {
				if d := e.Vals[i] - v; d*d > 1e-24 {
					t.Fatalf("%v, expected %v", e.Vals, test.vals)
				}
			}

			// U diag(vals) U^dagger reproduces a and U is unitary.
			n := test.n
			udag := make([]complex128, n*n)
			Dagger(udag, e.Vecs, n)
			ud := make([]complex128, n*n)
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					ud[i*n+j] = e.U(i, j) * complex(e.Vals[j], 0)
				}
			}
			rebuilt := make([]complex128, n*n)
			Mul(rebuilt, ud, udag, n)
			unit := make([]complex128, n*n)
			Mul(unit, udag, e.Vecs, n)
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					if d := cmplx.Abs(rebuilt[i*n+j] - test.a[i*n+j]); d > 1e-10 {
						t.Fatalf("%d %d %v, expected %v", i, j, rebuilt[i*n+j], test.a[i*n+j])
					}
					var expected complex128
					if i == j {
						expected = 1
					}
					if d := cmplx.Abs(unit[i*n+j] - expected); d > 1e-10 {
						t.Fatalf("%d %d %v, expected %v", i, j, unit[i*n+j], expected)
					}
				}
			}
		})
	}
}
