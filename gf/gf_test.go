package gf

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/fumin/tprf/errs"
	"github.com/fumin/tprf/mesh"
)

func TestBlockAndCopy(t *testing.T) {
	t.Parallel()
	l, err := mesh.Diag(2, 1, 1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	m := mesh.Matsubara{Beta: 4, Statistic: mesh.Fermion, NMax: 2}
	g := NewFreq(m, l, Momentum, 2, 2)
	if len(g.Data) != 4*2*4 {
		t.Fatalf("%d, expected %d", len(g.Data), 32)
	}
	g.Block(3, 1)[Idx2(2, 1, 0)] = 2i
	if g.Data[(3*2+1)*4+2] != 2i {
		t.Fatalf("%v", g.Data)
	}

	c := g.Copy()
	c.Block(3, 1)[2] = 5
	c.Freq.NMax = 7
	if g.Block(3, 1)[2] != 2i || g.Freq.NMax != 2 {
		t.Fatalf("copy aliases its source")
	}
	d, err := g.MaxDiff(g.Copy())
	if err != nil || d != 0 {
		t.Fatalf("%v %+v", d, err)
	}
	if _, err := g.MaxDiff(c); !errs.IsConfiguration(err) {
		t.Fatalf("%+v", err)
	}
	if err := g.SameMesh(NewStatic(l, Momentum, 2, 2)); !errs.IsConfiguration(err) {
		t.Fatalf("%+v", err)
	}
}

func TestTailEval(t *testing.T) {
	t.Parallel()
	tail := NewTail(3, 2, 1)
	tail.Coef(1, 1)[0] = 1
	tail.Coef(2, 1)[0] = 0.5
	tail.Coef(3, 1)[0] = -2
	iw := complex(0, 3.0)
	expected := 1/iw + 0.5/(iw*iw) - 2/(iw*iw*iw)
	if got := tail.Eval(1, 0, iw); cmplx.Abs(got-expected) > 1e-15 {
		t.Fatalf("%v, expected %v", got, expected)
	}
	if got := tail.Eval(0, 0, iw); got != 0 {
		t.Fatalf("%v, expected 0", got)
	}
	if got := tail.Eval(1, 0, 0); got != 0 {
		t.Fatalf("%v, expected 0", got)
	}
}

func TestMaxDiffNonFinite(t *testing.T) {
	t.Parallel()
	l, err := mesh.Diag(2, 1, 1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	wm := mesh.Matsubara{Beta: 3, Statistic: mesh.Boson, NMax: 2}
	a := NewFreq(wm, l, Real, 2, 2)
	tests := []struct {
		v complex128
		i int
	}{
		{v: complex(math.NaN(), 0), i: 13},
		{v: complex(0, math.Inf(-1)), i: 0},
		{v: cmplx.NaN(), i: len(a.Data) - 1},
	}
	for _, test := range tests {
		b := a.Copy()
		b.Data[test.i] = test.v
		for _, pair := range [][2]*Gf{{a, b}, {b, a}, {b, b}} {
			if d, err := pair[0].MaxDiff(pair[1]); err != nil || !math.IsInf(d, 1) {
				t.Fatalf("%v at %d: %v %+v, expected +Inf", test.v, test.i, d, err)
			}
		}
		i, x, e, ok := b.FirstNonFinite()
		if !ok || i*a.NX()*a.TargetSize()+x*a.TargetSize()+e != test.i {
			t.Fatalf("%d %d %d %t, expected flat index %d", i, x, e, ok, test.i)
		}
	}
	if _, _, _, ok := a.FirstNonFinite(); ok {
		t.Fatalf("zeros reported as non finite")
	}
	if d, err := a.MaxDiff(a.Copy()); err != nil || d != 0 {
		t.Fatalf("%v %+v", d, err)
	}
}

func TestIdx4(t *testing.T) {
	t.Parallel()
	// The rank 4 layout is the pair space matrix with rows (a, b) and columns (c, d).
	n := 3
	a, b, c, d := 2, 0, 1, 2
	row, col := a*n+b, c*n+d
	if got := Idx4(n, a, b, c, d); got != row*n*n+col {
		t.Fatalf("%d, expected %d", got, row*n*n+col)
	}
}
