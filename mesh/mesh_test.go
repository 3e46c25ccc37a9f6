package mesh

import (
	"fmt"
	"math"
	"testing"

	"github.com/fumin/tprf/errs"
)

func TestMatsubara(t *testing.T) {
	t.Parallel()
	tests := []struct {
		m     Matsubara
		len   int
		first float64
		last  float64
	}{
		{m: Matsubara{Beta: 10, Statistic: Fermion, NMax: 3}, len: 6, first: -5 * math.Pi / 10, last: 5 * math.Pi / 10},
		{m: Matsubara{Beta: 10, Statistic: Boson, NMax: 3}, len: 5, first: -4 * math.Pi / 10, last: 4 * math.Pi / 10},
		{m: Matsubara{Beta: 20, Statistic: Boson, NMax: 1}, len: 1, first: 0, last: 0},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s", test.m), func(t *testing.T) {
			t.Parallel()
			if test.m.Len() != test.len {
				t.Fatalf("%d, expected %d", test.m.Len(), test.len)
			}
			if d := math.Abs(test.m.Omega(0) - test.first); d > 1e-14 {
				t.Fatalf("%v, expected %v", test.m.Omega(0), test.first)
			}
			if d := math.Abs(test.m.Max() - test.last); d > 1e-14 {
				t.Fatalf("%v, expected %v", test.m.Max(), test.last)
			}
			for i := 0; i < test.m.Len(); i++ {
				p, ok := test.m.Pos(test.m.Index(i))
				if !ok || p != i {
					t.Fatalf("%d %v, expected %d", p, ok, i)
				}
			}
			if _, ok := test.m.Pos(test.m.Index(test.m.Len())); ok {
				t.Fatalf("index beyond the window found")
			}
		})
	}
}

func TestMeshErrors(t *testing.T) {
	t.Parallel()
	if _, err := NewMatsubara(-1, Fermion, 10); !errs.IsConfiguration(err) {
		t.Fatalf("%+v", err)
	}
	if _, err := NewMatsubara(1, Fermion, 0); !errs.IsConfiguration(err) {
		t.Fatalf("%+v", err)
	}
	if _, err := NewImTime(1, Boson, 3); !errs.IsConfiguration(err) {
		t.Fatalf("%+v", err)
	}
	if _, err := NewLattice([3][3]int{{2, 1, 0}, {0, 2, 0}, {0, 0, 1}}); !errs.IsConfiguration(err) {
		t.Fatalf("%+v", err)
	}
	if _, err := NewLattice([3][3]int{{2, 0, 0}, {0, 0, 0}, {0, 0, 1}}); !errs.IsConfiguration(err) {
		t.Fatalf("%+v", err)
	}
	a := Matsubara{Beta: 1, Statistic: Fermion, NMax: 2}
	b := Matsubara{Beta: 2, Statistic: Fermion, NMax: 2}
	if err := a.SameBeta(b); !errs.IsConfiguration(err) {
		t.Fatalf("%+v", err)
	}
}

func TestLattice(t *testing.T) {
	t.Parallel()
	l, err := Diag(3, 2, 1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if l.Len() != 6 {
		t.Fatalf("%d, expected %d", l.Len(), 6)
	}
	for i := 0; i < l.Len(); i++ {
		if got := l.Index(l.Coord(i)); got != i {
			t.Fatalf("%d, expected %d", got, i)
		}
		if got := l.Neg(l.Neg(i)); got != i {
			t.Fatalf("%d, expected %d", got, i)
		}
		for j := 0; j < l.Len(); j++ {
			if got := l.Add(l.Sub(i, j), j); got != i {
				t.Fatalf("%d %d: %d, expected %d", i, j, got, i)
			}
		}
	}
	if got := l.Index([3]int{-1, 3, 5}); got != l.Index([3]int{2, 1, 0}) {
		t.Fatalf("%d, expected %d", got, l.Index([3]int{2, 1, 0}))
	}
	k := l.K(l.Index([3]int{1, 1, 0}))
	if math.Abs(k[0]-2*math.Pi/3) > 1e-15 || math.Abs(k[1]-math.Pi) > 1e-15 || k[2] != 0 {
		t.Fatalf("%v", k)
	}
}

func TestImTime(t *testing.T) {
	t.Parallel()
	m := Matsubara{Beta: 5, Statistic: Fermion, NMax: 4}.ImTime()
	if m.Len() != 25 {
		t.Fatalf("%d, expected %d", m.Len(), 25)
	}
	if m.Tau(0) != 0 || math.Abs(m.Tau(m.Len()-1)-5) > 1e-14 {
		t.Fatalf("%v %v", m.Tau(0), m.Tau(m.Len()-1))
	}
}
