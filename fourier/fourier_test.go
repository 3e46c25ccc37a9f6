package fourier

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/cmplx"
	"math/rand"
	"os"
	"testing"

	"github.com/fumin/tprf/errs"
	"github.com/fumin/tprf/gf"
	"github.com/fumin/tprf/mesh"
)

func TestMain(m *testing.M) {
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)
	os.Exit(m.Run())
}

func single() mesh.Lattice {
	l, err := mesh.Diag(1, 1, 1)
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	return l
}

// pole returns 1/(iω - e) with its exact tail c_k = e^{k-1}.
func pole(beta, e float64, nmax int) *gf.Gf {
	wm := mesh.Matsubara{Beta: beta, Statistic: mesh.Fermion, NMax: nmax}
	g := gf.NewFreq(wm, single(), gf.Real, 1, 1)
	for i := 0; i < wm.Len(); i++ {
		g.Block(i, 0)[0] = 1 / (wm.IW(i) - complex(e, 0))
	}
	g.Tail = gf.NewTail(4, 1, 1)
	for k := 1; k <= 4; k++ {
		g.Tail.Coef(k, 0)[0] = complex(math.Pow(e, float64(k-1)), 0)
	}
	return g
}

func poleTau(beta, e, tau float64) float64 {
	return -math.Exp(-e*tau) / (1 + math.Exp(-beta*e))
}

func TestLatticeRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []mesh.Lattice{
		{Dims: [3]int{2, 2, 1}},
		{Dims: [3]int{3, 4, 2}},
		{Dims: [3]int{5, 1, 1}},
	}
	for _, l := range tests {
		t.Run(fmt.Sprintf("%s", l), func(t *testing.T) {
			t.Parallel()
			wm := mesh.Matsubara{Beta: 3, Statistic: mesh.Fermion, NMax: 2}
			g := gf.NewFreq(wm, l, gf.Momentum, 2, 2)
			rng := rand.New(rand.NewSource(7))
			for i := range g.Data {
				g.Data[i] = complex(rng.NormFloat64(), rng.NormFloat64())
			}
			gr, err := KToR(context.Background(), g)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if gr.Space != gf.Real {
				t.Fatalf("%s", gr.Space)
			}
			back, err := RToK(context.Background(), gr)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if d, err := back.MaxDiff(g); err != nil || d > 1e-10 {
				t.Fatalf("%v %+v", d, err)
			}
			if _, err := RToK(context.Background(), g); !errs.IsConfiguration(err) {
				t.Fatalf("%+v", err)
			}
		})
	}
}

func TestKToRPlaneWave(t *testing.T) {
	t.Parallel()
	l := mesh.Lattice{Dims: [3]int{4, 3, 1}}
	r0 := [3]int{1, 2, 0}
	g := gf.NewStatic(l, gf.Momentum, 1, 1)
	for x := 0; x < l.Len(); x++ {
		k := l.K(x)
		g.Block(0, x)[0] = cmplx.Exp(complex(0, -(k[0]*float64(r0[0]) + k[1]*float64(r0[1]))))
	}
	gr, err := KToR(context.Background(), g)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for x := 0; x < l.Len(); x++ {
		var expected complex128
		if x == l.Index(r0) {
			expected = 1
		}
		if got := gr.Block(0, x)[0]; cmplx.Abs(got-expected) > 1e-14 {
			t.Fatalf("%v: %v, expected %v", l.Coord(x), got, expected)
		}
	}
}

func TestFreqToTimePole(t *testing.T) {
	t.Parallel()
	tests := []struct {
		beta float64
		e    float64
		tail bool
		tol  float64
	}{
		{beta: 10, e: 0.7, tail: true, tol: 1e-9},
		{beta: 10, e: -1.3, tail: true, tol: 1e-9},
		{beta: 10, e: 0.7, tail: false, tol: 1e-6},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v %v %v", test.beta, test.e, test.tail), func(t *testing.T) {
			t.Parallel()
			g := pole(test.beta, test.e, 256)
			if !test.tail {
				g.Tail = nil
			}
			tm := g.Freq.ImTime()
			gt, err := FreqToTime(context.Background(), g, tm, DefaultOptions)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			for j := 0; j < tm.Len(); j++ {
				expected := poleTau(test.beta, test.e, tm.Tau(j))
				if got := gt.Block(j, 0)[0]; cmplx.Abs(got-complex(expected, 0)) > test.tol {
					t.Fatalf("tau %v: %v, expected %v", tm.Tau(j), got, expected)
				}
			}
		})
	}
}

func TestTimeToFreqFermion(t *testing.T) {
	t.Parallel()
	beta, e := 8.0, 0.45
	wm := mesh.Matsubara{Beta: beta, Statistic: mesh.Fermion, NMax: 64}
	tm := wm.ImTime()
	g := gf.NewTime(tm, single(), gf.Real, 1, 1)
	for j := 0; j < tm.Len(); j++ {
		g.Block(j, 0)[0] = complex(poleTau(beta, e, tm.Tau(j)), 0)
	}

	m := Moments(g.Data, tm)
	for k, expected := range []float64{1, e, e * e} {
		if cmplx.Abs(m[k]-complex(expected, 0)) > 1e-6 {
			t.Fatalf("moment %d: %v, expected %v", k+1, m[k], expected)
		}
	}

	gw, err := TimeToFreq(context.Background(), g, wm)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for i := 0; i < wm.Len(); i++ {
		expected := 1 / (wm.IW(i) - complex(e, 0))
		if got := gw.Block(i, 0)[0]; cmplx.Abs(got-expected) > 1e-8 {
			t.Fatalf("%v: %v, expected %v", wm.IW(i), got, expected)
		}
	}
}

func TestTimeToFreqBoson(t *testing.T) {
	t.Parallel()
	// cosh(e(τ-β/2)) transforms into 2e sinh(eβ/2)/(e²+Ω²).
	beta, e := 5.0, 1.0
	wm := mesh.Matsubara{Beta: beta, Statistic: mesh.Boson, NMax: 100}
	tm := wm.ImTime()
	g := gf.NewTime(tm, single(), gf.Real, 1, 1)
	for j := 0; j < tm.Len(); j++ {
		g.Block(j, 0)[0] = complex(math.Cosh(e*(tm.Tau(j)-beta/2)), 0)
	}
	gw, err := TimeToFreq(context.Background(), g, wm)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for i := 0; i < wm.Len(); i++ {
		w := wm.Omega(i)
		expected := 2 * e * math.Sinh(e*beta/2) / (e*e + w*w)
		if got := gw.Block(i, 0)[0]; cmplx.Abs(got-complex(expected, 0)) > 1e-8 {
			t.Fatalf("%v: %v, expected %v", w, got, expected)
		}
	}

	// And back to imaginary time, where the tail is fitted.
	back, err := FreqToTime(context.Background(), gw, tm, DefaultOptions)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for j := 0; j < tm.Len(); j++ {
		if d := cmplx.Abs(back.Block(j, 0)[0] - g.Block(j, 0)[0]); d > 1e-6 {
			t.Fatalf("tau %v: %v, expected %v", tm.Tau(j), back.Block(j, 0)[0], g.Block(j, 0)[0])
		}
	}
}

func TestFreqTimeRoundTrip(t *testing.T) {
	t.Parallel()
	// Two orbitals on a ring: G = [iω - H(k)]^{-1} with H(k) = [[a_k, v], [v, -a_k]].
	l := mesh.Lattice{Dims: [3]int{3, 1, 1}}
	wm := mesh.Matsubara{Beta: 10, Statistic: mesh.Fermion, NMax: 64}
	g := gf.NewFreq(wm, l, gf.Momentum, 2, 2)
	g.Tail = gf.NewTail(4, l.Len(), 4)
	v := 0.3
	for x := 0; x < l.Len(); x++ {
		a := -math.Cos(l.K(x)[0])
		h := [4]complex128{complex(a, 0), complex(v, 0), complex(v, 0), complex(-a, 0)}
		e := math.Sqrt(a*a + v*v)
		// H² = e² 1, so the powers of H alternate between H and e² 1.
		for i := 0; i < wm.Len(); i++ {
			iw := wm.IW(i)
			den := iw*iw - complex(e*e, 0)
			blk := g.Block(i, x)
			blk[0] = (iw + h[0]) / den
			blk[1] = h[1] / den
			blk[2] = h[2] / den
			blk[3] = (iw + h[3]) / den
		}
		g.Tail.Coef(1, x)[0], g.Tail.Coef(1, x)[3] = 1, 1
		copy(g.Tail.Coef(2, x), h[:])
		g.Tail.Coef(3, x)[0], g.Tail.Coef(3, x)[3] = complex(e*e, 0), complex(e*e, 0)
		for i := range h {
			g.Tail.Coef(4, x)[i] = complex(e*e, 0) * h[i]
		}
	}

	gt, err := FreqToTime(context.Background(), g, wm.ImTime(), DefaultOptions)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	back, err := TimeToFreq(context.Background(), gt, wm)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	back.Tail = g.Tail
	if d, err := back.MaxDiff(g); err != nil || d > 1e-10 {
		t.Fatalf("%v %+v", d, err)
	}
}

func TestFreqTimeRoundTripBoson(t *testing.T) {
	t.Parallel()
	// The bosonic pair of poles 2e/((iΩ)² - e²) is -cosh(e(τ-β/2))/sinh(eβ/2), finite at Ω = 0.
	beta, e := 5.0, 0.8
	wm := mesh.Matsubara{Beta: beta, Statistic: mesh.Boson, NMax: 128}
	g := gf.NewFreq(wm, single(), gf.Real, 1, 1)
	for i := 0; i < wm.Len(); i++ {
		iw := wm.IW(i)
		g.Block(i, 0)[0] = complex(2*e, 0) / (iw*iw - complex(e*e, 0))
	}
	exact := func(tau float64) float64 { return -math.Cosh(e*(tau-beta/2)) / math.Sinh(e*beta/2) }

	tests := []struct {
		name string
		tail *gf.Tail
		tol  float64
	}{
		{name: "exact", tail: gf.NewTail(4, 1, 1), tol: 1e-9},
		{name: "fitted", tail: nil, tol: 1e-6},
	}
	tests[0].tail.Coef(2, 0)[0] = complex(2*e, 0)
	tests[0].tail.Coef(4, 0)[0] = complex(2*e*e*e, 0)
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			in := g.Copy()
			in.Tail = test.tail
			gt, err := FreqToTime(context.Background(), in, wm.ImTime(), DefaultOptions)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			tm := *gt.Time
			for j := 0; j < tm.Len(); j++ {
				expected := exact(tm.Tau(j))
				if got := gt.Block(j, 0)[0]; cmplx.Abs(got-complex(expected, 0)) > test.tol {
					t.Fatalf("tau %v: %v, expected %v", tm.Tau(j), got, expected)
				}
			}

			back, err := TimeToFreq(context.Background(), gt, wm)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			back.Tail = in.Tail
			if d, err := back.MaxDiff(in); err != nil || d > 1e-10 {
				t.Fatalf("%v %+v", d, err)
			}
			i, _ := wm.Pos(0)
			if got := back.Block(i, 0)[0]; cmplx.Abs(got-complex(-2/e, 0)) > 1e-10 {
				t.Fatalf("%v, expected %v", got, -2/e)
			}
		})
	}
}

func TestFitTail(t *testing.T) {
	t.Parallel()
	e := 0.6
	g := pole(20, e, 512)
	g.Tail = nil
	tail, err := FitTail(g, DefaultOptions.FitOrder, DefaultOptions.FitFraction)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for k, expected := range []float64{1, e, e * e} {
		if got := tail.Coef(k+1, 0)[0]; cmplx.Abs(got-complex(expected, 0)) > 1e-5 {
			t.Fatalf("order %d: %v, expected %v", k+1, got, expected)
		}
	}

	if _, err := FitTail(g, 0, 0.5); !errs.IsConfiguration(err) {
		t.Fatalf("%+v", err)
	}
}

func TestCheckTruncation(t *testing.T) {
	t.Parallel()
	g := pole(5, 2, 16)
	if _, bad, err := CheckTruncation(g, 1e-3); err != nil || bad {
		t.Fatalf("%v %+v", bad, err)
	}

	// Only the first order known: the remainder 2/(iω)² at the cutoff is about 5e-3.
	g.Tail.Orders = 1
	g.Tail.Data = g.Tail.Data[:1]
	w, bad, err := CheckTruncation(g, 1e-3)
	if err != nil || !bad {
		t.Fatalf("%v %+v", bad, err)
	}
	if w.Remainder < 4e-3 {
		t.Fatalf("%v", w)
	}
}

func TestTailImages(t *testing.T) {
	t.Parallel()
	// The images solve t'_{k+1} = -t_k.
	beta, h := 3.0, 1e-5
	for _, s := range []mesh.Statistic{mesh.Fermion, mesh.Boson} {
		for k := 1; k < 4; k++ {
			for _, tau := range []float64{0.2, 1.1, 2.9} {
				d := (TailImage(s, beta, tau+h, k+1) - TailImage(s, beta, tau-h, k+1)) / (2 * h)
				if math.Abs(d+TailImage(s, beta, tau, k)) > 1e-8 {
					t.Fatalf("%s %d %v: %v, expected %v", s, k, tau, d, -TailImage(s, beta, tau, k))
				}
			}
		}
	}
}
