package fourier

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/tprf/errs"
	"github.com/fumin/tprf/gf"
	"github.com/fumin/tprf/mesh"
)

// maxImage is the highest tail order with a closed form imaginary time image.
const maxImage = 4

// Options control the tail treatment of frequency to time transforms.
type Options struct {
	// FitOrder is the highest order of the least squares tail fit, used when a Gf carries no tail.
	FitOrder int
	// FitFraction is the fraction of the largest frequencies, on both sides, entering the fit.
	FitFraction float64
}

var DefaultOptions = Options{FitOrder: 6, FitFraction: 0.5}

// TailImage is the imaginary time function whose Matsubara transform is 1/(iω)^k.
// Bosonic images have zero mean, so they carry no weight at zero frequency.
func TailImage(s mesh.Statistic, beta, tau float64, k int) float64 {
	if s == mesh.Fermion {
		switch k {
		case 1:
			return -0.5
		case 2:
			return (2*tau - beta) / 4
		case 3:
			return tau * (beta - tau) / 4
		case 4:
			return tau*tau*tau/12 - beta*tau*tau/8 + beta*beta*beta/48
		}
	} else {
		switch k {
		case 1:
			return tau/beta - 0.5
		case 2:
			return -tau*tau/(2*beta) + tau/2 - beta/12
		case 3:
			return tau*tau*tau/(6*beta) - tau*tau/4 + beta*tau/12
		case 4:
			return -tau*tau*tau*tau/(24*beta) + tau*tau*tau/12 - beta*tau*tau/24 + beta*beta*beta/720
		}
	}
	panic(fmt.Sprintf("no image of order %d", k))
}

// fitWindow returns the frequency points entering the tail fit.
func fitWindow(m mesh.Matsubara, fraction float64) []int {
	if m.Statistic == mesh.Boson && m.NMax == 1 {
		return nil
	}
	cut := (1 - fraction) * m.Max()
	pts := make([]int, 0)
	for i := 0; i < m.Len(); i++ {
		if w := m.Omega(i); math.Abs(w) >= cut && w != 0 {
			pts = append(pts, i)
		}
	}
	return pts
}

// FitTail fits Σ_{k=1..order} c_k/(iω)^k to the largest frequencies of g by linear least squares.
// The order is reduced when the window holds too few points.
func FitTail(g *gf.Gf, order int, fraction float64) (*gf.Tail, error) {
	if g.Freq == nil {
		return nil, errs.Config("mesh", "%s has no frequency axis", g)
	}
	if order < 1 || fraction <= 0 || fraction > 1 {
		return nil, errs.Config("tail", "order %d fraction %v", order, fraction)
	}
	pts := fitWindow(*g.Freq, fraction)
	order = min(order, len(pts))
	nx, ts := g.NX(), g.TargetSize()
	if order == 0 {
		return gf.NewTail(0, nx, ts), nil
	}

	// Scaled basis (ws/(iω))^k in the real embedding of the complex problem.
	ws := g.Freq.Max()
	npts := len(pts)
	a := mat.NewDense(2*npts, 2*order, nil)
	for p, i := range pts {
		iw := g.Freq.IW(i)
		for k := 1; k <= order; k++ {
			phi := cmplx.Pow(complex(ws, 0)/iw, complex(float64(k), 0))
			a.Set(p, k-1, real(phi))
			a.Set(p, order+k-1, -imag(phi))
			a.Set(npts+p, k-1, imag(phi))
			a.Set(npts+p, order+k-1, real(phi))
		}
	}
	b := mat.NewDense(2*npts, nx*ts, nil)
	for p, i := range pts {
		for x := 0; x < nx; x++ {
			blk := g.Block(i, x)
			for e, v := range blk {
				b.Set(p, x*ts+e, real(v))
				b.Set(npts+p, x*ts+e, imag(v))
			}
		}
	}
	var sol mat.Dense
	if err := sol.Solve(a, b); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("%s order %d", g, order))
	}

	tail := gf.NewTail(order, nx, ts)
	for k := 1; k <= order; k++ {
		scale := math.Pow(ws, float64(k))
		for x := 0; x < nx; x++ {
			c := tail.Coef(k, x)
			for e := range c {
				c[e] = complex(sol.At(k-1, x*ts+e), sol.At(order+k-1, x*ts+e)) * complex(scale, 0)
			}
		}
	}
	return tail, nil
}

// CheckTruncation reports a TruncationWarning when the data at the cutoff frequency,
// after removing the tail orders that the time transforms treat exactly, is larger than tol.
func CheckTruncation(g *gf.Gf, tol float64) (errs.TruncationWarning, bool, error) {
	if g.Freq == nil {
		return errs.TruncationWarning{}, false, errs.Config("mesh", "%s has no frequency axis", g)
	}
	tail := g.Tail
	if tail == nil {
		var err error
		tail, err = FitTail(g, DefaultOptions.FitOrder, DefaultOptions.FitFraction)
		if err != nil {
			return errs.TruncationWarning{}, false, errors.Wrap(err, "")
		}
	}
	var worst float64
	for _, i := range []int{0, g.Freq.Len() - 1} {
		iw := g.Freq.IW(i)
		for x := 0; x < g.NX(); x++ {
			for e, v := range g.Block(i, x) {
				worst = max(worst, cmplx.Abs(v-tailSum(tail, maxImage, x, e, iw)))
			}
		}
	}
	w := errs.TruncationWarning{Quantity: g.String(), Remainder: worst, Tol: tol}
	return w, worst > tol, nil
}

// tailSum is Σ_{k<=kmax} c_k/(iω)^k for target element e at lattice point x, and zero at iω = 0.
func tailSum(tail *gf.Tail, kmax, x, e int, iw complex128) complex128 {
	var v complex128
	if iw == 0 {
		return v
	}
	p := complex(1, 0)
	for k := 1; k <= min(kmax, tail.Orders); k++ {
		p /= iw
		v += tail.Coef(k, x)[e] * p
	}
	return v
}
