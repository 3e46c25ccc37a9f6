package fourier

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/fumin/tprf/errs"
	"github.com/fumin/tprf/gf"
	"github.com/fumin/tprf/internal/parallel"
	"github.com/fumin/tprf/mesh"
)

// FreqToTime returns g(τ) = Σ_k c_k t_k(τ) + (1/β) Σ_n e^{-iω_n τ} [g(iω_n) - Σ_k c_k/(iω_n)^k],
// where t_k are the closed form images of the tail.
// The tail of g is used when attached, otherwise it is fitted, and it is attached to the result.
func FreqToTime(ctx context.Context, g *gf.Gf, tm mesh.ImTime, opts Options) (*gf.Gf, error) {
	if g.Freq == nil {
		return nil, errs.Config("mesh", "%s has no frequency axis", g)
	}
	wm := *g.Freq
	if wm.Beta != tm.Beta || wm.Statistic != tm.Statistic {
		return nil, errs.Config("mesh", "%s and %s", wm, tm)
	}
	if !tm.Valid() {
		return nil, errs.Config("ntau", "%s", tm)
	}

	tail := g.Tail
	if tail == nil {
		var err error
		tail, err = FitTail(g, opts.FitOrder, opts.FitFraction)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	kmax := min(tail.Orders, maxImage)

	out := gf.NewTime(tm, g.Lattice, g.Space, g.Target...)
	out.Tail = tail.Copy()
	nx, ts := g.NX(), g.TargetSize()
	nIntervals := tm.Intervals()
	beta := wm.Beta

	images := make([][]float64, kmax+1)
	for k := 1; k <= kmax; k++ {
		images[k] = make([]float64, tm.Len())
		for j := range images[k] {
			images[k][j] = TailImage(tm.Statistic, beta, tm.Tau(j), k)
		}
	}
	phase := make([]complex128, tm.Len())
	for j := range phase {
		phase[j] = 1
		if tm.Statistic == mesh.Fermion {
			phase[j] = cmplx.Exp(complex(0, -math.Pi*float64(j)/float64(nIntervals)))
		}
	}

	err := parallel.For(ctx, nx, func(x int) error {
		fft := fourier.NewCmplxFFT(nIntervals)
		folded := make([]complex128, nIntervals)
		sum := make([]complex128, nIntervals)
		for e := 0; e < ts; e++ {
			clear(folded)
			for i := 0; i < wm.Len(); i++ {
				rem := g.Block(i, x)[e] - tailSum(tail, kmax, x, e, wm.IW(i))
				folded[mod(wm.Index(i), nIntervals)] += rem
			}
			fft.Coefficients(sum, folded)
			for j := 0; j < tm.Len(); j++ {
				v := phase[j] * sum[j%nIntervals] / complex(beta, 0)
				for k := 1; k <= kmax; k++ {
					v += tail.Coef(k, x)[e] * complex(images[k][j], 0)
				}
				out.Block(j, x)[e] = v
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return out, nil
}

// Moments estimates the first three tail coefficients of a function on the imaginary time mesh from its
// discontinuities at τ = 0 and β: c1 = ζh(β)-h(0), c2 = -(ζh'(β)-h'(0)) and c3 = ζh''(β)-h''(0).
func Moments(h []complex128, tm mesh.ImTime) [3]complex128 {
	n := len(h) - 1
	dt := tm.Step()
	zeta := complex(tm.Statistic.Zeta(), 0)

	d1 := func(f0, f1, f2, f3, f4 complex128) complex128 {
		return (-25*f0 + 48*f1 - 36*f2 + 16*f3 - 3*f4) / complex(12*dt, 0)
	}
	d2 := func(f0, f1, f2, f3, f4, f5 complex128) complex128 {
		return (45*f0 - 154*f1 + 214*f2 - 156*f3 + 61*f4 - 10*f5) / complex(12*dt*dt, 0)
	}

	d1Zero := d1(h[0], h[1], h[2], h[3], h[4])
	d1Beta := -d1(h[n], h[n-1], h[n-2], h[n-3], h[n-4])
	d2Zero := d2(h[0], h[1], h[2], h[3], h[4], h[5])
	d2Beta := d2(h[n], h[n-1], h[n-2], h[n-3], h[n-4], h[n-5])

	return [3]complex128{
		zeta*h[n] - h[0],
		-(zeta*d1Beta - d1Zero),
		zeta*d2Beta - d2Zero,
	}
}

// TimeToFreq returns g(iω_n) = ∫ dτ e^{iω_n τ} g(τ) on the window wm.
// The tail orders that make g(τ) discontinuous are removed in imaginary time and added back analytically,
// the smooth remainder is integrated with the trapezoid rule.
// An attached tail is trusted, otherwise the first three orders are estimated with Moments.
func TimeToFreq(ctx context.Context, g *gf.Gf, wm mesh.Matsubara) (*gf.Gf, error) {
	if g.Time == nil {
		return nil, errs.Config("mesh", "%s has no time axis", g)
	}
	tm := *g.Time
	if wm.Beta != tm.Beta || wm.Statistic != tm.Statistic {
		return nil, errs.Config("mesh", "%s and %s", tm, wm)
	}
	nIntervals := tm.Intervals()
	beta, dt := tm.Beta, tm.Step()
	zeta := complex(tm.Statistic.Zeta(), 0)
	nx, ts := g.NX(), g.TargetSize()

	kmax := 3
	if g.Tail != nil {
		kmax = min(g.Tail.Orders, maxImage)
	}
	images := make([][]float64, kmax+1)
	for k := 1; k <= kmax; k++ {
		images[k] = make([]float64, tm.Len())
		for j := range images[k] {
			images[k][j] = TailImage(tm.Statistic, beta, tm.Tau(j), k)
		}
	}
	phase := make([]complex128, tm.Len())
	for j := range phase {
		phase[j] = 1
		if tm.Statistic == mesh.Fermion {
			phase[j] = cmplx.Exp(complex(0, math.Pi*float64(j)/float64(nIntervals)))
		}
	}

	out := gf.NewFreq(wm, g.Lattice, g.Space, g.Target...)
	if g.Tail != nil {
		out.Tail = g.Tail.Copy()
	}
	err := parallel.For(ctx, nx, func(x int) error {
		fft := fourier.NewCmplxFFT(nIntervals)
		h := make([]complex128, tm.Len())
		b := make([]complex128, nIntervals)
		integral := make([]complex128, nIntervals)
		c := make([]complex128, kmax+1)
		for e := 0; e < ts; e++ {
			for j := range h {
				h[j] = g.Block(j, x)[e]
			}
			if g.Tail != nil {
				for k := 1; k <= kmax; k++ {
					c[k] = g.Tail.Coef(k, x)[e]
				}
			} else {
				m := Moments(h, tm)
				copy(c[1:], m[:])
			}

			for j := range h {
				for k := 1; k <= kmax; k++ {
					h[j] -= c[k] * complex(images[k][j], 0)
				}
			}
			b[0] = (h[0] + zeta*h[nIntervals]) / 2
			for j := 1; j < nIntervals; j++ {
				b[j] = phase[j] * h[j]
			}
			fft.Sequence(integral, b)

			for i := 0; i < wm.Len(); i++ {
				iw := wm.IW(i)
				v := complex(dt, 0) * integral[mod(wm.Index(i), nIntervals)]
				if iw != 0 {
					p := complex(1, 0)
					for k := 1; k <= kmax; k++ {
						p /= iw
						v += c[k] * p
					}
				}
				out.Block(i, x)[e] = v
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("%s", g))
	}
	return out, nil
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
