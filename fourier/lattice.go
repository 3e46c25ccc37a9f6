// Package fourier transforms Green's functions between momentum and real space,
// and between Matsubara frequency and imaginary time with explicit high frequency tails.
package fourier

import (
	"context"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/fumin/tprf/errs"
	"github.com/fumin/tprf/gf"
	"github.com/fumin/tprf/internal/parallel"
)

// KToR returns G(r) = (1/N) Σ_k e^{ik·r} G(k).
func KToR(ctx context.Context, g *gf.Gf) (*gf.Gf, error) {
	if g.Space != gf.Momentum {
		return nil, errs.Config("space", "%s is not in momentum space", g)
	}
	out, err := latticeTransform(ctx, g, true)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	out.Space = gf.Real
	return out, nil
}

// RToK returns G(k) = Σ_r e^{-ik·r} G(r).
func RToK(ctx context.Context, g *gf.Gf) (*gf.Gf, error) {
	if g.Space != gf.Real {
		return nil, errs.Config("space", "%s is not in real space", g)
	}
	out, err := latticeTransform(ctx, g, false)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	out.Space = gf.Momentum
	return out, nil
}

func latticeTransform(ctx context.Context, g *gf.Gf, toR bool) (*gf.Gf, error) {
	out := g.Copy()
	nx, ts := g.NX(), g.TargetSize()
	err := parallel.For(ctx, g.NT(), func(t int) error {
		slab := out.Data[t*nx*ts : (t+1)*nx*ts]
		transformSlab(slab, g.Lattice.Dims, ts, toR)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if out.Tail != nil {
		tail := out.Tail
		for k := 0; k < tail.Orders; k++ {
			transformSlab(tail.Data[k*nx*ts:(k+1)*nx*ts], g.Lattice.Dims, ts, toR)
		}
	}
	return out, nil
}

// transformSlab transforms in place a slab laid out as [x][e] along every lattice axis.
func transformSlab(slab []complex128, dims [3]int, ts int, toR bool) {
	strides := [3]int{dims[1] * dims[2], dims[2], 1}
	nx := dims[0] * dims[1] * dims[2]
	for d := 0; d < 3; d++ {
		n := dims[d]
		if n == 1 {
			continue
		}
		fft := fourier.NewCmplxFFT(n)
		line := make([]complex128, n)
		res := make([]complex128, n)
		for x0 := 0; x0 < nx; x0++ {
			// Start lines only at points whose coordinate along d is zero.
			if (x0/strides[d])%n != 0 {
				continue
			}
			for e := 0; e < ts; e++ {
				for i := 0; i < n; i++ {
					line[i] = slab[(x0+i*strides[d])*ts+e]
				}
				if toR {
					fft.Sequence(res, line)
					for i := range res {
						res[i] /= complex(float64(n), 0)
					}
				} else {
					fft.Coefficients(res, line)
				}
				for i := 0; i < n; i++ {
					slab[(x0+i*strides[d])*ts+e] = res[i]
				}
			}
		}
	}
}
