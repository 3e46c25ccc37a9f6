package lattice

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/fumin/tprf/errs"
	"github.com/fumin/tprf/fourier"
	"github.com/fumin/tprf/gf"
	"github.com/fumin/tprf/internal/parallel"
	"github.com/fumin/tprf/mesh"
)

// Chi0WN is the generalized bubble χ0(iΩ, iν) on a bosonic window and an inner fermionic window.
// Nu[i] holds the dependence on iν at the i-th bosonic frequency.
// Its Tail is the expansion of the summand in 1/(iν), which Chi0SumNu uses for the frequencies outside the window.
type Chi0WN struct {
	Bose    mesh.Matsubara
	Channel Channel
	Nu      []*gf.Gf
}

func (c *Chi0WN) Lattice() mesh.Lattice { return c.Nu[0].Lattice }
func (c *Chi0WN) Space() gf.Space       { return c.Nu[0].Space }
func (c *Chi0WN) Norb() int             { return c.Nu[0].Norb() }

// Chi0WNRFromGRW returns the generalized bubble in real space on nw bosonic and nnu fermionic frequencies,
//
//	particle hole:       χ0(iΩ, iν, r)[a,b,c,d] = -β G(r, iν)[d,a] G(-r, iν+iΩ)[b,c]
//	particle particle:   χ0(iΩ, iν, r)[a,b,c,d] =  β G(r, iν)[c,a] G(r, iΩ-iν)[d,b]
//
// The G window must hold every ν+Ω, that is nnu + nw - 1 may not exceed its nmax.
// The tail of G, fitted when not attached, gives the asymptotic expansion of the summand.
func Chi0WNRFromGRW(ctx context.Context, g *gf.Gf, nw, nnu int, ch Channel) (*Chi0WN, error) {
	if g.Freq == nil || g.Freq.Statistic != mesh.Fermion {
		return nil, errs.Config("mesh", "%s is not on a fermionic frequency mesh", g)
	}
	if g.Space != gf.Real || len(g.Target) != 2 {
		return nil, errs.Config("gf", "%s is not a real space matrix", g)
	}
	if !ch.valid() {
		return nil, errs.Config("channel", "%s", ch)
	}
	if nw < 1 || nnu < 1 {
		return nil, errs.Config("nw", "nw %d nnu %d", nw, nnu)
	}
	if nnu+nw-1 > g.Freq.NMax {
		return nil, errs.Config("nnu", "nnu %d + nw %d - 1 exceeds the G window %d", nnu, nw, g.Freq.NMax)
	}
	tail := g.Tail
	if tail == nil {
		var err error
		tail, err = fourier.FitTail(g, fourier.DefaultOptions.FitOrder, fourier.DefaultOptions.FitFraction)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
	}

	wm := *g.Freq
	beta := wm.Beta
	bose := wm.Boson(nw)
	nu := mesh.Matsubara{Beta: beta, Statistic: mesh.Fermion, NMax: nnu}
	n, l := g.Norb(), g.Lattice
	nx := l.Len()

	chi := &Chi0WN{Bose: bose, Channel: ch, Nu: make([]*gf.Gf, bose.Len())}
	for i := range chi.Nu {
		chi.Nu[i] = gf.NewFreq(nu, l, gf.Real, n, n, n, n)
		chi.Nu[i].Tail = gf.NewTail(4, nx, n*n*n*n)
	}
	scale := complex(-beta, 0)
	if ch == ParticleParticle {
		scale = complex(beta, 0)
	}

	err := parallel.For(ctx, bose.Len()*nx, func(p int) error {
		i, x := p/nx, p%nx
		m := bose.Index(i)
		out := chi.Nu[i]
		xb := l.Neg(x)
		if ch == ParticleParticle {
			xb = x
		}
		for j := 0; j < nu.Len(); j++ {
			nn := nu.Index(j)
			// Fermionic index of the second propagator.
			nb := nn + m
			if ch == ParticleParticle {
				nb = m - nn - 1
			}
			ja, _ := wm.Pos(nn)
			jb, _ := wm.Pos(nb)
			product(out.Block(j, x), g.Block(ja, x), g.Block(jb, xb), scale, n, ch)
		}

		addSummandTail(out.Tail, x, tail, x, xb, bose.IW(i), scale, n, ch)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return chi, nil
}

// product writes scale * ga[d,a] gb[b,c] (particle hole) or scale * ga[c,a] gb[d,b] (particle particle) into dst[a,b,c,d].
func product(dst, ga, gb []complex128, scale complex128, n int, ch Channel) {
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			for c := 0; c < n; c++ {
				for d := 0; d < n; d++ {
					var v complex128
					if ch == ParticleHole {
						v = ga[d*n+a] * gb[b*n+c]
					} else {
						v = ga[c*n+a] * gb[d*n+b]
					}
					dst[gf.Idx4(n, a, b, c, d)] = scale * v
				}
			}
		}
	}
}

// addSummandTail adds to out at x the expansion in 1/(iν) of the product of two propagators,
// whose tails are those of ta at xa and xb, up to fourth order.
func addSummandTail(out *gf.Tail, x int, ta *gf.Tail, xa, xb int, iw, scale complex128, n int, ch Channel) {
	a := make([][]complex128, 4)
	b := make([][]complex128, 4)
	for k := 1; k <= 3; k++ {
		a[k], b[k] = make([]complex128, n*n), make([]complex128, n*n)
		if k <= ta.Orders {
			copy(a[k], ta.Coef(k, xa))
			copy(b[k], ta.Coef(k, xb))
		}
	}
	sb := shiftedTail(b, iw, ch)
	acc := make([]complex128, n*n*n*n)
	for k := 2; k <= 4; k++ {
		c := out.Coef(k, x)
		for ka := max(1, k-3); ka <= min(3, k-1); ka++ {
			product(acc, a[ka], sb[k-ka], scale, n, ch)
			for e, v := range acc {
				c[e] += v
			}
		}
	}
}

// shiftedTail re-expands Σ_k b_k/(iν+iΩ)^k (particle hole) or Σ_k b_k/(iΩ-iν)^k (particle particle)
// in powers of 1/(iν), to third order.
func shiftedTail(b [][]complex128, iw complex128, ch Channel) [][]complex128 {
	s := make([][]complex128, 4)
	for k := 1; k <= 3; k++ {
		s[k] = make([]complex128, len(b[k]))
	}
	sign := complex(1, 0)
	if ch == ParticleParticle {
		sign = -1
	}
	for e := range b[1] {
		b1, b2, b3 := b[1][e], b[2][e], b[3][e]
		s[1][e] = sign * b1
		s[2][e] = b2 - b1*iw
		s[3][e] = sign * (b3 - 2*b2*iw + b1*iw*iw)
	}
	return s
}

// Chi0WNKFromChi0WNR transforms the generalized bubble to momentum space.
func Chi0WNKFromChi0WNR(ctx context.Context, chi *Chi0WN) (*Chi0WN, error) {
	if chi.Space() != gf.Real {
		return nil, errs.Config("space", "generalized bubble is not in real space")
	}
	out := &Chi0WN{Bose: chi.Bose, Channel: chi.Channel, Nu: make([]*gf.Gf, len(chi.Nu))}
	for i, c := range chi.Nu {
		k, err := fourier.RToK(ctx, c)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		out.Nu[i] = k
	}
	return out, nil
}

// Chi0SumNu returns χ0(iΩ) = (1/β²) Σ_ν χ0(iΩ, iν), with the frequencies outside the window added back
// from the tail of the summand up to tailOrder, which is 0, 2 or 4.
// Odd orders cancel on the symmetric window, and over all fermionic frequencies
// Σ 1/(iν)² = -β²/4 and Σ 1/(iν)⁴ = β⁴/48.
func Chi0SumNu(ctx context.Context, chi *Chi0WN, tailOrder int) (*gf.Gf, error) {
	if tailOrder != 0 && tailOrder != 2 && tailOrder != 4 {
		return nil, errs.Config("tail_order", "%d not in {0, 2, 4}", tailOrder)
	}
	for _, c := range chi.Nu {
		if tailOrder > 0 && (c.Tail == nil || c.Tail.Orders < tailOrder) {
			return nil, errs.Config("tail_order", "%d but %s has no such tail", tailOrder, c)
		}
	}
	nu := *chi.Nu[0].Freq
	n, l := chi.Norb(), chi.Lattice()
	rest := outsideSums(nu)

	out := gf.NewFreq(chi.Bose, l, chi.Space(), n, n, n, n)
	err := parallel.For(ctx, chi.Bose.Len(), func(i int) error {
		for x := 0; x < l.Len(); x++ {
			sumNu(out.Block(i, x), chi.Nu[i], x, rest, tailOrder)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return out, nil
}

// outsideSums returns Σ 1/(iν)² and Σ 1/(iν)⁴ over the fermionic frequencies outside the window nu.
func outsideSums(nu mesh.Matsubara) [2]complex128 {
	beta := nu.Beta
	var s2, s4 complex128
	for j := 0; j < nu.Len(); j++ {
		p := 1 / (nu.IW(j) * nu.IW(j))
		s2 += p
		s4 += p * p
	}
	return [2]complex128{
		complex(-beta*beta/4, 0) - s2,
		complex(math.Pow(beta, 4)/48, 0) - s4,
	}
}

// sumNu writes (1/β²) Σ_ν c(iν) at lattice point x into dst, with the tail outside the window.
func sumNu(dst []complex128, c *gf.Gf, x int, rest [2]complex128, tailOrder int) {
	beta := c.Freq.Beta
	clear(dst)
	for j := 0; j < c.Freq.Len(); j++ {
		for e, v := range c.Block(j, x) {
			dst[e] += v
		}
	}
	if tailOrder >= 2 {
		for e, v := range c.Tail.Coef(2, x) {
			dst[e] += v * rest[0]
		}
	}
	if tailOrder >= 4 {
		for e, v := range c.Tail.Coef(4, x) {
			dst[e] += v * rest[1]
		}
	}
	for e := range dst {
		dst[e] /= complex(beta*beta, 0)
	}
}

// Chi0SumNuQ returns the local bubble (1/N) Σ_q χ0(q, iΩ) on a single point lattice.
func Chi0SumNuQ(ctx context.Context, chi *Chi0WN, tailOrder int) (*gf.Gf, error) {
	if chi.Space() != gf.Momentum {
		return nil, errs.Config("space", "generalized bubble is not in momentum space")
	}
	sum, err := Chi0SumNu(ctx, chi, tailOrder)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	single, err := mesh.Diag(1, 1, 1)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	n := chi.Norb()
	out := gf.NewFreq(chi.Bose, single, gf.Real, n, n, n, n)
	nx := sum.NX()
	for i := 0; i < chi.Bose.Len(); i++ {
		blk := out.Block(i, 0)
		for x := 0; x < nx; x++ {
			for e, v := range sum.Block(i, x) {
				blk[e] += v / complex(float64(nx), 0)
			}
		}
	}
	return out, nil
}

// Chi0WKFromGWK evaluates the particle hole bubble by the direct momentum convolution
//
//	χ0(q, iΩ)[a,b,c,d] = -(1/(Nβ)) Σ_k Σ_ν G(k, iν)[d,a] G(k-q, iν+iΩ)[b,c]
//
// with the same tail correction as Chi0SumNu. It costs N² per frequency and serves as a reference on small meshes.
func Chi0WKFromGWK(ctx context.Context, g *gf.Gf, nw, nnu, tailOrder int) (*gf.Gf, error) {
	if g.Freq == nil || g.Freq.Statistic != mesh.Fermion || g.Space != gf.Momentum || len(g.Target) != 2 {
		return nil, errs.Config("gf", "%s is not a fermionic momentum space matrix", g)
	}
	if nw < 1 || nnu < 1 || nnu+nw-1 > g.Freq.NMax {
		return nil, errs.Config("nnu", "nnu %d + nw %d - 1 exceeds the G window %d", nnu, nw, g.Freq.NMax)
	}
	if tailOrder != 0 && tailOrder != 2 && tailOrder != 4 {
		return nil, errs.Config("tail_order", "%d not in {0, 2, 4}", tailOrder)
	}
	tail := g.Tail
	if tail == nil {
		var err error
		tail, err = fourier.FitTail(g, fourier.DefaultOptions.FitOrder, fourier.DefaultOptions.FitFraction)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
	}

	wm := *g.Freq
	beta := wm.Beta
	bose := wm.Boson(nw)
	nu := mesh.Matsubara{Beta: beta, Statistic: mesh.Fermion, NMax: nnu}
	n, l := g.Norb(), g.Lattice
	nx := l.Len()

	// The k sum of the generalized bubble at each (Ω, q) is kept on a single point lattice.
	single, err := mesh.Diag(1, 1, 1)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	rest := outsideSums(nu)
	out := gf.NewFreq(bose, l, gf.Momentum, n, n, n, n)
	err = parallel.For(ctx, bose.Len()*nx, func(p int) error {
		i, q := p/nx, p%nx
		m := bose.Index(i)
		nuGf := gf.NewFreq(nu, single, gf.Momentum, n, n, n, n)
		nuGf.Tail = gf.NewTail(4, 1, n*n*n*n)
		acc := make([]complex128, n*n*n*n)
		scale := complex(-beta/float64(nx), 0)
		iw := bose.IW(i)
		for k := 0; k < nx; k++ {
			kq := l.Sub(k, q)
			for j := 0; j < nu.Len(); j++ {
				nn := nu.Index(j)
				ja, _ := wm.Pos(nn)
				jb, _ := wm.Pos(nn + m)
				product(acc, g.Block(ja, k), g.Block(jb, kq), scale, n, ParticleHole)
				blk := nuGf.Block(j, 0)
				for e, v := range acc {
					blk[e] += v
				}
			}

			addSummandTail(nuGf.Tail, 0, tail, k, kq, iw, scale, n, ParticleHole)
		}

		sumNu(out.Block(i, q), nuGf, 0, rest, tailOrder)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return out, nil
}
