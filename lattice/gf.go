// Package lattice builds lattice Green's functions from a dispersion and evaluates the bare bubble χ0
// in three independent ways: analytically from the band structure, as a product in imaginary time,
// and as a Matsubara frequency sum with an asymptotic tail correction.
package lattice

import (
	"context"

	"github.com/pkg/errors"

	"github.com/fumin/tprf/errs"
	"github.com/fumin/tprf/fourier"
	"github.com/fumin/tprf/gf"
	"github.com/fumin/tprf/internal/parallel"
	"github.com/fumin/tprf/mat"
	"github.com/fumin/tprf/mesh"
)

// G0WK returns G0(k, iω) = [iω + μ - H(k)]^{-1} with its exact tail c_k = (H(k) - μ)^{k-1}.
func G0WK(ctx context.Context, mu float64, ek *gf.Gf, wm mesh.Matsubara) (*gf.Gf, error) {
	if err := checkDispersion(ek); err != nil {
		return nil, err
	}
	if wm.Statistic != mesh.Fermion {
		return nil, errs.Config("mesh", "%s is not fermionic", wm)
	}
	n := ek.Norb()
	g := gf.NewFreq(wm, ek.Lattice, gf.Momentum, n, n)
	g.Tail = freeTail(mu, ek)

	err := parallel.For(ctx, ek.NX(), func(x int) error {
		h := ek.Block(0, x)
		for i := 0; i < wm.Len(); i++ {
			blk := g.Block(i, x)
			for e, v := range h {
				blk[e] = -v
			}
			for a := 0; a < n; a++ {
				blk[a*n+a] += wm.IW(i) + complex(mu, 0)
			}
			if err := mat.Inv(blk, blk, n); err != nil {
				return errs.Singular("G0", "k=%v iω=%v", ek.Lattice.Coord(x), wm.IW(i))
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return g, nil
}

// DysonWK returns G(k, iω) = [iω + μ - H(k) - Σ(k, iω)]^{-1}.
// When Σ carries a tail of at least two orders, G gets the corresponding four order tail.
func DysonWK(ctx context.Context, mu float64, ek, sigma *gf.Gf) (*gf.Gf, error) {
	if err := checkDispersion(ek); err != nil {
		return nil, err
	}
	if sigma.Freq == nil || sigma.Space != gf.Momentum || sigma.Lattice != ek.Lattice {
		return nil, errs.Config("sigma", "%s does not match %s", sigma, ek)
	}
	n := ek.Norb()
	if len(sigma.Target) != 2 || sigma.Norb() != n {
		return nil, errs.Config("sigma", "target %v, expected [%d %d]", sigma.Target, n, n)
	}
	wm := *sigma.Freq
	g := gf.NewFreq(wm, ek.Lattice, gf.Momentum, n, n)
	if sigma.Tail != nil && sigma.Tail.Orders >= 2 {
		g.Tail = dressedTail(mu, ek, sigma.Tail)
	}

	err := parallel.For(ctx, ek.NX(), func(x int) error {
		h := ek.Block(0, x)
		for i := 0; i < wm.Len(); i++ {
			blk := g.Block(i, x)
			s := sigma.Block(i, x)
			for e, v := range h {
				blk[e] = -v - s[e]
			}
			for a := 0; a < n; a++ {
				blk[a*n+a] += wm.IW(i) + complex(mu, 0)
			}
			if err := mat.Inv(blk, blk, n); err != nil {
				return errs.Singular("Dyson", "k=%v iω=%v", ek.Lattice.Coord(x), wm.IW(i))
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return g, nil
}

// G0WR is G0WK transformed to real space.
func G0WR(ctx context.Context, mu float64, ek *gf.Gf, wm mesh.Matsubara) (*gf.Gf, error) {
	g, err := G0WK(ctx, mu, ek, wm)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	gr, err := fourier.KToR(ctx, g)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return gr, nil
}

// GRTFromGRW transforms G(r, iω) to imaginary time on ntau points, the default mesh of the frequency window when ntau is zero.
func GRTFromGRW(ctx context.Context, g *gf.Gf, ntau int) (*gf.Gf, error) {
	if g.Freq == nil || g.Freq.Statistic != mesh.Fermion {
		return nil, errs.Config("mesh", "%s is not on a fermionic frequency mesh", g)
	}
	tm := g.Freq.ImTime()
	if ntau != 0 {
		var err error
		tm, err = mesh.NewImTime(g.Freq.Beta, mesh.Fermion, ntau)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	gt, err := fourier.FreqToTime(ctx, g, tm, fourier.DefaultOptions)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return gt, nil
}

func checkDispersion(ek *gf.Gf) error {
	switch {
	case ek.Freq != nil || ek.Time != nil:
		return errs.Config("dispersion", "%s is not static", ek)
	case ek.Space != gf.Momentum:
		return errs.Config("dispersion", "%s is not in momentum space", ek)
	case len(ek.Target) != 2 || ek.Target[0] != ek.Target[1]:
		return errs.Config("dispersion", "target %v is not square", ek.Target)
	}
	return nil
}

// freeTail returns c_k = ξ^{k-1} with ξ = H - μ, for k = 1..4.
func freeTail(mu float64, ek *gf.Gf) *gf.Tail {
	n := ek.Norb()
	tail := gf.NewTail(4, ek.NX(), n*n)
	for x := 0; x < ek.NX(); x++ {
		xi := shifted(ek.Block(0, x), mu, n)
		c1 := tail.Coef(1, x)
		for a := 0; a < n; a++ {
			c1[a*n+a] = 1
		}
		copy(tail.Coef(2, x), xi)
		mat.Mul(tail.Coef(3, x), xi, xi, n)
		mat.Mul(tail.Coef(4, x), tail.Coef(3, x), xi, n)
	}
	return tail
}

// dressedTail expands [iω - ξ - s1/(iω) - s2/(iω)²]^{-1} to fourth order:
// c1 = 1, c2 = ξ, c3 = ξ² + s1, c4 = ξ³ + ξs1 + s1ξ + s2.
func dressedTail(mu float64, ek *gf.Gf, sigma *gf.Tail) *gf.Tail {
	n := ek.Norb()
	tail := freeTail(mu, ek)
	tmp := make([]complex128, n*n)
	for x := 0; x < ek.NX(); x++ {
		xi := shifted(ek.Block(0, x), mu, n)
		s1, s2 := sigma.Coef(1, x), sigma.Coef(2, x)
		c3, c4 := tail.Coef(3, x), tail.Coef(4, x)
		for e := range c3 {
			c3[e] += s1[e]
			c4[e] += s2[e]
		}
		mat.Mul(tmp, xi, s1, n)
		for e := range c4 {
			c4[e] += tmp[e]
		}
		mat.Mul(tmp, s1, xi, n)
		for e := range c4 {
			c4[e] += tmp[e]
		}
	}
	return tail
}

func shifted(h []complex128, mu float64, n int) []complex128 {
	xi := make([]complex128, len(h))
	copy(xi, h)
	for a := 0; a < n; a++ {
		xi[a*n+a] -= complex(mu, 0)
	}
	return xi
}
