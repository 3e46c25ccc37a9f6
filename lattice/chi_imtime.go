package lattice

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/fumin/tprf/errs"
	"github.com/fumin/tprf/fourier"
	"github.com/fumin/tprf/gf"
	"github.com/fumin/tprf/internal/parallel"
	"github.com/fumin/tprf/mesh"
)

// Channel selects the two particle propagator of a bubble.
type Channel int

const (
	// ParticleHole is χ0(r,τ)[a,b,c,d] = -G(r,τ)[d,a] G(-r,-τ)[b,c].
	ParticleHole Channel = iota
	// ParticleParticle is χ0(r,τ)[a,b,c,d] = G(r,τ)[c,a] G(r,τ)[d,b].
	ParticleParticle
)

func (c Channel) String() string {
	switch c {
	case ParticleHole:
		return "PH"
	case ParticleParticle:
		return "PP"
	default:
		return fmt.Sprintf("Channel(%d)", int(c))
	}
}

func (c Channel) valid() bool { return c == ParticleHole || c == ParticleParticle }

// Chi0TRFromGRT returns the bubble χ0(r, τ) as a product of G(r, τ) values, on the bosonic time mesh with the points of G.
// G(-r, -τ) is read as -G(-r, β-τ), so no interpolation is needed.
func Chi0TRFromGRT(ctx context.Context, g *gf.Gf, ch Channel) (*gf.Gf, error) {
	if g.Time == nil || g.Time.Statistic != mesh.Fermion {
		return nil, errs.Config("mesh", "%s is not on a fermionic time mesh", g)
	}
	if g.Space != gf.Real || len(g.Target) != 2 {
		return nil, errs.Config("gf", "%s is not a real space matrix", g)
	}
	if !ch.valid() {
		return nil, errs.Config("channel", "%s", ch)
	}
	tm := *g.Time
	tm.Statistic = mesh.Boson
	n, l := g.Norb(), g.Lattice
	chi := gf.NewTime(tm, l, gf.Real, n, n, n, n)
	last := tm.Intervals()

	err := parallel.For(ctx, tm.Len(), func(j int) error {
		for x := 0; x < l.Len(); x++ {
			blk := chi.Block(j, x)
			ga := g.Block(j, x)
			switch ch {
			case ParticleHole:
				gb := g.Block(last-j, l.Neg(x))
				for a := 0; a < n; a++ {
					for b := 0; b < n; b++ {
						for c := 0; c < n; c++ {
							for d := 0; d < n; d++ {
								blk[gf.Idx4(n, a, b, c, d)] = ga[d*n+a] * gb[b*n+c]
							}
						}
					}
				}
			case ParticleParticle:
				for a := 0; a < n; a++ {
					for b := 0; b < n; b++ {
						for c := 0; c < n; c++ {
							for d := 0; d < n; d++ {
								blk[gf.Idx4(n, a, b, c, d)] = ga[c*n+a] * ga[d*n+b]
							}
						}
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return chi, nil
}

// ChiWRFromChiTR transforms a bosonic χ(r, τ) to the nw lowest non negative and negative bosonic frequencies.
func ChiWRFromChiTR(ctx context.Context, chi *gf.Gf, nw int) (*gf.Gf, error) {
	if chi.Time == nil || chi.Time.Statistic != mesh.Boson {
		return nil, errs.Config("mesh", "%s is not on a bosonic time mesh", chi)
	}
	wm, err := mesh.NewMatsubara(chi.Time.Beta, mesh.Boson, nw)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	out, err := fourier.TimeToFreq(ctx, chi, wm)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return out, nil
}

// ChiWKFromChiWR transforms χ(r, iΩ) to momentum space.
func ChiWKFromChiWR(ctx context.Context, chi *gf.Gf) (*gf.Gf, error) {
	out, err := fourier.RToK(ctx, chi)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return out, nil
}

// Chi0WKFromGRT chains the imaginary time pipeline: bubble, τ to iΩ and r to q.
func Chi0WKFromGRT(ctx context.Context, g *gf.Gf, nw int, ch Channel) (*gf.Gf, error) {
	chiT, err := Chi0TRFromGRT(ctx, g, ch)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	chiW, err := ChiWRFromChiTR(ctx, chiT, nw)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	chiK, err := ChiWKFromChiWR(ctx, chiW)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return chiK, nil
}
