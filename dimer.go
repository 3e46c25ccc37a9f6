package tprf

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/fumin/tprf/gf"
	"github.com/fumin/tprf/gw"
	"github.com/fumin/tprf/interaction"
	"github.com/fumin/tprf/mesh"
	"github.com/fumin/tprf/tb"
)

// Dimer is the Hubbard dimer: two sites with hopping T and on-site U, each with a spin up and a spin down orbital.
// It is solved as a periodic chain of two cells, so r = 0 is on site and r = 1 is the other site.
type Dimer struct {
	T    float64
	U    float64
	Beta float64
	Mu   float64
	NMax int
	// SelfInteraction keeps V[a,a,a,a] = U in the interaction tensor.
	SelfInteraction bool
	// V replaces the on-site Hubbard interaction of each site when set.
	V *interaction.Tensor

	Options gw.Options
}

// Interaction is V if set, otherwise the on-site Hubbard interaction.
func (p Dimer) Interaction() (interaction.Tensor, error) {
	if p.V != nil {
		return *p.V, nil
	}
	v, err := interaction.Hubbard(1, p.U, p.SelfInteraction)
	if err != nil {
		return interaction.Tensor{}, errors.Wrap(err, "")
	}
	return v, nil
}

// DefaultDimer is a single GW iteration of the self interacting dimer at half filling.
var DefaultDimer = func() Dimer {
	opts := gw.DefaultOptions
	opts.GW, opts.Hartree, opts.Fock = true, false, false
	opts.MaxIter = 1
	return Dimer{T: 1, U: 1.5, Beta: 20, Mu: 0, NMax: 1024, SelfInteraction: true, Options: opts}
}()

// HubbardDimer builds the dimer and runs the GW solver on it.
func HubbardDimer(ctx context.Context, p Dimer) (*gw.Result, error) {
	m, err := tb.Dimer(p.T, 2)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	l, err := mesh.Diag(2, 1, 1)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	ek, err := m.OnMesh(ctx, l)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	v, err := p.Interaction()
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	wm, err := mesh.NewMatsubara(p.Beta, mesh.Fermion, p.NMax)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	s, err := gw.New(p.Mu, ek, v.OnMesh(l), wm, p.Options)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	res, err := s.Solve(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return res, nil
}

// sign is +1 on site and -1 on the other site.
func sign(r int) complex128 {
	if r == 0 {
		return 1
	}
	return -1
}

// DimerG0 is G0(r, iω)[0,0] of the dimer at half filling.
func DimerG0(t float64, r int, iw complex128) complex128 {
	return sign(r)*0.5/(iw-complex(t, 0)) + 0.5/(iw+complex(t, 0))
}

// DimerP is P(r, iΩ)[0,0,0,0] of the bare dimer.
func DimerP(t float64, r int, iw complex128) complex128 {
	tt := complex(2*t, 0)
	return sign(r) * (0.25/(iw-tt) - 0.25/(iw+tt))
}

// dimerH is the square of the screened excitation energy h² = 4t² + 4Ut.
func dimerH(t, u float64) float64 {
	return math.Sqrt(4*t*t + 4*u*t)
}

// DimerW is W(r, iΩ)[0,0,1,1] of the self interacting dimer.
func DimerW(t, u float64, r int, iw complex128) complex128 {
	h := dimerH(t, u)
	dyn := complex(2*u*u*t, 0) / (iw*iw - complex(h*h, 0))
	if r == 0 {
		return complex(u, 0) + dyn
	}
	return -dyn
}

// DimerSigma is the GW self energy Σ(r, iω)[0,0] of the self interacting dimer after one iteration.
func DimerSigma(t, u float64, r int, iw complex128) complex128 {
	h := dimerH(t, u)
	c := complex(u*u*t/(2*h), 0)
	e := complex(t+h, 0)
	return c * (1/(iw-e) + sign(r)/(iw+e))
}

// DimerG is G(r, iω)[0,0] after one GW iteration of the self interacting dimer, with the four poles of the Dyson equation.
func DimerG(t, u float64, r int, iw complex128) complex128 {
	h := dimerH(t, u)
	a := math.Sqrt((2*t+h)*(2*t+h) + 4*u*u*t/h)
	r1 := complex((h+2*t)/(4*a), 0)
	r2 := -r1
	w1p, w1m := complex((-h+a)/2, 0), complex((-h-a)/2, 0)
	w2p, w2m := complex((h+a)/2, 0), complex((h-a)/2, 0)
	g1 := (0.25+r1)/(iw-w1p) + (0.25-r1)/(iw-w1m)
	g2 := (0.25+r2)/(iw-w2p) + (0.25-r2)/(iw-w2m)
	return sign(r)*g1 + g2
}

// DimerComparisons compares a single iteration GW result of the self interacting dimer with the closed forms,
// element [0,0] of G0, Σ and G, [0,0,0,0] of P and [0,0,1,1] of W, over every frequency and both sites.
func DimerComparisons(p Dimer, res *gw.Result, decimal int) []Comparison {
	t, u := p.T, p.U
	quantities := []struct {
		name     string
		g        *gf.Gf
		e        int
		expected func(r int, iw complex128) complex128
	}{
		{"G0", res.G0WR, 0, func(r int, iw complex128) complex128 { return DimerG0(t, r, iw) }},
		{"P", res.PWR, 0, func(r int, iw complex128) complex128 { return DimerP(t, r, iw) }},
		{"W", res.WWR, gf.Idx4(2, 0, 0, 1, 1), func(r int, iw complex128) complex128 { return DimerW(t, u, r, iw) }},
		{"Sigma", res.SigmaWR, 0, func(r int, iw complex128) complex128 { return DimerSigma(t, u, r, iw) }},
		{"G", res.GWR, 0, func(r int, iw complex128) complex128 { return DimerG(t, u, r, iw) }},
	}

	cmps := make([]Comparison, 0, len(quantities))
	for _, q := range quantities {
		if q.g == nil {
			cmps = append(cmps, Comparison{Name: q.name, Decimal: decimal, MaxDeviation: math.Inf(1)})
			continue
		}
		wm := *q.g.Freq
		got := make([]complex128, 0, 2*wm.Len())
		expected := make([]complex128, 0, 2*wm.Len())
		for i := 0; i < wm.Len(); i++ {
			for r := 0; r < 2; r++ {
				got = append(got, q.g.Block(i, r)[q.e])
				expected = append(expected, q.expected(r, wm.IW(i)))
			}
		}
		cmps = append(cmps, compare(q.name, expected, got, decimal))
	}
	return cmps
}

// HubbardAtomG is the Green's function 1/(iω - U²/(4iω)) of a half filled Hubbard atom, one spin orbital on one site,
// with its exact tail 1/(iω) + (U²/4)/(iω)³.
func HubbardAtomG(nmax int, beta, u float64) (*gf.Gf, error) {
	wm, err := mesh.NewMatsubara(beta, mesh.Fermion, nmax)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	l, err := mesh.Diag(1, 1, 1)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	g := gf.NewFreq(wm, l, gf.Real, 1, 1)
	for i := 0; i < wm.Len(); i++ {
		iw := wm.IW(i)
		g.Block(i, 0)[0] = 1 / (iw - complex(u*u/4, 0)/iw)
	}
	g.Tail = gf.NewTail(4, 1, 1)
	g.Tail.Coef(1, 0)[0] = 1
	g.Tail.Coef(3, 0)[0] = complex(u*u/4, 0)
	return g, nil
}
