// Package gw solves the self consistent GW equations on a lattice:
// the polarization P from the bubble of G, the screened interaction W = (1 - VP)^{-1} V,
// the self energy Σ = -W G in real space and imaginary time, optional static Hartree and Fock terms,
// and the Dyson equation for G.
package gw

import (
	"context"
	"fmt"
	"math/cmplx"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fumin/tprf/errs"
	"github.com/fumin/tprf/fourier"
	"github.com/fumin/tprf/gf"
	"github.com/fumin/tprf/internal/parallel"
	"github.com/fumin/tprf/lattice"
	"github.com/fumin/tprf/mat"
	"github.com/fumin/tprf/mesh"
)

type State int

const (
	Init State = iota
	ComputeP
	ComputeW
	ComputeSigma
	ComputeG
	CheckConvergence
	Converged
	MaxIterReached
)

func (s State) String() string {
	switch s {
	case Init:
		return "Init"
	case ComputeP:
		return "ComputeP"
	case ComputeW:
		return "ComputeW"
	case ComputeSigma:
		return "ComputeSigma"
	case ComputeG:
		return "ComputeG"
	case CheckConvergence:
		return "CheckConvergence"
	case Converged:
		return "Converged"
	case MaxIterReached:
		return "MaxIterReached"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Options struct {
	// GW adds the dynamic self energy -(W - V) G.
	GW bool
	// Hartree adds Σ_H[a,b] = Σ_cd V(q=0)[a,b,c,d] ρ(r=0)[d,c].
	Hartree bool
	// Fock adds Σ_F(r)[a,b] = -Σ_cd V(r)[a,c,d,b] ρ(r)[c,d].
	Fock bool

	MaxIter int
	Tol     float64
	// Mixing is the weight of the new self energy from the second iteration on.
	Mixing float64
	// NTau is the number of imaginary time points, zero for six per Matsubara frequency.
	NTau int
	// TruncationTol bounds the part of G at the frequency cutoff that its tail does not describe.
	TruncationTol float64

	Fourier fourier.Options
}

var DefaultOptions = Options{
	GW:            true,
	MaxIter:       100,
	Tol:           1e-8,
	Mixing:        1,
	TruncationTol: 1e-4,
	Fourier:       fourier.DefaultOptions,
}

func (o Options) validate() error {
	switch {
	case o.MaxIter < 1:
		return errs.Config("maxiter", "%d", o.MaxIter)
	case !(o.Tol > 0):
		return errs.Config("tol", "%v", o.Tol)
	case !(o.Mixing > 0 && o.Mixing <= 1):
		return errs.Config("mixing", "%v not in (0, 1]", o.Mixing)
	case o.NTau != 0 && o.NTau < 7:
		return errs.Config("ntau", "%d", o.NTau)
	}
	return nil
}

// Result is the state of the solver after the last completed iteration.
// P and W are nil when the GW term is off.
type Result struct {
	Status     State
	Iterations int
	Residuals  []float64
	Warnings   []errs.TruncationWarning
	// NonConvergence is set when Status is MaxIterReached.
	NonConvergence *errs.NonConvergence

	Mu float64
	VK *gf.Gf
	VR *gf.Gf

	G0WK    *gf.Gf
	G0WR    *gf.Gf
	GWK     *gf.Gf
	GWR     *gf.Gf
	SigmaWK *gf.Gf
	SigmaWR *gf.Gf
	PWK     *gf.Gf
	PWR     *gf.Gf
	WWK     *gf.Gf
	WWR     *gf.Gf
}

// Solver holds the inputs of a GW calculation: the dispersion H(k), the interaction V(k) and the fermionic frequency window.
// Bosonic quantities live on the bosonic window with the same nmax.
type Solver struct {
	Mu      float64
	EK      *gf.Gf
	VK      *gf.Gf
	Freq    mesh.Matsubara
	Options Options

	Log logrus.FieldLogger
}

func New(mu float64, ek, vk *gf.Gf, wm mesh.Matsubara, opts Options) (*Solver, error) {
	if ek.Freq != nil || ek.Time != nil || ek.Space != gf.Momentum || len(ek.Target) != 2 {
		return nil, errs.Config("dispersion", "%s", ek)
	}
	n := ek.Norb()
	if vk.Freq != nil || vk.Time != nil || vk.Space != gf.Momentum || vk.Lattice != ek.Lattice {
		return nil, errs.Config("interaction", "%s does not match %s", vk, ek)
	}
	if len(vk.Target) != 4 || vk.Norb() != n || vk.TargetSize() != n*n*n*n {
		return nil, errs.Config("interaction", "target %v, expected %d orbitals", vk.Target, n)
	}
	if wm.Statistic != mesh.Fermion {
		return nil, errs.Config("mesh", "%s is not fermionic", wm)
	}
	if err := opts.validate(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	s := &Solver{Mu: mu, EK: ek, VK: vk, Freq: wm, Options: opts, Log: logrus.StandardLogger()}
	return s, nil
}

// iteration holds the quantities of one pass through the loop.
type iteration struct {
	g   *gf.Gf
	gtr *gf.Gf
	pwk *gf.Gf
	wwk *gf.Gf
	// dyn is the frequency dependent part of Σ, static its Hartree and Fock part.
	dyn     *gf.Gf
	static  *gf.Gf
	residue float64
}

// sigma is Σ(k, iω) = dyn + static.
func (it iteration) sigma() *gf.Gf {
	s := it.dyn.Copy()
	s.Tail = nil
	for i := 0; i < s.NT(); i++ {
		for x := 0; x < s.NX(); x++ {
			blk := s.Block(i, x)
			for e, v := range it.static.Block(0, x) {
				blk[e] += v
			}
		}
	}
	return s
}

// Solve runs the loop Init → ComputeP → ComputeW → ComputeSigma → ComputeG → CheckConvergence until Converged or MaxIterReached.
// Reaching the iteration limit is not an error, it is reported in the Result.
func (s *Solver) Solve(ctx context.Context) (*Result, error) {
	opts := s.Options
	log := s.Log.WithFields(logrus.Fields{"mu": s.Mu, "beta": s.Freq.Beta, "nmax": s.Freq.NMax, "lattice": s.EK.Lattice.String()})

	tm := s.Freq.ImTime()
	if opts.NTau != 0 {
		tm.N = opts.NTau
	}
	res := &Result{Mu: s.Mu, VK: s.VK}
	var err error
	if res.VR, err = fourier.KToR(ctx, s.VK); err != nil {
		return nil, errors.Wrap(err, "")
	}

	var cur, prev iteration
	state := Init
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "")
		}
		switch state {
		case Init:
			if res.G0WK, err = lattice.G0WK(ctx, s.Mu, s.EK, s.Freq); err != nil {
				return nil, errors.Wrap(err, "")
			}
			cur.g = res.G0WK
			state = ComputeP

		case ComputeP:
			gwr, err := fourier.KToR(ctx, cur.g)
			if err != nil {
				return nil, errors.Wrap(err, "")
			}
			if cur.gtr, err = fourier.FreqToTime(ctx, gwr, tm, opts.Fourier); err != nil {
				return nil, errors.Wrap(err, "")
			}
			if !opts.GW {
				state = ComputeSigma
				break
			}
			if cur.pwk, err = s.polarization(ctx, cur.gtr); err != nil {
				return nil, errors.Wrap(err, "")
			}
			state = ComputeW

		case ComputeW:
			if cur.wwk, err = Screen(ctx, s.VK, cur.pwk); err != nil {
				return nil, errors.Wrap(err, "")
			}
			if err := nonFinite("W", res.Iterations+1, cur.wwk); err != nil {
				return nil, err
			}
			state = ComputeSigma

		case ComputeSigma:
			if cur.dyn, cur.static, err = s.selfEnergy(ctx, cur.gtr, cur.wwk); err != nil {
				return nil, errors.Wrap(err, "")
			}
			for _, part := range []*gf.Gf{cur.dyn, cur.static} {
				if err := nonFinite("Sigma", res.Iterations+1, part); err != nil {
					return nil, err
				}
			}
			if prev.dyn == nil {
				cur.residue = maxDiff(cur.sigma(), nil)
			} else {
				cur.residue = maxDiff(cur.sigma(), prev.sigma())
				if opts.Mixing != 1 {
					mix(cur.dyn, prev.dyn, opts.Mixing)
					mix(cur.static, prev.static, opts.Mixing)
				}
			}
			state = ComputeG

		case ComputeG:
			if cur.g, err = s.dyson(ctx, cur.dyn, cur.static); err != nil {
				return nil, errors.Wrap(err, "")
			}
			if err := nonFinite("G", res.Iterations+1, cur.g); err != nil {
				return nil, err
			}
			res.Iterations++
			res.Residuals = append(res.Residuals, cur.residue)
			prev = cur
			log.WithFields(logrus.Fields{"iteration": res.Iterations, "residual": cur.residue}).Info("gw iteration")
			state = CheckConvergence

		case CheckConvergence:
			switch {
			case cur.residue < opts.Tol:
				state = Converged
			case res.Iterations >= opts.MaxIter:
				state = MaxIterReached
			default:
				state = ComputeP
			}

		case Converged, MaxIterReached:
			res.Status = state
			if state == MaxIterReached {
				res.NonConvergence = &errs.NonConvergence{Iterations: res.Iterations, Residual: cur.residue, Tol: opts.Tol}
				log.WithFields(logrus.Fields{"residual": cur.residue, "tol": opts.Tol}).Warn(res.NonConvergence.Error())
			}
			if err := s.finish(ctx, res, cur); err != nil {
				return nil, errors.Wrap(err, "")
			}
			return res, nil
		}
	}
}

// polarization returns P(q, iΩ) = -χ0(q, iΩ), the particle hole bubble of G(r, τ) with the sign of W = (1 - VP)^{-1} V.
func (s *Solver) polarization(ctx context.Context, gtr *gf.Gf) (*gf.Gf, error) {
	chi, err := lattice.Chi0WKFromGRT(ctx, gtr, s.Freq.NMax, lattice.ParticleHole)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	for i := range chi.Data {
		chi.Data[i] = -chi.Data[i]
	}
	return chi, nil
}

// Screen returns W(q, iΩ) = [1 - V(q) P(q, iΩ)]^{-1} V(q) with products in the pair space of rows (a, b) and columns (c, d).
func Screen(ctx context.Context, vk, pwk *gf.Gf) (*gf.Gf, error) {
	if pwk.Freq == nil || pwk.Space != gf.Momentum || pwk.Lattice != vk.Lattice || pwk.TargetSize() != vk.TargetSize() {
		return nil, errs.Config("polarization", "%s does not match %s", pwk, vk)
	}
	n := vk.Norb()
	n2 := n * n
	wm := *pwk.Freq
	nx := vk.NX()
	w := pwk.Zeros()

	err := parallel.For(ctx, wm.Len()*nx, func(p int) error {
		i, x := p/nx, p%nx
		v := vk.Block(0, x)
		m := make([]complex128, n2*n2)
		mat.Mul(m, v, pwk.Block(i, x), n2)
		for e := range m {
			m[e] = -m[e]
		}
		for d := 0; d < n2; d++ {
			m[d*n2+d] += 1
		}
		if err := mat.Inv(m, m, n2); err != nil {
			return errs.Singular("W", "q=%v iΩ=%v", vk.Lattice.Coord(x), wm.IW(i))
		}
		mat.Mul(w.Block(i, x), m, v, n2)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return w, nil
}

// selfEnergy returns the dynamic GW part of Σ(k, iω) and its static Hartree and Fock part, each zero when disabled.
func (s *Solver) selfEnergy(ctx context.Context, gtr, wwk *gf.Gf) (*gf.Gf, *gf.Gf, error) {
	n, l := s.EK.Norb(), s.EK.Lattice
	dyn := gf.NewFreq(s.Freq, l, gf.Momentum, n, n)
	static := gf.NewStatic(l, gf.Momentum, n, n)
	var err error
	if s.Options.GW {
		if dyn, err = s.dynamic(ctx, gtr, wwk); err != nil {
			return nil, nil, errors.Wrap(err, "")
		}
	}
	if s.Options.Hartree || s.Options.Fock {
		if static, err = s.static(ctx, gtr); err != nil {
			return nil, nil, errors.Wrap(err, "")
		}
	}
	return dyn, static, nil
}

// dynamic returns Σ(k, iω) from Σ(r, τ)[a,b] = -Σ_cd (W - V)(r, τ)[a,c,d,b] G(r, τ)[c,d].
func (s *Solver) dynamic(ctx context.Context, gtr, wwk *gf.Gf) (*gf.Gf, error) {
	wdyn := wwk.Copy()
	nx := s.VK.NX()
	for i := 0; i < wdyn.NT(); i++ {
		for x := 0; x < nx; x++ {
			blk := wdyn.Block(i, x)
			for e, v := range s.VK.Block(0, x) {
				blk[e] -= v
			}
		}
	}
	wdynR, err := fourier.KToR(ctx, wdyn)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	tm := *gtr.Time
	tm.Statistic = mesh.Boson
	wdynT, err := fourier.FreqToTime(ctx, wdynR, tm, s.Options.Fourier)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	n := s.EK.Norb()
	sigmaT := gf.NewTime(*gtr.Time, s.EK.Lattice, gf.Real, n, n)
	err = parallel.For(ctx, tm.Len(), func(j int) error {
		for x := 0; x < nx; x++ {
			w, g, out := wdynT.Block(j, x), gtr.Block(j, x), sigmaT.Block(j, x)
			for a := 0; a < n; a++ {
				for b := 0; b < n; b++ {
					var v complex128
					for c := 0; c < n; c++ {
						for d := 0; d < n; d++ {
							v += w[gf.Idx4(n, a, c, d, b)] * g[c*n+d]
						}
					}
					out[a*n+b] = -v
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	sigmaW, err := fourier.TimeToFreq(ctx, sigmaT, s.Freq)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	sigmaK, err := fourier.RToK(ctx, sigmaW)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return sigmaK, nil
}

// static returns the Hartree and Fock self energies in momentum space, without a frequency axis.
// The density matrix is ρ(r) = -G(r, β⁻).
func (s *Solver) static(ctx context.Context, gtr *gf.Gf) (*gf.Gf, error) {
	opts := s.Options
	n, l := s.EK.Norb(), s.EK.Lattice
	last := gtr.Time.Len() - 1
	rho := func(x int) []complex128 {
		g := gtr.Block(last, x)
		r := make([]complex128, len(g))
		for e, v := range g {
			r[e] = -v
		}
		return r
	}

	sigmaR := gf.NewStatic(l, gf.Real, n, n)
	if opts.Hartree {
		v0, rho0 := s.VK.Block(0, 0), rho(0)
		blk := sigmaR.Block(0, 0)
		for a := 0; a < n; a++ {
			for b := 0; b < n; b++ {
				for c := 0; c < n; c++ {
					for d := 0; d < n; d++ {
						blk[a*n+b] += v0[gf.Idx4(n, a, b, c, d)] * rho0[d*n+c]
					}
				}
			}
		}
	}
	if opts.Fock {
		vr, err := fourier.KToR(ctx, s.VK)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		for x := 0; x < l.Len(); x++ {
			v, r, blk := vr.Block(0, x), rho(x), sigmaR.Block(0, x)
			for a := 0; a < n; a++ {
				for b := 0; b < n; b++ {
					for c := 0; c < n; c++ {
						for d := 0; d < n; d++ {
							blk[a*n+b] -= v[gf.Idx4(n, a, c, d, b)] * r[c*n+d]
						}
					}
				}
			}
		}
	}
	sigmaK, err := fourier.RToK(ctx, sigmaR)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return sigmaK, nil
}

// dyson solves G = [iω + μ - H(k) - Σ_static(k) - Σ_dyn(k, iω)]^{-1}.
// The tail of Σ_dyn is fitted so that G carries a four order tail.
func (s *Solver) dyson(ctx context.Context, dyn, static *gf.Gf) (*gf.Gf, error) {
	sig := dyn.Copy()
	var err error
	if sig.Tail, err = fourier.FitTail(sig, s.Options.Fourier.FitOrder, s.Options.Fourier.FitFraction); err != nil {
		return nil, errors.Wrap(err, "")
	}
	ek := s.EK.Copy()
	for e, v := range static.Data {
		ek.Data[e] += v
	}
	g, err := lattice.DysonWK(ctx, s.Mu, ek, sig)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return g, nil
}

func (s *Solver) finish(ctx context.Context, res *Result, cur iteration) error {
	var err error
	res.GWK, res.SigmaWK, res.PWK, res.WWK = cur.g, cur.sigma(), cur.pwk, cur.wwk
	for _, p := range []struct {
		k *gf.Gf
		r **gf.Gf
	}{
		{res.G0WK, &res.G0WR},
		{res.GWK, &res.GWR},
		{res.SigmaWK, &res.SigmaWR},
		{res.PWK, &res.PWR},
		{res.WWK, &res.WWR},
	} {
		if p.k == nil {
			continue
		}
		if *p.r, err = fourier.KToR(ctx, p.k); err != nil {
			return errors.Wrap(err, "")
		}
	}

	w, bad, err := fourier.CheckTruncation(res.GWK, s.Options.TruncationTol)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if bad {
		res.Warnings = append(res.Warnings, w)
		s.Log.Warn(w.Error())
	}
	return nil
}

// nonFinite returns a NumericalError at the first NaN or infinite value of g.
func nonFinite(stage string, iteration int, g *gf.Gf) error {
	i, x, e, ok := g.FirstNonFinite()
	if !ok {
		return nil
	}
	k := g.Lattice.Coord(x)
	if g.Freq == nil {
		return errs.NonFinite(stage, iteration, "k=%v element %d", k, e)
	}
	return errs.NonFinite(stage, iteration, "k=%v iω=%v element %d", k, g.Freq.IW(i), e)
}

// maxDiff is max |a - b|, or max |a| when b is nil.
func maxDiff(a, b *gf.Gf) float64 {
	var m float64
	for i, v := range a.Data {
		if b != nil {
			v -= b.Data[i]
		}
		m = max(m, cmplx.Abs(v))
	}
	return m
}

// mix sets a to alpha*a + (1-alpha)*b.
func mix(a, b *gf.Gf, alpha float64) {
	for i := range a.Data {
		a.Data[i] = complex(alpha, 0)*a.Data[i] + complex(1-alpha, 0)*b.Data[i]
	}
}
