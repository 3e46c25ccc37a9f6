// Package tprf cross checks the bare bubble pipelines of package lattice against each other,
// and holds the reference scenarios with closed form answers: the square lattice bubble,
// the Hubbard dimer at one GW iteration and the Hubbard atom.
package tprf

import (
	"context"
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/cmplxs"

	"github.com/fumin/tprf/errs"
	"github.com/fumin/tprf/gf"
	"github.com/fumin/tprf/lattice"
	"github.com/fumin/tprf/mesh"
	"github.com/fumin/tprf/tb"
)

// Comparison is the agreement of two susceptibilities at zero bosonic frequency.
// Pass is |a - b| < 1.5·10^{-Decimal} on every element.
type Comparison struct {
	Name         string
	Decimal      int
	MaxDeviation float64
	// Norm is the 2-norm of the reference slice.
	Norm float64
	Pass bool
}

func (c Comparison) String() string {
	return fmt.Sprintf("%s decimal=%d deviation=%.3g norm=%.6g pass=%t", c.Name, c.Decimal, c.MaxDeviation, c.Norm, c.Pass)
}

// CompareW0 compares ref and other on their Ω = 0 slices, which may come from windows of different sizes.
func CompareW0(name string, ref, other *gf.Gf, decimal int) (Comparison, error) {
	a, err := zeroSlice(ref)
	if err != nil {
		return Comparison{}, errors.Wrap(err, "")
	}
	b, err := zeroSlice(other)
	if err != nil {
		return Comparison{}, errors.Wrap(err, "")
	}
	if err := ref.Freq.SameBeta(*other.Freq); err != nil {
		return Comparison{}, errors.Wrap(err, "")
	}
	if ref.Lattice != other.Lattice || ref.Space != other.Space || len(a) != len(b) {
		return Comparison{}, errs.Config("compare", "%s and %s", ref, other)
	}

	return compare(name, a, b, decimal), nil
}

// compare fills a Comparison of got against expected. A NaN or infinite element on either side is an infinite deviation.
func compare(name string, expected, got []complex128, decimal int) Comparison {
	c := Comparison{Name: name, Decimal: decimal, Norm: cmplxs.Norm(expected, 2)}
	c.MaxDeviation = cmplxs.Distance(expected, got, math.Inf(1))
	for i := range expected {
		if !gf.Finite(expected[i]) || !gf.Finite(got[i]) {
			c.MaxDeviation = math.Inf(1)
			break
		}
	}
	c.Pass = c.MaxDeviation < 1.5*math.Pow10(-decimal)
	return c
}

func zeroSlice(g *gf.Gf) ([]complex128, error) {
	if g.Freq == nil || g.Freq.Statistic != mesh.Boson {
		return nil, errs.Config("compare", "%s is not on a bosonic frequency mesh", g)
	}
	i, ok := g.Freq.Pos(0)
	if !ok {
		return nil, errs.Config("compare", "%s has no zero frequency", g)
	}
	nx, ts := g.NX(), g.TargetSize()
	return g.Data[i*nx*ts : (i+1)*nx*ts], nil
}

// SquareLattice is the two orbital square lattice scenario.
type SquareLattice struct {
	// NK is the number of k points along each of the two axes.
	NK   int
	Beta float64
	Mu   float64
	Hloc [][]complex128
	T    [][]complex128

	// NwG is the nmax of the Green's function window.
	NwG int
	NNu int
	Nw  int
	// TailOrder is the order of the tail correction of the Matsubara sum.
	TailOrder int
	// NTau is the number of imaginary time points, zero for the default of the G window.
	NTau int
}

var DefaultSquareLattice = SquareLattice{
	NK:   2,
	Beta: 20,
	Mu:   0,
	Hloc: [][]complex128{{-0.3, -0.5}, {-0.5, 0.4}},
	T:    [][]complex128{{-1, -0.23}, {-0.23, -0.5}},
	NwG:  500,
	NNu:  400,
	Nw:   1,
}

// SquareLatticeResult holds χ0(q, iΩ) from the three pipelines and their comparisons against the analytic one.
type SquareLatticeResult struct {
	Analytic *gf.Gf
	ImTime   *gf.Gf
	ImFreq   *gf.Gf

	Comparisons []Comparison
}

// SquareLatticeChi00 computes the particle hole bubble analytically, in imaginary time and as a Matsubara sum,
// and compares the last two with the first at four and two decimals.
func SquareLatticeChi00(ctx context.Context, p SquareLattice) (*SquareLatticeResult, error) {
	m, err := tb.SquareLattice(p.Hloc, p.T)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	l, err := mesh.Diag(p.NK, p.NK, 1)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	ek, err := m.OnMesh(ctx, l)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	wm, err := mesh.NewMatsubara(p.Beta, mesh.Fermion, p.NwG)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	res := &SquareLatticeResult{}
	if res.Analytic, err = lattice.Chi00WKFromEK(ctx, p.Mu, ek, wm.Boson(p.Nw)); err != nil {
		return nil, errors.Wrap(err, "")
	}

	gwr, err := lattice.G0WR(ctx, p.Mu, ek, wm)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	gtr, err := lattice.GRTFromGRW(ctx, gwr, p.NTau)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if res.ImTime, err = lattice.Chi0WKFromGRT(ctx, gtr, p.Nw, lattice.ParticleHole); err != nil {
		return nil, errors.Wrap(err, "")
	}

	chiR, err := lattice.Chi0WNRFromGRW(ctx, gwr, p.Nw, p.NNu, lattice.ParticleHole)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	chiK, err := lattice.Chi0WNKFromChi0WNR(ctx, chiR)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if res.ImFreq, err = lattice.Chi0SumNu(ctx, chiK, p.TailOrder); err != nil {
		return nil, errors.Wrap(err, "")
	}

	for _, c := range []struct {
		name    string
		chi     *gf.Gf
		decimal int
	}{
		{"imtime", res.ImTime, 4},
		{"imfreq", res.ImFreq, 2},
	} {
		cmp, err := CompareW0(c.name, res.Analytic, c.chi, c.decimal)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		logrus.WithFields(logrus.Fields{"name": cmp.Name, "decimal": cmp.Decimal, "deviation": cmp.MaxDeviation, "pass": cmp.Pass}).Info("chi00")
		res.Comparisons = append(res.Comparisons, cmp)
	}
	return res, nil
}
