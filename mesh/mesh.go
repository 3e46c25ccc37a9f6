// Package mesh defines the Matsubara frequency, imaginary time and lattice meshes.
package mesh

import (
	"fmt"
	"math"

	"github.com/fumin/tprf/errs"
)

type Statistic int

const (
	Fermion Statistic = iota
	Boson
)

func (s Statistic) String() string {
	switch s {
	case Fermion:
		return "Fermion"
	case Boson:
		return "Boson"
	default:
		return fmt.Sprintf("Statistic(%d)", int(s))
	}
}

// Zeta is the sign picked up when shifting imaginary time by beta.
func (s Statistic) Zeta() float64 {
	if s == Fermion {
		return -1
	}
	return 1
}

// Matsubara is a symmetric window of Matsubara frequencies.
// Fermionic points are (2n+1)π/β for n in [-NMax, NMax-1].
// Bosonic points are 2nπ/β for n in [-(NMax-1), NMax-1], so NMax = 1 holds only zero.
type Matsubara struct {
	Beta      float64
	Statistic Statistic
	NMax      int
}

func NewMatsubara(beta float64, s Statistic, nmax int) (Matsubara, error) {
	if !(beta > 0) || math.IsInf(beta, 0) {
		return Matsubara{}, errs.Config("beta", "%v must be positive", beta)
	}
	if nmax < 1 {
		return Matsubara{}, errs.Config("nmax", "%d must be at least 1", nmax)
	}
	return Matsubara{Beta: beta, Statistic: s, NMax: nmax}, nil
}

func (m Matsubara) Len() int {
	if m.Statistic == Fermion {
		return 2 * m.NMax
	}
	return 2*m.NMax - 1
}

// First is the Matsubara index of the first point.
func (m Matsubara) First() int {
	if m.Statistic == Fermion {
		return -m.NMax
	}
	return -(m.NMax - 1)
}

// Index returns the Matsubara index n of point i.
func (m Matsubara) Index(i int) int { return m.First() + i }

// Pos returns the point holding Matsubara index n.
func (m Matsubara) Pos(n int) (int, bool) {
	i := n - m.First()
	if i < 0 || i >= m.Len() {
		return -1, false
	}
	return i, true
}

func (m Matsubara) Omega(i int) float64 {
	n := float64(m.Index(i))
	if m.Statistic == Fermion {
		return (2*n + 1) * math.Pi / m.Beta
	}
	return 2 * n * math.Pi / m.Beta
}

func (m Matsubara) IW(i int) complex128 { return complex(0, m.Omega(i)) }

// Max is the largest frequency of the window.
func (m Matsubara) Max() float64 { return m.Omega(m.Len() - 1) }

// SameBeta returns a ConfigurationError when m and o cannot be combined.
func (m Matsubara) SameBeta(o Matsubara) error {
	if m.Beta != o.Beta {
		return errs.Config("beta", "meshes with beta %v and %v", m.Beta, o.Beta)
	}
	return nil
}

// Boson returns the bosonic window with the same beta and nmax.
func (m Matsubara) Boson(nmax int) Matsubara {
	return Matsubara{Beta: m.Beta, Statistic: Boson, NMax: nmax}
}

// ImTime returns the default time mesh resolving m, with six points per frequency.
func (m Matsubara) ImTime() ImTime {
	return ImTime{Beta: m.Beta, Statistic: m.Statistic, N: 6*m.NMax + 1}
}

func (m Matsubara) String() string {
	return fmt.Sprintf("imfreq(beta=%g, %s, nmax=%d)", m.Beta, m.Statistic, m.NMax)
}

// ImTime is an equidistant mesh τ_j = jβ/(N-1) holding both 0⁺ and β⁻.
type ImTime struct {
	Beta      float64
	Statistic Statistic
	N         int
}

// minTau is the smallest mesh for which the boundary derivative stencils are defined.
const minTau = 7

func NewImTime(beta float64, s Statistic, n int) (ImTime, error) {
	if !(beta > 0) || math.IsInf(beta, 0) {
		return ImTime{}, errs.Config("beta", "%v must be positive", beta)
	}
	if n < minTau {
		return ImTime{}, errs.Config("ntau", "%d below %d", n, minTau)
	}
	return ImTime{Beta: beta, Statistic: s, N: n}, nil
}

func (m ImTime) Len() int          { return m.N }
func (m ImTime) Step() float64     { return m.Beta / float64(m.N-1) }
func (m ImTime) Tau(j int) float64 { return float64(j) * m.Beta / float64(m.N-1) }
func (m ImTime) Intervals() int    { return m.N - 1 }
func (m ImTime) Valid() bool       { return m.N >= minTau && m.Beta > 0 }

func (m ImTime) String() string {
	return fmt.Sprintf("imtime(beta=%g, %s, ntau=%d)", m.Beta, m.Statistic, m.N)
}
