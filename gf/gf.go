// Package gf holds Green's functions and susceptibilities on a product of an optional frequency or time mesh
// with a lattice mesh, and with a matrix (rank 2) or pair (rank 4) target.
//
// Data is row major in (time or frequency, lattice point, target indices).
// A rank 4 target [a, b, c, d] doubles as the n²×n² pair space matrix with rows (a, b) and columns (c, d).
// Functions in this module never modify their Gf arguments, they return new values.
package gf

import (
	"fmt"
	"math"
	"math/cmplx"
	"slices"

	"github.com/fumin/tprf/errs"
	"github.com/fumin/tprf/mesh"
)

type Space int

const (
	Momentum Space = iota
	Real
)

func (s Space) String() string {
	if s == Momentum {
		return "k"
	}
	return "r"
}

type Gf struct {
	Freq    *mesh.Matsubara
	Time    *mesh.ImTime
	Lattice mesh.Lattice
	Space   Space
	Target  []int
	Data    []complex128

	// Tail holds the high frequency moments when they are known exactly.
	Tail *Tail
}

func NewFreq(m mesh.Matsubara, l mesh.Lattice, s Space, target ...int) *Gf {
	g := &Gf{Freq: &m, Lattice: l, Space: s, Target: slices.Clone(target)}
	g.Data = make([]complex128, m.Len()*l.Len()*g.TargetSize())
	return g
}

func NewTime(m mesh.ImTime, l mesh.Lattice, s Space, target ...int) *Gf {
	g := &Gf{Time: &m, Lattice: l, Space: s, Target: slices.Clone(target)}
	g.Data = make([]complex128, m.Len()*l.Len()*g.TargetSize())
	return g
}

// NewStatic returns a Gf without a frequency or time axis, such as H(k) or V(q).
func NewStatic(l mesh.Lattice, s Space, target ...int) *Gf {
	g := &Gf{Lattice: l, Space: s, Target: slices.Clone(target)}
	g.Data = make([]complex128, l.Len()*g.TargetSize())
	return g
}

// NT is the number of frequency or time points, one for static functions.
func (g *Gf) NT() int {
	switch {
	case g.Freq != nil:
		return g.Freq.Len()
	case g.Time != nil:
		return g.Time.Len()
	default:
		return 1
	}
}

func (g *Gf) NX() int   { return g.Lattice.Len() }
func (g *Gf) Norb() int { return g.Target[0] }

func (g *Gf) TargetSize() int {
	s := 1
	for _, n := range g.Target {
		s *= n
	}
	return s
}

// Block is the target slice at time or frequency t and lattice point x. It aliases g.Data.
func (g *Gf) Block(t, x int) []complex128 {
	ts := g.TargetSize()
	start := (t*g.NX() + x) * ts
	return g.Data[start : start+ts : start+ts]
}

func (g *Gf) Beta() float64 {
	switch {
	case g.Freq != nil:
		return g.Freq.Beta
	case g.Time != nil:
		return g.Time.Beta
	default:
		return 0
	}
}

func (g *Gf) Statistic() mesh.Statistic {
	if g.Time != nil {
		return g.Time.Statistic
	}
	return g.Freq.Statistic
}

// Copy returns a deep copy.
func (g *Gf) Copy() *Gf {
	c := *g
	if g.Freq != nil {
		f := *g.Freq
		c.Freq = &f
	}
	if g.Time != nil {
		tm := *g.Time
		c.Time = &tm
	}
	c.Target = slices.Clone(g.Target)
	c.Data = slices.Clone(g.Data)
	if g.Tail != nil {
		c.Tail = g.Tail.Copy()
	}
	return &c
}

// Zeros returns a Gf on the same meshes with zero data and no tail.
func (g *Gf) Zeros() *Gf {
	c := g.Copy()
	clear(c.Data)
	c.Tail = nil
	return c
}

// SameMesh returns a ConfigurationError if the meshes or targets of g and o differ.
func (g *Gf) SameMesh(o *Gf) error {
	switch {
	case (g.Freq == nil) != (o.Freq == nil) || (g.Time == nil) != (o.Time == nil):
		return errs.Config("mesh", "%s and %s", g, o)
	case g.Freq != nil && *g.Freq != *o.Freq:
		return errs.Config("mesh", "%s and %s", g.Freq, o.Freq)
	case g.Time != nil && *g.Time != *o.Time:
		return errs.Config("mesh", "%s and %s", g.Time, o.Time)
	case g.Lattice != o.Lattice || g.Space != o.Space:
		return errs.Config("lattice", "%s %s and %s %s", g.Lattice, g.Space, o.Lattice, o.Space)
	case !slices.Equal(g.Target, o.Target):
		return errs.Config("target", "%v and %v", g.Target, o.Target)
	}
	return nil
}

// MaxDiff is the largest absolute deviation between g and o, +Inf if either holds a NaN or an Inf.
func (g *Gf) MaxDiff(o *Gf) (float64, error) {
	if err := g.SameMesh(o); err != nil {
		return -1, err
	}
	var m float64
	for i, v := range g.Data {
		if !Finite(v) || !Finite(o.Data[i]) {
			return math.Inf(1), nil
		}
		if d := cmplx.Abs(v - o.Data[i]); d > m {
			m = d
		}
	}
	return m, nil
}

// Finite reports whether neither part of v is NaN or infinite.
func Finite(v complex128) bool { return !cmplx.IsNaN(v) && !cmplx.IsInf(v) }

// FirstNonFinite returns the frequency or time index, the lattice point and the target element
// of the first NaN or infinite value of g.
func (g *Gf) FirstNonFinite() (t, x, e int, ok bool) {
	nx, ts := g.NX(), g.TargetSize()
	for i, v := range g.Data {
		if !Finite(v) {
			return i / (nx * ts), (i / ts) % nx, i % ts, true
		}
	}
	return 0, 0, 0, false
}

func (g *Gf) String() string {
	var t string
	switch {
	case g.Freq != nil:
		t = g.Freq.String() + " x "
	case g.Time != nil:
		t = g.Time.String() + " x "
	}
	return fmt.Sprintf("gf(%s%s %s, target=%v)", t, g.Lattice, g.Space, g.Target)
}

// Idx2 is the offset of [a, b] in an n×n target.
func Idx2(n, a, b int) int { return a*n + b }

// Idx4 is the offset of [a, b, c, d] in an n×n×n×n target.
func Idx4(n, a, b, c, d int) int { return ((a*n+b)*n+c)*n + d }

// Tail holds the coefficients c_k of Σ_k c_k/(iω)^k for k = 1..Orders, per lattice point.
type Tail struct {
	Orders int
	NX     int
	TS     int
	Data   []complex128
}

func NewTail(orders, nx, ts int) *Tail {
	return &Tail{Orders: orders, NX: nx, TS: ts, Data: make([]complex128, orders*nx*ts)}
}

// Coef is the target slice of order k (starting at one) at lattice point x.
func (t *Tail) Coef(k, x int) []complex128 {
	start := ((k-1)*t.NX + x) * t.TS
	return t.Data[start : start+t.TS : start+t.TS]
}

func (t *Tail) Copy() *Tail {
	c := *t
	c.Data = slices.Clone(t.Data)
	return &c
}

// Eval returns Σ_k c_k/(iω)^k for target element e at lattice point x.
// The tail carries no weight at the bosonic iω = 0.
func (t *Tail) Eval(x, e int, iw complex128) complex128 {
	var v complex128
	if iw == 0 {
		return v
	}
	p := complex(1, 0)
	for k := 1; k <= t.Orders; k++ {
		p /= iw
		v += t.Coef(k, x)[e] * p
	}
	return v
}
