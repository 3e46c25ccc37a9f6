package mesh

import (
	"fmt"
	"math"

	"github.com/fumin/tprf/errs"
)

// Lattice is the cyclic mesh generated by a diagonal periodization matrix.
// The same points serve as the Brillouin zone grid k = 2πm/n and as the real space cluster r = m,
// so both meshes have the same cardinality.
// Points are ordered row major with the last axis fastest.
type Lattice struct {
	Dims [3]int
}

func NewLattice(periodization [3][3]int) (Lattice, error) {
	var l Lattice
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if i != j && periodization[i][j] != 0 {
				return Lattice{}, errs.Config("periodization", "non-diagonal entry (%d, %d) = %d", i, j, periodization[i][j])
			}
		}
		if periodization[i][i] < 1 {
			return Lattice{}, errs.Config("periodization", "diagonal entry %d = %d", i, periodization[i][i])
		}
		l.Dims[i] = periodization[i][i]
	}
	return l, nil
}

// Diag is a shortcut for a diagonal periodization.
func Diag(n0, n1, n2 int) (Lattice, error) {
	return NewLattice([3][3]int{{n0, 0, 0}, {0, n1, 0}, {0, 0, n2}})
}

func (l Lattice) Len() int { return l.Dims[0] * l.Dims[1] * l.Dims[2] }

// Index returns the point of integer coordinates m, folded into the cell.
func (l Lattice) Index(m [3]int) int {
	idx := 0
	for d := 0; d < 3; d++ {
		idx = idx*l.Dims[d] + mod(m[d], l.Dims[d])
	}
	return idx
}

func (l Lattice) Coord(i int) [3]int {
	var m [3]int
	for d := 2; d >= 0; d-- {
		m[d] = i % l.Dims[d]
		i /= l.Dims[d]
	}
	return m
}

// K returns the momentum of point i in units where the lattice constant is one.
func (l Lattice) K(i int) [3]float64 {
	m := l.Coord(i)
	var k [3]float64
	for d := 0; d < 3; d++ {
		k[d] = 2 * math.Pi * float64(m[d]) / float64(l.Dims[d])
	}
	return k
}

// Neg returns the point -i.
func (l Lattice) Neg(i int) int {
	m := l.Coord(i)
	return l.Index([3]int{-m[0], -m[1], -m[2]})
}

// Sub returns the point i - j.
func (l Lattice) Sub(i, j int) int {
	a, b := l.Coord(i), l.Coord(j)
	return l.Index([3]int{a[0] - b[0], a[1] - b[1], a[2] - b[2]})
}

func (l Lattice) Add(i, j int) int {
	a, b := l.Coord(i), l.Coord(j)
	return l.Index([3]int{a[0] + b[0], a[1] + b[1], a[2] + b[2]})
}

func (l Lattice) String() string {
	return fmt.Sprintf("lattice(%dx%dx%d)", l.Dims[0], l.Dims[1], l.Dims[2])
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
