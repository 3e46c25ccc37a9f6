package mat

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	FnameShape = "shape.csv"
	FnameCOO   = "coo.csv"
)

var PauliX = [][]complex128{
	{0, 1},
	{1, 0},
}

type entry struct {
	v   complex128
	row int
	col int
}

// COO is a sparse matrix in coordinate format, kept sorted in row major order.
// It is used to assemble hopping blocks and pair space interaction matrices.
type COO struct {
	rows int
	cols int
	data []entry
}

func M(dense [][]complex128) *COO {
	m := &COO{rows: len(dense), cols: len(dense[0])}
	for i, row := range dense {
		for j, v := range row {
			if v == 0 {
				continue
			}
			m.data = append(m.data, entry{v: v, row: i, col: j})
		}
	}
	return m
}

// FromFlat reads a row major rows×cols slice.
func FromFlat(rows, cols int, flat []complex128) *COO {
	m := &COO{rows: rows, cols: cols}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := flat[i*cols+j]; v != 0 {
				m.data = append(m.data, entry{v: v, row: i, col: j})
			}
		}
	}
	return m
}

func Identity(n int) *COO {
	m := &COO{rows: n, cols: n}
	for i := 0; i < n; i++ {
		m.data = append(m.data, entry{v: 1, row: i, col: i})
	}
	return m
}

func (m *COO) Rows() int       { return m.rows }
func (m *COO) Cols() int       { return m.cols }
func (m *COO) NumNonZero() int { return len(m.data) }

func (m *COO) Scale(c complex128) *COO {
	s := &COO{rows: m.rows, cols: m.cols, data: slices.Clone(m.data)}
	for i := range s.data {
		s.data[i].v *= c
	}
	s.data = slices.DeleteFunc(s.data, func(e entry) bool { return e.v == 0 })
	return s
}

func (a *COO) Equal(b *COO) bool {
	if a.rows != b.rows || a.cols != b.cols {
		return false
	}
	return slices.Equal(a.data, b.data)
}

// Kron sets a to the Kronecker product a ⊗ b.
func (a *COO) Kron(b *COO) {
	prod := make([]entry, 0, len(a.data)*len(b.data))
	for _, av := range a.data {
		for _, bv := range b.data {
			prod = append(prod, entry{
				v:   av.v * bv.v,
				row: av.row*b.rows + bv.row,
				col: av.col*b.cols + bv.col,
			})
		}
	}
	a.rows *= b.rows
	a.cols *= b.cols
	a.data = slices.DeleteFunc(prod, func(v entry) bool {
		return v.v == 0
	})
	slices.SortFunc(a.data, rowMajor)
}

func (m *COO) Dense() [][]complex128 {
	dense := make([][]complex128, m.rows)
	for i := range dense {
		dense[i] = make([]complex128, m.cols)
	}
	for _, v := range m.data {
		dense[v.row][v.col] = v.v
	}
	return dense
}

// Flat returns the row major dense representation.
func (m *COO) Flat() []complex128 {
	flat := make([]complex128, m.rows*m.cols)
	for _, v := range m.data {
		flat[v.row*m.cols+v.col] = v.v
	}
	return flat
}

func (m *COO) String() string {
	dense := m.Dense()
	lines := make([]string, 0, m.rows)
	for _, row := range dense {
		cs := make([]string, 0, m.cols)
		for _, v := range row {
			switch {
			case imag(v) == 0:
				cs = append(cs, format(real(v)))
			case real(v) == 0:
				cs = append(cs, format(imag(v))+"i")
			default:
				cs = append(cs, format(real(v))+"+"+format(imag(v))+"i")
			}
		}
		lines = append(lines, strings.Join(cs, "\t"))
	}
	return strings.Join(lines, "\n")
}

// WriteCOO writes the matrix into dir as shape.csv and coo.csv, one "value,row,col" record per non zero entry
// with numpy's complex notation.
func (m *COO) WriteCOO(dir string) error {
	shape := fmt.Sprintf("%d,%d\n", m.rows, m.cols)
	if err := os.WriteFile(filepath.Join(dir, FnameShape), []byte(shape), 0644); err != nil {
		return errors.Wrap(err, "")
	}
	records := make([][]string, 0, len(m.data))
	for _, e := range m.data {
		records = append(records, []string{FormatNumpy(e.v), strconv.Itoa(e.row), strconv.Itoa(e.col)})
	}
	var b strings.Builder
	if err := csv.NewWriter(&b).WriteAll(records); err != nil {
		return errors.Wrap(err, "")
	}
	if err := os.WriteFile(filepath.Join(dir, FnameCOO), []byte(b.String()), 0644); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// ReadCOO reads a matrix written by WriteCOO. Entries outside the shape are an error.
func ReadCOO(dir string) (*COO, error) {
	shape, err := readCSV(filepath.Join(dir, FnameShape))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if len(shape) != 1 || len(shape[0]) != 2 {
		return nil, errors.Errorf("%s: %v", FnameShape, shape)
	}
	dims, err := atois(shape[0])
	if err != nil {
		return nil, errors.Wrap(err, FnameShape)
	}
	m := &COO{rows: dims[0], cols: dims[1]}

	records, err := readCSV(filepath.Join(dir, FnameCOO))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	for i, rec := range records {
		if len(rec) != 3 {
			return nil, errors.Errorf("%s line %d: %v", FnameCOO, i+1, rec)
		}
		v, err := strconv.ParseComplex(strings.ReplaceAll(rec[0], "j", "i"), 128)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%s line %d", FnameCOO, i+1))
		}
		rc, err := atois(rec[1:])
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%s line %d", FnameCOO, i+1))
		}
		if rc[0] < 0 || rc[0] >= m.rows || rc[1] < 0 || rc[1] >= m.cols {
			return nil, errors.Errorf("%s line %d: (%d, %d) outside %dx%d", FnameCOO, i+1, rc[0], rc[1], m.rows, m.cols)
		}
		m.data = append(m.data, entry{v: v, row: rc[0], col: rc[1]})
	}
	slices.SortFunc(m.data, rowMajor)
	return m, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return records, nil
}

func atois(fields []string) ([]int, error) {
	a := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		a[i] = v
	}
	return a, nil
}

func rowMajor(a, b entry) int {
	if c := cmp.Compare(a.row, b.row); c != 0 {
		return c
	}
	return cmp.Compare(a.col, b.col)
}

func format(v float64) string {
	// Print 0 and -0 alike.
	if v == 0 {
		return " 0"
	}
	s := strconv.FormatFloat(v, 'g', 6, 64)
	if v > 0 {
		s = " " + s
	}
	return s
}

func FormatNumpy(v complex128) string {
	if imag(v) == 0 {
		return strconv.FormatFloat(real(v), 'g', -1, 64)
	}
	s := strconv.FormatComplex(v, 'g', -1, 128)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	return strings.ReplaceAll(s, "i", "j")
}
