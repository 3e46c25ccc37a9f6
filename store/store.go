// Package store persists runs, Green's functions and comparisons in a sqlite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/fumin/tprf"
	"github.com/fumin/tprf/gf"
	"github.com/fumin/tprf/mesh"
)

const (
	tableRun        = "run"
	tableGf         = "gf"
	tableGfData     = "gf_data"
	tableComparison = "comparison"
)

type Store struct {
	Path string

	db *sql.DB
}

// Run is one invocation of a scenario.
type Run struct {
	ID      uuid.UUID
	Kind    string
	Created time.Time
	// Params is the YAML of the scenario parameters.
	Params string
	Status string
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}
	return &Store{Path: dbPath, db: db}, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, kind TEXT, created INTEGER, params TEXT, status TEXT) STRICT`, tableRun),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (run TEXT, name TEXT, axis TEXT, beta REAL, statistic INTEGER, n INTEGER, dims TEXT, space INTEGER, target TEXT, PRIMARY KEY (run, name)) STRICT`, tableGf),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (run TEXT, name TEXT, i INTEGER, re REAL, im REAL, PRIMARY KEY (run, name, i)) STRICT`, tableGfData),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (run TEXT, name TEXT, digits INTEGER, deviation REAL, norm REAL, pass INTEGER, PRIMARY KEY (run, name)) STRICT`, tableComparison),
	}
	for _, sqlStr := range stmts {
		if _, err := db.ExecContext(ctx, sqlStr); err != nil {
			return errors.Wrap(err, sqlStr)
		}
	}
	return nil
}

// NewRun records a run of kind with its parameters and returns its identifier.
func (s *Store) NewRun(ctx context.Context, kind string, params any) (uuid.UUID, error) {
	b, err := yaml.Marshal(params)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "")
	}
	id := uuid.New()
	sqlStr := fmt.Sprintf(`INSERT INTO %s (id, kind, created, params, status) VALUES (?, ?, ?, ?, ?)`, tableRun)
	if _, err := s.db.ExecContext(ctx, sqlStr, id.String(), kind, time.Now().UnixMicro(), string(b), ""); err != nil {
		return uuid.Nil, errors.Wrap(err, "")
	}
	return id, nil
}

func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	sqlStr := fmt.Sprintf(`UPDATE %s SET status=? WHERE id=?`, tableRun)
	res, err := s.db.ExecContext(ctx, sqlStr, status, id.String())
	if err != nil {
		return errors.Wrap(err, "")
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return errors.Errorf("run %s: %d rows %v", id, n, err)
	}
	return nil
}

func (s *Store) Run(ctx context.Context, id uuid.UUID) (Run, error) {
	sqlStr := fmt.Sprintf(`SELECT kind, created, params, status FROM %s WHERE id=?`, tableRun)
	r := Run{ID: id}
	var created int64
	if err := s.db.QueryRowContext(ctx, sqlStr, id.String()).Scan(&r.Kind, &created, &r.Params, &r.Status); err != nil {
		return Run{}, errors.Wrap(err, id.String())
	}
	r.Created = time.UnixMicro(created)
	return r, nil
}

// Runs lists the runs, oldest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	sqlStr := fmt.Sprintf(`SELECT id, kind, created, params, status FROM %s ORDER BY created, id`, tableRun)
	rows, err := s.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var r Run
		var id string
		var created int64
		if err := rows.Scan(&id, &r.Kind, &created, &r.Params, &r.Status); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, errors.Wrap(err, id)
		}
		r.Created = time.UnixMicro(created)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return runs, nil
}

// PutGf stores the meshes and the non zero data of g under name. The tail is not stored.
func (s *Store) PutGf(ctx context.Context, id uuid.UUID, name string, g *gf.Gf) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer tx.Rollback()

	axis, beta, statistic, n := "static", 0.0, 0, 0
	switch {
	case g.Freq != nil:
		axis, beta, statistic, n = "freq", g.Freq.Beta, int(g.Freq.Statistic), g.Freq.NMax
	case g.Time != nil:
		axis, beta, statistic, n = "time", g.Time.Beta, int(g.Time.Statistic), g.Time.N
	}
	dims := g.Lattice.Dims
	sqlStr := fmt.Sprintf(`INSERT OR REPLACE INTO %s (run, name, axis, beta, statistic, n, dims, space, target) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, tableGf)
	args := []any{id.String(), name, axis, beta, statistic, n, joinInts(dims[:]), int(g.Space), joinInts(g.Target)}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, args))
	}

	sqlStr = fmt.Sprintf(`DELETE FROM %s WHERE run=? AND name=?`, tableGfData)
	if _, err := tx.ExecContext(ctx, sqlStr, id.String(), name); err != nil {
		return errors.Wrap(err, "")
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (run, name, i, re, im) VALUES (?, ?, ?, ?, ?)`, tableGfData))
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer stmt.Close()
	for i, v := range g.Data {
		if v == 0 {
			continue
		}
		if _, err := stmt.ExecContext(ctx, id.String(), name, i, real(v), imag(v)); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%s %d", name, i))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Gf reads back a Green's function stored with PutGf.
func (s *Store) Gf(ctx context.Context, id uuid.UUID, name string) (*gf.Gf, error) {
	sqlStr := fmt.Sprintf(`SELECT axis, beta, statistic, n, dims, space, target FROM %s WHERE run=? AND name=?`, tableGf)
	var axis, dimsStr, targetStr string
	var beta float64
	var statistic, n, space int
	if err := s.db.QueryRowContext(ctx, sqlStr, id.String(), name).Scan(&axis, &beta, &statistic, &n, &dimsStr, &space, &targetStr); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("%s %s", id, name))
	}
	dims, err := splitInts(dimsStr)
	if err != nil || len(dims) != 3 {
		return nil, errors.Errorf("dims %q %v", dimsStr, err)
	}
	target, err := splitInts(targetStr)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	l, err := mesh.Diag(dims[0], dims[1], dims[2])
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	var g *gf.Gf
	switch axis {
	case "freq":
		g = gf.NewFreq(mesh.Matsubara{Beta: beta, Statistic: mesh.Statistic(statistic), NMax: n}, l, gf.Space(space), target...)
	case "time":
		g = gf.NewTime(mesh.ImTime{Beta: beta, Statistic: mesh.Statistic(statistic), N: n}, l, gf.Space(space), target...)
	default:
		g = gf.NewStatic(l, gf.Space(space), target...)
	}

	sqlStr = fmt.Sprintf(`SELECT i, re, im FROM %s WHERE run=? AND name=?`, tableGfData)
	rows, err := s.db.QueryContext(ctx, sqlStr, id.String(), name)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()
	for rows.Next() {
		var i int
		var re, im float64
		if err := rows.Scan(&i, &re, &im); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if i < 0 || i >= len(g.Data) {
			return nil, errors.Errorf("%s %s: index %d out of %d", id, name, i, len(g.Data))
		}
		g.Data[i] = complex(re, im)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return g, nil
}

func (s *Store) PutComparisons(ctx context.Context, id uuid.UUID, cmps []tprf.Comparison) error {
	sqlStr := fmt.Sprintf(`INSERT OR REPLACE INTO %s (run, name, digits, deviation, norm, pass) VALUES (?, ?, ?, ?, ?, ?)`, tableComparison)
	for _, c := range cmps {
		pass := 0
		if c.Pass {
			pass = 1
		}
		if _, err := s.db.ExecContext(ctx, sqlStr, id.String(), c.Name, c.Decimal, c.MaxDeviation, c.Norm, pass); err != nil {
			return errors.Wrap(err, c.Name)
		}
	}
	return nil
}

func (s *Store) Comparisons(ctx context.Context, id uuid.UUID) ([]tprf.Comparison, error) {
	sqlStr := fmt.Sprintf(`SELECT name, digits, deviation, norm, pass FROM %s WHERE run=? ORDER BY name`, tableComparison)
	rows, err := s.db.QueryContext(ctx, sqlStr, id.String())
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	cmps := make([]tprf.Comparison, 0)
	for rows.Next() {
		var c tprf.Comparison
		var pass int
		if err := rows.Scan(&c.Name, &c.Decimal, &c.MaxDeviation, &c.Norm, &pass); err != nil {
			return nil, errors.Wrap(err, "")
		}
		c.Pass = pass == 1
		cmps = append(cmps, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return cmps, nil
}

func joinInts(a []int) string {
	s := make([]string, len(a))
	for i, v := range a {
		s[i] = strconv.Itoa(v)
	}
	return strings.Join(s, ",")
}

func splitInts(s string) ([]int, error) {
	a := make([]int, 0)
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Wrap(err, s)
		}
		a = append(a, v)
	}
	return a, nil
}
