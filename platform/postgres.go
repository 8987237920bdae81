/*
Copyright © 2024 the mixmodels authors.
This file is part of mixmodels.

mixmodels is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

mixmodels is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with mixmodels.  If not, see <http://www.gnu.org/licenses/>.
*/

package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS mix_scenario (
	model    TEXT NOT NULL,
	scenario TEXT NOT NULL,
	version  INTEGER NOT NULL,
	PRIMARY KEY (model, scenario, version)
);
CREATE TABLE IF NOT EXISTS mix_annotation (
	model    TEXT NOT NULL,
	scenario TEXT NOT NULL,
	version  INTEGER NOT NULL,
	key      TEXT NOT NULL,
	value    TEXT NOT NULL,
	PRIMARY KEY (model, scenario, version, key)
);
CREATE TABLE IF NOT EXISTS mix_history (
	model    TEXT NOT NULL,
	scenario TEXT NOT NULL,
	version  INTEGER NOT NULL,
	seq      BIGSERIAL,
	session  TEXT NOT NULL,
	message  TEXT NOT NULL,
	created  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS mix_par (
	model      TEXT NOT NULL,
	scenario   TEXT NOT NULL,
	version    INTEGER NOT NULL,
	solution   BOOLEAN NOT NULL,
	name       TEXT NOT NULL,
	node       TEXT NOT NULL,
	commodity  TEXT NOT NULL,
	level      TEXT NOT NULL,
	technology TEXT NOT NULL,
	mode       TEXT NOT NULL,
	time       TEXT NOT NULL,
	year       INTEGER NOT NULL,
	value      DOUBLE PRECISION NOT NULL,
	unit       TEXT NOT NULL,
	PRIMARY KEY (model, scenario, version, solution, name, node, commodity, level, technology, mode, time, year)
);
`

// Postgres is a Platform stored in a PostgreSQL database. Each checkout
// is a database transaction that holds a row lock on the scenario.
type Postgres struct {
	Name string
	db   *sqlx.DB
}

// OpenPostgres connects to the database at dsn and creates the tables
// if they do not exist.
func OpenPostgres(ctx context.Context, name, dsn string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("platform: connecting to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("platform: creating tables: %w", err)
	}
	return &Postgres{Name: name, db: db}, nil
}

// Close implements Platform.
func (p *Postgres) Close() error { return p.db.Close() }

type queryer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// resolve fills in the version of ref.
func (p *Postgres) resolve(ctx context.Context, q queryer, ref Ref) (Ref, error) {
	var v sql.NullInt64
	err := q.GetContext(ctx, &v, `SELECT MAX(version) FROM mix_scenario WHERE model = $1 AND scenario = $2
		AND ($3 = 0 OR version = $3)`, ref.Model, ref.Scenario, ref.Version)
	if err != nil {
		return Ref{}, fmt.Errorf("platform: %s: %w", ref, err)
	}
	if !v.Valid {
		return Ref{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	ref.Platform = p.Name
	ref.Version = int(v.Int64)
	return ref, nil
}

// Create adds a new, empty version of the given model and scenario.
func (p *Postgres) Create(ctx context.Context, model, scenario string) (Ref, error) {
	var v int
	err := p.db.GetContext(ctx, &v, `INSERT INTO mix_scenario (model, scenario, version)
		SELECT $1::text, $2::text, COALESCE(MAX(version), 0) + 1 FROM mix_scenario WHERE model = $1 AND scenario = $2
		RETURNING version`, model, scenario)
	if err != nil {
		return Ref{}, fmt.Errorf("platform: creating %s/%s: %w", model, scenario, err)
	}
	return Ref{Platform: p.Name, Model: model, Scenario: scenario, Version: v}, nil
}

// Get implements Platform.
func (p *Postgres) Get(ctx context.Context, ref Ref) (*Scenario, error) {
	ref, err := p.resolve(ctx, p.db, ref)
	if err != nil {
		return nil, err
	}
	s := &Scenario{Ref: ref, Annotations: make(map[string]string)}
	var ann []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := p.db.SelectContext(ctx, &ann, `SELECT key, value FROM mix_annotation
		WHERE model = $1 AND scenario = $2 AND version = $3`, ref.Model, ref.Scenario, ref.Version); err != nil {
		return nil, fmt.Errorf("platform: %s: annotations: %w", ref, err)
	}
	for _, a := range ann {
		s.Annotations[a.Key] = a.Value
	}
	if err := p.db.SelectContext(ctx, &s.History, `SELECT session, message FROM mix_history
		WHERE model = $1 AND scenario = $2 AND version = $3 ORDER BY seq`, ref.Model, ref.Scenario, ref.Version); err != nil {
		return nil, fmt.Errorf("platform: %s: history: %w", ref, err)
	}
	if err := p.db.GetContext(ctx, &s.Solved, `SELECT EXISTS(SELECT 1 FROM mix_par
		WHERE model = $1 AND scenario = $2 AND version = $3 AND solution)`, ref.Model, ref.Scenario, ref.Version); err != nil {
		return nil, fmt.Errorf("platform: %s: %w", ref, err)
	}
	return s, nil
}

// Clone implements Platform.
func (p *Postgres) Clone(ctx context.Context, src Ref, model, scenario string, keepHistory bool) (out Ref, err error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return Ref{}, fmt.Errorf("platform: starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if src, err = p.resolve(ctx, tx, src); err != nil {
		return Ref{}, err
	}
	var v int
	if err = tx.GetContext(ctx, &v, `INSERT INTO mix_scenario (model, scenario, version)
		SELECT $1::text, $2::text, COALESCE(MAX(version), 0) + 1 FROM mix_scenario WHERE model = $1 AND scenario = $2
		RETURNING version`, model, scenario); err != nil {
		return Ref{}, fmt.Errorf("platform: cloning %s: %w", src, err)
	}
	args := []interface{}{model, scenario, v, src.Model, src.Scenario, src.Version}
	if _, err = tx.ExecContext(ctx, `INSERT INTO mix_par
		SELECT $1, $2, $3, solution, name, node, commodity, level, technology, mode, time, year, value, unit
		FROM mix_par WHERE model = $4 AND scenario = $5 AND version = $6 AND NOT solution`, args...); err != nil {
		return Ref{}, fmt.Errorf("platform: cloning %s: parameters: %w", src, err)
	}
	if keepHistory {
		if _, err = tx.ExecContext(ctx, `INSERT INTO mix_annotation
			SELECT $1, $2, $3, key, value FROM mix_annotation WHERE model = $4 AND scenario = $5 AND version = $6`, args...); err != nil {
			return Ref{}, fmt.Errorf("platform: cloning %s: annotations: %w", src, err)
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO mix_history (model, scenario, version, session, message, created)
			SELECT $1, $2, $3, session, message, created FROM mix_history
			WHERE model = $4 AND scenario = $5 AND version = $6 ORDER BY seq`, args...); err != nil {
			return Ref{}, fmt.Errorf("platform: cloning %s: history: %w", src, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return Ref{}, fmt.Errorf("platform: cloning %s: %w", src, err)
	}
	return Ref{Platform: p.Name, Model: model, Scenario: scenario, Version: v}, nil
}

type parRow struct {
	Node       string  `db:"node"`
	Commodity  string  `db:"commodity"`
	Level      string  `db:"level"`
	Technology string  `db:"technology"`
	Mode       string  `db:"mode"`
	Time       string  `db:"time"`
	Year       int     `db:"year"`
	Value      float64 `db:"value"`
	Unit       string  `db:"unit"`
}

func (p *Postgres) rows(ctx context.Context, ref Ref, name string, solution bool) ([]ParRow, error) {
	ref, err := p.resolve(ctx, p.db, ref)
	if err != nil {
		return nil, err
	}
	var r []parRow
	err = p.db.SelectContext(ctx, &r, `SELECT node, commodity, level, technology, mode, time, year, value, unit
		FROM mix_par WHERE model = $1 AND scenario = $2 AND version = $3 AND solution = $4 AND name = $5
		ORDER BY node, commodity, level, technology, mode, time, year`,
		ref.Model, ref.Scenario, ref.Version, solution, name)
	if err != nil {
		return nil, fmt.Errorf("platform: %s: %s: %w", ref, name, err)
	}
	o := make([]ParRow, len(r))
	for i, x := range r {
		o[i] = ParRow(x)
	}
	return o, nil
}

// Pars implements Platform.
func (p *Postgres) Pars(ctx context.Context, ref Ref, name string) ([]ParRow, error) {
	return p.rows(ctx, ref, name, false)
}

// Solution implements Platform.
func (p *Postgres) Solution(ctx context.Context, ref Ref, name string) ([]ParRow, error) {
	return p.rows(ctx, ref, name, true)
}

// SetSolution stores the rows of a solution variable, as a solver would.
func (p *Postgres) SetSolution(ctx context.Context, ref Ref, name string, rows []ParRow) error {
	ref, err := p.resolve(ctx, p.db, ref)
	if err != nil {
		return err
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("platform: starting transaction: %w", err)
	}
	if err := upsert(ctx, tx, ref, name, true, rows); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func upsert(ctx context.Context, tx *sqlx.Tx, ref Ref, name string, solution bool, rows []ParRow) error {
	stmt, err := tx.PreparexContext(ctx, `INSERT INTO mix_par
		(model, scenario, version, solution, name, node, commodity, level, technology, mode, time, year, value, unit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (model, scenario, version, solution, name, node, commodity, level, technology, mode, time, year)
		DO UPDATE SET value = EXCLUDED.value, unit = EXCLUDED.unit`)
	if err != nil {
		return fmt.Errorf("platform: preparing statement: %w", err)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, ref.Model, ref.Scenario, ref.Version, solution, name,
			r.Node, r.Commodity, r.Level, r.Technology, r.Mode, r.Time, r.Year, r.Value, r.Unit); err != nil {
			return fmt.Errorf("platform: %s: adding to %s: %w", ref, name, err)
		}
	}
	return nil
}

// lockNotAvailable is the PostgreSQL error code for a failed NOWAIT lock.
const lockNotAvailable = "55P03"

// Checkout implements Platform.
func (p *Postgres) Checkout(ctx context.Context, ref Ref) (Tx, error) {
	ref, err := p.resolve(ctx, p.db, ref)
	if err != nil {
		return nil, err
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("platform: starting transaction: %w", err)
	}
	var n int
	err = tx.GetContext(ctx, &n, `SELECT version FROM mix_scenario
		WHERE model = $1 AND scenario = $2 AND version = $3 FOR UPDATE NOWAIT`, ref.Model, ref.Scenario, ref.Version)
	if err != nil {
		tx.Rollback()
		var perr *pq.Error
		if errors.As(err, &perr) && perr.Code == lockNotAvailable {
			return nil, fmt.Errorf("%w: %s", ErrLocked, ref)
		}
		return nil, fmt.Errorf("platform: checking out %s: %w", ref, err)
	}
	return &pgTx{tx: tx, ref: ref, session: uuid.New().String()}, nil
}

type pgTx struct {
	tx      *sqlx.Tx
	ref     Ref
	session string
	done    bool
}

func (t *pgTx) Ref() Ref { return t.ref }

func (t *pgTx) AddPar(ctx context.Context, name string, rows []ParRow) error {
	if t.done {
		return ErrDone
	}
	return upsert(ctx, t.tx, t.ref, name, false, rows)
}

func (t *pgTx) RemovePar(ctx context.Context, name string, rows []ParRow) error {
	if t.done {
		return ErrDone
	}
	const q = `DELETE FROM mix_par WHERE model = $1 AND scenario = $2 AND version = $3 AND NOT solution AND name = $4`
	if rows == nil {
		if _, err := t.tx.ExecContext(ctx, q, t.ref.Model, t.ref.Scenario, t.ref.Version, name); err != nil {
			return fmt.Errorf("platform: %s: removing %s: %w", t.ref, name, err)
		}
		return nil
	}
	for _, r := range rows {
		if _, err := t.tx.ExecContext(ctx, q+` AND node = $5 AND commodity = $6 AND level = $7
			AND technology = $8 AND mode = $9 AND time = $10 AND year = $11`,
			t.ref.Model, t.ref.Scenario, t.ref.Version, name,
			r.Node, r.Commodity, r.Level, r.Technology, r.Mode, r.Time, r.Year); err != nil {
			return fmt.Errorf("platform: %s: removing from %s: %w", t.ref, name, err)
		}
	}
	return nil
}

func (t *pgTx) SetAnnotation(ctx context.Context, key, value string) error {
	if t.done {
		return ErrDone
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO mix_annotation (model, scenario, version, key, value)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (model, scenario, version, key) DO UPDATE SET value = EXCLUDED.value`,
		t.ref.Model, t.ref.Scenario, t.ref.Version, key, value)
	if err != nil {
		return fmt.Errorf("platform: %s: annotation %s: %w", t.ref, key, err)
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context, message string) error {
	if t.done {
		return ErrDone
	}
	t.done = true
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM mix_par WHERE model = $1 AND scenario = $2 AND version = $3 AND solution`,
		t.ref.Model, t.ref.Scenario, t.ref.Version); err != nil {
		t.tx.Rollback()
		return fmt.Errorf("platform: %s: removing solution: %w", t.ref, err)
	}
	if _, err := t.tx.ExecContext(ctx, `INSERT INTO mix_history (model, scenario, version, session, message)
		VALUES ($1, $2, $3, $4, $5)`, t.ref.Model, t.ref.Scenario, t.ref.Version, t.session, message); err != nil {
		t.tx.Rollback()
		return fmt.Errorf("platform: %s: history: %w", t.ref, err)
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("platform: committing %s: %w", t.ref, err)
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if t.done {
		return ErrDone
	}
	t.done = true
	return t.tx.Rollback()
}
