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

// Package platform stores model scenarios: their parameter data,
// annotations and solutions. Scenarios are modified only inside a
// checkout, which is either committed as a whole or rolled back.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	// ErrNotFound is returned when a scenario does not exist.
	ErrNotFound = errors.New("platform: scenario not found")

	// ErrLocked is returned when a scenario is already checked out by
	// another session.
	ErrLocked = errors.New("platform: scenario is checked out by another session")

	// ErrDone is returned when a checkout is used after it has been
	// committed or rolled back.
	ErrDone = errors.New("platform: checkout already committed or rolled back")
)

// Ref identifies a scenario.
type Ref struct {
	// Platform is the name of the platform holding the scenario.
	Platform string
	Model    string
	Scenario string

	// Version is the scenario version. Zero refers to the latest version.
	Version int
}

// ParseRef parses a scenario URL of the form
// ixmp://PLATFORM/MODEL/SCENARIO#VERSION. The version is optional. Model
// and scenario names may be percent-encoded.
func ParseRef(s string) (Ref, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Ref{}, fmt.Errorf("platform: invalid scenario URL %q: %v", s, err)
	}
	if u.Scheme != "ixmp" {
		return Ref{}, fmt.Errorf("platform: invalid scenario URL %q: scheme must be ixmp", s)
	}
	parts := strings.Split(strings.TrimPrefix(u.EscapedPath(), "/"), "/")
	if u.Host == "" || len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Ref{}, fmt.Errorf("platform: invalid scenario URL %q: want ixmp://PLATFORM/MODEL/SCENARIO[#VERSION]", s)
	}
	r := Ref{Platform: u.Host}
	if r.Model, err = url.PathUnescape(parts[0]); err != nil {
		return Ref{}, fmt.Errorf("platform: invalid model in %q: %v", s, err)
	}
	if r.Scenario, err = url.PathUnescape(parts[1]); err != nil {
		return Ref{}, fmt.Errorf("platform: invalid scenario in %q: %v", s, err)
	}
	if u.Fragment != "" {
		v, err := strconv.Atoi(u.Fragment)
		if err != nil || v < 1 {
			return Ref{}, fmt.Errorf("platform: invalid version %q in %q", u.Fragment, s)
		}
		r.Version = v
	}
	return r, nil
}

// String returns r as a scenario URL.
func (r Ref) String() string {
	s := fmt.Sprintf("ixmp://%s/%s/%s", r.Platform, url.PathEscape(r.Model), url.PathEscape(r.Scenario))
	if r.Version > 0 {
		s += "#" + strconv.Itoa(r.Version)
	}
	return s
}

// ParRow is one element of a parameter or of a solution variable. Key
// dimensions that a parameter does not have are left empty.
type ParRow struct {
	Node       string
	Commodity  string
	Level      string
	Technology string
	Mode       string
	Time       string
	Year       int
	Value      float64
	Unit       string
}

// key returns the index of the row, ignoring its value and unit.
func (r ParRow) key() string {
	return strings.Join([]string{r.Node, r.Commodity, r.Level, r.Technology, r.Mode, r.Time, strconv.Itoa(r.Year)}, "\x00")
}

// Commit is an entry in the history of a scenario.
type Commit struct {
	Session string
	Message string
}

// Scenario describes a stored scenario.
type Scenario struct {
	Ref         Ref
	Annotations map[string]string
	History     []Commit

	// Solved is true if the scenario holds a solution.
	Solved bool
}

// Platform stores scenarios.
type Platform interface {
	// Get returns the scenario ref refers to.
	Get(ctx context.Context, ref Ref) (*Scenario, error)

	// Clone copies the parameter data of src to a new version of the
	// given model and scenario and returns its reference. If keepHistory
	// is true the annotations and history of src are copied too.
	Clone(ctx context.Context, src Ref, model, scenario string, keepHistory bool) (Ref, error)

	// Checkout begins modifying a scenario. Only one checkout of a
	// scenario can be open at a time.
	Checkout(ctx context.Context, ref Ref) (Tx, error)

	// Pars returns the rows of a parameter.
	Pars(ctx context.Context, ref Ref, name string) ([]ParRow, error)

	// Solution returns the rows of a solution variable.
	Solution(ctx context.Context, ref Ref, name string) ([]ParRow, error)

	// Close releases the resources of the platform.
	Close() error
}

// Tx is an open checkout of a scenario.
type Tx interface {
	// Ref returns the scenario being modified.
	Ref() Ref

	// AddPar adds rows to a parameter, replacing any existing rows with
	// the same key.
	AddPar(ctx context.Context, name string, rows []ParRow) error

	// RemovePar removes the rows with the given keys from a parameter.
	// If rows is nil, the whole parameter is removed.
	RemovePar(ctx context.Context, name string, rows []ParRow) error

	// SetAnnotation sets an annotation of the scenario.
	SetAnnotation(ctx context.Context, key, value string) error

	// Commit stores the changes with the given message and removes any
	// solution, which no longer matches the data.
	Commit(ctx context.Context, message string) error

	// Rollback discards the changes.
	Rollback(ctx context.Context) error
}

// WithCheckout checks out ref, calls fn, and commits the changes with the
// given message. If fn returns an error or panics, the changes are rolled
// back and nothing is committed.
func WithCheckout(ctx context.Context, p Platform, ref Ref, message string, fn func(Tx) error) (err error) {
	tx, err := p.Checkout(ctx, ref)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rerr := tx.Rollback(ctx); rerr != nil && !errors.Is(rerr, ErrDone) && err != nil {
			err = fmt.Errorf("%w (rollback failed: %v)", err, rerr)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx, message); err != nil {
		return err
	}
	committed = true
	return nil
}
