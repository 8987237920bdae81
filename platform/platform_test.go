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
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/kr/pretty"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		in   string
		want Ref
		err  bool
	}{
		{in: "ixmp://local/MESSAGEix-GLOBIOM/baseline#3", want: Ref{Platform: "local", Model: "MESSAGEix-GLOBIOM", Scenario: "baseline", Version: 3}},
		{in: "ixmp://ene-ixmp/CD_Links_SSP2/baseline", want: Ref{Platform: "ene-ixmp", Model: "CD_Links_SSP2", Scenario: "baseline"}},
		{in: "ixmp://local/MESSAGEix-GLOBIOM%201.1/NPi%202020", want: Ref{Platform: "local", Model: "MESSAGEix-GLOBIOM 1.1", Scenario: "NPi 2020"}},
		{in: "http://local/m/s", err: true},
		{in: "ixmp://local/m", err: true},
		{in: "ixmp://local/m/s/x", err: true},
		{in: "ixmp://local/m/s#latest", err: true},
		{in: "ixmp:///m/s", err: true},
	}
	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			r, err := ParseRef(test.in)
			if test.err {
				if err == nil {
					t.Errorf("no error; have %+v", r)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if r != test.want {
				t.Errorf("have %+v, want %+v", r, test.want)
			}
			if r.String() != test.in {
				t.Errorf("round trip: have %s", r)
			}
		})
	}
}

func demandRows(v float64) []ParRow {
	return []ParRow{
		{Node: "R12_AFR", Commodity: "rc_therm", Level: "useful", Time: "year", Year: 2030, Value: v, Unit: "GWa"},
		{Node: "R12_AFR", Commodity: "rc_therm", Level: "useful", Time: "year", Year: 2040, Value: 2 * v, Unit: "GWa"},
	}
}

// testPlatform runs checks common to every Platform implementation.
// create must return a new, empty scenario.
func testPlatform(t *testing.T, p Platform, create func(model, scenario string) (Ref, error)) {
	ctx := context.Background()
	model := fmt.Sprintf("test model %d", os.Getpid())
	base, err := create(model, "baseline")
	if err != nil {
		t.Fatal(err)
	}

	err = WithCheckout(ctx, p, base, "add demand", func(tx Tx) error {
		if err := tx.AddPar(ctx, "demand", demandRows(1)); err != nil {
			return err
		}
		return tx.SetAnnotation(ctx, "source", "test")
	})
	if err != nil {
		t.Fatal(err)
	}
	rows, err := p.Pars(ctx, base, "demand")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rows, demandRows(1)) {
		t.Errorf("demand: %# v", pretty.Formatter(rows))
	}

	t.Run("rollback", func(t *testing.T) {
		failure := errors.New("build failed")
		err := WithCheckout(ctx, p, base, "bad", func(tx Tx) error {
			if err := tx.AddPar(ctx, "demand", demandRows(5)); err != nil {
				return err
			}
			if err := tx.RemovePar(ctx, "demand", demandRows(0)[:1]); err != nil {
				return err
			}
			return failure
		})
		if !errors.Is(err, failure) {
			t.Errorf("have %v", err)
		}
		rows, err := p.Pars(ctx, base, "demand")
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(rows, demandRows(1)) {
			t.Errorf("changes were not rolled back: %# v", pretty.Formatter(rows))
		}
	})

	t.Run("lock", func(t *testing.T) {
		tx, err := p.Checkout(ctx, base)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := p.Checkout(ctx, base); !errors.Is(err, ErrLocked) {
			t.Errorf("second checkout: have %v, want ErrLocked", err)
		}
		if err := tx.Rollback(ctx); err != nil {
			t.Fatal(err)
		}
		if err := tx.AddPar(ctx, "demand", nil); !errors.Is(err, ErrDone) {
			t.Errorf("after rollback: have %v", err)
		}
		tx, err = p.Checkout(ctx, base)
		if err != nil {
			t.Fatalf("checkout after rollback: %v", err)
		}
		tx.Rollback(ctx)
	})

	t.Run("clone", func(t *testing.T) {
		byURL, err := p.Clone(ctx, base, model, "policy", true)
		if err != nil {
			t.Fatal(err)
		}
		byCopy, err := p.Clone(ctx, base, model, "policy", false)
		if err != nil {
			t.Fatal(err)
		}
		if byCopy.Version != byURL.Version+1 {
			t.Errorf("versions: %d, %d", byURL.Version, byCopy.Version)
		}
		s, err := p.Get(ctx, byURL)
		if err != nil {
			t.Fatal(err)
		}
		if s.Annotations["source"] != "test" || len(s.History) != 1 || s.History[0].Message != "add demand" {
			t.Errorf("by url: %# v", pretty.Formatter(s))
		}
		s, err = p.Get(ctx, Ref{Model: model, Scenario: "policy"})
		if err != nil {
			t.Fatal(err)
		}
		if s.Ref.Version != byCopy.Version || len(s.Annotations) != 0 || len(s.History) != 0 {
			t.Errorf("by copy: %# v", pretty.Formatter(s))
		}
		rows, err := p.Pars(ctx, byCopy, "demand")
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 2 {
			t.Errorf("cloned demand: %v", rows)
		}
	})

	t.Run("remove", func(t *testing.T) {
		err := WithCheckout(ctx, p, base, "remove 2030", func(tx Tx) error {
			return tx.RemovePar(ctx, "demand", demandRows(0)[:1])
		})
		if err != nil {
			t.Fatal(err)
		}
		rows, err := p.Pars(ctx, base, "demand")
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 1 || rows[0].Year != 2040 {
			t.Errorf("have %v", rows)
		}
	})

	if _, err := p.Get(ctx, Ref{Model: model, Scenario: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing scenario: have %v", err)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory("local")
	testPlatform(t, m, func(model, scenario string) (Ref, error) {
		return m.Create(context.Background(), model, scenario)
	})
}

func TestMemorySolution(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("local")
	ref, _ := m.Create(ctx, "m", "s")
	if err := m.SetSolution(ctx, ref, "ACT", demandRows(3)); err != nil {
		t.Fatal(err)
	}
	s, _ := m.Get(ctx, ref)
	if !s.Solved {
		t.Error("should be solved")
	}
	if err := WithCheckout(ctx, m, ref, "edit", func(Tx) error { return nil }); err != nil {
		t.Fatal(err)
	}
	rows, err := m.Solution(ctx, ref, "ACT")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("solution should be removed on commit: %v", rows)
	}
}

func TestWithCheckoutPanic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("local")
	ref, _ := m.Create(ctx, "m", "s")
	func() {
		defer func() {
			if r := recover(); r == nil || !strings.Contains(fmt.Sprint(r), "boom") {
				t.Errorf("recovered %v", r)
			}
		}()
		WithCheckout(ctx, m, ref, "panic", func(tx Tx) error {
			tx.AddPar(ctx, "demand", demandRows(1))
			panic("boom")
		})
	}()
	tx, err := m.Checkout(ctx, ref)
	if err != nil {
		t.Fatalf("scenario still locked after panic: %v", err)
	}
	tx.Rollback(ctx)
	if rows, _ := m.Pars(ctx, ref, "demand"); len(rows) != 0 {
		t.Errorf("changes committed: %v", rows)
	}
}
