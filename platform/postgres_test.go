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
	"os"
	"testing"

	"github.com/cenkalti/backoff/v4"
)

// testPostgres connects to the database given by the MIX_TEST_POSTGRES
// environment variable, for example
// postgres://postgres@localhost:5432/postgres?sslmode=disable.
func testPostgres(t *testing.T) *Postgres {
	dsn := os.Getenv("MIX_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("MIX_TEST_POSTGRES is not set")
	}
	ctx := context.Background()
	var p *Postgres
	err := backoff.Retry(func() error {
		var err error
		p, err = OpenPostgres(ctx, "test", dsn)
		return err
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 10))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPostgres(t *testing.T) {
	p := testPostgres(t)
	testPlatform(t, p, func(model, scenario string) (Ref, error) {
		return p.Create(context.Background(), model, scenario)
	})
}

func TestPostgresSolution(t *testing.T) {
	p := testPostgres(t)
	ctx := context.Background()
	ref, err := p.Create(ctx, "solution test", "s")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.SetSolution(ctx, ref, "ACT", demandRows(3)); err != nil {
		t.Fatal(err)
	}
	s, err := p.Get(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Solved {
		t.Error("should be solved")
	}
	if err := WithCheckout(ctx, p, ref, "edit", func(Tx) error { return nil }); err != nil {
		t.Fatal(err)
	}
	rows, err := p.Solution(ctx, ref, "ACT")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("solution should be removed on commit: %v", rows)
	}
	if _, err := p.Get(ctx, Ref{Model: "solution test", Scenario: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("have %v", err)
	}
}
