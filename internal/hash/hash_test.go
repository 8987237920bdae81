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

package hash

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestHash(t *testing.T) {
	type params struct {
		Name   string
		Values map[string]float64
	}
	a := params{Name: "SSP2", Values: map[string]float64{"x": 1, "y": 2, "z": math.NaN()}}
	b := params{Name: "SSP2", Values: map[string]float64{"z": math.NaN(), "y": 2, "x": 1}}
	c := params{Name: "SSP1", Values: map[string]float64{"x": 1, "y": 2, "z": math.NaN()}}
	if Hash(a) != Hash(b) {
		t.Error("equal values give different keys")
	}
	if Hash(a) == Hash(c) {
		t.Error("different values give equal keys")
	}
	if len(Hash(a)) != 32 {
		t.Errorf("key %q should have 32 characters", Hash(a))
	}
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	write := func(name, s string) {
		if err := os.WriteFile(name, []byte(s), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write(a, "1,2\n")
	write(b, "3,4\n")
	h1, err := Files(a, b)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := Files(b, a)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Error("order should not matter")
	}
	write(b, "3,5\n")
	h3, err := Files(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if h3 == h1 {
		t.Error("changed contents give equal keys")
	}
	if _, err := Files(filepath.Join(dir, "missing")); err == nil {
		t.Error("no error for missing file")
	}
}
