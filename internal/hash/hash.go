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

// Package hash creates fingerprints of model inputs, so that a scenario
// can record exactly which data and settings it was built from.
package hash

import (
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"sort"

	"github.com/davecgh/go-spew/spew"
)

// printer prints maps in key order, so that equal values give equal keys.
var printer = spew.ConfigState{
	Indent:                  " ",
	SortKeys:                true,
	DisableMethods:          true,
	SpewKeys:                true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// Hash returns a hash key for the specified object.
func Hash(object interface{}) string {
	h := fnv.New128a()
	printer.Fprintf(h, "%#v", object)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Files returns a hash key for the contents of the named files. The
// order of the names does not matter.
func Files(names ...string) (string, error) {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	h := fnv.New128a()
	for _, name := range sorted {
		f, err := os.Open(name)
		if err != nil {
			return "", fmt.Errorf("hash: %v", err)
		}
		fmt.Fprintf(h, "%s\x00", name)
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("hash: reading %s: %v", name, err)
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
