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

// Package rawdata reads the historical and projected input tables (GDP,
// population, final energy, efficiencies, calibration values) from CSV
// and Microsoft Excel files and validates them against a schema.
package rawdata

import (
	"fmt"
	"sort"
)

// SchemaError is returned when an input table does not match its schema.
// No partially read table is returned together with a SchemaError.
type SchemaError struct {
	Source string
	// Line is the 1-based line (CSV) or row (Excel) number, or 0 if the
	// error concerns the table as a whole.
	Line   int
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	s := "rawdata: " + e.Source
	if e.Line > 0 {
		s += fmt.Sprintf(":%d", e.Line)
	}
	if e.Column != "" {
		s += fmt.Sprintf(": column %q", e.Column)
	}
	return s + ": " + e.Reason
}

// Series is a table of values by location (country, region, or other raw
// unit) and year.
type Series struct {
	Name string
	Unit string

	// Header holds the comment block at the top of the source file.
	Header []string

	Values map[string]map[int]float64
}

// NewSeries returns an empty series.
func NewSeries(name, unit string) *Series {
	return &Series{Name: name, Unit: unit, Values: make(map[string]map[int]float64)}
}

// Set sets the value for loc and year.
func (s *Series) Set(loc string, year int, v float64) {
	m, ok := s.Values[loc]
	if !ok {
		m = make(map[int]float64)
		s.Values[loc] = m
	}
	m[year] = v
}

// At returns the value for loc and year.
func (s *Series) At(loc string, year int) (float64, bool) {
	v, ok := s.Values[loc][year]
	return v, ok
}

// Locations returns the sorted locations in s.
func (s *Series) Locations() []string {
	o := make([]string, 0, len(s.Values))
	for l := range s.Values {
		o = append(o, l)
	}
	sort.Strings(o)
	return o
}

// Years returns the sorted union of years in s.
func (s *Series) Years() []int {
	seen := make(map[int]bool)
	var o []int
	for _, m := range s.Values {
		for y := range m {
			if !seen[y] {
				seen[y] = true
				o = append(o, y)
			}
		}
	}
	sort.Ints(o)
	return o
}

// LocationYears returns the sorted years with values for loc.
func (s *Series) LocationYears(loc string) []int {
	var o []int
	for y := range s.Values[loc] {
		o = append(o, y)
	}
	sort.Ints(o)
	return o
}

// Year returns the values of every location for the given year.
func (s *Series) Year(year int) map[string]float64 {
	o := make(map[string]float64)
	for l, m := range s.Values {
		if v, ok := m[year]; ok {
			o[l] = v
		}
	}
	return o
}

// Interpolate returns a copy of s with values at the given years added by
// linear interpolation between the nearest available years of each
// location. Existing values are kept. It is an error to request a year
// outside the range of a location's data.
func (s *Series) Interpolate(years []int) (*Series, error) {
	o := NewSeries(s.Name, s.Unit)
	o.Header = s.Header
	for loc, m := range s.Values {
		have := s.LocationYears(loc)
		for _, y := range have {
			o.Set(loc, y, m[y])
		}
		for _, y := range years {
			if _, ok := m[y]; ok {
				continue
			}
			i := sort.SearchInts(have, y)
			if i == 0 || i == len(have) {
				return nil, fmt.Errorf("rawdata: %s: cannot interpolate %s to %d outside of data range", s.Name, loc, y)
			}
			y0, y1 := have[i-1], have[i]
			f := float64(y-y0) / float64(y1-y0)
			o.Set(loc, y, m[y0]+f*(m[y1]-m[y0]))
		}
	}
	return o, nil
}

// Efficiency holds ratios of useful to final energy by location and
// category.
type Efficiency map[string]map[string]float64

// CalibrationRow is a row of a calibration table.
type CalibrationRow struct {
	Keys  map[string]string
	Value float64
}

// CalibrationTable is a flat table of key columns and a value, such as
// `node,technology,value`.
type CalibrationTable struct {
	Name   string
	Header []string

	// Columns are the key column names in file order.
	Columns []string
	Rows    []CalibrationRow
}
