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

package codelist

import (
	"fmt"
	"sort"
	"strconv"
)

// Period is a time period of the model, identified by its year.
type Period struct {
	Year int

	// Duration is the number of years since the previous period. The first
	// period takes the duration of the second one.
	Duration int

	// ModelYear is false for periods that only carry historical data.
	ModelYear bool
}

// Periods interprets every code in l as a year and returns the periods in
// chronological order. Whether a period is a model year is read from the
// `model_year` annotation, which defaults to true.
func Periods(l *List) ([]Period, error) {
	var o []Period
	seen := make(map[int]bool)
	for _, id := range l.IDs() {
		y, err := strconv.Atoi(id)
		if err != nil {
			return nil, &StructureError{Source: l.Source, Code: id, Reason: "year code is not an integer"}
		}
		if seen[y] {
			return nil, &StructureError{Source: l.Source, Code: id, Reason: "duplicate year"}
		}
		seen[y] = true
		c, _ := l.Code(id)
		m, err := c.BoolAnnotation("model_year", true)
		if err != nil {
			return nil, err
		}
		o = append(o, Period{Year: y, ModelYear: m})
	}
	if len(o) == 0 {
		return nil, &StructureError{Source: l.Source, Reason: "no periods"}
	}
	sort.Slice(o, func(i, j int) bool { return o[i].Year < o[j].Year })
	for i := 1; i < len(o); i++ {
		o[i].Duration = o[i].Year - o[i-1].Year
	}
	if len(o) > 1 {
		o[0].Duration = o[1].Duration
	} else {
		o[0].Duration = 1
	}
	return o, nil
}

// ModelYears returns the years of the model periods in p.
func ModelYears(p []Period) []int {
	var o []int
	for _, pp := range p {
		if pp.ModelYear {
			o = append(o, pp.Year)
		}
	}
	return o
}

// ParseYears parses a list of years, each either a single year ("2050")
// or an inclusive range with a step ("2020:2060:10").
func ParseYears(s []string) ([]int, error) {
	var o []int
	for _, v := range s {
		var a, b, step int
		n, err := fmt.Sscanf(v, "%d:%d:%d", &a, &b, &step)
		switch {
		case err == nil && n == 3:
			if step <= 0 || b < a {
				return nil, fmt.Errorf("codelist: invalid year range %q", v)
			}
			for y := a; y <= b; y += step {
				o = append(o, y)
			}
		default:
			y, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("codelist: invalid year %q", v)
			}
			o = append(o, y)
		}
	}
	sort.Ints(o)
	for i := 1; i < len(o); i++ {
		if o[i] == o[i-1] {
			return nil, fmt.Errorf("codelist: year %d given more than once", o[i])
		}
	}
	return o, nil
}
