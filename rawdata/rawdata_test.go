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

package rawdata

import (
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/tealeg/xlsx"
)

const gdpCSV = `# GDP at purchasing power parity.
# Source: synthetic test data.
node,year,value
US,2000,10
US,2010,20
CA,2000,1
CA,2010,1.5
`

func TestReadSeriesCSV(t *testing.T) {
	o, err := ReadSeriesCSV(strings.NewReader(gdpCSV), "gdp", Schema{Unit: "billion USD"})
	if err != nil {
		t.Fatal(err)
	}
	s := o[""]
	if s.Unit != "billion USD" {
		t.Errorf("unit: %q", s.Unit)
	}
	if !reflect.DeepEqual(s.Header, []string{"GDP at purchasing power parity.", "Source: synthetic test data."}) {
		t.Errorf("header: %q", s.Header)
	}
	if v, ok := s.At("CA", 2010); !ok || v != 1.5 {
		t.Errorf("CA 2010: %g, %v", v, ok)
	}
	if !reflect.DeepEqual(s.Locations(), []string{"CA", "US"}) {
		t.Errorf("locations: %v", s.Locations())
	}
	if !reflect.DeepEqual(s.Years(), []int{2000, 2010}) {
		t.Errorf("years: %v", s.Years())
	}
	if !reflect.DeepEqual(s.Year(2000), map[string]float64{"US": 10, "CA": 1}) {
		t.Errorf("year 2000: %v", s.Year(2000))
	}
}

func TestReadSeriesCSVCategory(t *testing.T) {
	const in = `country,year,sector,value
US,2000,transportation,3
US,2000,residential-thermal,2
`
	o, err := ReadSeriesCSV(strings.NewReader(in), "fe", Schema{
		Location:   "country",
		Category:   "sector",
		Categories: []string{"transportation", "residential-thermal"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(o) != 2 {
		t.Fatalf("have %d categories", len(o))
	}
	if v, _ := o["transportation"].At("US", 2000); v != 3 {
		t.Errorf("transportation: %g", v)
	}
	if o["transportation"].Name != "fe|transportation" {
		t.Errorf("name: %q", o["transportation"].Name)
	}
}

func TestSchemaErrors(t *testing.T) {
	tests := []struct {
		name, in string
		schema   Schema
		line     int
		column   string
	}{
		{
			name:   "missing column",
			in:     "# header\nnode,value\nUS,1\n",
			line:   2,
			column: "year",
		},
		{
			name:   "not a number",
			in:     "node,year,value\nUS,2000,1\nUS,2010,abc\n",
			line:   3,
			column: "value",
		},
		{
			name:   "not a year",
			in:     "node,year,value\nUS,20x0,1\n",
			line:   2,
			column: "year",
		},
		{
			name: "duplicate",
			in:   "node,year,value\nUS,2000,1\nUS,2000,2\n",
			line: 3,
		},
		{
			name:   "empty",
			in:     "node,year,value\n,2000,1\n",
			line:   2,
			column: "node",
		},
		{
			name:   "unknown category",
			in:     "node,year,sector,value\nUS,2000,aviation,1\n",
			schema: Schema{Category: "sector", Categories: []string{"transportation"}},
			line:   2,
			column: "sector",
		},
		{
			name: "no rows",
			in:   "node,year,value\n",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			o, err := ReadSeriesCSV(strings.NewReader(test.in), "test", test.schema)
			if o != nil {
				t.Errorf("partial result returned: %v", o)
			}
			var serr *SchemaError
			if !errors.As(err, &serr) {
				t.Fatalf("have %v, want SchemaError", err)
			}
			if serr.Line != test.line || serr.Column != test.column {
				t.Errorf("have line %d column %q, want %d %q (%v)", serr.Line, serr.Column, test.line, test.column, err)
			}
		})
	}
}

func TestReadEfficiencyCSV(t *testing.T) {
	const in = `node,sector,value
US,transportation,0.2
US,residential-thermal,0.6
`
	e, err := ReadEfficiencyCSV(strings.NewReader(in), "eff", Schema{Category: "sector"})
	if err != nil {
		t.Fatal(err)
	}
	if e["US"]["transportation"] != 0.2 {
		t.Errorf("have %v", e)
	}
	_, err = ReadEfficiencyCSV(strings.NewReader("node,sector,value\nUS,transportation,0\n"), "eff", Schema{Category: "sector"})
	var serr *SchemaError
	if !errors.As(err, &serr) {
		t.Errorf("zero efficiency: have %v, want SchemaError", err)
	}
}

func TestReadCalibrationCSV(t *testing.T) {
	const in = `# Share of cooling technologies in 2020.
#
# Values are fractions of total cooling capacity.
node,technology,value
R12_AFR,coal_ppl__ot_fresh,0.3
R12_AFR,coal_ppl__cl_fresh,0.7
`
	c, err := ReadCalibrationCSV(strings.NewReader(in), "cooltech_share")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(c.Columns, []string{"node", "technology"}) {
		t.Errorf("columns: %v", c.Columns)
	}
	if len(c.Header) != 3 {
		t.Errorf("header: %q", c.Header)
	}
	if len(c.Rows) != 2 || c.Rows[1].Keys["technology"] != "coal_ppl__cl_fresh" || c.Rows[1].Value != 0.7 {
		t.Errorf("rows: %+v", c.Rows)
	}

	_, err = ReadCalibrationCSV(strings.NewReader("node,technology,value\nA,b,1\nA,b,2\n"), "dup")
	var serr *SchemaError
	if !errors.As(err, &serr) || serr.Line != 3 {
		t.Errorf("duplicate: have %v", err)
	}
}

func TestInterpolate(t *testing.T) {
	s := NewSeries("gdp", "")
	s.Set("US", 2000, 10)
	s.Set("US", 2010, 20)
	o, err := s.Interpolate([]int{2005, 2010})
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := o.At("US", 2005); v != 15 {
		t.Errorf("2005: %g", v)
	}
	if _, err := s.Interpolate([]int{2020}); err == nil {
		t.Error("extrapolation should fail")
	}
}

func writeXLSX(t *testing.T, path string, rows [][]string) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("GDP")
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	if err := f.Save(path); err != nil {
		t.Fatal(err)
	}
}

func TestReadSeriesXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gdp.xlsx")
	writeXLSX(t, path, [][]string{
		{"Region", "2000", "2010", "2020"},
		{"US", "10", "20", "..."},
		{"CA", "1", "", "2"},
	})
	s, err := OpenSeries(path, "GDP", "gdp", Schema{Unit: "billion USD"})
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := s.At("US", 2010); !ok || v != 20 {
		t.Errorf("US 2010: %g %v", v, ok)
	}
	if _, ok := s.At("US", 2020); ok {
		t.Error("missing cell should be absent")
	}
	if _, ok := s.At("CA", 2010); ok {
		t.Error("empty cell should be absent")
	}
	if v, _ := s.At("CA", 2020); v != 2 {
		t.Errorf("CA 2020: %g", v)
	}

	if _, err := ReadSeriesXLSX(path, "Population", "pop", ""); err == nil {
		t.Error("missing sheet should fail")
	}

	bad := filepath.Join(t.TempDir(), "bad.xlsx")
	writeXLSX(t, bad, [][]string{{"Region", "year2000"}, {"US", "1"}})
	var serr *SchemaError
	if _, err := ReadSeriesXLSX(bad, "GDP", "gdp", ""); !errors.As(err, &serr) {
		t.Errorf("bad header: have %v, want SchemaError", err)
	}
}
