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

// Package report builds IAMC-format tables (Model, Scenario, Region,
// Variable, Unit and one column per year) from demand projections and
// scenario data, and writes them as CSV, Excel or charts.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/mixmodels"
	"github.com/spatialmodel/mixmodels/codelist"
	"github.com/spatialmodel/mixmodels/platform"
)

// Row is one row of an IAMC table.
type Row struct {
	Model    string
	Scenario string
	Region   string
	Variable string
	Unit     string
	Values   map[int]float64
}

func (r *Row) key() string {
	return strings.Join([]string{r.Model, r.Scenario, r.Region, r.Variable, r.Unit}, "\x00")
}

// Table is an IAMC table.
type Table struct {
	Rows []*Row

	index map[string]*Row
}

// add adds v to the row with the given identifiers, creating the row if
// needed.
func (t *Table) add(model, scenario, region, variable, unit string, year int, v float64) {
	r := &Row{Model: model, Scenario: scenario, Region: region, Variable: variable, Unit: unit}
	if t.index == nil {
		t.index = make(map[string]*Row)
		for _, rr := range t.Rows {
			t.index[rr.key()] = rr
		}
	}
	if rr, ok := t.index[r.key()]; ok {
		r = rr
	} else {
		r.Values = make(map[int]float64)
		t.Rows = append(t.Rows, r)
		t.index[r.key()] = r
	}
	r.Values[year] += v
}

// Years returns the sorted years that have a value in any row.
func (t *Table) Years() []int {
	m := make(map[int]struct{})
	for _, r := range t.Rows {
		for y := range r.Values {
			m[y] = struct{}{}
		}
	}
	o := make([]int, 0, len(m))
	for y := range m {
		o = append(o, y)
	}
	sort.Ints(o)
	return o
}

// Variables returns the sorted names of the variables in the table.
func (t *Table) Variables() []string {
	m := make(map[string]struct{})
	for _, r := range t.Rows {
		m[r.Variable] = struct{}{}
	}
	o := make([]string, 0, len(m))
	for v := range m {
		o = append(o, v)
	}
	sort.Strings(o)
	return o
}

// Sort sorts the rows by model, scenario, region, variable and unit.
func (t *Table) Sort() {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		a, b := t.Rows[i], t.Rows[j]
		switch {
		case a.Model != b.Model:
			return a.Model < b.Model
		case a.Scenario != b.Scenario:
			return a.Scenario < b.Scenario
		case a.Region != b.Region:
			return a.Region < b.Region
		case a.Variable != b.Variable:
			return a.Variable < b.Variable
		}
		return a.Unit < b.Unit
	})
}

// Merge adds the rows of o to t. Values of rows present in both tables
// are summed.
func (t *Table) Merge(o *Table) {
	for _, r := range o.Rows {
		for y, v := range r.Values {
			t.add(r.Model, r.Scenario, r.Region, r.Variable, r.Unit, y, v)
		}
	}
	t.Sort()
}

// AddTotal adds rows for variable holding the sum of the variables named
// variable|.... Only the lowest level of the hierarchy is summed, so
// that existing subtotals are not counted twice.
func (t *Table) AddTotal(variable string) {
	prefix := variable + "|"
	vars := t.Variables()
	leaf := func(v string) bool {
		for _, vv := range vars {
			if strings.HasPrefix(vv, v+"|") {
				return false
			}
		}
		return true
	}
	rows := append([]*Row(nil), t.Rows...)
	for _, r := range rows {
		if !strings.HasPrefix(r.Variable, prefix) || !leaf(r.Variable) {
			continue
		}
		for y, v := range r.Values {
			t.add(r.Model, r.Scenario, r.Region, variable, r.Unit, y, v)
		}
	}
	t.Sort()
}

// AddRegion adds rows for a region, such as World, holding the sum of
// every other region. Variables that already have a row for region are
// left unchanged.
func (t *Table) AddRegion(region string) {
	type key struct{ model, scenario, variable, unit string }
	have := make(map[key]bool)
	for _, r := range t.Rows {
		if r.Region == region {
			have[key{r.Model, r.Scenario, r.Variable, r.Unit}] = true
		}
	}
	rows := append([]*Row(nil), t.Rows...)
	for _, r := range rows {
		if r.Region == region || have[key{r.Model, r.Scenario, r.Variable, r.Unit}] {
			continue
		}
		for y, v := range r.Values {
			t.add(r.Model, r.Scenario, region, r.Variable, r.Unit, y, v)
		}
	}
	t.Sort()
}

// Namer gives the IAMC variable names of commodities.
type Namer struct {
	// Prefix is prepended to each name, for example "Useful Energy".
	Prefix string

	// Commodities, if not nil, holds the names in the "report"
	// annotation of each code.
	Commodities *codelist.List
}

var sectorNames = map[mixmodels.Sector]string{
	mixmodels.ResidentialThermal:   "Residential and Commercial|Thermal",
	mixmodels.ResidentialSpecific:  "Residential and Commercial|Specific",
	mixmodels.IndustrialThermal:    "Industry|Thermal",
	mixmodels.IndustrialSpecific:   "Industry|Specific",
	mixmodels.IndustrialFeedstock:  "Industry|Feedstocks",
	mixmodels.Transportation:       "Transportation",
	mixmodels.NonCommercialBiomass: "Residential and Commercial|Non-Commercial Biomass",
}

// Name returns the variable name of commodity.
func (n Namer) Name(commodity string) string {
	name := commodity
	if s, ok := mixmodels.SectorFromCommodity(commodity); ok {
		name = sectorNames[s]
	}
	if n.Commodities != nil {
		if c, err := n.Commodities.Code(commodity); err == nil {
			if r, ok := c.StringAnnotation("report"); ok && r != "" {
				name = r
			}
		}
	}
	if n.Prefix == "" {
		return name
	}
	return n.Prefix + "|" + name
}

// Builder creates IAMC tables.
type Builder struct {
	Model    string
	Scenario string
	Namer    Namer

	// Unit is the unit of the table. If empty, values keep their unit.
	Unit string

	Log logrus.FieldLogger
}

func (b *Builder) convert(v float64, from string) (float64, string, error) {
	if b.Unit == "" || from == b.Unit {
		return v, from, nil
	}
	c, err := Convert(v, from, b.Unit)
	if err != nil {
		return 0, "", err
	}
	return c, b.Unit, nil
}

// FromRecords returns a table of demand projections.
func (b *Builder) FromRecords(recs []mixmodels.Record) (*Table, error) {
	t := new(Table)
	for _, r := range recs {
		v, u, err := b.convert(r.Value, r.Unit)
		if err != nil {
			return nil, fmt.Errorf("report: %s %s %d: %w", r.Region, r.Sector, r.Year, err)
		}
		t.add(b.Model, b.Scenario, r.Region, b.Namer.Name(r.Sector.Commodity()), u, r.Year, v)
	}
	t.Sort()
	return t, nil
}

// FromRows returns a table of the rows of a parameter or solution
// variable. Rows are named by their commodity or, if they have none,
// their technology. Rows that map to the same name are summed.
func (b *Builder) FromRows(rows []platform.ParRow) (*Table, error) {
	t := new(Table)
	for _, r := range rows {
		v, u, err := b.convert(r.Value, r.Unit)
		if err != nil {
			return nil, fmt.Errorf("report: %s %s %d: %w", r.Node, r.Commodity, r.Year, err)
		}
		name := r.Commodity
		if name == "" {
			name = r.Technology
		}
		if name == "" {
			if b.Log != nil {
				b.Log.WithFields(logrus.Fields{"region": r.Node, "year": r.Year}).Warn("report: skipping row with no commodity or technology")
			}
			continue
		}
		t.add(b.Model, b.Scenario, r.Node, b.Namer.Name(name), u, r.Year, v)
	}
	t.Sort()
	return t, nil
}
