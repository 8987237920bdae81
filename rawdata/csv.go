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
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Schema describes the columns of a long-format input table.
type Schema struct {
	// Location, Year, and Value are the names of the location, year, and
	// value columns. Empty names take the defaults "node", "year", and
	// "value". Year is ignored by readers of tables without a year.
	Location, Year, Value string

	// Category is the name of an optional categorical column, for example
	// "sector". Categories lists its allowed values; other values are
	// rejected.
	Category   string
	Categories []string

	// Unit is assigned to the returned series.
	Unit string
}

func (s Schema) withDefaults() Schema {
	if s.Location == "" {
		s.Location = "node"
	}
	if s.Year == "" {
		s.Year = "year"
	}
	if s.Value == "" {
		s.Value = "value"
	}
	return s
}

// table is a CSV file split into its comment header, column names, and
// records.
type table struct {
	source  string
	header  []string
	columns map[string]int
	names   []string
	records [][]string
	// offset is the number of lines before the column name line.
	offset int
}

// readTable reads a CSV file whose leading lines starting with '#' form a
// prose header block.
func readTable(r io.Reader, source string) (*table, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("rawdata: reading %s: %v", source, err)
	}
	t := &table{source: source, columns: make(map[string]int)}
	var consumed int
	for consumed < len(b) {
		end := bytes.IndexByte(b[consumed:], '\n')
		if end < 0 {
			end = len(b) - consumed
		}
		line := strings.TrimSpace(string(b[consumed : consumed+end]))
		if !strings.HasPrefix(line, "#") {
			break
		}
		t.header = append(t.header, strings.TrimSpace(strings.TrimPrefix(line, "#")))
		consumed += end + 1
		t.offset++
	}
	if consumed > len(b) {
		consumed = len(b)
	}
	cr := csv.NewReader(bytes.NewReader(b[consumed:]))
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, &SchemaError{Source: source, Reason: err.Error()}
	}
	if len(records) == 0 {
		return nil, &SchemaError{Source: source, Reason: "no column names"}
	}
	for i, name := range records[0] {
		name = strings.TrimSpace(name)
		if _, ok := t.columns[name]; ok {
			return nil, &SchemaError{Source: source, Line: t.offset + 1, Column: name, Reason: "duplicate column"}
		}
		t.columns[name] = i
		t.names = append(t.names, name)
	}
	t.records = records[1:]
	return t, nil
}

// line returns the file line number of record i.
func (t *table) line(i int) int { return t.offset + i + 2 }

func (t *table) require(cols ...string) error {
	for _, c := range cols {
		if _, ok := t.columns[c]; !ok {
			return &SchemaError{Source: t.source, Line: t.offset + 1, Column: c, Reason: "required column is missing"}
		}
	}
	return nil
}

func (t *table) str(i int, col string) (string, error) {
	v := strings.TrimSpace(t.records[i][t.columns[col]])
	if v == "" {
		return "", &SchemaError{Source: t.source, Line: t.line(i), Column: col, Reason: "empty value"}
	}
	return v, nil
}

func (t *table) float(i int, col string) (float64, error) {
	s, err := t.str(i, col)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &SchemaError{Source: t.source, Line: t.line(i), Column: col, Reason: fmt.Sprintf("%q is not a number", s)}
	}
	return v, nil
}

func (t *table) int(i int, col string) (int, error) {
	s, err := t.str(i, col)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &SchemaError{Source: t.source, Line: t.line(i), Column: col, Reason: fmt.Sprintf("%q is not an integer", s)}
	}
	return v, nil
}

func (t *table) category(i int, s Schema) (string, error) {
	c, err := t.str(i, s.Category)
	if err != nil {
		return "", err
	}
	if len(s.Categories) == 0 {
		return c, nil
	}
	for _, a := range s.Categories {
		if a == c {
			return c, nil
		}
	}
	return "", &SchemaError{Source: t.source, Line: t.line(i), Column: s.Category, Reason: fmt.Sprintf("unknown value %q", c)}
}

// ReadSeriesCSV reads a long-format table with location, year, and value
// columns. If schema.Category is set, the returned map holds one series per
// category; otherwise it holds a single series under the key "".
func ReadSeriesCSV(r io.Reader, name string, schema Schema) (map[string]*Series, error) {
	schema = schema.withDefaults()
	t, err := readTable(r, name)
	if err != nil {
		return nil, err
	}
	cols := []string{schema.Location, schema.Year, schema.Value}
	if schema.Category != "" {
		cols = append(cols, schema.Category)
	}
	if err := t.require(cols...); err != nil {
		return nil, err
	}
	o := make(map[string]*Series)
	for i := range t.records {
		loc, err := t.str(i, schema.Location)
		if err != nil {
			return nil, err
		}
		year, err := t.int(i, schema.Year)
		if err != nil {
			return nil, err
		}
		v, err := t.float(i, schema.Value)
		if err != nil {
			return nil, err
		}
		var cat string
		if schema.Category != "" {
			if cat, err = t.category(i, schema); err != nil {
				return nil, err
			}
		}
		s, ok := o[cat]
		if !ok {
			s = NewSeries(name, schema.Unit)
			if cat != "" {
				s.Name = name + "|" + cat
			}
			s.Header = t.header
			o[cat] = s
		}
		if _, dup := s.At(loc, year); dup {
			return nil, &SchemaError{Source: name, Line: t.line(i),
				Reason: fmt.Sprintf("duplicate entry for %s %d %s", loc, year, cat)}
		}
		s.Set(loc, year, v)
	}
	if len(o) == 0 {
		return nil, &SchemaError{Source: name, Reason: "no data rows"}
	}
	return o, nil
}

// ReadEfficiencyCSV reads a table with location, category, and value
// columns, for example final-to-useful efficiency ratios by country and
// sector. schema.Category must be set.
func ReadEfficiencyCSV(r io.Reader, name string, schema Schema) (Efficiency, error) {
	schema = schema.withDefaults()
	if schema.Category == "" {
		return nil, fmt.Errorf("rawdata: %s: efficiency schema needs a category column", name)
	}
	t, err := readTable(r, name)
	if err != nil {
		return nil, err
	}
	if err := t.require(schema.Location, schema.Category, schema.Value); err != nil {
		return nil, err
	}
	o := make(Efficiency)
	for i := range t.records {
		loc, err := t.str(i, schema.Location)
		if err != nil {
			return nil, err
		}
		cat, err := t.category(i, schema)
		if err != nil {
			return nil, err
		}
		v, err := t.float(i, schema.Value)
		if err != nil {
			return nil, err
		}
		if !(v > 0) {
			return nil, &SchemaError{Source: name, Line: t.line(i), Column: schema.Value,
				Reason: fmt.Sprintf("efficiency %g must be > 0", v)}
		}
		m, ok := o[loc]
		if !ok {
			m = make(map[string]float64)
			o[loc] = m
		}
		if _, dup := m[cat]; dup {
			return nil, &SchemaError{Source: name, Line: t.line(i), Reason: fmt.Sprintf("duplicate entry for %s %s", loc, cat)}
		}
		m[cat] = v
	}
	return o, nil
}

// ReadCalibrationCSV reads a flat calibration table: a comment header
// block followed by key columns and a "value" column, for example
// `node,technology,value`.
func ReadCalibrationCSV(r io.Reader, name string) (*CalibrationTable, error) {
	t, err := readTable(r, name)
	if err != nil {
		return nil, err
	}
	if err := t.require("value"); err != nil {
		return nil, err
	}
	o := &CalibrationTable{Name: name, Header: t.header}
	for _, c := range t.names {
		if c != "value" {
			o.Columns = append(o.Columns, c)
		}
	}
	if len(o.Columns) == 0 {
		return nil, &SchemaError{Source: name, Line: t.offset + 1, Reason: "no key columns"}
	}
	seen := make(map[string]bool)
	for i := range t.records {
		row := CalibrationRow{Keys: make(map[string]string, len(o.Columns))}
		var key []string
		for _, c := range o.Columns {
			v, err := t.str(i, c)
			if err != nil {
				return nil, err
			}
			row.Keys[c] = v
			key = append(key, v)
		}
		if row.Value, err = t.float(i, "value"); err != nil {
			return nil, err
		}
		k := strings.Join(key, "\x00")
		if seen[k] {
			return nil, &SchemaError{Source: name, Line: t.line(i), Reason: fmt.Sprintf("duplicate entry for %s", strings.Join(key, ","))}
		}
		seen[k] = true
		o.Rows = append(o.Rows, row)
	}
	return o, nil
}

// OpenSeries reads a series from a CSV or Excel file, depending on the file
// extension. sheet is only used for Excel files; CSV files with a category
// column are not accepted here.
func OpenSeries(path, sheet, name string, schema Schema) (*Series, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("rawdata: %v", err)
		}
		defer f.Close()
		schema.Category = ""
		o, err := ReadSeriesCSV(f, name, schema)
		if err != nil {
			return nil, err
		}
		return o[""], nil
	case ".xlsx":
		return ReadSeriesXLSX(path, sheet, name, schema.Unit)
	default:
		return nil, fmt.Errorf("rawdata: %s: unsupported file type", path)
	}
}

// OpenCategorySeries reads a long-format CSV file with a category column.
func OpenCategorySeries(path, name string, schema Schema) (map[string]*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rawdata: %v", err)
	}
	defer f.Close()
	return ReadSeriesCSV(f, name, schema)
}

// OpenEfficiency reads an efficiency CSV file.
func OpenEfficiency(path, name string, schema Schema) (Efficiency, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rawdata: %v", err)
	}
	defer f.Close()
	return ReadEfficiencyCSV(f, name, schema)
}

// OpenCalibration reads a calibration CSV file.
func OpenCalibration(path string) (*CalibrationTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rawdata: %v", err)
	}
	defer f.Close()
	return ReadCalibrationCSV(f, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
}
