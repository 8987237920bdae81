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

package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/spatialmodel/mixmodels/cloud"
	"github.com/tealeg/xlsx"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

var header = []string{"Model", "Scenario", "Region", "Variable", "Unit"}

// records returns the table as text, header first. Missing values are
// empty.
func (t *Table) records() [][]string {
	years := t.Years()
	h := append([]string(nil), header...)
	for _, y := range years {
		h = append(h, strconv.Itoa(y))
	}
	o := [][]string{h}
	for _, r := range t.Rows {
		line := []string{r.Model, r.Scenario, r.Region, r.Variable, r.Unit}
		for _, y := range years {
			v, ok := r.Values[y]
			if !ok {
				line = append(line, "")
				continue
			}
			line = append(line, strconv.FormatFloat(v, 'g', -1, 64))
		}
		o = append(o, line)
	}
	return o
}

// WriteCSV writes the table in CSV format.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.records()); err != nil {
		return fmt.Errorf("report: writing CSV: %v", err)
	}
	return nil
}

// WriteXLSX writes the table to the "data" sheet of an Excel file.
func (t *Table) WriteXLSX(w io.Writer) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("data")
	if err != nil {
		return fmt.Errorf("report: writing Excel: %v", err)
	}
	for i, rec := range t.records() {
		row := sheet.AddRow()
		for j, v := range rec {
			cell := row.AddCell()
			if i == 0 || j < len(header) || v == "" {
				cell.SetString(v)
				continue
			}
			x, _ := strconv.ParseFloat(v, 64)
			cell.SetFloat(x)
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("report: writing Excel: %v", err)
	}
	return nil
}

// Plot writes a PNG line chart of variable, with one line per region.
func (t *Table) Plot(w io.Writer, variable string) error {
	p := plot.New()
	p.Title.Text = variable
	p.X.Label.Text = "Year"
	var lines []interface{}
	unit := ""
	for _, r := range t.Rows {
		if r.Variable != variable {
			continue
		}
		unit = r.Unit
		xy := make(plotter.XYs, 0, len(r.Values))
		for _, y := range t.Years() {
			if v, ok := r.Values[y]; ok {
				xy = append(xy, plotter.XY{X: float64(y), Y: v})
			}
		}
		lines = append(lines, r.Region, xy)
	}
	if len(lines) == 0 {
		return fmt.Errorf("report: no data for variable %q", variable)
	}
	p.Y.Label.Text = unit
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return fmt.Errorf("report: plotting %s: %v", variable, err)
	}
	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("report: plotting %s: %v", variable, err)
	}
	if _, err = wt.WriteTo(w); err != nil {
		return fmt.Errorf("report: plotting %s: %v", variable, err)
	}
	return nil
}

// Save writes the table to location, which is a local path or a blob
// URL such as gs://results/ssp2/report.xlsx. The format follows the
// file extension: .csv or .xlsx.
func (t *Table) Save(ctx context.Context, location string) error {
	var b bytes.Buffer
	switch ext := strings.ToLower(path.Ext(location)); ext {
	case ".csv":
		if err := t.WriteCSV(&b); err != nil {
			return err
		}
	case ".xlsx":
		if err := t.WriteXLSX(&b); err != nil {
			return err
		}
	default:
		return fmt.Errorf("report: %s: unsupported format %q", location, ext)
	}
	return cloud.WriteFile(ctx, location, b.Bytes())
}

// SavePlots writes one chart per variable into the directory dir, which
// is a local path or a blob URL. The files are named after the
// variables, with "|" replaced by "_".
func (t *Table) SavePlots(ctx context.Context, dir string) ([]string, error) {
	var files []string
	for _, v := range t.Variables() {
		var b bytes.Buffer
		if err := t.Plot(&b, v); err != nil {
			return files, err
		}
		name := strings.NewReplacer("|", "_", " ", "_", "/", "_").Replace(v) + ".png"
		loc := strings.TrimRight(dir, "/") + "/" + name
		if err := cloud.WriteFile(ctx, loc, b.Bytes()); err != nil {
			return files, err
		}
		files = append(files, loc)
	}
	return files, nil
}
