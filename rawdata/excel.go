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
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/ctessum/requestcache"
	"github.com/tealeg/xlsx"
)

// workbooks keeps parsed workbooks in memory, keyed by path, so that
// series, category and efficiency tables read from different sheets of
// one workbook parse it once.
var (
	workbooks     *requestcache.Cache
	workbooksOnce sync.Once
)

// openWorkbook returns the parsed workbook at path.
func openWorkbook(path string) (*xlsx.File, error) {
	workbooksOnce.Do(func() {
		workbooks = requestcache.NewCache(func(_ context.Context, req interface{}) (interface{}, error) {
			f, err := xlsx.OpenFile(req.(string))
			if err != nil {
				return nil, fmt.Errorf("rawdata: opening workbook: %v", err)
			}
			return f, nil
		}, runtime.GOMAXPROCS(-1), requestcache.Memory(100))
	})
	res, err := workbooks.NewRequest(context.Background(), path, path).Result()
	if err != nil {
		return nil, err
	}
	return res.(*xlsx.File), nil
}

// missingCell reports whether a cell holds no data. Such cells are skipped
// rather than read as zero.
func missingCell(s string) bool {
	switch s {
	case "", "...", "..", "NA", "n/a", "N/A":
		return true
	}
	return false
}

// ReadSeriesXLSX reads a wide-format table from the given sheet of an Excel
// file: the first row holds a location column title followed by years, and
// each following row holds a location followed by one value per year.
func ReadSeriesXLSX(fileName, sheet, name, unit string) (*Series, error) {
	f, err := openWorkbook(fileName)
	if err != nil {
		return nil, err
	}
	source := fileName + "[" + sheet + "]"
	s, ok := f.Sheet[sheet]
	if !ok {
		return nil, &SchemaError{Source: source, Reason: "no such sheet"}
	}
	if s.MaxRow < 2 || s.MaxCol < 2 {
		return nil, &SchemaError{Source: source, Reason: "sheet needs a header row, a location column, and at least one year column"}
	}

	years := make([]int, s.MaxCol)
	for i := 1; i < s.MaxCol; i++ {
		v := strings.TrimSpace(s.Cell(0, i).Value)
		if v == "" {
			years[i] = -1
			continue
		}
		// Year headers may be stored as numbers, e.g. "2010.0".
		yf, err := strconv.ParseFloat(v, 64)
		if err != nil || yf != float64(int(yf)) {
			return nil, &SchemaError{Source: source, Line: 1, Column: v, Reason: "column header is not a year"}
		}
		years[i] = int(yf)
	}

	o := NewSeries(name, unit)
	for j := 1; j < s.MaxRow; j++ {
		loc := strings.TrimSpace(s.Cell(j, 0).Value)
		if loc == "" {
			continue
		}
		if _, dup := o.Values[loc]; dup {
			return nil, &SchemaError{Source: source, Line: j + 1, Reason: fmt.Sprintf("duplicate location %s", loc)}
		}
		for i := 1; i < s.MaxCol; i++ {
			if years[i] < 0 {
				continue
			}
			cell := strings.TrimSpace(s.Cell(j, i).Value)
			if missingCell(cell) {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, &SchemaError{Source: source, Line: j + 1, Column: strconv.Itoa(years[i]),
					Reason: fmt.Sprintf("%q is not a number", cell)}
			}
			o.Set(loc, years[i], v)
		}
	}
	if len(o.Values) == 0 {
		return nil, &SchemaError{Source: source, Reason: "no data rows"}
	}
	return o, nil
}
