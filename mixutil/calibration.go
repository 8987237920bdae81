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

package mixutil

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spatialmodel/mixmodels/platform"
	"github.com/spatialmodel/mixmodels/rawdata"
)

// calibrationPars returns a function that reads the calibration files
// listed in the given option. Each file is a parameter named after the
// file.
func calibrationPars(option string) func(context.Context, *Cfg) (map[string][]platform.ParRow, []string, error) {
	return func(_ context.Context, cfg *Cfg) (map[string][]platform.ParRow, []string, error) {
		files := cfg.getStringSlice(option)
		if len(files) == 0 {
			return nil, nil, fmt.Errorf("mixutil: %s lists no calibration files", option)
		}
		o := make(map[string][]platform.ParRow)
		for _, f := range files {
			t, err := rawdata.OpenCalibration(f)
			if err != nil {
				return nil, nil, err
			}
			rows, err := calibrationRows(t)
			if err != nil {
				return nil, nil, err
			}
			o[t.Name] = append(o[t.Name], rows...)
		}
		return o, files, nil
	}
}

// calibrationRows converts a calibration table to parameter rows.
func calibrationRows(t *rawdata.CalibrationTable) ([]platform.ParRow, error) {
	o := make([]platform.ParRow, len(t.Rows))
	for i, r := range t.Rows {
		p := &o[i]
		p.Value = r.Value
		for _, c := range t.Columns {
			v := r.Keys[c]
			switch c {
			case "node":
				p.Node = v
			case "commodity":
				p.Commodity = v
			case "level":
				p.Level = v
			case "technology":
				p.Technology = v
			case "mode":
				p.Mode = v
			case "time":
				p.Time = v
			case "unit":
				p.Unit = v
			case "year":
				y, err := strconv.Atoi(v)
				if err != nil {
					return nil, fmt.Errorf("mixutil: %s: invalid year %q", t.Name, v)
				}
				p.Year = y
			default:
				return nil, fmt.Errorf("mixutil: %s: unknown column %q", t.Name, c)
			}
		}
	}
	return o, nil
}
