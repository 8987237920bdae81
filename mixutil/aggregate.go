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
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/spatialmodel/mixmodels/aggregate"
	"github.com/spatialmodel/mixmodels/cloud"
	"github.com/spatialmodel/mixmodels/rawdata"
	"github.com/spf13/cobra"
)

func (cfg *Cfg) aggregateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate country data to model regions.",
		Long: `aggregate sums the country data in Aggregate.Input to the regions of
the node code list given by --regions, or, if Aggregate.Weights is set,
computes the mean weighted by the weights. The result is written as CSV
with node, year and value columns.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			s, err := cfg.aggregate()
			if err != nil {
				return err
			}
			b, err := seriesCSV(s)
			if err != nil {
				return err
			}
			if loc := cfg.getString("output"); loc != "" {
				if err := cloud.WriteFile(ctx, loc, b); err != nil {
					return err
				}
				cfg.Log.WithField("file", loc).Info("wrote aggregated data")
				return nil
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
		DisableAutoGenTag: true,
	}
}

func (cfg *Cfg) aggregate() (*rawdata.Series, error) {
	m, err := cfg.regions(cfg.GetInt("Aggregate.Depth"))
	if err != nil {
		return nil, err
	}
	policy, err := aggregate.ParseMissing(cfg.GetString("missing"))
	if err != nil {
		return nil, err
	}
	in := cfg.getString("Aggregate.Input")
	if in == "" {
		return nil, fmt.Errorf("mixutil: Aggregate.Input is not set")
	}
	data, err := rawdata.OpenSeries(in, "data", "input", rawdata.Schema{})
	if err != nil {
		return nil, err
	}
	var (
		o   *rawdata.Series
		rep *aggregate.Report
	)
	if w := cfg.getString("Aggregate.Weights"); w != "" {
		weights, err := rawdata.OpenSeries(w, "data", "weights", rawdata.Schema{})
		if err != nil {
			return nil, err
		}
		if o, rep, err = m.WeightedMeanSeries(data, weights, policy); err != nil {
			return nil, err
		}
	} else {
		o, rep = m.SumSeries(data, policy)
	}
	rep.Log(cfg.Log, in)
	return o, nil
}

// seriesCSV writes s as CSV with node, year and value columns.
func seriesCSV(s *rawdata.Series) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	if err := w.Write([]string{"node", "year", "value"}); err != nil {
		return nil, err
	}
	for _, loc := range s.Locations() {
		for _, y := range s.LocationYears(loc) {
			v, _ := s.At(loc, y)
			if err := w.Write([]string{loc, strconv.Itoa(y), strconv.FormatFloat(v, 'g', -1, 64)}); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
