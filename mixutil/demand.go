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

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/mixmodels"
	"github.com/spatialmodel/mixmodels/aggregate"
	"github.com/spatialmodel/mixmodels/codelist"
	"github.com/spatialmodel/mixmodels/platform"
	"github.com/spatialmodel/mixmodels/rawdata"
	"github.com/spatialmodel/mixmodels/report"
	"github.com/spf13/cobra"
)

// sectorCategories are the allowed values of the sector column of final
// energy and efficiency files.
func sectorCategories() []string {
	var o []string
	for _, s := range mixmodels.Sectors {
		o = append(o, string(s), s.Commodity())
	}
	return o
}

// regions returns the mapping of countries to the regions of the node code
// list given by the regions option.
func (cfg *Cfg) regions(depth int) (*aggregate.Mapping, error) {
	l, err := codelist.Open(cfg.getString("data-dir"), "node", cfg.GetString("regions"), codelist.DefaultOptions("node"))
	if err != nil {
		return nil, err
	}
	return aggregate.NewMapping(l, depth)
}

// years returns the years to project. A single non-numeric value is the ID
// of a year code list.
func (cfg *Cfg) years() ([]int, error) {
	s := cfg.getStringSlice("years")
	if len(s) == 1 {
		if _, err := strconv.Atoi(s[0][:1]); err != nil {
			l, err := codelist.Open(cfg.getString("data-dir"), "year", s[0], codelist.DefaultOptions("year"))
			if err != nil {
				return nil, err
			}
			p, err := codelist.Periods(l)
			if err != nil {
				return nil, err
			}
			return codelist.ModelYears(p), nil
		}
	}
	return codelist.ParseYears(s)
}

// narrative returns the configured narrative.
func (cfg *Cfg) narrative() (*mixmodels.Narrative, string, error) {
	f := cfg.getString("narrative")
	if f == "" {
		return mixmodels.DefaultNarrative(), "", nil
	}
	n, err := mixmodels.ReadNarrative(f)
	return n, f, err
}

// demandInput reads the inputs of a demand projection. It also returns the
// names of the files that were read.
func (cfg *Cfg) demandInput() (*mixmodels.GeneratorInput, []string, error) {
	var files []string
	file := func(name string) (string, error) {
		f := cfg.getString(name)
		if f == "" {
			return "", fmt.Errorf("mixutil: %s is not set", name)
		}
		files = append(files, f)
		return f, nil
	}
	in := new(mixmodels.GeneratorInput)
	var err error
	if in.Mapping, err = cfg.regions(1); err != nil {
		return nil, nil, err
	}
	if in.Years, err = cfg.years(); err != nil {
		return nil, nil, err
	}
	sheet := cfg.GetString("Demand.Sheet")
	unit := cfg.GetString("Demand.Unit")

	series := func(name string, dst **rawdata.Series) error {
		f, err := file("Demand." + name)
		if err != nil {
			return err
		}
		*dst, err = rawdata.OpenSeries(f, sheet, name, rawdata.Schema{})
		return err
	}
	if err := series("GDP", &in.GDP); err != nil {
		return nil, nil, err
	}
	if err := series("Population", &in.Population); err != nil {
		return nil, nil, err
	}
	if err := series("ProjectedGDP", &in.ProjectedGDP); err != nil {
		return nil, nil, err
	}
	if err := series("ProjectedPopulation", &in.ProjectedPopulation); err != nil {
		return nil, nil, err
	}

	f, err := file("Demand.FinalEnergy")
	if err != nil {
		return nil, nil, err
	}
	fe, err := rawdata.OpenCategorySeries(f, "FinalEnergy", rawdata.Schema{
		Category:   "sector",
		Categories: sectorCategories(),
		Unit:       unit,
	})
	if err != nil {
		return nil, nil, err
	}
	in.FinalEnergy = make(map[mixmodels.Sector]*rawdata.Series)
	for cat, s := range fe {
		sector, err := mixmodels.ParseSector(cat)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := in.FinalEnergy[sector]; ok {
			return nil, nil, fmt.Errorf("mixutil: %s: sector %s is given both by name and by commodity", f, sector)
		}
		in.FinalEnergy[sector] = s
	}

	if f, err = file("Demand.Efficiency"); err != nil {
		return nil, nil, err
	}
	in.Efficiency, err = rawdata.OpenEfficiency(f, "Efficiency", rawdata.Schema{
		Category:   "sector",
		Categories: sectorCategories(),
	})
	if err != nil {
		return nil, nil, err
	}
	return in, files, nil
}

// project runs the demand projection.
func (cfg *Cfg) project(ctx context.Context) ([]mixmodels.Record, []string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	in, files, err := cfg.demandInput()
	if err != nil {
		return nil, nil, err
	}
	n, nf, err := cfg.narrative()
	if err != nil {
		return nil, nil, err
	}
	if nf != "" {
		files = append(files, nf)
	}
	missing, err := aggregate.ParseMissing(cfg.GetString("missing"))
	if err != nil {
		return nil, nil, err
	}
	g := mixmodels.NewGenerator(n)
	g.Interpolate = cfg.GetBool("interpolate")
	g.Missing = missing
	g.Unit = cfg.GetString("Demand.Unit")
	g.Log = cfg.Log

	recs, err := g.Run(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	for _, d := range g.Diagnostics() {
		cfg.Log.WithFields(logrus.Fields{
			"region":   d.Region,
			"variable": d.Variable,
		}).Debugf("fitted %s curve", d.Curve)
	}
	return recs, files, nil
}

// demandRows returns the demand parameter rows of the records whose
// sector passes keep. If keep is nil every record is kept.
func demandRows(recs []mixmodels.Record, keep func(mixmodels.Sector) bool) []platform.ParRow {
	var o []platform.ParRow
	for _, r := range recs {
		if keep != nil && !keep(r.Sector) {
			continue
		}
		o = append(o, platform.ParRow{
			Node:      r.Region,
			Commodity: r.Sector.Commodity(),
			Level:     mixmodels.UsefulLevel,
			Time:      "year",
			Year:      r.Year,
			Value:     r.Value,
			Unit:      r.Unit,
		})
	}
	return o
}

// demandPars returns the parameter tables of a demand variant restricted
// to the sectors that pass keep.
func demandPars(keep func(mixmodels.Sector) bool) func(context.Context, *Cfg) (map[string][]platform.ParRow, []string, error) {
	return func(ctx context.Context, cfg *Cfg) (map[string][]platform.ParRow, []string, error) {
		recs, files, err := cfg.project(ctx)
		if err != nil {
			return nil, nil, err
		}
		return map[string][]platform.ParRow{"demand": demandRows(recs, keep)}, files, nil
	}
}

func (cfg *Cfg) demandProjectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "project",
		Short: "Project useful energy demand.",
		Long: `project projects useful energy demand by region, sector and year and
writes it as an IAMC table to --output, without building a scenario.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, _, err := cfg.project(cmd.Context())
			if err != nil {
				return err
			}
			b := &report.Builder{
				Model:    "MESSAGEix-GLOBIOM",
				Scenario: cfg.narrativeName(),
				Namer:    cfg.namer("Useful Energy"),
				Log:      cfg.Log,
			}
			t, err := b.FromRecords(recs)
			if err != nil {
				return err
			}
			t.AddTotal("Useful Energy")
			t.AddRegion(codelist.DefaultRoot)
			return cfg.writeTable(cmd.Context(), cmd, t)
		},
		DisableAutoGenTag: true,
	}
}

// narrativeName returns the name of the configured narrative.
func (cfg *Cfg) narrativeName() string {
	n, _, err := cfg.narrative()
	if err != nil || n.Name == "" {
		return "baseline"
	}
	return n.Name
}
