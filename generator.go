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

package mixmodels

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/mixmodels/aggregate"
	"github.com/spatialmodel/mixmodels/fit"
	"github.com/spatialmodel/mixmodels/rawdata"
)

// GeneratorInput holds the data a projection is computed from.
type GeneratorInput struct {
	// Mapping assigns countries to model regions.
	Mapping *aggregate.Mapping

	// GDP, Population and FinalEnergy are historical data by country.
	// GDP and final energy may be in any units, but the divergence and
	// convergence incomes of the narrative must be in units of GDP per
	// population.
	GDP, Population *rawdata.Series
	FinalEnergy     map[Sector]*rawdata.Series

	// Efficiency holds the ratio of useful to final energy by country and
	// sector, keyed by sector name or commodity.
	Efficiency rawdata.Efficiency

	// ProjectedGDP and ProjectedPopulation are projections by region.
	ProjectedGDP, ProjectedPopulation *rawdata.Series

	// Years are the years to project.
	Years []int
}

func (in *GeneratorInput) validate() error {
	switch {
	case in.Mapping == nil:
		return fmt.Errorf("mixmodels: no region mapping")
	case in.GDP == nil || in.Population == nil:
		return fmt.Errorf("mixmodels: historical GDP and population are required")
	case in.ProjectedGDP == nil || in.ProjectedPopulation == nil:
		return fmt.Errorf("mixmodels: projected GDP and population are required")
	case len(in.Years) == 0:
		return fmt.Errorf("mixmodels: no years to project")
	}
	return nil
}

// Diagnostic describes a fitted curve.
type Diagnostic struct {
	// Region is "World" for the global quantile regressions.
	Region   string
	Variable string

	Curve  string
	Params []float64

	// R2 is the coefficient of determination, or NaN if the curve was not
	// fitted by least squares.
	R2 float64

	// Default is true if the curve was taken from the narrative because
	// the region has no history.
	Default bool

	BaseYear   int
	BaseIncome float64
}

// Generator projects useful-energy demand.
type Generator struct {
	Narrative *Narrative

	// Interpolate allows projected GDP and population to be linearly
	// interpolated to requested years that are not in the data. If false,
	// such years are an error.
	Interpolate bool

	// Hump controls the fit of hump-shaped curves.
	Hump fit.HumpSettings

	// MaxQuantileObservations limits the number of country-years used in
	// each quantile regression. Larger data sets are thinned evenly.
	MaxQuantileObservations int

	// Missing controls how countries without data are aggregated.
	Missing aggregate.Missing

	// Unit is the unit of the final-energy input and of the output.
	Unit string

	Log logrus.FieldLogger

	diagnostics []Diagnostic
}

// NewGenerator returns a generator with default settings for the given
// narrative.
func NewGenerator(n *Narrative) *Generator {
	return &Generator{
		Narrative:               n,
		Hump:                    fit.DefaultHumpSettings,
		MaxQuantileObservations: 500,
		Missing:                 aggregate.MissingOmit,
		Unit:                    "GWa",
		Log:                     logrus.StandardLogger(),
	}
}

// Diagnostics returns the curves fitted during the last run.
func (g *Generator) Diagnostics() []Diagnostic { return g.diagnostics }

func (g *Generator) logger() logrus.FieldLogger {
	if g.Log == nil {
		return logrus.StandardLogger()
	}
	return g.Log
}

// Run projects useful-energy demand for every region, sector and
// requested year. It returns exactly one record for each combination,
// sorted by region, sector and year.
func (g *Generator) Run(ctx context.Context, in *GeneratorInput) ([]Record, error) {
	if g.Narrative == nil {
		return nil, fmt.Errorf("mixmodels: no narrative")
	}
	if err := g.Narrative.Validate(); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	log := g.logger().WithField("narrative", g.Narrative.Name)
	g.diagnostics = nil

	country := histories(in.GDP, in.Population, in.FinalEnergy)
	targets, err := g.targets(country)
	if err != nil {
		return nil, err
	}

	regional := g.regionalHistories(in, country, log)
	eff, err := g.regionalEfficiency(in, log)
	if err != nil {
		return nil, err
	}

	years := uniqueYears(in.Years)
	var out []Record
	for _, r := range in.Mapping.Regions() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		traj := make(map[string]Trajectory)
		for _, v := range Variables() {
			t, err := g.trajectory(r, v, regional[r], targets[v])
			if err != nil {
				return nil, err
			}
			traj[v] = t
		}
		recs, err := g.project(r, years, traj, eff[r], in)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
		log.WithField("region", r).Debug("projected demand")
	}
	SortRecords(out)
	return out, nil
}

func uniqueYears(y []int) []int {
	o := append([]int(nil), y...)
	sort.Ints(o)
	j := 0
	for i := range o {
		if i == 0 || o[i] != o[j-1] {
			o[j] = o[i]
			j++
		}
	}
	return o[:j]
}

// history holds the observations of one location in chronological order.
type history struct {
	years  []int
	income []float64
	values map[string][]float64
}

// histories computes income per capita, final-energy intensity and
// sector shares for every location and year that has GDP, population and
// final energy of every sector.
func histories(gdp, pop *rawdata.Series, fe map[Sector]*rawdata.Series) map[string]*history {
	o := make(map[string]*history)
	for _, loc := range gdp.Locations() {
		h := &history{values: make(map[string][]float64)}
	years:
		for _, y := range gdp.LocationYears(loc) {
			g, _ := gdp.At(loc, y)
			p, ok := pop.At(loc, y)
			if !ok || !(p > 0) || !(g > 0) {
				continue
			}
			var total float64
			sectorFE := make([]float64, len(Sectors))
			for i, s := range Sectors {
				ss, ok := fe[s]
				if !ok {
					continue years
				}
				v, ok := ss.At(loc, y)
				if !ok || v < 0 {
					continue years
				}
				sectorFE[i] = v
				total += v
			}
			if !(total > 0) {
				continue
			}
			h.years = append(h.years, y)
			h.income = append(h.income, g/p)
			h.values[FEI] = append(h.values[FEI], total/g)
			for i, s := range Sectors {
				h.values[string(s)] = append(h.values[string(s)], sectorFE[i]/total)
			}
		}
		if len(h.years) > 0 {
			o[loc] = h
		}
	}
	return o
}

func designFor(form string) fit.Design {
	switch form {
	case PowerLawForm:
		return fit.PowerLawDesign
	case HumpForm:
		return fit.LogQuadraticDesign
	default:
		return fit.LogLinearDesign
	}
}

// thin returns at most n elements of x and y, evenly spaced.
func thin(x, y []float64, n int) ([]float64, []float64) {
	if n <= 0 || len(x) <= n {
		return x, y
	}
	xo, yo := make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		j := i * len(x) / n
		xo[i], yo[i] = x[j], y[j]
	}
	return xo, yo
}

// targets fits the global quantile curve of each variable to the
// country histories.
func (g *Generator) targets(h map[string]*history) (map[string]fit.Curve, error) {
	locs := make([]string, 0, len(h))
	for l := range h {
		locs = append(locs, l)
	}
	sort.Strings(locs)
	o := make(map[string]fit.Curve)
	for _, v := range Variables() {
		p := g.Narrative.Variables[v]
		d := designFor(p.Form)
		var x, y []float64
		for _, l := range locs {
			for i, yi := range h[l].values[v] {
				if d == fit.PowerLawDesign && !(yi > 0) {
					continue
				}
				x = append(x, h[l].income[i])
				y = append(y, yi)
			}
		}
		x, y = thin(x, y, g.MaxQuantileObservations)
		if len(x) < 3 {
			return nil, &MissingDataError{Region: "World", Variable: v,
				Reason: fmt.Sprintf("%d historical observations are not enough for a quantile regression", len(x))}
		}
		q, err := fit.Quantile(x, y, p.Quantile, d)
		if err != nil {
			return nil, fmt.Errorf("mixmodels: %s target: %w", v, err)
		}
		o[v] = q
		g.diagnostics = append(g.diagnostics, Diagnostic{
			Region: "World", Variable: v, Curve: q.Name(), Params: q.Params(), R2: math.NaN(),
		})
		g.logger().WithFields(logrus.Fields{
			"variable":     v,
			"quantile":     p.Quantile,
			"observations": len(x),
		}).Debug("fitted target curve")
	}
	return o, nil
}

// regionalHistories aggregates the country data to regions and computes
// the regional histories. Only the complete observations in country are
// aggregated, so that every regional quantity of a year sums over the same
// countries.
func (g *Generator) regionalHistories(in *GeneratorInput, country map[string]*history, log logrus.FieldLogger) map[string]*history {
	complete := make(map[string]map[int]bool, len(country))
	for loc, h := range country {
		complete[loc] = make(map[int]bool, len(h.years))
		for _, y := range h.years {
			complete[loc][y] = true
		}
	}
	var incomplete int
	keep := func(s *rawdata.Series) *rawdata.Series {
		o := rawdata.NewSeries(s.Name, s.Unit)
		o.Header = s.Header
		for _, loc := range s.Locations() {
			for _, y := range s.LocationYears(loc) {
				if !complete[loc][y] {
					incomplete++
					continue
				}
				v, _ := s.At(loc, y)
				o.Set(loc, y, v)
			}
		}
		return o
	}

	gdp, rep := in.Mapping.SumSeries(keep(in.GDP), g.Missing)
	rep.Log(log, in.GDP.Name)
	pop, rep := in.Mapping.SumSeries(keep(in.Population), g.Missing)
	rep.Log(log, in.Population.Name)
	fe := make(map[Sector]*rawdata.Series)
	for _, s := range Sectors {
		ss, ok := in.FinalEnergy[s]
		if !ok {
			continue
		}
		fe[s], rep = in.Mapping.SumSeries(keep(ss), g.Missing)
		rep.Log(log, ss.Name)
	}
	if incomplete > 0 {
		log.WithField("values", incomplete).
			Warn("left country values out of the regional histories because the country lacks GDP, population or a sector in that year")
	}
	return histories(gdp, pop, fe)
}

type efficiencyLookup rawdata.Efficiency

func (e efficiencyLookup) get(loc string, s Sector) (float64, bool) {
	m, ok := e[loc]
	if !ok {
		return 0, false
	}
	if v, ok := m[string(s)]; ok {
		return v, true
	}
	v, ok := m[s.Commodity()]
	return v, ok
}

// regionalEfficiency returns the useful-to-final energy ratio of each
// region and sector as the mean of the country ratios weighted by the
// latest final energy of each country. Regions where the sector has no
// final energy use the unweighted mean, then the narrative default.
func (g *Generator) regionalEfficiency(in *GeneratorInput, log logrus.FieldLogger) (map[string]map[Sector]float64, error) {
	o := make(map[string]map[Sector]float64)
	for _, r := range in.Mapping.Regions() {
		o[r] = make(map[Sector]float64)
	}
	lookup := efficiencyLookup(in.Efficiency)
	for _, s := range Sectors {
		eff := make(map[string]float64)
		weight := make(map[string]float64)
		uniform := make(map[string]float64)
		for loc := range in.Efficiency {
			if v, ok := lookup.get(loc, s); ok {
				eff[loc] = v
				uniform[loc] = 1
			}
		}
		if fe, ok := in.FinalEnergy[s]; ok {
			for _, loc := range fe.Locations() {
				ys := fe.LocationYears(loc)
				weight[loc], _ = fe.At(loc, ys[len(ys)-1])
			}
		}
		mean, rep, err := in.Mapping.WeightedMean(eff, weight, aggregate.MissingOmit)
		if err != nil {
			return nil, fmt.Errorf("mixmodels: %s efficiency: %w", s, err)
		}
		rep.Log(log, string(s)+" efficiency")
		simple, _, err := in.Mapping.WeightedMean(eff, uniform, aggregate.MissingOmit)
		if err != nil {
			return nil, err
		}
		for _, r := range in.Mapping.Regions() {
			if v, ok := mean[r]; ok {
				o[r][s] = v
				continue
			}
			if v, ok := simple[r]; ok {
				o[r][s] = v
				continue
			}
			if v, ok := g.Narrative.DefaultEfficiency[string(s)]; ok {
				log.WithFields(logrus.Fields{"region": r, "sector": s}).Info("using default efficiency")
				o[r][s] = v
				continue
			}
			return nil, &MissingDataError{Region: r, Variable: string(s) + " efficiency",
				Reason: "no country data and no default in the narrative"}
		}
	}
	return o, nil
}

// trajectory fits and calibrates the regional curve of variable v and
// combines it with the target curve.
func (g *Generator) trajectory(region, v string, h *history, target fit.Curve) (Trajectory, error) {
	p := g.Narrative.Variables[v]
	t := Trajectory{
		Target:    target,
		Params:    p,
		Smoothing: g.Narrative.Smoothing,
		Log:       v == FEI,
	}
	var x, y []float64
	var years []int
	if h != nil {
		for i, yi := range h.values[v] {
			if p.Form == PowerLawForm && !(yi > 0) {
				continue
			}
			x = append(x, h.income[i])
			y = append(y, yi)
			years = append(years, h.years[i])
		}
	}
	if len(x) < 2 {
		if p.Default == nil {
			return t, &MissingDataError{Region: region, Variable: v,
				Reason: fmt.Sprintf("%d historical observations and no default curve in the narrative", len(x))}
		}
		t.Regional = literalCurve(*p.Default)
		g.diagnostics = append(g.diagnostics, Diagnostic{
			Region: region, Variable: v, Curve: t.Regional.Name(),
			Params: t.Regional.Params(), R2: math.NaN(), Default: true,
		})
		g.logger().WithFields(logrus.Fields{"region": region, "variable": v}).
			Info("no history; using default curve")
		return t, nil
	}

	var c fit.Curve
	r2 := math.NaN()
	switch p.Form {
	case PowerLawForm:
		pl, err := fit.PowerLaw(x, y)
		if err != nil {
			return t, fmt.Errorf("mixmodels: region %s: %s: %w", region, v, err)
		}
		c, r2 = pl, pl.R2
	case LogLinearForm:
		ll, err := fit.LogLinear(x, y)
		if err != nil {
			return t, fmt.Errorf("mixmodels: region %s: %s: %w", region, v, err)
		}
		c, r2 = ll, ll.R2
	case HumpForm:
		hc, err := fit.Hump(x, y, g.Hump)
		if err != nil {
			return t, fmt.Errorf("mixmodels: region %s: %s: %w", region, v, err)
		}
		c = hc
	}

	// Calibrate to the last observation.
	last := len(x) - 1
	xl, yl := x[last], y[last]
	fl := c.Eval(xl)
	if p.Form != LogLinearForm && fl > 0 && yl > 0 {
		c = fit.Scaled{Curve: c, Factor: yl / fl}
	} else {
		c = fit.Shifted{Curve: c, Offset: yl - fl}
	}
	t.Regional = c
	t.BaseIncome = xl
	g.diagnostics = append(g.diagnostics, Diagnostic{
		Region: region, Variable: v, Curve: c.Name(), Params: c.Params(), R2: r2,
		BaseYear: years[last], BaseIncome: xl,
	})
	return t, nil
}

func literalCurve(c Curve) fit.Curve {
	switch c.Form {
	case PowerLawForm:
		return fit.PowerLawCurve{A: c.A, B: c.B, R2: math.NaN()}
	case HumpForm:
		return fit.HumpCurve{A: c.A, B: c.B}
	default:
		return fit.LogLinearCurve{A: c.A, B: c.B, R2: math.NaN()}
	}
}

// valueAt returns the value of s at loc and year, linearly interpolating
// between the nearest years if interpolate is true.
func valueAt(s *rawdata.Series, loc string, year int, interpolate bool) (float64, bool) {
	if v, ok := s.At(loc, year); ok || !interpolate {
		return v, ok
	}
	have := s.LocationYears(loc)
	i := sort.SearchInts(have, year)
	if i == 0 || i == len(have) {
		return 0, false
	}
	y0, y1 := have[i-1], have[i]
	v0, _ := s.At(loc, y0)
	v1, _ := s.At(loc, y1)
	return v0 + (v1-v0)*float64(year-y0)/float64(y1-y0), true
}

var errZeroShares = errors.New("all sector shares are zero")

// project evaluates the trajectories of a region at the projected income
// of each year.
func (g *Generator) project(region string, years []int, traj map[string]Trajectory, eff map[Sector]float64, in *GeneratorInput) ([]Record, error) {
	var o []Record
	for _, y := range years {
		gdp, ok := valueAt(in.ProjectedGDP, region, y, g.Interpolate)
		if !ok {
			return nil, &MissingDataError{Region: region, Variable: in.ProjectedGDP.Name, Year: y, Reason: "no projected value"}
		}
		pop, ok := valueAt(in.ProjectedPopulation, region, y, g.Interpolate)
		if !ok {
			return nil, &MissingDataError{Region: region, Variable: in.ProjectedPopulation.Name, Year: y, Reason: "no projected value"}
		}
		if !(gdp > 0) || !(pop > 0) {
			return nil, &MissingDataError{Region: region, Variable: in.ProjectedGDP.Name, Year: y,
				Reason: fmt.Sprintf("GDP (%g) and population (%g) must be positive", gdp, pop)}
		}
		x := gdp / pop
		fe := traj[FEI].Eval(x) * gdp

		shares := make([]float64, len(Sectors))
		var sum float64
		for i, s := range Sectors {
			shares[i] = math.Max(0, math.Min(1, traj[string(s)].Eval(x)))
			sum += shares[i]
		}
		if !(sum > 0) {
			return nil, fmt.Errorf("mixmodels: region %s, %d: %w", region, y, errZeroShares)
		}
		for i, s := range Sectors {
			o = append(o, Record{
				Region: region,
				Sector: s,
				Year:   y,
				Value:  fe * shares[i] / sum * eff[s],
				Unit:   g.Unit,
			})
		}
	}
	return o, nil
}
