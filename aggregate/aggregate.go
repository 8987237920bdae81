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

// Package aggregate maps country-level statistics onto model regions
// defined by a code list.
package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/mixmodels/codelist"
	"github.com/spatialmodel/mixmodels/rawdata"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Missing specifies how countries that belong to a region but have no
// data are treated. Either way they are recorded in the Report.
type Missing int

const (
	// MissingOmit leaves countries without data out of the region.
	MissingOmit Missing = iota

	// MissingZero counts countries without data as zero. In a weighted
	// mean, a missing weight is zero and a missing value is zero.
	MissingZero
)

func (m Missing) String() string {
	switch m {
	case MissingOmit:
		return "omit"
	case MissingZero:
		return "zero"
	default:
		return fmt.Sprintf("Missing(%d)", int(m))
	}
}

// ParseMissing parses "omit" or "zero".
func ParseMissing(s string) (Missing, error) {
	switch strings.ToLower(s) {
	case "omit":
		return MissingOmit, nil
	case "zero":
		return MissingZero, nil
	}
	return 0, fmt.Errorf("aggregate: invalid missing-data policy %q; valid options are omit and zero", s)
}

// Mapping is a many-to-one relation from countries to regions.
type Mapping struct {
	// Source names the code list the mapping was built from.
	Source string

	regions []string
	region  map[string]string
	members map[string][]string
}

// NewMapping builds a mapping from the codes at the given depth of l to
// their leaves. Depth 1, the children of the root, is used if depth < 1.
// A region without children maps to itself.
func NewMapping(l *codelist.List, depth int) (*Mapping, error) {
	if depth < 1 {
		depth = 1
	}
	if err := l.CheckDisjoint(depth); err != nil {
		return nil, err
	}
	m := &Mapping{
		Source:  l.Source,
		region:  make(map[string]string),
		members: make(map[string][]string),
	}
	for _, r := range l.AtDepth(depth) {
		leaves, err := l.Leaves(r.ID)
		if err != nil {
			return nil, err
		}
		m.regions = append(m.regions, r.ID)
		for _, c := range leaves {
			m.region[c.ID] = r.ID
			m.members[r.ID] = append(m.members[r.ID], c.ID)
		}
	}
	if len(m.regions) == 0 {
		return nil, fmt.Errorf("aggregate: code list %s has no codes at depth %d", l.Source, depth)
	}
	return m, nil
}

// FromMap builds a mapping from region IDs to their member countries.
func FromMap(members map[string][]string) (*Mapping, error) {
	m := &Mapping{
		region:  make(map[string]string),
		members: make(map[string][]string),
	}
	for r, cs := range members {
		m.regions = append(m.regions, r)
		for _, c := range cs {
			if prev, ok := m.region[c]; ok {
				return nil, fmt.Errorf("aggregate: %s is in both %s and %s", c, prev, r)
			}
			m.region[c] = r
		}
		m.members[r] = append([]string(nil), cs...)
	}
	sort.Strings(m.regions)
	return m, nil
}

// Regions returns the region IDs in code-list order.
func (m *Mapping) Regions() []string { return append([]string(nil), m.regions...) }

// Region returns the region of the given country.
func (m *Mapping) Region(country string) (string, bool) {
	r, ok := m.region[country]
	return r, ok
}

// Members returns the countries of the given region.
func (m *Mapping) Members(region string) []string {
	return append([]string(nil), m.members[region]...)
}

// Gap records countries of a region without data, or a region without
// a result when Countries is empty. Year is zero for single-year
// aggregation.
type Gap struct {
	Region    string
	Year      int
	Countries []string
}

// Report records everything that was not aggregated normally.
type Report struct {
	// Dropped holds locations in the data that are not in the mapping.
	Dropped []string

	// Missing holds mapped countries without data.
	Missing []Gap

	// Empty holds regions for which no value could be computed.
	Empty []Gap
}

// OK returns whether the aggregation was complete.
func (r *Report) OK() bool {
	return len(r.Dropped) == 0 && len(r.Missing) == 0 && len(r.Empty) == 0
}

// Log writes the contents of the report to log.
func (r *Report) Log(log logrus.FieldLogger, quantity string) {
	log = log.WithField("quantity", quantity)
	if len(r.Dropped) > 0 {
		log.WithField("locations", strings.Join(r.Dropped, ",")).
			Warnf("dropped %d locations that are not in the region mapping", len(r.Dropped))
	}
	for _, g := range r.Missing {
		log.WithFields(logrus.Fields{
			"region":    g.Region,
			"year":      g.Year,
			"countries": strings.Join(g.Countries, ","),
		}).Info("countries without data")
	}
	for _, g := range r.Empty {
		log.WithFields(logrus.Fields{
			"region": g.Region,
			"year":   g.Year,
		}).Warn("no data for region")
	}
}

func (r *Report) drop(locs ...map[string]float64) {
	seen := make(map[string]bool, len(r.Dropped))
	for _, d := range r.Dropped {
		seen[d] = true
	}
	for _, m := range locs {
		for l := range m {
			if !seen[l] {
				seen[l] = true
				r.Dropped = append(r.Dropped, l)
			}
		}
	}
	sort.Strings(r.Dropped)
}

func (r *Report) merge(o *Report, year int) {
	for _, g := range o.Missing {
		g.Year = year
		r.Missing = append(r.Missing, g)
	}
	for _, g := range o.Empty {
		g.Year = year
		r.Empty = append(r.Empty, g)
	}
	seen := make(map[string]bool)
	for _, d := range r.Dropped {
		seen[d] = true
	}
	for _, d := range o.Dropped {
		if !seen[d] {
			seen[d] = true
			r.Dropped = append(r.Dropped, d)
		}
	}
	sort.Strings(r.Dropped)
}

// unmapped returns the entries of data whose keys are not in the mapping.
func (m *Mapping) unmapped(data map[string]float64) map[string]float64 {
	o := make(map[string]float64)
	for l, v := range data {
		if _, ok := m.region[l]; !ok {
			o[l] = v
		}
	}
	return o
}

// Sum returns the sum of data over the countries of each region.
func (m *Mapping) Sum(data map[string]float64, policy Missing) (map[string]float64, *Report) {
	rep := new(Report)
	rep.drop(m.unmapped(data))
	o := make(map[string]float64)
	for _, r := range m.regions {
		var v []float64
		var missing []string
		for _, c := range m.members[r] {
			x, ok := data[c]
			if !ok {
				missing = append(missing, c)
				continue
			}
			v = append(v, x)
		}
		if len(missing) > 0 {
			rep.Missing = append(rep.Missing, Gap{Region: r, Countries: missing})
		}
		if len(v) == 0 && policy == MissingOmit {
			rep.Empty = append(rep.Empty, Gap{Region: r})
			continue
		}
		o[r] = floats.Sum(v)
	}
	return o, rep
}

// WeightedMean returns the mean of data over the countries of each region
// weighted by weights, e.g. final-energy intensity weighted by population.
// Regions whose weights sum to zero have no result and are recorded as
// empty. Negative weights are an error.
func (m *Mapping) WeightedMean(data, weights map[string]float64, policy Missing) (map[string]float64, *Report, error) {
	rep := new(Report)
	rep.drop(m.unmapped(data), m.unmapped(weights))
	o := make(map[string]float64)
	for _, r := range m.regions {
		var v, w []float64
		var missing []string
		for _, c := range m.members[r] {
			x, okX := data[c]
			wt, okW := weights[c]
			if okW && wt < 0 {
				return nil, nil, fmt.Errorf("aggregate: negative weight %g for %s", wt, c)
			}
			if !okX || !okW {
				missing = append(missing, c)
				if policy == MissingOmit {
					continue
				}
			}
			v = append(v, x)
			w = append(w, wt)
		}
		if len(missing) > 0 {
			rep.Missing = append(rep.Missing, Gap{Region: r, Countries: missing})
		}
		if len(w) == 0 || floats.Sum(w) == 0 {
			rep.Empty = append(rep.Empty, Gap{Region: r})
			continue
		}
		o[r] = stat.Mean(v, w)
	}
	return o, rep, nil
}

// SumSeries applies Sum to every year of s.
func (m *Mapping) SumSeries(s *rawdata.Series, policy Missing) (*rawdata.Series, *Report) {
	o := rawdata.NewSeries(s.Name, s.Unit)
	o.Header = s.Header
	rep := new(Report)
	for _, y := range s.Years() {
		v, r := m.Sum(s.Year(y), policy)
		rep.merge(r, y)
		for region, x := range v {
			o.Set(region, y, x)
		}
	}
	return o, rep
}

// WeightedMeanSeries applies WeightedMean to every year of s, using the
// weights of the same year.
func (m *Mapping) WeightedMeanSeries(s, weights *rawdata.Series, policy Missing) (*rawdata.Series, *Report, error) {
	o := rawdata.NewSeries(s.Name, s.Unit)
	o.Header = s.Header
	rep := new(Report)
	for _, y := range s.Years() {
		v, r, err := m.WeightedMean(s.Year(y), weights.Year(y), policy)
		if err != nil {
			return nil, nil, fmt.Errorf("aggregate: %s, %d: %w", s.Name, y, err)
		}
		rep.merge(r, y)
		for region, x := range v {
			o.Set(region, y, x)
		}
	}
	return o, rep, nil
}
