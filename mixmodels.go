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

// Package mixmodels projects useful-energy demand by model region, sector
// and year from historical income, population and final-energy data, for
// use as input to the MESSAGEix-GLOBIOM model family.
package mixmodels

import (
	"fmt"
	"sort"
)

// Version gives the version number.
const Version = "0.3.0"

// Sector is an end-use demand sector.
type Sector string

// These are the demand sectors.
const (
	ResidentialThermal   Sector = "residential-thermal"
	ResidentialSpecific  Sector = "residential-specific"
	IndustrialThermal    Sector = "industrial-thermal"
	IndustrialSpecific   Sector = "industrial-specific"
	IndustrialFeedstock  Sector = "industrial-feedstock"
	Transportation       Sector = "transportation"
	NonCommercialBiomass Sector = "non-commercial-biomass"
)

// Sectors lists every demand sector in reporting order.
var Sectors = []Sector{
	ResidentialThermal, ResidentialSpecific,
	IndustrialThermal, IndustrialSpecific, IndustrialFeedstock,
	Transportation, NonCommercialBiomass,
}

var commodities = map[Sector]string{
	ResidentialThermal:   "rc_therm",
	ResidentialSpecific:  "rc_spec",
	IndustrialThermal:    "i_therm",
	IndustrialSpecific:   "i_spec",
	IndustrialFeedstock:  "i_feed",
	Transportation:       "transp",
	NonCommercialBiomass: "non-comm",
}

// UsefulLevel is the MESSAGE level at which demands are specified.
const UsefulLevel = "useful"

// Commodity returns the MESSAGE commodity of the sector's demand.
func (s Sector) Commodity() string { return commodities[s] }

// Industrial returns whether s is one of the industrial sectors, whose
// share of final energy first rises and then falls with income.
func (s Sector) Industrial() bool {
	return s == IndustrialThermal || s == IndustrialSpecific || s == IndustrialFeedstock
}

func (s Sector) index() int {
	for i, ss := range Sectors {
		if ss == s {
			return i
		}
	}
	return len(Sectors)
}

// ParseSector returns the sector with the given name or commodity.
func ParseSector(s string) (Sector, error) {
	for _, ss := range Sectors {
		if string(ss) == s || ss.Commodity() == s {
			return ss, nil
		}
	}
	return "", fmt.Errorf("mixmodels: unknown sector %q", s)
}

// SectorFromCommodity returns the sector whose demand is the given
// commodity.
func SectorFromCommodity(c string) (Sector, bool) {
	for s, cc := range commodities {
		if cc == c {
			return s, true
		}
	}
	return "", false
}

// Record is the projected useful-energy demand of a region and sector in
// one year.
type Record struct {
	Region string
	Sector Sector
	Year   int
	Value  float64
	Unit   string
}

// SortRecords sorts r by region, sector and year.
func SortRecords(r []Record) {
	sort.Slice(r, func(i, j int) bool {
		if r[i].Region != r[j].Region {
			return r[i].Region < r[j].Region
		}
		if r[i].Sector != r[j].Sector {
			return r[i].Sector.index() < r[j].Sector.index()
		}
		return r[i].Year < r[j].Year
	})
}

// MissingDataError is returned when a region lacks data that is required
// and no default has been configured for it.
type MissingDataError struct {
	Region   string
	Variable string

	// Year is zero when the whole history is missing.
	Year int

	Reason string
}

func (e *MissingDataError) Error() string {
	s := fmt.Sprintf("mixmodels: region %s: %s", e.Region, e.Variable)
	if e.Year != 0 {
		s += fmt.Sprintf(" in %d", e.Year)
	}
	return s + ": " + e.Reason
}
