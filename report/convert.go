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
	"fmt"

	"github.com/ctessum/unit"
)

// secondsPerYear is the length of a model year, 8760 hours.
const secondsPerYear = 8760 * 3600.

// energyFlows holds the power equivalent of one unit of each supported
// unit of annual energy. MESSAGE reports energy in GWa, i.e. the energy
// of 1 GW over a year.
var energyFlows = map[string]*unit.Unit{
	"GWa":    unit.New(1e9, unit.Watt),
	"GWa/yr": unit.New(1e9, unit.Watt),
	"TWa/yr": unit.New(1e12, unit.Watt),
	"EJ/yr":  unit.New(1e18/secondsPerYear, unit.Watt),
	"PJ/yr":  unit.New(1e15/secondsPerYear, unit.Watt),
	"TWh/yr": unit.New(1e12*3600/secondsPerYear, unit.Watt),
}

// Convert converts v from one unit of annual energy to another.
func Convert(v float64, from, to string) (float64, error) {
	if from == to {
		return v, nil
	}
	f, ok := energyFlows[from]
	if !ok {
		return 0, fmt.Errorf("report: unsupported unit %q", from)
	}
	t, ok := energyFlows[to]
	if !ok {
		return 0, fmt.Errorf("report: unsupported unit %q", to)
	}
	ratio := unit.Div(f, t)
	if err := ratio.Check(unit.Dimless); err != nil {
		return 0, fmt.Errorf("report: converting %s to %s: %v", from, to, err)
	}
	return v * ratio.Value(), nil
}
