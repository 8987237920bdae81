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
	"math"

	"github.com/spatialmodel/mixmodels/fit"
)

// Trajectory is the projected path of one variable in one region as a
// function of income per capita. Below the divergence income it follows
// the calibrated regional curve. Above it, it runs parallel to the target
// quantile curve and the gap between them closes according to the
// smoothing function until the convergence income is reached.
type Trajectory struct {
	Regional fit.Curve
	Target   fit.Curve

	Params    VariableParams
	Smoothing Smoothing

	// BaseIncome is the income in the last historical year. If it is
	// above the divergence income, the divergence and convergence incomes
	// are both scaled up so that the projection starts at the base year.
	BaseIncome float64

	// Log, if true, closes the gap in log space. It is used for strictly
	// positive variables such as energy intensity.
	Log bool
}

// incomes returns the effective divergence and convergence incomes.
func (t Trajectory) incomes() (xd, xc float64) {
	xd, xc = t.Params.DivergenceIncome, t.Params.ConvergenceIncome
	if t.BaseIncome > xd {
		k := t.BaseIncome / xd
		xd *= k
		xc *= k
	}
	return xd, xc
}

// Progress returns how far income x has moved from the divergence income
// toward the convergence income, in log space and clamped to [0, 1].
func (t Trajectory) Progress(x float64) float64 {
	xd, xc := t.incomes()
	f := (math.Log(x) - math.Log(xd)) / (math.Log(xc) - math.Log(xd))
	return math.Max(0, math.Min(1, f))
}

// Eval returns the projected value at income x.
func (t Trajectory) Eval(x float64) float64 {
	xd, _ := t.incomes()
	if x <= xd {
		return t.Regional.Eval(x)
	}
	keep := 1 - t.Smoothing.Weight(t.Progress(x))
	if t.Log {
		gap := math.Log(t.Regional.Eval(xd)) - math.Log(t.Target.Eval(xd))
		return math.Exp(math.Log(t.Target.Eval(x)) + gap*keep)
	}
	gap := t.Regional.Eval(xd) - t.Target.Eval(xd)
	return t.Target.Eval(x) + gap*keep
}
