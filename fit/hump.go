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

package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// HumpCurve is y = A·(x/B)·exp(1 - x/B). It rises to its maximum A at
// x = B and declines afterwards, like the industrial share of final energy
// as income grows.
type HumpCurve struct {
	A, B float64

	// SSE is the sum of squared residuals of the fit.
	SSE float64
}

// Eval implements Curve.
func (c HumpCurve) Eval(x float64) float64 {
	r := x / c.B
	return c.A * r * math.Exp(1-r)
}

// Name implements Curve.
func (c HumpCurve) Name() string { return "hump" }

// Params implements Curve.
func (c HumpCurve) Params() []float64 { return []float64{c.A, c.B} }

// HumpSettings control the non-linear fit.
type HumpSettings struct {
	// MaxIterations limits the number of Nelder-Mead iterations.
	// Reaching the limit is a convergence failure.
	MaxIterations int

	// Tolerance is the absolute improvement in the sum of squares below
	// which the fit is considered converged.
	Tolerance float64
}

// DefaultHumpSettings are used when the zero value is passed to Hump.
var DefaultHumpSettings = HumpSettings{MaxIterations: 5000, Tolerance: 1e-14}

// Hump fits a HumpCurve by minimizing the sum of squared residuals with
// the Nelder-Mead method. A fit that stops early returns an error wrapping
// ErrNoConvergence.
func Hump(x, y []float64, s HumpSettings) (HumpCurve, error) {
	if err := checkXY("hump", x, y, false); err != nil {
		return HumpCurve{}, err
	}
	if s.MaxIterations == 0 {
		s.MaxIterations = DefaultHumpSettings.MaxIterations
	}
	if s.Tolerance == 0 {
		s.Tolerance = DefaultHumpSettings.Tolerance
	}

	// Start at the highest observation.
	iMax := 0
	for i := range y {
		if y[i] > y[iMax] {
			iMax = i
		}
	}
	if !(y[iMax] > 0) {
		return HumpCurve{}, &DataError{Curve: "hump", Reason: "no positive observations"}
	}

	// Parameters are optimized in log space to keep A and B positive.
	sse := func(p []float64) float64 {
		c := HumpCurve{A: math.Exp(p[0]), B: math.Exp(p[1])}
		var v float64
		for i, xi := range x {
			r := y[i] - c.Eval(xi)
			v += r * r
		}
		return v
	}
	problem := optimize.Problem{Func: sse}
	settings := &optimize.Settings{
		MajorIterations: s.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   s.Tolerance,
			Iterations: 100,
		},
	}
	result, err := optimize.Minimize(problem, []float64{math.Log(y[iMax]), math.Log(x[iMax])}, settings, &optimize.NelderMead{})
	if err != nil {
		return HumpCurve{}, fmt.Errorf("%w: %v", ErrNoConvergence, err)
	}
	switch result.Status {
	case optimize.Success, optimize.FunctionConvergence, optimize.MethodConverge,
		optimize.FunctionThreshold, optimize.StepConvergence:
	default:
		return HumpCurve{}, fmt.Errorf("%w: stopped with status %v after %d iterations",
			ErrNoConvergence, result.Status, result.Stats.MajorIterations)
	}
	return HumpCurve{A: math.Exp(result.X[0]), B: math.Exp(result.X[1]), SSE: result.F}, nil
}
