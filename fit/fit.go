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

// Package fit holds the curve fits used to relate energy intensity and
// sectoral shares to income: power-law and log-linear least squares,
// a hump-shaped non-linear fit, and linear quantile regression.
package fit

import (
	"errors"
	"fmt"
	"math"

	"github.com/GaryBoone/GoStats/stats"
)

// ErrNoConvergence is returned when a non-linear fit stops before
// reaching a minimum.
var ErrNoConvergence = errors.New("fit: non-linear fit did not converge")

// DataError is returned when the input data cannot be fit, for example
// because there are too few points or values are outside of the domain of
// the curve.
type DataError struct {
	Curve  string
	Reason string
}

func (e *DataError) Error() string { return fmt.Sprintf("fit: %s: %s", e.Curve, e.Reason) }

// Curve is a fitted function of income.
type Curve interface {
	// Eval returns the value of the curve at x.
	Eval(x float64) float64

	// Name returns the name of the functional form.
	Name() string

	// Params returns the fitted parameters.
	Params() []float64
}

// PowerLawCurve is y = A·x^B.
type PowerLawCurve struct {
	A, B float64

	// R2 is the coefficient of determination in log space.
	R2 float64
}

// Eval implements Curve.
func (c PowerLawCurve) Eval(x float64) float64 { return c.A * math.Pow(x, c.B) }

// Name implements Curve.
func (c PowerLawCurve) Name() string { return "power-law" }

// Params implements Curve.
func (c PowerLawCurve) Params() []float64 { return []float64{c.A, c.B} }

// LogLinearCurve is y = A + B·ln(x).
type LogLinearCurve struct {
	A, B float64
	R2   float64
}

// Eval implements Curve.
func (c LogLinearCurve) Eval(x float64) float64 { return c.A + c.B*math.Log(x) }

// Name implements Curve.
func (c LogLinearCurve) Name() string { return "log-linear" }

// Params implements Curve.
func (c LogLinearCurve) Params() []float64 { return []float64{c.A, c.B} }

// Scaled multiplies the output of a curve by Factor. It is used to
// calibrate a regional fit to the last observed value.
type Scaled struct {
	Curve
	Factor float64
}

// Eval implements Curve.
func (s Scaled) Eval(x float64) float64 { return s.Factor * s.Curve.Eval(x) }

// Shifted adds Offset to the output of a curve.
type Shifted struct {
	Curve
	Offset float64
}

// Eval implements Curve.
func (s Shifted) Eval(x float64) float64 { return s.Curve.Eval(x) + s.Offset }

func checkXY(curve string, x, y []float64, logY bool) error {
	if len(x) != len(y) {
		return &DataError{Curve: curve, Reason: fmt.Sprintf("length mismatch: %d x values and %d y values", len(x), len(y))}
	}
	if len(x) < 2 {
		return &DataError{Curve: curve, Reason: fmt.Sprintf("need at least 2 points, have %d", len(x))}
	}
	distinct := false
	for i, xi := range x {
		if !(xi > 0) || math.IsInf(xi, 0) {
			return &DataError{Curve: curve, Reason: fmt.Sprintf("x[%d]=%g must be positive and finite", i, xi)}
		}
		if logY && !(y[i] > 0) {
			return &DataError{Curve: curve, Reason: fmt.Sprintf("y[%d]=%g must be positive", i, y[i])}
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return &DataError{Curve: curve, Reason: fmt.Sprintf("y[%d] is not finite", i)}
		}
		if xi != x[0] {
			distinct = true
		}
	}
	if !distinct {
		return &DataError{Curve: curve, Reason: "all x values are equal"}
	}
	return nil
}

func logs(v []float64) []float64 {
	o := make([]float64, len(v))
	for i, vi := range v {
		o[i] = math.Log(vi)
	}
	return o
}

// PowerLaw fits y = A·x^B by ordinary least squares on ln(y) against ln(x).
func PowerLaw(x, y []float64) (PowerLawCurve, error) {
	if err := checkXY("power-law", x, y, true); err != nil {
		return PowerLawCurve{}, err
	}
	slope, intercept, r2, _, _, _ := stats.LinearRegression(logs(x), logs(y))
	return PowerLawCurve{A: math.Exp(intercept), B: slope, R2: r2}, nil
}

// LogLinear fits y = A + B·ln(x) by ordinary least squares.
func LogLinear(x, y []float64) (LogLinearCurve, error) {
	if err := checkXY("log-linear", x, y, false); err != nil {
		return LogLinearCurve{}, err
	}
	slope, intercept, r2, _, _, _ := stats.LinearRegression(logs(x), y)
	return LogLinearCurve{A: intercept, B: slope, R2: r2}, nil
}
