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

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// Design is the functional form of a quantile regression. Each form is
// linear in its parameters after transforming x and, for PowerLawDesign, y.
type Design int

const (
	// PowerLawDesign is ln(y) = b0 + b1·ln(x).
	PowerLawDesign Design = iota
	// LogLinearDesign is y = b0 + b1·ln(x).
	LogLinearDesign
	// LogQuadraticDesign is y = b0 + b1·ln(x) + b2·ln(x)², which has a
	// maximum when b2 < 0.
	LogQuadraticDesign
)

func (d Design) String() string {
	switch d {
	case PowerLawDesign:
		return "power-law"
	case LogLinearDesign:
		return "log-linear"
	case LogQuadraticDesign:
		return "log-quadratic"
	default:
		return fmt.Sprintf("Design(%d)", int(d))
	}
}

func (d Design) features(x float64) []float64 {
	lx := math.Log(x)
	switch d {
	case LogQuadraticDesign:
		return []float64{1, lx, lx * lx}
	default:
		return []float64{1, lx}
	}
}

// QuantileCurve is the result of a quantile regression.
type QuantileCurve struct {
	Design Design
	Tau    float64
	Beta   []float64
}

// Eval implements Curve.
func (q QuantileCurve) Eval(x float64) float64 {
	var v float64
	for i, f := range q.Design.features(x) {
		v += q.Beta[i] * f
	}
	if q.Design == PowerLawDesign {
		return math.Exp(v)
	}
	return v
}

// Name implements Curve.
func (q QuantileCurve) Name() string { return fmt.Sprintf("%s quantile %g", q.Design, q.Tau) }

// Params implements Curve.
func (q QuantileCurve) Params() []float64 { return q.Beta }

// quantileTol is the tolerance passed to the simplex solver.
const quantileTol = 1e-10

// Quantile fits the tau-th conditional quantile of y given x with the
// given functional form. The check-loss minimization is solved exactly as
// the linear program
//
//	min τ·Σu⁺ + (1-τ)·Σu⁻  s.t.  X·(β⁺-β⁻) + u⁺ - u⁻ = y,  β⁺, β⁻, u⁺, u⁻ ≥ 0.
func Quantile(x, y []float64, tau float64, d Design) (QuantileCurve, error) {
	name := d.String() + " quantile"
	if !(tau > 0 && tau < 1) {
		return QuantileCurve{}, &DataError{Curve: name, Reason: fmt.Sprintf("quantile %g is outside (0, 1)", tau)}
	}
	if err := checkXY(name, x, y, d == PowerLawDesign); err != nil {
		return QuantileCurve{}, err
	}
	resp := y
	if d == PowerLawDesign {
		resp = logs(y)
	}
	n := len(x)
	p := len(d.features(1))
	if n < p {
		return QuantileCurve{}, &DataError{Curve: name, Reason: fmt.Sprintf("need at least %d points, have %d", p, n)}
	}

	cols := 2*p + 2*n
	A := mat.NewDense(n, cols, nil)
	b := make([]float64, n)
	c := make([]float64, cols)
	basic := make([]int, n)
	for i := 0; i < n; i++ {
		sign := 1.0
		if resp[i] < 0 {
			// Negate the row so that the slack basis below is feasible.
			sign = -1
		}
		for j, f := range d.features(x[i]) {
			A.Set(i, j, sign*f)
			A.Set(i, p+j, -sign*f)
		}
		A.Set(i, 2*p+i, sign)
		A.Set(i, 2*p+n+i, -sign)
		b[i] = sign * resp[i]
		c[2*p+i] = tau
		c[2*p+n+i] = 1 - tau
		if sign > 0 {
			basic[i] = 2*p + i
		} else {
			basic[i] = 2*p + n + i
		}
	}

	_, z, err := lp.Simplex(c, A, b, quantileTol, basic)
	if err != nil {
		return QuantileCurve{}, fmt.Errorf("fit: %s regression: %w", name, err)
	}
	beta := make([]float64, p)
	for j := range beta {
		beta[j] = z[j] - z[p+j]
	}
	return QuantileCurve{Design: d, Tau: tau, Beta: beta}, nil
}
