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
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
)

// FEI is the name of the final-energy-intensity variable. The share
// variables are named after their sectors.
const FEI = "fei"

// Functional forms of the regional curves.
const (
	PowerLawForm  = "power-law"
	LogLinearForm = "log-linear"
	HumpForm      = "hump"
)

// Variables returns the names of every projected variable: FEI followed
// by the sector shares.
func Variables() []string {
	o := []string{FEI}
	for _, s := range Sectors {
		o = append(o, string(s))
	}
	return o
}

// DefaultForm returns the regional curve form used for v when none is
// configured.
func DefaultForm(v string) string {
	if v == FEI {
		return PowerLawForm
	}
	if s, err := ParseSector(v); err == nil && s.Industrial() {
		return HumpForm
	}
	return LogLinearForm
}

// Curve is a literal curve given in a narrative, used for regions without
// historical data.
type Curve struct {
	// Form is one of "power-law" (y = A·x^B), "log-linear"
	// (y = A + B·ln x) or "hump" (y = A·(x/B)·exp(1-x/B)).
	Form string
	A, B float64
}

// VariableParams control the projection of one variable.
type VariableParams struct {
	// Form of the regional curve. The default depends on the variable.
	Form string

	// Quantile of the cross-country distribution that the projection
	// converges to.
	Quantile float64

	// DivergenceIncome is the income per capita at which the projection
	// leaves the regional curve and turns parallel to the target quantile.
	DivergenceIncome float64

	// ConvergenceIncome is the income per capita at which the projection
	// reaches the target quantile.
	ConvergenceIncome float64

	// Default, if set, is used as the regional curve of regions that lack
	// historical data.
	Default *Curve
}

// Smoothing is the gap-closing function between divergence and
// convergence income.
type Smoothing struct {
	// Method is "linear", "smoothstep" or "gompertz".
	Method string

	// A and B are the constants of the Gompertz function
	// exp(-A·exp(-f/B)).
	A, B float64
}

// Narrative holds the scenario-specific parameters of a projection, such
// as those of an SSP.
type Narrative struct {
	Name string

	Smoothing Smoothing

	// Variables holds the parameters of FEI and each sector share.
	Variables map[string]VariableParams

	// DefaultEfficiency holds the useful-to-final energy ratio by sector
	// used for regions without efficiency data.
	DefaultEfficiency map[string]float64
}

// ReadNarrative reads a narrative from a TOML file. Environment variables
// in the file name are expanded.
func ReadNarrative(filename string) (*Narrative, error) {
	f, err := os.Open(os.ExpandEnv(filename))
	if err != nil {
		return nil, fmt.Errorf("mixmodels: opening narrative: %v", err)
	}
	defer f.Close()
	n, err := ParseNarrative(f)
	if err != nil {
		return nil, fmt.Errorf("%v (in %s)", err, filename)
	}
	return n, nil
}

// ParseNarrative reads a TOML narrative from r and validates it.
func ParseNarrative(r io.Reader) (*Narrative, error) {
	n := new(Narrative)
	md, err := toml.NewDecoder(r).Decode(n)
	if err != nil {
		return nil, fmt.Errorf("mixmodels: parsing narrative: %v", err)
	}
	if un := md.Undecoded(); len(un) > 0 {
		return nil, fmt.Errorf("mixmodels: narrative: unknown key %s", un[0])
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// Validate fills in default forms and checks that every variable has
// consistent parameters.
func (n *Narrative) Validate() error {
	if n.Smoothing.Method == "" {
		n.Smoothing.Method = "gompertz"
	}
	if n.Smoothing.Method == "gompertz" {
		if n.Smoothing.A == 0 {
			n.Smoothing.A = 9
		}
		if n.Smoothing.B == 0 {
			n.Smoothing.B = 0.1
		}
	}
	if err := n.Smoothing.validate(); err != nil {
		return err
	}
	for _, v := range Variables() {
		p, ok := n.Variables[v]
		if !ok {
			return fmt.Errorf("mixmodels: narrative %s: no parameters for %s", n.Name, v)
		}
		if p.Form == "" {
			p.Form = DefaultForm(v)
		}
		if err := p.validate(v); err != nil {
			return fmt.Errorf("mixmodels: narrative %s: %s: %v", n.Name, v, err)
		}
		n.Variables[v] = p
	}
	var extra []string
	for v := range n.Variables {
		if _, err := ParseSector(v); err != nil && v != FEI {
			extra = append(extra, v)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fmt.Errorf("mixmodels: narrative %s: unknown variable %s", n.Name, extra[0])
	}
	for s, e := range n.DefaultEfficiency {
		if _, err := ParseSector(s); err != nil {
			return fmt.Errorf("mixmodels: narrative %s: default efficiency: %v", n.Name, err)
		}
		if !(e > 0) {
			return fmt.Errorf("mixmodels: narrative %s: default efficiency of %s must be positive", n.Name, s)
		}
	}
	return nil
}

func (p VariableParams) validate(v string) error {
	switch p.Form {
	case PowerLawForm, LogLinearForm, HumpForm:
	default:
		return fmt.Errorf("invalid form %q", p.Form)
	}
	if v == FEI && p.Form != PowerLawForm {
		return fmt.Errorf("final-energy intensity must use the %s form", PowerLawForm)
	}
	if !(p.Quantile > 0 && p.Quantile < 1) {
		return fmt.Errorf("quantile %g is outside (0, 1)", p.Quantile)
	}
	if !(p.DivergenceIncome > 0) || !(p.ConvergenceIncome > p.DivergenceIncome) {
		return fmt.Errorf("need 0 < divergence income (%g) < convergence income (%g)",
			p.DivergenceIncome, p.ConvergenceIncome)
	}
	if d := p.Default; d != nil {
		if d.Form != p.Form {
			return fmt.Errorf("default curve form %q differs from %q", d.Form, p.Form)
		}
		if (d.Form == PowerLawForm || d.Form == HumpForm) && !(d.A > 0) {
			return fmt.Errorf("default %s curve needs A > 0", d.Form)
		}
		if d.Form == HumpForm && !(d.B > 0) {
			return fmt.Errorf("default hump curve needs B > 0")
		}
	}
	return nil
}

// DefaultNarrative returns a middle-of-the-road narrative with income in
// thousand USD per capita.
func DefaultNarrative() *Narrative {
	n := &Narrative{
		Name:      "SSP2",
		Smoothing: Smoothing{Method: "gompertz", A: 9, B: 0.1},
		Variables: map[string]VariableParams{
			FEI: {Quantile: 0.5, DivergenceIncome: 15, ConvergenceIncome: 150},
		},
	}
	for _, s := range Sectors {
		n.Variables[string(s)] = VariableParams{Quantile: 0.5, DivergenceIncome: 15, ConvergenceIncome: 150}
	}
	if err := n.Validate(); err != nil {
		panic(err)
	}
	return n
}

// Weight returns the fraction of the gap to the target that has been
// closed at progress f ∈ [0, 1] from divergence to convergence income.
// It increases from 0 at f=0 to 1 at f=1.
func (s Smoothing) Weight(f float64) float64 {
	f = math.Max(0, math.Min(1, f))
	switch s.Method {
	case "linear":
		return f
	case "smoothstep":
		return f * f * (3 - 2*f)
	default:
		g := func(f float64) float64 { return math.Exp(-s.A * math.Exp(-f/s.B)) }
		g0, g1 := g(0), g(1)
		return (g(f) - g0) / (g1 - g0)
	}
}

func (s Smoothing) validate() error {
	switch s.Method {
	case "linear", "smoothstep":
	case "gompertz":
		if !(s.A > 0) || !(s.B > 0) {
			return fmt.Errorf("mixmodels: gompertz smoothing needs positive constants, have A=%g B=%g", s.A, s.B)
		}
	default:
		return fmt.Errorf("mixmodels: invalid smoothing method %q; valid options are linear, smoothstep and gompertz", s.Method)
	}
	return nil
}
