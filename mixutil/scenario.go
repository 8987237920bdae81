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
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/mixmodels"
	"github.com/spatialmodel/mixmodels/codelist"
	"github.com/spatialmodel/mixmodels/internal/hash"
	"github.com/spatialmodel/mixmodels/platform"
	"github.com/spatialmodel/mixmodels/report"
	"github.com/spf13/cobra"
)

// Mode is how a base scenario is copied before it is modified.
type Mode int

const (
	// ByURL copies the data, annotations and history of the base scenario.
	ByURL Mode = iota
	// ByCopy copies only the data.
	ByCopy
)

func (m Mode) String() string {
	if m == ByCopy {
		return "by_copy"
	}
	return "by_url"
}

// ParseMode parses "by_url" or "by_copy".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "by_url":
		return ByURL, nil
	case "by_copy":
		return ByCopy, nil
	}
	return 0, fmt.Errorf("mixutil: invalid mode %q; must be by_url or by_copy", s)
}

// Annotation keys set on built scenarios.
const (
	AnnotationBase        = "mixmodels.base"
	AnnotationVariant     = "mixmodels.variant"
	AnnotationFingerprint = "mixmodels.fingerprint"
	AnnotationVersion     = "mixmodels.version"
	AnnotationMacro       = "mixmodels.macro"
)

// Build copies base to a new version of the scenario with the given name
// and adds the parameter tables to it in a single checkout. If adding
// any table fails, nothing is committed and the new version holds only
// the copied data. The returned Ref names that version even on error, and
// the version is not removed.
func Build(ctx context.Context, p platform.Platform, base platform.Ref, scenario string, mode Mode,
	pars map[string][]platform.ParRow, annotations map[string]string, message string) (platform.Ref, error) {
	ref, err := p.Clone(ctx, base, base.Model, scenario, mode == ByURL)
	if err != nil {
		return platform.Ref{}, err
	}
	err = platform.WithCheckout(ctx, p, ref, message, func(tx platform.Tx) error {
		for _, name := range sortedKeys(pars) {
			if err := tx.AddPar(ctx, name, pars[name]); err != nil {
				return err
			}
		}
		for _, k := range sortedKeys(annotations) {
			if err := tx.SetAnnotation(ctx, k, annotations[k]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ref, fmt.Errorf("mixutil: building %s: %w", ref, err)
	}
	return ref, nil
}

// reportSpec is a parameter or solution variable included in a report.
type reportSpec struct {
	name     string
	solution bool

	// prefix is the top of the variable hierarchy, for example
	// "Useful Energy". A total is reported for it.
	prefix string
	unit   string
}

// variant is a family of scenario commands.
type variant struct {
	name  string
	short string
	long  string

	// pars returns the parameter tables to add to a scenario and the
	// input files they were read from.
	pars func(ctx context.Context, cfg *Cfg) (map[string][]platform.ParRow, []string, error)

	reports []reportSpec
}

var (
	demandVariant = &variant{
		name:  "demand",
		short: "Project useful energy demand and add it to scenarios.",
		long: `demand projects useful energy demand for each region, sector and year
from historical GDP, population and final energy and a narrative of
convergence parameters, and adds it to scenarios as the demand parameter.`,
		pars:    demandPars(nil),
		reports: []reportSpec{{name: "demand", prefix: "Useful Energy", unit: "EJ/yr"}},
	}
	materialVariant = &variant{
		name:  "material-ix",
		short: "Add industrial demand to scenarios.",
		long: `material-ix adds the projected industrial useful energy demand
(thermal, specific and feedstock) to scenarios.`,
		pars:    demandPars(mixmodels.Sector.Industrial),
		reports: []reportSpec{{name: "demand", prefix: "Useful Energy", unit: "EJ/yr"}},
	}
	buildingsVariant = &variant{
		name:  "buildings",
		short: "Add residential and commercial demand to scenarios.",
		long: `buildings adds the projected residential and commercial useful energy
demand to scenarios and solves them.`,
		pars: demandPars(func(s mixmodels.Sector) bool {
			return s == mixmodels.ResidentialThermal || s == mixmodels.ResidentialSpecific
		}),
		reports: []reportSpec{{name: "demand", prefix: "Useful Energy", unit: "EJ/yr"}},
	}
	coolingVariant = &variant{
		name:    "cooling",
		short:   "Add cooling technology parameters to a scenario.",
		pars:    calibrationPars("Water.Cooling"),
		reports: []reportSpec{{name: "ACT", solution: true, prefix: "Water|Activity"}},
	}
	nexusVariant = &variant{
		name:    "nexus",
		short:   "Add water-energy nexus parameters to a scenario.",
		pars:    calibrationPars("Water.Nexus"),
		reports: []reportSpec{{name: "ACT", solution: true, prefix: "Water|Activity"}},
	}
)

// variantCmd returns the command of a variant with the given subcommands
// among build, solve, report and build-solve.
func (cfg *Cfg) variantCmd(v *variant, subcommands ...string) *cobra.Command {
	cmd := &cobra.Command{
		Use:               v.name,
		Short:             v.short,
		Long:              v.long,
		DisableAutoGenTag: true,
	}
	for _, s := range subcommands {
		switch s {
		case "build":
			cmd.AddCommand(cfg.buildCmd(v, "build"))
		case "solve":
			cmd.AddCommand(cfg.solveCmd())
		case "report":
			cmd.AddCommand(cfg.reportCmd(v))
		case "build-solve":
			b := cfg.buildCmd(v, "build-solve")
			b.Short = "Build and solve a scenario."
			run := b.RunE
			b.RunE = func(cmd *cobra.Command, args []string) error {
				cfg.Set("solve", true)
				return run(cmd, args)
			}
			cmd.AddCommand(b)
		default:
			panic("invalid subcommand " + s)
		}
	}
	return cmd
}

func (cfg *Cfg) buildCmd(v *variant, use string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Build a %s scenario.", v.name),
		Long: fmt.Sprintf(`%s clones the scenario given by --url and adds the %s parameters
to the clone. With --solve the new scenario is solved, and with --report
it is reported. The clone is committed as a new version before the
parameters are added, so a failed build leaves that version in place
holding only the copied base data.`, use, v.name),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cfg.build(cmd.Context(), cmd, v)
			return err
		},
		DisableAutoGenTag: true,
	}
}

func (cfg *Cfg) solveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "solve",
		Short: "Solve a scenario.",
		Long:  `solve runs the solver on the scenario given by --url.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := platform.ParseRef(cfg.getString("url"))
			if err != nil {
				return err
			}
			return cfg.solve(cmd.Context(), ref)
		},
		DisableAutoGenTag: true,
	}
}

func (cfg *Cfg) reportCmd(v *variant) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Report a scenario.",
		Long: `report writes an IAMC-format report of the scenario given by --url
to --output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := platform.ParseRef(cfg.getString("url"))
			if err != nil {
				return err
			}
			p, err := cfg.OpenPlatform(cmd.Context())
			if err != nil {
				return err
			}
			defer p.Close()
			return cfg.report(cmd.Context(), cmd, p, ref, v)
		},
		DisableAutoGenTag: true,
	}
}

// build runs the build command of variant v and returns the new scenario.
func (cfg *Cfg) build(ctx context.Context, cmd *cobra.Command, v *variant) (platform.Ref, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	base, err := platform.ParseRef(cfg.getString("url"))
	if err != nil {
		return platform.Ref{}, err
	}
	mode, err := ParseMode(cfg.GetString("mode"))
	if err != nil {
		return platform.Ref{}, err
	}
	pars, inputs, err := v.pars(ctx, cfg)
	if err != nil {
		return platform.Ref{}, err
	}
	if cfg.GetBool("calibrate") {
		cal, files, err := calibrationPars("calibration")(ctx, cfg)
		if err != nil {
			return platform.Ref{}, err
		}
		for name, rows := range cal {
			pars[name] = append(pars[name], rows...)
		}
		inputs = append(inputs, files...)
	}
	fingerprint, err := hash.Files(inputs...)
	if err != nil {
		return platform.Ref{}, err
	}
	annotations := map[string]string{
		AnnotationBase:        base.String(),
		AnnotationVariant:     v.name,
		AnnotationFingerprint: fingerprint,
		AnnotationVersion:     mixmodels.Version,
		AnnotationMacro:       fmt.Sprint(cfg.GetBool("macro")),
	}

	scenario := base.Scenario + "_" + v.name
	if tag := cfg.GetString("tag"); tag != "" {
		scenario = base.Scenario + "_" + tag
	}
	p, err := cfg.OpenPlatform(ctx)
	if err != nil {
		return platform.Ref{}, err
	}
	defer p.Close()

	log := cfg.Log.WithFields(logrus.Fields{"base": base.String(), "mode": mode.String(), "variant": v.name})
	log.Info("building scenario")
	ref, err := Build(ctx, p, base, scenario, mode, pars,
		annotations, fmt.Sprintf("mix-models %s build, inputs %s", v.name, fingerprint))
	if err != nil {
		if ref.Version != 0 {
			log.WithField("scenario", ref.String()).Warn("build failed; the new version holds only the base data")
		}
		return ref, err
	}
	log.WithField("scenario", ref.String()).Info("built scenario")
	cmd.Println(ref.String())

	if cfg.GetBool("solve") {
		if err := cfg.solve(ctx, ref); err != nil {
			return ref, err
		}
	}
	if cfg.GetBool("report") {
		if err := cfg.report(ctx, cmd, p, ref, v); err != nil {
			return ref, err
		}
	}
	return ref, nil
}

func (cfg *Cfg) solve(ctx context.Context, ref platform.Ref) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := cfg.solver()
	if err != nil {
		return err
	}
	cfg.Log.WithField("scenario", ref.String()).Info("solving scenario")
	return s.Solve(ctx, ref)
}

// namer returns the commodity names of the commodity code list in the
// data directory, if there is one.
func (cfg *Cfg) namer(prefix string) report.Namer {
	n := report.Namer{Prefix: prefix}
	l, err := codelist.Open(cfg.getString("data-dir"), "commodity", "commodity", codelist.DefaultOptions("commodity"))
	if err != nil {
		cfg.Log.WithError(err).Debug("no commodity code list; using built-in names")
		return n
	}
	n.Commodities = l
	return n
}

// report writes the report of a scenario.
func (cfg *Cfg) report(ctx context.Context, cmd *cobra.Command, p platform.Platform, ref platform.Ref, v *variant) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := p.Get(ctx, ref)
	if err != nil {
		return err
	}
	out := new(report.Table)
	for _, rs := range v.reports {
		var rows []platform.ParRow
		if rs.solution {
			if !s.Solved {
				return fmt.Errorf("mixutil: %s has no solution to report", s.Ref)
			}
			rows, err = p.Solution(ctx, s.Ref, rs.name)
		} else {
			rows, err = p.Pars(ctx, s.Ref, rs.name)
		}
		if err != nil {
			return err
		}
		b := &report.Builder{
			Model:    s.Ref.Model,
			Scenario: s.Ref.Scenario,
			Namer:    cfg.namer(rs.prefix),
			Unit:     rs.unit,
			Log:      cfg.Log,
		}
		t, err := b.FromRows(rows)
		if err != nil {
			return err
		}
		if rs.prefix != "" {
			t.AddTotal(rs.prefix)
		}
		out.Merge(t)
	}
	out.AddRegion(codelist.DefaultRoot)
	return cfg.writeTable(ctx, cmd, out)
}

// writeTable writes t to the output option, or to the standard output of
// cmd, and writes the charts given by the plots option.
func (cfg *Cfg) writeTable(ctx context.Context, cmd *cobra.Command, t *report.Table) error {
	if dir := cfg.getString("plots"); dir != "" {
		files, err := t.SavePlots(ctx, dir)
		if err != nil {
			return err
		}
		cfg.Log.WithField("files", strings.Join(files, ", ")).Info("wrote charts")
	}
	loc := cfg.getString("output")
	if loc == "" {
		return t.WriteCSV(cmd.OutOrStdout())
	}
	if err := t.Save(ctx, loc); err != nil {
		return err
	}
	cfg.Log.WithField("file", loc).Info("wrote report")
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	o := make([]string, 0, len(m))
	for k := range m {
		o = append(o, k)
	}
	sort.Strings(o)
	return o
}
