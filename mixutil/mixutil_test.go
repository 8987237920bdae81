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
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kr/pretty"
	"github.com/spatialmodel/mixmodels"
	"github.com/spatialmodel/mixmodels/platform"
	"github.com/spatialmodel/mixmodels/rawdata"
)

const testModel = "MESSAGEix-GLOBIOM"

// testCfg returns a configuration whose scenarios are stored in mem.
func testCfg(t *testing.T) (*Cfg, *platform.Memory) {
	t.Helper()
	cfg := InitializeConfig()
	cfg.Log.Out = ioutil.Discard
	mem := platform.NewMemory("test")
	cfg.OpenPlatform = func(context.Context) (platform.Platform, error) { return mem, nil }
	return cfg, mem
}

// baseScenario adds an empty base scenario to mem.
func baseScenario(t *testing.T, mem *platform.Memory) platform.Ref {
	t.Helper()
	ref, err := mem.Create(context.Background(), testModel, "baseline")
	if err != nil {
		t.Fatal(err)
	}
	return ref
}

func run(cfg *Cfg, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cfg.Root.SetOut(buf)
	cfg.Root.SetErr(buf)
	cfg.Root.SetArgs(args)
	err := cfg.Root.Execute()
	return buf.String(), err
}

var demandArgs = []string{
	"--log-level", "error",
	"--data-dir", "testdata/data",
	"--regions", "toy",
	"--years", "2020:2050:10",
	"--narrative", "testdata/narrative.toml",
	"--Demand.GDP", "testdata/gdp.csv",
	"--Demand.Population", "testdata/population.csv",
	"--Demand.FinalEnergy", "testdata/final_energy.csv",
	"--Demand.Efficiency", "testdata/efficiency.csv",
	"--Demand.ProjectedGDP", "testdata/projected_gdp.csv",
	"--Demand.ProjectedPopulation", "testdata/projected_population.csv",
}

func withArgs(args []string, more ...string) []string {
	return append(append([]string(nil), args...), more...)
}

func TestVersion(t *testing.T) {
	cfg, _ := testCfg(t)
	out, err := run(cfg, "version")
	if err != nil {
		t.Fatal(err)
	}
	if want := "mix-models v" + mixmodels.Version + "\n"; out != want {
		t.Errorf("have %q, want %q", out, want)
	}
}

func TestParseMode(t *testing.T) {
	for _, test := range []struct {
		s    string
		want Mode
		err  bool
	}{
		{s: "by_url", want: ByURL},
		{s: "by_copy", want: ByCopy},
		{s: "copy", err: true},
	} {
		t.Run(test.s, func(t *testing.T) {
			m, err := ParseMode(test.s)
			if (err != nil) != test.err {
				t.Fatalf("error: %v", err)
			}
			if err == nil && (m != test.want || m.String() != test.s) {
				t.Errorf("have %v, want %v", m, test.want)
			}
		})
	}
}

func TestCodesCheck(t *testing.T) {
	cfg, _ := testCfg(t)
	out, err := run(cfg, "codes", "check", "--data-dir", "testdata/data",
		"--Codes.Reference", "testdata/countries.txt")
	if err != nil {
		t.Fatal(err)
	}
	if want := "checked 3 code lists\n"; out != want {
		t.Errorf("have %q, want %q", out, want)
	}

	ref := filepath.Join(t.TempDir(), "countries.txt")
	if err := ioutil.WriteFile(ref, []byte("US\nCA\nFR\nDE\nJP\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, _ = testCfg(t)
	_, err = run(cfg, "codes", "check", "--data-dir", "testdata/data", "--Codes.Reference", ref)
	if err == nil || !strings.Contains(err.Error(), "JP") {
		t.Errorf("want coverage error for JP, have %v", err)
	}
}

func TestAggregate(t *testing.T) {
	cfg, _ := testCfg(t)
	out, err := run(cfg, "aggregate", "--log-level", "error", "--data-dir", "testdata/data",
		"--regions", "toy", "--Aggregate.Input", "testdata/population.csv")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if lines[0] != "node,year,value" {
		t.Errorf("header: %q", lines[0])
	}
	if len(lines) != 1+2*11 {
		t.Fatalf("have %d lines, want %d", len(lines), 1+2*11)
	}
	for _, want := range []string{"A,2000,330", "A,2010,330", "B,2005,140"} {
		if !strings.Contains(out, want+"\n") {
			t.Errorf("missing %q", want)
		}
	}
}

func TestAggregateConfigFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "weighted.csv")
	conf := filepath.Join(dir, "config.toml")
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	td := filepath.ToSlash(filepath.Join(cwd, "testdata"))
	err = ioutil.WriteFile(conf, []byte(`data-dir = "`+td+`/data"
regions = "toy"
log-level = "error"
output = "`+filepath.ToSlash(out)+`"

[Aggregate]
Input = "`+td+`/population.csv"
Weights = "`+td+`/population.csv"
`), 0644)
	if err != nil {
		t.Fatal(err)
	}
	cfg, _ := testCfg(t)
	if _, err := run(cfg, "aggregate", "--config", conf); err != nil {
		t.Fatal(err)
	}
	b, err := ioutil.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	// Mean of 300 and 30 weighted by themselves.
	if want := "A,2000,275.45454545454544\n"; !strings.Contains(string(b), want) {
		t.Errorf("missing %q in\n%s", want, b)
	}
}

func TestStringSliceEnv(t *testing.T) {
	t.Setenv("MIX_WATER_COOLING", "a.csv, b.csv")
	cfg, _ := testCfg(t)
	have := cfg.getStringSlice("Water.Cooling")
	want := []string{"a.csv", "b.csv"}
	if len(have) != 2 || have[0] != want[0] || have[1] != want[1] {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestDemandProject(t *testing.T) {
	cfg, _ := testCfg(t)
	out := filepath.Join(t.TempDir(), "demand.csv")
	if _, err := run(cfg, withArgs(append([]string{"demand", "project"}, demandArgs...), "--output", out)...); err != nil {
		t.Fatal(err)
	}
	b, err := ioutil.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if !strings.HasPrefix(s, "Model,Scenario,Region,Variable,Unit,2020,2030,2040,2050\n") {
		t.Errorf("header: %q", strings.SplitN(s, "\n", 2)[0])
	}
	for _, want := range []string{
		"MESSAGEix-GLOBIOM,test,A,Useful Energy|Residential and Commercial|Thermal,GWa,",
		"MESSAGEix-GLOBIOM,test,B,Useful Energy|Transportation,GWa,",
		"MESSAGEix-GLOBIOM,test,World,Useful Energy,GWa,",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestDemandProjectMissingInput(t *testing.T) {
	cfg, _ := testCfg(t)
	_, err := run(cfg, "demand", "project", "--log-level", "error", "--data-dir", "testdata/data", "--regions", "toy",
		"--years", "2020")
	if err == nil || !strings.Contains(err.Error(), "Demand.GDP is not set") {
		t.Errorf("have %v", err)
	}
}

func TestDemandBuild(t *testing.T) {
	ctx := context.Background()
	for _, test := range []struct {
		name, command, tag string
		sectors            int
		commodity          string
	}{
		{name: "demand", command: "demand", sectors: 7},
		{name: "tag", command: "demand", tag: "ssp", sectors: 7},
		{name: "material", command: "material-ix", sectors: 3, commodity: "i_"},
	} {
		t.Run(test.name, func(t *testing.T) {
			cfg, mem := testCfg(t)
			base := baseScenario(t, mem)
			args := withArgs(append([]string{test.command, "build"}, demandArgs...), "--url", base.String())
			if test.tag != "" {
				args = append(args, "--tag", test.tag)
			}
			out, err := run(cfg, args...)
			if err != nil {
				t.Fatal(err)
			}
			suffix := test.command
			if test.tag != "" {
				suffix = test.tag
			}
			want := platform.Ref{Platform: "test", Model: testModel, Scenario: "baseline_" + suffix, Version: 1}
			if out != want.String()+"\n" {
				t.Errorf("output %q, want %q", out, want.String())
			}
			s, err := mem.Get(ctx, want)
			if err != nil {
				t.Fatal(err)
			}
			for k, v := range map[string]string{
				AnnotationBase:    base.String(),
				AnnotationVariant: test.command,
				AnnotationVersion: mixmodels.Version,
				AnnotationMacro:   "false",
			} {
				if s.Annotations[k] != v {
					t.Errorf("annotation %s: have %q, want %q", k, s.Annotations[k], v)
				}
			}
			if len(s.Annotations[AnnotationFingerprint]) != 32 {
				t.Errorf("fingerprint %q", s.Annotations[AnnotationFingerprint])
			}
			rows, err := mem.Pars(ctx, want, "demand")
			if err != nil {
				t.Fatal(err)
			}
			if n := 2 * test.sectors * 4; len(rows) != n {
				t.Fatalf("have %d rows, want %d", len(rows), n)
			}
			for _, r := range rows {
				if r.Level != "useful" || r.Time != "year" || r.Unit != "GWa" || !(r.Value > 0) ||
					!strings.HasPrefix(r.Commodity, test.commodity) {
					t.Errorf("invalid row %# v", pretty.Formatter(r))
				}
			}
		})
	}
}

func TestDemandBuildIsReproducible(t *testing.T) {
	ctx := context.Background()
	cfg, mem := testCfg(t)
	base := baseScenario(t, mem)
	args := withArgs(append([]string{"demand", "build"}, demandArgs...), "--url", base.String())
	if _, err := run(cfg, args...); err != nil {
		t.Fatal(err)
	}
	cfg2, _ := testCfg(t)
	cfg2.OpenPlatform = cfg.OpenPlatform
	if _, err := run(cfg2, withArgs(args, "--mode", "by_copy")...); err != nil {
		t.Fatal(err)
	}
	ref := platform.Ref{Model: testModel, Scenario: "baseline_demand"}
	ref.Version = 1
	a, err := mem.Pars(ctx, ref, "demand")
	if err != nil {
		t.Fatal(err)
	}
	ref.Version = 2
	b, err := mem.Pars(ctx, ref, "demand")
	if err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Diff(a, b); len(diff) > 0 {
		t.Errorf("builds differ: %v", diff)
	}
	s1, _ := mem.Get(ctx, platform.Ref{Model: testModel, Scenario: "baseline_demand", Version: 1})
	s2, _ := mem.Get(ctx, platform.Ref{Model: testModel, Scenario: "baseline_demand", Version: 2})
	if s1.Annotations[AnnotationFingerprint] != s2.Annotations[AnnotationFingerprint] {
		t.Error("fingerprints differ")
	}
}

func TestBuildingsBuildSolve(t *testing.T) {
	cfg, mem := testCfg(t)
	base := baseScenario(t, mem)
	var solved []platform.Ref
	cfg.Solver = platform.SolverFunc(func(ctx context.Context, ref platform.Ref) error {
		solved = append(solved, ref)
		return nil
	})
	out := filepath.Join(t.TempDir(), "report.csv")
	args := withArgs(append([]string{"buildings", "build-solve"}, demandArgs...),
		"--url", base.String(), "--report", "--output", out)
	if _, err := run(cfg, args...); err != nil {
		t.Fatal(err)
	}
	want := platform.Ref{Platform: "test", Model: testModel, Scenario: "baseline_buildings", Version: 1}
	if len(solved) != 1 || solved[0] != want {
		t.Errorf("solved %v, want %v", solved, want)
	}
	b, err := ioutil.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	for _, want := range []string{
		"MESSAGEix-GLOBIOM,baseline_buildings,A,Useful Energy|Residential and Commercial|Thermal,EJ/yr,",
		"MESSAGEix-GLOBIOM,baseline_buildings,World,Useful Energy|Residential and Commercial|Specific,EJ/yr,",
		"MESSAGEix-GLOBIOM,baseline_buildings,World,Useful Energy,EJ/yr,",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("missing %q in\n%s", want, s)
		}
	}
	if strings.Contains(s, "Industry") {
		t.Error("report includes industrial demand")
	}
}

func TestSolveFailure(t *testing.T) {
	cfg, mem := testCfg(t)
	base := baseScenario(t, mem)
	fail := errors.New("infeasible")
	cfg.Solver = platform.SolverFunc(func(context.Context, platform.Ref) error { return fail })
	_, err := run(cfg, "demand", "solve", "--url", base.String())
	if !errors.Is(err, fail) {
		t.Errorf("have %v, want %v", err, fail)
	}

	cfg, _ = testCfg(t)
	_, err = run(cfg, "demand", "solve", "--url", base.String())
	if err == nil || !strings.Contains(err.Error(), "Solver.Command") {
		t.Errorf("have %v", err)
	}
}

func TestWater(t *testing.T) {
	ctx := context.Background()
	cfg, mem := testCfg(t)
	base := baseScenario(t, mem)
	cfg.Solver = platform.SolverFunc(func(ctx context.Context, ref platform.Ref) error {
		return mem.SetSolution(ctx, ref, "ACT", []platform.ParRow{
			{Node: "A", Technology: "coal_ppl__ot_fresh", Year: 2020, Value: 2, Unit: "GWa"},
			{Node: "B", Technology: "coal_ppl__ot_fresh", Year: 2020, Value: 1, Unit: "GWa"},
		})
	})
	_, err := run(cfg, "water", "cooling", "--log-level", "error", "--url", base.String(),
		"--Water.Cooling", "testdata/cooling_tech.csv", "--calibrate", "--calibration", "testdata/water_demand.csv",
		"--solve")
	if err != nil {
		t.Fatal(err)
	}
	ref := platform.Ref{Platform: "test", Model: testModel, Scenario: "baseline_cooling", Version: 1}
	rows, err := mem.Pars(ctx, ref, "cooling_tech")
	if err != nil {
		t.Fatal(err)
	}
	want := platform.ParRow{Node: "A", Technology: "coal_ppl__cl_fresh", Year: 2020, Value: 0.4, Unit: "-"}
	if len(rows) != 3 || rows[0] != want {
		t.Errorf("have %# v", pretty.Formatter(rows))
	}
	rows, err = mem.Pars(ctx, ref, "water_demand")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Errorf("have %d water_demand rows, want 2", len(rows))
	}

	cfg2, _ := testCfg(t)
	cfg2.OpenPlatform = cfg.OpenPlatform
	out, err := run(cfg2, "water", "report", "--log-level", "error", "--url", ref.String())
	if err != nil {
		t.Fatal(err)
	}
	wantOut := `Model,Scenario,Region,Variable,Unit,2020
MESSAGEix-GLOBIOM,baseline_cooling,A,Water|Activity,GWa,2
MESSAGEix-GLOBIOM,baseline_cooling,A,Water|Activity|coal_ppl__ot_fresh,GWa,2
MESSAGEix-GLOBIOM,baseline_cooling,B,Water|Activity,GWa,1
MESSAGEix-GLOBIOM,baseline_cooling,B,Water|Activity|coal_ppl__ot_fresh,GWa,1
MESSAGEix-GLOBIOM,baseline_cooling,World,Water|Activity,GWa,3
MESSAGEix-GLOBIOM,baseline_cooling,World,Water|Activity|coal_ppl__ot_fresh,GWa,3
`
	if out != wantOut {
		t.Errorf("have\n%s\nwant\n%s", out, wantOut)
	}
}

func TestWaterReportUnsolved(t *testing.T) {
	cfg, mem := testCfg(t)
	base := baseScenario(t, mem)
	_, err := run(cfg, "water", "report", "--url", base.String())
	if err == nil || !strings.Contains(err.Error(), "no solution") {
		t.Errorf("have %v", err)
	}
}

func TestBuildFailure(t *testing.T) {
	ctx := context.Background()
	mem := platform.NewMemory("test")
	base := baseScenario(t, mem)
	pars := map[string][]platform.ParRow{"a": {{Node: "A", Value: 1}}}
	fail := errors.New("add failed")
	p := &failingPlatform{Memory: mem, err: fail}
	ref, err := Build(ctx, p, base, "baseline_x", ByURL, pars, map[string]string{"k": "v"}, "test")
	if !errors.Is(err, fail) {
		t.Fatalf("have %v, want %v", err, fail)
	}
	rows, err := mem.Pars(ctx, ref, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("rows were committed: %v", rows)
	}
	s, err := mem.Get(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Annotations["k"]; ok {
		t.Error("annotation was committed")
	}
	if ref.Version == 0 || ref.Scenario != "baseline_x" {
		t.Errorf("failed build should name the cloned version, have %s", ref)
	}
}

// failingPlatform fails to set annotations.
type failingPlatform struct {
	*platform.Memory
	err error
}

func (p *failingPlatform) Checkout(ctx context.Context, ref platform.Ref) (platform.Tx, error) {
	tx, err := p.Memory.Checkout(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &failingTx{Tx: tx, err: p.err}, nil
}

type failingTx struct {
	platform.Tx
	err error
}

func (t *failingTx) SetAnnotation(context.Context, string, string) error { return t.err }

func TestCalibrationRows(t *testing.T) {
	for _, test := range []struct {
		name string
		file string
		want []platform.ParRow
		err  bool
	}{
		{
			name: "water demand",
			file: "testdata/water_demand.csv",
			want: []platform.ParRow{
				{Node: "A", Commodity: "freshwater", Level: "final", Time: "year", Year: 2020, Value: 12.5, Unit: "km3/yr"},
				{Node: "B", Commodity: "freshwater", Level: "final", Time: "year", Year: 2020, Value: 7.25, Unit: "km3/yr"},
			},
		},
		{name: "unknown column", file: "testdata/bad_column.csv", err: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			tab, err := rawdata.OpenCalibration(test.file)
			if err != nil {
				t.Fatal(err)
			}
			rows, err := calibrationRows(tab)
			if (err != nil) != test.err {
				t.Fatalf("error: %v", err)
			}
			if diff := pretty.Diff(rows, test.want); len(diff) > 0 {
				t.Errorf("rows: %v", diff)
			}
		})
	}
}

func TestYearsCodeList(t *testing.T) {
	cfg, _ := testCfg(t)
	cfg.Set("data-dir", "testdata/data")
	cfg.Set("years", []string{"B"})
	have, err := cfg.years()
	if err != nil {
		t.Fatal(err)
	}
	want := []int{2010, 2020, 2025, 2030, 2040, 2050, 2060, 2070, 2080, 2090, 2100}
	if diff := pretty.Diff(have, want); len(diff) > 0 {
		t.Errorf("years: %v", diff)
	}
}

func TestNamer(t *testing.T) {
	cfg, _ := testCfg(t)
	cfg.Set("data-dir", "testdata/data")
	n := cfg.namer("Useful Energy")
	if n.Commodities == nil {
		t.Fatal("commodity list not loaded")
	}
	if have, want := n.Name("transp"), "Useful Energy|Transportation"; have != want {
		t.Errorf("have %q, want %q", have, want)
	}
	cfg.Set("data-dir", t.TempDir())
	if n := cfg.namer(""); n.Commodities != nil {
		t.Error("commodity list should be missing")
	}
}
