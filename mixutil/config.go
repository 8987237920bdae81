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

// Package mixutil contains the commands and configuration of the
// mix-models program.
package mixutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/mixmodels"
	"github.com/spatialmodel/mixmodels/platform"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds the configuration and the commands of the mix-models
// program.
type Cfg struct {
	*viper.Viper

	// Root is the main command.
	Root *cobra.Command

	// OpenPlatform opens the scenario platform. By default it connects to
	// the PostgreSQL database given by the platform-dsn option.
	OpenPlatform func(ctx context.Context) (platform.Platform, error)

	// Solver solves scenarios. If nil, the program given by the
	// solver.command option is run.
	Solver platform.Solver

	Log *logrus.Logger

	options []option
}

type option struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

// InitializeConfig creates the commands and configuration options of the
// program.
func InitializeConfig() *Cfg {
	cfg := &Cfg{
		Viper: viper.New(),
		Log:   logrus.New(),
	}
	cfg.Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
		DisableSorting:  true,
	})
	cfg.OpenPlatform = cfg.openPostgres

	cfg.Root = &cobra.Command{
		Use:   "mix-models",
		Short: "Prepare, build, solve and report MESSAGEix-GLOBIOM scenarios.",
		Long: `mix-models prepares input data for the MESSAGEix-GLOBIOM integrated
assessment model, builds scenarios on a scenario platform, solves them with
an external solver and reports the results in IAMC format.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
by setting environment variables in the format 'MIX_var' where 'var' is the
name of the variable to be set, with '.' and '-' replaced by '_', or by
listing such environment variables in a .env file.`,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return cfg.setConfig() },
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Long:  "version prints the version number of this version of mix-models.",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("mix-models v%s\n", mixmodels.Version)
		},
		DisableAutoGenTag: true,
	}
	codesCmd := &cobra.Command{
		Use:               "codes",
		Short:             "Work with code lists.",
		DisableAutoGenTag: true,
	}
	codesCheckCmd := cfg.codesCheckCmd()
	aggregateCmd := cfg.aggregateCmd()

	demand := cfg.variantCmd(demandVariant, "build", "solve", "report")
	demandProjectCmd := cfg.demandProjectCmd()
	demand.AddCommand(demandProjectCmd)
	material := cfg.variantCmd(materialVariant, "build", "solve", "report")
	buildings := cfg.variantCmd(buildingsVariant, "build-solve")
	water := &cobra.Command{
		Use:   "water",
		Short: "Build and report scenarios with water-energy nexus parameters.",
		Long: `water adds cooling technology or water-energy nexus parameters from
calibration tables to a scenario, and reports water scenario results.`,
		DisableAutoGenTag: true,
	}
	water.AddCommand(
		cfg.buildCmd(coolingVariant, "cooling"),
		cfg.buildCmd(nexusVariant, "nexus"),
		cfg.reportCmd(coolingVariant),
	)

	// Link the commands together.
	cfg.Root.AddCommand(versionCmd, codesCmd, aggregateCmd, demand, material, buildings, water)
	codesCmd.AddCommand(codesCheckCmd)

	scenarioSets := []*pflag.FlagSet{demand.PersistentFlags(), material.PersistentFlags(),
		buildings.PersistentFlags(), water.PersistentFlags()}
	demandSets := []*pflag.FlagSet{demand.PersistentFlags(), material.PersistentFlags(), buildings.PersistentFlags()}
	reportSets := append(append([]*pflag.FlagSet(nil), scenarioSets...), aggregateCmd.Flags())

	cfg.options = []option{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
		{
			name: "env-file",
			usage: `
              env-file specifies a file of environment variables to load
              before reading the configuration. A missing file is ignored.`,
			defaultVal: ".env",
			flagsets:   []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
		{
			name: "log-level",
			usage: `
              log-level is the minimum level of log messages: debug, info,
              warning or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
		{
			name: "data-dir",
			usage: `
              data-dir is the directory holding code lists, organized as
              data-dir/KIND/ID.yaml, for example data-dir/node/R12.yaml.`,
			defaultVal: "./data",
			flagsets:   []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
		{
			name: "platform",
			usage: `
              platform is the name of the scenario platform.`,
			defaultVal: "local",
			flagsets:   scenarioSets,
		},
		{
			name: "platform-dsn",
			usage: `
              platform-dsn is the connection string of the PostgreSQL
              database holding the scenario platform, for example
              postgres://user@localhost/ixmp?sslmode=disable.`,
			defaultVal: "",
			flagsets:   scenarioSets,
		},
		{
			name: "url",
			usage: `
              url is the base scenario, in the form
              ixmp://PLATFORM/MODEL/SCENARIO#VERSION. The version is optional.`,
			shorthand:  "u",
			defaultVal: "",
			flagsets:   scenarioSets,
		},
		{
			name: "tag",
			usage: `
              tag is appended to the name of the base scenario to name the
              new scenario. If empty, the name of the command is used.`,
			defaultVal: "",
			flagsets:   scenarioSets,
		},
		{
			name: "mode",
			usage: `
              mode is how the base scenario is copied: by_url keeps its
              annotations and history, by_copy copies only its data.`,
			defaultVal: "by_url",
			flagsets:   scenarioSets,
		},
		{
			name: "solve",
			usage: `
              solve specifies whether to solve the scenario after building it.`,
			defaultVal: false,
			flagsets:   scenarioSets,
		},
		{
			name: "report",
			usage: `
              report specifies whether to report the scenario after building
              or solving it.`,
			defaultVal: false,
			flagsets:   scenarioSets,
		},
		{
			name: "calibrate",
			usage: `
              calibrate specifies whether to add the calibration tables
              listed in calibration to the scenario.`,
			defaultVal: false,
			flagsets:   scenarioSets,
		},
		{
			name: "calibration",
			usage: `
              calibration lists calibration CSV files. Each file is a
              parameter named after the file, with key columns (node,
              commodity, level, technology, mode, time, year, unit) and a
              value column.`,
			defaultVal: []string{},
			flagsets:   scenarioSets,
		},
		{
			name: "macro",
			usage: `
              macro specifies whether the scenario is solved coupled with the
              MACRO macro-economic model.`,
			defaultVal: false,
			flagsets:   scenarioSets,
		},
		{
			name: "regions",
			usage: `
              regions is the ID of the node code list that defines the model
              regions, for example R12.`,
			defaultVal: "R12",
			flagsets:   append(demandSets, aggregateCmd.Flags()),
		},
		{
			name: "years",
			usage: `
              years is either the ID of a year code list, whose model years
              are used, or a list of years and ranges such as 2020:2060:10.`,
			defaultVal: []string{"B"},
			flagsets:   demandSets,
		},
		{
			name: "narrative",
			usage: `
              narrative is a TOML file of demand projection parameters. If
              empty, the built-in SSP2 narrative is used.`,
			defaultVal: "",
			flagsets:   demandSets,
		},
		{
			name: "interpolate",
			usage: `
              interpolate specifies whether projected GDP and population may
              be interpolated to years that are not in the data.`,
			defaultVal: false,
			flagsets:   demandSets,
		},
		{
			name: "missing",
			usage: `
              missing is how countries without data are aggregated: omit or zero.`,
			defaultVal: "omit",
			flagsets:   append(demandSets, aggregateCmd.Flags()),
		},
		{
			name: "Demand.GDP",
			usage: `
              Demand.GDP is the historical GDP by country, as a CSV file with
              node, year and value columns or an Excel file.`,
			defaultVal: "",
			flagsets:   demandSets,
		},
		{
			name: "Demand.Population",
			usage: `
              Demand.Population is the historical population by country.`,
			defaultVal: "",
			flagsets:   demandSets,
		},
		{
			name: "Demand.FinalEnergy",
			usage: `
              Demand.FinalEnergy is the historical final energy by country and
              sector, as a CSV file with node, year, sector and value columns.`,
			defaultVal: "",
			flagsets:   demandSets,
		},
		{
			name: "Demand.Efficiency",
			usage: `
              Demand.Efficiency is the ratio of useful to final energy, as a
              CSV file with node, sector and value columns.`,
			defaultVal: "",
			flagsets:   demandSets,
		},
		{
			name: "Demand.ProjectedGDP",
			usage: `
              Demand.ProjectedGDP is the projected GDP by region.`,
			defaultVal: "",
			flagsets:   demandSets,
		},
		{
			name: "Demand.ProjectedPopulation",
			usage: `
              Demand.ProjectedPopulation is the projected population by region.`,
			defaultVal: "",
			flagsets:   demandSets,
		},
		{
			name: "Demand.Sheet",
			usage: `
              Demand.Sheet is the sheet read from Excel input files.`,
			defaultVal: "data",
			flagsets:   demandSets,
		},
		{
			name: "Demand.Unit",
			usage: `
              Demand.Unit is the unit of the final energy data and of the
              projected demand.`,
			defaultVal: "GWa",
			flagsets:   demandSets,
		},
		{
			name: "Water.Cooling",
			usage: `
              Water.Cooling lists the calibration CSV files of cooling
              technology parameters.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{water.PersistentFlags()},
		},
		{
			name: "Water.Nexus",
			usage: `
              Water.Nexus lists the calibration CSV files of water-energy
              nexus parameters.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{water.PersistentFlags()},
		},
		{
			name: "Aggregate.Input",
			usage: `
              Aggregate.Input is the country data to aggregate, as a CSV file
              with node, year and value columns or an Excel file.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{aggregateCmd.Flags()},
		},
		{
			name: "Aggregate.Weights",
			usage: `
              Aggregate.Weights, if set, is the country data used to weight
              a mean, such as population. If empty, values are summed.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{aggregateCmd.Flags()},
		},
		{
			name: "Aggregate.Depth",
			usage: `
              Aggregate.Depth is the depth of the regions in the node code
              list; 1 is the level below the root.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{aggregateCmd.Flags()},
		},
		{
			name: "Codes.Reference",
			usage: `
              Codes.Reference is a file listing reference country codes, one
              per line. Exhaustive node code lists must include all of them.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{codesCheckCmd.Flags()},
		},
		{
			name: "output",
			usage: `
              output is where results are written: a local path or a blob
              URL such as gs://bucket/report.xlsx. If empty, CSV is written
              to standard output.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets:   reportSets,
		},
		{
			name: "plots",
			usage: `
              plots, if set, is a directory or blob URL where a chart of each
              reported variable is written.`,
			defaultVal: "",
			flagsets:   scenarioSets,
		},
		{
			name: "Solver.Command",
			usage: `
              Solver.Command is the program that solves a scenario, such as
              gams. Environment variables are expanded.`,
			defaultVal: "",
			flagsets:   scenarioSets,
		},
		{
			name: "Solver.Args",
			usage: `
              Solver.Args are the arguments of the solver. {url}, {platform},
              {model}, {scenario} and {version} are replaced by the scenario.`,
			defaultVal: []string{},
			flagsets:   scenarioSets,
		},
		{
			name: "Solver.Dir",
			usage: `
              Solver.Dir is the working directory of the solver.`,
			defaultVal: "",
			flagsets:   scenarioSets,
		},
	}

	// Set the prefix for configuration environment variables.
	cfg.SetEnvPrefix("MIX")
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	cfg.AutomaticEnv()

	for _, option := range cfg.options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			default:
				panic("invalid argument type")
			}
			cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
	return cfg
}

// setConfig loads the environment file and finds and reads in the
// configuration file, if there is one.
func (cfg *Cfg) setConfig() error {
	if f := os.ExpandEnv(cfg.GetString("env-file")); f != "" {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("mixutil: loading environment file: %v", err)
		}
	}
	if cfgpath := os.ExpandEnv(cfg.GetString("config")); cfgpath != "" {
		cfg.SetConfigFile(cfgpath)
		if err := cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("mixutil: problem reading configuration file: %v", err)
		}
	}
	lvl, err := logrus.ParseLevel(cfg.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("mixutil: %v", err)
	}
	cfg.Log.SetLevel(lvl)
	return nil
}

// getString returns the option with environment variables expanded.
func (cfg *Cfg) getString(name string) string {
	return os.ExpandEnv(cfg.GetString(name))
}

// getStringSlice returns a list option with environment variables
// expanded. Lists given as a single string, for example in an environment
// variable, are split at commas.
func (cfg *Cfg) getStringSlice(name string) []string {
	var s []string
	switch v := cfg.Get(name).(type) {
	case string:
		v = strings.TrimSuffix(strings.TrimPrefix(v, "["), "]")
		if v != "" {
			s = strings.Split(v, ",")
		}
	default:
		s = cast.ToStringSlice(v)
	}
	o := make([]string, 0, len(s))
	for _, ss := range s {
		if ss = strings.TrimSpace(os.ExpandEnv(ss)); ss != "" {
			o = append(o, ss)
		}
	}
	return o
}

func (cfg *Cfg) openPostgres(ctx context.Context) (platform.Platform, error) {
	dsn := cfg.getString("platform-dsn")
	if dsn == "" {
		return nil, fmt.Errorf("mixutil: platform-dsn is not set")
	}
	return platform.OpenPostgres(ctx, cfg.GetString("platform"), dsn)
}

// solver returns the configured solver.
func (cfg *Cfg) solver() (platform.Solver, error) {
	if cfg.Solver != nil {
		return cfg.Solver, nil
	}
	cmd := cfg.GetString("Solver.Command")
	if cmd == "" {
		return nil, fmt.Errorf("mixutil: Solver.Command is not set")
	}
	s := &platform.ExecSolver{
		Command: cmd,
		Args:    cfg.getStringSlice("Solver.Args"),
		Dir:     cfg.getString("Solver.Dir"),
		Log:     cfg.Log,
	}
	if cfg.GetBool("macro") {
		s.Env = append(s.Env, "MIX_MACRO=1")
	}
	return s, nil
}
