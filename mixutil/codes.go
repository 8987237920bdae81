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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spatialmodel/mixmodels/codelist"
	"github.com/spf13/cobra"
)

func (cfg *Cfg) codesCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the code lists in the data directory.",
		Long: `check loads every code list under data-dir and verifies its structure.
Node lists must be trees whose regions do not share countries, and node
lists marked exhaustive must include every code in Codes.Reference.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var ref []string
			if f := cfg.getString("Codes.Reference"); f != "" {
				var err error
				if ref, err = readLines(f); err != nil {
					return err
				}
			}
			n, err := checkCodes(cfg.getString("data-dir"), ref)
			if err != nil {
				return err
			}
			cmd.Printf("checked %d code lists\n", n)
			return nil
		},
		DisableAutoGenTag: true,
	}
}

// checkCodes checks every code list in dir, organized as dir/KIND/ID.yaml,
// and returns the number of lists checked.
func checkCodes(dir string, reference []string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*", "*.yaml"))
	if err != nil {
		return 0, fmt.Errorf("mixutil: %v", err)
	}
	sort.Strings(files)
	var errs []string
	for _, f := range files {
		kind := filepath.Base(filepath.Dir(f))
		if err := checkList(f, kind, reference); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return len(files), fmt.Errorf("mixutil: %d invalid code lists:\n%s", len(errs), strings.Join(errs, "\n"))
	}
	return len(files), nil
}

func checkList(file, kind string, reference []string) error {
	l, err := codelist.LoadFile(file, codelist.DefaultOptions(kind))
	if err != nil {
		return err
	}
	if err := l.CheckTree(); err != nil {
		return err
	}
	if kind != "node" {
		return nil
	}
	if err := l.CheckDisjoint(1); err != nil {
		return err
	}
	if len(reference) > 0 {
		return l.CheckCoverage(reference)
	}
	return nil
}

// readLines reads the non-empty lines of a file, skipping comments
// starting with '#'.
func readLines(file string) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("mixutil: %v", err)
	}
	defer f.Close()
	var o []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		l := strings.TrimSpace(s.Text())
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		o = append(o, l)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("mixutil: reading %s: %v", file, err)
	}
	return o, nil
}
