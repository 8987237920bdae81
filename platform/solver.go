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

package platform

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Solver solves a stored scenario and stores its solution.
type Solver interface {
	Solve(ctx context.Context, ref Ref) error
}

// SolverFunc is a function that implements Solver.
type SolverFunc func(ctx context.Context, ref Ref) error

// Solve implements Solver.
func (f SolverFunc) Solve(ctx context.Context, ref Ref) error { return f(ctx, ref) }

// SolveError holds the output of a failed solver run.
type SolveError struct {
	Ref    Ref
	Output string
	Err    error
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("platform: solving %s: %v\n%s", e.Ref, e.Err, e.Output)
}

func (e *SolveError) Unwrap() error { return e.Err }

// ExecSolver runs an external program, such as GAMS, to solve a scenario.
// In Args, the placeholders {url}, {platform}, {model}, {scenario} and
// {version} are replaced by the corresponding parts of the scenario
// reference. Environment variables are expanded in Command.
type ExecSolver struct {
	Command string
	Args    []string

	// Dir is the working directory of the command.
	Dir string

	// Env holds additional environment variables in the form key=value.
	Env []string

	Log logrus.FieldLogger
}

// Solve implements Solver. The output of a failing command is returned
// unchanged in a *SolveError. Failures are not retried.
func (s *ExecSolver) Solve(ctx context.Context, ref Ref) error {
	r := strings.NewReplacer(
		"{url}", ref.String(),
		"{platform}", ref.Platform,
		"{model}", ref.Model,
		"{scenario}", ref.Scenario,
		"{version}", strconv.Itoa(ref.Version),
	)
	args := make([]string, len(s.Args))
	for i, a := range s.Args {
		args[i] = r.Replace(a)
	}
	cmd := exec.CommandContext(ctx, os.ExpandEnv(s.Command), args...)
	cmd.Dir = s.Dir
	cmd.Env = append(os.Environ(), s.Env...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{"scenario": ref.String(), "command": s.Command}).Info("solving")
	}
	if err := cmd.Run(); err != nil {
		return &SolveError{Ref: ref, Output: out.String(), Err: err}
	}
	if s.Log != nil {
		s.Log.WithField("scenario", ref.String()).Debug(out.String())
	}
	return nil
}
