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
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// TestHelperProcess is run as the solver by the tests below.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("MIX_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	args = args[1:]
	if os.Getenv("MIX_HELPER_FAIL") == "1" {
		fmt.Println("*** Error: infeasible")
		os.Exit(3)
	}
	fmt.Println(strings.Join(args, " "))
	os.Exit(0)
}

func helperSolver(fail bool) *ExecSolver {
	env := []string{"MIX_HELPER_PROCESS=1"}
	if fail {
		env = append(env, "MIX_HELPER_FAIL=1")
	}
	log, _ := test.NewNullLogger()
	return &ExecSolver{
		Command: os.Args[0],
		Args:    []string{"-test.run=TestHelperProcess", "--", "--model={model}", "--scenario={scenario}", "--version={version}", "{url}"},
		Env:     env,
		Log:     log,
	}
}

func TestExecSolver(t *testing.T) {
	ref := Ref{Platform: "local", Model: "MESSAGEix-GLOBIOM", Scenario: "baseline", Version: 2}
	s := helperSolver(false)
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	s.Log = log
	if err := s.Solve(context.Background(), ref); err != nil {
		t.Fatal(err)
	}
	want := "--model=MESSAGEix-GLOBIOM --scenario=baseline --version=2 ixmp://local/MESSAGEix-GLOBIOM/baseline#2"
	last := hook.LastEntry()
	if last == nil || !strings.Contains(last.Message, want) {
		t.Errorf("have %v, want output %q", last, want)
	}
}

func TestExecSolverFailure(t *testing.T) {
	ref := Ref{Platform: "local", Model: "m", Scenario: "s", Version: 1}
	err := helperSolver(true).Solve(context.Background(), ref)
	var serr *SolveError
	if !errors.As(err, &serr) {
		t.Fatalf("have %v, want *SolveError", err)
	}
	if !strings.Contains(serr.Output, "*** Error: infeasible") {
		t.Errorf("output: %q", serr.Output)
	}
	var exit *exec.ExitError
	if !errors.As(err, &exit) || exit.ExitCode() != 3 {
		t.Errorf("exit error: %v", err)
	}
}

func TestSolverFunc(t *testing.T) {
	var got Ref
	var s Solver = SolverFunc(func(ctx context.Context, ref Ref) error {
		got = ref
		return nil
	})
	ref := Ref{Model: "m", Scenario: "s"}
	if err := s.Solve(context.Background(), ref); err != nil || got != ref {
		t.Errorf("have %v, %v", got, err)
	}
}
