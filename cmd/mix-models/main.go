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

// Command mix-models prepares input data for the MESSAGEix-GLOBIOM
// integrated assessment model and builds, solves and reports its scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/spatialmodel/mixmodels/mixutil"
)

func main() {
	cfg := mixutil.InitializeConfig()
	if err := cfg.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
