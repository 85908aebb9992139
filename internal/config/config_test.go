// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mlnoga/myopic/internal/gml"
	"github.com/mlnoga/myopic/internal/ops"
	"github.com/mlnoga/myopic/internal/zernike"
)

const example = `
modes: ["2,-2", "(2,2)", "4,0", "3,1"]
guess:
  alpha: 1.2
  "2,2": 0.01
fitResolution: false
apodise: 16
optimizer:
  maxEvaluations: 500
  restarts: 2
measurements: [gml, stats]
threads: 4
`

func TestParseConfiguration(t *testing.T) {
	c, err := ParseConfiguration([]byte(example))
	if err != nil {
		t.Fatal(err)
	}
	if len(c.ModeSet) != 4 || c.ModeSet[3] != (zernike.Mode{N: 3, M: 1}) {
		t.Errorf("modes=%v; want 4 modes ending in (3,1)", c.ModeSet)
	}
	if c.InitialGuess["alpha"] != 1.2 || c.InitialGuess["(2,2)"] != 0.01 {
		t.Errorf("guess=%v; want alpha 1.2 and (2,2) 0.01", c.InitialGuess)
	}
	if c.FitResolution || c.Apodise != 16 || c.Threads != 4 || c.Store != "measures" {
		t.Errorf("config=%+v", c)
	}
	def := gml.DefaultOptions()
	if c.Optimizer.MaxEvaluations != 500 || c.Optimizer.Restarts != 2 || c.Optimizer.MaxIterations != def.MaxIterations {
		t.Errorf("optimizer=%+v; want 500 evaluations, 2 restarts, default iterations", c.Optimizer)
	}

	ms, err := c.BuildMeasurements()
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 2 || ms[0].GetType() != "gml" || ms[1].GetType() != "stats" {
		t.Fatalf("measurements=%v", ms)
	}
	op := ms[0].(*ops.OpGML)
	if op.FitResolution || op.Apodise != 16 || len(op.Modes) != 4 || op.Options.MaxEvaluations != 500 {
		t.Errorf("gml measurement=%+v", op)
	}
}

func TestDefaults(t *testing.T) {
	c, err := ParseConfiguration([]byte(""))
	if err != nil {
		t.Fatal(err)
	}
	if len(c.ModeSet) != len(zernike.DefaultModes) || !c.FitResolution || len(c.Measurements) != 1 {
		t.Errorf("defaults=%+v", c)
	}
}

func TestInvalid(t *testing.T) {
	tcs := []struct {
		Yaml string
		Want error
	}{
		{`modes: ["2,3"]`, zernike.ErrInvalidMode},
		{`guess: {gamma: 1}`, gml.ErrUnknownParameter},
		{`guess: {"3,1": 1}`, gml.ErrUnknownParameter},
	}
	for _, tc := range tcs {
		if _, err := ParseConfiguration([]byte(tc.Yaml)); !errors.Is(err, tc.Want) {
			t.Errorf("%s: err=%v; want %v", tc.Yaml, err, tc.Want)
		}
	}
	for _, y := range []string{`measurements: [psf]`, `apodise: -1`, `threads: -2`, `modes: [`} {
		if _, err := ParseConfiguration([]byte(y)); err == nil {
			t.Errorf("%s: no error", y)
		}
	}
}

func TestLoadConfiguration(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "myopic.yaml")
	if err := os.WriteFile(fileName, []byte(example), 0644); err != nil {
		t.Fatal(err)
	}
	if c, err := LoadConfiguration(fileName); err != nil || c.Apodise != 16 {
		t.Errorf("apodise %d err %v; want 16", c.Apodise, err)
	}
	if _, err := LoadConfiguration(fileName + ".missing"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err=%v; want ErrNotExist", err)
	}
}
