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
	"fmt"
	"os"

	"github.com/mlnoga/myopic/internal/gml"
	"github.com/mlnoga/myopic/internal/ops"
	"github.com/mlnoga/myopic/internal/zernike"
	"gopkg.in/yaml.v2"
)

/* Example config file ...

modes: ["2,-2", "2,2", "4,0", "3,1"]
guess:
  alpha: 1.2
  (2,2): 0.01
fitResolution: true
apodise: 16
optimizer:
  maxIterations: 5000
  maxEvaluations: 10000
  tolerance: 1e-10
  initialStep: 0.05
  restarts: 1
measurements: [gml, stats]
store: measures
threads: 4

*/

type Configuration struct {
	// Values from the file
	Modes         []string           `yaml:"modes"`
	Guess         map[string]float64 `yaml:"guess"`
	FitResolution bool               `yaml:"fitResolution"`
	Apodise       int                `yaml:"apodise"`
	Optimizer     gml.Options        `yaml:"optimizer"`
	Measurements  []string           `yaml:"measurements"`
	Store         string             `yaml:"store"`
	Threads       int                `yaml:"threads"`

	// Values we derive/compute
	ModeSet      zernike.ModeSet `yaml:"-"`
	InitialGuess gml.Guess       `yaml:"-"`
}

func NewConfiguration() Configuration {
	return Configuration{
		Modes:         stringsFromModes(zernike.DefaultModes),
		Guess:         map[string]float64{},
		FitResolution: true,
		Optimizer:     *gml.DefaultOptions(),
		Measurements:  []string{"gml"},
		Store:         "measures",
	}
}

func stringsFromModes(ms zernike.ModeSet) []string {
	ss := make([]string, len(ms))
	for i, md := range ms {
		ss[i] = md.String()
	}
	return ss
}

func LoadConfiguration(filename string) (Configuration, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return NewConfiguration(), fmt.Errorf("read '%s': %w", filename, err)
	}
	c, err := ParseConfiguration(contents)
	if err != nil {
		return c, fmt.Errorf("'%s': %w", filename, err)
	}
	return c, nil
}

// Parses a YAML configuration over the defaults and finalizes it
func ParseConfiguration(contents []byte) (Configuration, error) {
	c := NewConfiguration()
	if err := yaml.Unmarshal(contents, &c); err != nil {
		return c, fmt.Errorf("parse: %w", err)
	}
	return c, c.FinalizeConfiguration()
}

// FinalizeConfiguration does sanity checks and derives the parsed modes and guess
func (c *Configuration) FinalizeConfiguration() error {
	ms, err := zernike.ParseModeStrings(c.Modes)
	if err != nil {
		return err
	}
	if len(ms) == 0 {
		ms = zernike.DefaultModes
	}
	c.ModeSet = ms

	c.InitialGuess = gml.Guess{}
	for k, v := range c.Guess {
		if md, err := zernike.ParseMode(k); err == nil {
			k = md.String()
		}
		c.InitialGuess[k] = v
	}
	if _, err := gml.DefaultParameters(c.ModeSet).Merge(c.InitialGuess); err != nil {
		return err
	}

	if c.Apodise < 0 {
		return fmt.Errorf("apodise border %d must not be negative", c.Apodise)
	}
	if c.Threads < 0 {
		return fmt.Errorf("threads %d must not be negative", c.Threads)
	}
	if c.Optimizer.InitialStep < 0 || c.Optimizer.Tolerance < 0 || c.Optimizer.Restarts < 0 {
		return fmt.Errorf("optimizer settings must not be negative: %+v", c.Optimizer)
	}
	for _, m := range c.Measurements {
		if ops.GetMeasurementFactory(m) == nil {
			return fmt.Errorf("no measurement named '%s', expecting one of %v", m, ops.MeasurementTypes())
		}
	}
	return nil
}

// Builds the configured measurements
func (c *Configuration) BuildMeasurements() (ops.Measurements, error) {
	ms := ops.Measurements{}
	for _, name := range c.Measurements {
		m, err := ops.NewMeasurement(name)
		if err != nil {
			return nil, err
		}
		if _, ok := m.(*ops.OpGML); ok {
			opts := c.Optimizer
			m = ops.NewOpGML(c.ModeSet, c.InitialGuess, c.FitResolution, c.Apodise, &opts)
		}
		ms = append(ms, m)
	}
	return ms, nil
}
