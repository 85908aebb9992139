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

package ops

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mlnoga/myopic/internal/fits"
)

// A measurement on a single image plane, producing one value per column
type Measurement interface {
	GetType() string
	Columns() []string
	Measure(p *fits.Plane, m *fits.Metadata, c *Context) ([]float64, error)
}

// Base type for measurements, including type information for JSON serializing/deserializing
type MeasurementBase struct {
	Type string `json:"type"`
}

func (mb *MeasurementBase) GetType() string { return mb.Type }

// Factory method for measurements. For JSON serializing/deserializing
type MeasurementFactory func() Measurement

// Mapping from measurement type strings to factory method for the type
var measurementFactories = map[string]MeasurementFactory{}

// Returns the measurement factory for a given type string
func GetMeasurementFactory(t string) MeasurementFactory {
	return measurementFactories[t]
}

// Registers a given type string for a given type of Measurement, identified via an exemplar generator
func SetMeasurementFactory(f MeasurementFactory) {
	t := f().GetType()
	if GetMeasurementFactory(t) != nil {
		panic(fmt.Sprintf("error: re-registering measurement key %s\n", t))
	}
	measurementFactories[t] = f
}

// Sorted names of all registered measurement types
func MeasurementTypes() []string {
	types := make([]string, 0, len(measurementFactories))
	for t := range measurementFactories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Creates a measurement of the given type with default settings
func NewMeasurement(t string) (Measurement, error) {
	f := GetMeasurementFactory(t)
	if f == nil {
		return nil, fmt.Errorf("unknown measurement type '%s', expecting one of %v", t, MeasurementTypes())
	}
	return f(), nil
}

// A list of polymorphic measurements, as read from JSON
type Measurements []Measurement

// Unmarshals a list of polymorphic measurements from JSON, reading the type field of each entry first.
// Inspired by https://alexkappa.medium.com/json-polymorphism-in-go-4cade1e58ed1
func (ms *Measurements) UnmarshalJSON(b []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(b, &raws); err != nil {
		return err
	}
	res := make(Measurements, 0, len(raws))
	for _, raw := range raws {
		var base MeasurementBase
		if err := json.Unmarshal(raw, &base); err != nil {
			return err
		}
		m, err := NewMeasurement(base.Type)
		if err != nil {
			return fmt.Errorf("%w in raw JSON message '%s'", err, string(raw))
		}
		if err := json.Unmarshal(raw, m); err != nil {
			return err
		}
		res = append(res, m)
	}
	*ms = res
	return nil
}
