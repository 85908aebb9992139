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

	"github.com/mlnoga/myopic/internal/fits"
	"github.com/mlnoga/myopic/internal/stats"
)

// Basic statistics of a plane, recording background level and noise next to the fit
type OpStats struct {
	MeasurementBase
	Samples int `json:"samples"` // Values sampled for the median, 0=default
}

func init() { SetMeasurementFactory(func() Measurement { return NewOpStatsDefault() }) } // register the measurement for JSON decoding

func NewOpStatsDefault() *OpStats { return NewOpStats(stats.DefaultSamples) }

func NewOpStats(samples int) *OpStats {
	return &OpStats{
		MeasurementBase: MeasurementBase{Type: "stats"},
		Samples:         samples,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpStats) UnmarshalJSON(data []byte) error {
	type defaults OpStats
	def := defaults(*NewOpStatsDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpStats(def)
	return nil
}

func (op *OpStats) Columns() []string { return stats.Names }

func (op *OpStats) Measure(p *fits.Plane, m *fits.Metadata, c *Context) ([]float64, error) {
	data := make([]float32, len(p.Data))
	for i, v := range p.Data {
		data[i] = float32(v)
	}
	s, err := stats.Compute(data, op.Samples)
	if err != nil {
		return nil, fmt.Errorf("%d: %s: %w", m.ID, p.ID, err)
	}
	fmt.Fprintf(c.Log, "%d: %s %v\n", m.ID, p.ID, s)
	return s.Values(), nil
}

// Gaussian noise level of a plane, estimated from its high frequency content
type OpNoise struct {
	MeasurementBase
}

func init() { SetMeasurementFactory(func() Measurement { return NewOpNoise() }) } // register the measurement for JSON decoding

func NewOpNoise() *OpNoise {
	return &OpNoise{MeasurementBase: MeasurementBase{Type: "noise"}}
}

func (op *OpNoise) Columns() []string { return []string{"noise"} }

func (op *OpNoise) Measure(p *fits.Plane, m *fits.Metadata, c *Context) ([]float64, error) {
	data := make([]float32, len(p.Data))
	for i, v := range p.Data {
		data[i] = float32(v)
	}
	noise, err := stats.EstimateNoise(data, p.Width)
	if err != nil {
		return nil, fmt.Errorf("%d: %s: %w", m.ID, p.ID, err)
	}
	return []float64{float64(noise)}, nil
}
