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

package stats

import (
	"fmt"
	"math"

	"github.com/mlnoga/myopic/internal/qsort"
	"github.com/valyala/fastrand"
)

// Defaults for Compute
const (
	DefaultSamples = 8192 // Values sampled for the approximate median. Smaller planes use an exact median
	DefaultBins    = 256  // Histogram bins for the location and scale estimate
)

// Column names matching Values()
var Names = []string{"min", "max", "mean", "stdDev", "median", "location", "scale"}

// Basic statistics of an image plane
type Stats struct {
	Pixels   int     `json:"pixels"`
	Min      float32 `json:"min"`
	Max      float32 `json:"max"`
	Mean     float32 `json:"mean"`
	StdDev   float32 `json:"stdDev"`
	Median   float32 `json:"median"`
	Location float32 `json:"location"` // Histogram peak
	Scale    float32 `json:"scale"`    // Standard deviation of a normal distribution fitted around the peak
}

// Calculates statistics for the given data. The median is exact if the data holds up to numSamples values,
// and approximated from numSamples random samples otherwise. Location and scale fall back to
// median and standard deviation if the histogram fit fails.
func Compute(data []float32, numSamples int) (*Stats, error) {
	data = withoutNaNs(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("no data")
	}
	if numSamples <= 0 {
		numSamples = DefaultSamples
	}
	s := &Stats{Pixels: len(data)}
	s.Min, s.Mean, s.Max = MinMeanMax(data)
	s.StdDev = float32(math.Sqrt(Variance(data, s.Mean)))

	if len(data) <= numSamples {
		s.Median = qsort.QSelectMedianFloat32(append([]float32(nil), data...))
	} else {
		s.Median = FastApproxMedian(data, make([]float32, numSamples))
	}

	s.Location, s.Scale = s.Median, s.StdDev
	if s.Max > s.Min {
		bins := make([]int32, DefaultBins)
		Histogram(data, s.Min, s.Max, bins)
		if mode, stdDev, err := GetModeStdDevFromHistogram(bins, s.Min, s.Max); err == nil && mode >= s.Min && mode <= s.Max {
			s.Location, s.Scale = mode, stdDev
		}
	}
	return s, nil
}

// Returns data if it holds no NaNs, else a filtered copy
func withoutNaNs(data []float32) []float32 {
	for i, v := range data {
		if v != v {
			res := append([]float32(nil), data[:i]...)
			for _, w := range data[i+1:] {
				if w == w {
					res = append(res, w)
				}
			}
			return res
		}
	}
	return data
}

// Minimum, mean and maximum of the data, ignoring NaNs
func MinMeanMax(data []float32) (min, mean, max float32) {
	min, max = float32(math.MaxFloat32), float32(-math.MaxFloat32)
	sum, n := 0.0, 0
	for _, v := range data {
		if v != v {
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += float64(v)
		n++
	}
	if n == 0 {
		return 0, 0, 0
	}
	return min, float32(sum / float64(n)), max
}

// Population variance of the data around the given mean, ignoring NaNs
func Variance(data []float32, mean float32) float64 {
	sum, n := 0.0, 0
	for _, v := range data {
		if v != v {
			continue
		}
		d := float64(v - mean)
		sum += d * d
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Calculates fast approximate median of the (presumably large) data by subsampling the given number of values and taking the median of that.
// Uses provided samples array as scratchpad
func FastApproxMedian(data []float32, samples []float32) float32 {
	max := uint32(len(data))
	rng := fastrand.RNG{}
	for i := range samples {
		samples[i] = data[rng.Uint32n(max)]
	}
	return qsort.QSelectMedianFloat32(samples)
}

// Values in the order of Names
func (s *Stats) Values() []float64 {
	return []float64{float64(s.Min), float64(s.Max), float64(s.Mean), float64(s.StdDev),
		float64(s.Median), float64(s.Location), float64(s.Scale)}
}

func (s *Stats) String() string {
	return fmt.Sprintf("Min %.4g Max %.4g Mean %.4g StdDev %.4g Median %.4g Location %.4g Scale %.4g",
		s.Min, s.Max, s.Mean, s.StdDev, s.Median, s.Location, s.Scale)
}
