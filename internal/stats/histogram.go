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
	"errors"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// Calculate histogram of data between min and max into given bins. Values outside [min,max] and NaNs are skipped
func Histogram(data []float32, min, max float32, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	scale := float32(len(bins)-1) / (max - min)
	for _, d := range data {
		if !(d >= min && d <= max) {
			continue
		}
		bins[int((d-min)*scale)]++
	}
}

// Center value of the given histogram bin
func binCenter(i int, min, max float32, numBins int) float32 {
	return min + (float32(i)+0.5)*(max-min)/float32(numBins-1)
}

// Returns the location and the value of the histogram peak
func GetPeak(bins []int32, min, max float32) (x, y float32) {
	maxIndex, maxValue := 0, int32(math.MinInt32)
	for i, v := range bins {
		if v > maxValue {
			maxIndex, maxValue = i, v
		}
	}

	x = binCenter(maxIndex, min, max, len(bins))
	y = float32(maxValue)
	if maxIndex+1 < len(bins) {
		y = 0.5 * float32(maxValue+bins[maxIndex+1])
	}
	return x, y
}

// Calculates the mode and the standard deviation of the given histogram
// by fitting a scaled normal distribution to it with Nelder-Mead
func GetModeStdDevFromHistogram(bins []int32, min, max float32) (mode, stdDev float32, err error) {
	if len(bins) < 2 || !(max > min) {
		return 0, 0, errors.New("histogram needs at least two bins and a positive range")
	}

	// Take an educated initial guess: the maximum value of the histogram, and a width of a few bins
	peak, peakVal := GetPeak(bins, min, max)
	binWidth := (max - min) / float32(len(bins)-1)

	// Now minimize the distance between the histogram and a normal distribution
	x0 := []float64{float64(peakVal) * 10 * float64(binWidth) * math.Sqrt(2*math.Pi), float64(peak), 10 * float64(binWidth)}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			alpha, mu, sigma := x[0], x[1], x[2]
			scaler := alpha / (sigma * math.Sqrt(2*math.Pi))
			sumSqDiff := 0.0
			for i, y := range bins {
				xmusig := (float64(binCenter(i, min, max, len(bins))) - mu) / sigma
				diff := float64(y) - scaler*math.Exp(-0.5*xmusig*xmusig)
				sumSqDiff += diff * diff
			}
			return math.Sqrt(sumSqDiff / float64(len(bins)))
		},
	}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return -1, -1, err
	}
	return float32(result.X[1]), float32(math.Abs(result.X[2])), nil
}
