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

package spectrum

import (
	"fmt"
	"math"

	"github.com/mlnoga/myopic/internal/grid"
)

// Default order of the generalized Gaussian apodisation window
const DefaultApodisationOrder = 8

// Generalized Gaussian window of m samples, exp(-1/2 |(n-(m-1)/2)/sigma|^(2p))
func GeneralGaussian(m int, p, sigma float64) []float64 {
	res := make([]float64, m)
	center := float64(m-1) / 2
	for n := range res {
		res[n] = math.Exp(-0.5 * math.Pow(math.Abs((float64(n)-center)/sigma), 2*p))
	}
	return res
}

// Attenuates the image borders towards zero by multiplying with the outer product of
// two generalized Gaussian windows of the given order, with sigma = size/2 - border
// on each axis. Reduces spectral leakage from the implicit periodicity of the FFT.
// Returns a new slice.
func Apodise(plane []float64, width, height, border, order int) ([]float64, error) {
	if len(plane) != width*height {
		return nil, fmt.Errorf("%w: plane has %d pixels, expected %dx%d", grid.ErrShapeMismatch, len(plane), width, height)
	}
	sigX, sigY := width/2-border, height/2-border
	if border < 0 || sigX < 1 || sigY < 1 {
		return nil, fmt.Errorf("border %d does not fit a %dx%d image", border, width, height)
	}
	wx := GeneralGaussian(width, float64(order), float64(sigX))
	wy := GeneralGaussian(height, float64(order), float64(sigY))

	res := make([]float64, len(plane))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			res[i] = plane[i] * wy[y] * wx[x]
		}
	}
	return res, nil
}
