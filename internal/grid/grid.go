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

package grid

import (
	"errors"
	"fmt"
	"math"
)

var ErrShapeMismatch = errors.New("shape mismatch")

// Coordinate grids matching an image of the given size. All slices are row-major,
// index y*Width+x, and must not be modified after Build.
type Grid struct {
	Width  int
	Height int

	Rho []float64 // Pupil plane radius, with x and y each spanning [-1,1]
	Phi []float64 // Pupil plane angle atan2(y,x)

	Dist []float64 // Radial frequency distance in cycles per pixel, zero frequency centered
}

// Builds the pupil plane and frequency distance grids for a width x height image
func Build(width, height int) (*Grid, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("%w: cannot build %dx%d grid", ErrShapeMismatch, width, height)
	}
	n := width * height
	g := &Grid{
		Width:  width,
		Height: height,
		Rho:    make([]float64, n),
		Phi:    make([]float64, n),
		Dist:   make([]float64, n),
	}

	xs, ys := Linspace(-1, 1, width), Linspace(-1, 1, height)
	us, vs := ShiftedFFTFreq(width), ShiftedFFTFreq(height)
	for y := 0; y < height; y++ {
		yy, v := ys[y], vs[y]
		for x := 0; x < width; x++ {
			xx, u := xs[x], us[x]
			i := y*width + x
			g.Rho[i] = math.Hypot(xx, yy)
			g.Phi[i] = math.Atan2(yy, xx)
			g.Dist[i] = math.Sqrt(u*u + v*v)
		}
	}
	return g, nil
}

func (g *Grid) Len() int { return g.Width * g.Height }

// Returns ErrShapeMismatch unless the grid has the given dimensions
func (g *Grid) CheckShape(width, height int) error {
	if g.Width != width || g.Height != height {
		return fmt.Errorf("%w: grid is %dx%d, data is %dx%d", ErrShapeMismatch, g.Width, g.Height, width, height)
	}
	return nil
}

// n evenly spaced samples over [lo,hi], including both ends. A single sample is lo.
func Linspace(lo, hi float64, n int) []float64 {
	res := make([]float64, n)
	if n == 1 {
		res[0] = lo
		return res
	}
	step := (hi - lo) / float64(n-1)
	for i := range res {
		res[i] = lo + float64(i)*step
	}
	res[n-1] = hi
	return res
}

// Signed sample frequencies of an n-point DFT in cycles per sample,
// in DFT order: 0, 1/n, ..., then the negative frequencies
func FFTFreq(n int) []float64 {
	res := make([]float64, n)
	half := (n - 1) / 2
	for i := 0; i <= half; i++ {
		res[i] = float64(i) / float64(n)
	}
	for i := half + 1; i < n; i++ {
		res[i] = float64(i-n) / float64(n)
	}
	return res
}

// FFTFreq rearranged so that zero frequency sits at index n/2, matching a shifted spectrum
func ShiftedFFTFreq(n int) []float64 {
	res := make([]float64, n)
	for i := range res {
		res[i] = float64(i-n/2) / float64(n)
	}
	return res
}
