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
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mlnoga/myopic/internal/grid"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// Returned when an image has no spectral power at all, e.g. because it is all zeros
var ErrNoPower = errors.New("image has no spectral power")

// Power spectral density of an image, zero frequency at (Width/2, Height/2).
// Row-major, non-negative, immutable once computed.
type PSD struct {
	Width  int
	Height int
	Data   []float64
}

func (p *PSD) Len() int { return p.Width * p.Height }

// Computes the power spectrum |FFT|^2 of the given plane, normalized so the
// largest entry is 1.
func Compute(plane []float64, width, height int) (*PSD, error) {
	if width < 1 || height < 1 || len(plane) != width*height {
		return nil, fmt.Errorf("%w: plane has %d pixels, expected %dx%d", grid.ErrShapeMismatch, len(plane), width, height)
	}
	seq := make([]complex128, len(plane))
	for i, v := range plane {
		seq[i] = complex(v, 0)
	}
	coeffs := FFT2Shifted(seq, width, height)

	data := make([]float64, len(coeffs))
	for i, c := range coeffs {
		a := cmplx.Abs(c)
		data[i] = a * a
	}
	max := floats.Max(data)
	if !(max > 0) || math.IsInf(max, 1) {
		return nil, fmt.Errorf("%w: peak power %g", ErrNoPower, max)
	}
	floats.Scale(1/max, data)
	return &PSD{Width: width, Height: height, Data: data}, nil
}

// Forward 2D FFT with the zero frequency shifted to the center on both input and output,
// i.e. fftshift(fft2(fftshift(seq))). Returns a new slice.
func FFT2Shifted(seq []complex128, width, height int) []complex128 {
	a := make([]complex128, len(seq))
	fftShift(a, seq, width, height)
	fft2InPlace(a, width, height, true)
	res := make([]complex128, len(seq))
	fftShift(res, a, width, height)
	return res
}

// Inverse of FFT2Shifted, normalized by the number of samples.
// Returns a new slice.
func IFFT2Shifted(coeffs []complex128, width, height int) []complex128 {
	a := make([]complex128, len(coeffs))
	ifftShift(a, coeffs, width, height)
	fft2InPlace(a, width, height, false)
	res := make([]complex128, len(coeffs))
	ifftShift(res, a, width, height)
	scale := complex(1/float64(width*height), 0)
	for i := range res {
		res[i] *= scale
	}
	return res
}

// Unnormalized 2D FFT of a row-major array, rows first, then columns
func fft2InPlace(a []complex128, width, height int, forward bool) {
	rowFFT := fourier.NewCmplxFFT(width)
	for y := 0; y < height; y++ {
		row := a[y*width : (y+1)*width]
		if forward {
			rowFFT.Coefficients(row, row)
		} else {
			rowFFT.Sequence(row, row)
		}
	}

	colFFT := fourier.NewCmplxFFT(height)
	col := make([]complex128, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			col[y] = a[y*width+x]
		}
		if forward {
			colFFT.Coefficients(col, col)
		} else {
			colFFT.Sequence(col, col)
		}
		for y := 0; y < height; y++ {
			a[y*width+x] = col[y]
		}
	}
}

// Moves index 0 to index n/2 on both axes
func fftShift(dst, src []complex128, width, height int) {
	for y := 0; y < height; y++ {
		yy := (y + height/2) % height
		for x := 0; x < width; x++ {
			xx := (x + width/2) % width
			dst[yy*width+xx] = src[y*width+x]
		}
	}
}

// Moves index n/2 back to index 0 on both axes
func ifftShift(dst, src []complex128, width, height int) {
	for y := 0; y < height; y++ {
		yy := (y + height/2) % height
		for x := 0; x < width; x++ {
			xx := (x + width/2) % width
			dst[y*width+x] = src[yy*width+xx]
		}
	}
}
