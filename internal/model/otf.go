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

package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/mlnoga/myopic/internal/grid"
	"github.com/mlnoga/myopic/internal/zernike"
	"gonum.org/v1/gonum/floats"
)

// Returned when the masked transfer function sums to zero or a non-finite value,
// so it cannot be normalized to unit energy
var ErrZeroEnergy = errors.New("transfer function has no energy")

// Pupil radius in units of the pupil plane grid for a given resolution
func Pupil(resolution float64) float64 {
	return resolution / math.Pi
}

// Computes the optical transfer function on grid g as the sum of the piston mode
// with unit amplitude and amplitudes[i] times modes[i], all evaluated at the pupil
// plane radius scaled by resolution/pi. Zero outside the scaled unit disk, and
// normalized to unit sum. Returns a new slice.
func TransferFunction(e *zernike.Engine, g *grid.Grid, resolution float64, modes zernike.ModeSet, amplitudes []float64) ([]float64, error) {
	n := g.Len()
	dst := make([]float64, n)
	err := TransferFunctionInto(dst, make([]float64, n), e, g, resolution, modes, amplitudes)
	if err != nil {
		return nil, err
	}
	return dst, nil
}

// Like TransferFunction, but writes the result into dst and uses scaledRho as scratch.
// Both must have the length of the grid.
func TransferFunctionInto(dst, scaledRho []float64, e *zernike.Engine, g *grid.Grid, resolution float64, modes zernike.ModeSet, amplitudes []float64) error {
	if len(amplitudes) != len(modes) {
		return fmt.Errorf("%w: %d amplitudes for %d modes", grid.ErrShapeMismatch, len(amplitudes), len(modes))
	}
	if len(dst) != g.Len() || len(scaledRho) != g.Len() {
		return fmt.Errorf("%w: buffers of %d and %d for %dx%d grid", grid.ErrShapeMismatch, len(dst), len(scaledRho), g.Width, g.Height)
	}

	pupil := Pupil(resolution)
	for i, r := range g.Rho {
		scaledRho[i] = r * pupil
		dst[i] = 0
	}
	if err := e.EvaluateInto(dst, 1, zernike.Piston.N, zernike.Piston.M, scaledRho, g.Phi); err != nil {
		return err
	}
	for i, md := range modes {
		if err := e.EvaluateInto(dst, amplitudes[i], md.N, md.M, scaledRho, g.Phi); err != nil {
			return err
		}
	}

	for i, r := range scaledRho {
		if !(r < 1) {
			dst[i] = 0
		}
	}
	sum := floats.Sum(dst)
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return fmt.Errorf("%w: sum %g at resolution %g", ErrZeroEnergy, sum, resolution)
	}
	floats.Scale(1/sum, dst)
	return nil
}
