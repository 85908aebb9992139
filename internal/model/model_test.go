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
	"math"
	"sort"
	"testing"

	"github.com/mlnoga/myopic/internal/grid"
	"github.com/mlnoga/myopic/internal/zernike"
)

func mustGrid(t *testing.T, width, height int) *grid.Grid {
	g, err := grid.Build(width, height)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestTransferFunctionUnitSum(t *testing.T) {
	e := zernike.NewEngine()
	tcs := []struct {
		Width, Height int
		Resolution    float64
		Amplitudes    []float64
	}{
		{16, 16, 2, []float64{0.01, -0.02, 0.03}},
		{32, 24, 3, []float64{0.1, 0.2, -0.05}},
		{9, 9, 4.5, []float64{0, 0, 0}},
	}
	for _, tc := range tcs {
		g := mustGrid(t, tc.Width, tc.Height)
		otf, err := TransferFunction(e, g, tc.Resolution, zernike.DefaultModes, tc.Amplitudes)
		if err != nil {
			t.Fatal(err)
		}
		sum := 0.0
		for _, v := range otf {
			sum += v
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("%dx%d res %g sum=%g; want 1", tc.Width, tc.Height, tc.Resolution, sum)
		}
	}
}

func TestTransferFunctionFlatWithoutAberrations(t *testing.T) {
	e := zernike.NewEngine()
	g := mustGrid(t, 8, 8)
	// pupil 2/pi keeps the whole grid inside the unit disk
	otf, err := TransferFunction(e, g, 2, zernike.DefaultModes, []float64{0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range otf {
		if math.Abs(v-1.0/64) > 1e-15 {
			t.Errorf("otf[%d]=%g; want %g", i, v, 1.0/64)
		}
	}
}

func TestTransferFunctionMask(t *testing.T) {
	e := zernike.NewEngine()
	g := mustGrid(t, 21, 21)
	// pupil 1 leaves the unit disk of the pupil plane
	otf, err := TransferFunction(e, g, math.Pi, zernike.DefaultModes, []float64{0.01, 0.01, 0.01})
	if err != nil {
		t.Fatal(err)
	}
	inside := 0
	for i, v := range otf {
		if g.Rho[i] >= 1 {
			if v != 0 {
				t.Errorf("otf[%d]=%g at rho %g; want 0", i, v, g.Rho[i])
			}
		} else if v != 0 {
			inside++
		}
	}
	if inside == 0 {
		t.Errorf("no non-zero values inside the pupil")
	}
}

func TestTransferFunctionErrors(t *testing.T) {
	e := zernike.NewEngine()
	g := mustGrid(t, 8, 8)
	if _, err := TransferFunction(e, g, 2, zernike.DefaultModes, []float64{0.1}); !errors.Is(err, grid.ErrShapeMismatch) {
		t.Errorf("short amplitudes err=%v; want ErrShapeMismatch", err)
	}
	if _, err := TransferFunction(e, g, 2, zernike.ModeSet{{N: 2, M: 4}}, []float64{0.1}); !errors.Is(err, zernike.ErrInvalidMode) {
		t.Errorf("mode (2,4) err=%v; want ErrInvalidMode", err)
	}
	// at zero resolution every pixel sees Z(2,0)(0)=-1, cancelling the piston
	if _, err := TransferFunction(e, g, 0, zernike.ModeSet{{N: 2, M: 0}}, []float64{1}); !errors.Is(err, ErrZeroEnergy) {
		t.Errorf("cancelled piston err=%v; want ErrZeroEnergy", err)
	}
}

func TestPowerLawMonotonic(t *testing.T) {
	g := mustGrid(t, 16, 12)
	dist := append([]float64{}, g.Dist...)
	sort.Float64s(dist)
	for _, beta := range []float64{-3, -1, 0, 0.5, 2, 5} {
		p := PowerLaw(dist, 1, beta)
		for i := 1; i < len(p); i++ {
			if p[i] < p[i-1] {
				t.Errorf("beta %g: p[%d]=%g < p[%d]=%g; want non-decreasing", beta, i, p[i], i-1, p[i-1])
				break
			}
		}
		if !(p[0] > 0) || math.IsInf(p[len(p)-1], 0) {
			t.Errorf("beta %g: range [%g,%g]; want positive and finite", beta, p[0], p[len(p)-1])
		}
	}
}

func TestPowerLawValues(t *testing.T) {
	p := PowerLaw([]float64{0.5, -0.5, 0}, 2, -2)
	if math.Abs(p[0]-25) > 1e-12 || p[0] != p[1] {
		t.Errorf("p(+-0.5)=%g,%g; want 25", p[0], p[1])
	}
	if want := 100 * Epsilon * Epsilon; math.Abs(p[2]-want) > 1e-12*want {
		t.Errorf("p(0)=%g; want %g", p[2], want)
	}
}
