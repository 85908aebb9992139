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

package gml

import (
	"errors"
	"fmt"
	"math"

	"github.com/mlnoga/myopic/internal/grid"
	"github.com/mlnoga/myopic/internal/model"
	"github.com/mlnoga/myopic/internal/spectrum"
	"github.com/mlnoga/myopic/internal/zernike"
)

// Returned when the weights admit no geometric mean, or the cost is not finite
var ErrIllPosed = errors.New("ill-posed objective")

var ErrShapeMismatch = grid.ErrShapeMismatch

// Generalized maximum likelihood cost of a parameter set given an observed power spectrum.
// Holds preallocated buffers, so an Objective must not be used concurrently. The Engine may be shared.
type Objective struct {
	engine *zernike.Engine
	grid   *grid.Grid
	psd    *spectrum.PSD
	modes  zernike.ModeSet

	prior   []float64
	otf     []float64
	scratch []float64
}

func NewObjective(e *zernike.Engine, g *grid.Grid, psd *spectrum.PSD, modes zernike.ModeSet) (*Objective, error) {
	if err := g.CheckShape(psd.Width, psd.Height); err != nil {
		return nil, err
	}
	if len(psd.Data) != g.Len() {
		return nil, fmt.Errorf("%w: psd has %d values for %dx%d", ErrShapeMismatch, len(psd.Data), psd.Width, psd.Height)
	}
	if err := modes.Check(); err != nil {
		return nil, err
	}
	n := g.Len()
	return &Objective{
		engine:  e,
		grid:    g,
		psd:     psd,
		modes:   append(zernike.ModeSet{}, modes...),
		prior:   make([]float64, n),
		otf:     make([]float64, n),
		scratch: make([]float64, n),
	}, nil
}

// Computes sum(W*PSD) / exp(mean(log W[W>0])) with weights W = P/(|OTF|^2+P),
// where P is the power law prior. Amplitudes of p belong to the modes of the objective.
func (o *Objective) Cost(p Parameters) (float64, error) {
	model.PowerLawInto(o.prior, o.grid.Dist, p.Alpha, p.Beta)
	err := model.TransferFunctionInto(o.otf, o.scratch, o.engine, o.grid, p.Resolution, o.modes, p.Amplitudes)
	if errors.Is(err, model.ErrZeroEnergy) {
		return 0, fmt.Errorf("%w: %w", ErrIllPosed, err)
	} else if err != nil {
		return 0, err
	}

	numer, logSum, positive := 0.0, 0.0, 0
	for i, prior := range o.prior {
		m2 := o.otf[i] * o.otf[i]
		w := 0.0
		if den := m2 + prior; den != 0 {
			w = prior / den
		}
		numer += w * o.psd.Data[i]
		if w > 0 && !math.IsInf(w, 1) {
			logSum += math.Log(w)
			positive++
		}
	}
	if positive == 0 {
		return 0, fmt.Errorf("%w: no positive weights at alpha %g beta %g", ErrIllPosed, p.Alpha, p.Beta)
	}
	cost := numer / math.Exp(logSum/float64(positive))
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return 0, fmt.Errorf("%w: cost %g at %s", ErrIllPosed, cost, p)
	}
	return cost, nil
}

func (o *Objective) Modes() zernike.ModeSet { return o.modes }
