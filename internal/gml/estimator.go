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
	"time"

	"github.com/mlnoga/myopic/internal/grid"
	"github.com/mlnoga/myopic/internal/spectrum"
	"github.com/mlnoga/myopic/internal/zernike"
	"gonum.org/v1/gonum/optimize"
)

// Finite cost substituted for ill-posed evaluations during a fit
const IllPosedPenalty = 1e300

// Relative step of the initial simplex for coordinates equal to zero,
// and number of major iterations without improvement before a fit counts as converged
const (
	zeroStep        = 0.00025
	stallIterations = 100
)

type Options struct {
	MaxIterations  int     `json:"maxIterations"  yaml:"maxIterations"`  // Budget of Nelder-Mead iterations over all restarts
	MaxEvaluations int     `json:"maxEvaluations" yaml:"maxEvaluations"` // Budget of cost evaluations over all restarts
	Tolerance      float64 `json:"tolerance"      yaml:"tolerance"`      // Relative cost improvement below which iterations count as stalled
	InitialStep    float64 `json:"initialStep"    yaml:"initialStep"`    // Relative size of the initial simplex
	Restarts       int     `json:"restarts"       yaml:"restarts"`       // Number of times the simplex is rebuilt around the best point

	// Called after every cost evaluation with its 1-based count and the cost
	Observer func(evaluation int, cost float64) `json:"-" yaml:"-"`
}

func DefaultOptions() *Options {
	return &Options{
		MaxIterations:  5000,
		MaxEvaluations: 10000,
		Tolerance:      1e-10,
		InitialStep:    0.05,
		Restarts:       1,
	}
}

// Outcome of a fit. Converged is false if a budget ran out, in which case
// Parameters still holds the best point found.
type Result struct {
	Parameters  Parameters    `json:"parameters"`
	Cost        float64       `json:"cost"`
	Converged   bool          `json:"converged"`
	Status      string        `json:"status"`
	Costs       []float64     `json:"costs,omitempty"` // Cost of every evaluation, in order
	Evaluations int           `json:"evaluations"`
	Iterations  int           `json:"iterations"`
	IllPosed    int           `json:"illPosed"` // Evaluations replaced by IllPosedPenalty
	Runtime     time.Duration `json:"runtime"`
}

// Computes the power spectrum of the given plane and fits the parameters to it
func Estimate(e *zernike.Engine, plane []float64, width, height int, modes zernike.ModeSet, guess Guess, fitResolution bool, opts *Options) (*Result, error) {
	psd, err := spectrum.Compute(plane, width, height)
	if err != nil {
		return nil, err
	}
	return Fit(e, psd, modes, guess, fitResolution, opts)
}

// Fits prior and transfer function parameters to the power spectrum by minimizing the
// generalized likelihood cost with Nelder-Mead, starting from the defaults merged with guess.
// Modes default to zernike.DefaultModes, opts to DefaultOptions(). If fitResolution is false,
// the resolution is held at its starting value.
func Fit(e *zernike.Engine, psd *spectrum.PSD, modes zernike.ModeSet, guess Guess, fitResolution bool, opts *Options) (*Result, error) {
	start := time.Now()
	if modes == nil {
		modes = zernike.DefaultModes
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := modes.Check(); err != nil {
		return nil, err
	}
	g, err := grid.Build(psd.Width, psd.Height)
	if err != nil {
		return nil, err
	}
	obj, err := NewObjective(e, g, psd, modes)
	if err != nil {
		return nil, err
	}
	initial, err := DefaultParameters(modes).Merge(guess)
	if err != nil {
		return nil, err
	}

	f := &fitter{obj: obj, initial: initial, fitResolution: fitResolution, observer: opts.Observer, bestF: math.Inf(1)}
	res := &Result{Status: optimize.NotTerminated.String()}

	x := initial.Vector(fitResolution)
	if _, err := obj.Cost(initial); err != nil && !errors.Is(err, ErrIllPosed) {
		return nil, err
	}

	for round := 0; round <= opts.Restarts; round++ {
		vertices, values := f.simplex(x, opts.InitialStep)
		remEvals, remIters := opts.MaxEvaluations-f.evaluations, opts.MaxIterations-res.Iterations
		if opts.MaxEvaluations > 0 && remEvals <= 0 {
			res.Converged, res.Status = false, optimize.FunctionEvaluationLimit.String()
			break
		}
		if opts.MaxIterations > 0 && remIters <= 0 {
			res.Converged, res.Status = false, optimize.IterationLimit.String()
			break
		}
		settings := &optimize.Settings{
			MajorIterations: max(remIters, 0),
			FuncEvaluations: max(remEvals, 0),
			Converger: &optimize.FunctionConverge{
				Relative:   opts.Tolerance,
				Iterations: stallIterations,
			},
		}
		method := &optimize.NelderMead{InitialVertices: vertices, InitialValues: values}
		r, err := optimize.Minimize(optimize.Problem{Func: f.cost}, x, settings, method)
		if f.fatal != nil {
			return nil, f.fatal
		}
		if r == nil {
			return nil, fmt.Errorf("nelder-mead: %w", err)
		}
		res.Iterations += r.MajorIterations
		res.Status = r.Status.String()
		res.Converged = err == nil && !r.Status.Early()
		if !res.Converged {
			break
		}
		x = append(x[:0], f.bestX...)
	}

	res.Parameters = initial.FromVector(f.bestX, fitResolution)
	res.Cost = f.bestF
	res.Costs = f.costs
	res.Evaluations = f.evaluations
	res.IllPosed = f.illPosed
	res.Runtime = time.Since(start)
	return res, nil
}

// Cost function state of one fit. Tracks every evaluation and the best point seen.
type fitter struct {
	obj           *Objective
	initial       Parameters
	fitResolution bool
	observer      func(int, float64)

	costs       []float64
	evaluations int
	illPosed    int
	bestX       []float64
	bestF       float64
	fatal       error
}

func (f *fitter) cost(x []float64) float64 {
	c, err := f.obj.Cost(f.initial.FromVector(x, f.fitResolution))
	if err != nil {
		if !errors.Is(err, ErrIllPosed) {
			if f.fatal == nil {
				f.fatal = err
			}
		} else {
			f.illPosed++
		}
		c = IllPosedPenalty
	}
	f.evaluations++
	f.costs = append(f.costs, c)
	if c < f.bestF || f.bestX == nil {
		f.bestF = c
		f.bestX = append(f.bestX[:0], x...)
	}
	if f.observer != nil {
		f.observer(f.evaluations, c)
	}
	return c
}

// Builds an initial simplex around x, moving one coordinate per vertex by a relative step,
// or by zeroStep where the coordinate is zero. Returns the vertices and their costs.
func (f *fitter) simplex(x []float64, step float64) ([][]float64, []float64) {
	if step == 0 {
		step = DefaultOptions().InitialStep
	}
	dim := len(x)
	vertices := make([][]float64, dim+1)
	values := make([]float64, dim+1)
	for i := range vertices {
		v := append([]float64{}, x...)
		if i > 0 {
			if v[i-1] != 0 {
				v[i-1] *= 1 + step
			} else {
				v[i-1] = zeroStep
			}
		}
		vertices[i] = v
		values[i] = f.cost(v)
	}
	return vertices, values
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
