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
	"math"
	"testing"

	"github.com/mlnoga/myopic/internal/grid"
	"github.com/mlnoga/myopic/internal/model"
	"github.com/mlnoga/myopic/internal/spectrum"
	"github.com/mlnoga/myopic/internal/zernike"
	"github.com/valyala/fastrand"
)

var truth = Parameters{
	Alpha:      1.0,
	Beta:       2.0,
	Resolution: 2.0,
	Modes:      zernike.DefaultModes,
	Amplitudes: []float64{0.01, -0.02, 0.03},
}

// Expected power spectrum of an object following the prior, seen through the
// transfer function with white noise: proportional to 1/W = (|OTF|^2+P)/P.
func syntheticPSD(t *testing.T, e *zernike.Engine, width, height int, p Parameters) *spectrum.PSD {
	g, err := grid.Build(width, height)
	if err != nil {
		t.Fatal(err)
	}
	prior := model.PowerLaw(g.Dist, p.Alpha, p.Beta)
	otf, err := model.TransferFunction(e, g, p.Resolution, p.Modes, p.Amplitudes)
	if err != nil {
		t.Fatal(err)
	}
	data := make([]float64, len(prior))
	max := 0.0
	for i := range data {
		data[i] = (otf[i]*otf[i] + prior[i]) / prior[i]
		max = math.Max(max, data[i])
	}
	for i := range data {
		data[i] /= max
	}
	return &spectrum.PSD{Width: width, Height: height, Data: data}
}

func mustObjective(t *testing.T, e *zernike.Engine, psd *spectrum.PSD) *Objective {
	g, err := grid.Build(psd.Width, psd.Height)
	if err != nil {
		t.Fatal(err)
	}
	o, err := NewObjective(e, g, psd, zernike.DefaultModes)
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func TestCostMinimalAtTruth(t *testing.T) {
	e := zernike.NewEngine()
	o := mustObjective(t, e, syntheticPSD(t, e, 4, 4, truth))
	best, err := o.Cost(truth)
	if err != nil {
		t.Fatal(err)
	}
	x := truth.Vector(true)
	for i := range x {
		for _, factor := range []float64{0.8, 1.2} {
			y := append([]float64{}, x...)
			y[i] *= factor
			p := truth.FromVector(y, true)
			c, err := o.Cost(p)
			if err != nil {
				t.Fatal(err)
			}
			if !(c > best) {
				t.Errorf("cost %g at %s not above %g at truth", c, p, best)
			}
		}
	}
}

func TestRoundTrip(t *testing.T) {
	e := zernike.NewEngine()
	tcs := []struct {
		Size          int
		FitResolution bool
	}{
		{4, false},
		{4, true},
		{32, true},
	}
	for _, tc := range tcs {
		psd := syntheticPSD(t, e, tc.Size, tc.Size, truth)
		guess := Guess{"alpha": 1.03, "beta": 1.96, "(2,-2)": 0.0103, "(2,2)": -0.0194, "(4,0)": 0.0309}
		if tc.FitResolution {
			guess[KeyResolution] = 2.04
		}
		opts := &Options{MaxIterations: 50000, MaxEvaluations: 100000, Tolerance: 1e-15, InitialStep: 0.05, Restarts: 3}

		res, err := Fit(e, psd, zernike.DefaultModes, guess, tc.FitResolution, opts)
		if err != nil {
			t.Fatal(err)
		}
		got, want := res.Parameters.Map(), truth.Map()
		for key, w := range want {
			if math.Abs(got[key]-w) > 0.1*math.Abs(w) {
				t.Errorf("%dx%d fit resolution %v: %s=%g; want %g within 10%%", tc.Size, tc.Size, tc.FitResolution, key, got[key], w)
			}
		}
		if !tc.FitResolution && res.Parameters.Resolution != truth.Resolution {
			t.Errorf("%dx%d resolution=%g; want fixed at %g", tc.Size, tc.Size, res.Parameters.Resolution, truth.Resolution)
		}
		if res.Costs[0] < res.Cost {
			t.Errorf("%dx%d final cost %g above initial cost %g", tc.Size, tc.Size, res.Cost, res.Costs[0])
		}
	}
}

func TestFixedResolution(t *testing.T) {
	e := zernike.NewEngine()
	psd := syntheticPSD(t, e, 8, 8, truth)
	guess := Guess{"resolution": 2.345}
	for run := 0; run < 3; run++ {
		res, err := Fit(e, psd, nil, guess, false, &Options{MaxEvaluations: 300, InitialStep: 0.05})
		if err != nil {
			t.Fatal(err)
		}
		if res.Parameters.Resolution != 2.345 {
			t.Errorf("run %d resolution=%g; want 2.345", run, res.Parameters.Resolution)
		}
	}
}

func TestIllPosed(t *testing.T) {
	e := zernike.NewEngine()
	psd := syntheticPSD(t, e, 8, 8, truth)
	o := mustObjective(t, e, psd)
	for _, alpha := range []float64{-400, 400} {
		p := truth.Clone()
		p.Alpha = alpha
		c, err := o.Cost(p)
		if !errors.Is(err, ErrIllPosed) {
			t.Errorf("alpha %g cost=%g err=%v; want ErrIllPosed", alpha, c, err)
		}
	}

	res, err := Fit(e, psd, nil, Guess{"alpha": -400}, true, &Options{MaxEvaluations: 200})
	if err != nil {
		t.Fatal(err)
	}
	if res.IllPosed == 0 {
		t.Errorf("no ill-posed evaluations counted")
	}
	for i, c := range res.Costs {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			t.Errorf("cost[%d]=%g; want finite", i, c)
		}
	}
}

func TestFitErrors(t *testing.T) {
	e := zernike.NewEngine()
	psd := syntheticPSD(t, e, 8, 8, truth)

	short := &spectrum.PSD{Width: 8, Height: 8, Data: psd.Data[1:]}
	if _, err := Fit(e, short, nil, nil, true, nil); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("short psd err=%v; want ErrShapeMismatch", err)
	}
	g, _ := grid.Build(6, 8)
	if _, err := NewObjective(e, g, psd, zernike.DefaultModes); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("6x8 grid err=%v; want ErrShapeMismatch", err)
	}
	if _, err := Fit(e, psd, zernike.ModeSet{{N: 2, M: 3}}, nil, true, nil); !errors.Is(err, zernike.ErrInvalidMode) {
		t.Errorf("mode (2,3) err=%v; want ErrInvalidMode", err)
	}
	if _, err := Fit(e, psd, nil, Guess{"gamma": 1}, true, nil); !errors.Is(err, ErrUnknownParameter) {
		t.Errorf("gamma err=%v; want ErrUnknownParameter", err)
	}
	if _, err := Fit(e, psd, nil, Guess{"(3,1)": 1}, true, nil); !errors.Is(err, ErrUnknownParameter) {
		t.Errorf("mode (3,1) err=%v; want ErrUnknownParameter", err)
	}
}

func TestBudget(t *testing.T) {
	e := zernike.NewEngine()
	psd := syntheticPSD(t, e, 8, 8, truth)
	calls := 0
	var observed []float64
	opts := &Options{
		MaxEvaluations: 20,
		Tolerance:      1e-10,
		InitialStep:    0.05,
		Observer: func(evaluation int, cost float64) {
			calls++
			if evaluation != calls {
				t.Errorf("evaluation=%d; want %d", evaluation, calls)
			}
			observed = append(observed, cost)
		},
	}
	res, err := Fit(e, psd, nil, nil, true, opts)
	if err != nil {
		t.Fatal(err)
	}
	if res.Converged {
		t.Errorf("converged with 20 evaluations; want budget exhaustion")
	}
	if res.Status != "FunctionEvaluationLimit" {
		t.Errorf("status=%s; want FunctionEvaluationLimit", res.Status)
	}
	if res.Evaluations > 20 {
		t.Errorf("evaluations=%d; want at most 20", res.Evaluations)
	}
	if calls != res.Evaluations || len(res.Costs) != res.Evaluations {
		t.Errorf("observer calls %d, costs %d, evaluations %d; want equal", calls, len(res.Costs), res.Evaluations)
	}
	for i := range observed {
		if observed[i] != res.Costs[i] {
			t.Errorf("observed[%d]=%g; want %g", i, observed[i], res.Costs[i])
		}
	}
	minCost := math.Inf(1)
	for _, c := range res.Costs {
		minCost = math.Min(minCost, c)
	}
	if res.Cost != minCost {
		t.Errorf("cost=%g; want best evaluated %g", res.Cost, minCost)
	}
}

func TestEstimate(t *testing.T) {
	e := zernike.NewEngine()
	width, height := 16, 16
	plane := make([]float64, width*height)
	for i := range plane {
		plane[i] = 100 + float64(fastrand.Uint32n(1000))/100
	}
	res, err := Estimate(e, plane, width, height, nil, nil, true, &Options{MaxEvaluations: 100})
	if err != nil {
		t.Fatal(err)
	}
	if res.Evaluations == 0 || len(res.Parameters.Amplitudes) != len(zernike.DefaultModes) {
		t.Errorf("evaluations %d amplitudes %d; want >0 and %d", res.Evaluations, len(res.Parameters.Amplitudes), len(zernike.DefaultModes))
	}
	if _, err := Estimate(e, plane, width, height+1, nil, nil, true, nil); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("err=%v; want ErrShapeMismatch", err)
	}
}
