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
	"testing"

	"github.com/mlnoga/myopic/internal/zernike"
)

func TestDefaultParameters(t *testing.T) {
	p := DefaultParameters(zernike.DefaultModes)
	m := p.Map()
	want := map[string]float64{"alpha": 1, "beta": 2, "resolution": 2, "(2,-2)": 1e-6, "(2,2)": 1e-6, "(4,0)": 1e-6}
	if len(m) != len(want) {
		t.Errorf("len=%d; want %d", len(m), len(want))
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s=%g; want %g", k, m[k], v)
		}
	}
}

func TestMerge(t *testing.T) {
	p := DefaultParameters(zernike.DefaultModes)
	q, err := p.Merge(Guess{"beta": 3, "(2,2)": 0.5, "4,0": -0.1})
	if err != nil {
		t.Fatal(err)
	}
	if q.Alpha != 1 || q.Beta != 3 || q.Amplitudes[1] != 0.5 || q.Amplitudes[2] != -0.1 {
		t.Errorf("merged=%s; want beta 3, (2,2) 0.5, (4,0) -0.1", q)
	}
	if p.Beta != 2 || p.Amplitudes[1] != 1e-6 {
		t.Errorf("merge modified its receiver: %s", p)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	p := Parameters{Alpha: 1.5, Beta: -2, Resolution: 3, Modes: zernike.DefaultModes, Amplitudes: []float64{1, 2, 3}}
	tcs := []struct {
		FitResolution bool
		Want          []float64
	}{
		{true, []float64{1.5, -2, 3, 1, 2, 3}},
		{false, []float64{1.5, -2, 1, 2, 3}},
	}
	for _, tc := range tcs {
		x := p.Vector(tc.FitResolution)
		if len(x) != len(tc.Want) {
			t.Fatalf("fit %v len=%d; want %d", tc.FitResolution, len(x), len(tc.Want))
		}
		for i := range x {
			if x[i] != tc.Want[i] {
				t.Errorf("fit %v x[%d]=%g; want %g", tc.FitResolution, i, x[i], tc.Want[i])
			}
		}
		for i := range x {
			x[i] *= 2
		}
		q := p.FromVector(x, tc.FitResolution)
		wantRes := 3.0
		if tc.FitResolution {
			wantRes = 6
		}
		if q.Alpha != 3 || q.Beta != -4 || q.Resolution != wantRes || q.Amplitudes[2] != 6 {
			t.Errorf("fit %v FromVector=%s", tc.FitResolution, q)
		}
		if p.Amplitudes[2] != 3 {
			t.Errorf("FromVector modified its receiver")
		}
	}
}

func TestParseGuess(t *testing.T) {
	g, err := ParseGuess("alpha=1.5; (2,-2)=0.01;4,0 = -2e-3")
	if err != nil {
		t.Fatal(err)
	}
	if g["alpha"] != 1.5 || g["(2,-2)"] != 0.01 || g["(4,0)"] != -2e-3 {
		t.Errorf("ParseGuess=%v", g)
	}
	if s := g.String(); s != "(2,-2)=0.01;(4,0)=-0.002;alpha=1.5" {
		t.Errorf("String()=%s", s)
	}
	if _, err := ParseGuess("alpha"); err == nil {
		t.Errorf("missing value gave no error")
	}
	if _, err := ParseGuess("alpha=x"); err == nil {
		t.Errorf("bad value gave no error")
	}
	if g, err := ParseGuess(" "); err != nil || len(g) != 0 {
		t.Errorf("empty guess=%v err=%v", g, err)
	}
}
