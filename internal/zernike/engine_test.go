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

package zernike

import (
	"errors"
	"math"
	"sync"
	"testing"
)

// Polar coordinates of the pixel centers of an n x n grid over [-1,1]^2 that lie in the unit disk
func diskSamples(n int) (rho, phi []float64) {
	for y := 0; y < n; y++ {
		yy := -1 + (2*float64(y)+1)/float64(n)
		for x := 0; x < n; x++ {
			xx := -1 + (2*float64(x)+1)/float64(n)
			r := math.Hypot(xx, yy)
			if r <= 1 {
				rho = append(rho, r)
				phi = append(phi, math.Atan2(yy, xx))
			}
		}
	}
	return rho, phi
}

type radialTestCase struct {
	N, M   int
	Coeffs []float64
}

func TestNewRadial(t *testing.T) {
	tcs := []radialTestCase{
		{0, 0, []float64{1}},
		{1, 1, []float64{0, 1}},
		{2, 0, []float64{-1, 0, 2}},
		{2, 2, []float64{0, 0, 1}},
		{3, 1, []float64{0, -2, 0, 3}},
		{4, 0, []float64{1, 0, -6, 0, 6}},
		{4, 2, []float64{0, 0, -3, 0, 4}},
		{6, 0, []float64{-1, 0, 12, 0, -30, 0, 20}},
	}
	for _, tc := range tcs {
		r, err := NewRadial(tc.N, tc.M)
		if err != nil {
			t.Fatalf("NewRadial(%d,%d) error %s", tc.N, tc.M, err.Error())
		}
		if len(r.Coeffs) != len(tc.Coeffs) {
			t.Fatalf("NewRadial(%d,%d) len=%d; want %d", tc.N, tc.M, len(r.Coeffs), len(tc.Coeffs))
		}
		for i, c := range r.Coeffs {
			if c != tc.Coeffs[i] {
				t.Errorf("NewRadial(%d,%d) c[%d]=%g; want %g", tc.N, tc.M, i, c, tc.Coeffs[i])
			}
		}
		if r.At(1) != 1 {
			t.Errorf("R(%d,%d)(1)=%g; want 1", tc.N, tc.M, r.At(1))
		}
	}
}

func TestPistonIsOne(t *testing.T) {
	e := NewEngine()
	rho, phi := diskSamples(33)
	z, err := e.Evaluate(0, 0, rho, phi)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range z {
		if v != 1 {
			t.Errorf("Z(0,0)[%d]=%g; want 1", i, v)
		}
	}
}

func TestOddParityIsZero(t *testing.T) {
	e := NewEngine()
	rho, phi := diskSamples(17)
	for _, md := range []Mode{{1, 0}, {2, 1}, {3, -2}, {5, 0}, {4, -3}} {
		z, err := e.Evaluate(md.N, md.M, rho, phi)
		if err != nil {
			t.Fatalf("Evaluate%v error %s", md, err.Error())
		}
		if len(z) != len(rho) {
			t.Errorf("Evaluate%v len=%d; want %d", md, len(z), len(rho))
		}
		for i, v := range z {
			if v != 0 {
				t.Errorf("Evaluate%v[%d]=%g; want 0", md, i, v)
				break
			}
		}
	}
	if e.Len() != 0 {
		t.Errorf("cache len=%d after odd modes; want 0", e.Len())
	}
}

func TestInvalidMode(t *testing.T) {
	e := NewEngine()
	rho, phi := diskSamples(5)
	for _, md := range []Mode{{-1, 0}, {2, 3}, {2, -4}} {
		if _, err := e.Evaluate(md.N, md.M, rho, phi); !errors.Is(err, ErrInvalidMode) {
			t.Errorf("Evaluate%v err=%v; want ErrInvalidMode", md, err)
		}
	}
	if _, err := e.Radial(3, 0); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("Radial(3,0) err=%v; want ErrInvalidMode", err)
	}
	if _, err := e.Evaluate(2, 0, rho, phi[1:]); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Evaluate with short phi err=%v; want ErrShapeMismatch", err)
	}
}

func innerProduct(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Largest normalized inner product between distinct modes up to degree 4 on an n x n grid
func maxCrossTalk(t *testing.T, e *Engine, n int) float64 {
	rho, phi := diskSamples(n)
	modes := RevIndex(4)
	zs := make([][]float64, len(modes))
	for i, md := range modes {
		z, err := e.Evaluate(md.N, md.M, rho, phi)
		if err != nil {
			t.Fatal(err)
		}
		zs[i] = z
	}
	worst := 0.0
	for i := range modes {
		for j := i + 1; j < len(modes); j++ {
			ip := innerProduct(zs[i], zs[j]) / math.Sqrt(innerProduct(zs[i], zs[i])*innerProduct(zs[j], zs[j]))
			if math.Abs(ip) > worst {
				worst = math.Abs(ip)
			}
		}
	}
	return worst
}

func TestOrthogonality(t *testing.T) {
	e := NewEngine()
	coarse := maxCrossTalk(t, e, 16)
	fine := maxCrossTalk(t, e, 512)
	if fine >= coarse {
		t.Errorf("cross talk %g at 512 not below %g at 16", fine, coarse)
	}
	if fine > 0.01 {
		t.Errorf("cross talk %g at 512; want <0.01", fine)
	}
}

func TestCacheIdempotence(t *testing.T) {
	e := NewEngine()
	r1, err := e.Radial(4, 2)
	if err != nil {
		t.Fatal(err)
	}
	hits1, misses1 := e.Stats()
	r2, err := e.Radial(4, -2)
	if err != nil {
		t.Fatal(err)
	}
	hits2, misses2 := e.Stats()
	if r1 != r2 {
		t.Errorf("second request returned a different polynomial")
	}
	for i := range r1.Coeffs {
		if r1.Coeffs[i] != r2.Coeffs[i] {
			t.Errorf("c[%d]=%g; want %g", i, r2.Coeffs[i], r1.Coeffs[i])
		}
	}
	if misses1 != 1 || misses2 != 1 {
		t.Errorf("misses=%d,%d; want 1,1", misses1, misses2)
	}
	if hits2 != hits1+1 {
		t.Errorf("hits=%d; want %d", hits2, hits1+1)
	}
	if e.Len() != 1 {
		t.Errorf("len=%d; want 1", e.Len())
	}
}

func TestConcurrentPopulation(t *testing.T) {
	e := NewEngine()
	rho, phi := diskSamples(32)
	want, err := NewEngine().Evaluate(6, 2, rho, phi)
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			z, err := e.Evaluate(6, 2, rho, phi)
			if err != nil {
				errs <- err
				return
			}
			for j := range z {
				if z[j] != want[j] {
					errs <- errors.New("mismatching values")
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if e.Len() != 1 {
		t.Errorf("len=%d; want 1", e.Len())
	}
}

func TestModeParsing(t *testing.T) {
	ms, err := ParseModeSet("2,-2; (2,2) ;4,0")
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 3 || ms[0] != (Mode{2, -2}) || ms[1] != (Mode{2, 2}) || ms[2] != (Mode{4, 0}) {
		t.Errorf("ParseModeSet=%v; want %v", ms, DefaultModes)
	}
	if ms.String() != "2,-2;2,2;4,0" {
		t.Errorf("String()=%s; want 2,-2;2,2;4,0", ms.String())
	}
	if _, err := ParseMode("(3,5)"); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("ParseMode((3,5)) err=%v; want ErrInvalidMode", err)
	}
	if _, err := ParseMode("x"); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("ParseMode(x) err=%v; want ErrInvalidMode", err)
	}
}

func TestRevIndex(t *testing.T) {
	ms := RevIndex(4)
	if len(ms) != 15 {
		t.Fatalf("len=%d; want 15", len(ms))
	}
	for i, md := range ms {
		if md.Index() != i {
			t.Errorf("mode %v index %d; want %d", md, md.Index(), i)
		}
	}
}
