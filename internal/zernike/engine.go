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
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/stat/combin"
)

var ErrShapeMismatch = errors.New("rho and phi shapes differ")

// Radial polynomial R_n^m for one (n,|m|). Coeffs[p] multiplies rho^p.
// Immutable once created.
type Radial struct {
	N      int
	M      int
	Coeffs []float64
}

// Creates the radial polynomial with the explicit finite sum over k=0..(n-m)/2 of
// (-1)^k (n-k)! / (k! ((n+m)/2-k)! ((n-m)/2-k)!) rho^(n-2k).
// The factorial ratio equals C(n-k,k)*C(n-2k,(n-m)/2-k), which stays in integers.
func NewRadial(n, m int) (*Radial, error) {
	if m < 0 {
		m = -m
	}
	md := Mode{n, m}
	if err := md.Check(); err != nil {
		return nil, err
	}
	if !md.HasPolynomial() {
		return nil, fmt.Errorf("%w: n-m=%d is odd", ErrInvalidMode, n-m)
	}
	coeffs := make([]float64, n+1)
	kMax := (n - m) / 2
	for k := 0; k <= kMax; k++ {
		f := float64(combin.Binomial(n-k, k)) * float64(combin.Binomial(n-2*k, kMax-k))
		if k&1 != 0 {
			f = -f
		}
		coeffs[n-2*k] = f
	}
	return &Radial{N: n, M: m, Coeffs: coeffs}, nil
}

// Evaluates the polynomial at rho with Horner's scheme
func (r *Radial) At(rho float64) float64 {
	sum := 0.0
	for p := len(r.Coeffs) - 1; p >= 0; p-- {
		sum = sum*rho + r.Coeffs[p]
	}
	return sum
}

// Evaluates and caches Zernike polynomials. The cache is keyed by standard index
// and populated with insert-if-absent semantics, so an Engine is safe for concurrent use.
type Engine struct {
	cache  sync.Map // int -> *Radial
	hits   uint64
	misses uint64
}

func NewEngine() *Engine {
	return &Engine{}
}

// Returns the cached radial polynomial for (n,m), creating it on first use.
// Only |m| matters for the radial part, the cache key uses n and |m|.
func (e *Engine) Radial(n, m int) (*Radial, error) {
	if m < 0 {
		m = -m
	}
	key := StandardIndex(n, m)
	if (Mode{n, m}).Check() == nil {
		if r, ok := e.cache.Load(key); ok {
			atomic.AddUint64(&e.hits, 1)
			return r.(*Radial), nil
		}
	}
	r, err := NewRadial(n, m)
	if err != nil {
		return nil, err
	}
	atomic.AddUint64(&e.misses, 1)
	actual, _ := e.cache.LoadOrStore(key, r)
	return actual.(*Radial), nil
}

// Evaluates Z_n^m at the given polar coordinates. Returns all zeros if n-m is odd.
func (e *Engine) Evaluate(n, m int, rho, phi []float64) ([]float64, error) {
	res := make([]float64, len(rho))
	return res, e.EvaluateInto(res, 1, n, m, rho, phi)
}

// Adds amp*Z_n^m(rho, phi) to dst. Leaves dst unchanged if n-m is odd.
func (e *Engine) EvaluateInto(dst []float64, amp float64, n, m int, rho, phi []float64) error {
	md := Mode{n, m}
	if err := md.Check(); err != nil {
		return err
	}
	if len(rho) != len(phi) || len(dst) != len(rho) {
		return fmt.Errorf("%w: rho %d phi %d dst %d", ErrShapeMismatch, len(rho), len(phi), len(dst))
	}
	if !md.HasPolynomial() {
		return nil
	}
	r, err := e.Radial(n, m)
	if err != nil {
		return err
	}
	switch {
	case m == 0:
		for i, rh := range rho {
			dst[i] += amp * r.At(rh)
		}
	case m > 0:
		fm := float64(m)
		for i, rh := range rho {
			dst[i] += amp * r.At(rh) * math.Cos(fm*phi[i])
		}
	default:
		fm := float64(-m)
		for i, rh := range rho {
			dst[i] += amp * r.At(rh) * math.Sin(fm*phi[i])
		}
	}
	return nil
}

// Cache hits and misses so far
func (e *Engine) Stats() (hits, misses uint64) {
	return atomic.LoadUint64(&e.hits), atomic.LoadUint64(&e.misses)
}

// Number of cached polynomials
func (e *Engine) Len() int {
	n := 0
	e.cache.Range(func(_, _ interface{}) bool { n++; return true })
	return n
}
