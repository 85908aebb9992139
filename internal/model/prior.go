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

import "math"

// Machine epsilon for float64, keeps the zero frequency of the prior finite
const Epsilon = 0x1p-52

// Power law prior over the object spectrum, 10^alpha * (|d|+eps)^|beta|.
// Non-decreasing in |d| for every beta. Returns a new slice.
func PowerLaw(dist []float64, alpha, beta float64) []float64 {
	dst := make([]float64, len(dist))
	PowerLawInto(dst, dist, alpha, beta)
	return dst
}

// Like PowerLaw, but writes into dst, which must be at least as long as dist
func PowerLawInto(dst, dist []float64, alpha, beta float64) {
	scale, exp := math.Pow(10, alpha), math.Abs(beta)
	for i, d := range dist {
		dst[i] = scale * math.Pow(math.Abs(d)+Epsilon, exp)
	}
}
