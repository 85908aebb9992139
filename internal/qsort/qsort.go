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

package qsort

// Sorts an array of float32 in place. Array must not contain IEEE NaN
func QSortFloat32(a []float32) {
	if len(a) > 1 {
		index := QPartitionFloat32(a)
		QSortFloat32(a[:index+1])
		QSortFloat32(a[index+1:])
	}
}

// Partitions an array of float32 around its middle element and returns the split index.
// Afterwards a[:index+1] holds values <= the pivot, and a[index+1:] values >= the pivot.
// Array must not contain IEEE NaN
func QPartitionFloat32(a []float32) int {
	mid := (len(a) - 1) >> 1
	pivot := a[mid]
	l, r := -1, len(a)
	for {
		for {
			l++
			if a[l] >= pivot {
				break
			}
		}
		for {
			r--
			if a[r] <= pivot {
				break
			}
		}
		if l >= r {
			return r
		}
		a[l], a[r] = a[r], a[l]
	}
}

// Select kth lowest element from an array of float32, with k starting at 1. Partially reorders the array,
// so that afterwards a[k-1] holds the result and all elements before it are lower or equal.
// Array must not contain IEEE NaN
func QSelectFloat32(a []float32, k int) float32 {
	left, right := 0, len(a)-1
	for left < right {
		index := left + QPartitionFloat32(a[left:right+1])
		offset := index - left + 1
		if k <= offset {
			right = index
		} else {
			left = index + 1
			k -= offset
		}
	}
	return a[left]
}

// Select median of an array of float32. For even lengths, returns the mean of the two middle elements.
// Partially reorders the array. Array must not contain IEEE NaN
func QSelectMedianFloat32(a []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	half := len(a) >> 1
	upper := QSelectFloat32(a, half+1)
	if len(a)&1 != 0 {
		return upper
	}
	lower := a[0]
	for _, v := range a[1:half] {
		if v > lower {
			lower = v
		}
	}
	return 0.5 * (lower + upper)
}

// Select first quartile of an array of float32. Partially reorders the array.
// Array must not contain IEEE NaN
func QSelectFirstQuartileFloat32(a []float32) float32 {
	return QSelectFloat32(a, (len(a)>>2)+1)
}
