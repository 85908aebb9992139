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
	"strconv"
	"strings"
)

// Returned for (n,m) pairs outside n>=0, |m|<=n, or with odd n-m where a polynomial is required
var ErrInvalidMode = errors.New("invalid Zernike mode")

// A Zernike mode with radial degree N and azimuthal frequency M
type Mode struct {
	N int `json:"n" yaml:"n"`
	M int `json:"m" yaml:"m"`
}

// An ordered list of modes. Amplitude i of a transfer function belongs to mode i
type ModeSet []Mode

// Oblique astigmatism, vertical astigmatism and primary spherical aberration
var DefaultModes = ModeSet{{2, -2}, {2, 2}, {4, 0}}

// The piston mode, constant 1 over the unit disk
var Piston = Mode{0, 0}

// Standard index (n(n+2)+m)/2 of a mode under the OSA/ANSI convention
func StandardIndex(n, m int) int {
	return (n*(n+2) + m) / 2
}

func (md Mode) Index() int { return StandardIndex(md.N, md.M) }

// Checks n>=0 and |m|<=n. Parity is not checked, since odd modes evaluate to zero
func (md Mode) Check() error {
	if md.N < 0 || md.M > md.N || -md.M > md.N {
		return fmt.Errorf("%w: n=%d m=%d", ErrInvalidMode, md.N, md.M)
	}
	return nil
}

// True if n-m is even, i.e. the mode has a non-zero polynomial
func (md Mode) HasPolynomial() bool {
	return (md.N-md.M)%2 == 0
}

func (md Mode) String() string {
	return fmt.Sprintf("(%d,%d)", md.N, md.M)
}

var modeNames = map[Mode]string{
	{0, 0}:  "piston",
	{1, -1}: "vertical tilt",
	{1, 1}:  "horizontal tilt",
	{2, -2}: "oblique astigmatism",
	{2, 0}:  "defocus",
	{2, 2}:  "vertical astigmatism",
	{3, -3}: "vertical trefoil",
	{3, -1}: "vertical coma",
	{3, 1}:  "horizontal coma",
	{3, 3}:  "oblique trefoil",
	{4, -4}: "oblique quadrafoil",
	{4, -2}: "oblique secondary astigmatism",
	{4, 0}:  "primary spherical",
	{4, 2}:  "vertical secondary astigmatism",
	{4, 4}:  "vertical quadrafoil",
}

// Common optical name of the mode, or its index for higher orders
func (md Mode) Name() string {
	if name, ok := modeNames[md]; ok {
		return name
	}
	return fmt.Sprintf("Z%d", md.Index())
}

// Parses a mode from "(n,m)" or "n,m"
func ParseMode(s string) (md Mode, err error) {
	t := strings.TrimSpace(s)
	t = strings.TrimPrefix(t, "(")
	t = strings.TrimSuffix(t, ")")
	parts := strings.Split(t, ",")
	if len(parts) != 2 {
		return md, fmt.Errorf("%w: cannot parse '%s'", ErrInvalidMode, s)
	}
	if md.N, err = strconv.Atoi(strings.TrimSpace(parts[0])); err != nil {
		return md, fmt.Errorf("%w: cannot parse '%s': %s", ErrInvalidMode, s, err.Error())
	}
	if md.M, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
		return md, fmt.Errorf("%w: cannot parse '%s': %s", ErrInvalidMode, s, err.Error())
	}
	return md, md.Check()
}

// Parses a semicolon separated list of modes, e.g. "2,-2;2,2;4,0"
func ParseModeSet(s string) (ModeSet, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	ms := ModeSet{}
	for _, part := range strings.Split(s, ";") {
		md, err := ParseMode(part)
		if err != nil {
			return nil, err
		}
		ms = append(ms, md)
	}
	return ms, nil
}

// Parses each of the given strings as a mode
func ParseModeStrings(ss []string) (ModeSet, error) {
	ms := make(ModeSet, len(ss))
	for i, s := range ss {
		md, err := ParseMode(s)
		if err != nil {
			return nil, err
		}
		ms[i] = md
	}
	return ms, nil
}

func (ms ModeSet) Check() error {
	for _, md := range ms {
		if err := md.Check(); err != nil {
			return err
		}
	}
	return nil
}

// Position of the given mode in the set, or -1
func (ms ModeSet) IndexOf(md Mode) int {
	for i, m := range ms {
		if m == md {
			return i
		}
	}
	return -1
}

func (ms ModeSet) String() string {
	b := strings.Builder{}
	for i, md := range ms {
		if i > 0 {
			b.WriteRune(';')
		}
		fmt.Fprintf(&b, "%d,%d", md.N, md.M)
	}
	return b.String()
}

// All modes with a polynomial up to radial degree maxN, in standard index order
func RevIndex(maxN int) ModeSet {
	ms := ModeSet{}
	for n := 0; n <= maxN; n++ {
		for m := -n; m <= n; m += 2 {
			ms = append(ms, Mode{n, m})
		}
	}
	return ms
}
