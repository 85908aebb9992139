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
	"sort"
	"strconv"
	"strings"

	"github.com/mlnoga/myopic/internal/zernike"
)

const (
	KeyAlpha      = "alpha"
	KeyBeta       = "beta"
	KeyResolution = "resolution"
)

// Starting values used where no guess is given
const (
	DefaultAlpha      = 1.0
	DefaultBeta       = 2.0
	DefaultResolution = 2.0
	DefaultAmplitude  = 1e-6
)

var ErrUnknownParameter = errors.New("unknown parameter")

// Caller overrides for the starting point, keyed by alpha, beta, resolution or a mode "(n,m)"
type Guess map[string]float64

// A labeled parameter set: the power law prior 10^Alpha |d|^|Beta|, the pupil resolution,
// and one amplitude per Zernike mode
type Parameters struct {
	Alpha      float64         `json:"alpha"`
	Beta       float64         `json:"beta"`
	Resolution float64         `json:"resolution"`
	Modes      zernike.ModeSet `json:"modes"`
	Amplitudes []float64       `json:"amplitudes"`
}

// Default starting point for the given modes
func DefaultParameters(modes zernike.ModeSet) Parameters {
	amps := make([]float64, len(modes))
	for i := range amps {
		amps[i] = DefaultAmplitude
	}
	return Parameters{
		Alpha:      DefaultAlpha,
		Beta:       DefaultBeta,
		Resolution: DefaultResolution,
		Modes:      append(zernike.ModeSet{}, modes...),
		Amplitudes: amps,
	}
}

// Returns a copy of p with the entries of g replacing the respective values
func (p Parameters) Merge(g Guess) (Parameters, error) {
	res := p.Clone()
	for key, value := range g {
		switch key {
		case KeyAlpha:
			res.Alpha = value
		case KeyBeta:
			res.Beta = value
		case KeyResolution:
			res.Resolution = value
		default:
			md, err := zernike.ParseMode(key)
			if err != nil {
				return p, fmt.Errorf("%w: '%s'", ErrUnknownParameter, key)
			}
			i := res.Modes.IndexOf(md)
			if i < 0 {
				return p, fmt.Errorf("%w: mode %s not in %s", ErrUnknownParameter, md, res.Modes)
			}
			res.Amplitudes[i] = value
		}
	}
	return res, nil
}

func (p Parameters) Clone() Parameters {
	res := p
	res.Modes = append(zernike.ModeSet{}, p.Modes...)
	res.Amplitudes = append([]float64{}, p.Amplitudes...)
	return res
}

// Flat view with the same keys a Guess uses
func (p Parameters) Map() map[string]float64 {
	m := map[string]float64{
		KeyAlpha:      p.Alpha,
		KeyBeta:       p.Beta,
		KeyResolution: p.Resolution,
	}
	for i, md := range p.Modes {
		m[md.String()] = p.Amplitudes[i]
	}
	return m
}

// Keys of Map in vector order
func (p Parameters) Keys() []string {
	keys := []string{KeyAlpha, KeyBeta, KeyResolution}
	for _, md := range p.Modes {
		keys = append(keys, md.String())
	}
	return keys
}

// Optimizer view: alpha, beta, resolution if fitResolution, then the amplitudes
func (p Parameters) Vector(fitResolution bool) []float64 {
	x := []float64{p.Alpha, p.Beta}
	if fitResolution {
		x = append(x, p.Resolution)
	}
	return append(x, p.Amplitudes...)
}

// Inverse of Vector. Values not in x, i.e. the resolution if not fitResolution, are taken from p
func (p Parameters) FromVector(x []float64, fitResolution bool) Parameters {
	res := p.Clone()
	res.Alpha, res.Beta = x[0], x[1]
	x = x[2:]
	if fitResolution {
		res.Resolution = x[0]
		x = x[1:]
	}
	copy(res.Amplitudes, x)
	return res
}

func (p Parameters) String() string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "alpha %.4g beta %.4g resolution %.4g", p.Alpha, p.Beta, p.Resolution)
	for i, md := range p.Modes {
		fmt.Fprintf(&b, " %s %.4g", md, p.Amplitudes[i])
	}
	return b.String()
}

// Parses a semicolon separated list of key=value pairs, e.g. "alpha=1.5;(2,2)=0.01"
func ParseGuess(s string) (Guess, error) {
	g := Guess{}
	if strings.TrimSpace(s) == "" {
		return g, nil
	}
	for _, part := range strings.Split(s, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("cannot parse '%s', expecting key=value", part)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse value of '%s': %w", part, err)
		}
		key := strings.TrimSpace(kv[0])
		if md, err := zernike.ParseMode(key); err == nil {
			key = md.String()
		}
		g[key] = value
	}
	return g, nil
}

func (g Guess) String() string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, g[k])
	}
	return strings.Join(parts, ";")
}
