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

package ops

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mlnoga/myopic/internal/fits"
	"github.com/mlnoga/myopic/internal/gml"
	"github.com/mlnoga/myopic/internal/grid"
	"github.com/mlnoga/myopic/internal/model"
	"github.com/mlnoga/myopic/internal/spectrum"
	"github.com/mlnoga/myopic/internal/zernike"
)

// Fits transfer function and prior parameters to the power spectrum of a plane
type OpGML struct {
	MeasurementBase
	Modes         zernike.ModeSet `json:"modes"`
	Guess         gml.Guess       `json:"guess"`
	FitResolution bool            `json:"fitResolution"`
	Apodise       int             `json:"apodise"` // Border in pixels for apodisation before the FFT, 0=off
	Options       *gml.Options    `json:"options"`
}

func init() { SetMeasurementFactory(func() Measurement { return NewOpGMLDefault() }) } // register the measurement for JSON decoding

func NewOpGMLDefault() *OpGML {
	return NewOpGML(zernike.DefaultModes, nil, true, 0, gml.DefaultOptions())
}

func NewOpGML(modes zernike.ModeSet, guess gml.Guess, fitResolution bool, apodise int, opts *gml.Options) *OpGML {
	return &OpGML{
		MeasurementBase: MeasurementBase{Type: "gml"},
		Modes:           append(zernike.ModeSet{}, modes...),
		Guess:           guess,
		FitResolution:   fitResolution,
		Apodise:         apodise,
		Options:         opts,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpGML) UnmarshalJSON(data []byte) error {
	type defaults OpGML
	def := defaults(*NewOpGMLDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*op = OpGML(def)
	return nil
}

// Parameter names in vector order, followed by fit diagnostics
func (op *OpGML) Columns() []string {
	cols := gml.DefaultParameters(op.modes()).Keys()
	return append(cols, "cost", "converged", "evaluations", "illPosed")
}

func (op *OpGML) Measure(p *fits.Plane, m *fits.Metadata, c *Context) ([]float64, error) {
	res, err := op.Estimate(p, m, c)
	if err != nil {
		return nil, err
	}
	values := make([]float64, 0, len(res.Parameters.Amplitudes)+7)
	values = append(values, res.Parameters.Alpha, res.Parameters.Beta, res.Parameters.Resolution)
	values = append(values, res.Parameters.Amplitudes...)
	converged := 0.0
	if res.Converged {
		converged = 1
	}
	return append(values, res.Cost, converged, float64(res.Evaluations), float64(res.IllPosed)), nil
}

// A nil mode set means the default modes. An empty one fits the prior only
func (op *OpGML) modes() zernike.ModeSet {
	if op.Modes == nil {
		return zernike.DefaultModes
	}
	return op.Modes
}

// Plane data as handed to the FFT, apodised if configured
func (op *OpGML) prepare(p *fits.Plane) ([]float64, error) {
	if op.Apodise <= 0 {
		return p.Data, nil
	}
	return spectrum.Apodise(p.Data, p.Width, p.Height, op.Apodise, spectrum.DefaultApodisationOrder)
}

// Runs the fit on the given plane and returns the full result including the cost trace
func (op *OpGML) Estimate(p *fits.Plane, m *fits.Metadata, c *Context) (*gml.Result, error) {
	data, err := op.prepare(p)
	if err != nil {
		return nil, fmt.Errorf("%d: %s: %w", m.ID, p.ID, err)
	}
	res, err := gml.Estimate(c.Engine, data, p.Width, p.Height, op.modes(), op.Guess, op.FitResolution, op.Options)
	if err != nil {
		return nil, fmt.Errorf("%d: %s: %w", m.ID, p.ID, err)
	}
	status := "converged"
	if !res.Converged {
		status = "not converged (" + res.Status + ")"
	}
	fmt.Fprintf(c.Log, "%d: %s %s after %d evaluations in %v, cost %.6g, %s\n",
		m.ID, p.ID, status, res.Evaluations, res.Runtime, res.Cost, res.Parameters)
	return res, nil
}

// Observed power spectrum of the plane and the transfer function magnitude of the fitted parameters,
// both fftshifted on the plane's frequency grid
func (op *OpGML) Spectra(p *fits.Plane, res *gml.Result, c *Context) (psd, otf *fits.Image, err error) {
	data, err := op.prepare(p)
	if err != nil {
		return nil, nil, err
	}
	ps, err := spectrum.Compute(data, p.Width, p.Height)
	if err != nil {
		return nil, nil, err
	}
	g, err := grid.Build(p.Width, p.Height)
	if err != nil {
		return nil, nil, err
	}
	par := res.Parameters
	mag, err := model.TransferFunction(c.Engine, g, par.Resolution, par.Modes, par.Amplitudes)
	if err != nil {
		return nil, nil, err
	}
	return fits.NewImageFromFloat64(p.Width, p.Height, ps.Data), fits.NewImageFromFloat64(p.Width, p.Height, mag), nil
}

// Fit result for one plane of one image
type PlaneEstimate struct {
	ID       int          `json:"id"`
	FileName string       `json:"fileName"`
	Plane    fits.PlaneID `json:"plane"`
	Result   *gml.Result  `json:"result"`
}

// Estimates every plane of every source, ordered by image ID and plane. If psdPattern or otfPattern
// are non-empty, writes previews of the observed spectrum or fitted transfer function to files named by PreviewName
func (op *OpGML) EstimateAll(ins []Promise, threads int, psdPattern, otfPattern string, c *Context) ([]PlaneEstimate, *BatchReport) {
	var ests []PlaneEstimate
	mutex := sync.Mutex{}
	report := ForEachSource(ins, threads, c, func(src PlaneSource) (int, error) {
		meta := src.Metadata()
		ids := src.Planes()
		local := make([]PlaneEstimate, 0, len(ids))
		for _, id := range ids {
			p, err := src.Plane(id)
			if err != nil {
				return 0, err
			}
			res, err := op.Estimate(p, meta, c)
			if err != nil {
				return 0, err
			}
			if psdPattern != "" || otfPattern != "" {
				if err := op.writeSpectra(p, res, PreviewName(psdPattern, meta.ID, id, len(ids)),
					PreviewName(otfPattern, meta.ID, id, len(ids)), c); err != nil {
					return 0, fmt.Errorf("%d: %s: %w", meta.ID, id, err)
				}
			}
			local = append(local, PlaneEstimate{ID: meta.ID, FileName: meta.FileName, Plane: id, Result: res})
		}
		mutex.Lock()
		ests = append(ests, local...)
		mutex.Unlock()
		return len(ids), nil
	})
	sort.SliceStable(ests, func(i, j int) bool { return ests[i].ID < ests[j].ID })
	return ests, report
}

func (op *OpGML) writeSpectra(p *fits.Plane, res *gml.Result, psdName, otfName string, c *Context) error {
	psd, otf, err := op.Spectra(p, res, c)
	if err != nil {
		return err
	}
	if psdName != "" {
		fmt.Fprintf(c.Log, "Writing power spectrum preview to %s\n", psdName)
		if err := psd.WritePreviewToFile(psdName, true); err != nil {
			return err
		}
	}
	if otfName != "" {
		fmt.Fprintf(c.Log, "Writing transfer function preview to %s\n", otfName)
		if err := otf.WritePreviewToFile(otfName, false); err != nil {
			return err
		}
	}
	return nil
}

// Expands a %d in pattern to the image ID. For images with more than one plane,
// the plane coordinates are inserted before the extension. Empty patterns stay empty
func PreviewName(pattern string, id int, plane fits.PlaneID, planes int) string {
	if pattern == "" {
		return ""
	}
	name := pattern
	if strings.Contains(pattern, "%d") {
		name = fmt.Sprintf(pattern, id)
	}
	if planes > 1 {
		ext := filepath.Ext(name)
		name = fmt.Sprintf("%s_c%d_z%d_t%d%s", strings.TrimSuffix(name, ext), plane.C, plane.Z, plane.T, ext)
	}
	return name
}
