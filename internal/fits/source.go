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

package fits

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"
)

var ErrNoSuchPlane = errors.New("no such plane")

// Acquisition metadata of an image file, as far as the header provides it
type Metadata struct {
	ID                   int       `json:"id"`
	FileName             string    `json:"fileName"`
	SizeX                int       `json:"sizeX"`
	SizeY                int       `json:"sizeY"`
	SizeZ                int       `json:"sizeZ"`
	SizeC                int       `json:"sizeC"`
	SizeT                int       `json:"sizeT"`
	AcquisitionDate      time.Time `json:"acquisitionDate"`
	PhysicalSizeX        float64   `json:"physicalSizeX"` // Pixel size in microns, 0 if unknown
	LensNA               float64   `json:"lensNA"`        // Numerical aperture, 0 if unknown
	NominalMagnification float64   `json:"nominalMagnification"`
	ChannelLabels        []string  `json:"channelLabels"`
}

// Identifies a 2D plane by channel, focal slice and time point
type PlaneID struct {
	C int `json:"c"`
	Z int `json:"z"`
	T int `json:"t"`
}

func (p PlaneID) String() string { return fmt.Sprintf("c%d z%d t%d", p.C, p.Z, p.T) }

// A 2D plane in row-major order
type Plane struct {
	ID     PlaneID
	Width  int
	Height int
	Data   []float64
}

// A plane source over a FITS or TIFF file. Axes beyond X and Y are read as C, Z and T in this order
type Source struct {
	img  *Image
	meta *Metadata
}

// Supported file name suffixes for sources
var SourceExtensions = []string{".fits", ".fit", ".fts", ".gz", ".gzip", ".tif", ".tiff"}

// Reads the file with the given name and returns a plane source over it
func OpenSource(fileName string, id int, logWriter io.Writer) (*Source, error) {
	img, err := NewImageFromFile(fileName, id, logWriter)
	if err != nil {
		return nil, err
	}
	return NewSource(img)
}

// Returns a plane source over an image with two to five axes
func NewSource(img *Image) (*Source, error) {
	if len(img.Naxisn) < 2 || len(img.Naxisn) > 5 {
		return nil, fmt.Errorf("%d: cannot read planes from %s image", img.ID, img.DimensionsToString())
	}
	sizes := [5]int{1, 1, 1, 1, 1}
	for i, n := range img.Naxisn {
		sizes[i] = int(n)
	}
	m := &Metadata{
		ID:       img.ID,
		FileName: filepath.Base(img.FileName),
		SizeX:    sizes[0],
		SizeY:    sizes[1],
		SizeC:    sizes[2],
		SizeZ:    sizes[3],
		SizeT:    sizes[4],
	}
	if len(img.Data) != m.SizeX*m.SizeY*m.SizeC*m.SizeZ*m.SizeT {
		return nil, fmt.Errorf("%d: %d values for %s image", img.ID, len(img.Data), img.DimensionsToString())
	}

	h := &img.Header
	if s, ok := h.Text("DATE-OBS"); ok {
		m.AcquisitionDate, _ = ParseDate(s)
	}
	if v, ok := h.Number("XPIXSZ"); ok {
		m.PhysicalSizeX = v
	} else if v, ok := h.Number("PIXSIZE1"); ok {
		m.PhysicalSizeX = v
	}
	if v, ok := h.Number("FOCRATIO"); ok && v > 0 {
		m.LensNA = 1 / (2 * v)
	}
	if v, ok := h.Number("MAGNIFIC"); ok {
		m.NominalMagnification = v
	}
	m.ChannelLabels = channelLabels(h, m.SizeC)
	return &Source{img: img, meta: m}, nil
}

func channelLabels(h *Header, sizeC int) []string {
	if filter, ok := h.Text("FILTER"); ok && sizeC == 1 && filter != "" {
		return []string{filter}
	}
	if sizeC == 3 {
		return []string{"R", "G", "B"}
	}
	labels := make([]string, sizeC)
	for c := range labels {
		labels[c] = fmt.Sprintf("C%d", c)
	}
	return labels
}

// Dates as written by common capture software
var dateLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Parses a FITS date, assuming UTC if no zone is given
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse date '%s'", s)
}

func (s *Source) ID() int             { return s.meta.ID }
func (s *Source) Metadata() *Metadata { return s.meta }
func (s *Source) Image() *Image       { return s.img }

// All plane IDs, with channel varying slowest and time fastest
func (s *Source) Planes() []PlaneID {
	m := s.meta
	ids := make([]PlaneID, 0, m.SizeC*m.SizeZ*m.SizeT)
	for c := 0; c < m.SizeC; c++ {
		for z := 0; z < m.SizeZ; z++ {
			for t := 0; t < m.SizeT; t++ {
				ids = append(ids, PlaneID{C: c, Z: z, T: t})
			}
		}
	}
	return ids
}

// Returns a copy of the given plane
func (s *Source) Plane(id PlaneID) (*Plane, error) {
	m := s.meta
	if id.C < 0 || id.C >= m.SizeC || id.Z < 0 || id.Z >= m.SizeZ || id.T < 0 || id.T >= m.SizeT {
		return nil, fmt.Errorf("%d: %w: %s", m.ID, ErrNoSuchPlane, id)
	}
	size := m.SizeX * m.SizeY
	offset := ((id.T*m.SizeZ+id.Z)*m.SizeC + id.C) * size
	data := make([]float64, size)
	for i, v := range s.img.Data[offset : offset+size] {
		data[i] = float64(v)
	}
	return &Plane{ID: id, Width: m.SizeX, Height: m.SizeY, Data: data}, nil
}
