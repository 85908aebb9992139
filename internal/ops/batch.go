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
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mlnoga/myopic/internal/fits"
)

// Columns leading every measurement row, describing the image and plane measured
var MetadataColumns = []string{"ID", "FileName", "AcquisitionDate", "SizeX", "SizeY", "SizeZ", "SizeC", "SizeT",
	"PhysicalSizeX", "LensNA", "NominalMagnification", "C", "Z", "T", "ChannelLabel"}

// Measured values of one plane
type Row struct {
	Meta   *fits.Metadata
	Plane  fits.PlaneID
	Values []float64
}

// Header row for the given measurement: metadata columns, then measured columns
func Header(m Measurement) []string {
	return append(append([]string{}, MetadataColumns...), m.Columns()...)
}

// Renders the row as text fields in the order of Header
func (r *Row) Record() []string {
	m := r.Meta
	label := ""
	if r.Plane.C < len(m.ChannelLabels) {
		label = m.ChannelLabels[r.Plane.C]
	}
	date := ""
	if !m.AcquisitionDate.IsZero() {
		date = m.AcquisitionDate.Format(time.RFC3339Nano)
	}
	rec := []string{
		strconv.Itoa(m.ID), m.FileName, date,
		strconv.Itoa(m.SizeX), strconv.Itoa(m.SizeY), strconv.Itoa(m.SizeZ), strconv.Itoa(m.SizeC), strconv.Itoa(m.SizeT),
		formatFloat(m.PhysicalSizeX), formatFloat(m.LensNA), formatFloat(m.NominalMagnification),
		strconv.Itoa(r.Plane.C), strconv.Itoa(r.Plane.Z), strconv.Itoa(r.Plane.T), label,
	}
	for _, v := range r.Values {
		rec = append(rec, formatFloat(v))
	}
	return rec
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// Destination for measurement rows, keyed by measurement type. Must be safe for concurrent use
type Sink interface {
	Append(name string, header []string, records [][]string) error
}

// Applies each measurement to every plane of the source, in plane order.
// Returns one slice of rows per measurement, or the first error
func MeasureSource(src PlaneSource, ms Measurements, c *Context) ([][]Row, error) {
	meta := src.Metadata()
	ids := src.Planes()
	rows := make([][]Row, len(ms))
	for i := range rows {
		rows[i] = make([]Row, 0, len(ids))
	}
	for _, id := range ids {
		p, err := src.Plane(id)
		if err != nil {
			return nil, err
		}
		for i, m := range ms {
			values, err := m.Measure(p, meta, c)
			if err != nil {
				return nil, err
			}
			rows[i] = append(rows[i], Row{Meta: meta, Plane: id, Values: values})
		}
	}
	return rows, nil
}

// Summary of a batch run. Images that fail are logged, listed here and excluded from the sink
type BatchReport struct {
	Sources   int            `json:"sources"`
	Succeeded int            `json:"succeeded"`
	Planes    int            `json:"planes"`
	Failed    map[int]string `json:"failed"`
	Runtime   time.Duration  `json:"runtime"`
}

// Materializes all sources with the given concurrency limit and applies fn to each,
// which returns the number of planes processed. A failing image does not stop the others
func ForEachSource(ins []Promise, threads int, c *Context, fn func(src PlaneSource) (int, error)) *BatchReport {
	start := time.Now()
	report := &BatchReport{Sources: len(ins), Failed: map[int]string{}}
	if threads < 1 {
		threads = 1
	}
	mutex := sync.Mutex{}
	limiter := make(chan bool, threads)
	for i, in := range ins {
		limiter <- true
		go func(i int, theIn Promise) {
			defer func() { <-limiter }()
			planes := 0
			src, err := theIn() // materialize the promise
			if err == nil {
				planes, err = fn(src)
			}

			mutex.Lock()
			defer mutex.Unlock()
			if err != nil {
				fmt.Fprintf(c.Log, "%d: Error: %s\n", i, err.Error())
				report.Failed[i] = err.Error()
				return
			}
			report.Succeeded++
			report.Planes += planes
		}(i, in)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	report.Runtime = time.Since(start)
	fmt.Fprintf(c.Log, "Processed %d planes from %d of %d images in %v\n", report.Planes, report.Succeeded, report.Sources, report.Runtime)
	return report
}

// Measures all sources and appends their rows to the sink if non-nil.
// Images that fail are excluded from the sink
func MeasureAll(ins []Promise, ms Measurements, sink Sink, threads int, c *Context) *BatchReport {
	return ForEachSource(ins, threads, c, func(src PlaneSource) (int, error) {
		return measureSource(src, ms, sink, c)
	})
}

// Measures one source and hands its rows to the sink. Returns the number of planes
func measureSource(src PlaneSource, ms Measurements, sink Sink, c *Context) (int, error) {
	rows, err := MeasureSource(src, ms, c)
	if err != nil {
		return 0, err
	}
	if sink != nil {
		for i, m := range ms {
			records := make([][]string, len(rows[i]))
			for j := range rows[i] {
				records[j] = rows[i][j].Record()
			}
			if err := sink.Append(m.GetType(), Header(m), records); err != nil {
				return 0, fmt.Errorf("%d: storing %s: %w", src.ID(), m.GetType(), err)
			}
		}
	}
	return len(src.Planes()), nil
}
