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
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
)

// Writes an in-memory FITS image to a file with given filename.
// Creates or truncates the file if necessary
func (fits *Image) WriteFile(fileName string) error {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer f.Close()
	return fits.Write(f)
}

// Writes an in-memory FITS image to an io.Writer as 32-bit floating point data.
// Header strings, dates, ints and floats are written in sorted key order
func (fits *Image) Write(f io.Writer) error {
	sb := strings.Builder{}
	writeBool(&sb, "SIMPLE", true, "FITS standard 4.0")
	writeInt32(&sb, "BITPIX", -32, "32-bit floating point")
	writeInt32(&sb, "NAXIS", int32(len(fits.Naxisn)), "Number of axes")
	for i := 0; i < len(fits.Naxisn); i++ {
		writeInt32(&sb, fmt.Sprintf("NAXIS%d", i+1), fits.Naxisn[i], "Axis size")
	}
	writeFloat32(&sb, "BZERO", 0, "Zero offset")
	writeFloat32(&sb, "BSCALE", 1, "Value scaler")
	if fits.Exposure > 0 {
		writeFloat32(&sb, "EXPTIME", fits.Exposure, "Exposure time in seconds")
	}
	for _, k := range sortedKeys(fits.Header.Strings) {
		writeString(&sb, k, fits.Header.Strings[k], "")
	}
	for _, k := range sortedKeys(fits.Header.Dates) {
		writeString(&sb, k, fits.Header.Dates[k], "")
	}
	for _, k := range sortedKeys(fits.Header.Ints) {
		writeInt32(&sb, k, fits.Header.Ints[k], "")
	}
	for _, k := range sortedKeys(fits.Header.Floats) {
		writeFloat32(&sb, k, fits.Header.Floats[k], "")
	}
	for _, c := range fits.Header.Comments {
		writeCard(&sb, "COMMENT "+c)
	}
	for _, h := range fits.Header.History {
		writeCard(&sb, "HISTORY "+h)
	}
	writeCard(&sb, "END")

	// Pad current header block with spaces if necessary
	if bytesInHeaderBlock := sb.Len() % fitsBlockSize; bytesInHeaderBlock > 0 {
		sb.WriteString(strings.Repeat(" ", fitsBlockSize-bytesInHeaderBlock))
	}
	if _, err := io.WriteString(f, sb.String()); err != nil {
		return err
	}

	// Write payload data, replacing NaNs with zeros for compatibility, and pad the last block
	if err := writeFloat32Array(f, fits.Data, true); err != nil {
		return err
	}
	if bytesInDataBlock := (len(fits.Data) * 4) % fitsBlockSize; bytesInDataBlock > 0 {
		_, err := f.Write(make([]byte, fitsBlockSize-bytesInDataBlock))
		return err
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Writes a header card, truncated or padded to the line size
func writeCard(w *strings.Builder, card string) {
	if len(card) > HeaderLineSize {
		card = card[:HeaderLineSize]
	}
	w.WriteString(card)
	w.WriteString(strings.Repeat(" ", HeaderLineSize-len(card)))
}

func writeValue(w *strings.Builder, key, value, comment string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	card := fmt.Sprintf("%-8s= %20s", key, value)
	if comment != "" {
		card += " / " + comment
	}
	writeCard(w, card)
}

// Writes a FITS header boolean value
func writeBool(w *strings.Builder, key string, value bool, comment string) {
	v := "F"
	if value {
		v = "T"
	}
	writeValue(w, key, v, comment)
}

// Writes a FITS header int32 value
func writeInt32(w *strings.Builder, key string, value int32, comment string) {
	writeValue(w, key, fmt.Sprintf("%d", value), comment)
}

// Writes a FITS header float32 value, always with a decimal point
func writeFloat32(w *strings.Builder, key string, value float32, comment string) {
	writeValue(w, key, fmt.Sprintf("%.8E", value), comment)
}

// Writes a FITS header string value, escaping quotes. Long values are truncated
func writeString(w *strings.Builder, key, value, comment string) {
	value = strings.ReplaceAll(value, "'", "''")
	if len(value) > 68 {
		value = value[:68]
	}
	quoted := "'" + value + "'"
	if len(quoted) < 20 {
		quoted += strings.Repeat(" ", 20-len(quoted))
	}
	writeValue(w, key, quoted, comment)
}

// Writes FITS binary body data in network byte order.
// Optionally replaces NaNs with zeros for compatibility with other software
func writeFloat32Array(w io.Writer, data []float32, replaceNaNs bool) error {
	buf := make([]byte, bufLen)

	for block := 0; block < len(data); block += (bufLen >> 2) {
		size := len(data) - block
		if size > (bufLen >> 2) {
			size = (bufLen >> 2)
		}

		for offset := 0; offset < size; offset++ {
			d := data[block+offset]
			if replaceNaNs && math.IsNaN(float64(d)) {
				d = 0
			}
			val := math.Float32bits(d)
			buf[(offset<<2)+0] = byte(val >> 24)
			buf[(offset<<2)+1] = byte(val >> 16)
			buf[(offset<<2)+2] = byte(val >> 8)
			buf[(offset<<2)+3] = byte(val)
		}
		if _, err := w.Write(buf[:(size << 2)]); err != nil {
			return err
		}
	}
	return nil
}
