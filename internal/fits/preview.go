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
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// End points of the false color ramp, blended in HCL space so lightness rises monotonically
var (
	rampLow  = colorful.Hcl(280, 0.35, 0.08)
	rampHigh = colorful.Hcl(85, 0.75, 0.97)
)

// Maps v in [0,1] onto a dark violet to light yellow color ramp
func FalseColor(v float32) color.RGBA {
	r, g, b := rampLow.BlendHcl(rampHigh, float64(v)).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Write the first plane of a FITS image to false color JPG, using the given min, max and gamma.
func (f *Image) WriteFalseColorJPGToFile(fileName string, min, max, gamma float32, quality int) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return f.WriteFalseColorJPG(writer, min, max, gamma, quality)
}

// Write the first plane of a FITS image to false color JPG, using the given min, max and gamma.
func (f *Image) WriteFalseColorJPG(writer io.Writer, min, max, gamma float32, quality int) error {
	width, height := int(f.Naxisn[0]), int(f.Naxisn[1])
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, FalseColor(normalize(f.Data[yoffset+x], min, max, gamma)))
		}
	}
	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}

// Writes the first plane as a preview, choosing the format from the file name suffix:
// false color JPEG, 16-bit grayscale TIFF or FITS. With logScale, values are shown on a
// decimal log scale, which suits power spectra spanning many decades. FITS output is never rescaled.
func (f *Image) WritePreviewToFile(fileName string, logScale bool) error {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == ".fits" || ext == ".fit" || ext == ".fts" {
		return f.WriteFile(fileName)
	}

	view := f
	if logScale {
		view = NewImageFromNaxisn(f.Naxisn, nil)
		for i, v := range f.Data {
			view.Data[i] = float32(math.Log10(math.Max(float64(v), 1e-30)))
		}
	}
	min, max := view.planeRange()

	switch ext {
	case ".jpg", ".jpeg":
		return view.WriteFalseColorJPGToFile(fileName, min, max, 1, 95)
	case ".tif", ".tiff":
		return view.WriteMonoTIFF16ToFile(fileName, min, max, 1)
	default:
		return fmt.Errorf("unknown preview suffix '%s' of %s", ext, fileName)
	}
}

// Minimum and maximum of the first plane, ignoring NaNs
func (f *Image) planeRange() (min, max float32) {
	size := int(f.Naxisn[0]) * int(f.Naxisn[1])
	min, max = float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for _, v := range f.Data[:size] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
