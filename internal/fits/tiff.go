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
	"io"
	"math"
	"os"

	"golang.org/x/image/tiff"
)

// Read a color or grayscale TIFF image into a FITS image. Color images become three planes r, g, b
func (f *Image) ReadTIFF(r io.Reader) error {
	t, err := tiff.Decode(bufio.NewReader(r))
	if err != nil {
		return fmt.Errorf("%d: %w", f.ID, err)
	}

	// determine width, height, color depth and number of color channels
	bounds := t.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	bitpix, channels := colorModelToBitpixAndChannels(t.ColorModel())
	if channels == 0 {
		return fmt.Errorf("%d: unsupported TIFF color model", f.ID)
	}

	f.Bitpix = bitpix
	f.Naxisn = []int32{int32(width), int32(height)}
	if channels > 1 {
		f.Naxisn = append(f.Naxisn, channels)
	}
	f.Pixels = int32(width) * int32(height) * channels
	f.Bzero, f.Bscale = 0, 1
	f.Data = make([]float32, f.Pixels)

	size := width * height
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := t.At(bounds.Min.X+x, bounds.Min.Y+y)
			i := y*width + x
			if channels == 1 {
				f.Data[i] = float32(color.Gray16Model.Convert(c).(color.Gray16).Y)
			} else {
				rgb := color.RGBA64Model.Convert(c).(color.RGBA64)
				f.Data[i] = float32(rgb.R)
				f.Data[i+size] = float32(rgb.G)
				f.Data[i+2*size] = float32(rgb.B)
			}
		}
	}
	return nil
}

func colorModelToBitpixAndChannels(m color.Model) (bitpix, channels int32) {
	switch m {
	case color.RGBAModel, color.NRGBAModel:
		return 8, 3
	case color.RGBA64Model, color.NRGBA64Model:
		return 16, 3
	case color.AlphaModel, color.GrayModel:
		return 8, 1
	case color.Alpha16Model, color.Gray16Model:
		return 16, 1
	default:
		return 0, 0
	}
}

// Write the first plane of a FITS image to 16-bit grayscale TIFF, using the given min, max and gamma.
func (f *Image) WriteMonoTIFF16ToFile(fileName string, min, max, gamma float32) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	return f.WriteMonoTIFF16(writer, min, max, gamma)
}

// Write the first plane of a FITS image to 16-bit grayscale TIFF, using the given min, max and gamma.
func (f *Image) WriteMonoTIFF16(writer io.Writer, min, max, gamma float32) error {
	width, height := int(f.Naxisn[0]), int(f.Naxisn[1])
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			gray := normalize(f.Data[yoffset+x], min, max, gamma)
			img.SetGray16(x, y, color.Gray16{Y: uint16(gray * 65535)})
		}
	}
	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Uncompressed, Predictor: false})
}

// Maps v from [min,max] to [0,1] with the given gamma. NaNs map to zero, else image output breaks
func normalize(v, min, max, gamma float32) float32 {
	if max > min {
		v = (v - min) / (max - min)
	} else {
		v = 0
	}
	if math.IsNaN(float64(v)) || v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	if gamma != 1 && gamma > 0 {
		v = float32(math.Pow(float64(v), 1/float64(gamma)))
	}
	return v
}
