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
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mlnoga/myopic/internal/fits"
	"github.com/mlnoga/myopic/internal/zernike"
	"github.com/pbnjay/memory"
)

// An execution context for measurements
type Context struct {
	Log        io.Writer
	MemoryMB   int             // memory.TotalMemory()/1024/1024
	WorkMB     int             // MemoryMB*7/10, the budget for images held concurrently
	MaxThreads int             `json:"maxThreads"`
	Engine     *zernike.Engine // Zernike cache shared by all measurements
}

func NewContext(log io.Writer, maxThreads int) *Context {
	memoryMB := int(memory.TotalMemory() / 1024 / 1024)
	if maxThreads <= 0 {
		maxThreads = runtime.GOMAXPROCS(0)
	}
	return &Context{
		Log:        log,
		MemoryMB:   memoryMB,
		WorkMB:     memoryMB * 7 / 10,
		MaxThreads: maxThreads,
		Engine:     zernike.NewEngine(),
	}
}

// Number of images to process concurrently if each needs the given number of bytes
func (c *Context) Threads(bytesPerImage int64) int {
	threads := c.MaxThreads
	if bytesPerImage > 0 && c.WorkMB > 0 {
		byMemory := int(int64(c.WorkMB) * 1024 * 1024 / bytesPerImage)
		if byMemory < threads {
			threads = byMemory
		}
	}
	if threads < 1 {
		threads = 1
	}
	return threads
}

// A source of 2D planes with acquisition metadata, e.g. one image file
type PlaneSource interface {
	ID() int
	Metadata() *fits.Metadata
	Planes() []fits.PlaneID // In c, z, t order with t varying fastest
	Plane(id fits.PlaneID) (*fits.Plane, error)
}

// A promise for a plane source. Returns a materialized source, or an error
type Promise func() (PlaneSource, error)

// Working memory per input byte: float32 image, float64 plane, complex spectrum and model buffers
const BytesPerFileByte = 32

// Promises to load the given file, checking the path first if sandboxed
func NewLoadPromise(id int, fileName string, sandboxed bool, c *Context) (Promise, error) {
	if sandboxed && !IsPathAllowed(fileName) {
		return nil, fmt.Errorf("%d: file name %s outside current directory tree", id, fileName)
	}
	return func() (PlaneSource, error) {
		s, err := fits.OpenSource(fileName, id, c.Log)
		if err != nil {
			return nil, err
		}
		m := s.Metadata()
		fmt.Fprintf(c.Log, "%d: Loaded %s image from %s\n", id, s.Image().DimensionsToString(), fileName)
		if m.SizeX < 2 || m.SizeY < 2 {
			return nil, fmt.Errorf("%d: %dx%d planes are too small to measure", id, m.SizeX, m.SizeY)
		}
		return s, nil
	}, nil
}

// Expands file name patterns with wildcards into load promises, numbered from 0.
// Also returns the size of the largest file, to size concurrency
func NewLoadManyPromises(patterns []string, sandboxed bool, c *Context) (promises []Promise, maxBytes int64, err error) {
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, 0, err
		}
		for _, match := range matches {
			if sandboxed && !IsPathAllowed(match) {
				fmt.Fprintf(c.Log, "Pattern match outside current directory tree, skipping\n")
				continue
			}
			if st, err := os.Stat(match); err == nil && st.Size() > maxBytes {
				maxBytes = st.Size()
			}
			p, err := NewLoadPromise(len(promises), match, sandboxed, c)
			if err != nil {
				return nil, 0, err
			}
			promises = append(promises, p)
		}
	}
	if len(promises) == 0 {
		return nil, 0, fmt.Errorf("no files to load from pattern %v", patterns)
	}
	fmt.Fprintf(c.Log, "Found %d files.\n", len(promises))
	return promises, maxBytes, nil
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func IsPathAllowed(p string) bool {
	if filepath.IsAbs(p) {
		return false // relative paths only
	}
	if strings.Contains(p, "..") {
		return false // no going outside the tree
	}
	return true
}
