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

package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/cpuid"
	mp "github.com/mlnoga/myopic/internal"
	"github.com/mlnoga/myopic/internal/config"
	"github.com/mlnoga/myopic/internal/fits"
	"github.com/mlnoga/myopic/internal/gml"
	"github.com/mlnoga/myopic/internal/ops"
	"github.com/mlnoga/myopic/internal/rest"
	"github.com/mlnoga/myopic/internal/store"
	"github.com/mlnoga/myopic/internal/zernike"
	"github.com/pbnjay/memory"
)

const version = "0.1.0"

var totalMiBs = memory.TotalMemory() / 1024 / 1024

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var configFile = flag.String("config", "", "load settings from YAML `file`. Flags given explicitly override it")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` uses measures_YYYY-MM-DD.log in $"+mp.LogDirectoryEnv+", blank for none")
var out = flag.String("out", "", "save estimates as JSON to `file`")
var psd = flag.String("psd", "", "save power spectrum previews with given filename pattern, e.g. `psd%04d.jpg`")
var otf = flag.String("otf", "", "save fitted transfer function previews with given filename pattern, e.g. `otf%04d.jpg`")

var modes = flag.String("modes", "2,-2;2,2;4,0", "semicolon separated Zernike modes (n,m) to fit")
var guess = flag.String("guess", "", "semicolon separated starting values, e.g. `alpha=1.2;(2,2)=0.01`")
var fitRes = flag.Bool("fitRes", true, "fit the pupil resolution, false=hold it at its starting value")
var apodise = flag.Int("apodise", 0, "apodise image borders of this many pixels before the FFT, 0=off")

var maxIter = flag.Int("maxIter", 5000, "maximum Nelder-Mead iterations")
var maxEval = flag.Int("maxEval", 10000, "maximum cost function evaluations")
var tol = flag.Float64("tol", 1e-10, "relative cost improvement below which the fit counts as converged")
var step = flag.Float64("step", 0.05, "relative size of the initial simplex")
var restarts = flag.Int("restarts", 1, "restart the simplex around the best point this many times")

var measure = flag.String("measure", "gml", "comma separated measurements for batch mode, from "+strings.Join(ops.MeasurementTypes(), ", "))
var storeDir = flag.String("store", "measures", "store measurement tables in this `directory`")
var threads = flag.Int("threads", 0, "process this many images concurrently, 0=auto from cores and memory")
var maxN = flag.Int("maxN", 4, "list Zernike modes up to this radial degree")

var addr = flag.String("addr", ":8080", "serve the REST API on this address")
var chroot = flag.String("chroot", "", "serve: change filesystem root to `directory` (requires root)")
var setuid = flag.Int("setuid", -1, "serve: drop to this user ID, -1=keep")

func main() {
	logWriter := mp.LogWriter{}
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(os.Stdout, `Myopic Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (estimate|batch|query|modes|zernike|serve|legal|version) (img0.fits ... imgn.fits)

Commands:
  estimate Fit transfer function and prior to every plane of the input images
  batch    Apply the measurements to every plane and append the rows to the store
  query    Print a stored table as CSV: query table [from [to]]
  modes    List Zernike modes up to degree maxN
  zernike  Render one Zernike polynomial: zernike n m size out.jpg
  serve    Serve the REST API
  legal    Show license and attribution information
  version  Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *log == "%auto" {
		*log = mp.DefaultLogFileName("", time.Now())
	}
	if *log != "" {
		if err := mp.LogAlsoToFile(*log); err != nil {
			mp.LogFatalf("Unable to open logfile '%s'\n", *log)
		}
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			mp.LogFatal("Could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			mp.LogFatal("Could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	cfg, err := buildConfiguration()
	if err != nil {
		mp.LogFatalf("Error in configuration: %s\n", err.Error())
	}
	c := ops.NewContext(logWriter, cfg.Threads)
	mp.LogPrintf("Running on %s with %d physical and %d logical cores, AVX2 %v, %d MiB memory, %d threads\n",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, cpuid.CPU.AVX2(), totalMiBs, c.MaxThreads)

	switch args[0] {
	case "estimate":
		err = cmdEstimate(args[1:], &cfg, c)

	case "batch":
		err = cmdBatch(args[1:], &cfg, c)

	case "query":
		err = cmdQuery(args[1:], &cfg, os.Stdout)

	case "modes":
		err = cmdModes(*maxN, logWriter)

	case "zernike":
		err = cmdZernike(args[1:], c)

	case "serve":
		err = cmdServe(&cfg, c)

	case "legal":
		cmdLegal()

	case "version":
		mp.LogPrintf("Version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		mp.LogPrintf("Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	hits, misses := c.Engine.Stats()
	mp.LogPrintf("\nDone after %v, %d Zernike cache hits, %d misses\n", time.Since(start), hits, misses)

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			mp.LogFatal("Could not create memory profile: ", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			mp.LogFatal("Could not write allocation profile: ", err)
		}
	}

	if err != nil {
		mp.LogFatalf("Error: %s\n", err.Error())
	}
	mp.LogSync()
}

// Loads the configuration file if given, and applies explicitly set flags over it
func buildConfiguration() (config.Configuration, error) {
	cfg := config.NewConfiguration()
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadConfiguration(*configFile); err != nil {
			return cfg, err
		}
	}

	var err error
	flag.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "modes":
			var ms zernike.ModeSet
			if ms, err = zernike.ParseModeSet(*modes); err == nil {
				cfg.Modes = make([]string, len(ms))
				for i, md := range ms {
					cfg.Modes[i] = md.String()
				}
			}
		case "guess":
			var g gml.Guess
			if g, err = gml.ParseGuess(*guess); err == nil {
				for k, v := range g {
					cfg.Guess[k] = v
				}
			}
		case "fitRes":
			cfg.FitResolution = *fitRes
		case "apodise":
			cfg.Apodise = *apodise
		case "maxIter":
			cfg.Optimizer.MaxIterations = *maxIter
		case "maxEval":
			cfg.Optimizer.MaxEvaluations = *maxEval
		case "tol":
			cfg.Optimizer.Tolerance = *tol
		case "step":
			cfg.Optimizer.InitialStep = *step
		case "restarts":
			cfg.Optimizer.Restarts = *restarts
		case "measure":
			cfg.Measurements = strings.Split(*measure, ",")
		case "store":
			cfg.Store = *storeDir
		case "threads":
			cfg.Threads = *threads
		}
	})
	if err != nil {
		return cfg, err
	}
	if cfg.Guess == nil {
		cfg.Guess = map[string]float64{}
	}
	return cfg, cfg.FinalizeConfiguration()
}

// Glob filename arguments into load promises, with concurrency sized to the largest file
func loadPromises(args []string, c *ops.Context) ([]ops.Promise, int, error) {
	promises, maxBytes, err := ops.NewLoadManyPromises(args, false, c)
	if err != nil {
		return nil, 0, err
	}
	return promises, c.Threads(maxBytes * ops.BytesPerFileByte), nil
}

// Perform estimate command
func cmdEstimate(args []string, cfg *config.Configuration, c *ops.Context) error {
	promises, threads, err := loadPromises(args, c)
	if err != nil {
		return err
	}
	opts := cfg.Optimizer
	op := ops.NewOpGML(cfg.ModeSet, cfg.InitialGuess, cfg.FitResolution, cfg.Apodise, &opts)
	mp.LogPrintf("Estimating %d images with %d threads, modes %s, guess '%s'\n", len(promises), threads, cfg.ModeSet, cfg.InitialGuess)

	ests, report := op.EstimateAll(promises, threads, *psd, *otf, c)
	if *out != "" {
		m, err := json.MarshalIndent(ests, "", "  ")
		if err != nil {
			return err
		}
		mp.LogPrintf("Writing %d estimates to %s\n", len(ests), *out)
		if err := os.WriteFile(*out, m, 0666); err != nil {
			return err
		}
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d of %d images failed", len(report.Failed), report.Sources)
	}
	return nil
}

// Perform batch command
func cmdBatch(args []string, cfg *config.Configuration, c *ops.Context) error {
	promises, threads, err := loadPromises(args, c)
	if err != nil {
		return err
	}
	ms, err := cfg.BuildMeasurements()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	m, err := json.MarshalIndent(ms, "", "  ")
	if err != nil {
		return err
	}
	mp.LogPrintf("\nMeasuring %d images with %d threads into %s with these settings:\n%s\n", len(promises), threads, cfg.Store, string(m))

	report := ops.MeasureAll(promises, ms, st, threads, c)
	if report.Succeeded == 0 {
		return fmt.Errorf("all %d images failed", report.Sources)
	}
	return nil
}

// Perform query command
func cmdQuery(args []string, cfg *config.Configuration, w io.Writer) error {
	if len(args) < 1 || len(args) > 3 {
		return fmt.Errorf("usage: query table [from [to]]")
	}
	var bounds [2]time.Time
	for i, a := range args[1:] {
		t, err := fits.ParseDate(a)
		if err != nil {
			return err
		}
		bounds[i] = t
	}
	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	table, err := st.Query(args[0], bounds[0], bounds[1])
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(table.Records); err != nil {
		return err
	}
	mp.LogPrintf("%d records\n", len(table.Records))
	if table.Undated > 0 {
		mp.LogPrintf("Warning: %d records without a valid %s left out of the date range\n", table.Undated, store.DateColumn)
	}
	return nil
}

// Perform modes command
func cmdModes(maxN int, w io.Writer) error {
	if maxN < 0 {
		return fmt.Errorf("maxN %d must not be negative", maxN)
	}
	fmt.Fprintf(w, "%5s %-8s %s\n", "Index", "Mode", "Name")
	for _, md := range zernike.RevIndex(maxN) {
		fmt.Fprintf(w, "%5d %-8s %s\n", md.Index(), md.String(), md.Name())
	}
	return nil
}

// Perform zernike command, rendering Z_n^m on the unit disk inscribed in a size x size image
func cmdZernike(args []string, c *ops.Context) error {
	if len(args) != 4 {
		return fmt.Errorf("usage: zernike n m size out.jpg")
	}
	var nums [3]int
	for i := range nums {
		v, err := strconv.Atoi(args[i])
		if err != nil {
			return fmt.Errorf("cannot parse '%s': %w", args[i], err)
		}
		nums[i] = v
	}
	n, m, size := nums[0], nums[1], nums[2]
	if size < 2 {
		return fmt.Errorf("size %d too small", size)
	}

	rho, phi := make([]float64, size*size), make([]float64, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			u, v := 2*float64(x)/float64(size-1)-1, 2*float64(y)/float64(size-1)-1
			rho[y*size+x], phi[y*size+x] = math.Hypot(u, v), math.Atan2(v, u)
		}
	}
	data, err := c.Engine.Evaluate(n, m, rho, phi)
	if err != nil {
		return err
	}
	for i, r := range rho {
		if r > 1 {
			data[i] = 0
		}
	}
	mp.LogPrintf("Writing Z(%d,%d) %s to %s\n", n, m, zernike.Mode{N: n, M: m}.Name(), args[3])
	return fits.NewImageFromFloat64(size, size, data).WritePreviewToFile(args[3], false)
}

// Perform serve command
func cmdServe(cfg *config.Configuration, c *ops.Context) error {
	if err := rest.MakeSandbox(*chroot, *setuid, c.Log); err != nil {
		return err
	}
	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	mp.LogPrintf("Serving on %s\n", *addr)
	return rest.NewServer(c, st).Serve(*addr)
}
