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

package internal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Singleton log writer. Writes to stdout, and optionally to a file.
// Does not add prefixes, or force newlines. Safe for concurrent use.

// Environment variable naming the directory for measurement logs
const LogDirectoryEnv = "MEASURE_LOG_DIRECTORY"

var logMutex sync.Mutex

// The optional additional file to log into
var logFile *bufio.Writer
var logFileOS *os.File

// Name of the daily measurement log file in dir, e.g. measures_2020-06-30.log.
// If dir is empty, uses $MEASURE_LOG_DIRECTORY, or the current directory
func DefaultLogFileName(dir string, now time.Time) string {
	if dir == "" {
		dir = os.Getenv(LogDirectoryEnv)
	}
	return filepath.Join(dir, "measures_"+now.Format("2006-01-02")+".log")
}

// Enables logging to file, appending to it if it exists
func LogAlsoToFile(fileName string) (err error) {
	logMutex.Lock()
	defer logMutex.Unlock()
	if logFile != nil {
		if err = logFile.Flush(); err != nil {
			return err
		}
		if err = logFileOS.Close(); err != nil {
			return err
		}
		logFile, logFileOS = nil, nil
	}
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	logFileOS, logFile = f, bufio.NewWriter(f)
	return nil
}

func LogPrint(args ...interface{}) (n int, err error) {
	logMutex.Lock()
	defer logMutex.Unlock()
	n, err = fmt.Print(args...)
	if err != nil || logFile == nil {
		return n, err
	}
	return fmt.Fprint(logFile, args...)
}

func LogPrintln(args ...interface{}) (n int, err error) {
	logMutex.Lock()
	defer logMutex.Unlock()
	n, err = fmt.Println(args...)
	if err != nil || logFile == nil {
		return n, err
	}
	return fmt.Fprintln(logFile, args...)
}

func LogPrintf(format string, args ...interface{}) (n int, err error) {
	logMutex.Lock()
	defer logMutex.Unlock()
	n, err = fmt.Printf(format, args...)
	if err != nil || logFile == nil {
		return n, err
	}
	return fmt.Fprintf(logFile, format, args...)
}

func LogFatal(args ...interface{}) {
	logMutex.Lock()
	fmt.Println(args...)
	if logFile != nil {
		fmt.Fprintln(logFile, args...)
		logFile.Flush()
		logFileOS.Close()
	}
	os.Exit(1)
}

func LogFatalf(format string, args ...interface{}) {
	logMutex.Lock()
	fmt.Printf(format, args...)
	if logFile != nil {
		fmt.Fprintf(logFile, format, args...)
		logFile.Flush()
		logFileOS.Close()
	}
	os.Exit(1)
}

func LogSync() {
	logMutex.Lock()
	defer logMutex.Unlock()
	if logFile == nil {
		return
	}
	logFile.Flush()
	logFileOS.Sync()
}

// Writer view of the singleton log, for components taking an io.Writer
type LogWriter struct{}

func (LogWriter) Write(p []byte) (n int, err error) {
	return LogPrint(string(p))
}
