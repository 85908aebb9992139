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

package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Column holding the acquisition date, used to select records by time
const DateColumn = "AcquisitionDate"

var (
	ErrHeaderMismatch = errors.New("header does not match existing table")
	ErrInvalidName    = errors.New("invalid table name")
	ErrNoDateColumn   = errors.New("table has no " + DateColumn + " column")
)

var reName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// An append-only store of tables, one CSV file with a header row per table name.
// Safe for concurrent use; appends are serialized
type Store struct {
	Dir   string
	mutex sync.Mutex
}

// Opens the store in the given directory, creating it if necessary
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Store{Dir: dir}, nil
}

// File path of the table with the given name
func (s *Store) Path(name string) string {
	return filepath.Join(s.Dir, name+".csv")
}

// Appends records to the named table. Creates the table with the header if it does not exist,
// else the header must match the existing one
func (s *Store) Append(name string, header []string, records [][]string) error {
	if !reName.MatchString(name) {
		return fmt.Errorf("%w: '%s'", ErrInvalidName, name)
	}
	for i, rec := range records {
		if len(rec) != len(header) {
			return fmt.Errorf("record %d has %d fields for %d columns", i, len(rec), len(header))
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	fileName := s.Path(name)
	existing, err := readHeader(fileName)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if existing != nil && strings.Join(existing, ",") != strings.Join(header, ",") {
		return fmt.Errorf("%w: %s has %v, appending %v", ErrHeaderMismatch, fileName, existing, header)
	}

	f, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if existing == nil {
		w.Write(header)
	}
	w.WriteAll(records) // flushes
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Returns the header of a CSV file, nil if the file is empty, or an error
func readHeader(fileName string) ([]string, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	header, err := csv.NewReader(f).Read()
	if err == io.EOF {
		return nil, nil
	}
	return header, err
}

// Reads the header and all records of the named table
func (s *Store) Read(name string) (header []string, records [][]string, err error) {
	if !reName.MatchString(name) {
		return nil, nil, fmt.Errorf("%w: '%s'", ErrInvalidName, name)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f, err := os.Open(s.Path(name))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}

// Result of a query. Undated counts rows left out of a date range because their
// acquisition date is missing or does not parse
type Table struct {
	Header  []string   `json:"header"`
	Records [][]string `json:"records"`
	Undated int        `json:"undated"`
}

// Reads the records of the named table acquired in [from, to). A zero bound is open.
// If both bounds are zero, all records are returned, dated or not
func (s *Store) Query(name string, from, to time.Time) (*Table, error) {
	header, all, err := s.Read(name)
	if err != nil {
		return nil, err
	}
	col := -1
	for i, h := range header {
		if h == DateColumn {
			col = i
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDateColumn, name)
	}
	res := &Table{Header: header, Records: [][]string{}}
	if from.IsZero() && to.IsZero() {
		res.Records = append(res.Records, all...)
		return res, nil
	}
	for _, rec := range all {
		t, err := time.Parse(time.RFC3339Nano, rec[col])
		if err != nil {
			res.Undated++
			continue
		}
		if (!from.IsZero() && t.Before(from)) || (!to.IsZero() && !t.Before(to)) {
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

// Sorted names of all tables in the store
func (s *Store) Names() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ".csv"))
	}
	sort.Strings(names)
	return names, nil
}
