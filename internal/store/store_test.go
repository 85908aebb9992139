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
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

var header = []string{"ID", DateColumn, "alpha"}

func TestAppend(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append("gml", header, [][]string{{"0", "2021-01-01T00:00:00Z", "1.5"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Append("gml", header, [][]string{{"1", "2021-01-02T00:00:00Z", "1.7"}, {"2", "", "1.9"}}); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(s.Path("gml"))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(raw), "ID,"); n != 1 {
		t.Errorf("header written %d times; want once", n)
	}

	h, recs, err := s.Read("gml")
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 3 || len(recs) != 3 || recs[2][2] != "1.9" {
		t.Errorf("header %v records %v; want 3 columns, 3 records", h, recs)
	}

	if err := s.Append("gml", []string{"ID", "beta"}, [][]string{{"3", "2"}}); !errors.Is(err, ErrHeaderMismatch) {
		t.Errorf("err=%v; want ErrHeaderMismatch", err)
	}
	if err := s.Append("../gml", header, nil); !errors.Is(err, ErrInvalidName) {
		t.Errorf("err=%v; want ErrInvalidName", err)
	}
	if err := s.Append("gml", header, [][]string{{"short"}}); err == nil {
		t.Errorf("short record gave no error")
	}
	if names, err := s.Names(); err != nil || len(names) != 1 || names[0] != "gml" {
		t.Errorf("names=%v err=%v; want [gml]", names, err)
	}
}

func TestQuery(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	recs := [][]string{
		{"0", "2021-01-01T00:00:00Z", "1"},
		{"1", "2021-01-02T12:00:00Z", "2"},
		{"2", "2021-01-03T00:00:00Z", "3"},
		{"3", "", "4"},
	}
	if err := s.Append("stats", header, recs); err != nil {
		t.Fatal(err)
	}
	if err := s.Append("stats", header, [][]string{{"4", "yesterday", "5"}}); err != nil {
		t.Fatal(err)
	}
	tcs := []struct {
		From, To time.Time
		Want     int
		Undated  int
	}{
		{time.Time{}, time.Time{}, 5, 0},
		{time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC), time.Time{}, 2, 2},
		{time.Time{}, time.Date(2021, 1, 3, 0, 0, 0, 0, time.UTC), 2, 2},
		{time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2021, 1, 3, 0, 0, 0, 0, time.UTC), 1, 2},
	}
	for _, tc := range tcs {
		got, err := s.Query("stats", tc.From, tc.To)
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Records) != tc.Want || got.Undated != tc.Undated {
			t.Errorf("query [%v, %v) gave %d records, %d undated; want %d and %d",
				tc.From, tc.To, len(got.Records), got.Undated, tc.Want, tc.Undated)
		}
		if len(got.Header) != len(header) {
			t.Errorf("header %v; want %v", got.Header, header)
		}
	}

	if err := s.Append("nodate", []string{"ID"}, [][]string{{"0"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Query("nodate", time.Time{}, time.Time{}); !errors.Is(err, ErrNoDateColumn) {
		t.Errorf("err=%v; want ErrNoDateColumn", err)
	}
}

func TestConcurrentAppend(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	wg := sync.WaitGroup{}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Append("gml", header, [][]string{{fmt.Sprint(i), "", "0"}}); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	_, recs, err := s.Read("gml")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 16 {
		t.Errorf("%d records; want 16", len(recs))
	}
}
