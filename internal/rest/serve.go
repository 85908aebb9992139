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

package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mlnoga/myopic/internal/fits"
	"github.com/mlnoga/myopic/internal/ops"
	"github.com/mlnoga/myopic/internal/store"
	"github.com/mlnoga/myopic/internal/zernike"
)

// HTTP frontend for estimation and batch measurement. File names in requests
// must be relative paths inside the working directory tree
type Server struct {
	ctx   *ops.Context
	store *store.Store
}

func NewServer(ctx *ops.Context, st *store.Store) *Server {
	return &Server{ctx: ctx, store: st}
}

func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.GET("/modes", getModes)
			v1.POST("/estimate", s.postEstimate)
			v1.POST("/batch", s.postBatch)
			v1.GET("/tables", s.getTables)
			v1.GET("/tables/:name", s.getTable)
		}
	}
	return r
}

// Listens and serves on addr, e.g. ":8080"
func (s *Server) Serve(addr string) error {
	return s.Router().Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

type modeInfo struct {
	N     int    `json:"n"`
	M     int    `json:"m"`
	Index int    `json:"index"`
	Name  string `json:"name"`
}

func getModes(c *gin.Context) {
	maxN, err := strconv.Atoi(c.DefaultQuery("maxN", "4"))
	if err != nil || maxN < 0 || maxN > 20 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "maxN must be an integer from 0 to 20"})
		return
	}
	modes := zernike.RevIndex(maxN)
	infos := make([]modeInfo, len(modes))
	for i, md := range modes {
		infos[i] = modeInfo{N: md.N, M: md.M, Index: md.Index(), Name: md.Name()}
	}
	c.JSON(http.StatusOK, infos)
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Serializes writes from concurrent workers onto the response
type syncWriter struct {
	mutex sync.Mutex
	w     gin.ResponseWriter
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	n, err := s.w.Write(p)
	s.w.Flush()
	return n, err
}

// Starts a streamed plain text response and returns a per-request context logging into it
func (s *Server) startStream(c *gin.Context) (*ops.Context, io.Writer) {
	header := c.Writer.Header()
	header.Set("Content-Type", "text/plain")
	c.Writer.WriteHeader(http.StatusOK)
	logWriter := &syncWriter{w: c.Writer}
	ctx := *s.ctx
	ctx.Log = logWriter
	return &ctx, logWriter
}

type postEstimateArgs struct {
	FilePatterns []string   `json:"filePatterns"`
	GML          *ops.OpGML `json:"gml"`
	PSDPattern   string     `json:"psdPattern"` // Optional preview file names, see ops.PreviewName
	OTFPattern   string     `json:"otfPattern"`
}

// Streams the log of the fits as text, followed by a line "Results:" and the estimates as JSON
func (s *Server) postEstimate(c *gin.Context) {
	var args postEstimateArgs
	if err := c.ShouldBind(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if args.GML == nil {
		args.GML = ops.NewOpGMLDefault()
	}
	for _, p := range []string{args.PSDPattern, args.OTFPattern} {
		if p != "" && !ops.IsPathAllowed(p) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("preview pattern %s outside current directory tree", p)})
			return
		}
	}

	ctx, logWriter := s.startStream(c)
	if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}
	promises, maxBytes, err := ops.NewLoadManyPromises(args.FilePatterns, true, ctx)
	if err != nil {
		fmt.Fprintf(logWriter, "Error globbing filenames: %s\n", err.Error())
		return
	}
	ests, _ := args.GML.EstimateAll(promises, ctx.Threads(maxBytes*ops.BytesPerFileByte), args.PSDPattern, args.OTFPattern, ctx)
	if ests == nil {
		ests = []ops.PlaneEstimate{}
	}
	if err := printArgs(logWriter, "Results:\n", "\n", ests); err != nil {
		fmt.Fprintf(logWriter, "Error printing results: %s\n", err.Error())
	}
}

type postBatchArgs struct {
	FilePatterns []string         `json:"filePatterns"`
	Measurements ops.Measurements `json:"measurements"`
}

// Streams the log of the batch as text, followed by a line "Report:" and the batch report as JSON.
// Rows are appended to the server's store, one table per measurement type
func (s *Server) postBatch(c *gin.Context) {
	var args postBatchArgs
	if err := c.ShouldBind(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(args.Measurements) == 0 {
		args.Measurements = ops.Measurements{ops.NewOpGMLDefault()}
	}

	ctx, logWriter := s.startStream(c)
	if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}
	promises, maxBytes, err := ops.NewLoadManyPromises(args.FilePatterns, true, ctx)
	if err != nil {
		fmt.Fprintf(logWriter, "Error globbing filenames: %s\n", err.Error())
		return
	}
	report := ops.MeasureAll(promises, args.Measurements, s.store, ctx.Threads(maxBytes*ops.BytesPerFileByte), ctx)
	if err := printArgs(logWriter, "Report:\n", "\n", report); err != nil {
		fmt.Fprintf(logWriter, "Error printing report: %s\n", err.Error())
	}
}

func (s *Server) getTables(c *gin.Context) {
	names, err := s.store.Names()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": names})
}

// Returns the rows of a table, optionally restricted to acquisition dates in [from, to),
// with the number of rows left out for lacking a date. Bounds are RFC 3339 timestamps
// or any layout fits.ParseDate accepts
func (s *Server) getTable(c *gin.Context) {
	var from, to time.Time
	for _, b := range []struct {
		key string
		t   *time.Time
	}{{"from", &from}, {"to", &to}} {
		v := c.Query(b.key)
		if v == "" {
			continue
		}
		t, err := fits.ParseDate(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("bad %s date: %s", b.key, err.Error())})
			return
		}
		*b.t = t
	}
	table, err := s.store.Query(c.Param("name"), from, to)
	switch {
	case errors.Is(err, os.ErrNotExist):
		c.JSON(http.StatusNotFound, gin.H{"error": "no such table"})
		return
	case errors.Is(err, store.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, table)
}
