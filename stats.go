package dfs

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rodaine/table"
)

// op tracks count and total latency for one kind of operation.
type op struct {
	count uint32
	nanos uint64
}

func (o *op) Record(start time.Time) {
	atomic.AddUint32(&o.count, 1)
	atomic.AddUint64(&o.nanos, uint64(time.Since(start).Nanoseconds()))
}

func (o op) microsPerOp() float64 {
	if o.count == 0 {
		return 0
	}
	return float64(o.nanos) / float64(o.count) / 1e3
}

// opStats is the fixed set of DFS operations a Mount tracks. New
// operations are added here, not via a growable map, matching the
// teacher's practice of a fixed per-server Op array.
type opStats struct {
	format, mount    op
	create, truncate op
	read, write       op
	iterate           op
	erase, flashRead, flashWrite op // flash-facade level, distinct from the file-op level above
}

func (s *opStats) names() []string {
	return []string{"format", "mount", "create", "truncate", "read", "write", "iterate", "flash.erase", "flash.read", "flash.write"}
}

func (s *opStats) all() []*op {
	return []*op{&s.format, &s.mount, &s.create, &s.truncate, &s.read, &s.write, &s.iterate, &s.erase, &s.flashRead, &s.flashWrite}
}

// WriteStats renders per-operation counts and average latency as a
// table.
func (s *opStats) WriteStats(w io.Writer) {
	tbl := table.New("op", "count", "us/op")
	names := s.names()
	ops := s.all()
	for i, name := range names {
		micros := fmt.Sprintf("%0.2f", ops[i].microsPerOp())
		tbl.AddRow(name, atomic.LoadUint32(&ops[i].count), micros)
	}
	tbl.WithWriter(w).Print()
}

// FormatStats is WriteStats rendered to a string, for callers (such as
// tests) that don't have a ready io.Writer.
func (s *opStats) FormatStats() string {
	buf := new(bytes.Buffer)
	s.WriteStats(buf)
	return buf.String()
}
