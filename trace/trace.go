// Package trace records one span per protocol round trip.
//
// A span carries the request frame as its tag, gets the response frame
// appended to the tag and is marked with the error that aborted the
// transaction, if any. Spans are delivered to a Tracer when they end;
// Recorder persists them as a CBOR capture file that can be replayed with
// ReadAll when diagnosing a misbehaving serial line.
package trace

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracer starts spans.
type Tracer interface {
	// Start opens a span named name with an initial tag.
	// The returned span may be nil; all Span methods accept a nil receiver.
	Start(name, tag string) *Span
}

// Record is the persisted form of an ended span.
type Record struct {
	ID       string        `cbor:"1,keyasint"`
	Name     string        `cbor:"2,keyasint"`
	Tag      string        `cbor:"3,keyasint,omitempty"`
	Start    time.Time     `cbor:"4,keyasint"`
	Duration time.Duration `cbor:"5,keyasint"`
	Error    string        `cbor:"6,keyasint,omitempty"`
}

// Span is an in-flight trace record.
type Span struct {
	mu     sync.Mutex
	rec    Record
	ended  bool
	finish func(Record)
}

func newSpan(name, tag string, finish func(Record)) *Span {
	return &Span{
		rec: Record{
			ID:    uuid.New().String(),
			Name:  name,
			Tag:   tag,
			Start: time.Now(),
		},
		finish: finish,
	}
}

// ID returns the span id, or "" for a nil span.
func (s *Span) ID() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rec.ID
}

// AppendTag appends text to the span tag on a new line.
func (s *Span) AppendTag(text string) {
	if s == nil || text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec.Tag == "" {
		s.rec.Tag = text
		return
	}
	s.rec.Tag += "\n" + text
}

// SetError marks the span as failed. The first error wins.
func (s *Span) SetError(err error) {
	if s == nil || err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec.Error == "" {
		s.rec.Error = err.Error()
	}
}

// End stops the clock and hands the span to its tracer. Calling End more
// than once has no effect.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.rec.Duration = time.Since(s.rec.Start)
	rec := s.rec
	finish := s.finish
	s.mu.Unlock()

	if finish != nil {
		finish(rec)
	}
}

// Nop is a Tracer that never allocates spans.
var Nop Tracer = nopTracer{}

type nopTracer struct{}

func (nopTracer) Start(string, string) *Span { return nil }

// Func adapts a callback into a Tracer. It is mostly useful in tests.
type Func func(Record)

// Start implements Tracer.
func (f Func) Start(name, tag string) *Span {
	return newSpan(name, tag, f)
}
