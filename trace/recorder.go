package trace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace: cbor encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("trace: cbor decoder mode: %v", err))
	}
}

// Recorder is a Tracer that appends every ended span to w as one CBOR item.
type Recorder struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	closer io.Closer
	err    error
	count  int
}

var _ Tracer = (*Recorder)(nil)

// NewRecorder creates a Recorder writing to w. The caller keeps ownership of w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: encMode.NewEncoder(w)}
}

// OpenFile creates a Recorder appending to the capture file at path.
// Close releases the file.
func OpenFile(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("trace: open capture file: %w", err)
	}

	r := NewRecorder(f)
	r.closer = f

	return r, nil
}

// Start implements Tracer.
func (r *Recorder) Start(name, tag string) *Span {
	return newSpan(name, tag, r.write)
}

func (r *Recorder) write(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return
	}
	if err := r.enc.Encode(rec); err != nil {
		r.err = fmt.Errorf("trace: encode span %s: %w", rec.ID, err)
		return
	}
	r.count++
}

// Count returns the number of spans written so far.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.count
}

// Err returns the first encoding error. After an error the recorder drops
// all further spans.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.err
}

// Close closes the capture file opened by OpenFile. It is a no-op for
// recorders built with NewRecorder.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closer == nil {
		return r.err
	}
	err := r.closer.Close()
	r.closer = nil

	return errors.Join(r.err, err)
}

// ReadAll decodes every record of a capture stream.
func ReadAll(rd io.Reader) ([]Record, error) {
	dec := decMode.NewDecoder(rd)

	var out []Record
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("trace: decode record %d: %w", len(out), err)
		}
		out = append(out, rec)
	}
}
