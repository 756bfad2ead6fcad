package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"io"
)

// Record kinds. The wire format itself is owned by the external runner
// (spec.md §6); this is the concrete encoding this implementation reads
// and, for tests, writes: a 1-byte kind tag, a big-endian uint32 payload
// length, then that many bytes of JSON payload.
type recordKind uint8

const (
	kindHeader     recordKind = 1
	kindStatus     recordKind = 2
	kindProcessRun recordKind = 3
)

// Writer appends records to a checkpoint log. Used by tests and by any
// harness that needs to seed a runner checkpoint file.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (w *Writer) writeRecord(kind recordKind, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := binary.Write(w.w, binary.BigEndian, kind); err != nil {
		return err
	}
	if err := binary.Write(w.w, binary.BigEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err = w.w.Write(data)
	return err
}

func (w *Writer) WriteHeader(h Header) error         { return w.writeRecord(kindHeader, h) }
func (w *Writer) WriteStatus(s StatusEvent) error     { return w.writeRecord(kindStatus, s) }
func (w *Writer) WriteProcessRun(p ProcessRun) error  { return w.writeRecord(kindProcessRun, p) }
