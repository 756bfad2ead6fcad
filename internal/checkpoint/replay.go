package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Replayer reads a length-prefixed checkpoint record stream and folds
// it into a RunnerState.
type Replayer struct {
	log logrus.FieldLogger
}

func NewReplayer(log logrus.FieldLogger) *Replayer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Replayer{log: log}
}

// FromFile replays path in full and returns the resulting RunnerState.
// A missing file returns (nil, nil) — "no runner checkpoint yet" is not
// an error, per the transient-I/O taxonomy (spec.md §7).
func (r *Replayer) FromFile(path string) (*RunnerState, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return r.replay(f), nil
}

// replay never returns an error: truncated trailing records and unknown
// kinds are tolerated per spec.md §4.3, and any other read failure just
// stops the fold at the state accumulated so far.
func (r *Replayer) replay(rd io.Reader) *RunnerState {
	state := NewRunnerState()
	r.ReplayInto(rd, state)
	return state
}

// ReplayInto folds records read from rd into state (which may already
// hold a prior partial fold) and returns the number of bytes consumed
// by complete records only — a truncated trailing record contributes
// nothing to the count, so a caller tracking a file offset can safely
// resume from exactly that many bytes past where it started reading.
func (r *Replayer) ReplayInto(rd io.Reader, state *RunnerState) int64 {
	cr := &countingReader{r: rd}
	var consumed int64
	for {
		var kind recordKind
		if err := binary.Read(cr, binary.BigEndian, &kind); err != nil {
			return consumed // EOF or truncated kind byte: stop here.
		}

		var length uint32
		if err := binary.Read(cr, binary.BigEndian, &length); err != nil {
			return consumed // truncated length prefix
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(cr, payload); err != nil {
			return consumed // truncated payload: live-append in progress
		}

		consumed = cr.n
		if err := r.applyRecord(state, kind, payload); err != nil {
			r.log.WithError(err).WithField("kind", kind).Warn("checkpoint: skipping unreadable record")
		}
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (r *Replayer) applyRecord(state *RunnerState, kind recordKind, payload []byte) error {
	switch kind {
	case kindHeader:
		var h Header
		if err := json.Unmarshal(payload, &h); err != nil {
			return err
		}
		state.Header = &h
	case kindStatus:
		var s StatusEvent
		if err := json.Unmarshal(payload, &s); err != nil {
			return err
		}
		state.Statuses = append(state.Statuses, s)
	case kindProcessRun:
		var p ProcessRun
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		state.Processes[p.Process] = append(state.Processes[p.Process], p)
	default:
		r.log.WithField("kind", kind).Warn("checkpoint: unknown record kind")
	}
	return nil
}
