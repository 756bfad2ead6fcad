package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestMultiWriterFansOutToAllWriters(t *testing.T) {
	var a, b bytes.Buffer
	mw := NewMultiWriter().Add(&a).Add(&b)

	n, err := mw.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 5 {
		t.Fatalf("n = %d, want 5", n)
	}
	if a.String() != "hello" || b.String() != "hello" {
		t.Fatalf("a=%q b=%q, want both hello", a.String(), b.String())
	}
}

func TestFormatterSubstitutesPlaceholders(t *testing.T) {
	f := &formatter{pattern: "%level %msg %field", time: "2006-01-02"}
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Level:   logrus.InfoLevel,
		Message: "started",
		Data:    logrus.Fields{"task_id": "t1"},
	}

	out, err := f.Format(entry)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	line := string(out)
	if !strings.Contains(line, "info") || !strings.Contains(line, "started") || !strings.Contains(line, "task_id=t1") {
		t.Fatalf("unexpected formatted line: %q", line)
	}
}
