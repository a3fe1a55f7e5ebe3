package logging

import (
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestNewWritesToBuffer(t *testing.T) {
	buf := NewBuffer(10)
	logger, err := New(Options{Level: "info", Format: "json", Writers: []io.Writer{buf}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	Component(logger, "queue").Info("job admitted", String("job_id", "abc"))
	logger.Debug("hidden")

	lines := buf.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %v", len(lines), lines)
	}
	for _, want := range []string{`"component":"queue"`, `"job_id":"abc"`, `"level":"info"`, `"ts":`} {
		if !strings.Contains(lines[0], want) {
			t.Fatalf("line %q missing %s", lines[0], want)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestBufferKeepsNewestLines(t *testing.T) {
	buf := NewBuffer(3)
	for i := 0; i < 5; i++ {
		fmt.Fprintf(buf, "line %d\n", i)
	}
	lines := buf.Lines()
	if len(lines) != 3 || lines[0] != "line 2\n" || lines[2] != "line 4\n" {
		t.Fatalf("unexpected lines: %q", lines)
	}
}

func TestComponentToleratesNilLogger(t *testing.T) {
	Component(nil, "cache").Info("dropped")
}
