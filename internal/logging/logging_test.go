package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "info", "json")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("remote command", "cmd", "hostname", "exit", 0)
	if !strings.Contains(buf.String(), `"cmd":"hostname"`) {
		t.Fatalf("json output missing attribute: %s", buf.String())
	}

	buf.Reset()
	logger, err = New(&buf, "warn", "text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn level: %s", buf.String())
	}

	if _, err := New(&buf, "loud", "text"); err == nil {
		t.Fatal("expected error for bad level")
	}
	if _, err := New(&buf, "info", "xml"); err == nil {
		t.Fatal("expected error for bad format")
	}
}
