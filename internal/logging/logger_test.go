package logging_test

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"marquee/internal/logging"
)

func TestConsoleHandlerPrefixesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", Writers: []io.Writer{&buf}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	component := logging.NewComponentLogger(logger, "syncqueue")
	component.Info("task enqueued", logging.String(logging.FieldContentID, "banner-1"))

	line := buf.String()
	if !strings.Contains(line, "syncqueue: task enqueued") {
		t.Fatalf("expected component prefix, got %q", line)
	}
	if !strings.Contains(line, "content_id=banner-1") {
		t.Fatalf("expected content_id attribute, got %q", line)
	}
}

func TestJSONHandlerFieldNames(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "json", Writers: []io.Writer{&buf}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Debug("probe ok", logging.String(logging.FieldConnState, "connected"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if record["msg"] != "probe ok" {
		t.Fatalf("unexpected msg field: %v", record["msg"])
	}
	if record["level"] != "debug" {
		t.Fatalf("unexpected level field: %v", record["level"])
	}
	if record["conn_state"] != "connected" {
		t.Fatalf("unexpected conn_state field: %v", record["conn_state"])
	}
}

func TestUnsupportedFormatRejected(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewRotatingFileCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "marqueed.log")
	w, err := logging.NewRotatingFile(logging.FileOptions{Path: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("NewRotatingFile failed: %v", err)
	}
	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}
