package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()
	reconfigure()

	return buf, func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		reconfigure()
	}
}

func TestLevelFiltering_InfoFiltersDebug(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	Get().Debug("debug message")
	Get().Info("info message")

	out := buf.String()
	if strings.Contains(out, "debug message") {
		t.Fatal("debug message should have been filtered at INFO level")
	}
	if !strings.Contains(out, "info message") {
		t.Fatal("info message should have been logged")
	}
}

func TestSetLevel_IgnoresInvalidValue(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetLevel("NONSENSE")
	Get().Debug("should stay filtered")
	Get().Info("should still appear")

	out := buf.String()
	if strings.Contains(out, "should stay filtered") {
		t.Fatal("invalid SetLevel value should not have changed the level")
	}
	if !strings.Contains(out, "should still appear") {
		t.Fatal("INFO level logging should still work")
	}
}

func TestMessageFormatting_IncludesTimestampAndLevel(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	Get().Info("hello")

	out := buf.String()
	if !strings.Contains(out, "[INFO]") {
		t.Fatalf("expected level bracket in output, got %q", out)
	}
	if len(out) < 21 || out[0] != '[' || out[20] != ']' {
		t.Fatalf("expected bracketed timestamp prefix in output, got %q", out)
	}
	if _, err := time.Parse("2006-01-02 15:04:05", out[1:20]); err != nil {
		t.Fatalf("timestamp prefix does not parse: %v (%q)", err, out)
	}
}

func TestJSONFormat_ProducesValidJSON(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetFormat("json")
	defer SetFormat("text")

	Get().Info("test message", "peer_ip", "10.0.0.5")

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v (%q)", err, line)
	}
	if entry["msg"] != "test message" {
		t.Fatalf("msg = %v, want %q", entry["msg"], "test message")
	}
	if entry[KeyPeerIP] != "10.0.0.5" {
		t.Fatalf("peer_ip = %v, want %q", entry[KeyPeerIP], "10.0.0.5")
	}
}

func TestWithConn_BindsPeerIP(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetFormat("text")

	log := WithConn(Get(), "192.168.1.10", "conn-abc123")
	log.Info("connection accepted")

	out := buf.String()
	if !strings.Contains(out, "peer_ip=192.168.1.10") {
		t.Fatalf("expected peer_ip attribute in output, got %q", out)
	}
	if !strings.Contains(out, "conn_id=conn-abc123") {
		t.Fatalf("expected conn_id attribute in output, got %q", out)
	}
}

func TestWithSchedule_BindsServiceAndCadence(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetFormat("text")

	log := WithSchedule(Get(), "orders", "Daily")
	log.Info("backup due")

	out := buf.String()
	if !strings.Contains(out, "service=orders") || !strings.Contains(out, "cadence=Daily") {
		t.Fatalf("expected service/cadence attributes in output, got %q", out)
	}
}

func TestErr_NilProducesEmptyAttr(t *testing.T) {
	attr := Err(nil)
	if attr.Key != "" {
		t.Fatalf("Err(nil) should produce an empty attr, got key %q", attr.Key)
	}
}

func TestColorTextHandler_WithGroupQualifiesKeys(t *testing.T) {
	buf := new(bytes.Buffer)
	h := NewColorTextHandler(buf, nil, false)

	grouped := slog.New(h.WithGroup("retention")).With("files_deleted", 3)
	grouped.Info("cleanup")

	out := buf.String()
	if !strings.Contains(out, "retention.files_deleted=3") {
		t.Fatalf("expected group-qualified attribute key in output, got %q", out)
	}

	nested := slog.New(h.WithGroup("retention").(*ColorTextHandler).WithGroup("cadence"))
	nested.Info("nested", "name", "daily")
	if !strings.Contains(buf.String(), "retention.cadence.name=daily") {
		t.Fatalf("expected nested group-qualified attribute key in output, got %q", buf.String())
	}
}
