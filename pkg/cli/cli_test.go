package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestConfigError(t *testing.T) {
	err := NewConfigError("/etc/outpost/config.yaml", "clinic_id is required")
	if !strings.Contains(err.Error(), "/etc/outpost/config.yaml") {
		t.Errorf("Error() = %q, want path included", err.Error())
	}

	err = NewConfigError("", "clinic_id is required")
	if strings.Contains(err.Error(), " in ") {
		t.Errorf("Error() = %q, want no path segment", err.Error())
	}
}

func TestCommandError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewCommandError("status", cause)
	if !errors.Is(err, cause) {
		t.Error("CommandError does not unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "status") {
		t.Errorf("Error() = %q, want command name included", err.Error())
	}
}

func TestFormatters(t *testing.T) {
	data := struct {
		Version string `json:"version"`
	}{Version: "v3"}

	var buf bytes.Buffer
	if err := NewFormatter(FormatJSON).FormatTo(&buf, data); err != nil {
		t.Fatalf("json FormatTo() failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"version": "v3"`) {
		t.Errorf("json output = %q", buf.String())
	}

	buf.Reset()
	if err := NewFormatter(FormatText).FormatTo(&buf, "rules current"); err != nil {
		t.Fatalf("text FormatTo() failed: %v", err)
	}
	if buf.String() != "rules current\n" {
		t.Errorf("text output = %q", buf.String())
	}

	// Unknown formats fall back to text.
	if _, ok := NewFormatter("yaml").(*TextFormatter); !ok {
		t.Error("unknown format did not fall back to text")
	}
}
