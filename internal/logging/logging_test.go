package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		if _, err := Setup(level, ""); err != nil {
			t.Errorf("Setup(%q) failed: %v", level, err)
		}
	}
	if _, err := Setup("loud", ""); err == nil {
		t.Errorf("Setup accepted an unknown level")
	}
}

func TestSetupWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "agent.log")
	logger, err := Setup("info", path)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Info("hello", "answer", 42)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "answer=42") {
		t.Errorf("log file missing record, got: %s", data)
	}
}
