package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesUnderHomeLogDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	logger, err := New(context.Background(), WithProject("/work/demo"))
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := logger.Close(); closeErr != nil {
			t.Fatalf("close logger: %v", closeErr)
		}
	})

	wantDir := filepath.Join(home, ".overnight", "logs")
	if !strings.HasPrefix(logger.Path(), wantDir) {
		t.Fatalf("log path = %q, want under %q", logger.Path(), wantDir)
	}

	logger.Logger.Info("session completed", "ordinal", 1)

	content, err := os.ReadFile(logger.Path())
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), `"project":"/work/demo"`) {
		t.Fatalf("log file missing project field: %s", string(content))
	}
	if !strings.Contains(string(content), "session completed") {
		t.Fatalf("log file missing record: %s", string(content))
	}
}

func TestNilRuntimeLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var logger *RuntimeLogger
	if logger.WithProject("x") != nil {
		t.Fatal("nil logger WithProject should return nil")
	}
	if logger.Close() != nil {
		t.Fatal("nil logger Close should be a no-op")
	}
	if logger.Path() != "" {
		t.Fatal("nil logger Path should be empty")
	}
}
