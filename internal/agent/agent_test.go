package agent

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func fakeLookPath(available map[string]bool) func(string) (string, error) {
	return func(file string) (string, error) {
		if available[file] {
			return "/usr/local/bin/" + file, nil
		}
		return "", errors.New("executable file not found in $PATH")
	}
}

func TestBuildCommandDefaultBinary(t *testing.T) {
	t.Parallel()

	cmd, err := BuildCommand("", "sonnet", 30*time.Minute, "/work/project")
	if err != nil {
		t.Fatalf("build command: %v", err)
	}
	if cmd.Name != "claude" {
		t.Fatalf("binary = %q, want claude", cmd.Name)
	}
	if cmd.Dir != "/work/project" {
		t.Fatalf("dir = %q", cmd.Dir)
	}

	rendered := cmd.String()
	for _, want := range []string{"-p", "--dangerously-skip-permissions", "--model sonnet", "--max-seconds 1800"} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("command %q missing %q", rendered, want)
		}
	}
}

func TestBuildCommandOmitsModelWhenUnset(t *testing.T) {
	t.Parallel()

	cmd, err := BuildCommand("claude", "  ", time.Hour, "/work/project")
	if err != nil {
		t.Fatalf("build command: %v", err)
	}
	if strings.Contains(cmd.String(), "--model") {
		t.Fatalf("command %q should not carry a model flag", cmd.String())
	}
}

func TestBuildCommandRequiresWorkdirAndBudget(t *testing.T) {
	t.Parallel()

	if _, err := BuildCommand("claude", "sonnet", time.Hour, ""); err == nil {
		t.Fatal("expected error for missing workdir")
	}
	if _, err := BuildCommand("claude", "sonnet", 0, "/work"); err == nil {
		t.Fatal("expected error for zero hard budget")
	}
}

func TestResolveBinaryFound(t *testing.T) {
	t.Parallel()

	resolved, err := resolveBinary("claude", fakeLookPath(map[string]bool{"claude": true}))
	if err != nil {
		t.Fatalf("resolve binary: %v", err)
	}
	if resolved != "claude" {
		t.Fatalf("resolved = %q", resolved)
	}
}

func TestResolveBinaryMissing(t *testing.T) {
	t.Parallel()

	_, err := resolveBinary("claude", fakeLookPath(nil))
	if err == nil {
		t.Fatal("expected missing binary error")
	}
	if !strings.Contains(err.Error(), `"claude" not found on PATH`) {
		t.Fatalf("error = %v", err)
	}
}

func TestResolveBinaryDefaultsWhenUnconfigured(t *testing.T) {
	t.Parallel()

	resolved, err := resolveBinary("  ", fakeLookPath(map[string]bool{"claude": true}))
	if err != nil {
		t.Fatalf("resolve binary: %v", err)
	}
	if resolved != "claude" {
		t.Fatalf("resolved = %q, want default claude", resolved)
	}
}
