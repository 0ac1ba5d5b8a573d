package project

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spec.md")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write spec source: %v", err)
	}
	return path
}

func TestProbeStateFreshProject(t *testing.T) {
	t.Parallel()

	probe, err := ProbeState(t.TempDir())
	if err != nil {
		t.Fatalf("probe state: %v", err)
	}
	if probe.SpecPresent || probe.FeatureListPresent {
		t.Fatalf("probe = %#v, want both markers absent", probe)
	}
	if probe.Ready() {
		t.Fatal("fresh project must not be ready")
	}
}

func TestProbeStateReadyWhenBothMarkersExist(t *testing.T) {
	t.Parallel()
	projectDir := t.TempDir()

	if err := InstallSpec(projectDir, writeSpec(t, "build the thing")); err != nil {
		t.Fatalf("install spec: %v", err)
	}
	if err := os.WriteFile(FeatureListPath(projectDir), []byte("[]"), 0o600); err != nil {
		t.Fatalf("write feature list: %v", err)
	}

	probe, err := ProbeState(projectDir)
	if err != nil {
		t.Fatalf("probe state: %v", err)
	}
	if !probe.Ready() {
		t.Fatalf("probe = %#v, want ready", probe)
	}
}

func TestInstallSpecIsIdempotent(t *testing.T) {
	t.Parallel()
	projectDir := t.TempDir()
	source := writeSpec(t, "the specification body")

	if err := InstallSpec(projectDir, source); err != nil {
		t.Fatalf("first install: %v", err)
	}
	if err := InstallSpec(projectDir, source); err != nil {
		t.Fatalf("second install: %v", err)
	}

	installed, err := os.ReadFile(SpecPath(projectDir))
	if err != nil {
		t.Fatalf("read installed spec: %v", err)
	}
	if string(installed) != "the specification body" {
		t.Fatalf("installed spec = %q", string(installed))
	}
}

func TestInstallSpecMissingSource(t *testing.T) {
	t.Parallel()

	err := InstallSpec(t.TempDir(), filepath.Join(t.TempDir(), "absent.md"))
	if err == nil {
		t.Fatal("expected error for missing spec source")
	}
}

func TestNextTranscriptIndexFreshProject(t *testing.T) {
	t.Parallel()

	index, err := NextTranscriptIndex(t.TempDir())
	if err != nil {
		t.Fatalf("next index: %v", err)
	}
	if index != 1 {
		t.Fatalf("index = %d, want 1", index)
	}
}

func TestNextTranscriptIndexContinuesAfterRestart(t *testing.T) {
	t.Parallel()
	projectDir := t.TempDir()
	if err := EnsureLayout(projectDir); err != nil {
		t.Fatalf("ensure layout: %v", err)
	}

	for _, name := range []string{"001.log", "002.log", "007.log", "notes.txt", "abc.log"} {
		if err := os.WriteFile(filepath.Join(SessionsDir(projectDir), name), nil, 0o600); err != nil {
			t.Fatalf("seed transcript %s: %v", name, err)
		}
	}

	index, err := NextTranscriptIndex(projectDir)
	if err != nil {
		t.Fatalf("next index: %v", err)
	}
	if index != 8 {
		t.Fatalf("index = %d, want 8 (max existing + 1)", index)
	}
}

func TestNextTranscriptIndexIsStrictlyIncreasing(t *testing.T) {
	t.Parallel()
	projectDir := t.TempDir()
	if err := EnsureLayout(projectDir); err != nil {
		t.Fatalf("ensure layout: %v", err)
	}

	previous := 0
	for i := 0; i < 4; i++ {
		index, err := NextTranscriptIndex(projectDir)
		if err != nil {
			t.Fatalf("next index: %v", err)
		}
		if index <= previous {
			t.Fatalf("index %d not strictly increasing after %d", index, previous)
		}
		if err := os.WriteFile(TranscriptPath(projectDir, index), nil, 0o600); err != nil {
			t.Fatalf("write transcript: %v", err)
		}
		previous = index
	}
}
