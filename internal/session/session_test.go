package session

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/overcast-dev/overnight/internal/agent"
	"github.com/overcast-dev/overnight/internal/project"
	"github.com/overcast-dev/overnight/internal/prompt"
	"github.com/overcast-dev/overnight/internal/supervisor"
)

func newRunner(t *testing.T) *Runner {
	t.Helper()
	runner, err := NewRunner(supervisor.New(supervisor.Config{GracePeriod: 2 * time.Second}))
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return runner
}

func newRequest(t *testing.T, script string) Request {
	t.Helper()
	projectDir := t.TempDir()
	if err := project.EnsureLayout(projectDir); err != nil {
		t.Fatalf("ensure layout: %v", err)
	}
	return Request{
		ProjectDir: projectDir,
		Mode:       prompt.ModeCoding,
		Command:    agent.Command{Name: "sh", Args: []string{"-c", script}, Dir: projectDir},
		LogPath:    project.TranscriptPath(projectDir, 1),
	}
}

func TestRunWritesTranscriptAndOutcome(t *testing.T) {
	t.Parallel()

	req := newRequest(t, `echo "session output"; exit 0`)
	outcome, err := newRunner(t).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run session: %v", err)
	}

	if outcome.Classification != supervisor.ClassificationCompleted {
		t.Fatalf("classification = %q, want completed", outcome.Classification)
	}
	if outcome.ExitCode == nil || *outcome.ExitCode != 0 {
		t.Fatalf("exit code = %v, want 0", outcome.ExitCode)
	}
	if outcome.EndedAt.Before(outcome.StartedAt) {
		t.Fatalf("ended %s before started %s", outcome.EndedAt, outcome.StartedAt)
	}
	if outcome.LogPath != req.LogPath {
		t.Fatalf("log path = %q, want %q", outcome.LogPath, req.LogPath)
	}

	transcript, err := os.ReadFile(req.LogPath)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if !strings.Contains(string(transcript), "session output") {
		t.Fatalf("transcript = %q", string(transcript))
	}
}

func TestRunDeliversPromptOnStdin(t *testing.T) {
	t.Parallel()

	// The agent stand-in echoes its stdin, so the transcript must contain
	// the coding prompt.
	req := newRequest(t, `cat`)
	outcome, err := newRunner(t).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run session: %v", err)
	}
	if outcome.Classification != supervisor.ClassificationCompleted {
		t.Fatalf("classification = %q, want completed", outcome.Classification)
	}

	transcript, err := os.ReadFile(req.LogPath)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if !strings.Contains(string(transcript), "one feature per session") {
		t.Fatalf("coding prompt not delivered, transcript = %q", string(transcript))
	}
}

func TestRunRefusesTranscriptReuse(t *testing.T) {
	t.Parallel()

	req := newRequest(t, `exit 0`)
	if err := os.WriteFile(req.LogPath, []byte("prior session\n"), 0o600); err != nil {
		t.Fatalf("seed transcript: %v", err)
	}

	_, err := newRunner(t).Run(context.Background(), req)
	if err == nil {
		t.Fatal("expected error when transcript path already exists")
	}
	if !strings.Contains(err.Error(), "open transcript") {
		t.Fatalf("error = %v", err)
	}
}

func TestRunRejectsUnknownMode(t *testing.T) {
	t.Parallel()

	req := newRequest(t, `exit 0`)
	req.Mode = prompt.Mode("review")
	if _, err := newRunner(t).Run(context.Background(), req); err == nil {
		t.Fatal("expected error for unsupported mode")
	}
}

func TestRunFailureOutcomeIsValueNotError(t *testing.T) {
	t.Parallel()

	req := newRequest(t, `echo "provider returned error"; sleep 60`)
	outcome, err := newRunner(t).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("session failures must not surface as errors: %v", err)
	}
	if outcome.Classification != supervisor.ClassificationProviderError {
		t.Fatalf("classification = %q, want provider_error", outcome.Classification)
	}
	if !outcome.Failed() {
		t.Fatal("provider error must count as a failure")
	}
}
