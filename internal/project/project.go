// Package project manages overnight-owned state under a target project's
// .overnight directory: the installed specification, the agent-maintained
// feature list, and the numbered session transcripts.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// MetadataDirName is the overnight state directory inside a project.
	MetadataDirName = ".overnight"
	// SpecFileName is the installed specification marker file.
	SpecFileName = "spec.txt"
	// FeatureListFileName is the agent-maintained feature list marker file.
	FeatureListFileName = "feature_list.json"

	sessionsDirName     = "sessions"
	transcriptExtension = ".log"
)

// Probe captures which marker files exist under the project metadata directory.
//
// Both markers must be present before the controller selects coding mode; the
// probe is taken fresh before every session, never cached.
type Probe struct {
	SpecPresent        bool
	FeatureListPresent bool
}

// Ready reports whether the project is initialized enough for coding sessions.
func (p Probe) Ready() bool {
	return p.SpecPresent && p.FeatureListPresent
}

// MetadataDir returns the overnight state directory for a project.
func MetadataDir(projectDir string) string {
	return filepath.Join(projectDir, MetadataDirName)
}

// SpecPath returns the installed specification path for a project.
func SpecPath(projectDir string) string {
	return filepath.Join(MetadataDir(projectDir), SpecFileName)
}

// FeatureListPath returns the feature list path for a project.
func FeatureListPath(projectDir string) string {
	return filepath.Join(MetadataDir(projectDir), FeatureListFileName)
}

// SessionsDir returns the transcript directory for a project.
func SessionsDir(projectDir string) string {
	return filepath.Join(MetadataDir(projectDir), sessionsDirName)
}

// TranscriptPath returns the transcript path for one session index.
func TranscriptPath(projectDir string, index int) string {
	return filepath.Join(SessionsDir(projectDir), fmt.Sprintf("%03d%s", index, transcriptExtension))
}

// EnsureLayout creates the metadata and sessions directories if missing.
func EnsureLayout(projectDir string) error {
	if strings.TrimSpace(projectDir) == "" {
		return errors.New("project directory is required")
	}
	if err := os.MkdirAll(SessionsDir(projectDir), 0o750); err != nil {
		return fmt.Errorf("create project metadata layout: %w", err)
	}
	return nil
}

// ProbeState checks both marker files. The result is never cached by callers.
func ProbeState(projectDir string) (Probe, error) {
	specPresent, err := fileExists(SpecPath(projectDir))
	if err != nil {
		return Probe{}, err
	}
	featureListPresent, err := fileExists(FeatureListPath(projectDir))
	if err != nil {
		return Probe{}, err
	}
	return Probe{SpecPresent: specPresent, FeatureListPresent: featureListPresent}, nil
}

// InstallSpec copies the supplied specification into the project metadata
// directory. The copy is idempotent: re-installing overwrites any previous
// copy with identical results.
func InstallSpec(projectDir string, specSource string) error {
	content, err := os.ReadFile(specSource) // #nosec G304 -- operator-supplied path.
	if err != nil {
		return fmt.Errorf("read specification %q: %w", specSource, err)
	}
	if err := EnsureLayout(projectDir); err != nil {
		return err
	}
	if err := os.WriteFile(SpecPath(projectDir), content, 0o600); err != nil {
		return fmt.Errorf("install specification: %w", err)
	}
	return nil
}

// NextTranscriptIndex derives the next session log index by scanning existing
// transcript filenames and taking max(existing numeric names) + 1.
//
// The scan makes numbering durable across controller restarts without a
// persisted counter: no two sessions ever share a transcript path as long as
// only one controller runs against the project at a time.
func NextTranscriptIndex(projectDir string) (int, error) {
	entries, err := os.ReadDir(SessionsDir(projectDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 1, nil
		}
		return 0, fmt.Errorf("scan session transcripts: %w", err)
	}

	highest := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, transcriptExtension) {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSuffix(name, transcriptExtension))
		if err != nil || index < 0 {
			continue
		}
		if index > highest {
			highest = index
		}
	}
	return highest + 1, nil
}

func fileExists(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %q: %w", path, err)
	}
	return true, nil
}
