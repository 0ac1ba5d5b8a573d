package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/*.tmpl
var promptTemplatesFS embed.FS

var promptTemplates = template.Must(template.ParseFS(promptTemplatesFS, "prompts/*.tmpl"))

// Mode selects which prompt artifact a session receives.
type Mode string

const (
	// ModeInitializer bootstraps a project: the agent reads the installed
	// specification and produces the feature list before any coding happens.
	ModeInitializer Mode = "initializer"
	// ModeCoding advances an initialized project one increment.
	ModeCoding Mode = "coding"
)

// Context contains the project facts interpolated into both prompt artifacts.
type Context struct {
	MetadataDir     string
	SpecFileName    string
	FeatureListName string
}

// Build renders the prompt artifact for the given mode.
func Build(mode Mode, input Context) (string, error) {
	input.MetadataDir = strings.TrimSpace(input.MetadataDir)
	input.SpecFileName = strings.TrimSpace(input.SpecFileName)
	input.FeatureListName = strings.TrimSpace(input.FeatureListName)
	if input.MetadataDir == "" {
		return "", fmt.Errorf("metadata directory is required for %s prompt", mode)
	}
	if input.SpecFileName == "" {
		return "", fmt.Errorf("spec file name is required for %s prompt", mode)
	}
	if input.FeatureListName == "" {
		return "", fmt.Errorf("feature list name is required for %s prompt", mode)
	}

	switch mode {
	case ModeInitializer:
		return renderTemplate("initializer.tmpl", input)
	case ModeCoding:
		return renderTemplate("coding.tmpl", input)
	default:
		return "", fmt.Errorf("unsupported prompt mode %q", mode)
	}
}

func renderTemplate(templateName string, data any) (string, error) {
	var rendered bytes.Buffer
	if err := promptTemplates.ExecuteTemplate(&rendered, templateName, data); err != nil {
		return "", fmt.Errorf("render prompt template %s: %w", templateName, err)
	}
	return rendered.String(), nil
}
