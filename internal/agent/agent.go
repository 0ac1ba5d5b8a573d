package agent

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const defaultBinary = "claude"

// Command is one fully resolved agent invocation: binary, argument vector,
// and working directory. The supervisor treats it as opaque.
type Command struct {
	Name string
	Args []string
	Dir  string
}

// String renders the invocation for logs and diagnostics.
func (c Command) String() string {
	parts := append([]string{c.Name}, c.Args...)
	return strings.Join(parts, " ")
}

// BuildCommand assembles the fixed argument shape for one agent session:
// non-interactive print mode, auto-confirmed permissions, the model, and the
// hard wall-clock budget.
//
// The hard budget is enforced by the agent itself, never by the supervisor: an
// agent that streams output for hours must not be killed from outside, while a
// silent one is the supervisor's problem.
func BuildCommand(binary string, model string, hardBudget time.Duration, workdir string) (Command, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = defaultBinary
	}
	workdir = strings.TrimSpace(workdir)
	if workdir == "" {
		return Command{}, errors.New("workdir is required")
	}
	if hardBudget <= 0 {
		return Command{}, errors.New("hard budget must be positive")
	}

	args := []string{"-p", "--verbose", "--dangerously-skip-permissions"}
	if model = strings.TrimSpace(model); model != "" {
		args = append(args, "--model", model)
	}
	args = append(args, "--max-seconds", strconv.Itoa(int(hardBudget/time.Second)))

	return Command{Name: binary, Args: args, Dir: workdir}, nil
}

// ResolveBinary validates that the configured agent binary exists on PATH and
// returns its resolved name.
//
// A missing agent is a fatal precondition: it is reported before any session
// starts rather than surfacing as a per-session failure.
func ResolveBinary(configured string) (string, error) {
	return resolveBinary(configured, exec.LookPath)
}

func resolveBinary(configured string, lookPath func(file string) (string, error)) (string, error) {
	if lookPath == nil {
		return "", errors.New("lookPath function is required")
	}
	binary := strings.TrimSpace(configured)
	if binary == "" {
		binary = defaultBinary
	}
	if _, err := lookPath(binary); err != nil {
		return "", fmt.Errorf("agent binary %q not found on PATH: %w", binary, err)
	}
	return binary, nil
}
