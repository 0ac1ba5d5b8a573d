package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/overcast-dev/overnight/internal/config"
	"github.com/overcast-dev/overnight/internal/loop"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// Controller exit contract: session failures never become the controller's
// own exit code; only the run-level disposition does.
const (
	exitOK            = 0
	exitGeneralError  = 1
	exitInvalidConfig = 2
	exitQuitThreshold = 3
)

// errInvalidConfig marks configuration problems so main can exit 2.
var errInvalidConfig = errors.New("invalid configuration")

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitInvalidConfig
	}

	console := log.NewWithOptions(stderr, log.Options{ReportTimestamp: true})

	cmd := newRootCommand(cfg, console)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		var quitErr *loop.QuitThresholdError
		switch {
		case errors.As(err, &quitErr):
			return exitQuitThreshold
		case errors.Is(err, errInvalidConfig):
			return exitInvalidConfig
		default:
			return exitGeneralError
		}
	}
	return exitOK
}

func newRootCommand(cfg *config.Config, console *log.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "overnight",
		Short:         "Iterate an AI coding agent against a project until the work is done",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	root.AddCommand(
		newRunCommand(cfg, console),
		newDoctorCommand(cfg),
		newInitCommand(console),
	)

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if cfg == nil {
			return errors.New("config is required")
		}
		if console == nil {
			return errors.New("logger is required")
		}
		console.With("command", cmd.Name()).Debug("command invocation")
		return nil
	}

	return root
}
