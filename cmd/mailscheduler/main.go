package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nhle/mail-scheduler/internal/apperr"
)

// command runs one subcommand with its own arguments.
type command struct {
	summary string
	run     func(ctx context.Context, args []string, out io.Writer) error
}

var commands = map[string]command{
	"run":    {"run the scheduler in the foreground", cmdRun},
	"tui":    {"open the interactive item manager", cmdTUI},
	"fixed":  {"run a single item defined in a YAML file (--config FILE)", cmdFixed},
	"list":   {"list items with their next send", cmdList},
	"add":    {"add an item from flags", cmdAdd},
	"remove": {"remove an item: remove ID", cmdRemove},
	"send":   {"send an item now: send ID", cmdSend},
	"smtp":   {"save the SMTP profile from flags", cmdSMTP},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stderr)
		if len(args) == 0 {
			return 2
		}
		return 0
	}

	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "mailscheduler: unknown command %q\n\n", name)
		printUsage(stderr)
		return 2
	}

	if err := cmd.run(ctx, args[1:], stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		_, _ = fmt.Fprintf(stderr, "mailscheduler %s: %v\n", name, err)
		return exitCode(err)
	}
	return 0
}

// exitCode maps configuration problems to 2 and everything else to 1.
func exitCode(err error) int {
	if apperr.Is(err, apperr.KindConfiguration) || apperr.Is(err, apperr.KindValidation) {
		return 2
	}
	return 1
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	_, _ = fmt.Fprintln(w, "Usage: mailscheduler <command> [flags]")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Commands:")
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].summary)
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Run 'mailscheduler <command> --help' for command flags.")
}
