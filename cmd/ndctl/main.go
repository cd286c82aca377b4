//go:build linux

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/notifydone/notifyd/internal/cli"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	prog := filepath.Base(os.Args[0])
	if len(os.Args) < 2 {
		printRootHelp(os.Stderr, prog)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "status":
		args = normalizeSubcommandHelpArgs(args)
		err = cli.StatusCommand(ctx, args)
	case "list":
		args = normalizeSubcommandHelpArgs(args)
		err = cli.ListCommand(ctx, args)
	case "history":
		args = normalizeSubcommandHelpArgs(args)
		err = cli.HistoryCommand(ctx, args)
	case "help", "-h", "--help":
		return runHelp(ctx, prog, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		printRootHelp(os.Stderr, prog)
		return 2
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func normalizeSubcommandHelpArgs(args []string) []string {
	// Support: `ndctl <subcommand> help`
	if len(args) > 0 && args[0] == "help" {
		return []string{"-h"}
	}
	return args
}

func runHelp(ctx context.Context, prog string, args []string) int {
	if len(args) == 0 {
		printRootHelp(os.Stdout, prog)
		return 0
	}

	sub := args[0]
	switch sub {
	case "status":
		_ = cli.StatusCommand(ctx, []string{"-h"})
		return 0
	case "list":
		_ = cli.ListCommand(ctx, []string{"-h"})
		return 0
	case "history":
		_ = cli.HistoryCommand(ctx, []string{"-h"})
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", sub)
		printRootHelp(os.Stderr, prog)
		return 2
	}
}

func printRootHelp(w io.Writer, prog string) {
	fmt.Fprintf(w, "%s: query the notifyd daemon\n\n", prog)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s <command> [flags]\n\n", prog)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  status    daemon health and pipeline counters")
	fmt.Fprintln(w, "  list      tasks currently being tracked")
	fmt.Fprintln(w, "  history   recorded task outcomes, newest first")
	fmt.Fprintln(w, "  help      show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run '%s help <command>' for command details.\n", prog)
}
