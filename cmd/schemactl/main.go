package main

import (
	"fmt"
	"os"
)

var version = "dev"

var commands = map[string]func([]string) error{
	"apply":    runApply,
	"plan":     runPlan,
	"status":   runStatus,
	"validate": runValidate,
	"watch":    runWatch,
}

func usage() {
	fmt.Fprintf(os.Stderr, `schemactl - declarative SQL schema convergence (version %s)

Usage:
  schemactl <command> [options]

Commands:
  apply      Converge the database to the declaration if its version is newer
  plan       Print the DDL that would converge the database, without executing it
  status     Compare the stored schema version with the declaration
  validate   Parse a declaration file without connecting to a database
  watch      Apply, then re-apply whenever the declaration file changes

Run 'schemactl <command> -h' for command-specific help.
`, version)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		usage()
		os.Exit(0)
	}
	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		fmt.Println(version)
		os.Exit(0)
	}

	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd) //nolint:gosec // G705: CLI error output
		usage()
		os.Exit(1)
	}

	if err := fn(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err) //nolint:gosec // G705: CLI error output
		os.Exit(1)
	}
}
