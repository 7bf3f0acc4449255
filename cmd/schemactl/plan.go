package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"
)

func runPlan(args []string) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	conn := addConnFlags(fs)
	format := fs.String("format", "text", "Output format: text or json")
	timeout := fs.Duration("timeout", time.Minute, "Maximum duration of introspection")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), `Usage: schemactl plan [options]

Print the DDL that would bring the live schema in line with the declaration.
The stored version is not consulted and nothing is executed.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *format != "text" && *format != "json" {
		return fmt.Errorf("unknown format %q: want text or json", *format)
	}

	cfg, err := conn.load()
	if err != nil {
		return err
	}
	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	decl, err := s.declaration()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	stmts, err := s.runner.Plan(ctx, decl)
	if err != nil {
		return err
	}

	if *format == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stmts)
	}
	if len(stmts) == 0 {
		fmt.Fprintln(stdout, "-- schema matches declaration")
		return nil
	}
	table := ""
	for _, st := range stmts {
		if st.Table != table {
			table = st.Table
			fmt.Fprintf(stdout, "-- %s\n", table)
		}
		fmt.Fprintf(stdout, "%s;\n", st.SQL)
	}
	return nil
}
