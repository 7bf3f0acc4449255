package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/GoCodeAlone/sqlschema/migration"
)

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	conn := addConnFlags(fs)
	exitCode := fs.Bool("exit-code", false, "Fail unless the database is current")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), `Usage: schemactl status [options]

Compare the stored schema version with the declared one.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := s.runner.Status(ctx, decl)
	if err != nil {
		return err
	}

	stored := "none"
	if st.State != migration.StateUninitialized {
		stored = migration.FormatVersion(st.Stored)
	}
	fmt.Fprintf(stdout, "State:    %s\nStored:   %s\nDeclared: %s\n",
		st.State, stored, migration.FormatVersion(st.Declared))

	if *exitCode && st.State != migration.StateCurrent {
		return fmt.Errorf("schema is %s", st.State)
	}
	return nil
}
