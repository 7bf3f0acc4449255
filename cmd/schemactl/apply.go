package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/GoCodeAlone/sqlschema/migration"
)

func runApply(args []string) error {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	conn := addConnFlags(fs)
	timeout := fs.Duration("timeout", 10*time.Minute, "Maximum duration of the update")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), `Usage: schemactl apply [options]

Converge the database to the declaration when the declared version is newer
than the stored one. Does nothing when the database is already current.

Examples:
  schemactl apply --config schemactl.yaml
  schemactl apply --dialect mysql --dsn 'app:pw@tcp(db:3306)/app' --schema schema.yaml

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

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	stopTracing, err := startTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopTracing()

	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	decl, err := s.declaration()
	if err != nil {
		return err
	}
	ok, err := s.runner.UpdateSchema(ctx, decl)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("schema update to version %s did not complete", migration.FormatVersion(decl.Version))
	}
	fmt.Fprintf(stdout, "Schema is at version %s.\n", migration.FormatVersion(decl.Version))
	return nil
}
