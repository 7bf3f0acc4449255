package main

import (
	"flag"
	"fmt"

	"github.com/GoCodeAlone/sqlschema/config"
	"github.com/GoCodeAlone/sqlschema/migration"
)

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), `Usage: schemactl validate <declaration.yaml> [...]

Parse declaration files and report their tables. No database is needed.
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("declaration file required")
	}

	for _, path := range fs.Args() {
		decl, err := config.LoadDeclaration(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(stdout, "%s: version %s, %d table(s)\n", path, migration.FormatVersion(decl.Version), len(decl.Tables))
		for _, t := range decl.Tables {
			fmt.Fprintf(stdout, "  %-24s %d column(s), %d index(es)\n", t.Name, len(t.Columns), len(t.Indexes))
		}
	}
	return nil
}
