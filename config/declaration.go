package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/sqlschema/schema"
)

// ErrInvalidVersion is wrapped when a declaration file has no positive version.
var ErrInvalidVersion = errors.New("declaration version must be positive")

// declarationFile is the on-disk layout:
//
//	version: 1.2
//	tables:
//	  teams: |
//	    id_team I NOTNULL DEFAULT 0,
//	    name C(32),
//	    INDEX PRIMARY (id_team)
//
// tables is decoded as a node so mapping order becomes declaration order.
type declarationFile struct {
	Version float64   `yaml:"version"`
	Tables  yaml.Node `yaml:"tables"`
}

// ParseDeclaration decodes a YAML declaration file.
func ParseDeclaration(data []byte) (*schema.Declaration, error) {
	var f declarationFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse declaration: %w", err)
	}
	if f.Version <= 0 {
		return nil, &schema.ConfigError{Field: "version", Value: fmt.Sprint(f.Version), Err: ErrInvalidVersion}
	}

	decl := schema.NewDeclaration(f.Version)
	if f.Tables.Kind == 0 {
		return decl, nil
	}
	if f.Tables.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("declaration line %d: tables must be a mapping", f.Tables.Line)
	}
	for i := 0; i+1 < len(f.Tables.Content); i += 2 {
		key, val := f.Tables.Content[i], f.Tables.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("declaration line %d: table %s must be schema text", val.Line, key.Value)
		}
		if err := decl.AddTable(key.Value, val.Value); err != nil {
			return nil, err
		}
	}
	return decl, nil
}

// LoadDeclaration reads and decodes a declaration file.
func LoadDeclaration(path string) (*schema.Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read declaration: %w", err)
	}
	return ParseDeclaration(data)
}
