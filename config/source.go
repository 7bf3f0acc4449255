package config

import (
	"context"
	"time"

	"github.com/GoCodeAlone/sqlschema/schema"
)

// DeclarationSource provides a schema declaration from an arbitrary backend.
// Implementations must be safe for concurrent use.
type DeclarationSource interface {
	// Load retrieves the current declaration.
	Load(ctx context.Context) (*schema.Declaration, error)

	// Hash returns a content-addressable hash of the current declaration.
	// Used for change detection without full parsing.
	Hash(ctx context.Context) (string, error)

	// Name returns a human-readable identifier for this source.
	Name() string
}

// ChangeEvent is emitted when a watched declaration changes.
type ChangeEvent struct {
	Source      string
	OldHash     string
	NewHash     string
	Declaration *schema.Declaration
	Time        time.Time
}
