// Package validator exposes validate(value, schemaName) over a process-wide
// schema snapshot. Refresh fetches the schema set through a SchemaSource and
// swaps in a new snapshot, on a cron schedule; Validate only ever reads the
// latest snapshot and never fetches schemas itself.
package validator

import (
	"context"
	"fmt"
	"strings"
)

// ValidationError lists the JSON paths that failed schema validation.
type ValidationError struct {
	SchemaName string
	Paths      []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema %q rejected value at: %s", e.SchemaName, strings.Join(e.Paths, ", "))
}

// Validator validates a decoded JSON value against the schema registered
// under schemaName (by convention, the broker topic).
type Validator interface {
	Validate(ctx context.Context, value interface{}, schemaName string) error
}

// SchemaSource fetches the current set of schemas keyed by name. The
// transport (HTTP, git checkout, ...) is a collaborator's concern; this
// package only consumes the result.
type SchemaSource interface {
	Fetch(ctx context.Context) (map[string][]byte, error)
}
