package event

import "fmt"

// ValidationError reports a single malformed constructor or transition
// input. Field names the offending input so a form layer can point the
// user at the right control instead of showing a generic failure.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("event: invalid %s: %s", e.Field, e.Reason)
}
