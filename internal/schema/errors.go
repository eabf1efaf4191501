package schema

import (
	"errors"
	"fmt"
)

// ErrInvalidSchema is wrapped by every ValidationError.
var ErrInvalidSchema = errors.New("invalid schema")

// UnsupportedTypeError reports a node kind that cannot be represented.
type UnsupportedTypeError struct {
	Type string
	Path string
}

func (e *UnsupportedTypeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("unsupported schema type %q", e.Type)
	}
	return fmt.Sprintf("unsupported schema type %q at %s", e.Type, e.Path)
}

// ValidationError reports a broken invariant in a schema tree.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s at %s: %s", ErrInvalidSchema, e.Path, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidSchema
}

// TypeTag names a node for error reporting. Nodes outside the closed set
// report their Kind, nil reports "<nil>".
func TypeTag(n Node) string {
	if n == nil {
		return "<nil>"
	}
	if num, ok := n.(*Number); ok && num == nil {
		return string(KindNumber)
	}
	return string(n.Kind())
}
