package schema

import (
	"fmt"
	"strings"
)

// RootPath is the path of the top-level node in error messages.
const RootPath = "$"

// PropertyPath returns the path of a named property under an object path.
func PropertyPath(parent, name string) string {
	return parent + ".properties." + name
}

// ItemsPath returns the path of an array's element schema.
func ItemsPath(parent string) string {
	return parent + ".items"
}

// AlternativePath returns the path of the i-th union alternative.
func AlternativePath(parent string, i int) string {
	return fmt.Sprintf("%s.anyOf[%d]", parent, i)
}

// Validate checks the structural invariants of a schema tree.
func Validate(n Node) error {
	return validate(n, RootPath)
}

func validate(n Node, path string) error {
	switch t := n.(type) {
	case *String:
		if t == nil {
			return &ValidationError{Path: path, Reason: "nil string node"}
		}
		if err := checkBounds(path, "length", t.MinLength, t.MaxLength); err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(t.Enum))
		for _, v := range t.Enum {
			if _, dup := seen[v]; dup {
				return &ValidationError{Path: path, Reason: fmt.Sprintf("duplicate enum value %q", v)}
			}
			seen[v] = struct{}{}
		}
		return nil
	case *Number:
		if t == nil {
			return &ValidationError{Path: path, Reason: "nil number node"}
		}
		if t.Minimum != nil && t.Maximum != nil && *t.Minimum > *t.Maximum {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("minimum %v exceeds maximum %v", *t.Minimum, *t.Maximum)}
		}
		if t.MultipleOf != nil && *t.MultipleOf <= 0 {
			return &ValidationError{Path: path, Reason: "multipleOf must be positive"}
		}
		return nil
	case *Boolean:
		if t == nil {
			return &ValidationError{Path: path, Reason: "nil boolean node"}
		}
		return nil
	case *Array:
		if t == nil {
			return &ValidationError{Path: path, Reason: "nil array node"}
		}
		if t.Items == nil {
			return &ValidationError{Path: path, Reason: "array items must be set"}
		}
		if err := checkBounds(path, "items", t.MinItems, t.MaxItems); err != nil {
			return err
		}
		return validate(t.Items, ItemsPath(path))
	case *Object:
		if t == nil {
			return &ValidationError{Path: path, Reason: "nil object node"}
		}
		return validateObject(t, path)
	case *Union:
		if t == nil {
			return &ValidationError{Path: path, Reason: "nil union node"}
		}
		if len(t.AnyOf) == 0 {
			return &ValidationError{Path: path, Reason: "union requires at least one alternative"}
		}
		for i, alt := range t.AnyOf {
			if err := validate(alt, AlternativePath(path, i)); err != nil {
				return err
			}
		}
		return nil
	default:
		return &UnsupportedTypeError{Type: TypeTag(n), Path: path}
	}
}

func validateObject(o *Object, path string) error {
	declared := make(map[string]struct{}, len(o.Properties))
	for _, p := range o.Properties {
		if strings.TrimSpace(p.Name) == "" {
			return &ValidationError{Path: path, Reason: "property name must not be empty"}
		}
		if _, dup := declared[p.Name]; dup {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("duplicate property %q", p.Name)}
		}
		declared[p.Name] = struct{}{}
		if err := validate(p.Schema, PropertyPath(path, p.Name)); err != nil {
			return err
		}
	}

	required := make(map[string]struct{}, len(o.Required))
	for _, name := range o.Required {
		if _, ok := declared[name]; !ok {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("required property %q is not declared", name)}
		}
		if _, dup := required[name]; dup {
			return &ValidationError{Path: path, Reason: fmt.Sprintf("property %q listed as required twice", name)}
		}
		required[name] = struct{}{}
	}
	return nil
}

func checkBounds(path, what string, lo, hi *int) error {
	if lo != nil && *lo < 0 {
		return &ValidationError{Path: path, Reason: fmt.Sprintf("minimum %s must not be negative", what)}
	}
	if hi != nil && *hi < 0 {
		return &ValidationError{Path: path, Reason: fmt.Sprintf("maximum %s must not be negative", what)}
	}
	if lo != nil && hi != nil && *lo > *hi {
		return &ValidationError{Path: path, Reason: fmt.Sprintf("minimum %s %d exceeds maximum %d", what, *lo, *hi)}
	}
	return nil
}
