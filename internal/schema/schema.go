// Package schema defines the provider-agnostic schema tree callers use to
// describe the JSON document they expect back from a model.
package schema

// Kind is the type tag of a schema node.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	KindUnion   Kind = "union"
)

// Node is a canonical schema node. The set of implementations is closed:
// String, Number, Boolean, Array, Object and Union.
type Node interface {
	Kind() Kind
	node()
}

// String describes a JSON string.
type String struct {
	Description string
	Pattern     string
	Format      string
	MinLength   *int
	MaxLength   *int
	Enum        []string
}

// Number describes a JSON number, or an integer when Integer is set.
type Number struct {
	Integer     bool
	Description string
	Minimum     *float64
	Maximum     *float64
	MultipleOf  *float64
}

// Boolean describes a JSON boolean.
type Boolean struct {
	Description string
}

// Array describes a homogeneous JSON array.
type Array struct {
	Description string
	Items       Node
	MinItems    *int
	MaxItems    *int
}

// Property is a named member of an Object. Declaration order is significant.
type Property struct {
	Name   string
	Schema Node
}

// Object describes a JSON object with an ordered property list.
type Object struct {
	Description          string
	Properties           []Property
	Required             []string
	AdditionalProperties bool
}

// Union matches any one of its alternatives.
type Union struct {
	Description string
	AnyOf       []Node
}

func (*String) Kind() Kind  { return KindString }
func (*Boolean) Kind() Kind { return KindBoolean }
func (*Array) Kind() Kind   { return KindArray }
func (*Object) Kind() Kind  { return KindObject }
func (*Union) Kind() Kind   { return KindUnion }

func (n *Number) Kind() Kind {
	if n.Integer {
		return KindInteger
	}
	return KindNumber
}

func (*String) node()  {}
func (*Number) node()  {}
func (*Boolean) node() {}
func (*Array) node()   {}
func (*Object) node()  {}
func (*Union) node()   {}

// PropertyNames returns the object's property names in declaration order.
func (o *Object) PropertyNames() []string {
	names := make([]string, 0, len(o.Properties))
	for _, p := range o.Properties {
		names = append(names, p.Name)
	}
	return names
}

// Lookup returns the schema of the named property.
func (o *Object) Lookup(name string) (Node, bool) {
	for _, p := range o.Properties {
		if p.Name == name {
			return p.Schema, true
		}
	}
	return nil, false
}

// IsRequired reports whether name is listed in Required.
func (o *Object) IsRequired(name string) bool {
	for _, r := range o.Required {
		if r == name {
			return true
		}
	}
	return false
}
