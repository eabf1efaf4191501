package schema

// Str returns a plain string node.
func Str() *String { return &String{} }

// Enum returns a string node restricted to values.
func Enum(values ...string) *String { return &String{Enum: values} }

// Num returns a floating point number node.
func Num() *Number { return &Number{} }

// Int returns an integer node.
func Int() *Number { return &Number{Integer: true} }

// Bool returns a boolean node.
func Bool() *Boolean { return &Boolean{} }

// ArrayOf returns an array node whose elements match items.
func ArrayOf(items Node) *Array { return &Array{Items: items} }

// AnyOf returns a union of the given alternatives.
func AnyOf(alternatives ...Node) *Union { return &Union{AnyOf: alternatives} }

// Prop pairs a property name with its schema.
func Prop(name string, n Node) Property { return Property{Name: name, Schema: n} }

// NewObject builds a strict object: every property is required and no
// additional properties are allowed.
func NewObject(props ...Property) *Object {
	obj := &Object{Properties: props, Required: make([]string, 0, len(props))}
	for _, p := range props {
		obj.Required = append(obj.Required, p.Name)
	}
	return obj
}

// Ptr returns a pointer to v, for the optional bounds on nodes.
func Ptr[T any](v T) *T { return &v }
