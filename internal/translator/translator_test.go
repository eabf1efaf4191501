package translator

import (
	"fmt"
	"math/rand/v2"

	"structured-router/internal/schema"
)

// tupleNode is a node kind outside the canonical set. Embedding a real node
// satisfies the sealed interface while reporting a foreign kind.
type tupleNode struct{ *schema.Boolean }

func (tupleNode) Kind() schema.Kind { return "tuple" }

func personSchema() *schema.Object {
	return schema.NewObject(
		schema.Prop("name", schema.Str()),
		schema.Prop("age", schema.Int()),
	)
}

func catalogSchema() *schema.Object {
	return schema.NewObject(
		schema.Prop("title", &schema.String{Description: "catalog title", MaxLength: schema.Ptr(80)}),
		schema.Prop("items", &schema.Array{
			Items: schema.NewObject(
				schema.Prop("sku", &schema.String{Pattern: "^[A-Z]{3}-[0-9]+$"}),
				schema.Prop("price", &schema.Number{Minimum: schema.Ptr(0.0), MultipleOf: schema.Ptr(0.01)}),
				schema.Prop("tags", schema.ArrayOf(schema.Enum("new", "sale"))),
				schema.Prop("in_stock", schema.Bool()),
			),
			MinItems: schema.Ptr(1),
		}),
		schema.Prop("owner", schema.AnyOf(schema.Str(), schema.NewObject(schema.Prop("id", schema.Int())))),
	)
}

// randomTree builds a strict canonical tree of bounded depth.
func randomTree(r *rand.Rand, depth int) schema.Node {
	leaf := func() schema.Node {
		switch r.IntN(4) {
		case 0:
			return schema.Str()
		case 1:
			return schema.Num()
		case 2:
			return schema.Int()
		default:
			return schema.Bool()
		}
	}
	if depth == 0 {
		return leaf()
	}
	switch r.IntN(4) {
	case 0:
		return schema.ArrayOf(randomTree(r, depth-1))
	case 1:
		n := 1 + r.IntN(4)
		props := make([]schema.Property, 0, n)
		for i := 0; i < n; i++ {
			props = append(props, schema.Prop(fmt.Sprintf("f%d_%d", depth, i), randomTree(r, depth-1)))
		}
		return schema.NewObject(props...)
	case 2:
		return schema.AnyOf(randomTree(r, depth-1), leaf())
	default:
		return leaf()
	}
}

func randomObjects(seed uint64, count int) []*schema.Object {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]*schema.Object, 0, count)
	for len(out) < count {
		n := 2 + r.IntN(4)
		props := make([]schema.Property, 0, n)
		for i := 0; i < n; i++ {
			props = append(props, schema.Prop(fmt.Sprintf("root_%d", i), randomTree(r, 3)))
		}
		out = append(out, schema.NewObject(props...))
	}
	return out
}

func canonicalDepth(n schema.Node) int {
	switch t := n.(type) {
	case *schema.Object:
		deepest := 0
		for _, p := range t.Properties {
			if d := canonicalDepth(p.Schema); d > deepest {
				deepest = d
			}
		}
		return deepest + 1
	case *schema.Array:
		return canonicalDepth(t.Items) + 1
	case *schema.Union:
		deepest := 0
		for _, alt := range t.AnyOf {
			if d := canonicalDepth(alt); d > deepest {
				deepest = d
			}
		}
		return deepest + 1
	default:
		return 1
	}
}
