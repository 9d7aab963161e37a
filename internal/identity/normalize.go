// Package identity canonicalizes campaign references whose wire shape varies
// between producers. Every comparison of campaign identifiers goes through
// Normalize on both sides.
package identity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Shape records which normalization branch produced the canonical form.
type Shape int

const (
	// ShapeEmpty is a nil reference.
	ShapeEmpty Shape = iota
	// ShapeString is a bare identifier string.
	ShapeString
	// ShapeReference is an object carrying the identifier in "_id" (or a
	// Mongo ObjectID / extended JSON "$oid").
	ShapeReference
	// ShapeScalar is a number or boolean rendered as text.
	ShapeScalar
	// ShapeFallback means the value matched no known shape and was
	// stringified as a last resort.
	ShapeFallback
)

func (s Shape) String() string {
	switch s {
	case ShapeEmpty:
		return "empty"
	case ShapeString:
		return "string"
	case ShapeReference:
		return "reference"
	case ShapeScalar:
		return "scalar"
	default:
		return "fallback"
	}
}

// maxDepth bounds recursion through nested "_id" wrappers.
const maxDepth = 8

// Normalize returns the canonical string form of a campaign reference.
// It never fails, and Normalize(Normalize(x)) == Normalize(x).
func Normalize(v any) string {
	s, _ := Resolve(v)
	return s
}

// Equal compares two campaign references by their canonical forms.
func Equal(a, b any) bool {
	return Normalize(a) == Normalize(b)
}

// Resolve is Normalize that also reports the shape it recognized.
func Resolve(v any) (string, Shape) {
	return resolve(v, 0)
}

func resolve(v any, depth int) (string, Shape) {
	if depth > maxDepth {
		return fmt.Sprint(v), ShapeFallback
	}

	switch t := v.(type) {
	case nil:
		return "", ShapeEmpty
	case string:
		return t, ShapeString
	case *string:
		if t == nil {
			return "", ShapeEmpty
		}
		return *t, ShapeString
	case primitive.ObjectID:
		return t.Hex(), ShapeReference
	case *primitive.ObjectID:
		if t == nil {
			return "", ShapeEmpty
		}
		return t.Hex(), ShapeReference
	case map[string]any:
		return resolveObject(t, depth)
	case primitive.M:
		return resolveObject(t, depth)
	case json.RawMessage:
		return resolveJSON(t, depth)
	case []byte:
		return resolveJSON(t, depth)
	case json.Number:
		return t.String(), ShapeScalar
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), ShapeScalar
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), ShapeScalar
	case int:
		return strconv.Itoa(t), ShapeScalar
	case int64:
		return strconv.FormatInt(t, 10), ShapeScalar
	case int32:
		return strconv.FormatInt(int64(t), 10), ShapeScalar
	case uint64:
		return strconv.FormatUint(t, 10), ShapeScalar
	case bool:
		return strconv.FormatBool(t), ShapeScalar
	case fmt.Stringer:
		return t.String(), ShapeScalar
	}
	return fmt.Sprint(v), ShapeFallback
}

func resolveObject(m map[string]any, depth int) (string, Shape) {
	if id, ok := m["_id"]; ok {
		s, shape := resolve(id, depth+1)
		if shape == ShapeFallback {
			return s, ShapeFallback
		}
		return s, ShapeReference
	}
	if oid, ok := m["$oid"].(string); ok {
		return oid, ShapeReference
	}
	return fmt.Sprint(m), ShapeFallback
}

// resolveJSON decodes raw JSON and resolves the decoded value. Bytes that are
// not valid JSON are treated as a bare identifier string.
func resolveJSON(raw []byte, depth int) (string, Shape) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return "", ShapeEmpty
	}
	if !json.Valid([]byte(trimmed)) {
		return trimmed, ShapeString
	}
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return trimmed, ShapeString
	}
	return resolve(decoded, depth+1)
}
