package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// Type defines the contract for value validation.
// Implementations determine how values are validated against a type.
type Type interface {
	// Name returns the type's notation (e.g., "str", "list[int]").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
}

// --- Built-in Type Implementations ---

// StrType validates string values.
type StrType struct{}

func (t *StrType) Name() string { return "str" }

func (t *StrType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return &ValidationError{Reason: "expected str", Value: value}
	}
	return nil
}

// IntType validates integer values.
type IntType struct{}

func (t *IntType) Name() string { return "int" }

func (t *IntType) Validate(value any) error {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return nil
	case float64:
		// Accept floats that are whole numbers (from JSON unmarshaling)
		if v == float64(int64(v)) {
			return nil
		}
		return &ValidationError{Reason: "expected int, got fractional float", Value: value}
	default:
		return &ValidationError{Reason: "expected int", Value: value}
	}
}

// FloatType validates numeric values.
type FloatType struct{}

func (t *FloatType) Name() string { return "float" }

func (t *FloatType) Validate(value any) error {
	switch value.(type) {
	case float32, float64, int, int8, int16, int32, int64:
		return nil
	default:
		return &ValidationError{Reason: "expected float", Value: value}
	}
}

// BoolType validates boolean values.
type BoolType struct{}

func (t *BoolType) Name() string { return "bool" }

func (t *BoolType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return &ValidationError{Reason: "expected bool", Value: value}
	}
	return nil
}

// AnyType accepts every non-nil value.
type AnyType struct{}

func (t *AnyType) Name() string { return "any" }

func (t *AnyType) Validate(value any) error {
	if value == nil {
		return &ValidationError{Reason: "expected a value, got nil", Value: value}
	}
	return nil
}

// ListType validates slice values element-wise.
type ListType struct {
	elem Type
}

func (t *ListType) Name() string {
	return fmt.Sprintf("list[%s]", t.elem.Name())
}

func (t *ListType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return &ValidationError{Reason: "expected list", Value: value}
	}
	for i := 0; i < rv.Len(); i++ {
		elem := rv.Index(i).Interface()
		if err := t.elem.Validate(elem); err != nil {
			return &ValidationError{Path: fmt.Sprintf("element %d", i), Reason: err.Error(), Value: elem}
		}
	}
	return nil
}

// DictType validates string-keyed map values, checking each entry against
// the value type.
type DictType struct {
	value Type
}

func (t *DictType) Name() string {
	if _, ok := t.value.(*AnyType); ok {
		return "dict"
	}
	return fmt.Sprintf("dict[%s]", t.value.Name())
}

func (t *DictType) Validate(value any) error {
	m, ok := value.(map[string]any)
	if !ok {
		return &ValidationError{Reason: "expected dict", Value: value}
	}
	for key, entry := range m {
		if err := t.value.Validate(entry); err != nil {
			return &ValidationError{Path: fmt.Sprintf("key %s", key), Reason: err.Error(), Value: entry}
		}
	}
	return nil
}

// CustomType applies a user-defined validation function.
type CustomType struct {
	name     string
	validate func(any) error
}

func (t *CustomType) Name() string { return t.name }

func (t *CustomType) Validate(value any) error {
	return t.validate(value)
}

// --- Factory Functions ---

// Str creates a string type validator.
func Str() Type { return &StrType{} }

// Int creates an integer type validator.
func Int() Type { return &IntType{} }

// Float creates a float type validator.
func Float() Type { return &FloatType{} }

// Bool creates a boolean type validator.
func Bool() Type { return &BoolType{} }

// Any creates a validator that accepts every non-nil value.
func Any() Type { return &AnyType{} }

// List creates a list type validator for elements of the given type.
func List(elem Type) Type { return &ListType{elem: elem} }

// Dict creates a dict type validator for entries of the given value type.
func Dict(value Type) Type { return &DictType{value: value} }

// Custom creates a custom type validator with a user-defined function.
func Custom(name string, validate func(any) error) Type {
	return &CustomType{name: name, validate: validate}
}

// ParseType converts a type string to a Type.
// Supports "str", "int", "float", "bool", "any", "dict", and the generic
// forms "list[T]" and "dict[T]".
func ParseType(typeStr string) (Type, error) {
	s := strings.TrimSpace(typeStr)

	if inner, ok := generic(s, "list"); ok {
		elem, err := ParseType(inner)
		if err != nil {
			return nil, err
		}
		return List(elem), nil
	}
	if inner, ok := generic(s, "dict"); ok {
		value, err := ParseType(inner)
		if err != nil {
			return nil, err
		}
		return Dict(value), nil
	}

	switch s {
	case "str", "string":
		return Str(), nil
	case "int":
		return Int(), nil
	case "float":
		return Float(), nil
	case "bool":
		return Bool(), nil
	case "any":
		return Any(), nil
	case "dict":
		return Dict(Any()), nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", typeStr)
	}
}

// generic extracts T from "name[T]".
func generic(s, name string) (string, bool) {
	if strings.HasPrefix(s, name+"[") && strings.HasSuffix(s, "]") {
		return s[len(name)+1 : len(s)-1], true
	}
	return "", false
}
