package capability

import (
	"fmt"
	"math"
)

// ValidationError reports an argument that failed the capability's input
// schema. Validation failures are local: the request is never dispatched.
type ValidationError struct {
	Capability string
	Argument   string
	Reason     string
}

func (e *ValidationError) Error() string {
	if e.Argument == "" {
		return fmt.Sprintf("invalid arguments for %s: %s", e.Capability, e.Reason)
	}
	return fmt.Sprintf("invalid argument %q for %s: %s", e.Argument, e.Capability, e.Reason)
}

// ValidateArgs checks args against the capability's input schema: required
// keys present, declared types respected, enum membership, no undeclared
// keys (the schemas ship with additionalProperties disallowed).
func ValidateArgs(cap *Capability, args map[string]any) error {
	schema := &cap.InputSchema

	for _, required := range schema.Required {
		if _, ok := args[required]; !ok {
			return &ValidationError{Capability: cap.Name, Argument: required, Reason: "missing required argument"}
		}
	}

	for key, value := range args {
		prop, declared := schema.Properties[key]
		if !declared {
			return &ValidationError{Capability: cap.Name, Argument: key, Reason: "not declared in input schema"}
		}
		if err := checkProperty(cap.Name, key, &prop, value); err != nil {
			return err
		}
	}

	return nil
}

func checkProperty(capName, argName string, prop *Property, value any) error {
	switch prop.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return &ValidationError{Capability: capName, Argument: argName, Reason: fmt.Sprintf("expected string, got %T", value)}
		}
		if len(prop.Enum) > 0 && !enumContains(prop.Enum, s) {
			return &ValidationError{Capability: capName, Argument: argName, Reason: fmt.Sprintf("%q is not one of %v", s, prop.Enum)}
		}
	case "number":
		if !isNumeric(value) {
			return &ValidationError{Capability: capName, Argument: argName, Reason: fmt.Sprintf("expected number, got %T", value)}
		}
	case "integer":
		f, ok := asFloat(value)
		if !ok || f != math.Trunc(f) {
			return &ValidationError{Capability: capName, Argument: argName, Reason: fmt.Sprintf("expected integer, got %v", value)}
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return &ValidationError{Capability: capName, Argument: argName, Reason: fmt.Sprintf("expected boolean, got %T", value)}
		}
	case "array":
		arr, ok := value.([]any)
		if !ok {
			return &ValidationError{Capability: capName, Argument: argName, Reason: fmt.Sprintf("expected array, got %T", value)}
		}
		if prop.MinItems != nil && len(arr) < *prop.MinItems {
			return &ValidationError{Capability: capName, Argument: argName, Reason: fmt.Sprintf("needs at least %d items", *prop.MinItems)}
		}
		if prop.MaxItems != nil && len(arr) > *prop.MaxItems {
			return &ValidationError{Capability: capName, Argument: argName, Reason: fmt.Sprintf("allows at most %d items", *prop.MaxItems)}
		}
		if prop.Items != nil {
			for i, item := range arr {
				if err := checkProperty(capName, fmt.Sprintf("%s[%d]", argName, i), prop.Items, item); err != nil {
					return err
				}
			}
		}
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return &ValidationError{Capability: capName, Argument: argName, Reason: fmt.Sprintf("expected object, got %T", value)}
		}
		for _, required := range prop.Required {
			if _, present := obj[required]; !present {
				return &ValidationError{Capability: capName, Argument: argName + "." + required, Reason: "missing required field"}
			}
		}
		for key, inner := range obj {
			nested, declared := prop.Properties[key]
			if !declared || nested == nil {
				continue
			}
			if err := checkProperty(capName, argName+"."+key, nested, inner); err != nil {
				return err
			}
		}
	case "":
		// Untyped property: accept anything.
	default:
		return &ValidationError{Capability: capName, Argument: argName, Reason: fmt.Sprintf("unsupported schema type %q", prop.Type)}
	}

	return nil
}

func enumContains(enum []string, s string) bool {
	for _, e := range enum {
		if e == s {
			return true
		}
	}
	return false
}

func isNumeric(v any) bool {
	_, ok := asFloat(v)
	return ok
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
