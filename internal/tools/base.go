// Package tools exposes the execution subsystem as agent-callable tools.
package tools

import (
	"context"
	"fmt"
	"reflect"
)

// Tool is one callable operation.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string
	// Description returns a human-readable description for the caller.
	Description() string
	// Parameters returns JSON Schema for tool parameters.
	Parameters() map[string]interface{}
	// Execute runs the tool with given parameters.
	Execute(ctx context.Context, params map[string]interface{}) (string, error)
}

// ToolDefinition represents a tool in function calling format.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes one function for a function-calling API.
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToDefinition converts a Tool to function calling format.
func ToDefinition(t Tool) ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// ValidateParams checks params against a JSON schema: required fields
// present, values of the declared type. Returns error messages, empty
// when valid.
func ValidateParams(params map[string]interface{}, schema map[string]interface{}) []string {
	var errs []string

	if required, ok := schema["required"].([]string); ok {
		for _, field := range required {
			if _, exists := params[field]; !exists {
				errs = append(errs, fmt.Sprintf("missing required field: %s", field))
			}
		}
	}

	properties, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return errs
	}
	for key, value := range params {
		prop, ok := properties[key].(map[string]interface{})
		if !ok {
			continue
		}
		expected, ok := prop["type"].(string)
		if !ok {
			continue
		}
		if msg := validateType(key, value, expected); msg != "" {
			errs = append(errs, msg)
		}
	}
	return errs
}

func validateType(key string, value interface{}, expected string) string {
	if value == nil {
		return ""
	}

	valid := false
	switch expected {
	case "string":
		_, valid = value.(string)
	case "integer", "number":
		switch value.(type) {
		case int, int32, int64, float32, float64:
			valid = true
		}
	case "boolean":
		_, valid = value.(bool)
	case "array":
		kind := reflect.TypeOf(value).Kind()
		valid = kind == reflect.Slice || kind == reflect.Array
	case "object":
		_, valid = value.(map[string]interface{})
	}

	if !valid {
		return fmt.Sprintf("field %s: expected type %s, got %s", key, expected, reflect.TypeOf(value))
	}
	return ""
}

// BaseTool holds the static metadata shared by every tool.
type BaseTool struct {
	name        string
	description string
	parameters  map[string]interface{}
}

// NewBaseTool creates the embedded metadata for a tool.
func NewBaseTool(name, description string, parameters map[string]interface{}) BaseTool {
	return BaseTool{
		name:        name,
		description: description,
		parameters:  parameters,
	}
}

func (t *BaseTool) Name() string { return t.name }

func (t *BaseTool) Description() string { return t.description }

func (t *BaseTool) Parameters() map[string]interface{} { return t.parameters }

// ErrParamNotFound is returned when a required parameter is missing.
type ErrParamNotFound struct {
	Key string
}

func (e ErrParamNotFound) Error() string {
	return fmt.Sprintf("parameter %q not found", e.Key)
}

// ErrParamTypeMismatch is returned when a parameter has the wrong type.
type ErrParamTypeMismatch struct {
	Key      string
	Expected string
}

func (e ErrParamTypeMismatch) Error() string {
	return fmt.Sprintf("parameter %q is not a %s", e.Key, e.Expected)
}

// GetStringParam extracts a required string parameter.
func GetStringParam(params map[string]interface{}, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", ErrParamNotFound{Key: key}
	}
	s, ok := raw.(string)
	if !ok {
		return "", ErrParamTypeMismatch{Key: key, Expected: "string"}
	}
	return s, nil
}

// GetStringParamOr extracts an optional string parameter.
func GetStringParamOr(params map[string]interface{}, key, defaultVal string) string {
	if s, err := GetStringParam(params, key); err == nil {
		return s
	}
	return defaultVal
}

// GetIntParam extracts a required integer parameter. JSON numbers arrive
// as float64; both forms are accepted.
func GetIntParam(params map[string]interface{}, key string) (int, error) {
	raw, ok := params[key]
	if !ok {
		return 0, ErrParamNotFound{Key: key}
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, ErrParamTypeMismatch{Key: key, Expected: "integer"}
	}
}

// GetIntParamOr extracts an optional integer parameter.
func GetIntParamOr(params map[string]interface{}, key string, defaultVal int) int {
	if n, err := GetIntParam(params, key); err == nil {
		return n
	}
	return defaultVal
}

// GetBoolParam extracts a required boolean parameter.
func GetBoolParam(params map[string]interface{}, key string) (bool, error) {
	raw, ok := params[key]
	if !ok {
		return false, ErrParamNotFound{Key: key}
	}
	b, ok := raw.(bool)
	if !ok {
		return false, ErrParamTypeMismatch{Key: key, Expected: "boolean"}
	}
	return b, nil
}

// GetBoolParamOr extracts an optional boolean parameter.
func GetBoolParamOr(params map[string]interface{}, key string, defaultVal bool) bool {
	if b, err := GetBoolParam(params, key); err == nil {
		return b
	}
	return defaultVal
}
