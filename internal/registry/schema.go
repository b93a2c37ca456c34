// Copyright 2025 mcpkit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package registry

import (
	"encoding/json"
	"fmt"
)

// ValidateArguments checks args against the JSON-Schema subset tools declare:
// required, type, enum, nested object properties, array items, and
// additionalProperties. It returns one detail string per violation, each
// prefixed with the offending argument path, or nil when args conform. A nil
// schema accepts anything.
func ValidateArguments(schema, args map[string]any) []string {
	if schema == nil {
		return nil
	}
	return validateObject(schema, args, "")
}

func validateObject(schema map[string]any, args map[string]any, path string) []string {
	var details []string

	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			name, ok := r.(string)
			if !ok {
				continue
			}
			if _, present := args[name]; !present {
				details = append(details, fmt.Sprintf("%s: required argument is missing", joinPath(path, name)))
			}
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for name, v := range args {
		propSchema, ok := props[name].(map[string]any)
		if !ok {
			if additional, set := schema["additionalProperties"].(bool); set && !additional {
				details = append(details, fmt.Sprintf("%s: unknown argument", joinPath(path, name)))
			}
			continue
		}
		details = append(details, validateValue(propSchema, v, joinPath(path, name))...)
	}
	return details
}

func validateValue(schema map[string]any, v any, path string) []string {
	var details []string

	if want, ok := schema["type"].(string); ok {
		if !typeMatches(want, v) {
			details = append(details, fmt.Sprintf("%s: expected type %q", path, want))
			return details
		}
	}

	if enum, ok := schema["enum"].([]any); ok {
		matched := false
		for _, allowed := range enum {
			if valuesEqual(allowed, v) {
				matched = true
				break
			}
		}
		if !matched {
			details = append(details, fmt.Sprintf("%s: value is not one of the allowed values", path))
			return details
		}
	}

	switch val := v.(type) {
	case map[string]any:
		details = append(details, validateObject(schema, val, path)...)
	case []any:
		if itemSchema, ok := schema["items"].(map[string]any); ok {
			for i, item := range val {
				details = append(details, validateValue(itemSchema, item, fmt.Sprintf("%s[%d]", path, i))...)
			}
		}
	}
	return details
}

// typeMatches maps JSON-Schema primitive type names onto decoded Go values.
// Numbers may arrive as float64 or json.Number depending on the decoder.
func typeMatches(want string, v any) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "null":
		return v == nil
	case "number":
		return asFloat(v) != nil
	case "integer":
		f := asFloat(v)
		return f != nil && *f == float64(int64(*f))
	}
	return true
}

func asFloat(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return &f
		}
	}
	return nil
}

func valuesEqual(a, b any) bool {
	if a == b {
		return true
	}
	// compare numerics across decoder representations
	af, bf := asFloat(a), asFloat(b)
	if af != nil && bf != nil {
		return *af == *bf
	}
	return false
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
