package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

// elicitSchemaCache memoizes the derived form schema per struct type.
var elicitSchemaCache sync.Map // reflect.Type -> *schema.ElicitRequestSchema

// ElicitTyped asks the user to fill a form derived from T and decodes the
// accepted content back into T. T must be a flat struct of strings, numbers,
// integers and booleans; string fields may restrict their values with an
// `enum` tag. Fields marked omitempty are optional, everything else is
// required.
//
// The action is returned alongside the value: on decline or cancel the value
// is the zero T and no error is reported.
func ElicitTyped[T any](ctx context.Context, session *Session, message string) (T, schema.ElicitAction, error) {
	var zero T
	formSchema, err := schemaForStruct(reflect.TypeOf(zero))
	if err != nil {
		return zero, "", err
	}

	result, err := session.Elicit(ctx, &schema.ElicitRequestParams{
		Mode:            schema.ElicitationModeForm,
		Message:         message,
		RequestedSchema: formSchema,
	})
	if err != nil {
		return zero, "", err
	}
	if result.Action != schema.ElicitActionAccept {
		return zero, result.Action, nil
	}

	data, err := json.Marshal(result.Content)
	if err != nil {
		return zero, result.Action, fmt.Errorf("failed to re-encode elicitation content: %w", err)
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, result.Action, fmt.Errorf("elicitation content does not match %T: %w", value, err)
	}
	return value, result.Action, nil
}

func schemaForStruct(t reflect.Type) (*schema.ElicitRequestSchema, error) {
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("elicitation target must be a struct, got %v", t)
	}
	if cached, ok := elicitSchemaCache.Load(t); ok {
		return cached.(*schema.ElicitRequestSchema), nil
	}

	out := &schema.ElicitRequestSchema{
		Type:       "object",
		Properties: make(map[string]schema.PrimitiveSchema, t.NumField()),
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, optional := fieldName(field)
		if name == "-" {
			continue
		}

		prop, err := propertyForField(field)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		out.Properties[name] = prop
		if !optional {
			out.Required = append(out.Required, name)
		}
	}

	elicitSchemaCache.Store(t, out)
	return out, nil
}

func fieldName(field reflect.StructField) (name string, optional bool) {
	name = field.Name
	tag := field.Tag.Get("json")
	if tag == "" {
		return name, false
	}
	parts := strings.Split(tag, ",")
	if parts[0] != "" {
		name = parts[0]
	}
	for _, part := range parts[1:] {
		if part == "omitempty" {
			optional = true
		}
	}
	return name, optional
}

func propertyForField(field reflect.StructField) (schema.PrimitiveSchema, error) {
	description := field.Tag.Get("description")

	switch field.Type.Kind() {
	case reflect.String:
		if enumTag := field.Tag.Get("enum"); enumTag != "" {
			return &schema.EnumSchema{
				Type:        "string",
				Description: description,
				Enum:        strings.Split(enumTag, ","),
			}, nil
		}
		return &schema.StringSchema{
			Type:        "string",
			Description: description,
			Format:      field.Tag.Get("format"),
		}, nil
	case reflect.Bool:
		return &schema.BooleanSchema{Type: "boolean", Description: description}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &schema.NumberSchema{Type: "integer", Description: description}, nil
	case reflect.Float32, reflect.Float64:
		return &schema.NumberSchema{Type: "number", Description: description}, nil
	case reflect.Ptr:
		// Forms have no notion of null; model optional fields with omitempty
		// instead of pointers.
		return nil, fmt.Errorf("pointer fields are not supported in elicitation forms")
	default:
		return nil, fmt.Errorf("unsupported elicitation field kind %s", field.Type.Kind())
	}
}
