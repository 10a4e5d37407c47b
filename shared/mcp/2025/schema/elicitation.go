package schema

import (
	"encoding/json"
	"fmt"
)

// ElicitationMode selects how the client gathers the requested input.
type ElicitationMode string

const (
	// ElicitationModeForm asks the client to render a schema-driven form.
	ElicitationModeForm ElicitationMode = "form"
	// ElicitationModeURL asks the client to direct the user to a URL for an
	// out-of-band interaction.
	ElicitationModeURL ElicitationMode = "url"
)

// ElicitRequest is sent from the server to request structured user input via
// the client.
type ElicitRequest struct {
	Method string              `json:"method"` // const: "elicitation/create"
	Params ElicitRequestParams `json:"params"`
}

// ElicitRequestParams describes what to ask the user for. Form mode requires
// RequestedSchema; URL mode requires URL and ElicitationID. URLs must never
// be placed in any other field.
type ElicitRequestParams struct {
	Mode            ElicitationMode      `json:"mode,omitempty"` // defaults to "form" when absent
	Message         string               `json:"message"`
	RequestedSchema *ElicitRequestSchema `json:"requestedSchema,omitempty"`
	URL             string               `json:"url,omitempty"`
	ElicitationID   string               `json:"elicitationId,omitempty"`
	Meta            Meta                 `json:"_meta,omitempty"`
}

// ElicitRequestSchema is a flat object schema whose properties are all
// primitive definitions.
type ElicitRequestSchema struct {
	Type       string                     `json:"type"` // const: "object"
	Properties map[string]PrimitiveSchema `json:"properties"`
	Required   []string                   `json:"required,omitempty"`
}

func (s *ElicitRequestSchema) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Type != "object" {
		return fmt.Errorf("elicitation schema: root type must be \"object\", got %q", raw.Type)
	}
	s.Type = raw.Type
	s.Required = raw.Required
	s.Properties = make(map[string]PrimitiveSchema, len(raw.Properties))
	for name, prop := range raw.Properties {
		p, err := UnmarshalPrimitiveSchema(prop)
		if err != nil {
			return fmt.Errorf("elicitation schema property %q: %w", name, err)
		}
		s.Properties[name] = p
	}
	return nil
}

// PrimitiveSchema is the restricted JSON-Schema subset usable in elicitation
// forms: strings, numbers/integers, booleans and string enums (single or
// multi select).
type PrimitiveSchema interface {
	PrimitiveType() string
}

// StringSchema describes a free-form string property.
type StringSchema struct {
	Type        string  `json:"type"` // const: "string"
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	MinLength   *int    `json:"minLength,omitempty"`
	MaxLength   *int    `json:"maxLength,omitempty"`
	Format      string  `json:"format,omitempty"` // "email", "uri", "date" or "date-time"
	Default     *string `json:"default,omitempty"`
}

func (s *StringSchema) PrimitiveType() string { return "string" }

// NumberSchema describes a number or integer property.
type NumberSchema struct {
	Type        string   `json:"type"` // "number" or "integer"
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
	Default     *float64 `json:"default,omitempty"`
}

func (s *NumberSchema) PrimitiveType() string { return s.Type }

// BooleanSchema describes a boolean property.
type BooleanSchema struct {
	Type        string `json:"type"` // const: "boolean"
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Default     *bool  `json:"default,omitempty"`
}

func (s *BooleanSchema) PrimitiveType() string { return "boolean" }

// EnumOption is one choice of a titled enum, pairing the wire value with a
// display title.
type EnumOption struct {
	Const string `json:"const"`
	Title string `json:"title,omitempty"`
}

// EnumSchema describes a single-select string enum. Either Enum (untitled) or
// OneOf (titled) is populated. EnumNames pairs with Enum in the deprecated
// titled form: accepted on decode, emitted only when explicitly constructed.
type EnumSchema struct {
	Type        string       `json:"type"` // const: "string"
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Enum        []string     `json:"enum,omitempty"`
	EnumNames   []string     `json:"enumNames,omitempty"` // deprecated
	OneOf       []EnumOption `json:"oneOf,omitempty"`
	Default     *string      `json:"default,omitempty"`
}

func (s *EnumSchema) PrimitiveType() string { return "string" }

// Values returns the selectable wire values regardless of which enum form
// was used.
func (s *EnumSchema) Values() []string {
	if len(s.Enum) > 0 {
		return s.Enum
	}
	values := make([]string, len(s.OneOf))
	for i, opt := range s.OneOf {
		values[i] = opt.Const
	}
	return values
}

// MultiSelectSchema describes a multi-select enum: an array whose items are
// a single-select enum schema.
type MultiSelectSchema struct {
	Type        string      `json:"type"` // const: "array"
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Items       *EnumSchema `json:"items"`
	MinItems    *int        `json:"minItems,omitempty"`
	MaxItems    *int        `json:"maxItems,omitempty"`
	Default     []string    `json:"default,omitempty"`
}

func (s *MultiSelectSchema) PrimitiveType() string { return "array" }

// UnmarshalPrimitiveSchema decodes one primitive property definition,
// selecting the concrete type by discriminator and shape. Unknown or
// unsupported shapes are rejected.
func UnmarshalPrimitiveSchema(data []byte) (PrimitiveSchema, error) {
	var probe struct {
		Type  string            `json:"type"`
		Enum  []json.RawMessage `json:"enum"`
		OneOf []json.RawMessage `json:"oneOf"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	var target PrimitiveSchema
	switch {
	case probe.Type == "boolean":
		target = &BooleanSchema{}
	case probe.Type == "number" || probe.Type == "integer":
		target = &NumberSchema{}
	case probe.Type == "array":
		target = &MultiSelectSchema{}
	case probe.Type == "string" && (len(probe.Enum) > 0 || len(probe.OneOf) > 0):
		target = &EnumSchema{}
	case probe.Type == "string":
		target = &StringSchema{}
	default:
		return nil, fmt.Errorf("unsupported primitive schema type %q", probe.Type)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, err
	}
	if ms, ok := target.(*MultiSelectSchema); ok && ms.Items == nil {
		return nil, fmt.Errorf("multi-select schema requires items")
	}
	return target, nil
}

// ElicitAction is the user's disposition of an elicitation request.
type ElicitAction string

const (
	ElicitActionAccept  ElicitAction = "accept"
	ElicitActionDecline ElicitAction = "decline"
	ElicitActionCancel  ElicitAction = "cancel"
)

// ElicitResult is the client's response to an elicitation/create request.
// Content is present only when the action is "accept".
type ElicitResult struct {
	Meta    Meta                   `json:"_meta,omitempty"`
	Action  ElicitAction           `json:"action"`
	Content map[string]interface{} `json:"content,omitempty"`
}

// URLElicitationRequiredErrorData is the `data` payload of an error telling
// the caller to complete the referenced out-of-band elicitations and retry.
type URLElicitationRequiredErrorData struct {
	Elicitations []ElicitRequestParams `json:"elicitations"`
}
