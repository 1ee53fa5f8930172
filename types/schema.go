package types

// SchemaType represents JSON Schema types.
type SchemaType string

const (
	SchemaTypeString  SchemaType = "string"
	SchemaTypeNumber  SchemaType = "number"
	SchemaTypeInteger SchemaType = "integer"
	SchemaTypeBoolean SchemaType = "boolean"
	SchemaTypeObject  SchemaType = "object"
	SchemaTypeArray   SchemaType = "array"
)

// FormSchema is a JSON-Schema-like description of the fields a form
// interaction expects. The engine treats it as opaque rendering guidance for
// channels; it never validates submitted form values against it.
type FormSchema struct {
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	Type        SchemaType             `json:"type,omitempty"`
	Properties  map[string]*FormSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *FormSchema            `json:"items,omitempty"`
	Enum        []any                  `json:"enum,omitempty"`
	Default     any                    `json:"default,omitempty"`
}
