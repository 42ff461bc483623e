package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var ErrInvalidMetadata = errors.New("invalid grant metadata")

// metadataSchema constrains the free-form metadata document attached to a
// grant record.
const metadataSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["description"],
  "properties": {
    "description": {"type": "string", "minLength": 1},
    "url": {"type": "string"},
    "tags": {"type": "array", "items": {"type": "string"}},
    "funding": {
      "type": "object",
      "required": ["amount", "asset"],
      "properties": {
        "amount": {"type": "integer", "minimum": 0},
        "asset": {"type": "string", "minLength": 1}
      }
    },
    "milestones": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title"],
        "properties": {
          "title": {"type": "string"},
          "due": {"type": "string"},
          "completed": {"type": "boolean"}
        }
      }
    }
  },
  "additionalProperties": false
}`

// MetadataValidator validates grant metadata documents against the registry
// schema. Compile once, validate many.
type MetadataValidator struct {
	schema *jsonschema.Schema
}

// NewMetadataValidator compiles the registry metadata schema.
func NewMetadataValidator() (*MetadataValidator, error) {
	schema, err := jsonschema.CompileString("grant-metadata.json", metadataSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to compile metadata schema: %w", err)
	}
	return &MetadataValidator{schema: schema}, nil
}

// Validate checks one metadata document.
func (v *MetadataValidator) Validate(raw json.RawMessage) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return nil
}
