package relay

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/MariamAlaa-8/realstate-backend/notification"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const intentSchema = "schemas/notification.v1.json"

// ErrInvalidPayload marks an outbox payload that can never be delivered.
var ErrInvalidPayload = errors.New("relay: payload does not match the notification schema")

// Validator checks intents against the embedded notification schema.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	f, err := schemaFS.Open(intentSchema)
	if err != nil {
		return nil, fmt.Errorf("relay: open schema: %w", err)
	}
	defer f.Close()
	if err := compiler.AddResource(intentSchema, f); err != nil {
		return nil, fmt.Errorf("relay: add schema resource: %w", err)
	}
	schema, err := compiler.Compile(intentSchema)
	if err != nil {
		return nil, fmt.Errorf("relay: compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate returns the wire body of in, or ErrInvalidPayload.
func (v *Validator) Validate(in notification.Intent) ([]byte, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return body, nil
}
