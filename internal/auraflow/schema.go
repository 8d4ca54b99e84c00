package auraflow

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Spreadsheet payloads are authored outside this service, so every record is
// schema-checked before it reaches the store. One bad row fails on its own;
// the batch keeps going.
const recordSchemaJSON = `{
	"type": "object",
	"properties": {
		"event_uid": {"type": ["string", "null"]},
		"sheet_row_id": {"type": ["string", "null"]},
		"title": {"type": "string"},
		"status": {"enum": ["to_do", "in_progress", "done", "on_hold", "cancelled"]},
		"priority": {"type": "string"},
		"owner": {"type": ["string", "null"]},
		"description": {"type": ["string", "null"]},
		"start_time": {"type": ["string", "null"]},
		"end_time": {"type": ["string", "null"]},
		"category": {"type": ["string", "null"]},
		"project_id": {"type": ["integer", "null"]},
		"spreadsheet_id": {"type": "string"},
		"sheet_gid": {"type": ["string", "integer"]},
		"created_at": {"type": ["string", "null"]}
	},
	"additionalProperties": false
}`

const changeEnvelopeSchemaJSON = `{
	"type": "object",
	"required": ["record", "old_record"],
	"properties": {
		"record": {"type": "object"},
		"old_record": {"type": "object"}
	}
}`

var (
	schemaOnce           sync.Once
	schemaErr            error
	recordSchema         *jsonschema.Schema
	changeEnvelopeSchema *jsonschema.Schema
)

func compileSchemas() {
	compiler := jsonschema.NewCompiler()
	for name, text := range map[string]string{
		"record.json":          recordSchemaJSON,
		"change-envelope.json": changeEnvelopeSchemaJSON,
	} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(text))
		if err != nil {
			schemaErr = fmt.Errorf("parse %s: %w", name, err)
			return
		}
		if err := compiler.AddResource(name, doc); err != nil {
			schemaErr = fmt.Errorf("add %s: %w", name, err)
			return
		}
	}
	recordSchema, schemaErr = compiler.Compile("record.json")
	if schemaErr != nil {
		return
	}
	changeEnvelopeSchema, schemaErr = compiler.Compile("change-envelope.json")
}

// ValidateRecord checks one inbound event record against the sync schema.
func ValidateRecord(record map[string]any) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	if err := recordSchema.Validate(record); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, compactValidationError(err))
	}
	return nil
}

// ValidateChangeEnvelope checks a trigger payload carries both row images.
func ValidateChangeEnvelope(envelope any) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	if err := changeEnvelopeSchema.Validate(envelope); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, compactValidationError(err))
	}
	return nil
}

// compactValidationError flattens the library's multi-line error output into
// something that fits on a result line.
func compactValidationError(err error) string {
	parts := strings.Split(err.Error(), "\n")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, "; ")
}
