package wire

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const envelopeSchemaJSON = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"type": "string", "minLength": 1}
  }
}`

const transcriptSchemaJSON = `{
  "type": "object",
  "required": ["type", "text"],
  "properties": {
    "type": {"const": "transcript"},
    "text": {"type": "string"}
  }
}`

var (
	envelopeSchema   = mustCompile("envelope.json", envelopeSchemaJSON)
	transcriptSchema = mustCompile("transcript.json", transcriptSchemaJSON)
)

func compile(name, src string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return schema, nil
}

func mustCompile(name, src string) *jsonschema.Schema {
	s, err := compile(name, src)
	if err != nil {
		panic(err)
	}
	return s
}
