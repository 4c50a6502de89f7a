package spec

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

var (
	schemaOnce   sync.Once
	schemaLoader gojsonschema.JSONLoader
	schemaJSON   []byte
	schemaErr    error
)

// Schema reflects the JSON schema of a spec document.
func Schema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	s := reflector.Reflect(&Spec{})
	if s.Version == "" {
		s.Version = jsonschema.Version
	}
	s.Title = "Echo spec"
	return s
}

// SchemaJSON renders Schema as indented JSON.
func SchemaJSON() ([]byte, error) {
	compiledSchema()
	return schemaJSON, schemaErr
}

func compiledSchema() (gojsonschema.JSONLoader, error) {
	schemaOnce.Do(func() {
		schemaJSON, schemaErr = json.MarshalIndent(Schema(), "", "  ")
		if schemaErr != nil {
			return
		}
		schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)
	})
	return schemaLoader, schemaErr
}
