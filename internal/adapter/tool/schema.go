package tool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// reflector generates inline object schemas: no $defs, no $schema header and
// no additionalProperties=false, which several function-calling APIs reject.
var reflector = &jsonschema.Reflector{
	DoNotReference:            true,
	ExpandedStruct:            true,
	AllowAdditionalProperties: true,
}

// ParametersFor reflects the JSON Schema of a params struct. Fields without
// omitempty are required; descriptions and enums come from jsonschema tags.
func ParametersFor(v any) json.RawMessage {
	s := reflector.Reflect(v)
	s.Version = ""
	data, err := json.Marshal(s)
	if err != nil {
		// Reflected schemas are plain structs; this only fires on programmer error.
		panic(fmt.Sprintf("marshal tool schema for %T: %v", v, err))
	}
	return data
}
