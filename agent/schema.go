package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	jsv "github.com/santhosh-tekuri/jsonschema/v5"
)

// GenerateSchema reflects a JSON schema (draft 2020-12) from the Go type of
// v. Struct definitions are expanded inline so tool parameters read as one
// flat object.
func GenerateSchema(v any) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
		Anonymous:      true,
	}
	schema := reflector.Reflect(v)

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

// compileSchema compiles a tool's params-schema. An empty schema compiles to
// nil, which accepts any arguments.
func compileSchema(tool, schema string) (*jsv.Schema, error) {
	if strings.TrimSpace(schema) == "" {
		return nil, nil
	}
	url := "tools/" + tool + ".json"
	compiler := jsv.NewCompiler()
	if err := compiler.AddResource(url, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource for %s: %w", tool, err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("invalid schema for %s: %w", tool, err)
	}
	return sch, nil
}

// decodeArguments turns the ordered string arguments of a tool input into a
// JSON object. A value is decoded as JSON when its property is declared with
// a non-string type, so "3" satisfies {"type": "integer"}.
func decodeArguments(args map[string]string, sch *jsv.Schema) map[string]any {
	out := make(map[string]any, len(args))
	for key, value := range args {
		out[key] = value
		if sch == nil {
			continue
		}
		prop, ok := sch.Properties[key]
		if !ok || prop == nil || len(prop.Types) == 0 || containsString(prop.Types, "string") {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			out[key] = decoded
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
