package host

import (
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/wasmplug/wasmplug/domain/entities"
)

// JSONSchema describes every exported function as a JSON Schema object with
// an "args" tuple and a "result", keyed by function name. Struct schemas
// are inlined with their field names.
func (p *Plugin) JSONSchema() map[string]*jsonschema.Schema {
	return DescribeFunctions(p.table, p.schemas)
}

// DescribeFunctions builds the JSON Schemas of a descriptor table.
func DescribeFunctions(table *entities.DescriptorTable, schemas *entities.SchemaSet) map[string]*jsonschema.Schema {
	out := make(map[string]*jsonschema.Schema, table.Len())
	for _, fn := range table.Functions() {
		args := make([]*jsonschema.Schema, len(fn.Args))
		for i, tag := range fn.Args {
			args[i] = tagSchema(tag, schemas)
		}

		props := jsonschema.NewProperties()
		props.Set("args", &jsonschema.Schema{
			Type:        "array",
			PrefixItems: args,
			Items:       jsonschema.FalseSchema,
		})
		props.Set("result", tagSchema(fn.Return, schemas))

		out[fn.Name] = &jsonschema.Schema{
			Version:     jsonschema.Version,
			Title:       fn.Name,
			Description: fn.Signature(),
			Type:        "object",
			Properties:  props,
			Required:    []string{"args", "result"},
		}
	}
	return out
}

func tagSchema(tag entities.TypeTag, schemas *entities.SchemaSet) *jsonschema.Schema {
	switch tag.Kind {
	case entities.KindVoid:
		return &jsonschema.Schema{Type: "null"}
	case entities.KindInt32:
		return &jsonschema.Schema{Type: "integer", Format: "int32"}
	case entities.KindInt64:
		return &jsonschema.Schema{Type: "integer", Format: "int64"}
	case entities.KindFloat32:
		return &jsonschema.Schema{Type: "number", Format: "float"}
	case entities.KindFloat64:
		return &jsonschema.Schema{Type: "number", Format: "double"}
	case entities.KindBool:
		return &jsonschema.Schema{Type: "boolean"}
	case entities.KindString:
		return &jsonschema.Schema{Type: "string"}
	case entities.KindBytes:
		return &jsonschema.Schema{Type: "string", ContentEncoding: "base64"}
	case entities.KindStruct:
		return structSchema(tag.SchemaID, schemas)
	default:
		return jsonschema.FalseSchema
	}
}

func structSchema(id uint32, schemas *entities.SchemaSet) *jsonschema.Schema {
	schema, ok := schemas.Lookup(id)
	if !ok {
		return &jsonschema.Schema{Type: "object", Title: fmt.Sprintf("schema %d", id)}
	}
	props := jsonschema.NewProperties()
	required := make([]string, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		props.Set(f.Name, tagSchema(f.Tag, schemas))
		required = append(required, f.Name)
	}
	return &jsonschema.Schema{
		Type:                 "object",
		Title:                schema.Name,
		Properties:           props,
		Required:             required,
		AdditionalProperties: jsonschema.FalseSchema,
	}
}
