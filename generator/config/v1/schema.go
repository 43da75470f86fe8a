package v1

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema"
)

type schemaElement struct {
	name   string
	schema string
}

type schemaHierarchy struct {
	schemas    []schemaElement
	mainSchema string
}

//go:embed date.json
var dateSchemaString string

//go:embed validity.json
var validitySchemaString string

//go:embed output.json
var outputSchemaString string

//go:embed certificate.json
var certificateSchemaString string

//go:embed certificate-example.yaml
var certificateExample string

// it's important that the dependencies are added first,
// and the schemas that depend on them after that
var schemas []schemaElement = []schemaElement{
	{"date.json", dateSchemaString},
	{"validity.json", validitySchemaString},
	{"output.json", outputSchemaString},
	{"certificate.json", certificateSchemaString},
}

func compileSchema(hierarchy *schemaHierarchy) (*jsonschema.Schema, error) {
	if hierarchy == nil {
		return nil, errors.New("schema: hierarchy must not be nil")
	}

	compiler := jsonschema.NewCompiler()
	for _, element := range hierarchy.schemas {
		err := compiler.AddResource(element.name, strings.NewReader(element.schema))
		if err != nil {
			return nil, fmt.Errorf("schema: error adding schema %v: %v", element.name, err)
		}
	}

	compiledSchema, err := compiler.Compile(hierarchy.mainSchema)
	if err != nil {
		return nil, fmt.Errorf("schema: error compiling schema %v: %v",
			hierarchy.mainSchema, err)
	}

	return compiledSchema, nil
}

var certificateSchema *jsonschema.Schema

func init() {
	var err error
	certificateSchema, err = compileSchema(&schemaHierarchy{schemas, "certificate.json"})
	if err != nil {
		panic(err)
	}
}
