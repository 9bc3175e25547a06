package server

import (
	"gopkg.in/yaml.v3"
)

// Document is the subset of OpenAPI 3.0 the API describes itself with.
// Field order is the order keys appear in the rendered YAML.
type Document struct {
	OpenAPI    string              `yaml:"openapi"`
	Info       Info                `yaml:"info"`
	Servers    []ServerURL         `yaml:"servers"`
	Components Components          `yaml:"components"`
	Paths      map[string]PathItem `yaml:"paths"`
}

type Info struct {
	Version     string `yaml:"version"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type ServerURL struct {
	URL string `yaml:"url"`
}

type Components struct {
	Schemas map[string]*SchemaObject `yaml:"schemas"`
}

type SchemaObject struct {
	Ref        string                   `yaml:"$ref,omitempty"`
	Type       string                   `yaml:"type,omitempty"`
	Properties map[string]*SchemaObject `yaml:"properties,omitempty"`
	Items      *SchemaObject            `yaml:"items,omitempty"`
}

type PathItem struct {
	Get *Operation `yaml:"get,omitempty"`
}

type Operation struct {
	Description string              `yaml:"description"`
	Responses   map[string]Response `yaml:"responses"`
}

type Response struct {
	Description string               `yaml:"description"`
	Content     map[string]MediaType `yaml:"content,omitempty"`
}

type MediaType struct {
	Schema *SchemaObject `yaml:"schema"`
}

func ref(name string) *SchemaObject {
	return &SchemaObject{Ref: "#/components/schemas/" + name}
}

func jsonContent(schema *SchemaObject) map[string]MediaType {
	return map[string]MediaType{"application/json": {Schema: schema}}
}

// Schema returns the OpenAPI document for the query API. Paths are
// relative to the /openapi/v1 server prefix.
func Schema() *Document {
	return &Document{
		OpenAPI: "3.0.0",
		Info: Info{
			Version:     "1.0",
			Title:       "API",
			Description: "the API for querying microblog data",
		},
		Servers: []ServerURL{
			{URL: "http://localhost/openapi/v1"},
			{URL: "/openapi/v1"},
		},
		Components: Components{
			Schemas: map[string]*SchemaObject{
				"BasicError": {
					Type: "object",
					Properties: map[string]*SchemaObject{
						"message": {Type: "string"},
						"code":    {Type: "integer"},
					},
				},
				"MessageEntity": {
					Type: "object",
					Properties: map[string]*SchemaObject{
						"datasource_name": {Type: "string"},
						"message":         {Type: "string"},
					},
				},
			},
		},
		Paths: map[string]PathItem{
			"/messages": {
				Get: &Operation{
					Description: "Just an unsorted, messy batch of messages",
					Responses: map[string]Response{
						"200": {
							Description: "Successfully fetched message data",
							Content: jsonContent(&SchemaObject{
								Type: "object",
								Properties: map[string]*SchemaObject{
									"messages": {Type: "array", Items: ref("MessageEntity")},
								},
							}),
						},
						"500": {
							Description: "Messages could not be read",
							Content:     jsonContent(ref("BasicError")),
						},
					},
				},
			},
		},
	}
}

// SchemaYAML renders Schema as YAML. Map keys come out sorted, so the
// output is stable across calls.
func SchemaYAML() ([]byte, error) {
	return yaml.Marshal(Schema())
}
