package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/semplan/catalog"
	"github.com/c360studio/semplan/document"
	"github.com/c360studio/semplan/export"
	"github.com/c360studio/semplan/intent"
	"github.com/c360studio/semplan/service"
	"github.com/c360studio/semplan/storage"
)

// OpenAPIDocument represents the complete OpenAPI 3.0 specification.
type OpenAPIDocument struct {
	OpenAPI    string              `yaml:"openapi"`
	Info       InfoObject          `yaml:"info"`
	Servers    []ServerObject      `yaml:"servers"`
	Paths      map[string]PathItem `yaml:"paths"`
	Components ComponentsObject    `yaml:"components"`
	Tags       []TagObject         `yaml:"tags"`
}

// InfoObject contains API metadata.
type InfoObject struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
}

// ServerObject defines an API server.
type ServerObject struct {
	URL         string `yaml:"url"`
	Description string `yaml:"description"`
}

// ComponentsObject holds reusable objects.
type ComponentsObject struct {
	Schemas map[string]any `yaml:"schemas"`
}

// TagObject defines an API tag.
type TagObject struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// PathItem describes operations available on a path.
type PathItem struct {
	Get    *Operation `yaml:"get,omitempty"`
	Post   *Operation `yaml:"post,omitempty"`
	Put    *Operation `yaml:"put,omitempty"`
	Delete *Operation `yaml:"delete,omitempty"`
}

// Operation describes a single API operation.
type Operation struct {
	Summary     string              `yaml:"summary"`
	Tags        []string            `yaml:"tags,omitempty"`
	Parameters  []Parameter         `yaml:"parameters,omitempty"`
	RequestBody *RequestBody        `yaml:"requestBody,omitempty"`
	Responses   map[string]Response `yaml:"responses"`
}

// Parameter describes an operation parameter.
type Parameter struct {
	Name        string    `yaml:"name"`
	In          string    `yaml:"in"`
	Required    bool      `yaml:"required,omitempty"`
	Description string    `yaml:"description,omitempty"`
	Schema      SchemaRef `yaml:"schema"`
}

// RequestBody describes a JSON request body.
type RequestBody struct {
	Required bool                 `yaml:"required"`
	Content  map[string]MediaType `yaml:"content"`
}

// Response describes an operation response.
type Response struct {
	Description string               `yaml:"description"`
	Content     map[string]MediaType `yaml:"content,omitempty"`
}

// MediaType describes a media type and schema.
type MediaType struct {
	Schema SchemaRef `yaml:"schema"`
}

// SchemaRef references a schema.
type SchemaRef struct {
	Ref   string     `yaml:"$ref,omitempty"`
	Type  string     `yaml:"type,omitempty"`
	Items *SchemaRef `yaml:"items,omitempty"`
}

// route is one documented endpoint. Body and Result name component schemas.
type route struct {
	Method  string
	Path    string
	Summary string
	Tag     string
	Params  []string
	Body    string
	Status  int
	Result  string
	Errors  []int

	// Query lists string query parameters.
	Query []string
	// Produces replaces the JSON success body with raw text media types.
	Produces []string
}

var routes = []route{
	{Method: http.MethodGet, Path: "/catalog", Summary: "List catalog components", Tag: "catalog", Status: 200, Result: "Catalog"},
	{Method: http.MethodPost, Path: "/documents", Summary: "Generate a document", Tag: "documents", Body: "GenerateRequest", Status: 201, Result: "Document", Errors: []int{400, 422, 502}},
	{Method: http.MethodGet, Path: "/documents", Summary: "List the owner's documents", Tag: "documents", Status: 200, Result: "DocumentList"},
	{Method: http.MethodGet, Path: "/documents/{id}", Summary: "Get a document", Tag: "documents", Params: []string{"id"}, Status: 200, Result: "Document", Errors: []int{404}},
	{Method: http.MethodPut, Path: "/documents/{id}", Summary: "Save an edited document as a new version", Tag: "documents", Params: []string{"id"}, Body: "Document", Status: 200, Result: "Document", Errors: []int{400, 404, 409, 422}},
	{Method: http.MethodGet, Path: "/documents/{id}/export", Summary: "Export a document as JSON, YAML or Markdown", Tag: "documents", Params: []string{"id"}, Query: []string{"format"}, Status: 200, Produces: exportMediaTypes(), Errors: []int{404, 422}},
	{Method: http.MethodDelete, Path: "/documents/{id}", Summary: "Delete a document with its history", Tag: "documents", Params: []string{"id"}, Status: 204, Errors: []int{404}},
	{Method: http.MethodPost, Path: "/documents/{id}/analyze", Summary: "Classify a chat message without applying it", Tag: "chat", Params: []string{"id"}, Body: "ChatRequest", Status: 200, Result: "Intent", Errors: []int{400, 404, 422}},
	{Method: http.MethodPost, Path: "/documents/{id}/chat", Summary: "Apply a chat message to a document", Tag: "chat", Params: []string{"id"}, Body: "ChatRequest", Status: 200, Result: "ChatResult", Errors: []int{400, 404, 422, 502}},
	{Method: http.MethodGet, Path: "/documents/{id}/chat", Summary: "List chat history", Tag: "chat", Params: []string{"id"}, Status: 200, Result: "ChatHistory", Errors: []int{404}},
	{Method: http.MethodPost, Path: "/documents/{id}/components/{component}/regenerate", Summary: "Regenerate one component", Tag: "chat", Params: []string{"id", "component"}, Body: "RegenerateRequest", Status: 200, Result: "ChatResult", Errors: []int{400, 404, 422, 502}},
	{Method: http.MethodGet, Path: "/documents/{id}/versions", Summary: "List stored versions", Tag: "versions", Params: []string{"id"}, Status: 200, Result: "VersionList", Errors: []int{404}},
	{Method: http.MethodGet, Path: "/documents/{id}/versions/{version}", Summary: "Get one version", Tag: "versions", Params: []string{"id", "version"}, Status: 200, Result: "Snapshot", Errors: []int{404, 422}},
	{Method: http.MethodPost, Path: "/profiles", Summary: "Create a learner profile", Tag: "profiles", Body: "Profile", Status: 201, Result: "Profile", Errors: []int{400, 409, 422}},
	{Method: http.MethodGet, Path: "/profiles", Summary: "List learner profiles, seeding the built-in ones", Tag: "profiles", Status: 200, Result: "ProfileList"},
	{Method: http.MethodGet, Path: "/profiles/{profileId}", Summary: "Get a learner profile", Tag: "profiles", Params: []string{"profileId"}, Status: 200, Result: "Profile", Errors: []int{404}},
	{Method: http.MethodPut, Path: "/profiles/{profileId}", Summary: "Update a learner profile", Tag: "profiles", Params: []string{"profileId"}, Body: "ProfileUpdate", Status: 200, Result: "Profile", Errors: []int{400, 404}},
	{Method: http.MethodDelete, Path: "/profiles/{profileId}", Summary: "Delete a learner profile", Tag: "profiles", Params: []string{"profileId"}, Status: 204, Errors: []int{404}},
}

var tags = []TagObject{
	{Name: "catalog", Description: "Component catalog of the configured domain"},
	{Name: "chat", Description: "Conversational updates"},
	{Name: "documents", Description: "Document generation and storage"},
	{Name: "profiles", Description: "Learner profiles embedded in prompts"},
	{Name: "versions", Description: "Stored document versions"},
}

var paramDescriptions = map[string]string{
	"id":        "Document ID",
	"component": "Component name from the catalog",
	"version":   "Version number",
	"profileId": "Profile name",
	"format":    "Export format: json, yaml or markdown (default json)",
}

// apiTypes are the Go types documented by reflection. Document and Catalog
// are built from the catalog instead.
var apiTypes = map[string]reflect.Type{
	"GenerateRequest":   reflect.TypeOf(GenerateRequest{}),
	"ChatRequest":       reflect.TypeOf(ChatRequest{}),
	"RegenerateRequest": reflect.TypeOf(RegenerateRequest{}),
	"ComponentInfo":     reflect.TypeOf(ComponentInfo{}),
	"Metadata":          reflect.TypeOf(document.Metadata{}),
	"Intent":            reflect.TypeOf(intent.Intent{}),
	"ChatEntry":         reflect.TypeOf(storage.ChatEntry{}),
	"Profile":           reflect.TypeOf(storage.Profile{}),
	"ProfileUpdate":     reflect.TypeOf(service.ProfileUpdate{}),
	"Error":             reflect.TypeOf(errorResponse{}),
}

// BuildOpenAPI describes the API for a catalog. Document values carry one
// property per component holding that component's JSON Schema.
func BuildOpenAPI(cat *catalog.Catalog, version string) (OpenAPIDocument, error) {
	schemas := make(map[string]any, len(apiTypes)+4)
	for name, t := range apiTypes {
		schemas[name] = schemaFromType(t)
	}

	docSchema, err := documentSchema(cat)
	if err != nil {
		return OpenAPIDocument{}, err
	}
	schemas["Document"] = docSchema
	schemas["Catalog"] = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"domain":     map[string]any{"type": "string"},
			"components": map[string]any{"type": "array", "items": map[string]any{"$ref": schemaPrefix + "ComponentInfo"}},
		},
	}
	schemas["DocumentList"] = listSchema("documents", "Metadata")
	schemas["ChatHistory"] = listSchema("entries", "ChatEntry")
	schemas["ProfileList"] = listSchema("profiles", "Profile")
	schemas["VersionList"] = listSchema("versions", "Snapshot")
	schemas["Snapshot"] = withDocument(schemaFromType(reflect.TypeOf(document.Snapshot{})))
	schemas["ChatResult"] = withDocument(schemaFromType(reflect.TypeOf(service.ChatResult{})))

	paths := make(map[string]PathItem)
	for _, rt := range routes {
		path := "/api/v1" + rt.Path
		item := paths[path]
		op := rt.operation()
		switch rt.Method {
		case http.MethodGet:
			item.Get = op
		case http.MethodPost:
			item.Post = op
		case http.MethodPut:
			item.Put = op
		case http.MethodDelete:
			item.Delete = op
		}
		paths[path] = item
	}

	return OpenAPIDocument{
		OpenAPI: "3.0.3",
		Info: InfoObject{
			Title:       fmt.Sprintf("Semplan %s API", cat.Domain()),
			Description: "HTTP API for generating " + cat.Domain() + " plans and refining them through chat",
			Version:     version,
		},
		Servers: []ServerObject{
			{URL: "http://localhost:8080", Description: "Development server"},
		},
		Paths:      paths,
		Components: ComponentsObject{Schemas: schemas},
		Tags:       tags,
	}, nil
}

// MarshalOpenAPI renders the document as YAML.
func MarshalOpenAPI(doc OpenAPIDocument) ([]byte, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return data, nil
}

const schemaPrefix = "#/components/schemas/"

func (rt route) operation() *Operation {
	op := &Operation{
		Summary:   rt.Summary,
		Tags:      []string{rt.Tag},
		Responses: make(map[string]Response),
	}
	op.Parameters = append(op.Parameters, Parameter{
		Name:        OwnerHeader,
		In:          "header",
		Required:    rt.Tag != "catalog",
		Description: "Owner of the documents and profiles",
		Schema:      SchemaRef{Type: "string"},
	})
	for _, p := range rt.Params {
		typ := "string"
		if p == "version" {
			typ = "integer"
		}
		op.Parameters = append(op.Parameters, Parameter{
			Name:        p,
			In:          "path",
			Required:    true,
			Description: paramDescriptions[p],
			Schema:      SchemaRef{Type: typ},
		})
	}
	for _, q := range rt.Query {
		op.Parameters = append(op.Parameters, Parameter{
			Name:        q,
			In:          "query",
			Description: paramDescriptions[q],
			Schema:      SchemaRef{Type: "string"},
		})
	}
	if rt.Body != "" {
		op.RequestBody = &RequestBody{
			Required: true,
			Content:  map[string]MediaType{"application/json": {Schema: SchemaRef{Ref: schemaPrefix + rt.Body}}},
		}
	}

	ok := Response{Description: http.StatusText(rt.Status)}
	if rt.Result != "" {
		ok.Content = map[string]MediaType{"application/json": {Schema: SchemaRef{Ref: schemaPrefix + rt.Result}}}
	}
	if len(rt.Produces) > 0 {
		ok.Content = make(map[string]MediaType, len(rt.Produces))
		for _, mime := range rt.Produces {
			ok.Content[mime] = MediaType{Schema: SchemaRef{Type: "string"}}
		}
	}
	op.Responses[fmt.Sprint(rt.Status)] = ok

	errs := append([]int{}, rt.Errors...)
	if rt.Tag != "catalog" {
		errs = append(errs, http.StatusUnauthorized)
	}
	errs = append(errs, http.StatusInternalServerError)
	for _, code := range errs {
		op.Responses[fmt.Sprint(code)] = Response{
			Description: http.StatusText(code),
			Content:     map[string]MediaType{"application/json": {Schema: SchemaRef{Ref: schemaPrefix + "Error"}}},
		}
	}
	return op
}

// exportMediaTypes lists the MIME types of every export format.
func exportMediaTypes() []string {
	var out []string
	for _, name := range export.Formats() {
		info, _ := export.GetFormatInfo(export.Format(name))
		out = append(out, info.MIMEType)
	}
	return out
}

// listSchema is an object holding one array of item under key.
func listSchema(key, item string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			key: map[string]any{"type": "array", "items": map[string]any{"$ref": schemaPrefix + item}},
		},
		"required": []string{key},
	}
}

// documentSchema is the flat document form: metadata plus one property per
// catalog component.
func documentSchema(cat *catalog.Catalog) (map[string]any, error) {
	properties := map[string]any{
		document.MetadataKey: map[string]any{"$ref": schemaPrefix + "Metadata"},
	}
	for _, name := range cat.Components() {
		spec, err := cat.SpecFor(name)
		if err != nil {
			return nil, err
		}
		var schema map[string]any
		if err := json.Unmarshal(spec.Schema.JSON(), &schema); err != nil {
			return nil, fmt.Errorf("component %s schema: %w", name, err)
		}
		if spec.Description != "" {
			schema["description"] = spec.Description
		}
		properties[name] = schema
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   []string{document.MetadataKey},
	}, nil
}

// withDocument points the "document" property at the catalog-built schema.
func withDocument(schema map[string]any) map[string]any {
	if props, ok := schema["properties"].(map[string]any); ok {
		if _, ok := props["document"]; ok {
			props["document"] = map[string]any{"$ref": schemaPrefix + "Document"}
		}
	}
	return schema
}

// schemaFromType generates a JSON Schema from a reflect.Type.
func schemaFromType(t reflect.Type) map[string]any {
	if t.Kind() == reflect.Ptr {
		schema := schemaFromType(t.Elem())
		schema["nullable"] = true
		return schema
	}

	switch t.Kind() {
	case reflect.String:
		return map[string]any{"type": "string"}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return map[string]any{"type": "integer"}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer", "minimum": 0}

	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}

	case reflect.Bool:
		return map[string]any{"type": "boolean"}

	case reflect.Struct:
		if t == reflect.TypeOf(time.Time{}) {
			return map[string]any{"type": "string", "format": "date-time"}
		}
		if t == reflect.TypeOf(document.Document{}) {
			return map[string]any{"$ref": schemaPrefix + "Document"}
		}
		return schemaFromStruct(t)

	case reflect.Slice:
		if t == reflect.TypeOf(json.RawMessage{}) {
			return map[string]any{"type": "object"}
		}
		return map[string]any{
			"type":  "array",
			"items": schemaFromType(t.Elem()),
		}

	case reflect.Map:
		return map[string]any{
			"type":                 "object",
			"additionalProperties": schemaFromType(t.Elem()),
		}

	case reflect.Interface:
		return map[string]any{}

	default:
		return map[string]any{"type": "string"}
	}
}

// schemaFromStruct generates a JSON Schema object definition from a struct type.
func schemaFromStruct(t reflect.Type) map[string]any {
	properties := make(map[string]any)
	var required []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}
		name, opts := parseJSONTag(jsonTag)
		if name == "" {
			name = field.Name
		}

		properties[name] = schemaFromType(field.Type)
		if !strings.Contains(opts, "omitempty") && field.Type.Kind() != reflect.Ptr {
			required = append(required, name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sort.Strings(required)
		schema["required"] = required
	}
	return schema
}

// parseJSONTag parses a json struct tag and returns the name and options.
func parseJSONTag(tag string) (name string, opts string) {
	if tag == "" {
		return "", ""
	}
	name, opts, _ = strings.Cut(tag, ",")
	return name, opts
}
