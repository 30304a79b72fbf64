package api_test

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/semplan/api"
	"github.com/c360studio/semplan/catalog"
)

func TestBuildOpenAPI(t *testing.T) {
	def, err := catalog.Load("lesson")
	require.NoError(t, err)

	doc, err := api.BuildOpenAPI(def.Catalog, "1.2.3")
	require.NoError(t, err)

	assert.Equal(t, "3.0.3", doc.OpenAPI)
	assert.Equal(t, "1.2.3", doc.Info.Version)

	chat, ok := doc.Paths["/api/v1/documents/{id}/chat"]
	require.True(t, ok)
	require.NotNil(t, chat.Post)
	require.NotNil(t, chat.Get)
	assert.Equal(t, "#/components/schemas/ChatRequest", chat.Post.RequestBody.Content["application/json"].Schema.Ref)
	assert.Contains(t, chat.Post.Responses, "502")
	assert.Contains(t, chat.Post.Responses, "401")

	list := doc.Paths["/api/v1/documents"].Get
	require.NotNil(t, list)
	assert.Equal(t, "#/components/schemas/DocumentList", list.Responses["200"].Content["application/json"].Schema.Ref)
	assert.Contains(t, doc.Components.Schemas, "DocumentList")

	document, ok := doc.Components.Schemas["Document"].(map[string]any)
	require.True(t, ok)
	props := document["properties"].(map[string]any)
	assert.Contains(t, props, "metadata")
	for _, name := range def.Components() {
		assert.Contains(t, props, name)
	}

	exp := doc.Paths["/api/v1/documents/{id}/export"].Get
	require.NotNil(t, exp)
	assert.Contains(t, exp.Responses["200"].Content, "text/markdown; charset=utf-8")
	assert.Contains(t, exp.Responses, "422")
	var query []string
	for _, p := range exp.Parameters {
		if p.In == "query" {
			query = append(query, p.Name)
		}
	}
	assert.Equal(t, []string{"format"}, query)

	save := doc.Paths["/api/v1/documents/{id}"].Put
	require.NotNil(t, save)
	assert.Equal(t, "#/components/schemas/Document", save.RequestBody.Content["application/json"].Schema.Ref)
	assert.Contains(t, save.Responses, "409")

	profile := doc.Paths["/api/v1/profiles/{profileId}"]
	require.NotNil(t, profile.Get)
	require.NotNil(t, profile.Put)
	require.NotNil(t, profile.Delete)
	assert.Equal(t, "#/components/schemas/ProfileUpdate", profile.Put.RequestBody.Content["application/json"].Schema.Ref)
	assert.Contains(t, doc.Paths["/api/v1/profiles"].Post.Responses, "409")
	assert.Contains(t, doc.Components.Schemas, "ProfileList")
	profileSchema := doc.Components.Schemas["Profile"].(map[string]any)
	assert.Contains(t, profileSchema["properties"], "profileName")

	intent := doc.Components.Schemas["Intent"].(map[string]any)
	assert.Contains(t, intent["properties"], "requires_foundation_update")
}

func TestOpenAPIEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/v1/openapi.yaml")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Contains(t, doc["paths"], "/api/v1/documents/{id}/versions/{version}")
}
