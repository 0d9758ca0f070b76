// Package docs holds the static OpenAPI description of the HTTP API.
package docs

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed openapi.json
var OpenAPI []byte

// UIPage renders Swagger UI against the embedded document.
const UIPage = `<!doctype html>
<html>
<head>
  <meta charset="utf-8">
  <title>img2text API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>SwaggerUIBundle({url: "/docs/openapi.json", dom_id: "#swagger-ui"});</script>
</body>
</html>`

// Schema returns one component schema as a standalone JSON document.
func Schema(name string) ([]byte, error) {
	var doc struct {
		Components struct {
			Schemas map[string]json.RawMessage `json:"schemas"`
		} `json:"components"`
	}
	if err := json.Unmarshal(OpenAPI, &doc); err != nil {
		return nil, fmt.Errorf("parse openapi: %w", err)
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return nil, fmt.Errorf("schema %q not found", name)
	}
	return s, nil
}
