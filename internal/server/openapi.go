package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
)

var (
	bearerScheme = map[string][]string{"bearerAuth": {}}
	apiKeyScheme = map[string][]string{"apiKeyAuth": {}}
)

func registerDocs(r chi.Router, basePath string) {
	page := []byte(docsPage(path.Join("/", basePath, "openapi.json")))
	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	})
}

// registerOpenAPI serves the document with the error envelope and security
// schemes filled in. It is rendered once, on first request, after every
// operation has been registered.
func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		doc  []byte
		err  error
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, _ *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			decorateOpenAPI(oas, path.Join("/", basePath, "health"))
			doc, err = json.Marshal(oas)
		})
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusInternalServerError, "", err.Error(), nil))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func decorateOpenAPI(oas *huma.OpenAPI, publicPath string) {
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{Type: "http", Scheme: "bearer", BearerFormat: "JWT"}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{Type: "apiKey", In: "header", Name: "X-Api-Key"}
	secured := []map[string][]string{bearerScheme, apiKeyScheme}
	oas.Security = secured

	errorResponse := &huma.Response{
		Description: "Error envelope",
		Content: map[string]*huma.MediaType{
			"application/json": {Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"}},
		},
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = errorResponse
			if route == publicPath {
				op.Security = []map[string][]string{}
			} else {
				op.Security = secured
			}
		}
	}
}

func docsPage(specURL string) string {
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <title>Giveaway API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css"/>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
  <script>SwaggerUIBundle({url: %q, dom_id: "#swagger-ui"});</script>
  <p>Send Authorization: Bearer &lt;token&gt; (gw token) or X-Api-Key (gw apikey create).</p>
</body>
</html>`, specURL)
}
