package server

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/yrest-dev/yrest/core/introspect"
	"github.com/yrest-dev/yrest/core/logger"
)

// XSchemer lets a model attach vendor extensions to its component
// schema, e.g. ui hints. Keys are emitted with the "x-" prefix.
type XSchemer interface {
	XSchema() map[string]any
}

// openapi serves GET /openapi with the projection of the introspection
// table.
func (s *Server) openapi(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.OpenAPI()); err != nil {
		logger.FromContext(r.Context()).Errorln("openapi write failed:", err)
	}
}

// OpenAPI projects the introspection table into an OpenAPI 3 document.
// The projection is pure: it reads only the table, the registry and the
// configuration, so two calls yield identical documents.
func (s *Server) OpenAPI() map[string]any {
	result := map[string]any{"openapi": "3.0.1"}

	if s.config.OAInfo != "" {
		var info any
		if err := json.Unmarshal([]byte(s.config.OAInfo), &info); err == nil {
			result["info"] = info
		} else {
			logger.Default().Warnln("unusable OA_INFO:", err)
		}
	}
	if s.config.OAServerDescription != "" {
		result["servers"] = []any{map[string]any{
			"url":         s.config.ServerName,
			"description": s.config.OAServerDescription,
		}}
	}

	params := map[string]any{}
	result["paths"] = s.oaPaths(params)

	components := map[string]any{
		"x-root":  s.rootType,
		"schemas": s.oaSchemas(),
	}
	if len(params) > 0 {
		components["parameters"] = params
	}
	result["components"] = components
	return result
}

func (s *Server) oaPaths(params map[string]any) map[string]any {
	paths := map[string]any{
		"/openapi": map[string]any{
			"get": map[string]any{
				"responses": map[string]any{
					"200": map[string]any{
						"description": "Returns the app's OpenAPI definition",
						"content": map[string]any{
							"application/json": map[string]any{
								"schema": map[string]any{"type": "object"},
							},
						},
					},
				},
			},
		},
	}

	names := make([]string, 0, len(s.table))
	for name := range s.table {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		typed := s.table[name]
		for _, route := range typed.Handlers {
			for _, url := range route.URLs {
				// factory urls are projected from the factory set below
				if strings.Contains(url, "/new/") {
					continue
				}
				s.oaOperation(paths, params, name, url, route)
			}
		}
		if len(typed.Factories) > 0 {
			s.oaFactories(paths, params, name, typed)
		}
	}
	return paths
}

func (s *Server) oaOperation(paths, params map[string]any, typeName, url string, route *introspect.Route) {
	op := map[string]any{}
	if pathed := strings.HasPrefix(url, "/{"); pathed {
		op["operationId"] = typeName + "/" + route.Name
		op["parameters"] = []any{oaPathParam(params, typeName)}
	} else {
		op["operationId"] = "Root/" + route.Name
	}

	if len(route.Produces) > 0 || len(route.CanCrash) > 0 {
		responses := map[string]any{}
		if len(route.Produces) > 0 {
			ok := map[string]any{}
			if route.Description != "" {
				ok["description"] = route.Description
			}
			// a union of variants documents its last member
			ok["content"] = oaContent(route.Produces[len(route.Produces)-1])
			responses["200"] = ok
		}
		for _, crash := range route.CanCrash {
			response := map[string]any{"content": oaContent(crash.Returns)}
			if crash.Description != "" {
				response["description"] = crash.Description
			}
			responses[fmt.Sprintf("%d", crash.Code)] = response
		}
		op["responses"] = responses
	}
	if route.Consumes != "" {
		op["requestBody"] = map[string]any{"content": oaContent(route.Consumes)}
	}

	entry, ok := paths[url].(map[string]any)
	if !ok {
		entry = map[string]any{}
		paths[url] = entry
	}
	entry[strings.ToLower(route.Verb)] = op
}

func (s *Server) oaFactories(paths, params map[string]any, typeName string, typed *introspect.Type) {
	okResult := oaContent("OkResult")
	errorMessage := oaContent("ErrorMessage")

	var urls []string
	if typeName == s.rootType {
		urls = append(urls, "/")
	}
	recursive := false
	for _, factory := range typed.Factories {
		if factory == typeName {
			recursive = true
		}
	}
	if typeName != s.rootType || recursive {
		urls = append(urls, fmt.Sprintf("/{%s_Path}/", typeName))
	}

	for _, factory := range typed.Factories {
		fact := strings.ToLower(factory)
		for _, url := range urls {
			op := map[string]any{}
			if strings.HasPrefix(url, "/{") {
				op["operationId"] = typeName + "/create_" + fact
				op["parameters"] = []any{oaPathParam(params, typeName)}
			} else {
				op["operationId"] = "Root/create_" + fact
			}
			op["requestBody"] = map[string]any{"content": oaContent(factory)}
			op["responses"] = map[string]any{
				"200": map[string]any{
					"description": fmt.Sprintf("Returns the data of the new %s", fact),
					"content":     okResult,
				},
				"400": map[string]any{
					"description": fmt.Sprintf("Returns the errors if the %s can't be created with the provided data", fact),
					"content":     errorMessage,
				},
				"401": map[string]any{
					"description": fmt.Sprintf("Returns Unauthorized if the actor is not allowed to perform the creation of the %s", fact),
					"content":     errorMessage,
				},
				"409": map[string]any{
					"description": "Returns an error if there is already a model with the same url",
					"content":     errorMessage,
				},
			}
			paths[url+"new/"+fact] = map[string]any{"post": op}
		}
	}
}

// oaSchemas returns the component schemas with the x-model annotation
// on child-list fields, the x-features composition chain on node types
// and the vendor extensions of XSchemer models.
func (s *Server) oaSchemas() map[string]any {
	schemas := s.registry.Schemas()
	for _, name := range s.registry.Names() {
		d, _ := s.registry.Lookup(name)
		schema, ok := schemas[name].(map[string]any)
		if !ok {
			continue
		}
		if d.IsNode() {
			schema["x-features"] = d.Features
		}
		if x, ok := d.New().(XSchemer); ok {
			for key, value := range x.XSchema() {
				schema["x-"+key] = value
			}
		}
		properties, ok := schema["properties"].(map[string]any)
		if !ok {
			continue
		}
		for _, field := range d.Fields {
			if field.Model == "" {
				continue
			}
			if property, ok := properties[field.Name].(map[string]any); ok {
				property["x-model"] = field.Model
			}
		}
	}

	// envelope models always travel, whether registered or not
	if _, ok := schemas["Ok"]; !ok {
		schemas["Ok"] = map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ok":   map[string]any{"type": "boolean"},
				"code": map[string]any{"type": "integer"},
			},
		}
	}
	if _, ok := schemas["OkResult"]; !ok {
		schemas["OkResult"] = map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ok":     map[string]any{"type": "boolean"},
				"code":   map[string]any{"type": "integer"},
				"result": map[string]any{"type": "object"},
			},
		}
	}
	if _, ok := schemas["ErrorMessage"]; !ok {
		schemas["ErrorMessage"] = map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ok":      map[string]any{"type": "boolean"},
				"code":    map[string]any{"type": "integer"},
				"message": map[string]any{"type": "string"},
			},
		}
	}
	return schemas
}

func oaPathParam(params map[string]any, typeName string) map[string]any {
	name := typeName + "_Path"
	if _, ok := params[name]; !ok {
		params[name] = map[string]any{
			"name":        name,
			"in":          "path",
			"description": fmt.Sprintf("The URL of the %s with out the first slash", typeName),
			"required":    true,
			"schema":      map[string]any{"type": "string"},
		}
	}
	return map[string]any{"$ref": "#/components/parameters/" + name}
}

func oaContent(model string) map[string]any {
	return map[string]any{
		"application/json": map[string]any{
			"schema": map[string]any{"$ref": "#/components/schemas/" + model},
		},
	}
}
