/*Package introspect builds the routing table of the backend.

Domain types register their handlers explicitly on a Set; at startup the
engine walks the type graph from the root through the child-list fields
and classifies every handler by its name and contract into a verb and
its URL templates. The resulting table is a pure function of the
registered types and handlers: running it twice yields identical tables.
*/
package introspect

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/yrest-dev/yrest/core"
	"github.com/yrest-dev/yrest/core/registry"
	"github.com/yrest-dev/yrest/core/tree"
)

// Call carries everything a handler may consume: the raw request, the
// resolved node, the actor resolved from the bearer token (nil when
// anonymous), the decoded body for consuming handlers and the server
// context.
type Call struct {
	Request *http.Request
	App     core.Backend
	Node    tree.Node
	Actor   tree.Node
	Consume any
}

// HandlerFunc is the uniform handler contract. The returned value may
// be a node, a list, a core.Result or any JSON-encodable payload.
type HandlerFunc func(ctx context.Context, call *Call) (any, error)

// Crash describes a declared recoverable failure of a handler.
type Crash struct {
	// Returns names the model of the error body.
	Returns string
	// Code is the HTTP status.
	Code int
	// Description documents the failure for the OpenAPI projection.
	Description string
}

var crashDescriptions = map[int]string{
	http.StatusBadRequest:   "Returns the validation errors",
	http.StatusUnauthorized: "Raises if the actor has not enough privileges",
	http.StatusNotFound:     "Raises when not found",
}

// Crashes declares recoverable error kinds with their default codes,
// descriptions and the ErrorMessage body.
func Crashes(kinds ...core.Kind) map[string]Crash {
	result := make(map[string]Crash, len(kinds))
	for _, kind := range kinds {
		code := kind.Status()
		result[string(kind)] = Crash{
			Returns:     "ErrorMessage",
			Code:        code,
			Description: crashDescriptions[code],
		}
	}
	return result
}

// Handler is a registered handler before classification.
type Handler struct {
	// Func is invoked by the dispatcher.
	Func HandlerFunc
	// Description feeds the 200 response description.
	Description string
	// Consumes names the request body model, empty for none.
	Consumes string
	// Produces names the 200 response model(s).
	Produces []string
	// Actor is set when the handler wants the resolved actor.
	Actor bool
	// CanCrash declares the recoverable failures.
	CanCrash map[string]Crash
}

// Set collects handler registrations per type name.
type Set struct {
	handlers map[string]map[string]*Handler
}

// NewSet creates an empty handler set.
func NewSet() *Set {
	return &Set{handlers: map[string]map[string]*Handler{}}
}

// Handle registers a handler under its member name. "index" is the GET
// collection/detail entry, "update" the default PUT target, "remove"
// the DELETE target, "create_<model>" a factory and "auth" the token
// exchange; everything else is a plain member route.
func (s *Set) Handle(typeName, name string, h *Handler) *Set {
	if h.Func == nil {
		panic(fmt.Sprintf("introspect: %s.%s registered without a function", typeName, name))
	}
	typed, ok := s.handlers[typeName]
	if !ok {
		typed = map[string]*Handler{}
		s.handlers[typeName] = typed
	}
	typed[name] = h
	return s
}

// Route is a classified handler.
type Route struct {
	Name        string
	Verb        string
	URLs        []string
	Consumes    string
	Produces    []string
	Actor       bool
	Description string
	CanCrash    map[string]Crash
	Handler     *Handler
}

// Type is the introspection result for one type: its routes keyed by
// member name ("call" for index) and the child types it can fabricate.
type Type struct {
	Handlers  map[string]*Route
	Factories []string
}

// Table maps type names to their introspection results.
type Table map[string]*Type

// Handler resolves a member name on a type, substituting "call" for
// "index".
func (t Table) Handler(typeName, member string) (*Route, bool) {
	typed, ok := t[typeName]
	if !ok {
		return nil, false
	}
	if member == "index" {
		member = "call"
	}
	route, ok := typed.Handlers[member]
	return route, ok
}

// Introspect walks the type graph breadth-first from the root type,
// deduplicating by type, and classifies every registered handler.
func Introspect(reg *registry.Registry, set *Set, rootType string) (Table, error) {
	root, ok := reg.Lookup(rootType)
	if !ok {
		return nil, fmt.Errorf("introspect: root type %q is not registered", rootType)
	}

	table := Table{}
	queue := []*registry.Descriptor{root}
	seen := map[string]bool{rootType: true}

	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]

		typed, err := analyze(reg, set, d, d.Name == rootType)
		if err != nil {
			return nil, err
		}
		table[d.Name] = typed

		for _, cf := range d.ChildFields {
			typed.Factories = appendUnique(typed.Factories, cf.Model)
			child, ok := reg.Lookup(cf.Model)
			if !ok {
				return nil, fmt.Errorf("introspect: %s.%s references unregistered type %q", d.Name, cf.Name, cf.Model)
			}
			if !seen[child.Name] {
				seen[child.Name] = true
				queue = append(queue, child)
			}
		}
	}
	return table, nil
}

func analyze(reg *registry.Registry, set *Set, d *registry.Descriptor, isRoot bool) (*Type, error) {
	typed := &Type{Handlers: map[string]*Route{}}

	names := make([]string, 0, len(set.handlers[d.Name]))
	for name := range set.handlers[d.Name] {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		h := set.handlers[d.Name][name]
		if h.Consumes != "" {
			if _, ok := reg.Lookup(h.Consumes); !ok {
				return nil, fmt.Errorf("introspect: %s.%s consumes unregistered type %q", d.Name, name, h.Consumes)
			}
		}
		route := classify(d, name, h, isRoot)
		key := name
		if name == "index" {
			key = "call"
		}
		typed.Handlers[key] = route
	}
	return typed, nil
}

// classify derives the verb and URL templates of a handler from its
// name and body contract. Root templates without {Type_Path} are only
// emitted for the root type; templates with {Type_Path} for every
// non-root type, and for a recursive root as well.
func classify(d *registry.Descriptor, name string, h *Handler, isRoot bool) *Route {
	route := &Route{
		Name:        name,
		Consumes:    h.Consumes,
		Produces:    h.Produces,
		Actor:       h.Actor,
		Description: h.Description,
		CanCrash:    h.CanCrash,
		Handler:     h,
	}
	pathed := !isRoot || d.Recursive
	prefix := fmt.Sprintf("/{%s_Path}", d.Name)

	switch {
	case h.Consumes != "" && name == "create_"+strings.ToLower(h.Consumes):
		route.Verb = http.MethodPost
		consumed := strings.ToLower(h.Consumes)
		if isRoot {
			route.URLs = append(route.URLs, "/new/"+consumed)
		}
		if pathed {
			route.URLs = append(route.URLs, prefix+"/new/"+consumed)
		}
	case h.Consumes != "":
		if name == "auth" {
			route.Verb = http.MethodPost
		} else {
			route.Verb = http.MethodPut
		}
		if isRoot {
			route.URLs = append(route.URLs, "/"+name)
		}
		if pathed {
			route.URLs = append(route.URLs, prefix+"/"+name)
		}
	case name == "remove":
		route.Verb = http.MethodDelete
		if isRoot {
			route.URLs = append(route.URLs, "/")
		}
		if pathed {
			route.URLs = append(route.URLs, prefix+"/")
		}
	default:
		route.Verb = http.MethodGet
		member := "/" + name
		if name == "index" {
			member = "/"
		}
		if isRoot {
			route.URLs = append(route.URLs, member)
		}
		if pathed {
			if name == "index" {
				route.URLs = append(route.URLs, prefix+"/")
			} else {
				route.URLs = append(route.URLs, prefix+member)
			}
		}
	}
	return route
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
