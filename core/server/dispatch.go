package server

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/yrest-dev/yrest/core"
	"github.com/yrest-dev/yrest/core/access"
	"github.com/yrest-dev/yrest/core/auth"
	"github.com/yrest-dev/yrest/core/introspect"
	"github.com/yrest-dev/yrest/core/logger"
	"github.com/yrest-dev/yrest/core/tree"
)

// dispatcher serves GET requests. The trailing path segment may be a
// member name, so resolution runs with tolerance 1.
func (s *Server) dispatcher(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	ctx := r.Context()
	path := requestPath(r)

	node, err := s.store.ResolvePath(ctx, path, 1)
	if err != nil {
		s.write(w, r, started, nil, nil, err)
		return
	}
	m := member(path, node.Tree().URL())
	if m == "" {
		m = "index"
	}

	route, ok := s.table.Handler(node.Tree().Type, m)
	if !ok || route.Verb != http.MethodGet {
		s.write(w, r, started, nil, nil, core.Errorf(core.KindNotFound, "%s not found", path))
		return
	}

	ctx, actor, err := s.authorize(ctx, r, node, m)
	if err != nil {
		s.write(w, r, started, route, nil, err)
		return
	}

	value, err := route.Handler.Func(ctx, &introspect.Call{
		Request: r, App: s, Node: node, Actor: actor,
	})
	s.write(w, r, started, route, value, err)
}

// updater serves PUT requests. The default member is "update"; a
// trailing segment addresses another consuming handler.
func (s *Server) updater(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	ctx := r.Context()
	path := requestPath(r)

	node, err := s.store.ResolvePath(ctx, path, 1)
	if err != nil {
		s.write(w, r, started, nil, nil, err)
		return
	}
	m := member(path, node.Tree().URL())
	if m == "" {
		m = "update"
	}

	route, ok := s.table.Handler(node.Tree().Type, m)
	if !ok || route.Verb != http.MethodPut {
		s.write(w, r, started, nil, nil, core.Errorf(core.KindNotFound, "%s not found", path))
		return
	}

	ctx, actor, err := s.authorize(ctx, r, node, m)
	if err != nil {
		s.write(w, r, started, route, nil, err)
		return
	}

	consume, err := s.decodeBody(r, route.Consumes)
	if err != nil {
		s.write(w, r, started, route, nil, err)
		return
	}

	value, err := route.Handler.Func(ctx, &introspect.Call{
		Request: r, App: s, Node: node, Actor: actor, Consume: consume,
	})
	s.write(w, r, started, route, value, err)
}

// remover serves DELETE requests. The url must match a node exactly;
// without an explicit "remove" handler the generic subtree delete runs
// and the actor's ownership role for the node is dropped.
func (s *Server) remover(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	ctx := r.Context()
	path := requestPath(r)

	node, err := s.store.ResolvePath(ctx, path, 0)
	if err != nil {
		s.write(w, r, started, nil, nil, err)
		return
	}

	ctx, actor, err := s.authorize(ctx, r, node, "remove")
	if err != nil {
		s.write(w, r, started, nil, nil, err)
		return
	}

	route, ok := s.table.Handler(node.Tree().Type, "remove")
	if ok {
		value, herr := route.Handler.Func(ctx, &introspect.Call{
			Request: r, App: s, Node: node, Actor: actor,
		})
		s.write(w, r, started, route, value, herr)
		return
	}

	url := node.Tree().URL()
	if err := s.store.Delete(ctx, node); err != nil {
		s.write(w, r, started, nil, nil, err)
		return
	}
	s.revokeOwnership(ctx, actor, url)
	s.write(w, r, started, nil, core.NewOk(), nil)
}

// factory serves POST /new/<model> and /{path}/new/<model>. Without an
// explicit create_<model> handler the generic child creation runs: the
// body is validated against the child schema, the child is inserted
// under the parent and the actor is granted ownership of it. The 201
// result carries the new node and the actor's updated roles.
func (s *Server) factory(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	ctx := r.Context()
	parentURL := requestPath(r)
	model := strings.ToLower(muxVar(r, "model"))

	parent, err := s.store.ResolvePath(ctx, parentURL, 0)
	if err != nil {
		s.write(w, r, started, nil, nil, err)
		return
	}

	typed, ok := s.table[parent.Tree().Type]
	if !ok {
		s.write(w, r, started, nil, nil, core.Errorf(core.KindNotFound, "%s not found", parentURL))
		return
	}
	childType := ""
	for _, name := range typed.Factories {
		if strings.ToLower(name) == model {
			childType = name
		}
	}
	if childType == "" {
		s.write(w, r, started, nil, nil,
			core.Errorf(core.KindNotFound, "%s can't create %s", parent.Tree().Type, model))
		return
	}
	m := "create_" + model

	ctx, actor, err := s.authorize(ctx, r, parent, m)
	if err != nil {
		s.write(w, r, started, nil, nil, err)
		return
	}

	if route, ok := s.table.Handler(parent.Tree().Type, m); ok {
		consume, derr := s.decodeBody(r, route.Consumes)
		if derr != nil {
			s.write(w, r, started, route, nil, derr)
			return
		}
		value, herr := route.Handler.Func(ctx, &introspect.Call{
			Request: r, App: s, Node: parent, Actor: actor, Consume: consume,
		})
		s.write(w, r, started, route, value, herr)
		return
	}

	consume, err := s.decodeBody(r, childType)
	if err != nil {
		s.write(w, r, started, nil, nil, err)
		return
	}
	child, ok := consume.(tree.Node)
	if !ok {
		s.write(w, r, started, nil, nil,
			core.Errorf(core.KindValidation, "%s is not a tree node", childType))
		return
	}
	child.Tree().Type = childType

	opt := core.ChildOptions{As: r.URL.Query().Get("as")}
	if err := s.store.CreateChild(ctx, parent, child, opt); err != nil {
		if core.IsDuplicateKey(err) {
			err = core.Errorf(core.KindDuplicateKey, "%s already exists @ %s",
				child.Tree().Slug, parent.Tree().URL())
		}
		s.write(w, r, started, nil, nil, err)
		return
	}
	roles := s.grantOwnership(ctx, actor, child)

	plain, err := tree.ToPlainMap(child)
	if err != nil {
		s.write(w, r, started, nil, nil, err)
		return
	}
	s.write(w, r, started, nil, core.NewOkResult(map[string]any{
		"object":      plain,
		"actor_roles": roles,
	}, http.StatusCreated), nil)
}

// auth serves POST /auth on the root model.
func (s *Server) auth(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	ctx := r.Context()

	node, err := s.store.ResolvePath(ctx, "/", 0)
	if err != nil {
		s.write(w, r, started, nil, nil, err)
		return
	}

	route, ok := s.table.Handler(node.Tree().Type, "auth")
	if !ok {
		s.write(w, r, started, nil, nil, core.Errorf(core.KindNotFound, "/auth not found"))
		return
	}

	ctx, actor, err := s.authorize(ctx, r, node, "auth")
	if err != nil {
		s.write(w, r, started, route, nil, err)
		return
	}

	consume, err := s.decodeBody(r, route.Consumes)
	if err != nil {
		s.write(w, r, started, route, nil, err)
		return
	}

	value, err := route.Handler.Func(ctx, &introspect.Call{
		Request: r, App: s, Node: node, Actor: actor, Consume: consume,
	})
	s.write(w, r, started, route, value, err)
}

// authorize loads the permission rule for (node.type, member), resolves
// the actor from the bearer token and asks the rule. The member name
// "index" authorizes as "call".
func (s *Server) authorize(ctx context.Context, r *http.Request, node tree.Node, member string) (context.Context, tree.Node, error) {
	if member == "index" {
		member = "call"
	}

	found, err := s.store.GetOne(ctx, s.permissionType, core.Query{
		Filter: map[string]any{"context": node.Tree().Type, "name": member},
	})
	if err != nil {
		return ctx, nil, err
	}

	actor, err := auth.TokenFromHeader(r.Header).Actor(ctx, s.store, s.config.JWTSecret, s.userType)
	if err != nil {
		return ctx, nil, err
	}
	if actor != nil {
		ctx, _ = logger.ContextWithActor(ctx, actor.Tree().URL())
	}

	if found == nil {
		return ctx, actor, core.Errorf(core.KindUnauthorized, "The actor has not enough privileges")
	}
	rule, ok := found.(access.Permission)
	if !ok {
		return ctx, actor, core.Errorf(core.KindInternal, "%s is not a permission rule", s.permissionType)
	}
	allowed, err := rule.Allows(ctx, actor, node)
	if err != nil {
		return ctx, actor, err
	}
	if !allowed {
		return ctx, actor, core.Errorf(core.KindUnauthorized, "The actor has not enough privileges")
	}
	return ctx, actor, nil
}

// grantOwnership appends the owner role for the new node to the actor's
// roles and returns the updated set. Anonymous creations and role-less
// actors stay untouched and yield nil.
func (s *Server) grantOwnership(ctx context.Context, actor, child tree.Node) []string {
	if actor == nil {
		return nil
	}
	roled, ok := actor.(access.Roled)
	if !ok {
		return nil
	}
	roles := append(roled.ActorRoles(), access.OwnerRole(child.Tree().URL()))
	if err := s.store.Update(ctx, actor, map[string]any{"roles": roles}); err != nil {
		logger.FromContext(ctx).Warnln("could not grant ownership:", err)
	}
	return roles
}

// revokeOwnership drops the owner role of a deleted node from the
// actor's roles. Actors that never owned the node are left alone.
func (s *Server) revokeOwnership(ctx context.Context, actor tree.Node, url string) {
	if actor == nil {
		return
	}
	roled, ok := actor.(access.Roled)
	if !ok {
		return
	}
	role := access.OwnerRole(url)
	owned := false
	kept := make([]string, 0, len(roled.ActorRoles()))
	for _, r := range roled.ActorRoles() {
		if r == role {
			owned = true
			continue
		}
		kept = append(kept, r)
	}
	if !owned {
		return
	}
	if err := s.store.Update(ctx, actor, map[string]any{"roles": kept}); err != nil {
		logger.FromContext(ctx).Warnln("could not revoke ownership:", err)
	}
}

// write wraps a handler outcome in the response envelope, appends the
// timing fields and sends it. pref_counter and process_time both carry
// the wall-clock elapsed seconds; per-request cpu time is not tracked
// in this runtime.
func (s *Server) write(w http.ResponseWriter, r *http.Request, started time.Time, route *introspect.Route, value any, err error) {
	var payload map[string]any
	if err != nil {
		payload = s.failure(r.Context(), route, err)
	} else {
		payload = s.success(r.Context(), value)
	}

	elapsed := time.Since(started).Seconds()
	payload["pref_counter"] = elapsed
	payload["process_time"] = elapsed

	code := http.StatusOK
	if c, ok := payload["code"].(int); ok {
		code = c
	} else if c, ok := payload["code"].(float64); ok {
		code = int(c)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if encodeErr := json.NewEncoder(w).Encode(payload); encodeErr != nil {
		logger.FromContext(r.Context()).Errorln("response write failed:", encodeErr)
	}
}

// success shapes a handler return value: nodes are flattened to plain
// maps, lists become OkListResult, auth tokens travel bare and Result
// values pass through with their own code.
func (s *Server) success(ctx context.Context, value any) map[string]any {
	switch v := value.(type) {
	case nil:
		return toMap(core.NewOk())
	case tree.Node:
		plain, err := tree.ToPlainMap(v)
		if err != nil {
			return s.failure(ctx, nil, err)
		}
		return toMap(core.NewOkResult(plain, http.StatusOK))
	case []tree.Node:
		plains := make([]map[string]any, 0, len(v))
		for _, n := range v {
			plain, err := tree.ToPlainMap(n)
			if err != nil {
				return s.failure(ctx, nil, err)
			}
			plains = append(plains, plain)
		}
		return toMap(core.NewOkListResult(plains, http.StatusOK))
	case *auth.AuthToken:
		return toMap(v)
	case core.Result:
		return toMap(v)
	default:
		return toMap(core.NewOkResult(v, http.StatusOK))
	}
}

// failure shapes an error. Declared crashes respond at their declared
// code; classified errors at their kind's code; anything else is a 500
// carrying the traceback in debug mode.
func (s *Server) failure(ctx context.Context, route *introspect.Route, err error) map[string]any {
	kind := core.KindOf(err)

	if route != nil {
		if crash, ok := route.CanCrash[string(kind)]; ok {
			return toMap(core.NewErrorMessage(err.Error(), crash.Code))
		}
	}
	if kind != core.KindInternal {
		return toMap(core.NewErrorMessage(err.Error(), kind.Status()))
	}

	trace := strings.Split(strings.TrimRight(string(debug.Stack()), "\n"), "\n")
	log := logger.FromContext(ctx)
	log.Errorln(err)
	for _, line := range trace {
		log.Errorln(line)
	}

	var message any = err.Error()
	if s.config.Debug {
		message = append([]string{err.Error()}, trace...)
	}
	return toMap(core.NewErrorMessage(message, http.StatusInternalServerError))
}

// toMap flattens any encodable value into the map the timing fields are
// appended to.
func toMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"ok": false, "code": http.StatusInternalServerError, "message": err.Error()}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{"ok": false, "code": http.StatusInternalServerError, "message": err.Error()}
	}
	return m
}
