/*Package server is the HTTP surface of the yrest backend: it compiles
the introspection table into concrete routes, resolves request URLs to
tree nodes, authorizes calls against stored permission rules and wraps
every handler result in the uniform response envelope.

The introspection table and the schema registry are built once at boot
and are read-only afterwards; all per-request state lives in the
request context.
*/
package server

import (
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/yrest-dev/yrest/core"
	"github.com/yrest-dev/yrest/core/introspect"
	"github.com/yrest-dev/yrest/core/logger"
	"github.com/yrest-dev/yrest/core/registry"
)

// Configuration holds the environment-driven server settings.
type Configuration struct {
	JWTSecret           string `env:"JWT_SECRET,required" description:"the secret bearer tokens are signed with"`
	ServerName          string `env:"SERVER_NAME" description:"the public base url of this deployment"`
	Debug               bool   `env:"DEBUG,default=false" description:"include tracebacks in error responses"`
	DebugNotifications  bool   `env:"DEBUG_NOTIFICATIONS,default=false" description:"log mails instead of sending them"`
	MailServer          string `env:"MAIL_SERVER" description:"the SMTP host notifications are sent through"`
	MailPort            int    `env:"MAIL_PORT,default=25" description:"the SMTP port"`
	MailSender          string `env:"MAIL_SENDER" description:"the From address of notification mails"`
	MailArgs            string `env:"MAIL_ARGS" description:"optional SMTP arguments as JSON, e.g. {\"username\":...,\"password\":...}"`
	OAInfo              string `env:"OA_INFO" description:"the OpenAPI info object as JSON"`
	OAServerDescription string `env:"OA_SERVER_DESCRIPTION" description:"the OpenAPI server description"`
}

// Builder wires a Server.
type Builder struct {
	// Registry is the node schema registry. Mandatory.
	Registry *registry.Registry
	// Handlers is the handler set of all domain types. Mandatory.
	Handlers *introspect.Set
	// Store is the tree store. Mandatory.
	Store core.Store
	// Router is a mux router. Mandatory.
	Router *mux.Router
	// Root is the root model's type name. Mandatory.
	Root string
	// UserModel is the actor type name; defaults to "User".
	UserModel string
	// PermissionModel is the permission rule type name; defaults to
	// "Permission".
	PermissionModel string
	// Config is the environment configuration.
	Config Configuration
}

// Server is the dispatcher. It implements core.Backend.
type Server struct {
	registry       *registry.Registry
	table          introspect.Table
	store          core.Store
	router         *mux.Router
	config         Configuration
	rootType       string
	userType       string
	permissionType string
	notifications  map[string]NotificationFunc
	mailer         *Mailer
}

var _ core.Backend = (*Server)(nil)

// New compiles the routes and realizes the server. It panics on broken
// wiring; introspection failures are wiring failures.
func New(b *Builder) *Server {
	if b.Registry == nil || b.Handlers == nil || b.Store == nil || b.Router == nil {
		panic("server: Registry, Handlers, Store and Router are mandatory")
	}
	if b.Root == "" {
		panic("server: Root is mandatory")
	}

	table, err := introspect.Introspect(b.Registry, b.Handlers, b.Root)
	if err != nil {
		panic(err)
	}

	s := &Server{
		registry:       b.Registry,
		table:          table,
		store:          b.Store,
		router:         b.Router,
		config:         b.Config,
		rootType:       b.Root,
		userType:       b.UserModel,
		permissionType: b.PermissionModel,
		notifications:  map[string]NotificationFunc{},
	}
	if s.userType == "" {
		s.userType = "User"
	}
	if s.permissionType == "" {
		s.permissionType = "Permission"
	}
	s.mailer = newMailer(s.config)

	logger.AddRequestID(s.router)
	s.handleCORS()
	s.handleRoutes()
	return s
}

// Store implements core.Backend.
func (s *Server) Store() core.Store { return s.store }

// Secret implements core.Backend.
func (s *Server) Secret() string { return s.config.JWTSecret }

// UserType implements core.Backend.
func (s *Server) UserType() string { return s.userType }

// Debug implements core.Backend.
func (s *Server) Debug() bool { return s.config.Debug }

// Table exposes the compiled introspection table, e.g. to the OpenAPI
// projection.
func (s *Server) Table() introspect.Table { return s.table }

// handleRoutes binds the table to concrete routes. Every verb gets a
// catch-all; the specific root routes only exist when the root model
// declares the corresponding handler.
func (s *Server) handleRoutes() {
	log := logger.Default()
	root := s.table[s.rootType]

	if _, ok := root.Handlers["call"]; ok {
		log.Debugln("handle route: / GET")
		s.router.HandleFunc("/", s.dispatcher).Methods(http.MethodGet)
	}
	if _, ok := root.Handlers["update"]; ok {
		log.Debugln("handle route: / PUT")
		s.router.HandleFunc("/", s.updater).Methods(http.MethodPut)
	}
	if _, ok := root.Handlers["remove"]; ok {
		log.Debugln("handle route: / DELETE")
		s.router.HandleFunc("/", s.remover).Methods(http.MethodDelete)
	}
	if _, ok := root.Handlers["auth"]; ok {
		log.Debugln("handle route: /auth POST")
		s.router.HandleFunc("/auth", s.auth).Methods(http.MethodPost)
	}
	if len(root.Factories) > 0 {
		log.Debugln("handle route: /new/{model} POST")
		s.router.HandleFunc("/new/{model}", s.factory).Methods(http.MethodPost)
	}

	log.Debugln("handle route: /openapi GET")
	s.router.HandleFunc("/openapi", s.openapi).Methods(http.MethodGet)

	nested := false
	for name, typed := range s.table {
		if len(typed.Factories) > 0 && name != s.rootType {
			nested = true
		}
	}
	if d, ok := s.registry.Lookup(s.rootType); ok && d.Recursive {
		nested = true
	}
	if nested {
		log.Debugln("handle route: /{path}/new/{model} POST")
		s.router.HandleFunc("/{path:.*}/new/{model}", s.factory).Methods(http.MethodPost)
	}

	log.Debugln("handle route: /{path} GET PUT DELETE")
	s.router.HandleFunc("/{path:.*}", s.dispatcher).Methods(http.MethodGet)
	s.router.HandleFunc("/{path:.*}", s.updater).Methods(http.MethodPut)
	s.router.HandleFunc("/{path:.*}", s.remover).Methods(http.MethodDelete)
}

// handleCORS sets the permissive CORS headers on every response and
// answers preflight requests with 204.
func (s *Server) handleCORS() {
	corsMiddleware := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Access-Control-Allow-Origin, Access-Control-Allow-Headers, Origin, X-Requested-With, Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				logger.FromContext(r.Context()).Debugln("preflight for", r.URL.Path)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
	s.router.Use(corsMiddleware)
	s.router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// reached only when the middleware chain is bypassed
		w.WriteHeader(http.StatusNoContent)
	})
}

// requestPath rebuilds the addressed url from the catch-all variable.
func requestPath(r *http.Request) string {
	return "/" + mux.Vars(r)["path"]
}

func muxVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

// member extracts the trailing handler name from the request path,
// given the resolved node.
func member(path string, url string) string {
	if url == "/" {
		return strings.TrimPrefix(path, "/")
	}
	rest := strings.TrimPrefix(path, url)
	return strings.TrimPrefix(rest, "/")
}

// decodeBody validates the request body against the consumed model's
// schema and decodes it into a fresh instance.
func (s *Server) decodeBody(r *http.Request, consumes string) (any, error) {
	if r.Body == nil {
		return nil, core.Errorf(core.KindValidation, "Data must be provided")
	}
	defer r.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, core.Errorf(core.KindValidation, "Data must be provided")
	}
	if err := s.registry.Validate(consumes, raw); err != nil {
		return nil, err
	}
	d, _ := s.registry.Lookup(consumes)
	consume := d.New()
	if err := json.Unmarshal(raw, consume); err != nil {
		return nil, core.Errorf(core.KindValidation, "Validation error: %v", err)
	}
	return consume, nil
}
