package server

import (
	"context"
	"net/http"

	"github.com/yrest-dev/yrest/core"
	"github.com/yrest-dev/yrest/core/logger"
)

// NotificationFunc reacts to a named server event, e.g. by sending a
// mail through the server's Mailer.
type NotificationFunc func(ctx context.Context, s *Server, r *http.Request, args map[string]any) error

// HandleNotification registers the reaction to a named event.
// Registration happens at boot, before the server serves requests.
func (s *Server) HandleNotification(name string, f NotificationFunc) *Server {
	s.notifications[name] = f
	return s
}

// Notify implements core.Notifier.
func (s *Server) Notify(ctx context.Context, r *http.Request, name string, args map[string]any) error {
	f, ok := s.notifications[name]
	if !ok {
		return core.Errorf(core.KindNotFound, "the server hasn't %s as notification", name)
	}
	logger.FromContext(ctx).Debugln("notify", name)
	return f(ctx, s, r, args)
}

// Mailer exposes the configured mailer to notification functions.
func (s *Server) Mailer() *Mailer { return s.mailer }
