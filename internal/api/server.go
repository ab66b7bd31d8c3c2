package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"pepeearn/internal/middleware"
	"pepeearn/internal/session"
	"pepeearn/internal/telegram"
)

// DevIdentity is the user logged in without initData in development mode.
var DevIdentity = telegram.Identity{ID: "1977550186", FirstName: "Developer", Username: "dev"}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Options struct {
	Sessions *session.Registry
	Auth     *middleware.Auth
	DB       Pinger

	BotToken       string
	InitDataMaxAge time.Duration
	DevMode        bool

	// Heartbeat is the interval of keep-alive comments on event streams.
	Heartbeat time.Duration
	Logger    *zap.Logger
}

type Server struct {
	sessions       *session.Registry
	auth           *middleware.Auth
	db             Pinger
	botToken       string
	initDataMaxAge time.Duration
	devMode        bool
	heartbeat      time.Duration
	router         *chi.Mux
	logger         *zap.Logger
}

func NewServer(o Options) *Server {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = 25 * time.Second
	}
	s := &Server{
		sessions:       o.Sessions,
		auth:           o.Auth,
		db:             o.DB,
		botToken:       o.BotToken,
		initDataMaxAge: o.InitDataMaxAge,
		devMode:        o.DevMode,
		heartbeat:      o.Heartbeat,
		logger:         o.Logger,
	}
	s.router = s.RegisterRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// session returns the caller's open session. Sessions lost to a restart are
// reopened from the token claims.
func (s *Server) session(r *http.Request) (*session.Session, error) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return nil, errUnauthenticated
	}
	if sess, ok := s.sessions.Get(claims.UserID); ok {
		return sess, nil
	}
	return s.sessions.Open(r.Context(), telegram.Identity{
		ID:        claims.UserID,
		FirstName: claims.FirstName,
		Username:  claims.Username,
	})
}
