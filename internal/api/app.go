package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"
	"github.com/tbuckley/go-chat-gateway/internal/auth"
	"github.com/tbuckley/go-chat-gateway/internal/config"
	"github.com/tbuckley/go-chat-gateway/internal/database"
	"github.com/tbuckley/go-chat-gateway/internal/gateway"
	"github.com/tbuckley/go-chat-gateway/internal/stats"
)

type ChatApp struct {
	log            *log.Logger
	db             database.ChatRepository
	gw             *gateway.Gateway
	sessions       auth.SessionManager
	stats          stats.StatsProvider
	mux            *http.Server
	allowedOrigins []string
	// generateShortId mints room identifiers, replaceable in tests
	generateShortId func() (string, error)
}

func NewChatApp(mux *http.ServeMux, logger *log.Logger, gw *gateway.Gateway, db database.ChatRepository,
	sessions auth.SessionManager, su stats.StatsProvider, cfg *config.Config) *ChatApp {
	s := &ChatApp{
		log:             logger,
		db:              db,
		gw:              gw,
		sessions:        sessions,
		stats:           su,
		allowedOrigins:  cfg.AllowedOrigins,
		generateShortId: shortid.Generate,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.listRooms))
	mux.Handle("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
