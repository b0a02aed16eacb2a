package server

import (
	"log/slog"
	"net/http"
	"time"

	"chirp/internal/app/registry"
	"chirp/internal/app/server/handlers"
	"chirp/internal/core/services"
	"chirp/pkg/middleware"
)

type Server struct {
	mux         *http.ServeMux
	log         *slog.Logger
	app         string
	addr        string
	authHandler *handlers.AuthHandler
	wsHandler   *handlers.WSHandler
	restHandler *handlers.RestHandler
	tokenSvc    *services.TokenService
}

func NewServer(
	log *slog.Logger,
	app string,
	addr string,
	userSvc *services.UserService,
	tokenSvc *services.TokenService,
	presenceSvc services.IPresenceService,
	cursorSvc services.ICursorService,
	callSvc services.ICallService,
	messageSvc services.IMessageService,
	hub *registry.Registry,
) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		log:         log,
		app:         app,
		addr:        addr,
		authHandler: handlers.NewAuthHandler(userSvc, tokenSvc),
		wsHandler:   handlers.NewWSHandler(hub, cursorSvc, callSvc, messageSvc),
		restHandler: handlers.NewRestHandler(callSvc, presenceSvc, messageSvc, userSvc),
		tokenSvc:    tokenSvc,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	auth := middleware.AuthMiddleware(s.tokenSvc)

	// Public
	s.mux.HandleFunc("POST /auth/register", s.authHandler.RequestOTP)
	s.mux.HandleFunc("POST /auth/verify", s.authHandler.VerifyOTP)

	// Protected
	s.mux.Handle("/ws", auth(http.HandlerFunc(s.wsHandler.Handler)))
	s.mux.Handle("GET /calls/{id}/status", auth(http.HandlerFunc(s.restHandler.CallStatus)))
	s.mux.Handle("GET /presence", auth(http.HandlerFunc(s.restHandler.Presence)))
	s.mux.Handle("GET /conversations", auth(http.HandlerFunc(s.restHandler.ListConversations)))
	s.mux.Handle("GET /conversations/{id}/messages", auth(http.HandlerFunc(s.restHandler.ListMessages)))
	s.mux.Handle("POST /chat-requests", auth(http.HandlerFunc(s.restHandler.CreateChatRequest)))
	s.mux.Handle("POST /chat-requests/{id}/accept", auth(http.HandlerFunc(s.restHandler.AcceptChatRequest)))
	s.mux.Handle("POST /chat-requests/{id}/decline", auth(http.HandlerFunc(s.restHandler.DeclineChatRequest)))
	s.mux.Handle("PATCH /users/me", auth(http.HandlerFunc(s.restHandler.UpdateProfile)))
	s.mux.Handle("GET /users", auth(http.HandlerFunc(s.restHandler.GetUsers)))
}

func (s *Server) Start() error {
	handler := middleware.TracerMiddleware(s.app)(middleware.RequestLogger(s.log)(s.mux))
	server := &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.log.Info("server - starting", "addr", s.addr)
	return server.ListenAndServe()
}
