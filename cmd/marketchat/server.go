package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"marketchat/internal/constants"
	"marketchat/internal/database"
	"marketchat/internal/middleware"
	"marketchat/internal/models"
	"marketchat/internal/session"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server exposes the session over a local HTTP API so UIs and tooling can
// drive the chat client.
type Server struct {
	router  *mux.Router
	logger  *logrus.Logger
	session *session.Session
	db      *database.Database
	cfg     *models.Config
	server  *http.Server
}

func NewServer(cfg *models.Config, sess *session.Session, db *database.Database, logger *logrus.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		session: sess,
		db:      db,
		cfg:     cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/session", s.handleSessionStatus()).Methods(http.MethodGet)
	api.HandleFunc("/session/connect", s.handleConnect()).Methods(http.MethodPost)
	api.HandleFunc("/session/disconnect", s.handleDisconnect()).Methods(http.MethodPost)
	api.HandleFunc("/session/check", s.handleCheckConnection()).Methods(http.MethodPost)
	api.HandleFunc("/session/ping", s.handlePing()).Methods(http.MethodPost)
	api.HandleFunc("/session/receiver", s.handleSetReceiver()).Methods(http.MethodPut)

	api.HandleFunc("/messages", s.handleListMessages()).Methods(http.MethodGet)
	api.HandleFunc("/messages", s.handleSendMessage()).Methods(http.MethodPost)
	api.HandleFunc("/messages", s.handleClearMessages()).Methods(http.MethodDelete)
	api.HandleFunc("/messages/{id}/retry", s.handleRetryMessage()).Methods(http.MethodPost)
	api.HandleFunc("/messages/read", s.handleMarkRead()).Methods(http.MethodPost)
	api.HandleFunc("/messages/history/{peerId}", s.handleHistory()).Methods(http.MethodGet)

	api.HandleFunc("/typing", s.handleTyping()).Methods(http.MethodPost)
	api.HandleFunc("/logs", s.handleLogs()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	port := s.cfg.Server.Port
	if port <= 0 {
		port = constants.DefaultServerPort
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.Infof("Starting server on port %d", port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			s.logger.WithError(err).Error("Failed to write health response")
		}
	}
}

func (s *Server) handleSessionStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.session.Status())
	}
}

func (s *Server) handleConnect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.session.Connect(context.Background())
		s.writeJSON(w, http.StatusAccepted, s.session.Status())
	}
}

func (s *Server) handleDisconnect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.session.Disconnect()
		s.writeJSON(w, http.StatusOK, s.session.Status())
	}
}

func (s *Server) handleCheckConnection() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.session.CheckConnection()
		s.writeJSON(w, http.StatusOK, s.session.Status())
	}
}

func (s *Server) handlePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.session.PingServer()
		s.writeJSON(w, http.StatusOK, s.session.Status())
	}
}

func (s *Server) handleSetReceiver() http.HandlerFunc {
	type request struct {
		ReceiverID models.PeerID `json:"receiverId"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ReceiverID.IsZero() {
			s.writeError(w, http.StatusBadRequest, "receiverId is required")
			return
		}
		s.session.SetReceiver(req.ReceiverID)
		s.writeJSON(w, http.StatusOK, s.session.Status())
	}
}

func (s *Server) handleListMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.session.Messages())
	}
}

func (s *Server) handleSendMessage() http.HandlerFunc {
	type request struct {
		Content string `json:"content"`
	}
	type response struct {
		ID     string `json:"id"`
		Queued bool   `json:"queued"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		id, err := s.session.SendMessage(req.Content)
		if err != nil {
			if id == "" {
				s.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			// accepted but queued after a transport failure
			s.writeJSON(w, http.StatusAccepted, response{ID: id, Queued: true})
			return
		}
		s.writeJSON(w, http.StatusCreated, response{ID: id, Queued: !s.session.Connected()})
	}
}

func (s *Server) handleClearMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.session.ClearMessages()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRetryMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := s.session.RetryMessage(id); err != nil {
			s.logger.WithError(err).WithField("message_id", id).Warn("Retry failed")
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleMarkRead() http.HandlerFunc {
	type request struct {
		SenderID models.PeerID `json:"senderId"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if r.Body != nil {
			// an empty or absent body means "mark everything from the
			// active receiver"
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		if req.SenderID.IsZero() {
			s.session.MarkAllAsRead()
		} else {
			s.session.MarkMessagesAsRead(req.SenderID)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.db == nil {
			s.writeError(w, http.StatusNotImplemented, "no database configured")
			return
		}
		peerID := mux.Vars(r)["peerId"]
		msgs, err := s.db.GetMessagesByPeer(r.Context(), s.cfg.User.ID, peerID)
		if err != nil {
			s.logger.WithError(err).Error("Failed to load message history")
			s.writeError(w, http.StatusInternalServerError, "failed to load history")
			return
		}
		s.writeJSON(w, http.StatusOK, msgs)
	}
}

func (s *Server) handleTyping() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.session.HandleTyping()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleLogs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.session.Logs())
	}
}
