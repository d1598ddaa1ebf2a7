// Package devserver is a small in-process implementation of the chat service
// protocol. It stores history in memory or sqlite and answers with a
// pluggable Responder, so the client can be exercised without the real
// backend.
package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-go-golems/catchat/pkg/chat"
	"github.com/go-go-golems/catchat/pkg/chatclient"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Server serves GET /chat/history/{id} and POST /chat.
type Server struct {
	history   History
	responder Responder
	mux       *http.ServeMux
}

type Option func(*Server)

func WithResponder(r Responder) Option {
	return func(s *Server) {
		if r != nil {
			s.responder = r
		}
	}
}

func NewServer(history History, opts ...Option) (*Server, error) {
	if history == nil {
		return nil, errors.New("devserver: history store is nil")
	}
	s := &Server{
		history:   history,
		responder: EchoResponder{},
		mux:       http.NewServeMux(),
	}
	for _, o := range opts {
		o(s)
	}
	s.mux.HandleFunc("GET /chat/history/{id}", s.handleHistory)
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Browser clients call the service cross-origin without credentials.
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		http.Error(w, "missing conversation id", http.StatusBadRequest)
		return
	}
	msgs, err := s.history.List(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", id).Msg("list history failed")
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	if r.URL.Query().Get("showToolCalls") != "true" {
		for i := range msgs {
			msgs[i].ToolCalls = nil
		}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatclient.SendRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	body.ConversationID = strings.TrimSpace(body.ConversationID)
	if body.ConversationID == "" {
		http.Error(w, "missing conversationId", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		http.Error(w, "missing message", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	logger := log.With().Str("conversation_id", body.ConversationID).Logger()

	userMsg := chat.NewUserMessage(body.Message)
	userMsg.ID = uuid.NewString()
	if err := s.history.Append(ctx, body.ConversationID, userMsg); err != nil {
		logger.Error().Err(err).Msg("append user message failed")
		http.Error(w, "failed to store message", http.StatusInternalServerError)
		return
	}

	prior, err := s.history.List(ctx, body.ConversationID)
	if err != nil {
		logger.Error().Err(err).Msg("list history failed")
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	reply, err := s.responder.Respond(ctx, body.ConversationID, prior, body.Message)
	if err != nil {
		logger.Error().Err(err).Msg("responder failed")
		http.Error(w, "failed to produce a reply", http.StatusInternalServerError)
		return
	}
	if reply.Role == "" {
		reply.Role = chat.RoleAssistant
	}
	if reply.ID == "" {
		reply.ID = uuid.NewString()
	}
	if err := s.history.Append(ctx, body.ConversationID, reply); err != nil {
		logger.Error().Err(err).Msg("append reply failed")
		http.Error(w, "failed to store reply", http.StatusInternalServerError)
		return
	}
	logger.Info().Int("length", len(body.Message)).Msg("handled chat message")
	writeJSON(w, http.StatusOK, map[string]any{
		"conversationId": body.ConversationID,
		"id":             reply.ID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write json response")
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("dev server shutdown error")
			return err
		}
		log.Info().Msg("dev server shutdown complete")
		return nil
	})
	eg.Go(func() error {
		log.Info().Str("addr", addr).Msg("starting dev chat server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "dev server listen")
		}
		return nil
	})
	return eg.Wait()
}
