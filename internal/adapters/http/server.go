// Package http exposes the capability registry over the SSE transport:
// clients open a stream on /sse, post JSON-RPC envelopes on /message, and
// receive replies as events on their own stream.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	mcptelegram "github.com/1F47E/mcp-telegram"
	"github.com/1F47E/mcp-telegram/internal/capability"
	"github.com/1F47E/mcp-telegram/internal/jsonrpc"
	"github.com/1F47E/mcp-telegram/internal/metrics"
	"github.com/1F47E/mcp-telegram/internal/notifier"
	"github.com/1F47E/mcp-telegram/internal/session"
)

const (
	keepAliveInterval = 15 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Server wires the session registry and the capability registry into the
// HTTP endpoints.
type Server struct {
	capabilities *capability.Registry
	sessions     *session.Registry
	metrics      *metrics.Metrics
	log          *slog.Logger
}

// NewServer creates the SSE transport server.
func NewServer(capabilities *capability.Registry, sessions *session.Registry, m *metrics.Metrics, log *slog.Logger) *Server {
	return &Server{
		capabilities: capabilities,
		sessions:     sessions,
		metrics:      m,
		log:          log.With("component", "http"),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/", s.handleInfo)
	r.Get("/sse", s.handleSSE)
	r.Post("/message", s.handleMessage)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	return r
}

// Serve runs the listener until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)

	go func() {
		s.log.Info("server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.log.Info("shutdown signal received, shutting down server")
		s.sessions.CloseAll()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleInfo reports static server metadata; health probe target.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    mcptelegram.Name,
		"version": mcptelegram.Version,
		"endpoints": map[string]string{
			"sse":     "/sse",
			"message": "/message",
		},
	})
}

// handleSSE registers a new session and streams its events until the client
// disconnects or the server shuts down.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sess := s.sessions.Open()
	s.metrics.SessionOpened()
	defer func() {
		s.sessions.Close(sess.ID)
		s.metrics.SessionClosed()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// The first frame tells the client where to post its requests and binds
	// replies to this session.
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", s.messageEndpoint(r, sess.ID))
	flusher.Flush()

	s.log.Info("new SSE connection", "session_id", sess.ID)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sess.Events():
			if !open {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, ev.Data)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) messageEndpoint(r *http.Request, sessionID string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/message?sessionId=%s", scheme, r.Host, sessionID)
}

// handleMessage accepts one JSON-RPC request scoped to an open session. The
// HTTP response only acknowledges ingestion; the actual reply is pushed on
// the session stream once dispatch completes.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	sess, ok := s.sessions.Get(sessionID)
	if !ok || sess.Closed() {
		http.Error(w, "invalid session ID", http.StatusBadRequest)
		return
	}

	var req jsonrpc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON-RPC request", http.StatusBadRequest)
		return
	}

	// One task per request; dispatch is not serialized, replies are pushed
	// in completion order. The request outlives this handler.
	go s.dispatch(context.WithoutCancel(r.Context()), sess, &req)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) dispatch(ctx context.Context, sess *session.Session, req *jsonrpc.Request) {
	resp := s.route(ctx, req)
	if resp == nil {
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("failed to encode reply", "error", err, "session_id", sess.ID)
		return
	}
	if !sess.Push(session.Event{Name: "message", Data: string(data)}) {
		s.log.Warn("reply dropped, session gone", "session_id", sess.ID, "method", req.Method)
	}
}

// route maps one JSON-RPC request to its reply. A nil return means no reply
// is expected (notifications).
func (s *Server) route(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	switch req.Method {
	case "initialize":
		return jsonrpc.NewResponse(req.ID, map[string]any{
			"protocolVersion": mcptelegram.ProtocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    mcptelegram.Name,
				"version": mcptelegram.Version,
			},
		})

	case "notifications/initialized":
		return nil

	case "tools/list":
		return jsonrpc.NewResponse(req.ID, map[string]any{
			"tools": s.capabilities.List(),
		})

	case "tools/call":
		return s.routeToolCall(ctx, req)

	default:
		return jsonrpc.NewError(req.ID, jsonrpc.CodeMethodNotFound,
			fmt.Sprintf("Method not found: %s", req.Method))
	}
}

func (s *Server) routeToolCall(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonrpc.NewError(req.ID, jsonrpc.CodeInvalidParams, "malformed tools/call params")
		}
	}

	result, err := s.capabilities.Dispatch(ctx, params.Name, params.Arguments)
	if err != nil {
		return jsonrpc.NewError(req.ID, errorCode(err), errorMessage(err))
	}

	envelope, err := toolContent(result)
	if err != nil {
		return jsonrpc.NewError(req.ID, jsonrpc.CodeInternalError, err.Error())
	}
	return jsonrpc.NewResponse(req.ID, envelope)
}

// toolContent wraps a dispatch payload in the MCP tools/call content shape.
func toolContent(payload any) (any, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": string(data)},
		},
	}, nil
}

func errorCode(err error) int {
	switch {
	case errors.Is(err, capability.ErrUnknownCapability),
		errors.Is(err, capability.ErrInvalidArguments):
		return jsonrpc.CodeInvalidParams
	default:
		return jsonrpc.CodeInternalError
	}
}

// errorMessage prefers the provider's own description over Go error chains.
func errorMessage(err error) string {
	var sendErr *notifier.SendError
	if errors.As(err, &sendErr) {
		return sendErr.Description
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Debug("response encode failed", "err", err)
	}
}
