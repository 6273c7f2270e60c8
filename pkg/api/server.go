package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"seeker/pkg/agent"
	"seeker/pkg/memory"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for decoupled UI
	},
}

// ChatRequest is the body of the chat endpoints.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

// ChatResponse is the synchronous chat reply.
type ChatResponse struct {
	Response     string `json:"response"`
	MemoryLength int    `json:"memory_length"`
	Timestamp    string `json:"timestamp"`
}

// ClearRequest is the body of the clear endpoint.
type ClearRequest struct {
	ConversationID string `json:"conversation_id"`
}

// SafeConn serializes concurrent writes to one websocket connection.
type SafeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *SafeConn) WriteMessage(messageType int, data []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteMessage(messageType, data)
}

// Server is the consumer-facing HTTP surface: streaming and synchronous
// chat, memory inspection, and a websocket bridge for browser UIs.
type Server struct {
	controller *agent.Controller
	store      *memory.Store
	server     *http.Server
}

func NewServer(controller *agent.Controller, store *memory.Store, port int) *Server {
	s := &Server{controller: controller, store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/clear", s.handleClear)
	mux.HandleFunc("GET /api/memory", s.handleMemory)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /{$}", s.handleIndex)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Handler exposes the routing table for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

func (s *Server) Start() error {
	slog.Info("HTTP API listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleChatStream runs the agent loop and relays its event stream as
// newline-delimited JSON. Client disconnect cancels the run through the
// request context, so the exchange is not persisted.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	session := s.controller.Open(r.Context(), req.ConversationID, req.Message)
	defer session.Cancel()

	for ev := range session.Events() {
		line, err := json.Marshal(ev)
		if err != nil {
			slog.Error("Failed to marshal stream event", "error", err)
			continue
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	answer, length, err := s.controller.Query(r.Context(), req.ConversationID, req.Message)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Response:     answer,
		MemoryLength: length,
		Timestamp:    time.Now().Format("2006-01-02 15:04:05"),
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req ClearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = "default"
	}

	if err := s.store.Clear(req.ConversationID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("conversation %s cleared", req.ConversationID),
	})
}

func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		conversationID = "default"
	}

	turns, err := s.store.All(conversationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if turns == nil {
		turns = []memory.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"length":          len(turns),
		"messages":        turns,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"agent_ready": true,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "seeker",
		"endpoints": map[string]string{
			"POST /api/chat/stream": "streaming chat (NDJSON events)",
			"POST /api/chat":        "synchronous chat",
			"POST /api/clear":       "clear conversation history",
			"GET /api/memory":       "inspect conversation history",
			"GET /api/health":       "health check",
			"GET /ws":               "websocket chat",
		},
	})
}

// handleWebSocket bridges a browser connection onto the agent loop. Each
// inbound frame is one user message; events stream back as JSON frames.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WS upgrade failed", "error", err)
		return
	}
	conn := &SafeConn{Conn: rawConn}
	defer conn.Close()

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req ChatRequest
		if err := json.Unmarshal(msgBytes, &req); err != nil {
			// Plain text frame, treat it as the message itself.
			req = ChatRequest{Message: string(msgBytes)}
		}
		if req.ConversationID == "" {
			req.ConversationID = "ws_" + r.RemoteAddr
		}

		session := s.controller.Open(r.Context(), req.ConversationID, req.Message)
		for ev := range session.Events() {
			frame, err := json.Marshal(ev)
			if err != nil {
				slog.Error("Failed to marshal WS event", "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				session.Cancel()
				return
			}
		}
	}
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (ChatRequest, bool) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
