package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"taskpilot/app/core/agent"
	"taskpilot/app/core/pipeline"
	"taskpilot/app/pkg/types"
)

const maxRequestBody = 1 << 20

// Server is the thin HTTP layer in front of the pipeline and the
// conversation agent.
type Server struct {
	port            int
	pipe            *pipeline.Pipeline
	conv            *agent.Agent
	statusProvider  func(context.Context) map[string]interface{}
	server          *http.Server
	shutdownTimeout time.Duration
}

func NewServer(port int, pipe *pipeline.Pipeline, conv *agent.Agent) *Server {
	return &Server{
		port:            port,
		pipe:            pipe,
		conv:            conv,
		shutdownTimeout: 5 * time.Second,
	}
}

// SetStatusProvider installs the callback that assembles the status
// payload (metrics, cache, ledger, breaker, jobs).
func (s *Server) SetStatusProvider(provider func(context.Context) map[string]interface{}) {
	s.statusProvider = provider
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/process", s.handleProcess)
	mux.HandleFunc("/api/v1/agent/message", s.handleAgentMessage)
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
	}()

	log.Printf("[HTTP] Listening on port %d...", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type processRequest struct {
	UserInput   string            `json:"user_input"`
	UserContext types.UserContext `json:"user_context"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req processRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := s.pipe.Process(r.Context(), req.UserInput, req.UserContext)
	writeJSON(w, http.StatusOK, resp)
}

type agentMessageRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type agentMessageResponse struct {
	Reply  string `json:"reply"`
	State  string `json:"state,omitempty"`
	TaskID string `json:"task_id,omitempty"`
}

func (s *Server) handleAgentMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req agentMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	reply, err := s.conv.HandleMessage(r.Context(), req.UserID, req.Text)
	if err != nil {
		log.Printf("[HTTP] agent message for %s failed: %v", req.UserID, err)
		writeError(w, http.StatusInternalServerError, "could not process the message")
		return
	}
	writeJSON(w, http.StatusOK, agentMessageResponse{
		Reply:  reply.Text,
		State:  reply.State,
		TaskID: reply.TaskID,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}

	payload := map[string]interface{}{"time": time.Now().Format(time.RFC3339)}
	if s.statusProvider != nil {
		for k, v := range s.statusProvider(r.Context()) {
			payload[k] = v
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func decodeBody(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(body) == 0 {
		return fmt.Errorf("request body is empty")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[HTTP] write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
