package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mcdev12/flamingo/go/internal/game"
	"github.com/mcdev12/flamingo/go/internal/session"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// HealthStatus summarizes whether the session is usable
type HealthStatus struct {
	Healthy        bool      `json:"healthy"`
	Stage          string    `json:"stage"`
	Connection     string    `json:"connection"`
	FramesReceived int64     `json:"frames_received"`
	FramesDropped  int64     `json:"frames_dropped"`
	LastFrameTime  time.Time `json:"last_frame_time"`
	Errors         []string  `json:"errors"`
}

// StateResponse is the body of /state
type StateResponse struct {
	Session    session.Status `json:"session"`
	Connection string         `json:"connection"`
	Game       game.Record    `json:"game"`
}

// Server exposes the last published session status over HTTP for debugging
type Server struct {
	mu        sync.RWMutex
	status    session.Status
	published bool

	server *http.Server
}

func NewServer(addr string) *Server {
	s := &Server{}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Publish stores the latest status. It is meant to be passed to session.Subscribe.
func (s *Server) Publish(status session.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.published = true
}

func (s *Server) snapshot() (session.Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.published
}

// Handler returns the routes wrapped with CORS and h2c
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/metrics", s.handleMetrics)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}

// Check derives the health of the last published status
func (s *Server) Check() HealthStatus {
	status, ok := s.snapshot()
	health := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}
	if !ok {
		health.Healthy = false
		health.Errors = append(health.Errors, "no session status published yet")
		return health
	}

	health.Stage = string(status.Stage)
	health.Connection = status.Connection.String()
	health.FramesReceived = status.Stats.FramesReceived
	health.FramesDropped = status.Stats.FramesDropped
	health.LastFrameTime = status.Stats.LastFrameAt

	if !status.Connected() {
		health.Healthy = false
		health.Errors = append(health.Errors, "not connected")
	}
	if status.LastError != "" {
		health.Errors = append(health.Errors, status.LastError)
	}
	return health
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.Check()

	w.Header().Set("Content-Type", "application/json")
	if !health.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(health); err != nil {
		log.Error().Err(err).Msg("failed to write health response")
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	status, ok := s.snapshot()
	if !ok {
		http.Error(w, "no session status published yet", http.StatusServiceUnavailable)
		return
	}

	resp := StateResponse{
		Session:    status,
		Connection: status.Connection.String(),
		Game:       status.State.Record(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to write state response")
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	status, _ := s.snapshot()

	connected := 0
	if status.Connected() {
		connected = 1
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, `# HELP flamingo_connected Whether the session is connected
# TYPE flamingo_connected gauge
flamingo_connected %d

# HELP flamingo_frames_received_total Frames received from the server
# TYPE flamingo_frames_received_total counter
flamingo_frames_received_total %d

# HELP flamingo_frames_dropped_total Frames that could not be parsed
# TYPE flamingo_frames_dropped_total counter
flamingo_frames_dropped_total %d

# HELP flamingo_frames_sent_total Frames sent to the server
# TYPE flamingo_frames_sent_total counter
flamingo_frames_sent_total %d

# HELP flamingo_unknown_messages_total Messages of an unknown type
# TYPE flamingo_unknown_messages_total counter
flamingo_unknown_messages_total %d

# HELP flamingo_invalid_messages_total Messages with an invalid payload
# TYPE flamingo_invalid_messages_total counter
flamingo_invalid_messages_total %d

# HELP flamingo_rejected_messages_total Messages the game state rejected
# TYPE flamingo_rejected_messages_total counter
flamingo_rejected_messages_total %d

# HELP flamingo_disconnects_total Connections lost
# TYPE flamingo_disconnects_total counter
flamingo_disconnects_total %d
`,
		connected,
		status.Stats.FramesReceived,
		status.Stats.FramesDropped,
		status.Stats.FramesSent,
		status.Stats.UnknownKinds,
		status.Stats.InvalidPayloads,
		status.Stats.Rejected,
		status.Stats.Disconnects,
	)
}

// Run serves until ctx is cancelled, then shuts the server down
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("inspector starting")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown inspector: %w", err)
	}
	return nil
}
