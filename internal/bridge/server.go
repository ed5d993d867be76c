package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/brodvik/cabinheat/internal/heater"
	"github.com/brodvik/cabinheat/internal/logging"
)

// Controller is the coordinator surface the bridge exposes over HTTP.
// Satisfied by *heater.Coordinator; tests substitute a stub.
type Controller interface {
	LatestSnapshot() heater.Snapshot
	Subscribe() (<-chan heater.Snapshot, func())
	SetPower(ctx context.Context, on bool) error
	SetTemperature(ctx context.Context, celsius int) error
	SetLevel(ctx context.Context, level int) error
	SetFanSpeed(ctx context.Context, speed int) error
	SetMode(ctx context.Context, mode int) error
}

// Config holds the bridge configuration
type Config struct {
	Listen string // host:port to bind
}

// Server bridges the heater coordinator onto HTTP and WebSocket for home
// automation consumers. It is a thin translation layer: every mutation is
// forwarded to the controller, which owns validation and sequencing.
type Server struct {
	config *Config
	ctrl   Controller
	http   *http.Server
}

// New creates a new bridge server around the controller.
func New(config *Config, ctrl Controller) *Server {
	s := &Server{
		config: config,
		ctrl:   ctrl,
	}
	s.http = &http.Server{
		Addr:         config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // the /ws handler manages its own deadlines
	}
	return s
}

// Handler returns the route table. Exposed separately so tests can drive
// it through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/power", s.handlePower)
	mux.HandleFunc("/temperature", s.handleTemperature)
	mux.HandleFunc("/level", s.handleLevel)
	mux.HandleFunc("/fan", s.handleFan)
	mux.HandleFunc("/mode", s.handleMode)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Run starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.config.Listen, err)
	}

	logging.Info("Bridge listening",
		zap.String("addr", listener.Addr().String()),
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.http.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logging.Info("Shutting down bridge...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// handleStatus serves the latest snapshot. It never touches the device:
// the coordinator's poll keeps the snapshot fresh, so status reads stay
// cheap no matter how often automation hits them.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.LatestSnapshot())
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	var req struct {
		On bool `json:"on"`
	}
	if !readCommand(w, r, &req) {
		return
	}
	s.finishCommand(w, r, s.ctrl.SetPower(r.Context(), req.On))
}

func (s *Server) handleTemperature(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Celsius int `json:"celsius"`
	}
	if !readCommand(w, r, &req) {
		return
	}
	s.finishCommand(w, r, s.ctrl.SetTemperature(r.Context(), req.Celsius))
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level int `json:"level"`
	}
	if !readCommand(w, r, &req) {
		return
	}
	s.finishCommand(w, r, s.ctrl.SetLevel(r.Context(), req.Level))
}

func (s *Server) handleFan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed int `json:"speed"`
	}
	if !readCommand(w, r, &req) {
		return
	}
	s.finishCommand(w, r, s.ctrl.SetFanSpeed(r.Context(), req.Speed))
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode int `json:"mode"`
	}
	if !readCommand(w, r, &req) {
		return
	}
	s.finishCommand(w, r, s.ctrl.SetMode(r.Context(), req.Mode))
}

// readCommand enforces POST + JSON body for mutation endpoints. Returns
// false after writing the error response.
func readCommand(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// finishCommand maps a controller error onto the response: range
// violations are the caller's fault, everything else means the device
// side failed.
func (s *Server) finishCommand(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		logging.Warn("Bridge command failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		if heater.IsInvalidArgument(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, heater.ShortMessage(err, 200))
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.LatestSnapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
