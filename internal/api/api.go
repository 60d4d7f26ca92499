package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/manifold-controller/db"
	"github.com/thatsimonsguy/manifold-controller/internal/configstore"
	"github.com/thatsimonsguy/manifold-controller/internal/controller"
	"github.com/thatsimonsguy/manifold-controller/internal/model"
	"github.com/thatsimonsguy/manifold-controller/internal/registry"
	"github.com/thatsimonsguy/manifold-controller/internal/remote"
	"github.com/thatsimonsguy/manifold-controller/internal/status"
)

const defaultEventLimit = 100

// Controller is the subset of the control loop the API drives.
type Controller interface {
	Status() status.Status
	PinMappings() []model.PinMapping
	Settings() model.Settings
	UpdateSettings(fn func(s *model.Settings)) (model.Settings, error)
	SetForced(id int, forced bool) error
	SetLocalTarget(id int, temp float64) error
	SetRemoteTarget(ctx context.Context, id int, temp float64) error
	AssignPin(id, pin int) error
}

type Server struct {
	ctrl Controller
	db   *sqlx.DB
	http *http.Server
}

type ForcedRequest struct {
	Forced bool `json:"forced"`
}

type TemperatureRequest struct {
	Temperature *float64 `json:"temperature"`
}

type PinRequest struct {
	Pin *int `json:"pin"`
}

// SettingsRequest is a partial update; absent fields are left alone.
type SettingsRequest struct {
	UseGas           *bool    `json:"use_gas"`
	BoostEnabled     *bool    `json:"boost_enabled"`
	MinOperatingTemp *float64 `json:"min_operating_temp"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer builds the operator API. database may be nil, in which case valve
// history is unavailable.
func NewServer(ctrl Controller, database *sqlx.DB) *Server {
	return &Server{ctrl: ctrl, db: database}
}

// Handler returns the API routes wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/pins", s.handlePins)
	mux.HandleFunc("/api/valve-events", s.handleValveEvents)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/zones/", s.handleZoneOperations)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

// Start serves the API until Shutdown is called.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	s.http = &http.Server{Addr: addr, Handler: s.Handler()}

	log.Info().Str("address", addr).Msg("Starting REST API server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handlePins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.ctrl.PinMappings())
}

func (s *Server) handleValveEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Valve history not available")
		return
	}

	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	var (
		events []model.ValveEvent
		err    error
	)
	if v := r.URL.Query().Get("zone"); v != "" {
		id, perr := strconv.Atoi(v)
		if perr != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid zone id")
			return
		}
		events, err = db.ValveEventsForZone(s.db, id, limit)
	} else {
		events, err = db.RecentValveEvents(s.db, limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to query valve events")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []model.ValveEvent{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.ctrl.Settings())
	case http.MethodPut:
		var req SettingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
		settings, err := s.ctrl.UpdateSettings(func(st *model.Settings) {
			if req.UseGas != nil {
				st.UseGas = *req.UseGas
			}
			if req.BoostEnabled != nil {
				st.BoostEnabled = *req.BoostEnabled
			}
			if req.MinOperatingTemp != nil {
				st.MinOperatingTemp = *req.MinOperatingTemp
			}
		})
		if err != nil {
			s.writeControllerError(w, err)
			return
		}
		log.Info().Msg("Settings updated via API")
		s.writeJSON(w, http.StatusOK, settings)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleZoneOperations(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/zones/")
	parts := strings.Split(path, "/")

	if len(parts) != 2 || parts[0] == "" {
		s.writeError(w, http.StatusNotFound, "Invalid path")
		return
	}
	if r.Method != http.MethodPut {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	zoneID, err := strconv.Atoi(parts[0])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Zone ID must be an integer")
		return
	}

	switch parts[1] {
	case "forced":
		s.setForced(w, r, zoneID)
	case "local-target":
		s.setTemperature(w, r, zoneID, func(t float64) error {
			return s.ctrl.SetLocalTarget(zoneID, t)
		})
	case "remote-target":
		s.setTemperature(w, r, zoneID, func(t float64) error {
			return s.ctrl.SetRemoteTarget(r.Context(), zoneID, t)
		})
	case "pin":
		s.setPin(w, r, zoneID)
	default:
		s.writeError(w, http.StatusNotFound, "Unknown operation")
	}
}

func (s *Server) setForced(w http.ResponseWriter, r *http.Request, zoneID int) {
	var req ForcedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := s.ctrl.SetForced(zoneID, req.Forced); err != nil {
		s.writeControllerError(w, err)
		return
	}
	log.Info().Int("zone", zoneID).Bool("forced", req.Forced).Msg("Zone override updated via API")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) setTemperature(w http.ResponseWriter, r *http.Request, zoneID int, apply func(float64) error) {
	var req TemperatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Temperature == nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := apply(*req.Temperature); err != nil {
		s.writeControllerError(w, err)
		return
	}
	log.Info().Int("zone", zoneID).Float64("temperature", *req.Temperature).Msg("Zone setpoint updated via API")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) setPin(w http.ResponseWriter, r *http.Request, zoneID int) {
	var req PinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Pin == nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := s.ctrl.AssignPin(zoneID, *req.Pin); err != nil {
		s.writeControllerError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// writeControllerError maps controller errors onto HTTP status codes.
func (s *Server) writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrZoneNotFound):
		s.writeError(w, http.StatusNotFound, "Zone not found")
	case errors.Is(err, controller.ErrInvalidPin), errors.Is(err, controller.ErrInvalidTemperature):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, controller.ErrNoRemote):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, remote.ErrRequestInProgress):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, configstore.ErrCommitFailed):
		log.Error().Err(err).Msg("Change applied but not persisted")
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		log.Error().Err(err).Msg("Operator request failed")
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
