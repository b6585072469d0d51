package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/prefd-io/prefd/internal/eventbus"
	"github.com/prefd-io/prefd/internal/profile"
	"github.com/prefd-io/prefd/internal/profile/store"
	"github.com/prefd-io/prefd/internal/version"
)

// APIServer exposes the profile service over HTTP and streams state
// snapshots to WebSocket watchers.
type APIServer struct {
	svc      *profile.Service
	bus      *eventbus.Bus
	wsServer *WatchServer
}

// NewAPIServer wires the service and bus into an HTTP surface. The
// originAllowed function validates the Origin header on WebSocket upgrades.
func NewAPIServer(svc *profile.Service, bus *eventbus.Bus, originAllowed func(string) bool) *APIServer {
	return &APIServer{
		svc:      svc,
		bus:      bus,
		wsServer: NewWatchServer(bus, originAllowed),
	}
}

// Handler builds the route table.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/watch", s.wsServer.HandleWatch)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/profiles", s.handleProfilesRoot)
	mux.HandleFunc("/profiles/", s.handleProfileSubroutes)
	mux.HandleFunc("/settings/", s.handleSetting)
	mux.HandleFunc("/version", s.handleVersion)
	return mux
}

func (s *APIServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.svc.State())
	case http.MethodPut:
		s.handleConfigSave(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type configUpdatePayload struct {
	Settings map[string]any `json:"settings,omitempty"`
	Name     *string        `json:"name,omitempty"`
}

func (s *APIServer) handleConfigSave(w http.ResponseWriter, r *http.Request) {
	var payload configUpdatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON payload: %v", err))
		return
	}

	saved, err := s.svc.SaveConfig(r.Context(), profile.Update{Settings: payload.Settings, Name: payload.Name})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

type createProfilePayload struct {
	Name            string `json:"name"`
	CopyFromCurrent *bool  `json:"copyFromCurrent,omitempty"`
}

func (s *APIServer) handleProfilesRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleProfilesList(w, r)
	case http.MethodPost:
		s.handleProfileCreate(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *APIServer) handleProfilesList(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.svc.Summaries(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *APIServer) handleProfileCreate(w http.ResponseWriter, r *http.Request) {
	var payload createProfilePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON payload: %v", err))
		return
	}
	if strings.TrimSpace(payload.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	created, err := s.svc.CreateProfile(r.Context(), profile.CreateRequest{
		Name:            payload.Name,
		CopyFromCurrent: payload.CopyFromCurrent,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleProfileSubroutes dispatches /profiles/{id} and /profiles/{id}/switch.
func (s *APIServer) handleProfileSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/profiles/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && parts[0] != "" && r.Method == http.MethodDelete:
		s.handleProfileDelete(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "switch" && r.Method == http.MethodPost:
		s.handleProfileSwitch(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *APIServer) handleProfileDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.svc.DeleteProfile(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) handleProfileSwitch(w http.ResponseWriter, r *http.Request, id string) {
	adopted, err := s.svc.SwitchProfile(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adopted)
}

type settingPayload struct {
	Value any `json:"value"`
}

type settingResponse struct {
	Key         string `json:"key"`
	Value       any    `json:"value"`
	FromProfile bool   `json:"fromProfile"`
}

func (s *APIServer) handleSetting(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/settings/")
	if key == "" {
		writeError(w, http.StatusBadRequest, "setting key is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		value, fromProfile := s.svc.GetSetting(key)
		writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: value, FromProfile: fromProfile})
	case http.MethodPut:
		var payload settingPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON payload: %v", err))
			return
		}
		if err := s.svc.UpdateSetting(key, payload.Value); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *APIServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"version": version.String()})
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case store.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case profile.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// LoadInitialState projects durable state into memory before serving.
func (s *APIServer) LoadInitialState(ctx context.Context) error {
	_, err := s.svc.LoadConfig(ctx)
	return err
}
