package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/noobtra/soundcloud-jam/jam/protocol"
	"github.com/noobtra/soundcloud-jam/jam/state"
	"github.com/noobtra/soundcloud-jam/transport/websocket"
	"github.com/noobtra/soundcloud-jam/validate"
)

// Server is the REST API server.
type Server struct {
	controller websocket.Controller
	hub        *websocket.Hub
	router     *mux.Router
	surfaceID  string
}

// NewServer creates the API server and registers its command surface with
// the coordinator.
func NewServer(controller websocket.Controller, hub *websocket.Hub) *Server {
	s := &Server{
		controller: controller,
		hub:        hub,
		router:     mux.NewRouter(),
		surfaceID:  "api-" + uuid.NewString(),
	}
	controller.RegisterSurface(&apiSurface{id: s.surfaceID})

	s.setupRoutes()
	return s
}

// apiSurface is the handle REST commands act through. REST clients poll
// /api/state, so pushed deliveries are discarded.
type apiSurface struct {
	id string
}

func (a *apiSurface) ID() string                         { return a.id }
func (a *apiSurface) Deliver(state.Update) error         { return nil }
func (a *apiSurface) PlayTrack(protocol.TrackInfo) error { return nil }

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/state", s.handleGetState).Methods("GET")

	api.HandleFunc("/jam", s.handleCreateJam).Methods("POST")
	api.HandleFunc("/jam", s.handleLeaveJam).Methods("DELETE")
	api.HandleFunc("/jam/join", s.handleJoinJam).Methods("POST")
	api.HandleFunc("/jam/mode", s.handleChangeMode).Methods("PUT")

	api.HandleFunc("/track", s.handleTrackUpdate).Methods("POST")
	api.HandleFunc("/queue", s.handleQueueAdd).Methods("POST")
	api.HandleFunc("/queue/{id}", s.handleQueueRemove).Methods("DELETE")
	api.HandleFunc("/user", s.handleSetUser).Methods("PUT")

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/ws", s.hub.ServeWS)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondAccepted(w http.ResponseWriter) {
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

// Handlers

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.controller.Snapshot().UpdateMessage())
}

func (s *Server) handleCreateJam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode protocol.JamMode `json:"mode"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Mode == "" {
		req.Mode = protocol.ModeAnyone
	}
	if err := validate.Mode(string(req.Mode)); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.controller.Snapshot().CurrentUser == nil {
		respondError(w, http.StatusConflict, "no current user known")
		return
	}

	s.controller.CreateJam(s.surfaceID, req.Mode)
	respondAccepted(w)
}

func (s *Server) handleJoinJam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InviteCode string `json:"inviteCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.InviteCode(req.InviteCode); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap := s.controller.Snapshot()
	if snap.Session != nil {
		respondError(w, http.StatusConflict, "already in a jam")
		return
	}
	if snap.CurrentUser == nil {
		respondError(w, http.StatusConflict, "no current user known")
		return
	}

	s.controller.JoinJam(s.surfaceID, req.InviteCode)
	respondAccepted(w)
}

func (s *Server) handleLeaveJam(w http.ResponseWriter, r *http.Request) {
	s.controller.LeaveJam()
	respondJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (s *Server) handleChangeMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode protocol.JamMode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Mode(string(req.Mode)); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.controller.ChangeMode(req.Mode)
	respondAccepted(w)
}

func (s *Server) handleTrackUpdate(w http.ResponseWriter, r *http.Request) {
	var track protocol.TrackInfo
	if err := json.NewDecoder(r.Body).Decode(&track); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Track(track); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.controller.TrackUpdate(s.surfaceID, track)
	respondAccepted(w)
}

func (s *Server) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	var track protocol.TrackInfo
	if err := json.NewDecoder(r.Body).Decode(&track); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Track(track); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.controller.QueueAdd(track)
	respondAccepted(w)
}

func (s *Server) handleQueueRemove(w http.ResponseWriter, r *http.Request) {
	queueID := mux.Vars(r)["id"]
	if queueID == "" {
		respondError(w, http.StatusBadRequest, "queue ID is required")
		return
	}

	s.controller.QueueRemove(queueID)
	respondAccepted(w)
}

func (s *Server) handleSetUser(w http.ResponseWriter, r *http.Request) {
	var user protocol.CurrentUser
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.DisplayName(user.DisplayName); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.controller.SetCurrentUser(user)
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"connection": string(s.controller.Snapshot().ConnState),
	})
}
