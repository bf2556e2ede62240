package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/tracker-core/internal/tracking"
)

// SlotListResponse is returned by the list endpoints.
type SlotListResponse struct {
	Slots []tracking.SlotHandle `json:"slots"`
	Count int                   `json:"count"`
}

// CameraControllerResponse pairs the camera slot with its binding.
type CameraControllerResponse struct {
	Slot    tracking.SlotHandle              `json:"slot"`
	Binding tracking.CameraControllerBinding `json:"binding"`
}

// BaselineResponse is the motion baseline for one serial.
type BaselineResponse struct {
	Serial    string     `json:"serial"`
	Position  [3]float64 `json:"position"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// SettingsPatch carries the toggles to change; nil fields are left alone.
type SettingsPatch struct {
	CameraControllerSerial *string `json:"camera_controller_serial"`
	FlattenBaseStations    *bool   `json:"flatten_base_stations"`
	ControllerAsTracker    *bool   `json:"controller_as_tracker"`
}

func (p SettingsPatch) empty() bool {
	return p.CameraControllerSerial == nil && p.FlattenBaseStations == nil && p.ControllerAsTracker == nil
}

func (p SettingsPatch) apply(s tracking.Settings) tracking.Settings {
	if p.CameraControllerSerial != nil {
		s.CameraControllerSerial = *p.CameraControllerSerial
	}
	if p.FlattenBaseStations != nil {
		s.FlattenBaseStations = *p.FlattenBaseStations
	}
	if p.ControllerAsTracker != nil {
		s.ControllerAsTracker = *p.ControllerAsTracker
	}
	return s
}

// handleListSlots returns every slot. ?bound=true keeps bound slots only.
func (s *Server) handleListSlots(w http.ResponseWriter, r *http.Request) {
	slots := s.tracker.Slots()

	if v := r.URL.Query().Get("bound"); v != "" {
		want, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "bound must be true or false")
			return
		}
		filtered := make([]tracking.SlotHandle, 0, len(slots))
		for _, slot := range slots {
			if slot.Bound == want {
				filtered = append(filtered, slot)
			}
		}
		slots = filtered
	}

	writeJSON(w, http.StatusOK, SlotListResponse{Slots: slots, Count: len(slots)})
}

// handleGetSlot resolves a slot by device name.
func (s *Server) handleGetSlot(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	slot, ok := s.tracker.FindSlotByName(name)
	if !ok {
		writeNotFound(w, "no slot named "+strconv.Quote(name))
		return
	}
	writeJSON(w, http.StatusOK, slot)
}

func (s *Server) handleBoundList(list func() []tracking.SlotHandle) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		slots := list()
		if slots == nil {
			slots = []tracking.SlotHandle{}
		}
		writeJSON(w, http.StatusOK, SlotListResponse{Slots: slots, Count: len(slots)})
	}
}

func (s *Server) handleHMD(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.HMD())
}

func (s *Server) handleCameraController(w http.ResponseWriter, _ *http.Request) {
	slot, binding := s.tracker.CameraController()
	writeJSON(w, http.StatusOK, CameraControllerResponse{Slot: slot, Binding: binding})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.LastStats())
}

func (s *Server) handleGetBaseline(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")
	b, ok := s.tracker.MotionBaseline(serial)
	if !ok {
		writeNotFound(w, "no motion baseline for "+strconv.Quote(serial))
		return
	}
	writeJSON(w, http.StatusOK, BaselineResponse{
		Serial:    b.Serial,
		Position:  [3]float64{b.Position.X, b.Position.Y, b.Position.Z},
		UpdatedAt: b.UpdatedAt,
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Settings())
}

// handlePatchSettings applies a partial settings update. It takes effect
// from the next frame and is broadcast on the settings channel.
func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if patch.empty() {
		writeBadRequest(w, "no settings to change")
		return
	}

	_, updated := s.tracker.UpdateSettings(patch.apply)

	s.logger.Info("tracking settings changed",
		"camera_controller_serial", updated.CameraControllerSerial,
		"flatten_base_stations", updated.FlattenBaseStations,
		"controller_as_tracker", updated.ControllerAsTracker,
	)
	s.hub.Broadcast(ChannelSettings, updated)

	writeJSON(w, http.StatusOK, updated)
}
