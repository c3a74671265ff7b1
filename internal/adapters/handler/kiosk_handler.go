package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/adapters/device"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/adapters/middleware"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/services"
)

// SessionManager holds one state machine per kiosk device.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*services.Session
	factory  func(deviceID string) *services.Session
}

func NewSessionManager(factory func(deviceID string) *services.Session) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*services.Session),
		factory:  factory,
	}
}

// Get returns the device's session, creating it on first contact.
func (m *SessionManager) Get(deviceID string) *services.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[deviceID]; ok {
		return s
	}
	s := m.factory(deviceID)
	m.sessions[deviceID] = s
	return s
}

// KioskHandler exposes the session workflow to the terminal UI. Every
// endpoint resolves the device from the unlock token and dispatches a named
// action; the state machine decides whether it is legal.
type KioskHandler struct {
	sessions *SessionManager
	locator  *device.ReportedLocator
}

func NewKioskHandler(sessions *SessionManager, locator *device.ReportedLocator) *KioskHandler {
	return &KioskHandler{sessions: sessions, locator: locator}
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch domain.KindOf(err) {
	case domain.ValidationFailed:
		status = http.StatusBadRequest
	case domain.NotFound:
		status = http.StatusNotFound
	case domain.PermissionDenied:
		status = http.StatusForbidden
	case domain.Timeout:
		status = http.StatusGatewayTimeout
	case domain.DeviceUnavailable:
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *KioskHandler) session(r *http.Request) *services.Session {
	return h.sessions.Get(middleware.DeviceID(r.Context()))
}

// Snapshot serves the read model the terminal renders from.
func (h *KioskHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, h.session(r).Snapshot())
}

type locationReport struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Denied    bool    `json:"denied"`
}

// ReportLocation accepts the terminal's GPS fix (or denial) and re-resolves
// the nearest site in the background; the response never waits on the 10s
// geolocation budget.
func (h *KioskHandler) ReportLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var report locationReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if report.Denied {
		h.locator.ReportDenied()
	} else {
		h.locator.Report(domain.Coordinates{Latitude: report.Latitude, Longitude: report.Longitude})
	}

	// The refresh outlives this request; net/http cancels r.Context() as
	// soon as the handler returns, so the spawned resolve must not inherit
	// that cancellation.
	session := h.session(r)
	go session.RefreshLocation(context.WithoutCancel(r.Context()))
	w.WriteHeader(http.StatusAccepted)
}

type siteRequest struct {
	SiteID string `json:"site_id"`
}

func (h *KioskHandler) SelectSite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req siteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.session(r).SelectSite(req.SiteID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, h.session(r).Snapshot())
}

type chooseRequest struct {
	Action domain.Action `json:"action"`
}

// Choose branches from home into one of the user-selectable flows.
func (h *KioskHandler) Choose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req chooseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.session(r).Choose(r.Context(), req.Action); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, h.session(r).Snapshot())
}

func (h *KioskHandler) SubmitSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var draft domain.VisitorDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.session(r).SubmitSignIn(r.Context(), draft); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, h.session(r).Snapshot())
}

// simple action endpoints share this shape
func (h *KioskHandler) action(w http.ResponseWriter, r *http.Request, fn func(*services.Session) error) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session := h.session(r)
	if err := fn(session); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, session.Snapshot())
}

func (h *KioskHandler) StartTraining(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(s *services.Session) error { return s.StartTrainingVideo() })
}

func (h *KioskHandler) BypassTraining(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(s *services.Session) error { return s.BypassTraining() })
}

func (h *KioskHandler) AcknowledgeTraining(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(s *services.Session) error { return s.AcknowledgeTraining() })
}

func (h *KioskHandler) CompleteTraining(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(s *services.Session) error { return s.CompleteTraining(r.Context()) })
}

func (h *KioskHandler) CapturePhoto(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(s *services.Session) error { return s.CapturePhoto(r.Context()) })
}

func (h *KioskHandler) RetakePhoto(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(s *services.Session) error { return s.RetakePhoto(r.Context()) })
}

func (h *KioskHandler) RetryCamera(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(s *services.Session) error { return s.RetryCamera(r.Context()) })
}

// PreviewFrame streams the mirrored live preview image.
func (h *KioskHandler) PreviewFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	photo, err := h.session(r).PreviewFrame(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", photo.ContentType)
	_, _ = w.Write(photo.Data)
}

// Commit runs the irreversible sign-in commit sequence.
func (h *KioskHandler) Commit(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(s *services.Session) error { return s.Commit(r.Context()) })
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *KioskHandler) SubmitSignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.session(r).SubmitSignOut(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, h.session(r).Snapshot())
}

func (h *KioskHandler) LookupBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	bookings, err := h.session(r).LookupBookings(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, bookings)
}

type bookingRequest struct {
	BookingID string `json:"booking_id"`
}

func (h *KioskHandler) SelectBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.session(r).SelectBooking(req.BookingID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, h.session(r).Snapshot())
}

func (h *KioskHandler) CheckInBooking(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(s *services.Session) error { return s.CheckInBooking(r.Context()) })
}

func (h *KioskHandler) EmployeeSignOut(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(s *services.Session) error { return s.EmployeeSignOut(r.Context()) })
}

func (h *KioskHandler) ForgetDevice(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(s *services.Session) error { return s.ForgetDevice(r.Context()) })
}

func (h *KioskHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(s *services.Session) error { return s.Back() })
}

func (h *KioskHandler) Finish(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(s *services.Session) error { return s.Finish() })
}

func (h *KioskHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(s *services.Session) error { return s.ResetToHome() })
}
