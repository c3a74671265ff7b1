package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/adapters/middleware"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/services"
)

// AuthHandler covers the two entry points that hand an identity to a kiosk:
// the receptionist unlock and the employee OAuth round trip.
type AuthHandler struct {
	devices  *services.DeviceAuthService
	oauth    *services.EmployeeOAuthService
	sessions *SessionManager
}

func NewAuthHandler(devices *services.DeviceAuthService, oauth *services.EmployeeOAuthService, sessions *SessionManager) *AuthHandler {
	return &AuthHandler{devices: devices, oauth: oauth, sessions: sessions}
}

type unlockRequest struct {
	DeviceID   string `json:"device_id"`
	Email      string `json:"email"`
	AccessCode string `json:"access_code"`
}

type unlockResponse struct {
	Token    string          `json:"token"`
	Operator domain.Operator `json:"operator"`
	Session  services.Snapshot `json:"session"`
}

// Unlock authenticates a receptionist and moves the device's session onto
// the home screen. This is the only kiosk endpoint that accepts requests
// without a device token.
func (h *AuthHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req unlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.DeviceID == "" || req.Email == "" || req.AccessCode == "" {
		http.Error(w, "device_id, email and access_code are required", http.StatusBadRequest)
		return
	}

	token, operator, err := h.devices.Unlock(r.Context(), req.DeviceID, req.Email, req.AccessCode)
	if err != nil {
		writeError(w, err)
		return
	}

	session := h.sessions.Get(req.DeviceID)
	if err := session.Unlock(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	// r.Context() dies with this response; the location refresh runs on.
	go session.RefreshLocation(context.WithoutCancel(r.Context()))

	writeJSON(w, unlockResponse{Token: token, Operator: *operator, Session: session.Snapshot()})
}

type employeeLoginResponse struct {
	URL string `json:"url"`
}

// EmployeeLogin issues the provider redirect URL. The device id, selected
// site and remember preference travel in the signed state parameter so the
// callback can rebuild the session without any server-side staging.
func (h *AuthHandler) EmployeeLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	deviceID := middleware.DeviceID(r.Context())
	session := h.sessions.Get(deviceID)

	siteID := ""
	if snap := session.Snapshot(); snap.Site != nil {
		siteID = snap.Site.ID
	}
	state, err := h.oauth.EncodeState(services.RedirectState{
		DeviceID: deviceID,
		SiteID:   siteID,
		Remember: r.URL.Query().Get("remember") == "true",
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, employeeLoginResponse{URL: h.oauth.AuthURL(state)})
}

// EmployeeCallback is the OAuth return leg. It carries no device token; the
// signed state parameter is the sole source of session context.
func (h *AuthHandler) EmployeeCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	code := r.URL.Query().Get("code")
	rawState := r.URL.Query().Get("state")
	if code == "" || rawState == "" {
		http.Error(w, "missing code or state", http.StatusBadRequest)
		return
	}

	state, err := h.oauth.DecodeState(rawState)
	if err != nil {
		writeError(w, err)
		return
	}
	employee, err := h.oauth.Authenticate(r.Context(), code)
	if err != nil {
		log.Printf("employee auth failed for device %s: %v", state.DeviceID, err)
		writeError(w, err)
		return
	}

	session := h.sessions.Get(state.DeviceID)
	if state.SiteID != "" {
		if err := session.SelectSite(state.SiteID); err != nil {
			log.Printf("callback site restore failed for device %s: %v", state.DeviceID, err)
		}
	}
	if err := session.EmployeeAuthenticated(r.Context(), *employee, state.Remember); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, session.Snapshot())
}
