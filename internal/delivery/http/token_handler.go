package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"income-screener/internal/domain"
)

// TokenHandler manages the FCM device tokens that receive pick alerts.
type TokenHandler struct {
	tokenRepo domain.DeviceTokenRepository
	now       func() time.Time
}

func NewTokenHandler(tokenRepo domain.DeviceTokenRepository) *TokenHandler {
	return &TokenHandler{
		tokenRepo: tokenRepo,
		now:       time.Now,
	}
}

type RegisterTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

type TokenResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// HandleRegisterToken handles POST /api/devices
func (h *TokenHandler) HandleRegisterToken(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTokenRequest(w, r)
	if !ok {
		return
	}

	if req.Platform == "" {
		req.Platform = "android"
	}

	h.tokenRepo.RegisterToken(req.Token, req.Platform, h.now().Unix())

	writeJSON(w, http.StatusOK, TokenResponse{
		Success: true,
		Message: "Token registered successfully",
		Count:   h.tokenRepo.GetTokenCount(),
	})
}

// HandleUnregisterToken handles DELETE /api/devices
func (h *TokenHandler) HandleUnregisterToken(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTokenRequest(w, r)
	if !ok {
		return
	}

	h.tokenRepo.UnregisterToken(req.Token)

	writeJSON(w, http.StatusOK, TokenResponse{
		Success: true,
		Message: "Token unregistered successfully",
		Count:   h.tokenRepo.GetTokenCount(),
	})
}

// HandleGetTokenCount handles GET /api/devices/count
func (h *TokenHandler) HandleGetTokenCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TokenResponse{
		Success: true,
		Message: "Token count retrieved",
		Count:   h.tokenRepo.GetTokenCount(),
	})
}

func decodeTokenRequest(w http.ResponseWriter, r *http.Request) (RegisterTokenRequest, bool) {
	var req RegisterTokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return req, false
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		http.Error(w, "Token is required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}
