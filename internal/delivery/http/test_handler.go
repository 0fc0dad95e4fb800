package http

import (
	"context"
	"net/http"

	"income-screener/internal/domain"
)

// TestPusher sends a test push to every registered device.
type TestPusher interface {
	Enabled() bool
	SendTest(ctx context.Context) error
}

type TestHandler struct {
	pusher    TestPusher
	tokenRepo domain.DeviceTokenRepository
}

func NewTestHandler(pusher TestPusher, tokenRepo domain.DeviceTokenRepository) *TestHandler {
	return &TestHandler{
		pusher:    pusher,
		tokenRepo: tokenRepo,
	}
}

// SendTestNotification handles POST /api/devices/test
func (h *TestHandler) SendTestNotification(w http.ResponseWriter, r *http.Request) {
	if h.pusher == nil || !h.pusher.Enabled() {
		writeJSON(w, http.StatusServiceUnavailable, TokenResponse{
			Message: "FCM not configured",
		})
		return
	}

	count := h.tokenRepo.GetTokenCount()
	if count == 0 {
		writeJSON(w, http.StatusOK, TokenResponse{
			Message: "No registered devices",
		})
		return
	}

	if err := h.pusher.SendTest(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, TokenResponse{
			Message: "Failed to send notification: " + err.Error(),
			Count:   count,
		})
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		Success: true,
		Message: "Test notification sent successfully",
		Count:   h.tokenRepo.GetTokenCount(),
	})
}
