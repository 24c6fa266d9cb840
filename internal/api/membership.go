package api

import (
	"payment-api/internal/middleware"
	"payment-api/internal/response"

	"github.com/gin-gonic/gin"
)

// GetMembership returns the caller's membership status
// GET /api/user/membership
func (h *Handler) GetMembership(c *gin.Context) {
	status, err := h.memberships.Status(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, status)
}

// GetAudioAccess lists the audio catalogue with access flags
// GET /api/user/audio-access
func (h *Handler) GetAudioAccess(c *gin.Context) {
	access, err := h.audio.AccessList(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, access)
}

// CheckAudioAccess reports whether the caller may play one track
// GET /api/audio/:audio_name/check-access
func (h *Handler) CheckAudioAccess(c *gin.Context) {
	access, err := h.audio.CheckAccess(c.Request.Context(), middleware.UserID(c), c.Param("audio_name"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, gin.H{
		"audio_name": access.AudioName,
		"has_access": access.HasAccess,
		"is_free":    access.IsFree,
	})
}
