package handlers

import (
	"errors"
	"net/http"

	"kilnfire"

	"github.com/gin-gonic/gin"
)

const (
	statusOK      = "ok"
	statusStarted = "started"
	statusStopped = "stopped"
	statusPaused  = "paused"
	statusResumed = "resumed"
	statusSkipped = "skipped"
	statusCleared = "cleared"
)

// logAndJSONError centralizes error logging and the JSON error response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// commandHTTPStatus maps engine command failures onto response codes.
func commandHTTPStatus(err error) int {
	switch {
	case errors.Is(err, kilnfire.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, kilnfire.ErrEmergencyLatched):
		return http.StatusConflict
	case errors.Is(err, kilnfire.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// respondWithStatusAndProgress answers a control command with the fresh
// progress snapshot attached.
func (h *Handler) respondWithStatusAndProgress(c *gin.Context, status string) {
	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"progress": h.services.Monitoring.Progress(),
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

func (h *Handler) getProgress(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"progress":   h.services.Monitoring.Progress(),
		"error_code": h.services.Monitoring.ErrorCode(),
	})
}

func (h *Handler) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Monitoring.Settings())
}

// settingsRequest is the settings update payload. The API token is accepted
// here but never echoed back.
type settingsRequest struct {
	TempUnit             string  `json:"temp_unit" binding:"required"`
	MaxSafeTempC         float64 `json:"max_safe_temp_c" binding:"required"`
	AlarmEnabled         bool    `json:"alarm_enabled"`
	AutoShutdown         bool    `json:"auto_shutdown"`
	NotificationsEnabled bool    `json:"notifications_enabled"`
	TCOffsetC            float64 `json:"tc_offset_c"`
	WebhookURL           string  `json:"webhook_url"`
	APIToken             string  `json:"api_token"`
	ElementWatts         int     `json:"element_watts"`
	ElectricityCostKWh   float64 `json:"electricity_cost_kwh"`
}

func (h *Handler) updateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}

	err := h.services.Monitoring.UpdateSettings(c.Request.Context(), kilnfire.KilnSettings{
		TempUnit:             req.TempUnit,
		MaxSafeTempC:         req.MaxSafeTempC,
		AlarmEnabled:         req.AlarmEnabled,
		AutoShutdown:         req.AutoShutdown,
		NotificationsEnabled: req.NotificationsEnabled,
		TCOffsetC:            req.TCOffsetC,
		WebhookURL:           req.WebhookURL,
		APIToken:             req.APIToken,
		ElementWatts:         req.ElementWatts,
		ElectricityCostKWh:   req.ElectricityCostKWh,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.services.Monitoring.Settings())
}

func (h *Handler) getElementHours(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"element_seconds": h.services.Monitoring.ElementSeconds()})
}

type startRequest struct {
	ProfileID    string `json:"profile_id" binding:"required"`
	DelayMinutes uint32 `json:"delay_minutes"`
}

func (h *Handler) startFiring(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}

	if err := h.services.Firing.Start(c.Request.Context(), req.ProfileID, req.DelayMinutes); err != nil {
		h.logAndJSONError(c, commandHTTPStatus(err), err.Error(), "firing_start_failed", err,
			"profile_id", req.ProfileID)
		return
	}
	h.respondWithStatusAndProgress(c, statusStarted)
}

func (h *Handler) stopFiring(c *gin.Context) {
	if err := h.services.Firing.Stop(); err != nil {
		h.logAndJSONError(c, commandHTTPStatus(err), err.Error(), "firing_stop_failed", err)
		return
	}
	h.respondWithStatusAndProgress(c, statusStopped)
}

func (h *Handler) pauseFiring(c *gin.Context) {
	if err := h.services.Firing.Pause(); err != nil {
		h.logAndJSONError(c, commandHTTPStatus(err), err.Error(), "firing_pause_failed", err)
		return
	}
	h.respondWithStatusAndProgress(c, statusPaused)
}

func (h *Handler) resumeFiring(c *gin.Context) {
	if err := h.services.Firing.Resume(); err != nil {
		h.logAndJSONError(c, commandHTTPStatus(err), err.Error(), "firing_resume_failed", err)
		return
	}
	h.respondWithStatusAndProgress(c, statusResumed)
}

func (h *Handler) skipSegment(c *gin.Context) {
	if err := h.services.Firing.SkipSegment(); err != nil {
		h.logAndJSONError(c, commandHTTPStatus(err), err.Error(), "firing_skip_failed", err)
		return
	}
	h.respondWithStatusAndProgress(c, statusSkipped)
}

type autotuneRequest struct {
	SetpointC   float64 `json:"setpoint_c" binding:"required"`
	HysteresisC float64 `json:"hysteresis_c" binding:"required"`
}

func (h *Handler) startAutotune(c *gin.Context) {
	var req autotuneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}

	if err := h.services.Firing.AutotuneStart(req.SetpointC, req.HysteresisC); err != nil {
		h.logAndJSONError(c, commandHTTPStatus(err), err.Error(), "autotune_start_failed", err)
		return
	}
	h.respondWithStatusAndProgress(c, statusStarted)
}

func (h *Handler) stopAutotune(c *gin.Context) {
	if err := h.services.Firing.AutotuneStop(); err != nil {
		h.logAndJSONError(c, commandHTTPStatus(err), err.Error(), "autotune_stop_failed", err)
		return
	}
	h.respondWithStatusAndProgress(c, statusStopped)
}

func (h *Handler) clearEmergency(c *gin.Context) {
	h.services.Firing.ClearEmergency()
	h.respondWithStatusAndProgress(c, statusCleared)
}
