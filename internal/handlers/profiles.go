package handlers

import (
	"errors"
	"net/http"

	"kilnfire"
	"kilnfire/internal/cone"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listProfiles(c *gin.Context) {
	profiles, err := h.services.Profiles.List(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to list profiles",
			"profiles_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

func (h *Handler) getProfile(c *gin.Context) {
	p, err := h.services.Profiles.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, kilnfire.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load profile",
			"profile_load_failed", err, "id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) saveProfile(c *gin.Context) {
	var p kilnfire.FiringProfile
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}

	if err := h.services.Profiles.Save(c.Request.Context(), p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK, "id": p.ID})
}

func (h *Handler) updateProfile(c *gin.Context) {
	var p kilnfire.FiringProfile
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	p.ID = c.Param("id")

	if err := h.services.Profiles.Save(c.Request.Context(), p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK, "id": p.ID})
}

func (h *Handler) deleteProfile(c *gin.Context) {
	if err := h.services.Profiles.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to delete profile",
			"profile_delete_failed", err, "id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

type coneFireRequest struct {
	Cone     string `json:"cone" binding:"required"`
	Speed    string `json:"speed"`
	Preheat  bool   `json:"preheat"`
	SlowCool bool   `json:"slow_cool"`
	Save     bool   `json:"save"`
}

// coneFire generates a cone-fire profile; with save=true it also stores it.
func (h *Handler) coneFire(c *gin.Context) {
	var req coneFireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}

	speed, err := cone.ParseSpeed(req.Speed)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.services.Profiles.GenerateConeFire(req.Cone, speed,
		cone.Options{Preheat: req.Preheat, SlowCool: req.SlowCool})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Save {
		if err := h.services.Profiles.Save(c.Request.Context(), p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, p)
}
