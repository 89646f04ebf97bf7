package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"kilnfire"

	"github.com/gin-gonic/gin"
)

func (h *Handler) getHistory(c *gin.Context) {
	records, err := h.services.History.Records()
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load history",
			"history_load_failed", err)
		return
	}
	if records == nil {
		records = []kilnfire.HistoryRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *Handler) getTrace(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}

	blob, err := h.services.History.TraceCSV(uint32(id))
	if err != nil {
		if errors.Is(err, kilnfire.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trace not found"})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to read trace",
			"trace_read_failed", err, "id", id)
		return
	}
	c.Data(http.StatusOK, "text/csv", blob)
}

func (h *Handler) clearHistory(c *gin.Context) {
	if err := h.services.History.Clear(); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to clear history",
			"history_clear_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}
