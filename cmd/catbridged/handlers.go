package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// handleGetStatus returns the cached radio state and bridge status.
func (d *Daemon) handleGetStatus(c *gin.Context) {
	st := d.engine.Status()

	c.JSON(http.StatusOK, gin.H{
		"status":          "running",
		"version":         Version,
		"frequency_mhz":   st.FrequencyMHz,
		"frequency_hz":    st.FrequencyHz,
		"mode":            st.Mode,
		"last_refresh":    st.LastRefresh,
		"bridge_occupied": st.BridgeOccupied,
		"bridge_client":   st.BridgeClient,
		"suspended":       st.Suspended,
		"uptime":          st.Uptime,
	})
}

// handleSetFrequency tunes the radio. The cache only changes when the
// radio acknowledges, so failure is visible to the caller.
func (d *Daemon) handleSetFrequency(c *gin.Context) {
	var req struct {
		FrequencyMHz string `json:"frequency_mhz" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := d.engine.SetFrequencyMHz(req.FrequencyMHz); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"frequency_mhz": d.engine.Status().FrequencyMHz,
	})
}

// handleSetMode sets the radio operating mode.
func (d *Daemon) handleSetMode(c *gin.Context) {
	var req struct {
		Mode string `json:"mode" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := d.engine.SetMode(req.Mode); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"mode":   d.engine.Status().Mode,
	})
}

// handleGetEvents returns recent operational events.
func (d *Daemon) handleGetEvents(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		limit = 50
	}

	events, err := d.engine.RecentEvents(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// handleSuspend releases the serial device for a firmware update.
func (d *Daemon) handleSuspend(c *gin.Context) {
	d.engine.SuspendForUpdate()
	c.JSON(http.StatusOK, gin.H{
		"status": "suspended",
	})
}

// handleResume restores normal bridge operation after an update.
func (d *Daemon) handleResume(c *gin.Context) {
	d.engine.ResumeAfterUpdate()
	c.JSON(http.StatusOK, gin.H{
		"status": "resumed",
	})
}
