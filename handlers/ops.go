package handlers

import (
	"errors"
	"net/http"
	"time"

	appointmentRepo "bookline/database/repository/appointment"
	"bookline/models"
	"bookline/services/booking"
	"bookline/utils"

	"github.com/gin-gonic/gin"
)

// HandlerBundle carries the dependencies the ops endpoints need.
type HandlerBundle struct {
	Appointments appointmentRepo.AppointmentRepository
	Coord        booking.Coordinator
}

// HealthHandler reports liveness.
func (hb *HandlerBundle) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// ListAppointmentsHandler returns upcoming appointments, optionally filtered
// by status. Monitoring only.
func (hb *HandlerBundle) ListAppointmentsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	if status := c.Query("status"); status != "" {
		appts, err := hb.Appointments.ListByStatus(ctx, models.AppointmentStatus(status), 200)
		if err != nil {
			utils.JSONError(c, http.StatusInternalServerError, "Failed to list appointments", err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"appointments": appts})
		return
	}

	now := time.Now()
	appts, err := hb.Appointments.ListStartingWithin(ctx, now, now.AddDate(0, 0, 30))
	if err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "Failed to list appointments", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointments": appts})
}

// GetAppointmentHandler returns one appointment by ID.
func (hb *HandlerBundle) GetAppointmentHandler(c *gin.Context) {
	appt, err := hb.Appointments.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, appointmentRepo.ErrNotFound) {
			utils.JSONError(c, http.StatusNotFound, "Appointment not found", c.Param("id"))
			return
		}
		utils.JSONError(c, http.StatusInternalServerError, "Failed to fetch appointment", err.Error())
		return
	}
	c.JSON(http.StatusOK, appt)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelAppointmentHandler cancels idempotently: repeating the call reports
// alreadyCancelled instead of failing.
func (hb *HandlerBundle) CancelAppointmentHandler(c *gin.Context) {
	var req cancelRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "cancelled by operator"
	}

	appt, cancelled, err := hb.Coord.Cancel(c.Request.Context(), c.Param("id"), "ops", req.Reason)
	if err != nil {
		if errors.Is(err, appointmentRepo.ErrNotFound) {
			utils.JSONError(c, http.StatusNotFound, "Appointment not found", c.Param("id"))
			return
		}
		if errors.Is(err, models.ErrInvalidTransition) {
			utils.JSONError(c, http.StatusConflict, "Appointment cannot be cancelled", err.Error())
			return
		}
		utils.JSONError(c, http.StatusInternalServerError, "Cancel failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointment": appt, "alreadyCancelled": !cancelled})
}

// ApplyEventHandler drives the remaining lifecycle edges (no_show, start,
// complete) from the ops side.
func (hb *HandlerBundle) ApplyEventHandler(c *gin.Context) {
	event := models.StatusEvent(c.Param("event"))
	appt, err := hb.Coord.Apply(c.Request.Context(), c.Param("id"), event)
	if err != nil {
		if errors.Is(err, appointmentRepo.ErrNotFound) {
			utils.JSONError(c, http.StatusNotFound, "Appointment not found", c.Param("id"))
			return
		}
		if errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, appointmentRepo.ErrStaleStatus) {
			utils.JSONError(c, http.StatusConflict, "Event not applicable", err.Error())
			return
		}
		utils.JSONError(c, http.StatusInternalServerError, "Event failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, appt)
}
