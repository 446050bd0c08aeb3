package handler

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"helloev/internal/bookings/service"
	apperrors "helloev/pkg/errors"
	httputil "helloev/pkg/http"
	"helloev/pkg/logger"
	"helloev/pkg/middleware"
	"helloev/pkg/model"
)

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(service service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

func (h *BookingHandler) Reserve(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, "Reserve", apperrors.Forbidden("Authentication required"))
		return
	}

	var req model.ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Reserve", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	resp, err := h.service.Reserve(r.Context(), actor, &req)
	if err != nil {
		h.writeError(w, "Reserve", err)
		return
	}

	if err := httputil.WriteCreated(w, resp); err != nil {
		h.log.Error("failed to write created response", "handler", "Reserve", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) Release(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, "Release", apperrors.Forbidden("Authentication required"))
		return
	}

	var req model.ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Release", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	resp, err := h.service.Release(r.Context(), actor, &req)
	if err != nil {
		h.writeError(w, "Release", err)
		return
	}

	if err := httputil.WriteSuccess(w, resp); err != nil {
		h.log.Error("failed to write success response", "handler", "Release", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) ForceRelease(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, "ForceRelease", apperrors.Forbidden("Authentication required"))
		return
	}

	var req model.ForceReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "ForceRelease", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	resp, err := h.service.ForceRelease(r.Context(), actor, &req)
	if err != nil {
		h.writeError(w, "ForceRelease", err)
		return
	}

	if err := httputil.WriteSuccess(w, resp); err != nil {
		h.log.Error("failed to write success response", "handler", "ForceRelease", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) GetCurrentBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, "GetCurrentBooking", apperrors.Forbidden("Authentication required"))
		return
	}

	userID := ps.ByName("id")

	booking, err := h.service.GetCurrentBooking(r.Context(), actor, userID)
	if err != nil {
		h.writeError(w, "GetCurrentBooking", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetCurrentBooking", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handlerName string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "operation", "WriteError", "error", writeErr)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings/reserve", h.Reserve)
	router.PUT("/api/v1/bookings/release", h.Release)
	router.POST("/api/v1/bookings/force-release", h.ForceRelease)
	router.GET("/api/v1/bookings/users/:id/current", h.GetCurrentBooking)
}
