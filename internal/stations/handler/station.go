package handler

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"helloev/internal/stations/service"
	apperrors "helloev/pkg/errors"
	httputil "helloev/pkg/http"
	"helloev/pkg/logger"
	"helloev/pkg/middleware"
	"helloev/pkg/model"
)

type StationHandler struct {
	service service.StationService
	log     *logger.Logger
}

func NewStationHandler(service service.StationService, log *logger.Logger) *StationHandler {
	return &StationHandler{
		service: service,
		log:     log,
	}
}

func (h *StationHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, "Create", apperrors.Forbidden("Authentication required"))
		return
	}

	var station model.Station
	if err := json.NewDecoder(r.Body).Decode(&station); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Create", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.Create(r.Context(), actor, &station); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, station); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *StationHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	detail, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, detail); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *StationHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	stations, total, err := h.service.GetAll(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	if err := httputil.WritePaginated(w, stations, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "operation", "WritePaginated", "error", err)
	}
}

func (h *StationHandler) Search(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	address := r.URL.Query().Get("address")
	if address == "" {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "The 'address' query parameter is required",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Search", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "Search", err)
		return
	}

	stations, total, err := h.service.SearchByAddress(r.Context(), address, limit, offset)
	if err != nil {
		h.writeError(w, "Search", err)
		return
	}

	if err := httputil.WritePaginated(w, stations, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "Search", "operation", "WritePaginated", "error", err)
	}
}

func (h *StationHandler) AddBucket(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, "AddBucket", apperrors.Forbidden("Authentication required"))
		return
	}

	id := ps.ByName("id")

	var bucket model.SlotBucket
	if err := json.NewDecoder(r.Body).Decode(&bucket); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "AddBucket", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.AddBucket(r.Context(), actor, id, &bucket); err != nil {
		h.writeError(w, "AddBucket", err)
		return
	}

	if err := httputil.WriteCreated(w, bucket); err != nil {
		h.log.Error("failed to write created response", "handler", "AddBucket", "operation", "WriteCreated", "error", err)
	}
}

func (h *StationHandler) UpdateBucket(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, "UpdateBucket", apperrors.Forbidden("Authentication required"))
		return
	}

	id := ps.ByName("id")
	bucketID := ps.ByName("bucketId")

	var update model.BucketUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "UpdateBucket", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.UpdateBucket(r.Context(), actor, id, bucketID, &update); err != nil {
		h.writeError(w, "UpdateBucket", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *StationHandler) writeError(w http.ResponseWriter, handlerName string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "operation", "WriteError", "error", writeErr)
	}
}

func (h *StationHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/stations", h.Create)
	router.GET("/api/v1/stations", h.GetAll)
	router.GET("/api/v1/stations/id/:id", h.GetByID)
	router.GET("/api/v1/stations/search", h.Search)
	router.POST("/api/v1/stations/id/:id/buckets", h.AddBucket)
	router.PATCH("/api/v1/stations/id/:id/buckets/:bucketId", h.UpdateBucket)
}
