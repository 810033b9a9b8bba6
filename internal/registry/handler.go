package registry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockbackbone/stockbackbone/internal/platform/httpx"
)

// Handler wires HTTP endpoints for registration.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers registry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/suppliers", h.handleCreateSupplier)
	r.Post("/customers", h.handleCreateCustomer)
	r.Post("/skus", h.handleCreateSKU)
	r.Get("/entities/{entityID}", h.handleGetEntity)
}

type createEntityRequest struct {
	Name string `json:"name" validate:"required,max=50"`
}

type createSKURequest struct {
	Description string `json:"description" validate:"required,max=50"`
}

type createdResponse struct {
	ID int64 `json:"id"`
}

func (h *Handler) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	h.createEntity(w, r, h.service.CreateSupplier)
}

func (h *Handler) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	h.createEntity(w, r, h.service.CreateCustomer)
}

func (h *Handler) createEntity(w http.ResponseWriter, r *http.Request, create func(ctx context.Context, name string) (int64, error)) {
	var req createEntityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	id, err := create(r.Context(), req.Name)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, createdResponse{ID: id})
}

func (h *Handler) handleCreateSKU(w http.ResponseWriter, r *http.Request) {
	var req createSKURequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sku, err := h.service.CreateSKU(r.Context(), req.Description)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, createdResponse{ID: sku})
}

type entityResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"entity_type"`
}

func (h *Handler) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "entityID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Entity ID", err.Error())
		return
	}
	entity, err := h.service.GetEntity(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entityResponse{ID: entity.ID, Name: entity.Name, Type: string(entity.Type)})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Input", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("registry request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
