package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockbackbone/stockbackbone/internal/orders"
	"github.com/stockbackbone/stockbackbone/internal/platform/httpx"
	"github.com/stockbackbone/stockbackbone/internal/shared"
)

// Handler wires HTTP endpoints for order creation and fulfillment.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers order and fulfillment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/purchase-orders", h.handleCreatePurchase)
	r.Post("/sale-orders", h.handleCreateSale)
	r.Get("/orders/{orderID}", h.handleGetOrder)
	r.Post("/purchase-orders/{orderID}/receive", h.handleReceive)
	r.Post("/sale-orders/{orderID}/issue", h.handleIssue)
}

type orderLineRequest struct {
	SKU int64  `json:"sku" validate:"required,gt=0"`
	Qty string `json:"qty" validate:"required"`
}

type createOrderRequest struct {
	EntityID int64              `json:"entity_id" validate:"required,gt=0"`
	Lines    []orderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type fulfillRequest struct {
	Mode string `json:"mode" validate:"required"`
}

type orderLineResponse struct {
	ID           int64   `json:"id"`
	Position     int     `json:"position"`
	SKU          int64   `json:"sku"`
	QtyOrdered   float64 `json:"qty_ordered"`
	QtyDelivered float64 `json:"qty_delivered"`
}

type orderResponse struct {
	ID       int64               `json:"id"`
	Type     string              `json:"order_type"`
	EntityID int64               `json:"entity_id"`
	Lines    []orderLineResponse `json:"lines"`
}

type createdOrderResponse struct {
	OrderID int64 `json:"order_id"`
}

func (h *Handler) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	h.createOrder(w, r, h.service.MakePurchaseOrder)
}

func (h *Handler) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	h.createOrder(w, r, h.service.MakeSaleOrder)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request, create func(ctx context.Context, entityID int64, lines []OrderLineInput) (int64, error)) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	orderID, err := create(r.Context(), req.EntityID, toLineInputs(req.Lines))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, createdOrderResponse{OrderID: orderID})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Order ID", err.Error())
		return
	}
	ord, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := orderResponse{ID: ord.ID, Type: string(ord.Type), EntityID: ord.EntityID}
	for _, line := range ord.Lines {
		resp.Lines = append(resp.Lines, orderLineResponse{
			ID:           line.ID,
			Position:     line.Position,
			SKU:          line.SKU,
			QtyOrdered:   line.QtyOrdered,
			QtyDelivered: line.QtyDelivered,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	h.fulfill(w, r, h.service.ReceivePurchaseOrder)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	h.fulfill(w, r, h.service.IssueSaleOrder)
}

func (h *Handler) fulfill(w http.ResponseWriter, r *http.Request, settle func(ctx context.Context, orderID int64, mode string) error) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Order ID", err.Error())
		return
	}
	var req fulfillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := settle(r.Context(), orderID, req.Mode); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "fulfilled"})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orders.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Order Not Found", err.Error())
	case errors.Is(err, ErrEntityNotFound), errors.Is(err, ErrSKUNotFound):
		httpx.Problem(w, http.StatusNotFound, "Unknown Reference", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrEmptyOrder),
		errors.Is(err, ErrUnsupportedMode), errors.Is(err, ErrWrongOrderType):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotEnoughStock):
		httpx.Problem(w, http.StatusConflict, "Not Enough Stock", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Already Fulfilled", err.Error())
	default:
		h.logger.Error("reconcile request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toLineInputs(lines []orderLineRequest) []OrderLineInput {
	out := make([]OrderLineInput, len(lines))
	for i, line := range lines {
		out[i] = OrderLineInput{SKU: line.SKU, Qty: line.Qty}
	}
	return out
}
