package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stockbackbone/stockbackbone/internal/platform/httpx"
)

// ErrPositionNotFound indicates the sku has never received stock.
var ErrPositionNotFound = errors.New("ledger: stock position not found")

// Handler wires the stock read endpoint.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
	cache  *Cache
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository, cache *Cache) *Handler {
	return &Handler{logger: logger, repo: repo, cache: cache}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/inventory/{sku}", h.handleGetPosition)
}

type positionResponse struct {
	PositionID int64   `json:"position_id"`
	SKU        int64   `json:"sku"`
	Qty        float64 `json:"qty"`
}

func (h *Handler) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	sku, err := strconv.ParseInt(chi.URLParam(r, "sku"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid SKU", err.Error())
		return
	}
	pos, err := h.cache.FetchPosition(r.Context(), sku, func(ctx context.Context) (StockPosition, error) {
		return h.loadPosition(ctx, sku)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrPositionNotFound):
			httpx.Problem(w, http.StatusNotFound, "No Stock Position", err.Error())
		default:
			h.logger.Error("read stock position", slog.Int64("sku", sku), slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	httpx.JSON(w, http.StatusOK, positionResponse{PositionID: pos.PositionID, SKU: pos.SKU, Qty: pos.Qty})
}

func (h *Handler) loadPosition(ctx context.Context, sku int64) (StockPosition, error) {
	positions, err := h.repo.GetPositions(ctx, []int64{sku})
	if err != nil {
		return StockPosition{}, err
	}
	switch len(positions) {
	case 0:
		return StockPosition{}, ErrPositionNotFound
	case 1:
		return positions[0], nil
	default:
		return StockPosition{}, fmt.Errorf("ledger: sku %d held by %d stock positions", sku, len(positions))
	}
}
