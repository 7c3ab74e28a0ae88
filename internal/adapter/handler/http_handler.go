package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vhoang/orderledger/internal/core/domain"
	"github.com/vhoang/orderledger/internal/core/service"
)

// LineService is the slice of OrderLineProcessor the handler needs.
type LineService interface {
	CreateLine(ctx context.Context, in service.CreateLineInput) (*domain.OrderLine, error)
	UpdateQuantity(ctx context.Context, lineID int64, newQuantity int) (*domain.OrderLine, error)
	DeleteLine(ctx context.Context, lineID int64) error
}

// ProductReader serves the cached product read path.
type ProductReader interface {
	Get(ctx context.Context, productID int64) (*domain.Product, error)
}

type HTTPHandler struct {
	lines    LineService
	products ProductReader
	log      *zap.Logger
}

func NewHTTPHandler(lines LineService, products ProductReader, log *zap.Logger) *HTTPHandler {
	return &HTTPHandler{lines: lines, products: products, log: log}
}

func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/order-lines", h.CreateLine)
	mux.HandleFunc("PATCH /api/order-lines/{id}", h.UpdateLine)
	mux.HandleFunc("DELETE /api/order-lines/{id}", h.DeleteLine)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
}

type createLineRequest struct {
	OrderID   int64  `json:"order_id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type updateLineRequest struct {
	Quantity int `json:"quantity"`
}

type lineResponse struct {
	ID        int64  `json:"id"`
	OrderID   int64  `json:"order_id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type productResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
	Stock int    `json:"stock"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`

	Requested int    `json:"requested,omitempty"`
	Available int    `json:"available,omitempty"`
	Expected  string `json:"expected_price,omitempty"`
}

func (h *HTTPHandler) CreateLine(w http.ResponseWriter, r *http.Request) {
	var req createLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.OrderID <= 0 || req.ProductID <= 0 || req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "order_id, product_id and quantity are required and must be positive"})
		return
	}
	price, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unit_price must be a decimal string"})
		return
	}

	line, err := h.lines.CreateLine(r.Context(), service.CreateLineInput{
		OrderID:   req.OrderID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UnitPrice: price,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLineResponse(line))
}

func (h *HTTPHandler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "quantity must be positive"})
		return
	}

	line, err := h.lines.UpdateQuantity(r.Context(), lineID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toLineResponse(line))
}

func (h *HTTPHandler) DeleteLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.lines.DeleteLine(r.Context(), lineID); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(w, r)
	if !ok {
		return
	}

	product, err := h.products.Get(r.Context(), productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, productResponse{
		ID:    product.ID,
		Name:  product.Name,
		Price: product.Price.String(),
		Stock: product.Stock,
	})
}

func (h *HTTPHandler) HealthCheck(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, ping := range checks {
			if err := ping(r.Context()); err != nil {
				body[name] = "down"
				body["status"] = "degraded"
			} else {
				body[name] = "up"
			}
		}
		writeJSON(w, status, body)
	}
}

// writeError maps the domain error taxonomy onto HTTP statuses. Business
// rejections carry enough detail to self-correct; infrastructure faults are
// reported generically with the correlation id and logged with the cause.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := RequestIDFrom(r.Context())

	var stockErr *domain.InsufficientStockError
	var priceErr *domain.PriceMismatchError
	switch {
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     "insufficient stock",
			RequestID: reqID,
			Requested: stockErr.Requested,
			Available: stockErr.Available,
		})
	case errors.As(err, &priceErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:     "price mismatch",
			RequestID: reqID,
			Expected:  priceErr.Expected.String(),
		})
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrLineNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), RequestID: reqID})
	case errors.Is(err, domain.ErrLockTimeout):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:     "busy, retry later",
			RequestID: reqID,
		})
	default:
		h.log.Error("request failed",
			zap.String("request_id", reqID),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:     "internal error",
			RequestID: reqID,
		})
	}
}

func toLineResponse(line *domain.OrderLine) lineResponse {
	return lineResponse{
		ID:        line.ID,
		OrderID:   line.OrderID,
		ProductID: line.ProductID,
		Quantity:  line.Quantity,
		UnitPrice: line.Price.String(),
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
