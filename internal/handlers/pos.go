package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/xelth-com/eckpos/internal/backend"
	"github.com/xelth-com/eckpos/internal/interceptor"
	"github.com/xelth-com/eckpos/internal/models"
	"github.com/xelth-com/eckpos/internal/pos"
)

// PosHandler lets the till UI run sales through the daemon
type PosHandler struct {
	checkout *pos.Checkout
	lookup   *pos.Lookup
}

func NewPosHandler(checkout *pos.Checkout, lookup *pos.Lookup) *PosHandler {
	return &PosHandler{checkout: checkout, lookup: lookup}
}

// RegisterRoutes registers POS routes
func (ph *PosHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/sales", ph.CompleteSale).Methods("POST")
	r.HandleFunc("/products/barcode/{code}", ph.ProductByBarcode).Methods("GET")
	r.HandleFunc("/products/search", ph.SearchProducts).Methods("GET")
	r.HandleFunc("/customers/phone/{phone}", ph.CustomerByPhone).Methods("GET")
}

type saleRequest struct {
	Items []struct {
		Barcode  string `json:"barcode"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
	CustomerPhone string               `json:"customer_phone"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	PaidAmount    decimal.Decimal      `json:"paid_amount"`
}

// CompleteSale builds a cart from barcodes and completes it
func (ph *PosHandler) CompleteSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid sale request")
		return
	}

	ctx := r.Context()
	cart := pos.NewCart()
	for _, line := range req.Items {
		product, err := ph.lookup.ProductByBarcode(ctx, line.Barcode)
		if err != nil {
			respondSaleError(w, err)
			return
		}
		if err := cart.Add(*product, line.Quantity); err != nil {
			respondSaleError(w, err)
			return
		}
	}

	var customer *models.Customer
	if req.CustomerPhone != "" {
		c, err := ph.lookup.CustomerByPhone(ctx, req.CustomerPhone)
		if err != nil {
			respondSaleError(w, err)
			return
		}
		customer = c
	}

	receipt, err := ph.checkout.CompleteSale(ctx, cart, customer, req.PaymentMethod, req.PaidAmount)
	if err != nil {
		respondSaleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"receipt": receipt,
		"status":  receipt.Status(),
		"text":    receipt.Text(),
	})
}

func (ph *PosHandler) ProductByBarcode(w http.ResponseWriter, r *http.Request) {
	product, err := ph.lookup.ProductByBarcode(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		respondSaleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"product": product.JSON()})
}

func (ph *PosHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	products, err := ph.lookup.SearchProducts(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondSaleError(w, err)
		return
	}
	records := make([]json.RawMessage, 0, len(products))
	for _, p := range products {
		records = append(records, p.JSON())
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"products": records})
}

func (ph *PosHandler) CustomerByPhone(w http.ResponseWriter, r *http.Request) {
	customer, err := ph.lookup.CustomerByPhone(r.Context(), mux.Vars(r)["phone"])
	if err != nil {
		respondSaleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"customer": customer.JSON()})
}

// respondSaleError maps POS and backend failures onto HTTP statuses
func respondSaleError(w http.ResponseWriter, err error) {
	var rejected *backend.RejectedError
	switch {
	case errors.As(err, &rejected):
		msg := rejected.Message()
		if msg == "" {
			msg = err.Error()
		}
		respondJSON(w, rejected.Status, map[string]string{"error": msg})
	case errors.Is(err, pos.ErrEmptyCart), errors.Is(err, pos.ErrInvalidQuantity), errors.Is(err, pos.ErrInvalidPaymentMethod):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pos.ErrInsufficientPayment):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, pos.ErrInsufficientStock):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, interceptor.ErrNoCachedData):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pos.ErrSaleNotPersisted), errors.Is(err, backend.ErrConnectivity):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
