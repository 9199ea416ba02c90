// internal/api/handler/transaction.go
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"orderpay/internal/api/types"
	"orderpay/internal/domain"
	"orderpay/internal/service"
	"orderpay/internal/util" // For custom errors
)

// DefaultTimeout bounds a single HTTP request end to end.
const DefaultTimeout = 30 * time.Second

// TransactionHandler handles HTTP requests for order payment operations.
// Amounts cross the API in major currency units and are converted to minor
// units at this boundary.
type TransactionHandler struct {
	service    service.TransactionService
	currencies domain.CurrencyTable
	logger     *slog.Logger
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(svc service.TransactionService, currencies domain.CurrencyTable, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{
		service:    svc,
		currencies: currencies,
		logger:     logger,
	}
}

// Helper function to send JSON responses.
func (h *TransactionHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// Helper function to send error responses.
func (h *TransactionHandler) respondWithError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	name := "INTERNAL_ERROR"
	message := "Internal server error"

	var upstream *util.UpstreamError
	switch {
	case util.IsError(err, util.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		name = "INVALID_INPUT"
		message = err.Error()
	case util.IsError(err, util.ErrNotFound):
		statusCode = http.StatusNotFound
		name = "NOT_FOUND"
		message = "Resource not found"
	case util.IsError(err, util.ErrWalletExists):
		statusCode = http.StatusPreconditionFailed
		name = "WALLET_EXISTS"
		message = "A wallet hold already exists for this order"
	case util.IsError(err, util.ErrCurrencyInvalid):
		statusCode = http.StatusBadRequest
		name = "CURRENCY_INVALID"
		message = "Currency not supported for the requested payment method"
	case util.IsError(err, util.ErrOrderCancelled):
		statusCode = http.StatusBadRequest
		name = "ORDER_CANCELLED"
		message = "Order payment was already cancelled"
	case util.IsReconciliationError(err):
		statusCode = http.StatusPreconditionFailed
		name = "TOTAL_AMOUNT_MISMATCH"
		message = err.Error()
	case util.IsStateConflict(err):
		statusCode = http.StatusConflict
		name = "STATE_CONFLICT"
		message = err.Error()
	case util.IsError(err, util.ErrVersionConflict), util.IsError(err, util.ErrDuplicateEntry):
		statusCode = http.StatusConflict
		name = "CONCURRENT_MODIFICATION"
		message = "The order was modified concurrently, retry the request"
	case errors.As(err, &upstream):
		statusCode = http.StatusBadGateway
		name = util.InterserviceErrorName
		message = "A downstream service call failed"
		h.logger.Error("Upstream call failed", "service", upstream.Service, "error", err)
	default:
		h.logger.Error("Unhandled service error", "error", err)
	}

	h.respondWithJSON(w, statusCode, types.NewErrorResponse(name, message))
}

// MoneyPayload is an amount in major currency units as it crosses the API.
type MoneyPayload struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (h *TransactionHandler) parseMoney(p MoneyPayload) (domain.Money, error) {
	if p.Currency == "" || p.Amount.IsNegative() {
		return domain.Money{}, util.ErrInvalidInput
	}
	money, err := h.currencies.FromMajor(p.Amount, domain.CurrencyCode(p.Currency))
	if err != nil {
		return domain.Money{}, util.ErrInvalidInput
	}
	return money, nil
}

func (h *TransactionHandler) renderMoney(m domain.Money) (MoneyPayload, error) {
	major, err := h.currencies.MajorUnits(m)
	if err != nil {
		return MoneyPayload{}, err
	}
	return MoneyPayload{Amount: major, Currency: string(m.Currency)}, nil
}

// LegView is one payment method's share of an order breakdown.
type LegView struct {
	Total         MoneyPayload `json:"total"`
	State         string       `json:"state"`
	PaymentMethod string       `json:"paymentMethod"`
	ID            string       `json:"id,omitempty"`
	CreatedAt     *time.Time   `json:"createdAt,omitempty"`
	Is3P          bool         `json:"is3P"`
	Code          string       `json:"code,omitempty"`
}

// BreakdownView is the full per-order breakdown response payload.
type BreakdownView struct {
	Order struct {
		OrderID       string       `json:"orderId"`
		Total         MoneyPayload `json:"total"`
		PaymentMethod string       `json:"paymentMethod"`
	} `json:"order"`
	Breakdown map[string]LegView `json:"breakdown"`
}

func (h *TransactionHandler) renderBreakdown(b *service.OrderBreakdown) (BreakdownView, error) {
	var view BreakdownView
	total, err := h.renderMoney(b.Order.Total)
	if err != nil {
		return BreakdownView{}, err
	}
	view.Order.OrderID = b.Order.OrderID
	view.Order.Total = total
	view.Order.PaymentMethod = string(b.Order.PaymentMethod)
	view.Breakdown = make(map[string]LegView, len(b.Breakdown))
	for pm, leg := range b.Breakdown {
		legTotal, err := h.renderMoney(leg.Total)
		if err != nil {
			return BreakdownView{}, err
		}
		view.Breakdown[string(pm)] = LegView{
			Total:         legTotal,
			State:         string(leg.State),
			PaymentMethod: string(leg.PaymentMethod),
			ID:            leg.ID,
			CreatedAt:     leg.CreatedAt,
			Is3P:          leg.Is3P,
			Code:          leg.Code,
		}
	}
	return view, nil
}

// CreateOrderRequest is the request body to open payment collection.
type CreateOrderRequest struct {
	OrderID         string       `json:"orderId"`
	RetailerID      string       `json:"retailerId"`
	PaymentMethod   string       `json:"paymentMethod"`
	Total           MoneyPayload `json:"total"`
	TransactionType string       `json:"transactionType,omitempty"`
}

// CreateOrder handles the create order payment request.
// POST /transactions
func (h *TransactionHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}
	if req.OrderID == "" || req.RetailerID == "" || req.PaymentMethod == "" {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}
	total, err := h.parseMoney(req.Total)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	breakdown, err := h.service.CreateOrder(r.Context(), service.CreateOrderInput{
		OrderID:            req.OrderID,
		RetailerID:         req.RetailerID,
		OrderPaymentMethod: domain.OrderPaymentMethod(req.PaymentMethod),
		Total:              total,
		TransactionType:    domain.TransactionType(req.TransactionType),
	})
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	view, err := h.renderBreakdown(breakdown)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusCreated, types.DataResponse[BreakdownView]{Data: view})
}

// CompleteOrderRequest is the request body to settle an order.
type CompleteOrderRequest struct {
	OrderID         string       `json:"orderId"`
	RetailerID      string       `json:"retailerId"`
	Total           MoneyPayload `json:"total"`
	TransactionType string       `json:"transactionType,omitempty"`
}

// CompleteOrder handles the complete order payment request.
// POST /transactions/complete
func (h *TransactionHandler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	var req CompleteOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}
	if req.OrderID == "" {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}
	total, err := h.parseMoney(req.Total)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	breakdown, err := h.service.CompleteOrder(r.Context(), service.CompleteOrderInput{
		OrderID:         req.OrderID,
		RetailerID:      req.RetailerID,
		Total:           total,
		TransactionType: domain.TransactionType(req.TransactionType),
	})
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	view, err := h.renderBreakdown(breakdown)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.DataResponse[BreakdownView]{Data: view})
}

// OrderActionRequest identifies the order an action applies to.
type OrderActionRequest struct {
	OrderID    string `json:"orderId"`
	RetailerID string `json:"retailerId,omitempty"`
}

// CancelOrder handles the cancel order payment request.
// POST /transactions/cancel
func (h *TransactionHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	cancelled, err := h.service.CancelOrder(r.Context(), req.OrderID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.DataResponse[map[string]bool]{
		Data: map[string]bool{"cancelled": cancelled},
	})
}

// RollbackOrder handles the rollback order payment request.
// POST /transactions/rollback
func (h *TransactionHandler) RollbackOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	rolledBack, err := h.service.RollbackOrder(r.Context(), req.OrderID, req.RetailerID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.DataResponse[map[string]bool]{
		Data: map[string]bool{"rolledBack": rolledBack},
	})
}

// PaymentNotificationRequest is the processor's asynchronous confirmation.
type PaymentNotificationRequest struct {
	SubtransactionID string `json:"subtransactionId"`
}

// PaymentNotification handles the processor's hold confirmation callback.
// POST /transactions/notify
func (h *TransactionHandler) PaymentNotification(w http.ResponseWriter, r *http.Request) {
	var req PaymentNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SubtransactionID == "" {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	applied, err := h.service.PaymentNotification(r.Context(), req.SubtransactionID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.DataResponse[map[string]bool]{
		Data: map[string]bool{"applied": applied},
	})
}

// OrderTotalRequest pairs an order with its total for the read endpoints.
type OrderTotalRequest struct {
	OrderID string       `json:"orderId"`
	Total   MoneyPayload `json:"total"`
}

func (h *TransactionHandler) parseOrderTotal(req OrderTotalRequest) (service.OrderTotal, error) {
	if req.OrderID == "" {
		return service.OrderTotal{}, util.ErrInvalidInput
	}
	total, err := h.parseMoney(req.Total)
	if err != nil {
		return service.OrderTotal{}, err
	}
	return service.OrderTotal{OrderID: req.OrderID, Total: total}, nil
}

// OrderBreakdown handles the single-order breakdown request.
// POST /breakdown
func (h *TransactionHandler) OrderBreakdown(w http.ResponseWriter, r *http.Request) {
	var req OrderTotalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}
	order, err := h.parseOrderTotal(req)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	breakdown, err := h.service.OrderBreakdown(r.Context(), order.OrderID, order.Total)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	view, err := h.renderBreakdown(breakdown)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.DataResponse[BreakdownView]{Data: view})
}

// BatchAmountsView is the condensed per-order breakdown in major units.
type BatchAmountsView struct {
	CashAmount   MoneyPayload `json:"cashAmount"`
	WalletAmount MoneyPayload `json:"walletAmount"`
	SadadAmount  MoneyPayload `json:"sadadAmount"`
}

// BatchRequest carries the orders a batch read applies to.
type BatchRequest struct {
	Orders []OrderTotalRequest `json:"orders"`
}

// BatchBreakdown handles the batch breakdown request.
// POST /breakdown/batch
func (h *TransactionHandler) BatchBreakdown(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Orders) == 0 {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	batch := make([]service.OrderTotal, 0, len(req.Orders))
	for _, o := range req.Orders {
		order, err := h.parseOrderTotal(o)
		if err != nil {
			h.respondWithError(w, err)
			return
		}
		batch = append(batch, order)
	}

	amounts, err := h.service.BatchBreakdown(r.Context(), batch)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	view := make(map[string]BatchAmountsView, len(amounts))
	for orderID, a := range amounts {
		cash, err := h.renderMoney(a.CashAmount)
		if err != nil {
			h.respondWithError(w, err)
			return
		}
		wallet, err := h.renderMoney(a.WalletAmount)
		if err != nil {
			h.respondWithError(w, err)
			return
		}
		sadad, err := h.renderMoney(a.SadadAmount)
		if err != nil {
			h.respondWithError(w, err)
			return
		}
		view[orderID] = BatchAmountsView{CashAmount: cash, WalletAmount: wallet, SadadAmount: sadad}
	}
	h.respondWithJSON(w, http.StatusOK, types.DataResponse[map[string]BatchAmountsView]{Data: view})
}

// CashDueView reports the wallet/cash split for one order in major units.
type CashDueView struct {
	WalletAmount MoneyPayload `json:"walletAmount"`
	CashAmount   MoneyPayload `json:"cashAmount"`
}

func (h *TransactionHandler) renderCashDue(due service.CashDue) (CashDueView, error) {
	wallet, err := h.renderMoney(due.WalletAmount)
	if err != nil {
		return CashDueView{}, err
	}
	cash, err := h.renderMoney(due.CashAmount)
	if err != nil {
		return CashDueView{}, err
	}
	return CashDueView{WalletAmount: wallet, CashAmount: cash}, nil
}

// CashDue handles the single-order cash due request.
// POST /cash
func (h *TransactionHandler) CashDue(w http.ResponseWriter, r *http.Request) {
	var req OrderTotalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}
	order, err := h.parseOrderTotal(req)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	due, err := h.service.CashDue(r.Context(), order.OrderID, order.Total)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	view, err := h.renderCashDue(due)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.DataResponse[CashDueView]{Data: view})
}

// BatchCashDue handles the batch cash due request.
// POST /cash/batch
func (h *TransactionHandler) BatchCashDue(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Orders) == 0 {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	batch := make([]service.OrderTotal, 0, len(req.Orders))
	for _, o := range req.Orders {
		order, err := h.parseOrderTotal(o)
		if err != nil {
			h.respondWithError(w, err)
			return
		}
		batch = append(batch, order)
	}

	dues, err := h.service.BatchCashDue(r.Context(), batch)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	view := make(map[string]CashDueView, len(dues))
	for orderID, due := range dues {
		rendered, err := h.renderCashDue(due)
		if err != nil {
			h.respondWithError(w, err)
			return
		}
		view[orderID] = rendered
	}
	h.respondWithJSON(w, http.StatusOK, types.DataResponse[map[string]CashDueView]{Data: view})
}

// ProspectiveBreakdownRequest projects a split for a not-yet-created order.
type ProspectiveBreakdownRequest struct {
	RetailerID    string          `json:"retailerId"`
	PaymentMethod string          `json:"paymentMethod"`
	Currency      string          `json:"currency"`
	Cart          json.RawMessage `json:"cart"`
}

// ProspectiveBreakdownView is the projected split in major units.
type ProspectiveBreakdownView struct {
	OrderTotal   MoneyPayload `json:"orderTotal"`
	WalletAmount MoneyPayload `json:"walletAmount"`
	FinalAmount  MoneyPayload `json:"finalAmount"`
}

// ProspectiveBreakdown handles the prospective breakdown request.
// POST /breakdown/prospective
func (h *TransactionHandler) ProspectiveBreakdown(w http.ResponseWriter, r *http.Request) {
	var req ProspectiveBreakdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}
	if req.RetailerID == "" || req.PaymentMethod == "" || req.Currency == "" || len(req.Cart) == 0 {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	projected, err := h.service.ProspectiveBreakdown(r.Context(), service.ProspectiveBreakdownInput{
		RetailerID:    req.RetailerID,
		PaymentMethod: domain.OrderPaymentMethod(req.PaymentMethod),
		Currency:      domain.CurrencyCode(req.Currency),
		Payload:       req.Cart,
	})
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	total, err := h.renderMoney(projected.OrderTotal)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	wallet, err := h.renderMoney(projected.WalletAmount)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	final, err := h.renderMoney(projected.FinalAmount)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, types.DataResponse[ProspectiveBreakdownView]{
		Data: ProspectiveBreakdownView{OrderTotal: total, WalletAmount: wallet, FinalAmount: final},
	})
}
