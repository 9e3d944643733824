// Package httppresentation exposes the payment use cases over HTTP.
package httppresentation

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopspring/decimal"

	apporder "github.com/Zhima-Mochi/payflow/internal/application/order"
	apppayment "github.com/Zhima-Mochi/payflow/internal/application/payment"
	"github.com/Zhima-Mochi/payflow/internal/domain/exchange"
	domainorder "github.com/Zhima-Mochi/payflow/internal/domain/order"
	domainpayment "github.com/Zhima-Mochi/payflow/internal/domain/payment"
	"github.com/Zhima-Mochi/payflow/internal/observability"
)

const (
	componentHTTPHandler = "http_server"

	// headerSignature carries the gateway's HMAC over the raw webhook body.
	headerSignature = "X-Provider-Signature"
)

type Handler struct {
	orders   *apporder.Service
	payments *apppayment.Service
	log      observability.Logger
	tel      observability.Observability
}

func NewHandler(orders *apporder.Service, payments *apppayment.Service,
	logger observability.Logger, tel observability.Observability,
) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		orders:   orders,
		payments: payments,
		log:      logger.With(observability.F("component", componentHTTPHandler)),
		tel:      tel,
	}
}

func (h *Handler) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ObservabilityMiddleware(h.log, h.tel))

	r.POST("/orders", h.createOrder)

	payments := r.Group("/payments/:method")
	{
		payments.POST("/create", h.createPayment)
		payments.GET("/status/:orderId", h.getStatus)
		payments.POST("/webhook", h.handleWebhook)
		payments.POST("/cancel", h.cancelPayment)
		payments.POST("/refund", h.refundPayment)
	}

	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

type createOrderRequest struct {
	Number     string `json:"number"`
	CustomerID string `json:"customerId" binding:"required"`
	Total      string `json:"total" binding:"required"`
	Currency   string `json:"currency" binding:"required"`
}

func (h *Handler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	total, err := decimal.NewFromString(req.Total)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := h.orders.CreateOrder(c.Request.Context(), apporder.CreateOrderInput{
		Number:     req.Number,
		CustomerID: req.CustomerID,
		Total:      total,
		Currency:   req.Currency,
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{"orderId": result.OrderID, "status": string(result.Status)})
}

type createPaymentRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

type createPaymentResponse struct {
	OrderID               string `json:"orderId"`
	OrderNumber           string `json:"orderNumber"`
	Address               string `json:"address,omitempty"`
	PayURL                string `json:"payUrl,omitempty"`
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	ExchangeRate          string `json:"exchangeRate"`
	RequiredConfirmations int64  `json:"requiredConfirmations"`
	PaymentWindowMinutes  int    `json:"paymentWindowMinutes"`
}

func (h *Handler) createPayment(c *gin.Context) {
	method, ok := h.method(c)
	if !ok {
		return
	}
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := h.payments.CreatePayment(c.Request.Context(), req.OrderID, method)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respond(c, http.StatusCreated, createPaymentResponse{
		OrderID:               result.OrderID,
		OrderNumber:           result.OrderNumber,
		Address:               result.Address,
		PayURL:                result.PayURL,
		Amount:                result.Amount,
		Currency:              result.Currency,
		ExchangeRate:          result.ExchangeRate,
		RequiredConfirmations: result.RequiredConfirmations,
		PaymentWindowMinutes:  result.PaymentWindowMinutes,
	})
}

type statusResponse struct {
	OrderID               string `json:"orderId"`
	Status                string `json:"paymentStatus"`
	Confirmations         int64  `json:"confirmations"`
	RequiredConfirmations int64  `json:"requiredConfirmations"`
	PaidAmount            string `json:"paidAmount"`
	TransactionHash       string `json:"transactionHash,omitempty"`
	IsExpired             bool   `json:"isExpired"`
}

func (h *Handler) getStatus(c *gin.Context) {
	if _, ok := h.method(c); !ok {
		return
	}
	view, err := h.payments.GetStatus(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respond(c, http.StatusOK, statusResponse{
		OrderID:               view.OrderID,
		Status:                string(view.Status),
		Confirmations:         view.Confirmations,
		RequiredConfirmations: view.RequiredConfirmations,
		PaidAmount:            view.PaidAmount,
		TransactionHash:       view.TransactionHash,
		IsExpired:             view.IsExpired,
	})
}

func (h *Handler) handleWebhook(c *gin.Context) {
	method, ok := h.method(c)
	if !ok {
		return
	}
	// the signature covers the raw bytes; binding would re-serialize them
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	if err := h.payments.HandleWebhook(c.Request.Context(), method, payload, c.GetHeader(headerSignature)); err != nil {
		respondDomainError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"received": true})
}

type orderRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

func (h *Handler) cancelPayment(c *gin.Context) {
	if _, ok := h.method(c); !ok {
		return
	}
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if err := h.payments.Cancel(c.Request.Context(), req.OrderID); err != nil {
		respondDomainError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"orderId": req.OrderID, "status": string(domainpayment.StatusCancelled)})
}

func (h *Handler) refundPayment(c *gin.Context) {
	if _, ok := h.method(c); !ok {
		return
	}
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if err := h.payments.Refund(c.Request.Context(), req.OrderID); err != nil {
		respondDomainError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"orderId": req.OrderID, "status": string(domainpayment.StatusRefunded)})
}

func (h *Handler) health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *Handler) method(c *gin.Context) (domainpayment.Method, bool) {
	method, err := domainpayment.ParseMethod(c.Param("method"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return "", false
	}
	return method, true
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func respondError(c *gin.Context, status int, err error) {
	c.JSON(status, envelope{Success: false, Error: err.Error()})
}

func respondDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domainpayment.ErrInvalidMethod),
		errors.Is(err, domainpayment.ErrMalformedPayload),
		errors.Is(err, domainorder.ErrInvalidAmount):
		respondError(c, http.StatusBadRequest, err)
	case errors.Is(err, domainpayment.ErrInvalidSignature):
		respondError(c, http.StatusUnauthorized, err)
	case errors.Is(err, domainpayment.ErrNotFound),
		errors.Is(err, domainorder.ErrNotFound):
		respondError(c, http.StatusNotFound, err)
	case errors.Is(err, domainpayment.ErrOrderAlreadyPaid),
		errors.Is(err, domainpayment.ErrCancelNotAllowed),
		errors.Is(err, domainpayment.ErrInvalidStateTransition),
		errors.Is(err, domainpayment.ErrConflict):
		respondError(c, http.StatusConflict, err)
	case errors.Is(err, domainpayment.ErrRefundNotSupported),
		errors.Is(err, domainpayment.ErrGatewayRejected):
		respondError(c, http.StatusUnprocessableEntity, err)
	case errors.Is(err, domainpayment.ErrGatewayUnavailable):
		respondError(c, http.StatusBadGateway, err)
	case errors.Is(err, exchange.ErrRateUnavailable):
		respondError(c, http.StatusServiceUnavailable, err)
	default:
		respondError(c, http.StatusInternalServerError, err)
	}
}
