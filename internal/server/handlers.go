package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"storefront/internal/domain"
	"storefront/internal/infrastructure/payment"
	"storefront/internal/infrastructure/push"
	"storefront/internal/service"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const agentHeader = "X-Agent-ID"

type orderResponse struct {
	ID                uuid.UUID      `json:"id"`
	OrderNumber       string         `json:"order_number"`
	CustomerID        uuid.UUID      `json:"customer_id"`
	Total             int64          `json:"total"`
	Status            string         `json:"status"`
	PaymentStatus     string         `json:"payment_status"`
	CheckoutRequestID *string        `json:"checkout_request_id"`
	ReceiptNumber     *string        `json:"receipt_number"`
	TransactionDate   *string        `json:"transaction_date"`
	FailureReason     *string        `json:"failure_reason"`
	Items             []itemResponse `json:"items,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

type itemResponse struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
}

func toOrderResponse(o *domain.Order, items []domain.OrderItem) orderResponse {
	resp := orderResponse{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		CustomerID:        o.CustomerID,
		Total:             o.Total,
		Status:            string(o.Status),
		PaymentStatus:     string(o.Payment),
		CheckoutRequestID: o.CheckoutRequestID,
		ReceiptNumber:     o.ReceiptNumber,
		TransactionDate:   o.TransactionDate,
		FailureReason:     o.FailureReason,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	for _, it := range items {
		resp.Items = append(resp.Items, itemResponse{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return resp
}

func (s *Server) handleHealth(c *gin.Context) {
	stats := map[string]string{"status": "up"}
	if s.Health != nil {
		stats = s.Health(c.Request.Context())
	}
	code := http.StatusOK
	if stats["status"] != "up" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, stats)
}

type createOrderRequest struct {
	CustomerID  uuid.UUID `json:"customer_id"`
	PhoneNumber string    `json:"phone_number" binding:"required"`
	Items       []struct {
		ProductID uuid.UUID `json:"product_id" binding:"required"`
		Quantity  int       `json:"quantity" binding:"required,gt=0"`
		UnitPrice int64     `json:"unit_price" binding:"gte=0"`
	} `json:"items" binding:"required,min=1,dive"`
}

func (s *Server) handleCreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := service.CreateOrderInput{CustomerID: req.CustomerID, PhoneNumber: req.PhoneNumber}
	for _, it := range req.Items {
		in.Items = append(in.Items, service.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}

	order, err := s.Orders.CreateOrder(c.Request.Context(), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrderResponse(order, nil))
}

func (s *Server) handleGetOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	order, items, err := s.Orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order, items))
}

// handlePaymentStatus is polled by the storefront after checkout. Payment is
// only confirmed once the callback has been reconciled.
func (s *Server) handlePaymentStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	order, _, err := s.Orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id":       order.ID,
		"payment_status": order.Payment,
		"confirmed":      order.Payment == domain.PaymentPaid,
		"receipt_number": order.ReceiptNumber,
		"failure_reason": order.FailureReason,
	})
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		s.writeError(c, err)
		return
	}

	order, err := s.Orders.UpdateStatus(c.Request.Context(), id, status)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order, nil))
}

func (s *Server) handleCancel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	order, err := s.Orders.CancelOrder(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order, nil))
}

func (s *Server) handleCheckout(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	res, err := s.Checkout.StartCheckout(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id":            res.OrderID,
		"checkout_request_id": res.CheckoutRequestID,
		"customer_message":    res.CustomerMessage,
	})
}

func (s *Server) handlePaymentCallback(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ResultCode": 1, "ResultDesc": "unreadable body"})
		return
	}
	ev, err := payment.ParseCallback(body)
	if err != nil {
		s.Log.Warn("malformed payment callback", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"ResultCode": 1, "ResultDesc": err.Error()})
		return
	}

	_, err = s.Reconciler.Reconcile(c.Request.Context(), ev)
	if errors.Is(err, domain.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"ResultCode": 1, "ResultDesc": "order not found"})
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys"`
}

func (s *Server) handleSubscribe(c *gin.Context) {
	agentID, err := uuid.Parse(c.GetHeader(agentHeader))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid " + agentHeader})
		return
	}
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub := &domain.PushSubscription{
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
		AgentID:  agentID,
	}
	if err := s.Subscriptions.Upsert(c.Request.Context(), sub); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"endpoint": sub.Endpoint})
}

func (s *Server) handleUnsubscribe(c *gin.Context) {
	var req struct {
		Endpoint string `json:"endpoint" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.Subscriptions.DeleteByEndpoint(c.Request.Context(), req.Endpoint); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type notifyRequest struct {
	ConversationID uuid.UUID `json:"conversation_id" binding:"required"`
	SenderRole     string    `json:"sender_role" binding:"required"`
	Content        string    `json:"content"`
}

func (s *Server) handleNotify(c *gin.Context) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role := domain.SenderRole(strings.ToLower(req.SenderRole))
	report, err := s.Notifier.Notify(c.Request.Context(), req.ConversationID, role, req.Content)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, report)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) writeError(c *gin.Context, err error) {
	var rejected *payment.ChargeRejectedError
	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidOrder),
		errors.Is(err, payment.ErrInvalidPhone),
		errors.Is(err, payment.ErrInvalidAmount),
		errors.Is(err, payment.ErrInvalidReference):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrCorrelationConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &rejected):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":         "charge rejected",
			"response_code": rejected.ResponseCode,
			"description":   rejected.Description,
			"gateway":       rawJSON(rejected.Payload),
		})
	case errors.Is(err, payment.ErrGatewayUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, payment.ErrNotConfigured), errors.Is(err, push.ErrNotConfigured):
		s.Log.Error("configuration error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server misconfigured"})
	default:
		s.Log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func rawJSON(b []byte) any {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	return string(b)
}
