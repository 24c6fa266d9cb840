package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"payment-api/internal/apperr"
	"payment-api/internal/middleware"
	"payment-api/internal/models"
	"payment-api/internal/response"
	"payment-api/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreateOrderRequest represents a one-time order request
type CreateOrderRequest struct {
	Name        string                 `json:"name"`
	Amount      decimal.Decimal        `json:"amount"`
	PaymentType string                 `json:"payment_type"`
	UserID      string                 `json:"user_id"`
	Params      map[string]interface{} `json:"params"`
}

// CreateSubscriptionOrderRequest represents a tier purchase request
type CreateSubscriptionOrderRequest struct {
	SubscriptionType string `json:"subscription_type" binding:"required"`
	PaymentType      string `json:"payment_type"`
	UserID           string `json:"user_id"`
	ReturnURL        string `json:"return_url"`
}

// CreateOrder creates a one-time payment order
// POST /api/create_order
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	order, err := h.orders.CreatePaymentOrder(c.Request.Context(), middleware.UserID(c), services.CreateOrderRequest{
		Name:         req.Name,
		Amount:       req.Amount,
		PaymentType:  req.PaymentType,
		UserID:       req.UserID,
		ClientIP:     clientIP(c),
		Device:       services.DetectDevice(c.GetHeader("User-Agent")),
		ContactEmail: middleware.UserEmail(c),
		Params:       req.Params,
	})
	if err != nil {
		failOrder(c, order, err)
		return
	}

	response.SuccessJSON(c, gin.H{
		"out_trade_no": order.OutTradeNo,
		"payurl":       deref(order.PayURL),
		"qrcode":       deref(order.QRCode),
		"status":       order.Status,
	})
}

// CreateSubscriptionOrder creates an order for a catalog tier
// POST /api/create_subscription_qr_order
func (h *Handler) CreateSubscriptionOrder(c *gin.Context) {
	var req CreateSubscriptionOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}
	if req.PaymentType == "" {
		req.PaymentType = string(models.PaymentMethodAlipay)
	}

	order, err := h.orders.CreateSubscriptionOrder(c.Request.Context(), middleware.UserID(c), services.CreateSubscriptionRequest{
		SubscriptionType: req.SubscriptionType,
		PaymentType:      req.PaymentType,
		UserID:           req.UserID,
		ReturnURL:        req.ReturnURL,
		ClientIP:         clientIP(c),
		Device:           services.DetectDevice(c.GetHeader("User-Agent")),
		ContactEmail:     middleware.UserEmail(c),
	})
	if err != nil {
		failOrder(c, order, err)
		return
	}

	response.SuccessJSON(c, gin.H{
		"out_trade_no":      order.OutTradeNo,
		"subscription_type": order.Tier(),
		"subscription_name": order.Name,
		"amount":            order.Amount.StringFixed(2),
		"duration_days":     order.SubscriptionDurationDays,
		"qr_code":           deref(order.QRCode),
		"pay_url":           deref(order.PayURL),
		"status":            order.Status,
	})
}

// GetOrderStatus returns one of the caller's orders
// GET /api/get_order_status/:out_trade_no
func (h *Handler) GetOrderStatus(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), middleware.UserID(c), c.Param("out_trade_no"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, order)
}

// ListOrders pages through the caller's orders
// GET /api/orders?page=1&limit=20
func (h *Handler) ListOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	orders, err := h.orders.ListOrders(c.Request.Context(), middleware.UserID(c), page, limit)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessJSON(c, gin.H{
		"orders": orders,
		"page":   page,
		"count":  len(orders),
	})
}

// GetPricing lists the subscription tiers
// GET /api/subscription/pricing
func (h *Handler) GetPricing(c *gin.Context) {
	pricing := make(map[string]services.Plan)
	for _, p := range h.plans.Plans() {
		pricing[p.Type] = p
	}
	response.SuccessJSON(c, gin.H{
		"pricing":    pricing,
		"currency":   "CNY",
		"updated_at": time.Now().Format(time.RFC3339),
	})
}

// failOrder reports an order error. A persisted order that failed at the
// gateway is still pending, and its identifier is returned for follow-up.
func failOrder(c *gin.Context, order *models.Order, err error) {
	if order == nil || !apperr.Is(err, apperr.KindUpstream) {
		response.Fail(c, err)
		return
	}
	response.JSON(c, response.StatusOf(err), response.Response{
		Success: false,
		Message: apperr.Message(err),
		Data: gin.H{
			"out_trade_no": order.OutTradeNo,
			"status":       order.Status,
		},
	})
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer address.
func clientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(c.GetHeader("X-Real-IP")); realIP != "" {
		return realIP
	}
	return c.RemoteIP()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
