package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"payment-api/internal/apperr"
	"payment-api/internal/models"
	"payment-api/pkg/logging"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxOrderNameLength = 100

// GenerateOrderNumber returns an identifier of the form
// 20060102-150405-ABCDEF12.
func GenerateOrderNumber(now time.Time) string {
	random := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return now.Format("20060102-150405") + "-" + strings.ToUpper(random)
}

// CreateOrderRequest is a one-time payment request.
type CreateOrderRequest struct {
	Name         string
	Amount       decimal.Decimal
	PaymentType  string
	UserID       string
	ClientIP     string
	Device       string
	ContactEmail string
	Params       map[string]interface{}
}

// CreateSubscriptionRequest buys a catalog tier. UserID defaults to the caller.
type CreateSubscriptionRequest struct {
	SubscriptionType string
	PaymentType      string
	UserID           string
	ReturnURL        string
	ClientIP         string
	Device           string
	ContactEmail     string
}

// OrderService creates orders and starts payment at the gateway
type OrderService struct {
	orders  OrderRepository
	gateway Gateway
	plans   *PlanCatalog
	now     func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(orders OrderRepository, gateway Gateway, plans *PlanCatalog) *OrderService {
	return &OrderService{orders: orders, gateway: gateway, plans: plans, now: time.Now}
}

// CreatePaymentOrder validates and persists a one-time order, then requests
// payment. If the gateway fails the order stays pending and is returned along
// with the error.
func (s *OrderService) CreatePaymentOrder(ctx context.Context, callerID string, req CreateOrderRequest) (*models.Order, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > maxOrderNameLength {
		return nil, apperr.New(apperr.KindValidation, "name must be 1 to %d characters", maxOrderNameLength)
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	method, ok := models.ParsePaymentMethod(req.PaymentType)
	if !ok {
		return nil, apperr.New(apperr.KindValidation, "unsupported payment type %q", req.PaymentType)
	}
	if req.UserID == "" {
		return nil, apperr.New(apperr.KindValidation, "user_id is required")
	}
	if req.UserID != callerID {
		return nil, apperr.New(apperr.KindForbidden, "cannot create orders for another user")
	}

	now := s.now()
	order := &models.Order{
		OutTradeNo:   GenerateOrderNumber(now),
		UserID:       req.UserID,
		Name:         name,
		Amount:       req.Amount,
		PaymentType:  method,
		Status:       models.OrderStatusPending,
		OrderType:    models.OrderTypePayment,
		ClientIP:     req.ClientIP,
		Device:       deviceOrDefault(req.Device),
		ContactEmail: req.ContactEmail,
		Params:       req.Params,
	}
	return s.submit(ctx, order)
}

// CreateSubscriptionOrder prices the order from the tier catalog.
func (s *OrderService) CreateSubscriptionOrder(ctx context.Context, callerID string, req CreateSubscriptionRequest) (*models.Order, error) {
	plan, ok := s.plans.Lookup(req.SubscriptionType)
	if !ok {
		return nil, apperr.New(apperr.KindValidation, "unknown subscription type %q", req.SubscriptionType)
	}
	method, ok := models.ParsePaymentMethod(req.PaymentType)
	if !ok {
		return nil, apperr.New(apperr.KindValidation, "unsupported payment type %q", req.PaymentType)
	}
	userID := req.UserID
	if userID == "" {
		userID = callerID
	}
	if userID != callerID {
		return nil, apperr.New(apperr.KindForbidden, "cannot create orders for another user")
	}

	now := s.now()
	tier := plan.Type
	order := &models.Order{
		OutTradeNo:            GenerateOrderNumber(now),
		UserID:                userID,
		Name:                  plan.Name,
		Amount:                plan.Price,
		PaymentType:           method,
		Status:                models.OrderStatusPending,
		OrderType:             models.OrderTypeSubscription,
		SubscriptionType:      &tier,
		SubscriptionStartDate: &now,
		ClientIP:              req.ClientIP,
		Device:                deviceOrDefault(req.Device),
		ContactEmail:          req.ContactEmail,
	}
	if plan.DurationDays != nil {
		d := *plan.DurationDays
		end := now.Add(time.Duration(d) * 24 * time.Hour)
		order.SubscriptionDurationDays = &d
		order.SubscriptionEndDate = &end
	}
	if req.ReturnURL != "" {
		order.Params = map[string]interface{}{"return_url": req.ReturnURL}
	}
	return s.submit(ctx, order)
}

func (s *OrderService) submit(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	logging.Infof("Order created - order: %s, user: %s, amount: %s, type: %s", order.OutTradeNo, order.UserID, order.Amount.StringFixed(2), order.OrderType)

	result, err := s.gateway.CreatePayment(ctx, PaymentRequest{
		OutTradeNo: order.OutTradeNo,
		Name:       order.Name,
		Amount:     order.Amount,
		Method:     order.PaymentType,
		ClientIP:   order.ClientIP,
		Device:     order.Device,
	})
	if err != nil {
		logging.Errorf("Payment creation failed, order left pending - order: %s, error: %v", order.OutTradeNo, err)
		return order, err
	}

	artifacts := models.PaymentArtifacts{}
	if result.TradeNo != "" {
		artifacts.GatewayTradeNo = &result.TradeNo
	}
	if result.PayURL != "" {
		artifacts.PayURL = &result.PayURL
	}
	if result.QRCode != "" {
		artifacts.QRCode = &result.QRCode
	}
	if _, err := s.orders.UpdatePaymentArtifacts(ctx, order.OutTradeNo, artifacts); err != nil {
		return order, err
	}
	order.GatewayTradeNo = artifacts.GatewayTradeNo
	order.PayURL = artifacts.PayURL
	order.QRCode = artifacts.QRCode
	return order, nil
}

// GetOrder returns the caller's order.
func (s *OrderService) GetOrder(ctx context.Context, callerID, outTradeNo string) (*models.Order, error) {
	order, err := s.orders.GetByOutTradeNo(ctx, outTradeNo)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperr.New(apperr.KindNotFound, "order not found")
	}
	if order.UserID != callerID {
		return nil, apperr.New(apperr.KindForbidden, "order belongs to another user")
	}
	return order, nil
}

// ListOrders returns a page of the caller's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, callerID string, page, limit int) ([]models.Order, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.orders.ListByUser(ctx, callerID, limit, (page-1)*limit)
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.New(apperr.KindValidation, "amount must be greater than 0")
	}
	if !amount.Equal(amount.Round(2)) {
		return apperr.New(apperr.KindValidation, "amount must have at most 2 decimal places")
	}
	return nil
}

func deviceOrDefault(device string) string {
	if device == models.DeviceMobile {
		return models.DeviceMobile
	}
	return models.DevicePC
}

// DetectDevice classifies a User-Agent as mobile or pc.
func DetectDevice(userAgent string) string {
	ua := strings.ToLower(userAgent)
	for _, marker := range []string{"mobile", "android", "iphone"} {
		if strings.Contains(ua, marker) {
			return models.DeviceMobile
		}
	}
	return models.DevicePC
}
