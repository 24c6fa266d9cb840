package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusFailed  OrderStatus = "failed"
)

// OrderType distinguishes one-time payments from subscription purchases.
type OrderType string

const (
	OrderTypePayment      OrderType = "payment"
	OrderTypeSubscription OrderType = "subscription"
)

// PaymentMethod is the payment channel requested from the gateway.
type PaymentMethod string

const (
	PaymentMethodAlipay PaymentMethod = "alipay"
	PaymentMethodWechat PaymentMethod = "wechat"
	PaymentMethodUnion  PaymentMethod = "union"
)

// ParsePaymentMethod normalizes a client supplied payment method.
// "wxpay" is the gateway's name for WeChat Pay and is accepted as an alias.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "alipay":
		return PaymentMethodAlipay, true
	case "wechat", "wxpay":
		return PaymentMethodWechat, true
	case "union":
		return PaymentMethodUnion, true
	}
	return "", false
}

// Device classes reported to the gateway.
const (
	DevicePC     = "pc"
	DeviceMobile = "mobile"
)

// Order 支付订单
// out_trade_no is the merchant-generated identifier used everywhere outside the database.
type Order struct {
	BaseModel

	OutTradeNo  string          `json:"out_trade_no" gorm:"size:64;uniqueIndex;not null"`
	UserID      string          `json:"user_id" gorm:"size:64;not null;index"`
	Name        string          `json:"name" gorm:"size:100;not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(10,2);not null"`
	PaymentType PaymentMethod   `json:"payment_type" gorm:"size:20;not null"`
	Status      OrderStatus     `json:"status" gorm:"size:20;not null;index"`
	OrderType   OrderType       `json:"order_type" gorm:"size:20;not null;default:'payment'"`

	// Subscription fields, set only when OrderType is subscription
	SubscriptionType         *string    `json:"subscription_type,omitempty" gorm:"size:32"`
	SubscriptionDurationDays *int       `json:"subscription_duration_days,omitempty"`
	SubscriptionStartDate    *time.Time `json:"subscription_start_date,omitempty"`
	SubscriptionEndDate      *time.Time `json:"subscription_end_date,omitempty"`

	// Gateway artifacts, populated after the gateway call
	GatewayTradeNo *string `json:"gateway_trade_no,omitempty" gorm:"size:64;index"`
	PayURL         *string `json:"pay_url,omitempty" gorm:"type:text"`
	QRCode         *string `json:"qr_code,omitempty" gorm:"type:text"`

	ClientIP     string            `json:"client_ip" gorm:"size:45"`
	Device       string            `json:"device" gorm:"size:20;default:'pc'"`
	ContactEmail string            `json:"-" gorm:"size:255"`
	Params       datatypes.JSONMap `json:"params,omitempty"`

	PaidAt *time.Time `json:"paid_at,omitempty"`
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// IsSubscription reports whether paying this order changes membership.
func (o *Order) IsSubscription() bool {
	return o.OrderType == OrderTypeSubscription
}

// Tier returns the subscription tier, or "" for one-time orders.
func (o *Order) Tier() string {
	if o.SubscriptionType == nil {
		return ""
	}
	return *o.SubscriptionType
}

// PaymentArtifacts is a partial update of gateway-provided fields.
// Nil fields are left untouched.
type PaymentArtifacts struct {
	GatewayTradeNo *string
	PayURL         *string
	QRCode         *string
	Status         *OrderStatus
}
