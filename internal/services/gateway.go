package services

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"payment-api/internal/apperr"
	"payment-api/internal/models"
	"payment-api/pkg/logging"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// PaymentRequest is what the orchestrator asks the gateway to charge.
type PaymentRequest struct {
	OutTradeNo string
	Name       string
	Amount     decimal.Decimal
	Method     models.PaymentMethod
	ClientIP   string
	Device     string
}

// PaymentResult carries the artifacts returned by a successful gateway call.
type PaymentResult struct {
	TradeNo string
	PayURL  string
	QRCode  string
	Message string
}

// Gateway initiates payments at the third-party provider.
type Gateway interface {
	CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
}

// ZPayClient talks to the ZPay merchant API
type ZPayClient struct {
	client     *resty.Client
	apiURL     string
	merchantID string
	key        string
	notifyURL  string
}

// NewZPayClient creates a gateway client with a bounded request timeout.
func NewZPayClient(apiURL, merchantID, key, notifyURL string, timeout time.Duration) *ZPayClient {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", "payment-api/1.0")

	return &ZPayClient{
		client:     client,
		apiURL:     apiURL,
		merchantID: merchantID,
		key:        key,
		notifyURL:  notifyURL,
	}
}

// zpayResponse is the gateway's JSON reply. code arrives as a number or a string
// depending on the endpoint version.
type zpayResponse struct {
	Code    flexInt `json:"code"`
	Msg     string  `json:"msg"`
	TradeNo string  `json:"trade_no"`
	PayURL  string  `json:"payurl"`
	QRCode  string  `json:"qrcode"`
	Img     string  `json:"img"`
}

type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// wireMethod maps a payment method to the gateway's channel code.
func wireMethod(m models.PaymentMethod) string {
	if m == models.PaymentMethodWechat {
		return "wxpay"
	}
	return string(m)
}

// CreatePayment submits a signed payment request. Any transport failure or a
// non-1 code is reported as an upstream error.
func (z *ZPayClient) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	form := map[string]string{
		"pid":          z.merchantID,
		"type":         wireMethod(req.Method),
		"out_trade_no": req.OutTradeNo,
		"notify_url":   z.notifyURL,
		"name":         req.Name,
		"money":        req.Amount.StringFixed(2),
		"clientip":     req.ClientIP,
		"device":       req.Device,
		"param":        "",
	}
	form["sign"] = Sign(form, z.key)
	form["sign_type"] = "MD5"

	resp, err := z.client.R().
		SetContext(ctx).
		SetFormData(form).
		Post(z.apiURL)
	if err != nil {
		logging.Errorf("Gateway request failed - order: %s, error: %v", req.OutTradeNo, err)
		return nil, apperr.Wrap(apperr.KindUpstream, err, "payment gateway unavailable")
	}
	if resp.IsError() {
		logging.Errorf("Gateway returned HTTP %d - order: %s", resp.StatusCode(), req.OutTradeNo)
		return nil, apperr.New(apperr.KindUpstream, "payment gateway returned HTTP %d", resp.StatusCode())
	}

	var result zpayResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		logging.Errorf("Gateway response is not JSON - order: %s, body: %s", req.OutTradeNo, truncate(resp.String(), 200))
		return nil, apperr.Wrap(apperr.KindUpstream, err, "invalid payment gateway response")
	}
	if result.Code != 1 {
		logging.Warnf("Gateway rejected payment - order: %s, code: %d, msg: %s", req.OutTradeNo, result.Code, result.Msg)
		msg := result.Msg
		if msg == "" {
			msg = "payment creation failed"
		}
		return nil, apperr.New(apperr.KindUpstream, "payment gateway error: %s", msg)
	}

	qr := result.QRCode
	if qr == "" {
		qr = result.Img
	}
	logging.Infof("Gateway payment created - order: %s, trade_no: %s", req.OutTradeNo, result.TradeNo)
	return &PaymentResult{
		TradeNo: result.TradeNo,
		PayURL:  result.PayURL,
		QRCode:  qr,
		Message: result.Msg,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
