package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"payment-api/internal/services"
	"payment-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// PaymentNotify receives gateway payment notifications
// GET|POST /notify_url, POST /api/payment/notify
// The body is always the literal "success" or "fail"; the gateway retries on anything else.
func (h *Handler) PaymentNotify(c *gin.Context) {
	defer func() {
		if p := recover(); p != nil {
			logging.Errorf("Notification handler panicked: %v", p)
			c.String(http.StatusOK, services.AckFail)
		}
	}()

	params, err := notificationParams(c)
	if err != nil {
		logging.Warnf("Unreadable notification - method: %s, error: %v", c.Request.Method, err)
		c.String(http.StatusOK, services.AckFail)
		return
	}
	logging.Infof("Payment notification received - method: %s, order: %s, trade_status: %s",
		c.Request.Method, params["out_trade_no"], params["trade_status"])

	out := h.reconciler.Reconcile(c.Request.Context(), params)
	logging.Infof("Payment notification handled - %s", out)
	c.String(http.StatusOK, out.Ack())
}

// notificationParams flattens the query string (GET), a JSON body or a form
// body (POST) into string values.
func notificationParams(c *gin.Context) (map[string]string, error) {
	if c.Request.Method == http.MethodGet {
		return flatten(c.Request.URL.Query()), nil
	}

	if strings.HasPrefix(c.ContentType(), "application/json") {
		body, err := c.GetRawData()
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		var raw map[string]interface{}
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		params := make(map[string]string, len(raw))
		for k, v := range raw {
			params[k] = stringify(v)
		}
		return params, nil
	}

	if err := c.Request.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid form body: %w", err)
	}
	if len(c.Request.PostForm) > 0 {
		return flatten(c.Request.PostForm), nil
	}
	return flatten(c.Request.URL.Query()), nil
}

func flatten(values map[string][]string) map[string]string {
	params := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
