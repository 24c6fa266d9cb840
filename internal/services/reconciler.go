package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"payment-api/internal/apperr"
	"payment-api/internal/models"
	"payment-api/pkg/logging"

	"github.com/shopspring/decimal"
)

// Acknowledgement tokens expected by the gateway.
const (
	AckSuccess = "success"
	AckFail    = "fail"
)

// Reconciliation results reported in Outcome.Result.
const (
	ResultPaid        = "paid"
	ResultAlreadyPaid = "already_paid"
	ResultFailed      = "failed"
	ResultIgnored     = "ignored"
	ResultReplayed    = "replayed"
	ResultRejected    = "rejected"
)

var amountTolerance = decimal.RequireFromString("0.01")

var (
	successCodes = map[string]bool{"SUCCESS": true, "TRADE_SUCCESS": true, "PAID": true}
	failureCodes = map[string]bool{"FAILED": true, "TRADE_FAILED": true}
)

// OrderRepository is the order store as seen by the services.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByOutTradeNo(ctx context.Context, outTradeNo string) (*models.Order, error)
	UpdatePaymentArtifacts(ctx context.Context, outTradeNo string, a models.PaymentArtifacts) (bool, error)
	UpdateStatus(ctx context.Context, outTradeNo string, status models.OrderStatus) (bool, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Order, error)
}

// MembershipRepository reads and upserts membership records.
type MembershipRepository interface {
	MembershipReader
	Upsert(ctx context.Context, membership *models.Membership) error
}

// Transactor runs fn in a store transaction carried by ctx.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Outcome describes how one notification was handled.
type Outcome struct {
	OutTradeNo string
	Result     string
	Err        error
}

// Ack returns the literal body to send back to the gateway.
func (o Outcome) Ack() string {
	if o.Err != nil {
		return AckFail
	}
	return AckSuccess
}

// NotificationReconciler applies gateway payment notifications to orders and memberships
type NotificationReconciler struct {
	orders      OrderRepository
	memberships MembershipRepository
	tx          Transactor
	locker      OrderLocker
	replay      ReplayGuard
	hooks       []PaymentHook
	merchantKey string
	now         func() time.Time
}

// NewNotificationReconciler creates a reconciler. locker and replay may be nil.
func NewNotificationReconciler(orders OrderRepository, memberships MembershipRepository, tx Transactor,
	locker OrderLocker, replay ReplayGuard, merchantKey string, hooks ...PaymentHook) *NotificationReconciler {
	if locker == nil {
		locker = NewLocalOrderLocker()
	}
	return &NotificationReconciler{
		orders:      orders,
		memberships: memberships,
		tx:          tx,
		locker:      locker,
		replay:      replay,
		hooks:       hooks,
		merchantKey: merchantKey,
		now:         time.Now,
	}
}

// Reconcile processes one notification. It never panics and never returns an
// error directly; failures are carried in the Outcome and acknowledged as "fail".
func (r *NotificationReconciler) Reconcile(ctx context.Context, params map[string]string) (out Outcome) {
	out.OutTradeNo = params["out_trade_no"]
	defer func() {
		if p := recover(); p != nil {
			logging.Errorf("Notification handling panicked - order: %s, panic: %v", out.OutTradeNo, p)
			out = Outcome{OutTradeNo: out.OutTradeNo, Result: ResultRejected, Err: apperr.New(apperr.KindUnknown, "internal error: %v", p)}
		}
	}()

	result, err := r.reconcile(ctx, params)
	out.Result = result
	out.Err = err
	if err != nil {
		out.Result = ResultRejected
		logNotificationError(out.OutTradeNo, err)
	}
	return out
}

func logNotificationError(outTradeNo string, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindConfig, apperr.KindPersistence, apperr.KindUnknown:
		logging.Errorf("Notification rejected - order: %s, error: %v", outTradeNo, err)
	default:
		logging.Warnf("Notification rejected - order: %s, reason: %v", outTradeNo, err)
	}
}

// Notification is the typed view of a gateway notification.
// Raw holds every received parameter and is what the signature covers.
type Notification struct {
	OutTradeNo  string
	TradeStatus string
	Money       string
	TradeNo     string
	Sign        string
	Raw         map[string]string
}

// ParseNotification checks the required fields and normalizes the trade status.
func ParseNotification(params map[string]string) (Notification, error) {
	n := Notification{
		OutTradeNo:  params["out_trade_no"],
		TradeStatus: strings.ToUpper(strings.TrimSpace(params["trade_status"])),
		Money:       strings.TrimSpace(params["money"]),
		TradeNo:     params["trade_no"],
		Sign:        params["sign"],
		Raw:         params,
	}

	var missing []string
	if n.OutTradeNo == "" {
		missing = append(missing, "out_trade_no")
	}
	if n.TradeStatus == "" {
		missing = append(missing, "trade_status")
	}
	if n.Sign == "" {
		missing = append(missing, "sign")
	}
	if len(missing) > 0 {
		return n, apperr.New(apperr.KindValidation, "missing required fields: %s", strings.Join(missing, ", "))
	}
	return n, nil
}

func (r *NotificationReconciler) reconcile(ctx context.Context, params map[string]string) (string, error) {
	n, err := ParseNotification(params)
	if err != nil {
		return "", err
	}
	outTradeNo := n.OutTradeNo

	if !Verify(n.Raw, r.merchantKey, n.Sign) {
		return "", apperr.New(apperr.KindSignature, "signature verification failed")
	}

	fingerprint := NotificationFingerprint(n.Raw)
	if r.replay != nil {
		seen, err := r.replay.Seen(ctx, fingerprint)
		if err != nil {
			logging.Warnf("Replay guard lookup failed - order: %s, error: %v", outTradeNo, err)
		} else if seen {
			return ResultReplayed, nil
		}
	}

	var result string
	if successCodes[n.TradeStatus] {
		result, err = r.applyPayment(ctx, outTradeNo, n.Money)
	} else {
		result, err = r.applyNonSuccess(ctx, outTradeNo, n.TradeStatus)
	}
	if err != nil {
		return "", err
	}

	if r.replay != nil {
		if err := r.replay.Remember(ctx, fingerprint); err != nil {
			logging.Warnf("Replay guard store failed - order: %s, error: %v", outTradeNo, err)
		}
	}
	return result, nil
}

// applyNonSuccess handles notifications whose trade status is not a success code.
// Failure codes move a pending order to failed; anything else is acknowledged.
func (r *NotificationReconciler) applyNonSuccess(ctx context.Context, outTradeNo, tradeStatus string) (string, error) {
	if !failureCodes[tradeStatus] {
		logging.Infof("Notification acknowledged without change - order: %s, trade_status: %s", outTradeNo, tradeStatus)
		return ResultIgnored, nil
	}

	updated, err := r.orders.UpdateStatus(ctx, outTradeNo, models.OrderStatusFailed)
	if err != nil {
		return "", err
	}
	if updated {
		logging.Infof("Order marked failed - order: %s, trade_status: %s", outTradeNo, tradeStatus)
		return ResultFailed, nil
	}

	order, err := r.orders.GetByOutTradeNo(ctx, outTradeNo)
	if err != nil {
		return "", err
	}
	if order == nil {
		return "", apperr.New(apperr.KindNotFound, "order %s not found", outTradeNo)
	}
	if order.Status == models.OrderStatusPaid {
		logging.Warnf("Failure notification for paid order ignored - order: %s", outTradeNo)
		return ResultAlreadyPaid, nil
	}
	return ResultFailed, nil
}

func (r *NotificationReconciler) applyPayment(ctx context.Context, outTradeNo, money string) (string, error) {
	unlock, err := r.locker.Lock(ctx, outTradeNo)
	if err != nil {
		return "", err
	}
	defer unlock()

	order, err := r.orders.GetByOutTradeNo(ctx, outTradeNo)
	if err != nil {
		return "", err
	}
	if order == nil {
		return "", apperr.New(apperr.KindNotFound, "order %s not found", outTradeNo)
	}
	if order.Status == models.OrderStatusPaid {
		logging.Infof("Order already paid, acknowledging retry - order: %s", outTradeNo)
		return ResultAlreadyPaid, nil
	}

	if err := checkAmount(order.Amount, money); err != nil {
		return "", err
	}

	if order.IsSubscription() && order.Tier() != models.MembershipLifetime &&
		(order.SubscriptionDurationDays == nil || *order.SubscriptionDurationDays <= 0) {
		return "", apperr.New(apperr.KindConfig, "subscription order %s (tier %s) has no duration", outTradeNo, order.Tier())
	}

	var (
		membership  *models.Membership
		alreadyPaid bool
	)
	err = r.tx.InTx(ctx, func(ctx context.Context) error {
		updated, err := r.orders.UpdateStatus(ctx, outTradeNo, models.OrderStatusPaid)
		if err != nil {
			return err
		}
		if !updated {
			current, err := r.orders.GetByOutTradeNo(ctx, outTradeNo)
			if err != nil {
				return err
			}
			if current != nil && current.Status == models.OrderStatusPaid {
				alreadyPaid = true
				return nil
			}
			return apperr.New(apperr.KindPersistence, "order %s is no longer pending", outTradeNo)
		}

		if !order.IsSubscription() {
			return nil
		}
		current, err := r.memberships.GetByUserID(ctx, order.UserID)
		if err != nil {
			return err
		}
		membership, err = ApplySubscriptionPayment(order, current, r.now())
		if err != nil {
			return err
		}
		return r.memberships.Upsert(ctx, membership)
	})
	if err != nil {
		return "", err
	}
	if alreadyPaid {
		return ResultAlreadyPaid, nil
	}

	paidAt := r.now()
	order.Status = models.OrderStatusPaid
	order.PaidAt = &paidAt
	logging.Infof("Order paid - order: %s, user: %s, amount: %s", outTradeNo, order.UserID, order.Amount.StringFixed(2))
	if membership != nil {
		logging.Infof("Membership updated - user: %s, type: %s, lifetime: %v", membership.UserID, membership.MembershipType, membership.IsLifetime)
	}

	r.runHooks(order, membership)
	return ResultPaid, nil
}

// checkAmount compares the notified amount to the stored one within the tolerance.
func checkAmount(stored decimal.Decimal, notified string) error {
	if strings.TrimSpace(notified) == "" {
		return apperr.New(apperr.KindAmountMismatch, "notification carries no amount")
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(notified))
	if err != nil {
		return apperr.Wrap(apperr.KindAmountMismatch, err, "invalid notified amount %q", notified)
	}
	if amount.Sub(stored).Abs().GreaterThan(amountTolerance) {
		return apperr.New(apperr.KindAmountMismatch, "amount mismatch: notified %s, expected %s", amount.String(), stored.StringFixed(2))
	}
	return nil
}

func (r *NotificationReconciler) runHooks(order *models.Order, membership *models.Membership) {
	for _, hook := range r.hooks {
		go func(h PaymentHook) {
			defer func() {
				if p := recover(); p != nil {
					logging.Errorf("Payment hook panicked - order: %s, panic: %v", order.OutTradeNo, p)
				}
			}()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			h.OrderPaid(ctx, order, membership)
		}(hook)
	}
}

// String is used in logs.
func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s %s: %v", o.OutTradeNo, o.Result, o.Err)
	}
	return fmt.Sprintf("%s %s", o.OutTradeNo, o.Result)
}
