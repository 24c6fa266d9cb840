package database

import (
	"context"
	"errors"
	"time"

	"payment-api/internal/apperr"
	"payment-api/internal/models"

	"gorm.io/gorm"
)

// OrderStore provides CRUD over orders keyed by out_trade_no
type OrderStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewOrderStore creates a new order store
func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db, now: time.Now}
}

// Create 创建订单
func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	result := conn(ctx, s.db).Create(order)
	if result.Error != nil {
		return apperr.Wrap(apperr.KindPersistence, result.Error, "failed to create order %s", order.OutTradeNo)
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.KindPersistence, "failed to create order %s: no rows affected", order.OutTradeNo)
	}
	return nil
}

// GetByOutTradeNo returns the order, or nil when it does not exist.
func (s *OrderStore) GetByOutTradeNo(ctx context.Context, outTradeNo string) (*models.Order, error) {
	var order models.Order
	err := conn(ctx, s.db).Where("out_trade_no = ?", outTradeNo).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindPersistence, err, "failed to load order %s", outTradeNo)
	}
	return &order, nil
}

// UpdatePaymentArtifacts writes only the supplied gateway fields.
func (s *OrderStore) UpdatePaymentArtifacts(ctx context.Context, outTradeNo string, a models.PaymentArtifacts) (bool, error) {
	updates := make(map[string]interface{})
	if a.GatewayTradeNo != nil {
		updates["gateway_trade_no"] = *a.GatewayTradeNo
	}
	if a.PayURL != nil {
		updates["pay_url"] = *a.PayURL
	}
	if a.QRCode != nil {
		updates["qr_code"] = *a.QRCode
	}
	if a.Status != nil {
		updates["status"] = *a.Status
	}
	if len(updates) == 0 {
		return false, nil
	}

	result := conn(ctx, s.db).Model(&models.Order{}).Where("out_trade_no = ?", outTradeNo).Updates(updates)
	if result.Error != nil {
		return false, apperr.Wrap(apperr.KindPersistence, result.Error, "failed to update payment info of order %s", outTradeNo)
	}
	return result.RowsAffected > 0, nil
}

// UpdateStatus moves a pending order to status, stamping paid_at for paid.
// The update is conditional on the order still being pending, so of two
// concurrent callers only one gets true.
func (s *OrderStore) UpdateStatus(ctx context.Context, outTradeNo string, status models.OrderStatus) (bool, error) {
	updates := map[string]interface{}{
		"status": status,
	}
	if status == models.OrderStatusPaid {
		updates["paid_at"] = s.now()
	}

	result := conn(ctx, s.db).Model(&models.Order{}).
		Where("out_trade_no = ? AND status = ?", outTradeNo, models.OrderStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, apperr.Wrap(apperr.KindPersistence, result.Error, "failed to update status of order %s", outTradeNo)
	}
	return result.RowsAffected == 1, nil
}

// ListByUser returns a page of the user's orders, newest first.
func (s *OrderStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	err := conn(ctx, s.db).Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, err, "failed to list orders")
	}
	return orders, nil
}

// ListStalePending returns pending orders created before the cutoff, oldest first.
func (s *OrderStore) ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := conn(ctx, s.db).Where("status = ? AND created_at < ?", models.OrderStatusPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, err, "failed to list stale orders")
	}
	return orders, nil
}
