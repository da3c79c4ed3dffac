package database

import (
	"context"

	"gorm.io/gorm"

	"github.com/example/cakeshop/internal/models"
	"github.com/example/cakeshop/internal/utils"
)

// Journal persists checkout transitions and gateway returns for support staff.
type Journal struct {
	db *gorm.DB
}

// NewJournal wraps an initialized connection.
func NewJournal(db *gorm.DB) *Journal {
	return &Journal{db: db}
}

// RecordCheckoutEvent stores one checkout session transition.
func (j *Journal) RecordCheckoutEvent(ctx context.Context, event *models.CheckoutEvent) error {
	return j.db.WithContext(ctx).Create(event).Error
}

// RecordPaymentReturn stores a gateway return.
func (j *Journal) RecordPaymentReturn(ctx context.Context, ret *models.PaymentReturn) error {
	return j.db.WithContext(ctx).Create(ret).Error
}

// ListPaymentReturns pages through gateway returns, newest first. An empty
// orderRef lists all of them.
func (j *Journal) ListPaymentReturns(ctx context.Context, orderRef string, p utils.Pagination) ([]models.PaymentReturn, int64, error) {
	query := j.db.WithContext(ctx).Model(&models.PaymentReturn{})
	if orderRef != "" {
		query = query.Where("order_ref = ? OR order_number = ?", orderRef, orderRef)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var returns []models.PaymentReturn
	if err := query.Order("recorded_at DESC").Limit(p.Limit).Offset(p.Offset).Find(&returns).Error; err != nil {
		return nil, 0, err
	}
	return returns, total, nil
}

// ListCheckoutEvents returns the transitions of one checkout session in order.
func (j *Journal) ListCheckoutEvents(ctx context.Context, sessionID string) ([]models.CheckoutEvent, error) {
	var events []models.CheckoutEvent
	err := j.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("recorded_at ASC").
		Find(&events).Error
	return events, err
}
