package repository

import (
	"context"
	"fmt"

	"github.com/ai-navigator/club-bot/internal/models"
)

// AddPayment дописывает запись в журнал платежей и возвращает её ID.
// Журнал не изменяется после вставки.
func (s *Storage) AddPayment(ctx context.Context, p models.Payment) (int, error) {
	const op = "storage.AddPayment"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO payments (user_id, amount, subscription_type, status, provider_payment_id)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		p.UserID, p.Amount, p.SubscriptionType, p.Status, p.ProviderPaymentID).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// HasSucceededPayment сообщает, зафиксирован ли уже успешный платёж с таким
// id провайдера. На этом строится идемпотентность подтверждения оплаты.
func (s *Storage) HasSucceededPayment(ctx context.Context, providerPaymentID string) (bool, error) {
	const op = "storage.HasSucceededPayment"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (
				SELECT 1 FROM payments
				WHERE provider_payment_id = $1 AND status IN ($2, $3)
			  )`
	var exists bool
	err := s.DB.QueryRowContext(ctx, query, providerPaymentID,
		models.PaymentStatusSucceeded, models.PaymentStatusAutoRenewal).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// ListPayments возвращает журнал платежей пользователя, новые первыми.
func (s *Storage) ListPayments(ctx context.Context, userID int64) ([]*models.Payment, error) {
	const op = "storage.ListPayments"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_id, amount, subscription_type, status, provider_payment_id, created_at
			  FROM payments
			  WHERE user_id = $1
			  ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []*models.Payment
	for rows.Next() {
		var item models.Payment
		if err := rows.Scan(&item.ID, &item.UserID, &item.Amount, &item.SubscriptionType,
			&item.Status, &item.ProviderPaymentID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CountPayments возвращает число успешных платежей и их общую сумму в рублях.
func (s *Storage) CountPayments(ctx context.Context) (count, totalAmount int, err error) {
	const op = "storage.CountPayments"
	query := `SELECT COUNT(*), COALESCE(SUM(amount), 0)
			  FROM payments WHERE status IN ($1, $2)`
	err = s.DB.QueryRowContext(ctx, query,
		models.PaymentStatusSucceeded, models.PaymentStatusAutoRenewal).Scan(&count, &totalAmount)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, totalAmount, nil
}
