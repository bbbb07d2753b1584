package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ai-navigator/club-bot/internal/models"
)

const userColumns = `user_id, username, full_name, email, phone, registration_date,
		is_paid, subscription_type, payment_expiry, auto_renewal,
		payment_method_id, card_last4, last_renewal_attempt`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.UserID, &u.Username, &u.FullName, &u.Email, &u.Phone,
		&u.RegistrationDate, &u.IsPaid, &u.SubscriptionType, &u.PaymentExpiry,
		&u.AutoRenewal, &u.PaymentMethodID, &u.CardLast4, &u.LastRenewalAttempt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser регистрирует пользователя при первом контакте. Возвращает true,
// если запись новая; повторный /start существующую запись не трогает.
func (s *Storage) CreateUser(ctx context.Context, userID int64, username, fullName string) (bool, error) {
	const op = "storage.CreateUser"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO users (user_id, username, full_name, registration_date)
			  VALUES ($1, $2, $3, NOW())
			  ON CONFLICT (user_id) DO NOTHING`
	result, err := s.DB.ExecContext(ctx, query, userID, username, fullName)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected > 0, nil
}

// GetUser возвращает запись пользователя по Telegram id.
func (s *Storage) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	user, err := scanUser(s.DB.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// UpdateEmail обновляет контактный email пользователя.
func (s *Storage) UpdateEmail(ctx context.Context, userID int64, email string) error {
	const op = "storage.UpdateEmail"
	_, err := s.DB.ExecContext(ctx, `UPDATE users SET email = $1 WHERE user_id = $2`, email, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdatePhone обновляет контактный телефон пользователя.
func (s *Storage) UpdatePhone(ctx context.Context, userID int64, phone string) error {
	const op = "storage.UpdatePhone"
	_, err := s.DB.ExecContext(ctx, `UPDATE users SET phone = $1 WHERE user_id = $2`, phone, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MarkPaid активирует доступ после подтверждённой оплаты: одна команда,
// чтобы запись не оставалась в промежуточном состоянии. Токен и last4
// передаются вместе либо оба nil.
func (s *Storage) MarkPaid(ctx context.Context, userID int64, subscriptionType string,
	expiry time.Time, paymentMethodID, cardLast4 *string) error {
	const op = "storage.MarkPaid"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET is_paid = TRUE, subscription_type = $1, payment_expiry = $2,
			      payment_method_id = COALESCE($3, payment_method_id),
			      card_last4 = COALESCE($4, card_last4)
			  WHERE user_id = $5`
	result, err := s.DB.ExecContext(ctx, query, subscriptionType, expiry, paymentMethodID, cardLast4, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}

// ExtendExpiry продлевает доступ после успешного автосписания. Условие по
// старой дате делает запись compare-and-swap: параллельное продление той же
// записи не применится дважды.
func (s *Storage) ExtendExpiry(ctx context.Context, userID int64, oldExpiry, newExpiry time.Time) (bool, error) {
	const op = "storage.ExtendExpiry"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET is_paid = TRUE, payment_expiry = $1
			  WHERE user_id = $2 AND payment_expiry = $3`
	result, err := s.DB.ExecContext(ctx, query, newExpiry, userID, oldExpiry)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected > 0, nil
}

// SetAutoRenewal переключает разрешение на автосписание.
func (s *Storage) SetAutoRenewal(ctx context.Context, userID int64, enabled bool) error {
	const op = "storage.SetAutoRenewal"
	result, err := s.DB.ExecContext(ctx,
		`UPDATE users SET auto_renewal = $1 WHERE user_id = $2`, enabled, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}

// ClearPaymentMethod отвязывает сохранённую карту. При disableAutoRenewal
// заодно снимает флаг автосписания (отмена подписки); дата окончания
// доступа в любом случае не меняется.
func (s *Storage) ClearPaymentMethod(ctx context.Context, userID int64, disableAutoRenewal bool) error {
	const op = "storage.ClearPaymentMethod"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET payment_method_id = NULL, card_last4 = NULL,
			      auto_renewal = auto_renewal AND NOT $1
			  WHERE user_id = $2`
	result, err := s.DB.ExecContext(ctx, query, disableAutoRenewal, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}

// TouchRenewalAttempt отмечает дату попытки автосписания, чтобы проход
// продлений не списывал с одной записи чаще раза в день.
func (s *Storage) TouchRenewalAttempt(ctx context.Context, userID int64, day time.Time) error {
	const op = "storage.TouchRenewalAttempt"
	_, err := s.DB.ExecContext(ctx,
		`UPDATE users SET last_renewal_attempt = $1 WHERE user_id = $2`, day, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FindExpiringOn возвращает кандидатов для предупреждения о скором
// списании: доступ заканчивается точно в указанную дату, автосписание
// разрешено и карта привязана.
func (s *Storage) FindExpiringOn(ctx context.Context, day time.Time) ([]*models.User, error) {
	const op = "storage.FindExpiringOn"
	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE payment_expiry = $1
			    AND auto_renewal
			    AND payment_method_id IS NOT NULL
			  ORDER BY user_id`
	return s.queryUsers(ctx, op, query, day)
}

// FindDueForRenewal возвращает кандидатов на автосписание. Выборка по
// payment_expiry <= $1, а не по точному равенству: пропущенный из-за
// простоя день не теряет продления. last_renewal_attempt отсекает записи,
// по которым попытка в этот день уже была.
func (s *Storage) FindDueForRenewal(ctx context.Context, day time.Time) ([]*models.User, error) {
	const op = "storage.FindDueForRenewal"
	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE payment_expiry <= $1
			    AND is_paid
			    AND auto_renewal
			    AND payment_method_id IS NOT NULL
			    AND (last_renewal_attempt IS NULL OR last_renewal_attempt < $1)
			  ORDER BY user_id`
	return s.queryUsers(ctx, op, query, day)
}

// ListUsers возвращает всех пользователей, новые первыми.
func (s *Storage) ListUsers(ctx context.Context, limit int) ([]*models.User, error) {
	const op = "storage.ListUsers"
	query := `SELECT ` + userColumns + `
			  FROM users ORDER BY registration_date DESC LIMIT $1`
	return s.queryUsers(ctx, op, query, limit)
}

// ListPaidUsers возвращает пользователей с активной оплатой.
func (s *Storage) ListPaidUsers(ctx context.Context) ([]*models.User, error) {
	const op = "storage.ListPaidUsers"
	query := `SELECT ` + userColumns + `
			  FROM users WHERE is_paid ORDER BY payment_expiry DESC`
	return s.queryUsers(ctx, op, query)
}

// CountUsers возвращает общее число пользователей и число оплативших.
func (s *Storage) CountUsers(ctx context.Context) (total, paid int, err error) {
	const op = "storage.CountUsers"
	err = s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_paid) FROM users`).Scan(&total, &paid)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	return total, paid, nil
}

func (s *Storage) queryUsers(ctx context.Context, op, query string, args ...any) ([]*models.User, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
