package repository

import (
	"context"
	"fmt"

	"github.com/ai-navigator/club-bot/internal/models"
)

// AddMessage дописывает сообщение в журнал переписки поддержки.
func (s *Storage) AddMessage(ctx context.Context, m models.Message) error {
	const op = "storage.AddMessage"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO messages (user_id, username, message_text, is_from_admin)
			  VALUES ($1, $2, $3, $4)`
	_, err := s.DB.ExecContext(ctx, query, m.UserID, m.Username, m.Text, m.IsFromAdmin)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListRecentMessages возвращает последние сообщения поддержки, новые первыми.
func (s *Storage) ListRecentMessages(ctx context.Context, limit int) ([]*models.Message, error) {
	const op = "storage.ListRecentMessages"
	query := `SELECT id, user_id, username, message_text, is_from_admin, created_at
			  FROM messages ORDER BY created_at DESC LIMIT $1`
	return s.queryMessages(ctx, op, query, limit)
}

// ListUserMessages возвращает переписку с конкретным пользователем
// в хронологическом порядке.
func (s *Storage) ListUserMessages(ctx context.Context, userID int64) ([]*models.Message, error) {
	const op = "storage.ListUserMessages"
	query := `SELECT id, user_id, username, message_text, is_from_admin, created_at
			  FROM messages WHERE user_id = $1 ORDER BY created_at ASC`
	return s.queryMessages(ctx, op, query, userID)
}

// CountMessages возвращает общее число сообщений поддержки.
func (s *Storage) CountMessages(ctx context.Context) (int, error) {
	const op = "storage.CountMessages"
	var count int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

func (s *Storage) queryMessages(ctx context.Context, op, query string, args ...any) ([]*models.Message, error) {
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

	var result []*models.Message
	for rows.Next() {
		var item models.Message
		if err := rows.Scan(&item.ID, &item.UserID, &item.Username, &item.Text,
			&item.IsFromAdmin, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
