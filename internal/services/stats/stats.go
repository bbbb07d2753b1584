// Package services содержит сводную статистику клуба для операторов.
package services

import (
	"context"
	"log/slog"
)

// Repository определяет агрегирующие запросы хранилища.
type Repository interface {
	CountUsers(ctx context.Context) (total, paid int, err error)
	CountPayments(ctx context.Context) (count, totalAmount int, err error)
	CountMessages(ctx context.Context) (int, error)
}

// Summary — сводка по клубу на текущий момент.
type Summary struct {
	TotalUsers     int     `json:"total_users"`
	PaidUsers      int     `json:"paid_users"`
	Conversion     float64 `json:"conversion"` // доля оплативших, в процентах
	PaymentsCount  int     `json:"payments_count"`
	PaymentsAmount int     `json:"payments_amount"` // рубли
	TotalMessages  int     `json:"total_messages"`
}

// StatsService считает сводку по данным хранилища.
type StatsService struct {
	repo Repository
	log  *slog.Logger
}

// NewStatsService создает новый экземпляр StatsService.
func NewStatsService(repo Repository, log *slog.Logger) *StatsService {
	return &StatsService{
		repo: repo,
		log:  log,
	}
}

// Summary собирает текущую сводку.
func (s *StatsService) Summary(ctx context.Context) (*Summary, error) {
	total, paid, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	paymentsCount, paymentsAmount, err := s.repo.CountPayments(ctx)
	if err != nil {
		return nil, err
	}
	messages, err := s.repo.CountMessages(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		TotalUsers:     total,
		PaidUsers:      paid,
		PaymentsCount:  paymentsCount,
		PaymentsAmount: paymentsAmount,
		TotalMessages:  messages,
	}
	if total > 0 {
		summary.Conversion = float64(paid) / float64(total) * 100
	}
	return summary, nil
}
