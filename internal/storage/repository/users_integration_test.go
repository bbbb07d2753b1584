package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-navigator/club-bot/internal/models"
)

func ptr[T any](v T) *T { return &v }

func paidUser(userID int64, expiry time.Time) *models.User {
	return &models.User{
		UserID:           userID,
		Username:         "testuser",
		FullName:         "Test User",
		IsPaid:           true,
		SubscriptionType: models.SubscriptionMonthAuto,
		PaymentExpiry:    &expiry,
		AutoRenewal:      true,
		PaymentMethodID:  ptr("pm-1"),
		CardLast4:        ptr("4242"),
	}
}

func TestStorage_CreateUser(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()

	isNew, err := storage.CreateUser(ctx, 42, "alice", "Alice A")
	require.NoError(t, err)
	assert.True(t, isNew)

	// Повторный /start не затирает существующую запись.
	isNew, err = storage.CreateUser(ctx, 42, "alice_renamed", "Alice B")
	require.NoError(t, err)
	assert.False(t, isNew)

	user, err := storage.GetUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.False(t, user.IsPaid)
	assert.True(t, user.AutoRenewal)
	assert.Nil(t, user.PaymentExpiry)
	assert.Nil(t, user.PaymentMethodID)
}

func TestStorage_GetUser_NotFound(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	_, err := storage.GetUser(context.Background(), 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStorage_MarkPaid(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateUser(t, 42, "alice")

	expiry := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	err := storage.MarkPaid(ctx, 42, models.SubscriptionMonthAuto, expiry, ptr("pm-1"), ptr("4242"))
	require.NoError(t, err)

	user, err := storage.GetUser(ctx, 42)
	require.NoError(t, err)
	assert.True(t, user.IsPaid)
	assert.Equal(t, models.SubscriptionMonthAuto, user.SubscriptionType)
	require.NotNil(t, user.PaymentExpiry)
	assert.True(t, user.PaymentExpiry.Equal(expiry))
	require.NotNil(t, user.PaymentMethodID)
	assert.Equal(t, "pm-1", *user.PaymentMethodID)
	require.NotNil(t, user.CardLast4)
	assert.Equal(t, "4242", *user.CardLast4)
}

func TestStorage_MarkPaid_WithoutTokenKeepsExistingCard(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	expiry := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	factory.CreatePaidUser(t, paidUser(42, expiry))

	newExpiry := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	err := storage.MarkPaid(ctx, 42, models.SubscriptionMonth, newExpiry, nil, nil)
	require.NoError(t, err)

	user, err := storage.GetUser(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, user.PaymentMethodID)
	assert.Equal(t, "pm-1", *user.PaymentMethodID)
	assert.True(t, user.PaymentExpiry.Equal(newExpiry))
}

func TestStorage_MarkPaid_UnknownUser(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	err := storage.MarkPaid(context.Background(), 999, models.SubscriptionMonth,
		time.Now(), nil, nil)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStorage_ExtendExpiry(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	oldExpiry := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	newExpiry := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	factory.CreatePaidUser(t, paidUser(42, oldExpiry))

	applied, err := storage.ExtendExpiry(ctx, 42, oldExpiry, newExpiry)
	require.NoError(t, err)
	assert.True(t, applied)

	// Условие по старой дате уже не выполняется: повтор не применяется.
	applied, err = storage.ExtendExpiry(ctx, 42, oldExpiry, newExpiry.AddDate(0, 0, 30))
	require.NoError(t, err)
	assert.False(t, applied)

	user, err := storage.GetUser(ctx, 42)
	require.NoError(t, err)
	assert.True(t, user.PaymentExpiry.Equal(newExpiry))
}

func TestStorage_ClearPaymentMethod(t *testing.T) {
	tests := []struct {
		name               string
		disableAutoRenewal bool
		wantAutoRenewal    bool
	}{
		{name: "unlink keeps auto renewal flag", disableAutoRenewal: false, wantAutoRenewal: true},
		{name: "cancel disables auto renewal", disableAutoRenewal: true, wantAutoRenewal: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, cleanup := setupTestDatabase(t)
			defer cleanup()

			ctx := context.Background()
			factory := NewTestDataFactory(storage)
			expiry := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
			factory.CreatePaidUser(t, paidUser(42, expiry))

			err := storage.ClearPaymentMethod(ctx, 42, tt.disableAutoRenewal)
			require.NoError(t, err)

			user, err := storage.GetUser(ctx, 42)
			require.NoError(t, err)
			assert.Nil(t, user.PaymentMethodID)
			assert.Nil(t, user.CardLast4)
			assert.Equal(t, tt.wantAutoRenewal, user.AutoRenewal)
			// Оплаченный доступ сохраняется до конца окна.
			assert.True(t, user.IsPaid)
			assert.True(t, user.PaymentExpiry.Equal(expiry))
		})
	}
}

func TestStorage_FindDueForRenewal(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	// Продление сегодня.
	due := paidUser(1, today)
	factory.CreatePaidUser(t, due)

	// Дата прошла несколько дней назад, попытки ещё не было.
	missed := paidUser(2, today.AddDate(0, 0, -3))
	factory.CreatePaidUser(t, missed)

	// Попытка в этот день уже была.
	attempted := paidUser(3, today)
	attempted.LastRenewalAttempt = &today
	factory.CreatePaidUser(t, attempted)

	// Без привязанной карты автосписания нет.
	tokenless := paidUser(4, today)
	tokenless.PaymentMethodID = nil
	tokenless.CardLast4 = nil
	factory.CreatePaidUser(t, tokenless)

	// Автосписание выключено.
	optedOut := paidUser(5, today)
	optedOut.AutoRenewal = false
	factory.CreatePaidUser(t, optedOut)

	// Дата ещё не наступила.
	future := paidUser(6, today.AddDate(0, 0, 10))
	factory.CreatePaidUser(t, future)

	users, err := storage.FindDueForRenewal(ctx, today)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, int64(1), users[0].UserID)
	assert.Equal(t, int64(2), users[1].UserID)
}

func TestStorage_FindDueForRenewal_AttemptYesterdayIsRetried(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	today := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	user := paidUser(1, yesterday)
	user.LastRenewalAttempt = &yesterday
	factory.CreatePaidUser(t, user)

	users, err := storage.FindDueForRenewal(ctx, today)
	require.NoError(t, err)
	require.Len(t, users, 1)
}

func TestStorage_FindExpiringOn(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	warnDay := time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)

	factory.CreatePaidUser(t, paidUser(1, warnDay))
	factory.CreatePaidUser(t, paidUser(2, warnDay.AddDate(0, 0, 1)))

	users, err := storage.FindExpiringOn(ctx, warnDay)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(1), users[0].UserID)
}

func TestStorage_TouchRenewalAttempt(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	today := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	factory.CreatePaidUser(t, paidUser(42, today))

	require.NoError(t, storage.TouchRenewalAttempt(ctx, 42, today))

	user, err := storage.GetUser(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, user.LastRenewalAttempt)
	assert.True(t, user.LastRenewalAttempt.Equal(today))
}

func TestStorage_CountUsers(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateUser(t, 1, "free1")
	factory.CreateUser(t, 2, "free2")
	factory.CreatePaidUser(t, paidUser(3, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)))

	total, paid, err := storage.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, paid)
}
