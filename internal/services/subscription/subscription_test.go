package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ai-navigator/club-bot/internal/lib/dates"
	"github.com/ai-navigator/club-bot/internal/models"
	"github.com/ai-navigator/club-bot/internal/storage/repository"
	"github.com/ai-navigator/club-bot/internal/yookassa"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) CreateUser(ctx context.Context, userID int64, username, fullName string) (bool, error) {
	args := m.Called(ctx, userID, username, fullName)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) UpdateEmail(ctx context.Context, userID int64, email string) error {
	args := m.Called(ctx, userID, email)
	return args.Error(0)
}

func (m *MockUserRepository) UpdatePhone(ctx context.Context, userID int64, phone string) error {
	args := m.Called(ctx, userID, phone)
	return args.Error(0)
}

func (m *MockUserRepository) MarkPaid(ctx context.Context, userID int64, subscriptionType string,
	expiry time.Time, paymentMethodID, cardLast4 *string) error {
	args := m.Called(ctx, userID, subscriptionType, expiry, paymentMethodID, cardLast4)
	return args.Error(0)
}

func (m *MockUserRepository) SetAutoRenewal(ctx context.Context, userID int64, enabled bool) error {
	args := m.Called(ctx, userID, enabled)
	return args.Error(0)
}

func (m *MockUserRepository) ClearPaymentMethod(ctx context.Context, userID int64, disableAutoRenewal bool) error {
	args := m.Called(ctx, userID, disableAutoRenewal)
	return args.Error(0)
}

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) AddPayment(ctx context.Context, p models.Payment) (int, error) {
	args := m.Called(ctx, p)
	return args.Int(0), args.Error(1)
}

func (m *MockPaymentRepository) HasSucceededPayment(ctx context.Context, providerPaymentID string) (bool, error) {
	args := m.Called(ctx, providerPaymentID)
	return args.Bool(0), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreatePayment(ctx context.Context, amount int, description string,
	savePaymentMethod bool, metadata map[string]string) (*yookassa.Payment, error) {
	args := m.Called(ctx, amount, description, savePaymentMethod, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*yookassa.Payment), args.Error(1)
}

func (m *MockGateway) GetPayment(ctx context.Context, paymentID string) (*yookassa.Payment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*yookassa.Payment), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(key string, result any) (bool, error) {
	args := m.Called(key, result)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) Set(key string, value any, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *MockCache) Invalidate(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Publish(ctx context.Context, event models.NotificationEvent) {
	m.Called(ctx, event)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func testPlans() []models.Plan {
	return []models.Plan{
		{Key: models.SubscriptionMonth, Title: "1 месяц", Price: 1990, DurationDays: 30},
		{Key: models.SubscriptionQuarter, Title: "3 месяца", Price: 4990, DurationDays: 90},
	}
}

func newTestService() (*SubscriptionService, *MockUserRepository, *MockPaymentRepository,
	*MockGateway, *MockCache, *MockDispatcher) {
	users := new(MockUserRepository)
	payments := new(MockPaymentRepository)
	gateway := new(MockGateway)
	cache := new(MockCache)
	dispatcher := new(MockDispatcher)
	svc := NewSubscriptionService(users, payments, gateway, cache, dispatcher, testPlans(), newNoopLogger())
	return svc, users, payments, gateway, cache, dispatcher
}

func TestInitiatePurchase(t *testing.T) {
	tests := []struct {
		name        string
		planKey     string
		setupMocks  func(*MockGateway)
		wantErr     error
		wantPayment string
	}{
		{
			name:    "success - month plan",
			planKey: models.SubscriptionMonth,
			setupMocks: func(g *MockGateway) {
				g.On("CreatePayment", mock.Anything, 1990, mock.Anything, true,
					map[string]string{"user_id": "42", "plan": "month"}).
					Return(&yookassa.Payment{ID: "pay-1", Status: yookassa.StatusPending,
						ConfirmationURL: "https://pay.example/1"}, nil).Once()
			},
			wantPayment: "pay-1",
		},
		{
			name:    "unknown plan",
			planKey: "lifetime",
			wantErr: ErrUnknownPlan,
		},
		{
			name:    "gateway error",
			planKey: models.SubscriptionQuarter,
			setupMocks: func(g *MockGateway) {
				g.On("CreatePayment", mock.Anything, 4990, mock.Anything, true, mock.Anything).
					Return(nil, yookassa.ErrUnavailable).Once()
			},
			wantErr: yookassa.ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _, gateway, _, _ := newTestService()
			if tt.setupMocks != nil {
				tt.setupMocks(gateway)
			}

			payment, _, err := svc.InitiatePurchase(context.Background(), 42, tt.planKey)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPayment, payment.ID)
			gateway.AssertExpectations(t)
		})
	}
}

func TestConfirmPurchase_Success(t *testing.T) {
	svc, users, payments, gateway, cache, dispatcher := newTestService()

	user := &models.User{UserID: 42, Username: "alice"}
	users.On("GetUser", mock.Anything, int64(42)).Return(user, nil).Once()
	payments.On("HasSucceededPayment", mock.Anything, "pay-1").Return(false, nil).Once()

	pm := &yookassa.PaymentMethod{Type: "bank_card", ID: "pm-1", Saved: true}
	pm.Card.Last4 = "4242"
	gateway.On("GetPayment", mock.Anything, "pay-1").Return(&yookassa.Payment{
		ID:            "pay-1",
		Status:        yookassa.StatusSucceeded,
		PaymentMethod: pm,
		Metadata:      map[string]string{"user_id": "42", "plan": "month"},
	}, nil).Once()

	wantExpiry := dates.Day(time.Now()).AddDate(0, 0, 30)
	users.On("MarkPaid", mock.Anything, int64(42), "month_auto", wantExpiry, &pm.ID, mock.Anything).
		Return(nil).Once()
	payments.On("AddPayment", mock.Anything, mock.MatchedBy(func(p models.Payment) bool {
		return p.ProviderPaymentID == "pay-1" && p.Status == models.PaymentStatusSucceeded && p.Amount == 1990
	})).Return(1, nil).Once()
	cache.On("Invalidate", "user:42").Return(nil).Once()
	dispatcher.On("Publish", mock.Anything, mock.MatchedBy(func(e models.NotificationEvent) bool {
		return e.Type == models.EventPurchaseConfirmed && e.UserID == 42
	})).Once()

	result, err := svc.ConfirmPurchase(context.Background(), 42, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, ConfirmActivated, result.Status)
	assert.Equal(t, wantExpiry, result.PaymentExpiry)

	users.AssertExpectations(t)
	payments.AssertExpectations(t)
	gateway.AssertExpectations(t)
	dispatcher.AssertExpectations(t)
}

func TestConfirmPurchase_ResetsExpiryOnRepurchase(t *testing.T) {
	svc, users, payments, gateway, cache, dispatcher := newTestService()

	// Доступ ещё действует, но повторная покупка считает срок заново от
	// сегодняшнего дня, а не прибавляет его к прежней дате.
	oldExpiry := dates.Day(time.Now()).AddDate(0, 0, 20)
	user := &models.User{UserID: 42, IsPaid: true, PaymentExpiry: &oldExpiry,
		SubscriptionType: models.SubscriptionMonth}
	users.On("GetUser", mock.Anything, int64(42)).Return(user, nil).Once()
	payments.On("HasSucceededPayment", mock.Anything, "pay-2").Return(false, nil).Once()
	gateway.On("GetPayment", mock.Anything, "pay-2").Return(&yookassa.Payment{
		ID:       "pay-2",
		Status:   yookassa.StatusSucceeded,
		Metadata: map[string]string{"plan": "month"},
	}, nil).Once()

	wantExpiry := dates.Day(time.Now()).AddDate(0, 0, 30)
	users.On("MarkPaid", mock.Anything, int64(42), "month", wantExpiry,
		(*string)(nil), (*string)(nil)).Return(nil).Once()
	payments.On("AddPayment", mock.Anything, mock.Anything).Return(2, nil).Once()
	cache.On("Invalidate", "user:42").Return(nil).Once()
	dispatcher.On("Publish", mock.Anything, mock.Anything).Once()

	result, err := svc.ConfirmPurchase(context.Background(), 42, "pay-2")
	require.NoError(t, err)
	assert.Equal(t, wantExpiry, result.PaymentExpiry)
	users.AssertExpectations(t)
}

func TestConfirmPurchase_Idempotent(t *testing.T) {
	svc, users, payments, gateway, _, _ := newTestService()

	expiry := dates.Day(time.Now()).AddDate(0, 0, 15)
	user := &models.User{UserID: 42, IsPaid: true, PaymentExpiry: &expiry,
		SubscriptionType: models.SubscriptionMonthAuto}
	users.On("GetUser", mock.Anything, int64(42)).Return(user, nil).Once()
	payments.On("HasSucceededPayment", mock.Anything, "pay-1").Return(true, nil).Once()

	result, err := svc.ConfirmPurchase(context.Background(), 42, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, ConfirmActivated, result.Status)
	assert.Equal(t, expiry, result.PaymentExpiry)
	assert.Equal(t, models.SubscriptionMonth, result.Plan.Key)

	gateway.AssertNotCalled(t, "GetPayment", mock.Anything, mock.Anything)
	users.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmPurchase_NoMutationBeforeFinalStatus(t *testing.T) {
	tests := []struct {
		name   string
		status yookassa.Status
		want   ConfirmStatus
	}{
		{name: "pending", status: yookassa.StatusPending, want: ConfirmPending},
		{name: "waiting for capture", status: yookassa.StatusWaitingForCapture, want: ConfirmPending},
		{name: "canceled", status: yookassa.StatusCanceled, want: ConfirmRejected},
		{name: "unknown status", status: yookassa.StatusUnknown, want: ConfirmRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, users, payments, gateway, _, dispatcher := newTestService()
			users.On("GetUser", mock.Anything, int64(42)).Return(&models.User{UserID: 42}, nil).Once()
			payments.On("HasSucceededPayment", mock.Anything, "pay-1").Return(false, nil).Once()
			gateway.On("GetPayment", mock.Anything, "pay-1").Return(&yookassa.Payment{
				ID:     "pay-1",
				Status: tt.status,
			}, nil).Once()

			result, err := svc.ConfirmPurchase(context.Background(), 42, "pay-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Status)

			users.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything,
				mock.Anything, mock.Anything, mock.Anything)
			payments.AssertNotCalled(t, "AddPayment", mock.Anything, mock.Anything)
			dispatcher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		})
	}
}

func TestConfirmPurchase_UserNotFound(t *testing.T) {
	svc, users, _, _, _, _ := newTestService()
	users.On("GetUser", mock.Anything, int64(99)).Return(nil, repository.ErrUserNotFound).Once()

	result, err := svc.ConfirmPurchase(context.Background(), 99, "pay-1")
	assert.Nil(t, result)
	assert.True(t, IsUserNotFound(err))
}

func TestConfirmPurchase_GatewayUnavailable(t *testing.T) {
	svc, users, payments, gateway, _, _ := newTestService()
	users.On("GetUser", mock.Anything, int64(42)).Return(&models.User{UserID: 42}, nil).Once()
	payments.On("HasSucceededPayment", mock.Anything, "pay-1").Return(false, nil).Once()
	gateway.On("GetPayment", mock.Anything, "pay-1").Return(nil, yookassa.ErrUnavailable).Once()

	_, err := svc.ConfirmPurchase(context.Background(), 42, "pay-1")
	assert.ErrorIs(t, err, yookassa.ErrUnavailable)
}

func TestCancelSubscription(t *testing.T) {
	svc, users, _, _, cache, _ := newTestService()
	users.On("ClearPaymentMethod", mock.Anything, int64(42), true).Return(nil).Once()
	cache.On("Invalidate", "user:42").Return(nil).Once()

	err := svc.CancelSubscription(context.Background(), 42)
	require.NoError(t, err)
	users.AssertExpectations(t)
}

func TestUnlinkCard_KeepsAutoRenewalFlag(t *testing.T) {
	svc, users, _, _, cache, _ := newTestService()
	users.On("ClearPaymentMethod", mock.Anything, int64(42), false).Return(nil).Once()
	cache.On("Invalidate", "user:42").Return(nil).Once()

	err := svc.UnlinkCard(context.Background(), 42)
	require.NoError(t, err)
	users.AssertExpectations(t)
}

func TestToggleAutoRenewal(t *testing.T) {
	svc, users, _, _, cache, _ := newTestService()
	users.On("SetAutoRenewal", mock.Anything, int64(42), true).Return(nil).Once()
	cache.On("Invalidate", "user:42").Return(nil).Once()

	err := svc.ToggleAutoRenewal(context.Background(), 42, true)
	require.NoError(t, err)
	users.AssertExpectations(t)
}

func TestProfile_CacheMiss(t *testing.T) {
	svc, users, _, _, cache, _ := newTestService()

	user := &models.User{UserID: 42, Username: "alice"}
	cache.On("Get", "user:42", mock.Anything).Return(false, nil).Once()
	users.On("GetUser", mock.Anything, int64(42)).Return(user, nil).Once()
	cache.On("Set", "user:42", user, time.Hour).Return(nil).Once()

	got, err := svc.Profile(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, user, got)
	cache.AssertExpectations(t)
}

func TestProfile_CacheError_FallsThrough(t *testing.T) {
	svc, users, _, _, cache, _ := newTestService()

	user := &models.User{UserID: 42}
	cache.On("Get", "user:42", mock.Anything).Return(false, errors.New("redis down")).Once()
	users.On("GetUser", mock.Anything, int64(42)).Return(user, nil).Once()
	cache.On("Set", "user:42", user, time.Hour).Return(nil).Once()

	got, err := svc.Profile(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, user, got)
}

func TestRegister(t *testing.T) {
	svc, users, _, _, _, _ := newTestService()
	users.On("CreateUser", mock.Anything, int64(42), "alice", "Alice A").Return(true, nil).Once()

	isNew, err := svc.Register(context.Background(), 42, "alice", "Alice A")
	require.NoError(t, err)
	assert.True(t, isNew)
}
