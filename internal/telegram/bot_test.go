package telegram

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ai-navigator/club-bot/internal/models"
)

func ptr[T any](v T) *T { return &v }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestProfileText_Status(t *testing.T) {
	today := date(2024, 6, 1)

	tests := []struct {
		name string
		user *models.User
		want string
	}{
		{
			name: "active subscription",
			user: &models.User{
				FullName:      "Алиса",
				IsPaid:        true,
				PaymentExpiry: ptr(date(2024, 6, 15)),
			},
			want: "✅ Активна",
		},
		{
			name: "expires today is still active",
			user: &models.User{
				FullName:      "Алиса",
				IsPaid:        true,
				PaymentExpiry: ptr(date(2024, 6, 1)),
			},
			want: "✅ Активна",
		},
		{
			name: "stale paid flag after expiry",
			user: &models.User{
				FullName:      "Алиса",
				IsPaid:        true,
				PaymentExpiry: ptr(date(2024, 5, 20)),
			},
			want: "❌ Не оплачена",
		},
		{
			name: "never paid",
			user: &models.User{FullName: "Алиса"},
			want: "❌ Не оплачена",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, profileText(tt.user, today), tt.want)
		})
	}
}

func TestAdminUsersText(t *testing.T) {
	assert.Equal(t, "Пользователей пока нет.", adminUsersText(nil))

	text := adminUsersText([]*models.User{
		{UserID: 42, Username: "alice", FullName: "Алиса", IsPaid: true},
		{UserID: 43, Username: "bob", FullName: "Борис"},
	})

	assert.Contains(t, text, "✅ Алиса (@alice), id 42")
	assert.Contains(t, text, "❌ Борис (@bob), id 43")
	assert.Contains(t, text, "Показано пользователей: 2")
}

func TestAdminPaidText(t *testing.T) {
	assert.Equal(t, "Оплативших пользователей пока нет.", adminPaidText(nil))

	text := adminPaidText([]*models.User{
		{
			UserID:           42,
			Username:         "alice",
			FullName:         "Алиса",
			IsPaid:           true,
			Email:            ptr("alice@example.com"),
			SubscriptionType: models.SubscriptionMonthAuto,
			PaymentExpiry:    ptr(date(2024, 6, 15)),
		},
		{
			UserID:           43,
			Username:         "bob",
			FullName:         "Борис",
			IsPaid:           true,
			SubscriptionType: models.SubscriptionQuarter,
		},
	})

	assert.Contains(t, text, "✅ Алиса (@alice)")
	assert.Contains(t, text, "📧 alice@example.com")
	assert.Contains(t, text, "📅 До: 15.06.2024")
	assert.Contains(t, text, "📧 не указан")
	assert.Contains(t, text, "Всего оплативших: 2")
}

func TestAdminMessagesText(t *testing.T) {
	assert.Equal(t, "Сообщений пока нет.", adminMessagesText(nil))

	long := strings.Repeat("в", 150)
	text := adminMessagesText([]*models.Message{
		{
			Username:  "alice",
			Text:      "Как сменить тариф?",
			CreatedAt: time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC),
		},
		{
			Username:    "operator",
			Text:        long,
			IsFromAdmin: true,
			CreatedAt:   time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC),
		},
	})

	assert.Contains(t, text, "👤 @alice (01.06 12:30):")
	assert.Contains(t, text, "Как сменить тариф?")
	assert.Contains(t, text, "👨‍💼 Поддержка")
	assert.Contains(t, text, strings.Repeat("в", 100)+"…")
	assert.NotContains(t, text, strings.Repeat("в", 101))
}

func TestAdminKeyboard(t *testing.T) {
	kb := adminKeyboard()

	var datas []string
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			if btn.CallbackData != nil {
				datas = append(datas, *btn.CallbackData)
			}
		}
	}
	assert.Equal(t, []string{"admin:users", "admin:paid", "admin:messages"}, datas)
}
