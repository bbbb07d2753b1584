package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ai-navigator/club-bot/internal/models"
)

const (
	buttonInfo    = "✨ Информация о клубе"
	buttonPay     = "💎 Оплатить"
	buttonAsk     = "💬 Задать вопрос"
	buttonProfile = "👤 Мой профиль"
)

func mainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonInfo),
			tgbotapi.NewKeyboardButton(buttonPay),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonAsk),
			tgbotapi.NewKeyboardButton(buttonProfile),
		),
	)
}

func planKeyboard(plans []models.Plan) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(plans))
	for _, plan := range plans {
		text := fmt.Sprintf("%s — %d ₽", plan.Title, plan.Price)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(text, "pay:"+plan.Key),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func paymentKeyboard(confirmationURL, paymentID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("💳 Перейти к оплате", confirmationURL),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Я оплатил", "check:"+paymentID),
		),
	)
}

func adminKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👥 Все пользователи", "admin:users"),
			tgbotapi.NewInlineKeyboardButtonData("💰 Оплатили", "admin:paid"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💬 Сообщения", "admin:messages"),
		),
	)
}

func profileKeyboard(user *models.User) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if user.AutoRenewal {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔕 Отключить автопродление", "autorenew:off"),
		))
	} else {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔔 Включить автопродление", "autorenew:on"),
		))
	}
	if user.PaymentMethodID != nil {
		rows = append(rows,
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("💳 Отвязать карту", "unlink"),
			),
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("❌ Отменить подписку", "cancel"),
			),
		)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
