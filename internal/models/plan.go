package models

// Plan описывает тариф: цена и срок доступа. Конкретные значения приходят
// из конфига, движок подписок их не знает.
type Plan struct {
	Key          string // ключ тарифа, совпадает с SubscriptionType без _auto
	Title        string // название для сообщений
	Price        int    // целые рубли
	DurationDays int
}
