// Package dates содержит вспомогательные функции для календарной
// арифметики подписок: все сроки доступа считаются по дням в UTC.
package dates

import "time"

// Day обрезает момент времени до календарной даты в UTC.
// Сравнение сроков подписки всегда идёт по таким датам.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
