// Package sl дополняет slog атрибутами, общими для всех сервисов бота.
package sl

import "log/slog"

// Err упаковывает ошибку в атрибут с ключом "error", чтобы записи об
// ошибках во всех логах сервисов выглядели одинаково.
//
// Пример:
//
//	log.Error("failed to confirm payment", sl.Err(err))
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}
