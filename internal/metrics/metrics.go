// Package metrics регистрирует счётчики Prometheus жизненного цикла
// подписок. Отдаются через /metrics внутреннего ops-сервера.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PurchasesConfirmed — подтверждённые ручные покупки, по тарифам.
	PurchasesConfirmed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubbot_purchases_confirmed_total",
		Help: "Confirmed manual purchases by plan.",
	}, []string{"plan"})

	// RenewalsSucceeded — успешные автосписания, по тарифам.
	RenewalsSucceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubbot_renewals_succeeded_total",
		Help: "Successful automatic renewals by plan.",
	}, []string{"plan"})

	// RenewalsFailed — неуспешные автосписания, по причинам.
	RenewalsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clubbot_renewals_failed_total",
		Help: "Failed automatic renewals by reason.",
	}, []string{"reason"})

	// SweepRuns — запуски ежедневного прохода продлений.
	SweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clubbot_sweep_runs_total",
		Help: "Completed renewal sweep runs.",
	})

	// NotificationsDropped — уведомления, не доставленные получателю.
	NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clubbot_notifications_dropped_total",
		Help: "Notifications that could not be delivered and were dropped.",
	})
)
