package rabbitmq

type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// NotificationEventsQueue — очередь событий жизненного цикла подписки.
const NotificationEventsQueue = "notification.events"

// GetNotificationQueues возвращает очереди воркера уведомлений.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: NotificationEventsQueue, RoutingKey: "event"},
	}
}
