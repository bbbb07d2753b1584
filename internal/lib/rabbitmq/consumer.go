package rabbitmq

import (
	"context"
	"fmt"
	"log"

	"github.com/streadway/amqp"
)

// maxInFlight ограничивает число событий, обрабатываемых одновременно.
// Согласовано с prefetch-окном канала (Qos в SetupChannel).
const maxInFlight = 10

// ConsumerMessage подписывается на очередь событий уведомлений и передаёт
// тело каждого сообщения обработчику. Ошибка обработчика ведёт к Nack
// с возвратом в очередь, успех — к Ack. Подписка живёт до отмены контекста.
func ConsumerMessage(ctx context.Context, ch *amqp.Channel, queueName string, handler func([]byte) error) error {
	const op = "rabbitmq.ConsumerMessage"
	delivery, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	inFlight := make(chan struct{}, maxInFlight)
	go func() {
		for {
			select {
			case d, ok := <-delivery:
				if !ok {
					return
				}
				inFlight <- struct{}{}
				go func(event amqp.Delivery) {
					defer func() { <-inFlight }()
					if err := handler(event.Body); err != nil {
						if nackErr := event.Nack(false, true); nackErr != nil {
							log.Printf("failed to nack event: %v", nackErr)
						}
						return
					}
					if ackErr := event.Ack(false); ackErr != nil {
						log.Printf("failed to ack event: %v", ackErr)
					}
				}(d)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
