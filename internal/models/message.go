package models

import "time"

// Message — запись переписки поддержки. Журнал только дописывается.
type Message struct {
	ID          int
	UserID      int64
	Username    string
	Text        string
	IsFromAdmin bool
	CreatedAt   time.Time
}
