// Package release управляет отложенными разбанами: задания хранятся
// в долговременном хранилище и переживают перезапуск бота.
// models.go описывает структуру задания.
package release

import "time"

// Job — задание на разбан одного участника в одном чате.
// Ключ (chat_id, user_id) уникален: повторный бан того же участника
// перезаписывает задание новым сроком.
type Job struct {
	ChatID    int64
	UserID    int64
	ReleaseAt time.Time
	// Денормализованные отображаемые поля — снимок на момент бана,
	// чтобы уведомление о разбане не требовало запроса к Telegram
	UserName     string
	UserUsername string
	ChatTitle    string
	ChatUsername string
}

// Display — отображаемые поля задания без ключа и срока.
type Display struct {
	UserName     string
	UserUsername string
	ChatTitle    string
	ChatUsername string
}
