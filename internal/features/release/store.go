// Package release — store.go описывает контракт хранилища заданий.
// Две реализации: SQLite (по умолчанию, файл рядом с ботом) и
// PostgreSQL (если задан BAN_RELEASE_DATABASE_URL).
package release

import (
	"context"
	"time"
)

// Store — долговременное хранилище заданий на разбан.
//
// Семантика:
//   - Upsert полностью перезаписывает задание с тем же ключом
//     (chat_id, user_id), включая срок разбана;
//   - FetchDue возвращает задания с release_at <= now, отсортированные
//     по сроку по возрастанию;
//   - Delete — no-op, если задания нет; это не ошибка, воркер может
//     удалять уже удалённое после повторной доставки.
type Store interface {
	Upsert(ctx context.Context, job Job) error
	FetchDue(ctx context.Context, now time.Time) ([]Job, error)
	Delete(ctx context.Context, chatID, userID int64) error
	Close() error
}
