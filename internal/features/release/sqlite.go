// Package release — sqlite.go реализует Store поверх SQLite.
// Файл базы живёт рядом с ботом, схема создаётся при открытии.
package release

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ban_release_jobs (
	chat_id       INTEGER NOT NULL,
	user_id       INTEGER NOT NULL,
	release_at    INTEGER NOT NULL,
	user_name     TEXT NOT NULL DEFAULT '',
	user_username TEXT NOT NULL DEFAULT '',
	chat_title    TEXT NOT NULL DEFAULT '',
	chat_username TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (chat_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_ban_release_jobs_release_at
	ON ban_release_jobs (release_at);
`

// SQLiteStore — хранилище заданий в SQLite через пул соединений.
type SQLiteStore struct {
	pool *sqlitex.Pool
}

// NewSQLiteStore открывает (или создаёт) базу и накатывает схему.
//
// Прагмы на каждом соединении: WAL для конкурентного чтения при записи,
// synchronous=NORMAL — при WAL достаточно для устойчивости к сбоям
// процесса и заметно дешевле FULL, busy_timeout вместо мгновенной
// ошибки SQLITE_BUSY при конкурентном доступе.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    4,
		PrepareConn: preparePragmas,
	})
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть базу заданий: %w", err)
	}

	conn, err := pool.Take(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("не удалось получить соединение: %w", err)
	}
	defer pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, sqliteSchema, nil); err != nil {
		pool.Close()
		return nil, fmt.Errorf("не удалось создать схему заданий: %w", err)
	}
	return &SQLiteStore{pool: pool}, nil
}

// preparePragmas выполняется один раз на соединение пула.
// Каждая прагма — отдельным ExecuteTransient: внутри транзакции
// (а ExecuteScript заворачивает скрипт в savepoint) SQLite запрещает
// менять synchronous.
func preparePragmas(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=3000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

// Upsert сохраняет задание, перезаписывая существующее с тем же ключом.
func (s *SQLiteStore) Upsert(ctx context.Context, job Job) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("не удалось получить соединение: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO ban_release_jobs
			(chat_id, user_id, release_at, user_name, user_username, chat_title, chat_username)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chat_id, user_id) DO UPDATE SET
			release_at    = excluded.release_at,
			user_name     = excluded.user_name,
			user_username = excluded.user_username,
			chat_title    = excluded.chat_title,
			chat_username = excluded.chat_username
	`, &sqlitex.ExecOptions{
		Args: []any{
			job.ChatID, job.UserID, job.ReleaseAt.Unix(),
			job.UserName, job.UserUsername, job.ChatTitle, job.ChatUsername,
		},
	})
	if err != nil {
		return fmt.Errorf("не удалось сохранить задание: %w", err)
	}
	return nil
}

// FetchDue возвращает задания со сроком <= now по возрастанию срока.
func (s *SQLiteStore) FetchDue(ctx context.Context, now time.Time) ([]Job, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить соединение: %w", err)
	}
	defer s.pool.Put(conn)

	var jobs []Job
	err = sqlitex.Execute(conn, `
		SELECT chat_id, user_id, release_at, user_name, user_username, chat_title, chat_username
		FROM ban_release_jobs
		WHERE release_at <= ?
		ORDER BY release_at ASC
	`, &sqlitex.ExecOptions{
		Args: []any{now.Unix()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			jobs = append(jobs, Job{
				ChatID:       stmt.ColumnInt64(0),
				UserID:       stmt.ColumnInt64(1),
				ReleaseAt:    time.Unix(stmt.ColumnInt64(2), 0),
				UserName:     stmt.ColumnText(3),
				UserUsername: stmt.ColumnText(4),
				ChatTitle:    stmt.ColumnText(5),
				ChatUsername: stmt.ColumnText(6),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("не удалось выбрать задания: %w", err)
	}
	return jobs, nil
}

// Delete удаляет задание; отсутствие задания — не ошибка.
func (s *SQLiteStore) Delete(ctx context.Context, chatID, userID int64) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("не удалось получить соединение: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		DELETE FROM ban_release_jobs WHERE chat_id = ? AND user_id = ?
	`, &sqlitex.ExecOptions{Args: []any{chatID, userID}})
	if err != nil {
		return fmt.Errorf("не удалось удалить задание: %w", err)
	}
	return nil
}

// Close закрывает пул соединений.
func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}
